package ingest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxRedirects caps the redirect chain a fetch may follow.
const maxRedirects = 10

// blockedHosts are hostnames refused outright, on top of the address
// checks. Cloud metadata services answer under these names.
var blockedHosts = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata.gce.internal":    true,
	"metadata.internal":        true,
}

// urlGuard keeps fetches away from internal infrastructure. It rejects
// non-HTTP schemes, loopback, private and link-local ranges, and cloud
// metadata endpoints. Checks run on the raw URL, on every redirect hop,
// and again on resolved addresses at dial time, so a DNS answer cannot
// slip a private target past a safe-looking hostname.
type urlGuard struct {
	// allowPrivate admits loopback and private ranges, for source pages
	// hosted inside the perimeter. Metadata endpoints stay blocked.
	allowPrivate bool
}

func (g urlGuard) validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing hostname")
	}
	return g.checkHost(host)
}

func (g urlGuard) checkHost(host string) error {
	if blockedHosts[strings.ToLower(host)] {
		return fmt.Errorf("blocked host %q", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		return g.checkIP(ip)
	}
	return nil
}

func (g urlGuard) checkIP(ip net.IP) error {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	if ip.Equal(net.IPv4(169, 254, 169, 254)) {
		return fmt.Errorf("cloud metadata endpoint %s", ip)
	}
	if g.allowPrivate {
		return nil
	}
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback address %s", ip)
	case ip.IsPrivate():
		return fmt.Errorf("private address %s", ip)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address %s", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified address %s", ip)
	}
	return nil
}

// transport returns the HTTP transport for fetches. Unless private hosts
// are allowed, dialing re-validates every resolved address.
func (g urlGuard) transport() *http.Transport {
	t := &http.Transport{
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if !g.allowPrivate {
		t.DialContext = g.dial
	}
	return t
}

func (g urlGuard) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, ""
	}
	if ip := net.ParseIP(host); ip != nil {
		if err := g.checkIP(ip); err != nil {
			return nil, fmt.Errorf("fetch blocked: %w", err)
		}
		return (&net.Dialer{}).DialContext(ctx, network, addr)
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}
	for _, ip := range ips {
		if err := g.checkIP(ip); err != nil {
			return nil, fmt.Errorf("fetch blocked, %s resolves to %s: %w", host, ip, err)
		}
	}

	// Dial the address that passed the check, not the name, so a second
	// resolution cannot change the answer.
	target := ips[0].String()
	if port != "" {
		target = net.JoinHostPort(target, port)
	}
	return (&net.Dialer{}).DialContext(ctx, network, target)
}

func (g urlGuard) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return g.validate(req.URL.String())
}
