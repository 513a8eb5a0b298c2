package ingest

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
)

// blockSelector lists the elements whose text survives the fallback pass
// when a page does not score as a readable article.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote"

// parseMediaType returns the bare media type, defaulting to text/html when
// the header is missing or malformed.
func parseMediaType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "text/html"
	}
	return mt
}

// extractPlain decodes a plain text or markdown body to UTF-8 and
// normalizes its whitespace. The content type header supplies the charset.
func extractPlain(header string, body []byte) (string, error) {
	decoded, err := decode(header, body)
	if err != nil {
		return "", err
	}
	text := normalizeText(string(decoded))
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

// extractHTML reduces an HTML page to its title and readable text. The
// readability pass handles article-shaped pages; everything else falls
// back to walking block elements.
func extractHTML(pageURL *url.URL, header string, body []byte) (title, text string, err error) {
	decoded, err := decode(header, body)
	if err != nil {
		return "", "", err
	}

	article, err := readability.FromReader(bytes.NewReader(decoded), pageURL)
	if err == nil {
		title = strings.TrimSpace(article.Title)
		text = normalizeText(article.TextContent)
	}
	if text != "" {
		return title, text, nil
	}
	return extractBlocks(decoded)
}

// extractBlocks joins the text of top-level block elements, skipping
// script, style, and navigation chrome.
func extractBlocks(decoded []byte) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decoded))
	if err != nil {
		return "", "", fmt.Errorf("parsing html: %w", err)
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template, nav, header, footer, aside, form").Remove()

	var parts []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.Parents().Is(blockSelector) {
			return // an enclosing block already carries this text
		}
		if t := normalizeInline(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) > 0 {
		return title, strings.Join(parts, "\n\n"), nil
	}
	if t := normalizeText(doc.Find("body").Text()); t != "" {
		return title, t, nil
	}
	return "", "", ErrNoContent
}

// decode converts a response body to UTF-8 using the charset named by the
// content type header, or the document's own meta tags when absent.
func decode(header string, body []byte) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(body), header)
	if err != nil {
		return nil, fmt.Errorf("decoding charset: %w", err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decoding body: %w", err)
	}
	return decoded, nil
}

var (
	blankRuns = regexp.MustCompile(`\n{3,}`)
	spaceRuns = regexp.MustCompile(`\s+`)
)

// normalizeText trims trailing space from each line and collapses runs of
// blank lines, keeping paragraph breaks intact.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}

// normalizeInline collapses all whitespace inside one block to single
// spaces.
func normalizeInline(s string) string {
	return strings.TrimSpace(spaceRuns.ReplaceAllString(s, " "))
}
