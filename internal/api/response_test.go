package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/inkops/inkwell/internal/testutil"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"status": "ok"}, testutil.DiscardLogger())

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status ok", body)
	}
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, math.NaN(), testutil.DiscardLogger())

	// Encoding failed before headers committed, so a clean 500 goes out.
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusConflict, "version_conflict", "retry", testutil.DiscardLogger())

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if env.Error.Code != "version_conflict" || env.Error.Message != "retry" {
		t.Errorf("envelope = %+v, want code and message", env)
	}
}

func TestParseIntParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"present", "limit=25", 25},
		{"absent", "", 10},
		{"garbage", "limit=abc", 10},
		{"negative", "limit=-5", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			if got := parseIntParam(req, "limit", 10); got != tt.want {
				t.Errorf("parseIntParam() = %d, want %d", got, tt.want)
			}
		})
	}
}

func FuzzParseIntParam(f *testing.F) {
	f.Add("25")
	f.Add("")
	f.Add("-1")
	f.Add("abc")
	f.Add("00042")
	f.Add("999999999999999999999")
	f.Add("1e3")

	f.Fuzz(func(t *testing.T, raw string) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		q := req.URL.Query()
		q.Set("limit", raw)
		req.URL.RawQuery = q.Encode()

		got := parseIntParam(req, "limit", 10)
		if got < 0 {
			t.Errorf("parseIntParam(%q) = %d, negative values must fall back", raw, got)
		}
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 && got != n {
			t.Errorf("parseIntParam(%q) = %d, want %d", raw, got, n)
		}
	})
}
