package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractClientIP(t *testing.T) {
	d := NewDetector(nil)
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct client", "203.0.113.9:5555", "", "", "203.0.113.9"},
		{"untrusted peer cannot spoof", "203.0.113.9:5555", "1.1.1.1", "", "203.0.113.9"},
		{"trusted proxy forwards", "10.0.0.2:80", "198.51.100.7, 10.0.0.2", "", "198.51.100.7"},
		{"real ip header", "127.0.0.1:80", "", "198.51.100.8", "198.51.100.8"},
		{"garbage forwarded header", "127.0.0.1:80", "not-an-ip", "", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	flagged := 0
	d := NewDetector(func(*http.Request) { flagged++ })

	tests := []struct {
		method, target, agent string
		want                  bool
	}{
		{"GET", "/api/debts?friend=abc", "Mozilla/5.0", false},
		{"GET", "/.env", "", true},
		{"GET", "/api/debts?q=union%20select", "", false},
		{"GET", "/api/debts?q=union select", "", true},
		{"GET", "/api/overview/2024/3", "sqlmap/1.7", true},
		{"TRACE", "/", "", true},
	}
	want := 0
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, "http://example.com/", nil)
		r.URL.Path, r.URL.RawQuery, _ = strings.Cut(tt.target, "?")
		r.Header.Set("User-Agent", tt.agent)
		if got := d.DetectSuspiciousRequest(r); got != tt.want {
			t.Errorf("%s %s (%s) = %v, want %v", tt.method, tt.target, tt.agent, got, tt.want)
		}
		if tt.want {
			want++
		}
	}
	if flagged != want {
		t.Errorf("callback ran %d times, want %d", flagged, want)
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("headers = %v", rec.Header())
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must not be sent over plain HTTP")
	}

	rec = httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	r.TLS = &tls.ConnectionState{}
	h.ServeHTTP(rec, r)
	if rec.Header().Get("Strict-Transport-Security") != "max-age=31536000; includeSubDomains" {
		t.Fatalf("HSTS = %q", rec.Header().Get("Strict-Transport-Security"))
	}
}
