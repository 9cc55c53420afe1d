package trace

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cashbook/internal/log"
)

type observation struct {
	method, route string
	status        int
}

type recordingObserver struct {
	seen []observation
}

func (o *recordingObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	o.seen = append(o.seen, observation{method, route, status})
}

func newTestHandler(obs Observer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/debts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Request-ID", GetRequestID(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	})
	return NewMiddleware(log.Discard(), nil, obs).Middleware(mux)
}

func TestMiddleware_RequestID(t *testing.T) {
	h := newTestHandler(nil)

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "incoming id is kept", incoming: "abc-123", keep: true},
		{name: "missing id is generated"},
		{name: "oversized id is replaced", incoming: strings.Repeat("x", 65)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/debts/7", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderRequestID, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(HeaderRequestID)
			if got != rec.Header().Get("X-Seen-Request-ID") {
				t.Fatalf("handler saw %q, response carries %q", rec.Header().Get("X-Seen-Request-ID"), got)
			}
			if tt.keep && got != tt.incoming {
				t.Errorf("request id = %q, want %q", got, tt.incoming)
			}
			if !tt.keep && !strings.HasPrefix(got, "req_") {
				t.Errorf("request id = %q, want a generated one", got)
			}
		})
	}
}

func TestMiddleware_ObservesRoutePattern(t *testing.T) {
	obs := &recordingObserver{}
	h := newTestHandler(obs)

	for _, path := range []string{"/api/debts/1", "/api/debts/2", "/nope"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	want := []observation{
		{http.MethodGet, "GET /api/debts/{id}", http.StatusTeapot},
		{http.MethodGet, "GET /api/debts/{id}", http.StatusTeapot},
		{http.MethodGet, "unmatched", http.StatusNotFound},
	}
	if len(obs.seen) != len(want) {
		t.Fatalf("observations = %v", obs.seen)
	}
	for i := range want {
		if obs.seen[i] != want[i] {
			t.Errorf("observation %d = %+v, want %+v", i, obs.seen[i], want[i])
		}
	}
}

func TestMiddleware_LogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelInfo, Format: "json", Output: &buf})
	h := NewMiddleware(logger, nil, nil).Middleware(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec[log.FieldRequestID] != "abc-123" || rec["level"] != "WARN" {
		t.Fatalf("log record = %v", rec)
	}
}
