package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/signalsfoundry/eqplatform/internal/logging"
)

func TestRequestIDMiddlewareLogs(t *testing.T) {
	var out bytes.Buffer
	log := logging.New(logging.Config{Level: "info", Format: "json", Output: &out})

	var seen string
	h := RequestIDMiddleware(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if seen == "" || rr.Header().Get(logging.RequestIDHeader) != seen {
		t.Fatalf("request id %q not echoed (header %q)", seen, rr.Header().Get(logging.RequestIDHeader))
	}
	line := out.String()
	for _, want := range []string{`"msg":"request handled"`, `"status":418`, `"request_id":"` + seen + `"`, `"path":"/health"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %s:\n%s", want, line)
		}
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("unknown part kind")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/describe", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if body := decodeError(t, rr); body.Code != CodeInternal {
		t.Fatalf("body = %+v", body)
	}
}

func TestTracingMiddlewarePassesStatus(t *testing.T) {
	h := TracingMiddleware("/geometry", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/geometry", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
}
