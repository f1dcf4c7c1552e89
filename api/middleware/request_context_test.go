package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hilife/servicereport-backend/pkg/logger"
)

func chain(logg *logger.Logger, h http.Handler) http.Handler {
	return RequestID(logg)(Recoverer(logg)(h))
}

func TestRequestIDReusesWellFormedInboundID(t *testing.T) {
	var seen string
	h := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(requestIDHeader)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
	req.Header.Set(requestIDHeader, "lb-3f9c2a71")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "lb-3f9c2a71" {
		t.Fatalf("expected inbound id reused, got %q", seen)
	}
}

func TestRequestIDReplacesMalformedInboundID(t *testing.T) {
	h := RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	for _, inbound := range []string{"", "short", "abc\ndef-ghijkl", strings.Repeat("a", 65)} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
		req.Header.Set(requestIDHeader, inbound)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		got := rec.Header().Get(requestIDHeader)
		if got == inbound || len(got) != 36 {
			t.Fatalf("inbound %q: expected a generated uuid, got %q", inbound, got)
		}
	}
}

func TestRecovererWritesInternalErrorWithRequestID(t *testing.T) {
	var logs bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "api-test", Format: "json", Output: &logs})
	h := chain(logg, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil signature")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/SR-1", nil)
	req.Header.Set(requestIDHeader, "req-12345678")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code"`) {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
	out := logs.String()
	for _, want := range []string{"request.panic", `"request_id":"req-12345678"`, `"panic":"nil signature"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in logs, got %s", want, out)
		}
	}
}

func TestRecovererLeavesStartedResponseAlone(t *testing.T) {
	h := chain(nil, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("partial"))
		panic("after write")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusAccepted || rec.Body.String() != "partial" {
		t.Fatalf("expected untouched response, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRecovererRepanicsOnAbort(t *testing.T) {
	h := chain(nil, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", v)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
