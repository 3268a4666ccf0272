package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestIDMiddlewareSetsContext(t *testing.T) {
	var requestID string
	var started time.Time
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = GetRequestID(r.Context())
		started = GetStartTime(r.Context())
	}))

	before := time.Now()
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if requestID == "" || requestID != w.Header().Get(RequestIDHeader) {
		t.Fatalf("request id %q does not match header %q", requestID, w.Header().Get(RequestIDHeader))
	}
	if started.Before(before) || started.After(time.Now()) {
		t.Fatalf("start time %v outside the request window", started)
	}
}

func TestLoggerMiddlewareUsesRequestContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	chain := Chain(RequestIDMiddleware, LoggerMiddleware(zap.New(core)))
	handler := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/predict", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one access log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-7" || fields["path"] != "/predict" {
		t.Errorf("unexpected fields %v", fields)
	}
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("expected status %d, got %v", http.StatusTeapot, fields["status"])
	}
	if d, ok := fields["duration"].(time.Duration); !ok || d < 5*time.Millisecond {
		t.Errorf("expected duration of at least 5ms, got %v", fields["duration"])
	}
}

func TestLoggerMiddlewareWithoutRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := LoggerMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if d, ok := entries[0].ContextMap()["duration"].(time.Duration); !ok || d < 0 || d > time.Second {
		t.Errorf("unexpected duration %v", entries[0].ContextMap()["duration"])
	}
}
