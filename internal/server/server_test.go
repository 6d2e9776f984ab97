package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubIngest struct{ called bool }

func (s *stubIngest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.called = true
	w.WriteHeader(http.StatusCreated)
}

type stubSessions struct{ action string }

func (s *stubSessions) CompleteSession(w http.ResponseWriter, r *http.Request) { s.action = "complete"; w.WriteHeader(http.StatusOK) }
func (s *stubSessions) ProcessSession(w http.ResponseWriter, r *http.Request)  { s.action = "process"; w.WriteHeader(http.StatusOK) }
func (s *stubSessions) DeleteSession(w http.ResponseWriter, r *http.Request)   { s.action = "delete"; w.WriteHeader(http.StatusOK) }

func TestNewRequiresIngestHandler(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error when Ingest is nil")
	}
}

func TestNewRoutesStreamToIngestHandler(t *testing.T) {
	ingest := &stubIngest{}
	handler, err := New(Config{Ingest: ingest, RateLimit: RateLimitConfig{RequestLimit: 10, WindowLength: 0}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/stream", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !ingest.called {
		t.Fatal("expected ingest handler to be invoked")
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
}

func TestNewRoutesSessionActions(t *testing.T) {
	sessions := &stubSessions{}
	ingest := &stubIngest{}
	handler, err := New(Config{Ingest: ingest, Sessions: sessions})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for path, want := range map[string]string{
		"/session/complete": "complete",
		"/session/process":  "process",
		"/session/delete":   "delete",
	} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if sessions.action != want {
			t.Fatalf("path %s: expected action %s, got %s", path, want, sessions.action)
		}
	}
}

func TestNewExposesMetricsAndHealthz(t *testing.T) {
	ingest := &stubIngest{}
	handler, err := New(Config{Ingest: ingest})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestNewSetsRequestIDAndSecurityHeaders(t *testing.T) {
	ingest := &stubIngest{}
	handler, err := New(Config{Ingest: ingest})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected X-Request-Id response header to be set")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers middleware to run, got %q", rec.Header().Get("X-Content-Type-Options"))
	}
}
