package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"audioreceiver/internal/metadata"
)

type fakeManager struct {
	completeFn func(ctx context.Context, id string) (bool, error)
	processFn  func(ctx context.Context, id string) (bool, error)
}

func (f *fakeManager) CompleteSession(ctx context.Context, id string) (bool, error) {
	return f.completeFn(ctx, id)
}

func (f *fakeManager) TriggerProcessing(ctx context.Context, id string) (bool, error) {
	return f.processFn(ctx, id)
}

type fakeDeleter struct {
	deleteFn func(ctx context.Context, id string) error
}

func (f *fakeDeleter) Delete(ctx context.Context, id string) error {
	return f.deleteFn(ctx, id)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestCompleteSessionAccepted(t *testing.T) {
	h := &SessionHandlers{Manager: &fakeManager{
		completeFn: func(ctx context.Context, id string) (bool, error) { return true, nil },
	}}
	rec := postJSON(t, h.CompleteSession, `{"sessionId":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp actionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success=true")
	}
}

func TestCompleteSessionRejectedInvalidState(t *testing.T) {
	h := &SessionHandlers{Manager: &fakeManager{
		completeFn: func(ctx context.Context, id string) (bool, error) { return false, nil },
	}}
	rec := postJSON(t, h.CompleteSession, `{"sessionId":"s1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCompleteSessionUnknownSession(t *testing.T) {
	h := &SessionHandlers{Manager: &fakeManager{
		completeFn: func(ctx context.Context, id string) (bool, error) { return false, metadata.ErrNotFound },
	}}
	rec := postJSON(t, h.CompleteSession, `{"sessionId":"missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCompleteSessionRequiresSessionID(t *testing.T) {
	h := &SessionHandlers{Manager: &fakeManager{
		completeFn: func(ctx context.Context, id string) (bool, error) { return true, nil },
	}}
	rec := postJSON(t, h.CompleteSession, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	var deletedID string
	h := &SessionHandlers{Deleter: &fakeDeleter{
		deleteFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}}
	rec := postJSON(t, h.DeleteSession, `{"sessionId":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if deletedID != "s1" {
		t.Fatalf("expected delete called with s1, got %q", deletedID)
	}
}

func TestDeleteSessionWrongMethod(t *testing.T) {
	h := &SessionHandlers{Deleter: &fakeDeleter{deleteFn: func(ctx context.Context, id string) error { return nil }}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.DeleteSession(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
