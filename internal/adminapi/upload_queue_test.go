package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeRetrier struct {
	n   int
	err error
}

func (f *fakeRetrier) RetryFailed(ctx context.Context) (int, error) {
	return f.n, f.err
}

func TestUploadQueueRetryFailedSuccess(t *testing.T) {
	h := &UploadQueueHandlers{Queue: &fakeRetrier{n: 3}}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/upload-queue/retry-failed", nil)
	rec := httptest.NewRecorder()
	h.RetryFailed(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp retryFailedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Retried != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUploadQueueRetryFailedError(t *testing.T) {
	h := &UploadQueueHandlers{Queue: &fakeRetrier{err: errors.New("boom")}}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/upload-queue/retry-failed", nil)
	rec := httptest.NewRecorder()
	h.RetryFailed(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestUploadQueueRetryFailedWrongMethod(t *testing.T) {
	h := &UploadQueueHandlers{Queue: &fakeRetrier{}}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/upload-queue/retry-failed", nil)
	rec := httptest.NewRecorder()
	h.RetryFailed(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
