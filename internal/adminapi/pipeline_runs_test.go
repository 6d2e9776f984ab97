package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/channelpipeline"
	"audioreceiver/internal/models"
	"audioreceiver/internal/testsupport"
)

func newTestPipelineRunHandlers(t *testing.T) (*PipelineRunHandlers, *testsupport.MetadataStoreStub) {
	t.Helper()
	store := testsupport.NewMetadataStoreStub()
	blobs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("new blobstore: %v", err)
	}
	deps := channelpipeline.Deps{Store: store, Blobs: blobs, Tools: audiotoolbox.Toolbox{}}
	return &PipelineRunHandlers{Store: store, Deps: deps, Config: channelpipeline.DefaultConfig()}, store
}

func withRunIDParam(req *http.Request, runID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("runId", runID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func newTestContext() context.Context {
	return context.Background()
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestListPipelineRunsFiltersBySession(t *testing.T) {
	h, store := newTestPipelineRunHandlers(t)
	ctx := newTestContext()
	if _, err := store.CreatePipelineRun(ctx, models.PipelineRun{SessionID: "s1", StepName: "encode-mp3"}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if _, err := store.CreatePipelineRun(ctx, models.PipelineRun{SessionID: "s2", StepName: "encode-mp3"}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/pipeline-runs?sessionId=s1", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var runs []models.PipelineRun
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].SessionID != "s1" {
		t.Fatalf("expected only the s1 run, got %+v", runs)
	}
}

func TestGetPipelineRunNotFound(t *testing.T) {
	h, _ := newTestPipelineRunHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/pipeline-runs/999", nil)
	req = withRunIDParam(req, "999")
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRetryRejectsNonFailedRun(t *testing.T) {
	h, store := newTestPipelineRunHandlers(t)
	ctx := newTestContext()
	run, err := store.CreatePipelineRun(ctx, models.PipelineRun{SessionID: "s1", StepName: "encode-mp3", Status: models.RunCompleted})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/pipeline-runs/1/retry", nil)
	req = withRunIDParam(req, itoa(run.ID))
	rec := httptest.NewRecorder()
	h.Retry(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRetryRejectsUnknownStep(t *testing.T) {
	h, store := newTestPipelineRunHandlers(t)
	ctx := newTestContext()
	run, err := store.CreatePipelineRun(ctx, models.PipelineRun{SessionID: "s1", StepName: "not-a-real-step", Status: models.RunFailed})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/pipeline-runs/1/retry", nil)
	req = withRunIDParam(req, itoa(run.ID))
	rec := httptest.NewRecorder()
	h.Retry(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
