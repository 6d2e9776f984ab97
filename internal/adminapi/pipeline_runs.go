package adminapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"audioreceiver/internal/channelpipeline"
	"audioreceiver/internal/httpapi"
	"audioreceiver/internal/metadata"
	"audioreceiver/internal/models"
	"audioreceiver/internal/pipeline"
)

// PipelineRunHandlers exposes read-only views over PipelineRun history and
// a single-step retry that replays one failed step with the input
// snapshot the original run recorded.
type PipelineRunHandlers struct {
	Store  metadata.Store
	Deps   channelpipeline.Deps
	Config channelpipeline.Config
	Logger *slog.Logger
}

func (h *PipelineRunHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// List handles GET /api/admin/pipeline-runs?sessionId=&channel=&status=.
func (h *PipelineRunHandlers) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpapi.WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	query := r.URL.Query()
	filter := metadata.PipelineRunFilter{
		SessionID: query.Get("sessionId"),
		Status:    models.PipelineRunStatus(query.Get("status")),
	}
	if raw := query.Get("channel"); raw != "" {
		channel, err := strconv.Atoi(raw)
		if err != nil {
			httpapi.WriteRequestError(w, httpapi.ValidationError("channel must be an integer"))
			return
		}
		filter.Channel = &channel
	}

	runs, err := h.Store.ListPipelineRuns(r.Context(), filter)
	if err != nil {
		h.logger().Error("failed to list pipeline runs", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, runs)
}

// Get handles GET /api/admin/pipeline-runs/{runId}.
func (h *PipelineRunHandlers) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpapi.WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, run)
}

// Retry handles POST /api/admin/pipeline-runs/{runId}/retry: it replays
// the single named step with the run's recorded input snapshot, without
// rerunning the rest of the channel pipeline.
func (h *PipelineRunHandlers) Retry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpapi.WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	if run.Status != models.RunFailed {
		httpapi.WriteRequestError(w, httpapi.Conflict("only a failed pipeline run can be retried"))
		return
	}

	step := h.findStep(run.StepName)
	if step == nil {
		httpapi.WriteRequestError(w, httpapi.ValidationError("unknown step: "+run.StepName))
		return
	}

	data := pipeline.Data{}
	if len(run.InputSnapshot) > 0 {
		if err := json.Unmarshal(run.InputSnapshot, &data); err != nil {
			httpapi.WriteRequestError(w, httpapi.RequestError{Status: http.StatusUnprocessableEntity, CodeVal: "corrupt_snapshot", Message: "stored input snapshot could not be decoded"})
			return
		}
	}

	channel := 0
	if run.ChannelNumber != nil {
		channel = *run.ChannelNumber
	}
	sctx := pipeline.StepContext{
		SessionID:     run.SessionID,
		ChannelNumber: channel,
		WorkDir:       h.Deps.Blobs.WorkDir(run.SessionID, channel),
		OutputDir:     h.Deps.Blobs.SessionDir(run.SessionID),
	}

	runner := pipeline.Runner{
		Steps:  []pipeline.Step{step},
		Store:  h.Store,
		Logger: h.logger(),
		Options: pipeline.Options{
			TrackInDB: true,
		},
	}
	result := runner.Run(r.Context(), sctx, data)

	httpapi.WriteJSON(w, http.StatusOK, retryResponse{
		Success:   result.Success,
		StepName:  run.StepName,
		FinalData: result.FinalData,
	})
}

type retryResponse struct {
	Success   bool          `json:"success"`
	StepName  string        `json:"stepName"`
	FinalData pipeline.Data `json:"finalData,omitempty"`
}

func (h *PipelineRunHandlers) loadRun(w http.ResponseWriter, r *http.Request) (models.PipelineRun, bool) {
	raw := chi.URLParam(r, "runId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpapi.WriteRequestError(w, httpapi.ValidationError("runId must be an integer"))
		return models.PipelineRun{}, false
	}
	run, err := h.Store.GetPipelineRun(r.Context(), id)
	if err != nil {
		if err == metadata.ErrNotFound {
			httpapi.WriteRequestError(w, httpapi.NotFound("unknown pipeline run"))
			return models.PipelineRun{}, false
		}
		h.logger().Error("failed to load pipeline run", "runId", id, "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, err)
		return models.PipelineRun{}, false
	}
	return run, true
}

func (h *PipelineRunHandlers) findStep(name string) pipeline.Step {
	for _, step := range channelpipeline.BuildSteps(h.Deps, h.Config) {
		if step.Name() == name {
			return step
		}
	}
	return nil
}
