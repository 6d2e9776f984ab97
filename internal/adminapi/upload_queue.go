package adminapi

import (
	"context"
	"log/slog"
	"net/http"

	"audioreceiver/internal/httpapi"
)

// UploadQueueRetrier is the subset of *uploadqueue.Queue the retry-failed
// handler needs.
type UploadQueueRetrier interface {
	RetryFailed(ctx context.Context) (int, error)
}

// UploadQueueHandlers exposes admin control over the upload queue's
// dead-letter directory.
type UploadQueueHandlers struct {
	Queue  UploadQueueRetrier
	Logger *slog.Logger
}

func (h *UploadQueueHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type retryFailedResponse struct {
	Success bool `json:"success"`
	Retried int  `json:"retried"`
}

// RetryFailed handles POST /api/admin/upload-queue/retry-failed: it drains
// every dead-lettered item back into the queue with its retry count reset.
func (h *UploadQueueHandlers) RetryFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpapi.WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	n, err := h.Queue.RetryFailed(r.Context())
	if err != nil {
		h.logger().Error("retry-failed drain did not finish", "retried", n, "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, retryFailedResponse{Success: true, Retried: n})
}
