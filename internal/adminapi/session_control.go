// Package adminapi implements the operator-facing HTTP surface layered on
// top of the session manager, the channel pipeline, and the metadata
// store: marking sessions complete or ready for processing, deleting a
// session outright, regenerating a channel's renditions, and inspecting
// pipeline run history.
package adminapi

import (
	"context"
	"log/slog"
	"net/http"

	"audioreceiver/internal/channelpipeline"
	"audioreceiver/internal/httpapi"
	"audioreceiver/internal/metadata"
	"audioreceiver/internal/models"
)

// SessionManager is the subset of *session.Manager the session-control
// handlers need.
type SessionManager interface {
	CompleteSession(ctx context.Context, sessionID string) (bool, error)
	TriggerProcessing(ctx context.Context, sessionID string) (bool, error)
}

// SessionDeleter is the subset of *sessionadmin.Deleter the delete handler
// needs.
type SessionDeleter interface {
	Delete(ctx context.Context, sessionID string) error
}

// ChannelRegenerator is the subset of *session.Processor the regeneration
// handlers need.
type ChannelRegenerator interface {
	RegenerateChannel(ctx context.Context, sessionID string, channel int, variant channelpipeline.Variant) (models.ProcessedChannel, error)
	RegenerateSession(ctx context.Context, sessionID string, variant channelpipeline.Variant) ([]int, error)
}

// SessionHandlers groups the HTTP handlers for session lifecycle control
// (complete, process) and session deletion.
type SessionHandlers struct {
	Manager SessionManager
	Deleter SessionDeleter
	Store   metadata.Store
	Logger  *slog.Logger
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

type actionResponse struct {
	Success bool `json:"success"`
}

func (h *SessionHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// CompleteSession handles POST /session/complete {sessionId}.
func (h *SessionHandlers) CompleteSession(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, h.Manager.CompleteSession)
}

// ProcessSession handles POST /session/process {sessionId}.
func (h *SessionHandlers) ProcessSession(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, h.Manager.TriggerProcessing)
}

func (h *SessionHandlers) dispatch(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, sessionID string) (bool, error)) {
	if r.Method != http.MethodPost {
		httpapi.WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req sessionRequest
	if !httpapi.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		httpapi.WriteRequestError(w, httpapi.ValidationError("sessionId is required"))
		return
	}

	accepted, err := action(r.Context(), req.SessionID)
	if err != nil {
		if err == metadata.ErrNotFound {
			httpapi.WriteRequestError(w, httpapi.NotFound("unknown session"))
			return
		}
		h.logger().Error("session action failed", "session", req.SessionID, "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	if !accepted {
		httpapi.WriteRequestError(w, httpapi.Conflict("session is not in a state that accepts this action"))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, actionResponse{Success: true})
}

// DeleteSession handles POST /session/delete {sessionId}.
func (h *SessionHandlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpapi.WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req sessionRequest
	if !httpapi.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		httpapi.WriteRequestError(w, httpapi.ValidationError("sessionId is required"))
		return
	}

	if err := h.Deleter.Delete(r.Context(), req.SessionID); err != nil {
		if err == metadata.ErrNotFound {
			httpapi.WriteRequestError(w, httpapi.NotFound("unknown session"))
			return
		}
		h.logger().Error("session delete failed", "session", req.SessionID, "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, actionResponse{Success: true})
}
