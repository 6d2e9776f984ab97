package adminapi

import (
	"log/slog"
	"net/http"

	"audioreceiver/internal/channelpipeline"
	"audioreceiver/internal/httpapi"
	"audioreceiver/internal/metadata"
)

// RegenerateHandlers dispatches the four regeneration routes, each
// invoking a narrower pipeline variant against the channel regenerator.
type RegenerateHandlers struct {
	Regenerator ChannelRegenerator
	Logger      *slog.Logger
}

func (h *RegenerateHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type regenerateRequest struct {
	SessionID     string `json:"sessionId"`
	ChannelNumber *int   `json:"channelNumber,omitempty"`
}

type regenerateResponse struct {
	Success        bool  `json:"success"`
	FailedChannels []int `json:"failedChannels,omitempty"`
}

// RegenerateFull handles POST /session/regenerate {sessionId,
// channelNumber?}: a full rerun of one channel, or every channel when
// channelNumber is omitted.
func (h *RegenerateHandlers) RegenerateFull(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, channelpipeline.VariantFull)
}

// RegenerateMP3 handles POST /session/regenerate-mp3: the lossless-to-MP3
// leg only.
func (h *RegenerateHandlers) RegenerateMP3(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, channelpipeline.VariantMP3Only)
}

// RegenerateMP3Channel handles POST /session/regenerate-mp3-channel: the
// same MP3-only variant, scoped to a single required channel.
func (h *RegenerateHandlers) RegenerateMP3Channel(w http.ResponseWriter, r *http.Request) {
	h.dispatchChannelRequired(w, r, channelpipeline.VariantMP3Only)
}

// RegeneratePeaksChannel handles POST /session/regenerate-peaks-channel:
// the peaks+HLS-only variant, scoped to a single required channel.
func (h *RegenerateHandlers) RegeneratePeaksChannel(w http.ResponseWriter, r *http.Request) {
	h.dispatchChannelRequired(w, r, channelpipeline.VariantPeaksHLSOnly)
}

func (h *RegenerateHandlers) dispatch(w http.ResponseWriter, r *http.Request, variant channelpipeline.Variant) {
	if r.Method != http.MethodPost {
		httpapi.WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req regenerateRequest
	if !httpapi.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		httpapi.WriteRequestError(w, httpapi.ValidationError("sessionId is required"))
		return
	}

	if req.ChannelNumber != nil {
		h.regenerateOne(w, r, req.SessionID, *req.ChannelNumber, variant)
		return
	}

	failed, err := h.Regenerator.RegenerateSession(r.Context(), req.SessionID, variant)
	if err != nil {
		h.writeErr(w, req.SessionID, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, regenerateResponse{Success: len(failed) == 0, FailedChannels: failed})
}

func (h *RegenerateHandlers) dispatchChannelRequired(w http.ResponseWriter, r *http.Request, variant channelpipeline.Variant) {
	if r.Method != http.MethodPost {
		httpapi.WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req regenerateRequest
	if !httpapi.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		httpapi.WriteRequestError(w, httpapi.ValidationError("sessionId is required"))
		return
	}
	if req.ChannelNumber == nil {
		httpapi.WriteRequestError(w, httpapi.ValidationError("channelNumber is required"))
		return
	}
	h.regenerateOne(w, r, req.SessionID, *req.ChannelNumber, variant)
}

func (h *RegenerateHandlers) regenerateOne(w http.ResponseWriter, r *http.Request, sessionID string, channel int, variant channelpipeline.Variant) {
	if _, err := h.Regenerator.RegenerateChannel(r.Context(), sessionID, channel, variant); err != nil {
		h.writeErr(w, sessionID, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, regenerateResponse{Success: true})
}

func (h *RegenerateHandlers) writeErr(w http.ResponseWriter, sessionID string, err error) {
	if err == metadata.ErrNotFound {
		httpapi.WriteRequestError(w, httpapi.NotFound("unknown session"))
		return
	}
	h.logger().Error("channel regeneration request failed", "session", sessionID, "error", err)
	httpapi.WriteRequestError(w, httpapi.RequestError{Status: http.StatusUnprocessableEntity, CodeVal: "regeneration_failed", Message: err.Error()})
}
