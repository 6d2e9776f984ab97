// Package server assembles the receiver's HTTP surface: a chi router
// carrying the ingest endpoint, the admin control/regeneration/pipeline-run
// API, the Prometheus scrape endpoint, and the middleware chain (request
// id, structured request logging, security headers, CORS, per-client rate
// limiting, and metrics) common to all of them.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"audioreceiver/internal/observability/logging"
	"audioreceiver/internal/observability/metrics"
)

// RateLimitConfig bounds how many ingest requests a single client may make
// in a sliding window, guarding the blob store and upload queue against a
// single misbehaving encoder.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

func (cfg RateLimitConfig) withDefaults() RateLimitConfig {
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = 120
	}
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = time.Minute
	}
	return cfg
}

// IngestHandler is the subset of *ingestapi.Handler the router needs.
type IngestHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// SessionHandlers is the subset of *adminapi.SessionHandlers the router
// needs.
type SessionHandlers interface {
	CompleteSession(w http.ResponseWriter, r *http.Request)
	ProcessSession(w http.ResponseWriter, r *http.Request)
	DeleteSession(w http.ResponseWriter, r *http.Request)
}

// RegenerateHandlers is the subset of *adminapi.RegenerateHandlers the
// router needs.
type RegenerateHandlers interface {
	RegenerateFull(w http.ResponseWriter, r *http.Request)
	RegenerateMP3(w http.ResponseWriter, r *http.Request)
	RegenerateMP3Channel(w http.ResponseWriter, r *http.Request)
	RegeneratePeaksChannel(w http.ResponseWriter, r *http.Request)
}

// PipelineRunHandlers is the subset of *adminapi.PipelineRunHandlers the
// router needs.
type PipelineRunHandlers interface {
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Retry(w http.ResponseWriter, r *http.Request)
}

// UploadQueueHandlers is the subset of *adminapi.UploadQueueHandlers the
// router needs.
type UploadQueueHandlers interface {
	RetryFailed(w http.ResponseWriter, r *http.Request)
}

// Config aggregates every handler group and cross-cutting concern the
// router wires together.
type Config struct {
	Ingest       IngestHandler
	Sessions     SessionHandlers
	Regenerate   RegenerateHandlers
	PipelineRuns PipelineRunHandlers
	UploadQueue  UploadQueueHandlers

	Metrics   *metrics.Recorder
	Logger    *slog.Logger
	CORS      CORSConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
}

func (cfg Config) logger() *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.Default()
}

// New builds the router: chi for route dispatch, httprate for per-client
// ingest throttling, and the request-id/security/CORS/logging/metrics
// middleware stack wrapping every route identically.
func New(cfg Config) (http.Handler, error) {
	if cfg.Ingest == nil {
		return nil, fmt.Errorf("ingest handler is required")
	}
	logger := cfg.logger()
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.New()
	}
	policy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, fmt.Errorf("build cors policy: %w", err)
	}
	rateLimit := cfg.RateLimit.withDefaults()

	router := chi.NewRouter()

	router.Use(func(next http.Handler) http.Handler {
		return requestIDMiddleware(logger, next)
	})
	router.Use(func(next http.Handler) http.Handler {
		return securityHeadersMiddleware(cfg.Security, next)
	})
	router.Use(func(next http.Handler) http.Handler {
		return corsMiddleware(policy, logger, next)
	})
	router.Use(logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger}))
	router.Use(func(next http.Handler) http.Handler {
		return metrics.HTTPMiddleware(recorder, next)
	})

	router.With(httprate.LimitByIP(rateLimit.RequestLimit, rateLimit.WindowLength)).
		Post("/stream", cfg.Ingest.ServeHTTP)

	if cfg.Sessions != nil {
		router.Post("/session/complete", cfg.Sessions.CompleteSession)
		router.Post("/session/process", cfg.Sessions.ProcessSession)
		router.Post("/session/delete", cfg.Sessions.DeleteSession)
	}
	if cfg.Regenerate != nil {
		router.Post("/session/regenerate", cfg.Regenerate.RegenerateFull)
		router.Post("/session/regenerate-mp3", cfg.Regenerate.RegenerateMP3)
		router.Post("/session/regenerate-mp3-channel", cfg.Regenerate.RegenerateMP3Channel)
		router.Post("/session/regenerate-peaks-channel", cfg.Regenerate.RegeneratePeaksChannel)
	}
	if cfg.PipelineRuns != nil {
		router.Get("/api/admin/pipeline-runs", cfg.PipelineRuns.List)
		router.Get("/api/admin/pipeline-runs/{runId}", cfg.PipelineRuns.Get)
		router.Post("/api/admin/pipeline-runs/{runId}/retry", cfg.PipelineRuns.Retry)
	}
	if cfg.UploadQueue != nil {
		router.Post("/api/admin/upload-queue/retry-failed", cfg.UploadQueue.RetryFailed)
	}

	router.Get("/metrics", recorder.Handler().ServeHTTP)
	router.Get("/healthz", healthz)

	return router, nil
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
