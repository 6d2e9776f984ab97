// Package session owns the recording-session lifecycle: detecting when a
// session has gone quiet, serializing at-most-one processing run, recovering
// orphaned sessions at startup, and fanning a completed session's channels
// out to the channel pipeline.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"audioreceiver/internal/metadata"
	"audioreceiver/internal/models"
)

// Processor runs the full per-channel pipeline for one session and reports
// its outcome. Implemented by *Processor in this package; an interface here
// keeps the Manager decoupled from the channel-pipeline wiring.
type Processor interface {
	Process(ctx context.Context, sessionID string) error
}

// Config tunes the Manager's polling cadence and ingest-timeout window.
type Config struct {
	TimeoutCheckInterval time.Duration // default 60s
	IngestTimeout        time.Duration // default 10m
	QueueSize            int           // default 64
}

func (c Config) withDefaults() Config {
	if c.TimeoutCheckInterval <= 0 {
		c.TimeoutCheckInterval = 60 * time.Second
	}
	if c.IngestTimeout <= 0 {
		c.IngestTimeout = 10 * time.Minute
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}

// Manager holds the periodic timer, the "currently processing" flag, and
// the FIFO of session ids awaiting processing.
type Manager struct {
	store     metadata.Store
	processor Processor
	cfg       Config
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	queue chan string

	mu         sync.Mutex
	processing bool
	started    bool
}

func New(store metadata.Store, processor Processor, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Manager{
		store:     store,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
		queue:     make(chan string, cfg.QueueSize),
	}
}

// Start launches the timeout-detection ticker and the processing
// dispatcher, then performs startup recovery by enqueuing every session
// already sitting in `complete`.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.wg.Add(2)
	go m.runTimeoutLoop()
	go m.runDispatcher()

	m.recoverOrphaned()
}

// Shutdown stops the ticker and dispatcher, waiting for an in-flight
// processing run to finish. It does not drain the FIFO.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) recoverOrphaned() {
	sessions, err := m.store.ListSessionsByStatus(m.ctx, models.SessionComplete)
	if err != nil {
		m.logger.Error("failed to list complete sessions for startup recovery", "error", err)
		return
	}
	for _, s := range sessions {
		m.enqueue(s.ID)
	}
}

func (m *Manager) runTimeoutLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.TimeoutCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.detectTimeouts()
		}
	}
}

func (m *Manager) detectTimeouts() {
	cutoff := time.Now().Add(-m.cfg.IngestTimeout)
	sessions, err := m.store.ListStaleReceivingSessions(m.ctx, cutoff)
	if err != nil {
		m.logger.Error("failed to list stale receiving sessions", "error", err)
		return
	}
	for _, s := range sessions {
		if _, err := m.store.SetSessionStatus(m.ctx, s.ID, models.SessionComplete); err != nil {
			m.logger.Error("failed to mark session complete on timeout", "session", s.ID, "error", err)
			continue
		}
		m.enqueue(s.ID)
	}
}

// CompleteSession handles an explicit "mark complete" request: accepted
// only when the session is currently `receiving`.
func (m *Manager) CompleteSession(ctx context.Context, sessionID string) (bool, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if sess.Status != models.SessionReceiving {
		return false, nil
	}
	if _, err := m.store.SetSessionStatus(ctx, sessionID, models.SessionComplete); err != nil {
		return false, err
	}
	m.enqueue(sessionID)
	return true, nil
}

// TriggerProcessing handles a manual "process now" request. A `receiving`
// session is first transitioned to `complete`; a session already
// `processing` or `processed` is rejected.
func (m *Manager) TriggerProcessing(ctx context.Context, sessionID string) (bool, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	switch sess.Status {
	case models.SessionProcessing, models.SessionProcessed:
		return false, nil
	case models.SessionReceiving:
		if _, err := m.store.SetSessionStatus(ctx, sessionID, models.SessionComplete); err != nil {
			return false, err
		}
	}
	m.enqueue(sessionID)
	return true, nil
}

func (m *Manager) enqueue(sessionID string) {
	if strings.TrimSpace(sessionID) == "" {
		return
	}
	select {
	case m.queue <- sessionID:
	case <-m.ctx.Done():
	}
}

func (m *Manager) runDispatcher() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case sessionID := <-m.queue:
			m.setProcessing(true)
			m.runOne(sessionID)
			m.setProcessing(false)
		}
	}
}

func (m *Manager) setProcessing(v bool) {
	m.mu.Lock()
	m.processing = v
	m.mu.Unlock()
}

// Processing reports whether a session is currently being processed.
func (m *Manager) Processing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing
}

func (m *Manager) runOne(sessionID string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("session processor panicked", "session", sessionID, "recover", r)
			if _, err := m.store.SetSessionStatus(m.ctx, sessionID, models.SessionFailed); err != nil {
				m.logger.Error("failed to mark session failed after panic", "session", sessionID, "error", err)
			}
		}
	}()
	if err := m.processor.Process(m.ctx, sessionID); err != nil {
		m.logger.Error("session processing failed", "session", sessionID, "error", err)
	}
}
