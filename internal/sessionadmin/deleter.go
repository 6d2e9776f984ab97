// Package sessionadmin implements the operator-facing operations that sit
// outside the core ingest/process lifecycle: cascading session delete and
// the retention sweep that purges sessions past their admin-configured
// expiry (cmd/server's session_purger.go ticker calls into it).
package sessionadmin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/channelpipeline"
	"audioreceiver/internal/metadata"
	"audioreceiver/internal/models"
	"audioreceiver/internal/objectstore"
)

// Deleter performs a cascading session delete: bulk-delete the session's
// object-store prefixes, purge its local blob tree, then remove its
// metadata rows.
type Deleter struct {
	Store   metadata.Store
	Blobs   *blobstore.Store
	Objects *objectstore.Client
	Config  channelpipeline.Config
	Logger  *slog.Logger
}

func NewDeleter(store metadata.Store, blobs *blobstore.Store, objects *objectstore.Client, cfg channelpipeline.Config, logger *slog.Logger) *Deleter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deleter{Store: store, Blobs: blobs, Objects: objects, Config: cfg, Logger: logger}
}

// Delete removes every trace of sessionID: object-store keys under its
// three prefixes, local blobs, and metadata rows (the metadata backends
// cascade pipeline_runs/recordings/processed_channels/segments via foreign
// keys when sessions are deleted).
func (d *Deleter) Delete(ctx context.Context, sessionID string) error {
	if _, err := d.Store.GetSession(ctx, sessionID); err != nil {
		return err
	}

	if d.Objects != nil && d.Objects.Enabled() {
		prefixes := []string{
			fmt.Sprintf("%s%s/", d.Config.SegmentsPrefix, sessionID),
			fmt.Sprintf("%s%s/", d.Config.HLSPrefix, sessionID),
			fmt.Sprintf("%s%s/", d.Config.PeaksPrefix, sessionID),
		}
		result := d.Objects.DeletePrefixes(ctx, prefixes)
		for prefix, err := range result.Errors {
			d.Logger.Error("failed to bulk-delete object-store prefix", "session", sessionID, "prefix", prefix, "error", err)
		}
	}

	if err := d.Blobs.PurgeSession(sessionID); err != nil {
		d.Logger.Error("failed to purge session blobs", "session", sessionID, "error", err)
	}

	if err := d.Store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session metadata: %w", err)
	}
	return nil
}

// RetentionPurger implements cmd/server's sessionPurger interface
// (PurgeExpired() error), deleting terminal sessions (processed or failed)
// whose updated_at has aged past Retention.
type RetentionPurger struct {
	Deleter   *Deleter
	Store     metadata.Store
	Retention time.Duration
	Logger    *slog.Logger
}

func NewRetentionPurger(deleter *Deleter, store metadata.Store, retention time.Duration, logger *slog.Logger) *RetentionPurger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionPurger{Deleter: deleter, Store: store, Retention: retention, Logger: logger}
}

// PurgeExpired deletes every processed or failed session older than the
// configured retention window. Errors deleting one session are logged and
// do not stop the sweep over the rest.
func (p *RetentionPurger) PurgeExpired() error {
	if p.Retention <= 0 {
		return nil
	}
	ctx := context.Background()
	cutoff := time.Now().Add(-p.Retention)

	var candidates []models.Session
	for _, status := range []models.SessionStatus{models.SessionProcessed, models.SessionFailed} {
		sessions, err := p.Store.ListSessionsByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("list %s sessions: %w", status, err)
		}
		candidates = append(candidates, sessions...)
	}

	var firstErr error
	for _, sess := range candidates {
		if sess.UpdatedAt.After(cutoff) {
			continue
		}
		if err := p.Deleter.Delete(ctx, sess.ID); err != nil {
			p.Logger.Error("failed to purge expired session", "session", sess.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		p.Logger.Info("purged expired session", "session", sess.ID, "status", sess.Status)
	}
	return firstErr
}
