package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/metadata"
	"audioreceiver/internal/objectstore"
	"audioreceiver/internal/observability/logging"
)

func buildLogger(cfg resolvedConfig) *slog.Logger {
	format := logging.FormatJSON
	if cfg.logFormat == "text" {
		format = logging.FormatText
	}
	return logging.Init(logging.Config{Level: cfg.logLevel, Format: format})
}

func buildMetadataStore(ctx context.Context, cfg resolvedConfig) (metadata.Store, error) {
	switch cfg.metadataDriver {
	case "postgres":
		store, err := metadata.NewPostgresStore(ctx, cfg.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.sqlitePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		store, err := metadata.NewSQLiteStore(ctx, cfg.sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown metadata driver %q", cfg.metadataDriver)
	}
}

func buildBlobStore(cfg resolvedConfig) (*blobstore.Store, error) {
	store, err := blobstore.New(cfg.blobRoot)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return store, nil
}

// buildObjectStore returns nil, nil when object storage is not configured:
// every collaborator treats a nil *objectstore.Client as "local storage
// only".
func buildObjectStore(cfg resolvedConfig) (*objectstore.Client, error) {
	if !cfg.objectStore.Enabled() {
		return nil, nil
	}
	client, err := objectstore.New(cfg.objectStore)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	return client, nil
}
