package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"audioreceiver/internal/uploadqueue"
)

func newRetryFailedCommand(f *serverFlags) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "retry-failed",
		Short: "Drain the upload queue's dead-letter directory back into the queue",
		Long: "Requeues every item the upload queue gave up on after exhausting " +
			"its retries, resetting each one's retry count to zero. Exits after " +
			"draining the dead-letter directory and waiting up to --wait for the " +
			"requeued uploads to finish (items still in flight when --wait expires " +
			"keep running in the background; the process simply stops waiting).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(f)
			if err != nil {
				return err
			}
			logger := buildLogger(cfg)

			store, err := buildMetadataStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			objects, err := buildObjectStore(cfg)
			if err != nil {
				return err
			}
			if objects == nil {
				return fmt.Errorf("object store is not configured; nothing to retry against")
			}

			queue := uploadqueue.New(uploadqueue.Config{
				Workers:       cfg.uploadWorkers,
				RetryDelay:    cfg.uploadRetryDelay,
				MaxRetries:    cfg.uploadMaxRetries,
				QueueDepth:    cfg.uploadQueueDepth,
				DeadLetterDir: cfg.uploadDeadLetterDir,
			}, objects, store, logger)
			queue.Start()

			n, retryErr := queue.RetryFailed(cmd.Context())
			logger.Info("drained dead-letter directory", "requeued", n)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), wait)
			defer cancel()
			if err := queue.Shutdown(shutdownCtx); err != nil {
				logger.Warn("upload queue did not drain before the wait deadline", "error", err)
			}

			return retryErr
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to wait for requeued uploads to finish before exiting")
	return cmd
}
