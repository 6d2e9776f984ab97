package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"audioreceiver/internal/adminapi"
	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/channelpipeline"
	"audioreceiver/internal/config"
	"audioreceiver/internal/ingestapi"
	"audioreceiver/internal/observability/metrics"
	"audioreceiver/internal/server"
	"audioreceiver/internal/serverutil"
	"audioreceiver/internal/session"
	"audioreceiver/internal/sessionadmin"
	"audioreceiver/internal/uploadqueue"
)

const metricsSampleInterval = 5 * time.Second

func newServeCommand(f *serverFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingest/admin API and the session processing worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(f)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parentCtx context.Context, cfg resolvedConfig) error {
	logger := buildLogger(cfg)
	recorder := metrics.New()

	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildMetadataStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	blobs, err := buildBlobStore(cfg)
	if err != nil {
		return err
	}

	objects, err := buildObjectStore(cfg)
	if err != nil {
		return err
	}

	thresholds := config.NewHolder(config.DefaultThresholds(), cfg.thresholdsFile, logger)
	if err := thresholds.Watch(ctx); err != nil {
		return err
	}

	tools := audiotoolbox.Toolbox{FFmpegPath: cfg.ffmpegPath, FFprobePath: cfg.ffprobePath, Logger: logger}

	queue := uploadqueue.New(uploadqueue.Config{
		Workers:       cfg.uploadWorkers,
		RetryDelay:    cfg.uploadRetryDelay,
		MaxRetries:    cfg.uploadMaxRetries,
		QueueDepth:    cfg.uploadQueueDepth,
		DeadLetterDir: cfg.uploadDeadLetterDir,
	}, objects, store, logger)
	queue.Start()

	pipelineConfig := thresholds.Get().Apply(channelpipeline.DefaultConfig())
	pipelineDeps := channelpipeline.Deps{Store: store, Blobs: blobs, Objects: objects, Tools: tools, Logger: logger}

	processor := session.NewProcessor(session.ProcessorConfig{
		Store:          store,
		Blobs:          blobs,
		Objects:        objects,
		Tools:          tools,
		Logger:         logger,
		PipelineConfig: pipelineConfig,
		MaxRetries:     3,
	})

	manager := session.New(store, processor, session.Config{
		TimeoutCheckInterval: cfg.sessionTimeoutCheckInterval,
		IngestTimeout:        cfg.sessionIngestTimeout,
	}, logger)
	manager.Start(ctx)

	deleter := sessionadmin.NewDeleter(store, blobs, objects, pipelineConfig, logger)
	retentionPurger := sessionadmin.NewRetentionPurger(deleter, store, cfg.sessionRetention, logger)
	stopPurgeWorker := startSessionPurgeWorker(ctx, logger, retentionPurger, cfg.sessionPurgeInterval)

	stopMetricsSampler := startMetricsSampler(ctx, recorder, queue, manager)

	ingestHandler := ingestapi.New(store, blobs, queue, objects, recorder, logger, ingestapi.Config{})
	sessionHandlers := &adminapi.SessionHandlers{Manager: manager, Deleter: deleter, Store: store, Logger: logger}
	regenerateHandlers := &adminapi.RegenerateHandlers{Regenerator: processor, Logger: logger}
	pipelineRunHandlers := &adminapi.PipelineRunHandlers{Store: store, Deps: pipelineDeps, Config: pipelineConfig, Logger: logger}
	uploadQueueHandlers := &adminapi.UploadQueueHandlers{Queue: queue, Logger: logger}

	handler, err := server.New(server.Config{
		Ingest:       ingestHandler,
		Sessions:     sessionHandlers,
		Regenerate:   regenerateHandlers,
		PipelineRuns: pipelineRunHandlers,
		UploadQueue:  uploadQueueHandlers,
		Metrics:      recorder,
		Logger:       logger,
		CORS:         server.CORSConfig{AdminOrigins: cfg.adminOrigins, ViewerOrigins: cfg.viewerOrigins},
		RateLimit:    server.RateLimitConfig{RequestLimit: cfg.ingestRateLimit, WindowLength: cfg.ingestRateWindow},
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    cfg.listenAddr,
		Handler: handler,
	}

	logger.Info("starting audio receiver", "listen_addr", cfg.listenAddr, "metadata_driver", cfg.metadataDriver)
	runErr := serverutil.Run(ctx, serverutil.Config{
		Server:          httpServer,
		TLS:             serverutil.TLSConfig{CertFile: cfg.tlsCertFile, KeyFile: cfg.tlsKeyFile},
		ShutdownTimeout: cfg.shutdownTimeout,
	})

	logger.Info("shutting down")
	stopMetricsSampler()
	stopPurgeWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("session manager shutdown error", "error", err)
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Error("upload queue shutdown error", "error", err)
	}

	return runErr
}

// startMetricsSampler polls queue depth, dead-letter count, and the
// processing flag onto their gauges. These aren't event-driven counters
// like the rest of Recorder's instruments, so a light periodic sampler is
// simpler than threading gauge updates through every call site.
func startMetricsSampler(ctx context.Context, recorder *metrics.Recorder, queue *uploadqueue.Queue, manager *session.Manager) func() {
	sampleCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(metricsSampleInterval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-sampleCtx.Done():
				close(done)
				return
			case <-ticker.C:
				recorder.SetUploadQueueDepth(queue.Depth())
				recorder.SetUploadQueueDeadLetterCount(queue.DeadLetterCount())
				recorder.SetSessionProcessing(manager.Processing())
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
