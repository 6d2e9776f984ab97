package main

import (
	"fmt"
	"time"

	"audioreceiver/internal/objectstore"
)

// resolvedConfig is serverFlags after env-variable overrides and defaults
// have been applied; every subcommand builds one before wiring
// collaborators.
type resolvedConfig struct {
	metadataDriver string
	postgresDSN    string
	sqlitePath     string

	blobRoot string

	objectStore objectstore.Config

	thresholdsFile string

	adminOrigins  []string
	viewerOrigins []string

	listenAddr      string
	tlsCertFile     string
	tlsKeyFile      string
	shutdownTimeout time.Duration

	ingestRateLimit  int
	ingestRateWindow time.Duration

	sessionTimeoutCheckInterval time.Duration
	sessionIngestTimeout        time.Duration
	sessionRetention            time.Duration
	sessionPurgeInterval        time.Duration

	uploadWorkers       int
	uploadRetryDelay    time.Duration
	uploadMaxRetries    int
	uploadQueueDepth    int
	uploadDeadLetterDir string

	ffmpegPath  string
	ffprobePath string

	logLevel  string
	logFormat string
}

func resolveConfig(f *serverFlags) (resolvedConfig, error) {
	cfg := resolvedConfig{
		metadataDriver: resolveString(f.metadataDriver, "AUDIORECEIVER_METADATA_DRIVER", "sqlite"),
		postgresDSN:    resolveString(f.postgresDSN, "AUDIORECEIVER_POSTGRES_DSN", ""),
		sqlitePath:     resolveString(f.sqlitePath, "AUDIORECEIVER_SQLITE_PATH", "./data/metadata.db"),

		blobRoot: resolveString(f.blobRoot, "AUDIORECEIVER_BLOB_ROOT", "./data/blobs"),

		thresholdsFile: resolveString(f.thresholdsFile, "AUDIORECEIVER_THRESHOLDS_FILE", ""),

		adminOrigins:  splitAndTrim(resolveString(f.adminOrigins, "AUDIORECEIVER_ADMIN_ORIGINS", "")),
		viewerOrigins: splitAndTrim(resolveString(f.viewerOrigins, "AUDIORECEIVER_VIEWER_ORIGINS", "")),

		listenAddr:      resolveString(f.listenAddr, "AUDIORECEIVER_LISTEN_ADDR", ":8080"),
		tlsCertFile:     resolveString(f.tlsCertFile, "AUDIORECEIVER_TLS_CERT_FILE", ""),
		tlsKeyFile:      resolveString(f.tlsKeyFile, "AUDIORECEIVER_TLS_KEY_FILE", ""),
		shutdownTimeout: resolveDuration(f.shutdownTimeout, "AUDIORECEIVER_SHUTDOWN_TIMEOUT", 10*time.Second),

		ingestRateLimit:  resolveInt(f.ingestRateLimit, "AUDIORECEIVER_INGEST_RATE_LIMIT", 120),
		ingestRateWindow: resolveDuration(f.ingestRateWindow, "AUDIORECEIVER_INGEST_RATE_WINDOW", time.Minute),

		sessionTimeoutCheckInterval: resolveDuration(f.sessionTimeoutCheckInterval, "AUDIORECEIVER_SESSION_TIMEOUT_CHECK_INTERVAL", 60*time.Second),
		sessionIngestTimeout:        resolveDuration(f.sessionIngestTimeout, "AUDIORECEIVER_SESSION_INGEST_TIMEOUT", 10*time.Minute),
		sessionRetention:            resolveDuration(f.sessionRetention, "AUDIORECEIVER_SESSION_RETENTION", 30*24*time.Hour),
		sessionPurgeInterval:        resolveDuration(f.sessionPurgeInterval, "AUDIORECEIVER_SESSION_PURGE_INTERVAL", time.Hour),

		uploadWorkers:       resolveInt(f.uploadWorkers, "AUDIORECEIVER_UPLOAD_WORKERS", 2),
		uploadRetryDelay:    resolveDuration(f.uploadRetryDelay, "AUDIORECEIVER_UPLOAD_RETRY_DELAY", 5*time.Second),
		uploadMaxRetries:    resolveInt(f.uploadMaxRetries, "AUDIORECEIVER_UPLOAD_MAX_RETRIES", 5),
		uploadQueueDepth:    resolveInt(f.uploadQueueDepth, "AUDIORECEIVER_UPLOAD_QUEUE_DEPTH", 256),
		uploadDeadLetterDir: resolveString(f.uploadDeadLetterDir, "AUDIORECEIVER_UPLOAD_DEAD_LETTER_DIR", "./data/dead-letter"),

		ffmpegPath:  resolveString(f.ffmpegPath, "AUDIORECEIVER_FFMPEG_PATH", "ffmpeg"),
		ffprobePath: resolveString(f.ffprobePath, "AUDIORECEIVER_FFPROBE_PATH", "ffprobe"),

		logLevel:  resolveString(f.logLevel, "AUDIORECEIVER_LOG_LEVEL", "info"),
		logFormat: resolveString(f.logFormat, "AUDIORECEIVER_LOG_FORMAT", "json"),
	}

	cfg.objectStore = objectstore.Config{
		Endpoint:       resolveString(f.s3Endpoint, "AUDIORECEIVER_S3_ENDPOINT", ""),
		Region:         resolveString(f.s3Region, "AUDIORECEIVER_S3_REGION", ""),
		AccessKey:      resolveString(f.s3AccessKey, "AUDIORECEIVER_S3_ACCESS_KEY", ""),
		SecretKey:      resolveString(f.s3SecretKey, "AUDIORECEIVER_S3_SECRET_KEY", ""),
		Bucket:         resolveString(f.s3Bucket, "AUDIORECEIVER_S3_BUCKET", ""),
		UseSSL:         resolveBool(f.s3UseSSL, "AUDIORECEIVER_S3_USE_SSL", false),
		Prefix:         resolveString(f.s3Prefix, "AUDIORECEIVER_S3_PREFIX", ""),
		PublicEndpoint: resolveString(f.s3PublicEndpoint, "AUDIORECEIVER_S3_PUBLIC_ENDPOINT", ""),
	}

	if cfg.metadataDriver != "postgres" && cfg.metadataDriver != "sqlite" {
		return resolvedConfig{}, fmt.Errorf("metadata-driver must be postgres or sqlite, got %q", cfg.metadataDriver)
	}
	if cfg.metadataDriver == "postgres" && cfg.postgresDSN == "" {
		return resolvedConfig{}, fmt.Errorf("postgres-dsn is required when metadata-driver=postgres")
	}

	return cfg, nil
}
