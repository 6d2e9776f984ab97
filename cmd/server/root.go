// Command server runs the multi-channel audio ingest receiver: the HTTP
// ingest/admin API, the session lifecycle manager, and the background
// upload queue, backed by a Postgres or SQLite metadata store and an
// optional S3-compatible object store.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// serverFlags holds every flag the subcommands share, resolved against
// their environment-variable overrides in resolveConfig.
type serverFlags struct {
	metadataDriver string
	postgresDSN    string
	sqlitePath     string

	blobRoot string

	s3Endpoint       string
	s3Region         string
	s3AccessKey      string
	s3SecretKey      string
	s3Bucket         string
	s3PublicEndpoint string
	s3Prefix         string
	s3UseSSL         bool

	thresholdsFile string

	adminOrigins  string
	viewerOrigins string

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

func newRootCommand() *cobra.Command {
	flags := &serverFlags{}

	root := &cobra.Command{
		Use:           "server",
		Short:         "Run the multi-channel audio ingest receiver",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	registerSharedFlags(root, flags)

	root.AddCommand(newServeCommand(flags))
	root.AddCommand(newMigrateCommand(flags))
	root.AddCommand(newRetryFailedCommand(flags))

	return root
}

func registerSharedFlags(cmd *cobra.Command, f *serverFlags) {
	pf := cmd.PersistentFlags()

	pf.StringVar(&f.metadataDriver, "metadata-driver", "", "metadata store driver: postgres or sqlite (env AUDIORECEIVER_METADATA_DRIVER, default sqlite)")
	pf.StringVar(&f.postgresDSN, "postgres-dsn", "", "Postgres connection string (env AUDIORECEIVER_POSTGRES_DSN)")
	pf.StringVar(&f.sqlitePath, "sqlite-path", "", "SQLite database file path (env AUDIORECEIVER_SQLITE_PATH, default ./data/metadata.db)")

	pf.StringVar(&f.blobRoot, "blob-root", "", "local blob storage root (env AUDIORECEIVER_BLOB_ROOT, default ./data/blobs)")

	pf.StringVar(&f.s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint; blank disables object-store replication (env AUDIORECEIVER_S3_ENDPOINT)")
	pf.StringVar(&f.s3Region, "s3-region", "", "S3 region (env AUDIORECEIVER_S3_REGION)")
	pf.StringVar(&f.s3AccessKey, "s3-access-key", "", "S3 access key (env AUDIORECEIVER_S3_ACCESS_KEY)")
	pf.StringVar(&f.s3SecretKey, "s3-secret-key", "", "S3 secret key (env AUDIORECEIVER_S3_SECRET_KEY)")
	pf.StringVar(&f.s3Bucket, "s3-bucket", "", "S3 bucket name (env AUDIORECEIVER_S3_BUCKET)")
	pf.StringVar(&f.s3PublicEndpoint, "s3-public-endpoint", "", "public URL prefix for uploaded objects (env AUDIORECEIVER_S3_PUBLIC_ENDPOINT)")
	pf.StringVar(&f.s3Prefix, "s3-prefix", "", "key prefix applied to every object-store write (env AUDIORECEIVER_S3_PREFIX)")
	pf.BoolVar(&f.s3UseSSL, "s3-use-ssl", false, "use HTTPS against the S3 endpoint (env AUDIORECEIVER_S3_USE_SSL)")

	pf.StringVar(&f.thresholdsFile, "thresholds-file", "", "YAML file of audio thresholds, applied at startup (env AUDIORECEIVER_THRESHOLDS_FILE)")

	pf.StringVar(&f.adminOrigins, "admin-origins", "", "comma-separated admin CORS origins (env AUDIORECEIVER_ADMIN_ORIGINS)")
	pf.StringVar(&f.viewerOrigins, "viewer-origins", "", "comma-separated viewer CORS origins (env AUDIORECEIVER_VIEWER_ORIGINS)")

	pf.StringVar(&f.listenAddr, "listen-addr", "", "HTTP listen address (env AUDIORECEIVER_LISTEN_ADDR, default :8080)")
	pf.StringVar(&f.tlsCertFile, "tls-cert-file", "", "TLS certificate file; enables HTTPS alongside tls-key-file (env AUDIORECEIVER_TLS_CERT_FILE)")
	pf.StringVar(&f.tlsKeyFile, "tls-key-file", "", "TLS key file (env AUDIORECEIVER_TLS_KEY_FILE)")
	pf.DurationVar(&f.shutdownTimeout, "shutdown-timeout", 0, "graceful shutdown bound (env AUDIORECEIVER_SHUTDOWN_TIMEOUT, default 10s)")

	pf.IntVar(&f.ingestRateLimit, "ingest-rate-limit", 0, "max /stream requests per client per window (env AUDIORECEIVER_INGEST_RATE_LIMIT, default 120)")
	pf.DurationVar(&f.ingestRateWindow, "ingest-rate-window", 0, "ingest rate limit window (env AUDIORECEIVER_INGEST_RATE_WINDOW, default 1m)")

	pf.DurationVar(&f.sessionTimeoutCheckInterval, "session-timeout-check-interval", 0, "how often stale sessions are swept (env AUDIORECEIVER_SESSION_TIMEOUT_CHECK_INTERVAL, default 60s)")
	pf.DurationVar(&f.sessionIngestTimeout, "session-ingest-timeout", 0, "idle time before a receiving session is auto-completed (env AUDIORECEIVER_SESSION_INGEST_TIMEOUT, default 10m)")
	pf.DurationVar(&f.sessionRetention, "session-retention", 0, "age after which processed/failed sessions are purged (env AUDIORECEIVER_SESSION_RETENTION, default 720h)")
	pf.DurationVar(&f.sessionPurgeInterval, "session-purge-interval", 0, "how often the retention purge sweep runs (env AUDIORECEIVER_SESSION_PURGE_INTERVAL, default 1h)")

	pf.IntVar(&f.uploadWorkers, "upload-workers", 0, "upload queue worker concurrency (env AUDIORECEIVER_UPLOAD_WORKERS, default 2)")
	pf.DurationVar(&f.uploadRetryDelay, "upload-retry-delay", 0, "delay before retrying a failed upload (env AUDIORECEIVER_UPLOAD_RETRY_DELAY, default 5s)")
	pf.IntVar(&f.uploadMaxRetries, "upload-max-retries", 0, "retries before an item is dead-lettered (env AUDIORECEIVER_UPLOAD_MAX_RETRIES, default 5)")
	pf.IntVar(&f.uploadQueueDepth, "upload-queue-depth", 0, "upload queue buffer size (env AUDIORECEIVER_UPLOAD_QUEUE_DEPTH, default 256)")
	pf.StringVar(&f.uploadDeadLetterDir, "upload-dead-letter-dir", "", "dead-letter directory (env AUDIORECEIVER_UPLOAD_DEAD_LETTER_DIR, default ./data/dead-letter)")

	pf.StringVar(&f.ffmpegPath, "ffmpeg-path", "", "ffmpeg binary path (env AUDIORECEIVER_FFMPEG_PATH, default ffmpeg)")
	pf.StringVar(&f.ffprobePath, "ffprobe-path", "", "ffprobe binary path (env AUDIORECEIVER_FFPROBE_PATH, default ffprobe)")

	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error (env AUDIORECEIVER_LOG_LEVEL, default info)")
	pf.StringVar(&f.logFormat, "log-format", "", "log format: json or text (env AUDIORECEIVER_LOG_FORMAT, default json)")
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
