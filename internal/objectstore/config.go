package objectstore

import "time"

// Config describes an S3-compatible object store endpoint.
type Config struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	Prefix         string
	PublicEndpoint string
	RequestTimeout time.Duration
}

const defaultRequestTimeout = 30 * time.Second

func (cfg Config) requestTimeout() time.Duration {
	if cfg.RequestTimeout <= 0 {
		return defaultRequestTimeout
	}
	return cfg.RequestTimeout
}

// Enabled reports whether enough configuration is present to talk to a real
// endpoint; callers use this to implement the "skipped if object store is
// disabled" branch of the upload steps.
func (cfg Config) Enabled() bool {
	return cfg.Endpoint != "" && cfg.Bucket != ""
}
