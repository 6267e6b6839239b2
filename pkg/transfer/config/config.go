// Package config assembles a transfer pipeline from declarative settings:
// defaults, programmatic options and environment overrides, in that
// order. It is the composition root for the CLI and for embedders that
// do not want to wire the clients by hand.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pilotforce/transfer/pkg/transfer"
	"github.com/pilotforce/transfer/pkg/transfer/api"
	"github.com/pilotforce/transfer/pkg/transfer/chunk"
	"github.com/pilotforce/transfer/pkg/transfer/presigned"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		ProxyThreshold: transfer.DefaultProxyThreshold,
		MaxFileSize:    transfer.DefaultMaxFileSize,
		ChunkSize:      chunk.DefaultSize,
		MaxRetries:     transfer.DefaultMaxRetries,
		InitialDelay:   transfer.DefaultInitialDelay,
		MaxDelay:       transfer.DefaultMaxDelay,
		FileGroupSize:  transfer.DefaultFileGroupSize,
		BatchSize:      transfer.DefaultBatchSize,
		BatchDelay:     transfer.DefaultBatchDelay,
		BatchDelayMax:  transfer.DefaultBatchDelayMax,
		GroupDelay:     transfer.DefaultGroupDelay,
		StorageTimeout: 30 * time.Minute,
		DownloadDir:    ".",
	}
}

// Config carries every tunable of the transfer pipeline.
type Config struct {
	// APIBaseURL is the booking backend origin, without a trailing
	// slash.
	APIBaseURL string

	// Token is a fixed bearer token. TokenStore, when set, takes
	// precedence and resolves the token per request.
	Token      string
	TokenStore api.TokenStore

	// Routing
	ProxyThreshold int64
	MaxFileSize    int64
	PreferDirect   bool
	ChunkSize      int

	// Retry
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Batch scheduling
	FileGroupSize int
	BatchSize     int
	BatchDelay    time.Duration
	BatchDelayMax time.Duration
	GroupDelay    time.Duration

	// Storage transfer
	StorageTimeout time.Duration

	// DownloadDir is where retrieved files are written.
	DownloadDir string
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("api base url is required")
	}
	if c.ProxyThreshold <= 0 {
		return errors.New("proxy threshold must be positive")
	}
	if c.MaxFileSize < c.ProxyThreshold {
		return fmt.Errorf("max file size %d is below the proxy threshold %d", c.MaxFileSize, c.ProxyThreshold)
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}
	if int64(c.ChunkSize) > c.ProxyThreshold {
		return fmt.Errorf("chunk size %d exceeds the proxy threshold %d", c.ChunkSize, c.ProxyThreshold)
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	return nil
}

func (c *Config) credentials() api.CredentialProvider {
	if c.TokenStore != nil {
		return &api.StoreCredentials{Store: c.TokenStore}
	}
	if c.Token != "" {
		return api.StaticCredentials(c.Token)
	}
	return nil
}

// BuildBackend creates the backend API client from the configuration.
func (c *Config) BuildBackend(opts ...api.Option) *api.Client {
	if creds := c.credentials(); creds != nil {
		opts = append([]api.Option{api.WithCredentials(creds)}, opts...)
	}
	return api.NewClient(c.APIBaseURL, opts...)
}

// BuildStorage creates the raw storage transfer client.
func (c *Config) BuildStorage() *presigned.Client {
	return presigned.NewClient(presigned.WithTimeout(c.StorageTimeout))
}

// BuildUploader wires a ready-to-use upload orchestrator.
func (c *Config) BuildUploader(opts ...transfer.UploaderOption) (*transfer.Uploader, error) {
	base := []transfer.UploaderOption{
		transfer.WithRouter(transfer.NewRouter(c.ProxyThreshold, c.MaxFileSize, c.PreferDirect)),
		transfer.WithBackoff(transfer.BackoffPolicy{
			MaxRetries:   c.MaxRetries,
			InitialDelay: c.InitialDelay,
			MaxDelay:     c.MaxDelay,
		}),
		transfer.WithChunkSize(c.ChunkSize),
		transfer.WithBatching(c.FileGroupSize, c.BatchSize),
		transfer.WithDelays(c.BatchDelay, c.BatchDelayMax, c.GroupDelay),
	}
	return transfer.NewUploader(c.BuildBackend(), c.BuildStorage(), append(base, opts...)...)
}

// BuildDownloader wires a ready-to-use resource downloader.
func (c *Config) BuildDownloader(opts ...transfer.DownloaderOption) (*transfer.Downloader, error) {
	return transfer.NewDownloader(c.BuildBackend(), c.BuildStorage(), opts...)
}
