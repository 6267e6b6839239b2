package config

import (
	"fmt"
	"time"

	"github.com/pilotforce/transfer/pkg/transfer/api"
)

// WithAPIBaseURL sets the booking backend origin.
func WithAPIBaseURL(url string) Option {
	return func(c *Config) error {
		if url == "" {
			return fmt.Errorf("api base url cannot be empty")
		}
		c.APIBaseURL = url
		return nil
	}
}

// WithToken sets a fixed bearer token for authenticated calls.
func WithToken(token string) Option {
	return func(c *Config) error {
		c.Token = token
		return nil
	}
}

// WithTokenStore resolves the bearer token from a store per request,
// following the platform's fixed key order. Takes precedence over
// WithToken.
func WithTokenStore(store api.TokenStore) Option {
	return func(c *Config) error {
		c.TokenStore = store
		return nil
	}
}

// WithRouting sets the size thresholds that pick the upload strategy.
func WithRouting(proxyThreshold, maxFileSize int64, preferDirect bool) Option {
	return func(c *Config) error {
		if proxyThreshold <= 0 {
			return fmt.Errorf("proxy threshold must be positive, got: %d", proxyThreshold)
		}
		if maxFileSize <= 0 {
			return fmt.Errorf("max file size must be positive, got: %d", maxFileSize)
		}
		c.ProxyThreshold = proxyThreshold
		c.MaxFileSize = maxFileSize
		c.PreferDirect = preferDirect
		return nil
	}
}

// WithChunkSize sets the chunk size for proxied chunked uploads.
func WithChunkSize(size int) Option {
	return func(c *Config) error {
		if size <= 0 {
			return fmt.Errorf("chunk size must be positive, got: %d", size)
		}
		c.ChunkSize = size
		return nil
	}
}

// WithRetry sets the per-file retry policy.
func WithRetry(maxRetries int, initialDelay, maxDelay time.Duration) Option {
	return func(c *Config) error {
		if maxRetries < 0 {
			return fmt.Errorf("max retries cannot be negative, got: %d", maxRetries)
		}
		if initialDelay <= 0 || maxDelay < initialDelay {
			return fmt.Errorf("delays must satisfy 0 < initial <= max")
		}
		c.MaxRetries = maxRetries
		c.InitialDelay = initialDelay
		c.MaxDelay = maxDelay
		return nil
	}
}

// WithBatching sets the outer file group size and the concurrent batch
// size.
func WithBatching(groupSize, batchSize int) Option {
	return func(c *Config) error {
		if groupSize <= 0 || batchSize <= 0 {
			return fmt.Errorf("group and batch sizes must be positive")
		}
		if batchSize > groupSize {
			return fmt.Errorf("batch size %d cannot exceed group size %d", batchSize, groupSize)
		}
		c.FileGroupSize = groupSize
		c.BatchSize = batchSize
		return nil
	}
}

// WithPacing sets the backpressure delays between batches and groups.
// Zero values disable the corresponding delay.
func WithPacing(batchDelay, batchDelayMax, groupDelay time.Duration) Option {
	return func(c *Config) error {
		if batchDelay < 0 || batchDelayMax < 0 || groupDelay < 0 {
			return fmt.Errorf("pacing delays cannot be negative")
		}
		c.BatchDelay = batchDelay
		c.BatchDelayMax = batchDelayMax
		c.GroupDelay = groupDelay
		return nil
	}
}

// WithStorageTimeout overrides the per-request timeout for raw storage
// transfers.
func WithStorageTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("storage timeout must be positive")
		}
		c.StorageTimeout = d
		return nil
	}
}

// WithDownloadDir sets where retrieved files are written.
func WithDownloadDir(dir string) Option {
	return func(c *Config) error {
		if dir == "" {
			return fmt.Errorf("download directory cannot be empty")
		}
		c.DownloadDir = dir
		return nil
	}
}
