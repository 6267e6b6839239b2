package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// WithEnv applies environment variable overrides using the provided
// prefix (e.g. "PILOTFORCE" reads PILOTFORCE_API_URL).
//
// Recognized variables:
//
//	API_URL          - Booking backend origin (required unless set
//	                   programmatically)
//	API_TOKEN        - Fixed bearer token
//	PROXY_THRESHOLD  - Single-request payload ceiling in bytes
//	MAX_FILE_SIZE    - Per-file ceiling in bytes
//	PREFER_DIRECT    - "true" to use presigned uploads for small files
//	CHUNK_SIZE       - Chunk size in bytes
//	MAX_RETRIES      - Retry attempts per file
//	RETRY_DELAY      - Initial backoff delay (Go duration, e.g. "3s")
//	RETRY_DELAY_MAX  - Backoff cap (Go duration)
//	DOWNLOAD_DIR     - Where retrieved files are written
func WithEnv(prefix string) Option {
	return func(c *Config) error {
		if v, ok := lookupEnv(prefix, "API_URL"); ok && v != "" {
			c.APIBaseURL = v
		}
		if v, ok := lookupEnv(prefix, "API_TOKEN"); ok && v != "" {
			c.Token = v
		}

		if err := applySizeEnv(prefix, "PROXY_THRESHOLD", &c.ProxyThreshold); err != nil {
			return err
		}
		if err := applySizeEnv(prefix, "MAX_FILE_SIZE", &c.MaxFileSize); err != nil {
			return err
		}

		if v, ok := lookupEnv(prefix, "PREFER_DIRECT"); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid PREFER_DIRECT value %q: %w", v, err)
			}
			c.PreferDirect = b
		}

		if v, ok := lookupEnv(prefix, "CHUNK_SIZE"); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid CHUNK_SIZE value %q", v)
			}
			c.ChunkSize = n
		}

		if v, ok := lookupEnv(prefix, "MAX_RETRIES"); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid MAX_RETRIES value %q", v)
			}
			c.MaxRetries = n
		}

		if err := applyDurationEnv(prefix, "RETRY_DELAY", &c.InitialDelay); err != nil {
			return err
		}
		if err := applyDurationEnv(prefix, "RETRY_DELAY_MAX", &c.MaxDelay); err != nil {
			return err
		}

		if v, ok := lookupEnv(prefix, "DOWNLOAD_DIR"); ok && v != "" {
			c.DownloadDir = v
		}

		return nil
	}
}

func applySizeEnv(prefix, name string, dst *int64) error {
	v, ok := lookupEnv(prefix, name)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid %s value %q", name, v)
	}
	*dst = n
	return nil
}

func applyDurationEnv(prefix, name string, dst *time.Duration) error {
	v, ok := lookupEnv(prefix, name)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid %s value %q", name, v)
	}
	*dst = d
	return nil
}

func lookupEnv(prefix, name string) (string, bool) {
	if prefix != "" {
		name = prefix + "_" + name
	}
	return os.LookupEnv(name)
}
