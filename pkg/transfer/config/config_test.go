package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotforce/transfer/pkg/transfer"
	"github.com/pilotforce/transfer/pkg/transfer/api"
	"github.com/pilotforce/transfer/pkg/transfer/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(config.WithAPIBaseURL("https://api.test"))
	require.NoError(t, err)

	assert.Equal(t, int64(transfer.DefaultProxyThreshold), cfg.ProxyThreshold)
	assert.Equal(t, int64(transfer.DefaultMaxFileSize), cfg.MaxFileSize)
	assert.Equal(t, transfer.DefaultMaxRetries, cfg.MaxRetries)
	assert.False(t, cfg.PreferDirect)
	assert.Equal(t, ".", cfg.DownloadDir)
}

func TestLoadRequiresBaseURL(t *testing.T) {
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api base url")
}

func TestLoadOptionOrdering(t *testing.T) {
	// Later options override earlier ones; nil options are skipped.
	cfg, err := config.Load(
		nil,
		config.WithAPIBaseURL("https://first.test"),
		config.WithAPIBaseURL("https://second.test"),
		config.WithRouting(1<<20, 50<<20, true),
	)
	require.NoError(t, err)

	assert.Equal(t, "https://second.test", cfg.APIBaseURL)
	assert.Equal(t, int64(1<<20), cfg.ProxyThreshold)
	assert.True(t, cfg.PreferDirect)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		opts []config.Option
		want string
	}{
		{
			name: "chunk size above threshold",
			opts: []config.Option{
				config.WithAPIBaseURL("https://api.test"),
				config.WithRouting(1024, 1<<20, false),
				config.WithChunkSize(4096),
			},
			want: "chunk size",
		},
		{
			name: "valid routing accepted",
			opts: []config.Option{
				config.WithAPIBaseURL("https://api.test"),
				config.WithRouting(8<<20, 200<<20, false),
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(tt.opts...)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOptionValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  config.Option
	}{
		{"empty base url", config.WithAPIBaseURL("")},
		{"zero threshold", config.WithRouting(0, 1<<20, false)},
		{"negative retries", config.WithRetry(-1, time.Second, time.Minute)},
		{"max delay below initial", config.WithRetry(3, time.Minute, time.Second)},
		{"batch above group", config.WithBatching(2, 5)},
		{"negative pacing", config.WithPacing(-time.Second, 0, 0)},
		{"zero storage timeout", config.WithStorageTimeout(0)},
		{"empty download dir", config.WithDownloadDir("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(config.WithAPIBaseURL("https://api.test"), tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("PF_API_URL", "https://env.test")
	t.Setenv("PF_API_TOKEN", "envtok")
	t.Setenv("PF_PROXY_THRESHOLD", "2097152")
	t.Setenv("PF_PREFER_DIRECT", "true")
	t.Setenv("PF_MAX_RETRIES", "5")
	t.Setenv("PF_RETRY_DELAY", "1s")
	t.Setenv("PF_RETRY_DELAY_MAX", "10s")
	t.Setenv("PF_CHUNK_SIZE", "1048576")

	cfg, err := config.Load(config.WithEnv("PF"))
	require.NoError(t, err)

	assert.Equal(t, "https://env.test", cfg.APIBaseURL)
	assert.Equal(t, "envtok", cfg.Token)
	assert.Equal(t, int64(2<<20), cfg.ProxyThreshold)
	assert.True(t, cfg.PreferDirect)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
	assert.Equal(t, 1<<20, cfg.ChunkSize)
}

func TestWithEnvRejectsBadValues(t *testing.T) {
	t.Setenv("PF_MAX_RETRIES", "many")

	_, err := config.Load(config.WithAPIBaseURL("https://api.test"), config.WithEnv("PF"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_RETRIES")
}

func TestBuildClients(t *testing.T) {
	cfg, err := config.Load(
		config.WithAPIBaseURL("https://api.test"),
		config.WithTokenStore(api.MapStore{"idToken": "tok"}),
	)
	require.NoError(t, err)

	assert.NotNil(t, cfg.BuildBackend())
	assert.NotNil(t, cfg.BuildStorage())

	up, err := cfg.BuildUploader()
	require.NoError(t, err)
	assert.NotNil(t, up)

	down, err := cfg.BuildDownloader()
	require.NoError(t, err)
	assert.NotNil(t, down)
}
