package stubserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotforce/transfer/internal/stubserver"
	"github.com/pilotforce/transfer/pkg/transfer"
	"github.com/pilotforce/transfer/pkg/transfer/api"
	"github.com/pilotforce/transfer/pkg/transfer/config"
)

const jwtSecret = "test-jwt-secret"

func startServer(t *testing.T, opts ...stubserver.Option) (*stubserver.Server, *httptest.Server) {
	t.Helper()
	opts = append([]stubserver.Option{stubserver.WithJWTSecret(jwtSecret)}, opts...)
	s := stubserver.NewServer("test-signing-secret", opts...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	s.SetBaseURL(srv.URL)
	return s, srv
}

func devToken(t *testing.T, baseURL string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": "operator"})
	resp, err := http.Post(baseURL+"/auth/token", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tok struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	require.NotEmpty(t, tok.Token)
	return tok.Token
}

func pipelineConfig(t *testing.T, baseURL, token string) *config.Config {
	t.Helper()
	cfg, err := config.Load(
		config.WithAPIBaseURL(baseURL),
		config.WithToken(token),
		config.WithRouting(256, 100<<20, false),
		config.WithChunkSize(100),
		config.WithRetry(1, time.Millisecond, 2*time.Millisecond),
		config.WithPacing(0, 0, 0),
	)
	require.NoError(t, err)
	return cfg
}

func TestAdminRoutesRequireToken(t *testing.T) {
	_, srv := startServer(t)

	resp, err := http.Get(srv.URL + "/admin/bookings/bk1/resources")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	s, srv := startServer(t)
	cfg := pipelineConfig(t, srv.URL, devToken(t, srv.URL))

	up, err := cfg.BuildUploader()
	require.NoError(t, err)

	small := []byte("small proxied payload")
	large := bytes.Repeat([]byte("0123456789abcdef"), 64) // 1024 bytes, chunked

	res, err := up.Upload(context.Background(), "bk1", []transfer.FileInput{
		transfer.NewFileInput("notes.txt", small, "text/plain"),
		transfer.NewFileInput("ortho.tif", large, "image/tiff"),
	})
	require.NoError(t, err)
	require.Empty(t, res.Failed)
	require.Len(t, res.Succeeded, 2)
	assert.True(t, res.StatusUpdated)
	assert.Equal(t, api.BookingStatusCompleted, s.BookingStatus("bk1"))

	backend := cfg.BuildBackend()
	resources, err := backend.ListResources(context.Background(), "bk1")
	require.NoError(t, err)

	var smallID, largeID string
	for _, r := range resources {
		switch r.FileName {
		case "notes.txt":
			smallID = r.ResourceID
		case "ortho.tif":
			largeID = r.ResourceID
			assert.True(t, r.IsChunked)
			assert.Equal(t, 11, r.TotalChunks, "1024 bytes in chunks of 100")
		}
	}
	require.NotEmpty(t, smallID)
	require.NotEmpty(t, largeID)

	down, err := cfg.BuildDownloader()
	require.NoError(t, err)

	got, err := down.Download(context.Background(), "bk1", smallID, nil)
	require.NoError(t, err)
	assert.Equal(t, small, got.Data)

	got, err = down.Download(context.Background(), "bk1", largeID, nil)
	require.NoError(t, err)
	assert.Equal(t, large, got.Data)
	assert.Equal(t, "ortho.tif", got.FileName)
}

func TestDirectUploadThroughSignedStorage(t *testing.T) {
	_, srv := startServer(t)
	token := devToken(t, srv.URL)

	cfg, err := config.Load(
		config.WithAPIBaseURL(srv.URL),
		config.WithToken(token),
		config.WithRouting(4<<20, 100<<20, true), // small files go direct
		config.WithPacing(0, 0, 0),
	)
	require.NoError(t, err)

	up, err := cfg.BuildUploader()
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("px"), 512)
	res, err := up.Upload(context.Background(), "bk2",
		[]transfer.FileInput{transfer.NewFileInput("photo.jpg", payload, "image/jpeg")})
	require.NoError(t, err)
	require.Equal(t, []string{"photo.jpg"}, res.Succeeded)

	backend := cfg.BuildBackend()
	resources, err := backend.ListResources(context.Background(), "bk2")
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, api.ResourceStatusComplete, resources[0].Status)

	down, err := cfg.BuildDownloader()
	require.NoError(t, err)
	got, err := down.Download(context.Background(), "bk2", resources[0].ResourceID, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Data)
}

func TestChunkedDownloadWithoutChunkEndpoint(t *testing.T) {
	_, srv := startServer(t, stubserver.WithoutChunkListing())
	cfg := pipelineConfig(t, srv.URL, devToken(t, srv.URL))

	up, err := cfg.BuildUploader()
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("survey"), 100) // 600 bytes, chunked
	res, err := up.Upload(context.Background(), "bk3",
		[]transfer.FileInput{transfer.NewFileInput("scan.bin", payload, "application/octet-stream")})
	require.NoError(t, err)
	require.Len(t, res.Succeeded, 1)

	backend := cfg.BuildBackend()
	resources, err := backend.ListResources(context.Background(), "bk3")
	require.NoError(t, err)

	var parentID string
	for _, r := range resources {
		if r.FileName == "scan.bin" {
			parentID = r.ResourceID
		}
	}
	require.NotEmpty(t, parentID)

	// The downloader must fall back to scanning the resource list.
	down, err := cfg.BuildDownloader()
	require.NoError(t, err)
	got, err := down.Download(context.Background(), "bk3", parentID, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Data)
}

func TestStorageRoutesRejectBadSignatures(t *testing.T) {
	_, srv := startServer(t)

	resp, err := http.Get(srv.URL + "/storage/bk1/some-key")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/storage/bk1/some-key?signature=forged&expires=9999999999", bytes.NewReader([]byte("x")))
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
}

func TestResourceNotFound(t *testing.T) {
	_, srv := startServer(t)
	cfg := pipelineConfig(t, srv.URL, devToken(t, srv.URL))

	down, err := cfg.BuildDownloader()
	require.NoError(t, err)

	_, err = down.Download(context.Background(), "bk1", "file_0_nothere", nil)
	assert.ErrorIs(t, err, transfer.ErrResourceNotFound)
}
