package transfer_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotforce/transfer/pkg/transfer"
	"github.com/pilotforce/transfer/pkg/transfer/api"
	"github.com/pilotforce/transfer/pkg/transfer/chunk"
	"github.com/pilotforce/transfer/pkg/transfer/exif"
)

// newTestUploader wires an uploader with zero scheduling delays and
// microsecond backoff so failure paths run instantly.
func newTestUploader(t *testing.T, backend *fakeBackend, storage *fakeStorage, opts ...transfer.UploaderOption) *transfer.Uploader {
	t.Helper()
	base := []transfer.UploaderOption{
		transfer.WithDelays(0, 0, 0),
		transfer.WithBackoff(fastBackoff(2)),
	}
	u, err := transfer.NewUploader(backend, storage, append(base, opts...)...)
	require.NoError(t, err)
	return u
}

func TestNewUploaderRequiresClients(t *testing.T) {
	_, err := transfer.NewUploader(nil, newFakeStorage())
	assert.Error(t, err)

	_, err = transfer.NewUploader(newFakeBackend(), nil)
	assert.Error(t, err)
}

func TestUploadEmptyBatch(t *testing.T) {
	u := newTestUploader(t, newFakeBackend(), newFakeStorage())

	_, err := u.Upload(context.Background(), "bk1", nil)
	assert.ErrorIs(t, err, transfer.ErrEmptyBatch)
}

func TestUploadOversizeRejectedBeforeNetwork(t *testing.T) {
	backend := newFakeBackend()
	storage := newFakeStorage()
	u := newTestUploader(t, backend, storage)

	files := []transfer.FileInput{
		{Name: "ok.jpg", ContentType: "image/jpeg", Size: 1024, Data: make([]byte, 1024)},
		{Name: "huge.mp4", ContentType: "video/mp4", Size: 200 << 20},
	}

	_, err := u.Upload(context.Background(), "bk1", files)

	var oversize *transfer.OversizeError
	require.True(t, errors.As(err, &oversize))
	assert.Equal(t, []string{"huge.mp4"}, oversize.Files)

	// Nothing reached the backend or storage for any file in the batch.
	assert.Zero(t, backend.presignCalls)
	assert.Zero(t, backend.proxiedCalls)
	assert.Zero(t, backend.createCalls)
	assert.Zero(t, storage.puts)
}

func TestUploadDirectSmallImage(t *testing.T) {
	backend := newFakeBackend()
	storage := newFakeStorage()

	meta := &exif.Metadata{Latitude: "51.501364", Longitude: "-0.141890"}
	u := newTestUploader(t, backend, storage,
		transfer.WithRouter(transfer.NewRouter(0, 0, true)),
		transfer.WithExtractor(func(data []byte, contentType string) *exif.Metadata { return meta }),
	)

	payload := bytes.Repeat([]byte("jpeg"), 256)
	res, err := u.Upload(context.Background(), "bk1",
		[]transfer.FileInput{transfer.NewFileInput("photo.jpg", payload, "image/jpeg")})
	require.NoError(t, err)

	assert.Equal(t, []string{"photo.jpg"}, res.Succeeded)
	assert.Empty(t, res.Failed)
	assert.NoError(t, res.FailedError())
	assert.True(t, res.StatusUpdated)

	assert.Equal(t, 1, backend.presignCalls)
	assert.Equal(t, payload, storage.objects["https://storage.test/photo.jpg"])
	// Presign response id replaces the client-generated one downstream.
	assert.Equal(t, []string{"srv_photo.jpg"}, backend.statusCalls)
	assert.Equal(t, []string{api.BookingStatusCompleted}, backend.bookingUpdates)
}

func TestUploadProxiedDefaultRoute(t *testing.T) {
	backend := newFakeBackend()
	u := newTestUploader(t, backend, newFakeStorage())

	res, err := u.Upload(context.Background(), "bk1",
		[]transfer.FileInput{transfer.NewFileInput("report.pdf", []byte("%PDF-1.4"), "")})
	require.NoError(t, err)

	assert.Equal(t, []string{"report.pdf"}, res.Succeeded)
	assert.Equal(t, 1, backend.proxiedCalls)
	assert.Zero(t, backend.presignCalls)
}

func TestUploadChunkedSequential(t *testing.T) {
	backend := newFakeBackend()
	u := newTestUploader(t, backend, newFakeStorage(),
		transfer.WithRouter(transfer.NewRouter(100, 0, false)),
		transfer.WithChunkSize(64),
	)

	payload := bytes.Repeat([]byte{0xAB}, 200) // 4 chunks of 64,64,64,8
	res, err := u.Upload(context.Background(), "bk1",
		[]transfer.FileInput{transfer.NewFileInput("ortho.tif", payload, "image/tiff")})
	require.NoError(t, err)
	require.Equal(t, []string{"ortho.tif"}, res.Succeeded)

	assert.Equal(t, 1, backend.createCalls)
	require.Len(t, backend.chunkCalls, 4)
	for i, call := range backend.chunkCalls {
		assert.Equal(t, i, call.ChunkIndex, "chunks must arrive in order")
		assert.Equal(t, 4, call.TotalChunks)
		assert.Equal(t, i == 3, call.IsLastChunk)
	}

	// Reassembling what the backend received restores the original bytes.
	encoded := make([]string, len(backend.chunkCalls))
	for i, call := range backend.chunkCalls {
		encoded[i] = call.Chunk
	}
	rebuilt, err := chunk.ReassembleEncoded(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, rebuilt)

	// The record is flipped from pending to complete once the last chunk
	// has landed.
	require.Len(t, backend.statusCalls, 1)
}

func TestUploadRetriesTransientFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.failProxiedN = 2

	var mu sync.Mutex
	var retrying int
	u := newTestUploader(t, backend, newFakeStorage(),
		transfer.WithProgress(func(task transfer.UploadTask) {
			mu.Lock()
			defer mu.Unlock()
			if task.Status == transfer.TaskRetrying {
				retrying++
			}
		}),
	)

	res, err := u.Upload(context.Background(), "bk1",
		[]transfer.FileInput{transfer.NewFileInput("a.txt", []byte("hello"), "text/plain")})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, res.Succeeded)
	assert.Equal(t, 3, backend.proxiedCalls, "two failures then success")
	assert.Equal(t, 2, retrying)
}

func TestUploadPartialFailureNeverAborts(t *testing.T) {
	backend := newFakeBackend()
	backend.failPresignN = 100 // every presign attempt fails

	u := newTestUploader(t, backend, newFakeStorage(),
		transfer.WithRouter(transfer.NewRouter(10, 0, true)), // >10 bytes chunks, else direct
	)

	res, err := u.Upload(context.Background(), "bk1", []transfer.FileInput{
		transfer.NewFileInput("fails.bin", []byte("tiny"), "application/octet-stream"),
		transfer.NewFileInput("works.bin", bytes.Repeat([]byte("x"), 50), "application/octet-stream"),
	})
	require.NoError(t, err, "per-file failures are reported, not returned")

	assert.Equal(t, []string{"works.bin"}, res.Succeeded)
	assert.Equal(t, []string{"fails.bin"}, res.Failed)

	var failure *transfer.UploadFailureError
	require.True(t, errors.As(res.FailedError(), &failure))
	assert.Equal(t, []string{"fails.bin"}, failure.Files)

	// One success is enough to mark the booking.
	assert.True(t, res.StatusUpdated)
}

func TestUploadAllFailedSkipsBookingUpdate(t *testing.T) {
	backend := newFakeBackend()
	backend.failProxiedN = 100

	u := newTestUploader(t, backend, newFakeStorage())

	res, err := u.Upload(context.Background(), "bk1",
		[]transfer.FileInput{transfer.NewFileInput("a.txt", []byte("x"), "text/plain")})
	require.NoError(t, err)

	assert.Empty(t, res.Succeeded)
	assert.Equal(t, []string{"a.txt"}, res.Failed)
	assert.False(t, res.StatusUpdated)
	assert.Empty(t, backend.bookingUpdates)
}

func TestUploadBookingUpdateFailureIsBestEffort(t *testing.T) {
	backend := newFakeBackend()
	backend.failBooking = true

	u := newTestUploader(t, backend, newFakeStorage())

	res, err := u.Upload(context.Background(), "bk1",
		[]transfer.FileInput{transfer.NewFileInput("a.txt", []byte("x"), "text/plain")})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, res.Succeeded)
	assert.False(t, res.StatusUpdated)
}

func TestUploadProgressMonotonic(t *testing.T) {
	backend := newFakeBackend()

	var mu sync.Mutex
	last := map[string]int{}
	var final transfer.UploadTask
	u := newTestUploader(t, backend, newFakeStorage(),
		transfer.WithRouter(transfer.NewRouter(10, 0, false)),
		transfer.WithChunkSize(16),
		transfer.WithProgress(func(task transfer.UploadTask) {
			mu.Lock()
			defer mu.Unlock()
			assert.GreaterOrEqual(t, task.Progress, last[task.File.Name])
			last[task.File.Name] = task.Progress
			if task.Status.Terminal() {
				final = task
			}
		}),
	)

	_, err := u.Upload(context.Background(), "bk1",
		[]transfer.FileInput{transfer.NewFileInput("big.bin", bytes.Repeat([]byte("z"), 100), "application/octet-stream")})
	require.NoError(t, err)

	assert.Equal(t, transfer.TaskComplete, final.Status)
	assert.Equal(t, 100, final.Progress)
}

func TestUploadManyFilesAllSettle(t *testing.T) {
	backend := newFakeBackend()
	u := newTestUploader(t, backend, newFakeStorage(),
		transfer.WithBatching(5, 2),
	)

	files := make([]transfer.FileInput, 23)
	for i := range files {
		files[i] = transfer.NewFileInput("f"+string(rune('a'+i))+".txt", []byte("data"), "text/plain")
	}

	res, err := u.Upload(context.Background(), "bk1", files)
	require.NoError(t, err)

	assert.Len(t, res.Succeeded, 23)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 23, backend.proxiedCalls)
}
