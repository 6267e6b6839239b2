package transfer_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/pilotforce/transfer/pkg/transfer/api"
	"github.com/pilotforce/transfer/pkg/transfer/presigned"
)

// fakeBackend is an in-memory BackendAPI double. Failure injection is per
// method; failN values count down so a method can fail transiently.
type fakeBackend struct {
	mu sync.Mutex

	presignCalls   int
	proxiedCalls   int
	createCalls    int
	chunkCalls     []api.ChunkUploadRequest
	statusCalls    []string // resource ids marked complete
	bookingUpdates []string // statuses posted to the booking

	resources  []api.Resource
	chunkParts map[string][]api.ChunkPart

	failPresignN int
	failProxiedN int
	failChunkN   int
	failBooking  bool
	chunksErr    error
	resourcesErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{chunkParts: map[string][]api.ChunkPart{}}
}

func (f *fakeBackend) RequestUploadURL(ctx context.Context, bookingID string, req api.PresignedUploadRequest) (*api.PresignedUploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presignCalls++
	if f.failPresignN > 0 {
		f.failPresignN--
		return nil, &api.APIError{StatusCode: http.StatusBadGateway}
	}
	return &api.PresignedUploadResponse{
		UploadURL:  "https://storage.test/" + req.FileName,
		ResourceID: "srv_" + req.FileName,
	}, nil
}

func (f *fakeBackend) UploadProxied(ctx context.Context, bookingID string, req api.ProxiedUploadRequest) (*api.ProxiedUploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proxiedCalls++
	if f.failProxiedN > 0 {
		f.failProxiedN--
		return nil, &api.APIError{StatusCode: http.StatusInternalServerError}
	}
	return &api.ProxiedUploadResponse{Success: true, ResourceID: req.ResourceID}, nil
}

func (f *fakeBackend) CreateResourceRecord(ctx context.Context, bookingID string, req api.CreateResourceRecordRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	return nil
}

func (f *fakeBackend) UploadChunk(ctx context.Context, bookingID string, req api.ChunkUploadRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failChunkN > 0 {
		f.failChunkN--
		return &api.APIError{StatusCode: http.StatusInternalServerError}
	}
	f.chunkCalls = append(f.chunkCalls, req)
	return nil
}

func (f *fakeBackend) UpdateResourceStatus(ctx context.Context, bookingID, resourceID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, resourceID)
	return nil
}

func (f *fakeBackend) UpdateBookingStatus(ctx context.Context, bookingID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBooking {
		return &api.APIError{StatusCode: http.StatusInternalServerError}
	}
	f.bookingUpdates = append(f.bookingUpdates, status)
	return nil
}

func (f *fakeBackend) ListResources(ctx context.Context, bookingID string) ([]api.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resourcesErr != nil {
		return nil, f.resourcesErr
	}
	return f.resources, nil
}

func (f *fakeBackend) GetResource(ctx context.Context, bookingID, resourceID string) (*api.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.resources {
		if f.resources[i].ResourceID == resourceID {
			return &f.resources[i], nil
		}
	}
	return nil, &api.APIError{StatusCode: http.StatusNotFound}
}

func (f *fakeBackend) ListChunks(ctx context.Context, bookingID, resourceID string) ([]api.ChunkPart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunksErr != nil {
		return nil, f.chunksErr
	}
	return f.chunkParts[resourceID], nil
}

// fakeStorage is an in-memory StorageClient double keyed by URL.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	failN   int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) Put(ctx context.Context, url string, data io.Reader, size int64, contentType string, onProgress presigned.ProgressFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.failN > 0 {
		f.failN--
		return &presigned.StatusError{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"}
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[url] = buf
	if onProgress != nil {
		onProgress(int64(len(buf)))
	}
	return nil
}

func (f *fakeStorage) Get(ctx context.Context, url string, onProgress presigned.ProgressFunc) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[url]
	if !ok {
		return nil, fmt.Errorf("no object at %s", url)
	}
	if onProgress != nil {
		onProgress(int64(len(data)))
	}
	return data, nil
}
