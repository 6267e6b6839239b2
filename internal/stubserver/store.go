package stubserver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pilotforce/transfer/pkg/transfer/api"
)

// BlobStore holds raw object bytes behind presignable URLs. The memory
// implementation serves objects through the server's own signed /storage
// routes; the S3 implementation delegates to real presigned URLs.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	PresignPut(ctx context.Context, key, contentType string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

// memoryBlobStore keeps objects in a map and signs /storage/{key} paths
// with the server's HMAC signer. The base URL is bound after the HTTP
// listener starts.
type memoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	signer  *signer
	baseURL string
}

func newMemoryBlobStore(secret string) *memoryBlobStore {
	return &memoryBlobStore{
		objects: make(map[string][]byte),
		signer:  newSigner([]byte(secret), time.Hour),
	}
}

func (s *memoryBlobStore) setBaseURL(base string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = base
}

func (s *memoryBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memoryBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (s *memoryBlobStore) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	return s.sign("PUT", key)
}

func (s *memoryBlobStore) PresignGet(ctx context.Context, key string) (string, error) {
	return s.sign("GET", key)
}

func (s *memoryBlobStore) sign(method, key string) (string, error) {
	s.mu.RLock()
	base := s.baseURL
	s.mu.RUnlock()

	signed, err := s.signer.signURL(method, "/storage/"+key)
	if err != nil {
		return "", err
	}
	return base + signed, nil
}

// recordStore is the in-memory replacement for the platform's resource
// and booking tables.
type recordStore struct {
	mu        sync.Mutex
	resources map[string][]*api.Resource // keyed by booking id
	blobKeys  map[string]string          // resource id -> blob key
	bookings  map[string]string          // booking id -> status
}

func newRecordStore() *recordStore {
	return &recordStore{
		resources: make(map[string][]*api.Resource),
		blobKeys:  make(map[string]string),
		bookings:  make(map[string]string),
	}
}

func (s *recordStore) add(bookingID string, r *api.Resource, blobKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.BookingID = bookingID
	r.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	s.resources[bookingID] = append(s.resources[bookingID], r)
	if blobKey != "" {
		s.blobKeys[r.ResourceID] = blobKey
	}
}

func (s *recordStore) get(bookingID, resourceID string) (*api.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resources[bookingID] {
		if r.ResourceID == resourceID {
			return r, true
		}
	}
	return nil, false
}

func (s *recordStore) list(bookingID string) []*api.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*api.Resource(nil), s.resources[bookingID]...)
}

func (s *recordStore) blobKey(resourceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.blobKeys[resourceID]
	return key, ok
}

func (s *recordStore) setStatus(bookingID, resourceID, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resources[bookingID] {
		if r.ResourceID == resourceID {
			r.Status = status
			return true
		}
	}
	return false
}

func (s *recordStore) setBookingStatus(bookingID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[bookingID] = status
}

func (s *recordStore) bookingStatus(bookingID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookings[bookingID]
}

// chunkParts collects the part records of a chunked resource, ordered by
// index.
func (s *recordStore) chunkParts(bookingID, parentID string) []*api.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parts []*api.Resource
	for _, r := range s.resources[bookingID] {
		if r.ChunkInfo != nil && r.ChunkInfo.ResourceID == parentID {
			parts = append(parts, r)
		}
	}
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].ChunkInfo.ChunkIndex < parts[j].ChunkInfo.ChunkIndex
	})
	return parts
}
