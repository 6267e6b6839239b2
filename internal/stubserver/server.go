// Package stubserver is a self-contained booking backend for local
// development and end-to-end testing of the transfer pipeline. It serves
// the admin resource endpoints over an in-memory record store and either
// an in-memory blob store with HMAC-signed URLs or a real S3 bucket.
package stubserver

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/pilotforce/transfer/pkg/transfer"
	"github.com/pilotforce/transfer/pkg/transfer/api"
	"github.com/pilotforce/transfer/pkg/transfer/chunk"
)

// Server implements the booking backend surface the transfer clients
// talk to.
type Server struct {
	records *recordStore
	blobs   BlobStore
	memory  *memoryBlobStore // non-nil when blobs is the in-memory store

	jwtSecret           []byte
	disableChunkListing bool
	logger              *slog.Logger
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithBlobStore replaces the in-memory blob store, e.g. with an
// S3-backed one.
func WithBlobStore(store BlobStore) Option {
	return func(s *Server) {
		s.blobs = store
		s.memory = nil
	}
}

// WithJWTSecret enables bearer authentication on the admin routes.
func WithJWTSecret(secret string) Option {
	return func(s *Server) { s.jwtSecret = []byte(secret) }
}

// WithoutChunkListing removes the dedicated chunk-list endpoint,
// mimicking older deployments where clients discover parts by scanning
// the resource list.
func WithoutChunkListing() Option {
	return func(s *Server) { s.disableChunkListing = true }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a stub backend with an in-memory blob store signed
// by signingSecret.
func NewServer(signingSecret string, opts ...Option) *Server {
	memory := newMemoryBlobStore(signingSecret)
	s := &Server{
		records: newRecordStore(),
		blobs:   memory,
		memory:  memory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "stubserver"))
	return s
}

// SetBaseURL binds the server's public origin, used by the in-memory
// blob store to mint absolute storage URLs. Call it once the listener
// address is known.
func (s *Server) SetBaseURL(base string) {
	if s.memory != nil {
		s.memory.setBaseURL(strings.TrimSuffix(base, "/"))
	}
}

// BookingStatus reports the stored status of a booking.
func (s *Server) BookingStatus(bookingID string) string {
	return s.records.bookingStatus(bookingID)
}

// Handler returns the server's HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/auth/token", s.issueToken)

	r.Route("/admin/bookings/{bookingID}", func(r chi.Router) {
		if len(s.jwtSecret) > 0 {
			r.Use(s.requireAuth)
		}
		r.Post("/presigned-upload", s.presignedUpload)
		r.Post("/resources", s.proxiedUpload)
		r.Get("/resources", s.listResources)
		r.Post("/resource-records", s.createResourceRecord)
		r.Post("/chunk-upload", s.uploadChunk)
		r.Put("/resource-records/{resourceID}", s.updateResourceStatus)
		r.Put("/status", s.updateBookingStatus)
		r.Get("/resources/{resourceID}", s.getResource)
		if !s.disableChunkListing {
			r.Get("/resources/{resourceID}/chunks", s.listChunks)
		}
	})

	if s.memory != nil {
		r.Put("/storage/*", s.storagePut)
		r.Get("/storage/*", s.storageGet)
	}

	return r
}

func (s *Server) presignedUpload(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	var req api.PresignedUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FileName == "" {
		writeError(w, r, http.StatusBadRequest, "fileName is required")
		return
	}

	resourceID := transfer.NewResourceID()
	key := objectKey(bookingID, resourceID, req.FileName)

	uploadURL, err := s.blobs.PresignPut(r.Context(), key, req.ContentType)
	if err != nil {
		s.logger.Error("presign failed", "key", key, "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to presign upload")
		return
	}

	s.records.add(bookingID, &api.Resource{
		ResourceID:  resourceID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Size:        req.FileSize,
		IsImage:     strings.HasPrefix(req.ContentType, "image/"),
		Status:      api.ResourceStatusPending,
		Geolocation: req.Metadata,
	}, key)

	render.JSON(w, r, api.PresignedUploadResponse{
		UploadURL:  uploadURL,
		ResourceID: resourceID,
	})
}

func (s *Server) proxiedUpload(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	var req api.ProxiedUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FileName == "" || req.FileData == "" {
		writeError(w, r, http.StatusBadRequest, "fileName and fileData are required")
		return
	}

	data, err := chunk.Decode(req.FileData)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "fileData is not valid base64")
		return
	}

	resourceID := req.ResourceID
	if resourceID == "" {
		resourceID = transfer.NewResourceID()
	}
	key := objectKey(bookingID, resourceID, req.FileName)

	if err := s.blobs.Put(r.Context(), key, data, req.ContentType); err != nil {
		s.logger.Error("blob store put failed", "key", key, "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to store file")
		return
	}

	s.records.add(bookingID, &api.Resource{
		ResourceID:  resourceID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Size:        int64(len(data)),
		IsImage:     strings.HasPrefix(req.ContentType, "image/"),
		Status:      api.ResourceStatusComplete,
		Geolocation: req.Metadata,
	}, key)

	resourceURL, _ := s.blobs.PresignGet(r.Context(), key)
	render.JSON(w, r, api.ProxiedUploadResponse{
		Success:    true,
		ResourceID: resourceID,
		FileName:   req.FileName,
		URL:        resourceURL,
	})
}

func (s *Server) createResourceRecord(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	var req api.CreateResourceRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResourceID == "" || req.FileName == "" {
		writeError(w, r, http.StatusBadRequest, "resourceId and fileName are required")
		return
	}
	if req.TotalChunks < 1 {
		writeError(w, r, http.StatusBadRequest, "totalChunks must be at least 1")
		return
	}

	status := req.Status
	if status == "" {
		status = api.ResourceStatusPending
	}

	s.records.add(bookingID, &api.Resource{
		ResourceID:       req.ResourceID,
		FileName:         req.FileName,
		OriginalFileName: req.FileName,
		ContentType:      req.ContentType,
		Size:             req.FileSize,
		IsChunked:        true,
		TotalChunks:      req.TotalChunks,
		IsImage:          strings.HasPrefix(req.ContentType, "image/"),
		Status:           status,
		Geolocation:      req.Metadata,
	}, "")

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]any{"resourceId": req.ResourceID})
}

func (s *Server) uploadChunk(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	var req api.ChunkUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResourceID == "" || req.Chunk == "" {
		writeError(w, r, http.StatusBadRequest, "resourceId and chunk are required")
		return
	}
	if req.ChunkIndex < 0 || req.ChunkIndex >= req.TotalChunks {
		writeError(w, r, http.StatusBadRequest, "chunkIndex out of range")
		return
	}

	parent, ok := s.records.get(bookingID, req.ResourceID)
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource record not found")
		return
	}

	data, err := chunk.Decode(req.Chunk)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "chunk is not valid base64")
		return
	}

	partName := chunk.PartFileName(req.ResourceID, req.FileName, req.ChunkIndex)
	key := bookingID + "/" + partName

	if err := s.blobs.Put(r.Context(), key, data, parent.ContentType); err != nil {
		s.logger.Error("blob store put failed", "key", key, "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to store chunk")
		return
	}

	s.records.add(bookingID, &api.Resource{
		ResourceID: req.ResourceID + "_chunk_" + fmt.Sprint(req.ChunkIndex),
		FileName:   partName,
		Size:       int64(len(data)),
		Status:     api.ResourceStatusComplete,
		ChunkInfo: &api.ChunkInfo{
			ResourceID: req.ResourceID,
			ChunkIndex: req.ChunkIndex,
		},
	}, key)

	s.logger.Debug("chunk stored",
		"resource_id", req.ResourceID,
		"index", req.ChunkIndex,
		"total", req.TotalChunks,
		"last", req.IsLastChunk,
	)
	render.JSON(w, r, map[string]any{
		"resourceId": req.ResourceID,
		"chunkIndex": req.ChunkIndex,
	})
}

func (s *Server) updateResourceStatus(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	resourceID := chi.URLParam(r, "resourceID")

	var req api.StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, r, http.StatusBadRequest, "status is required")
		return
	}

	if !s.records.setStatus(bookingID, resourceID, req.Status) {
		writeError(w, r, http.StatusNotFound, "resource record not found")
		return
	}
	render.JSON(w, r, map[string]any{"resourceId": resourceID, "status": req.Status})
}

func (s *Server) updateBookingStatus(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	var req api.StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, r, http.StatusBadRequest, "status is required")
		return
	}

	s.records.setBookingStatus(bookingID, req.Status)
	render.JSON(w, r, map[string]any{"bookingId": bookingID, "status": req.Status})
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	records := s.records.list(bookingID)
	resources := make([]api.Resource, 0, len(records))
	for _, rec := range records {
		resources = append(resources, s.withURL(r, rec))
	}
	render.JSON(w, r, map[string]any{"resources": resources})
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	resourceID := chi.URLParam(r, "resourceID")

	rec, ok := s.records.get(bookingID, resourceID)
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	render.JSON(w, r, s.withURL(r, rec))
}

func (s *Server) listChunks(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	resourceID := chi.URLParam(r, "resourceID")

	if _, ok := s.records.get(bookingID, resourceID); !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	records := s.records.chunkParts(bookingID, resourceID)
	chunks := make([]api.ChunkPart, 0, len(records))
	for _, rec := range records {
		url := ""
		if key, ok := s.records.blobKey(rec.ResourceID); ok {
			url, _ = s.blobs.PresignGet(r.Context(), key)
		}
		chunks = append(chunks, api.ChunkPart{
			ResourceID: resourceID,
			FileName:   rec.FileName,
			ChunkIndex: rec.ChunkInfo.ChunkIndex,
			URL:        url,
			Size:       rec.Size,
		})
	}
	render.JSON(w, r, map[string]any{"chunks": chunks})
}

func (s *Server) storagePut(w http.ResponseWriter, r *http.Request) {
	if err := s.memory.signer.validate(r); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}

	key := chi.URLParam(r, "*")
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := s.memory.Put(r.Context(), key, data, r.Header.Get("Content-Type")); err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to store object")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) storageGet(w http.ResponseWriter, r *http.Request) {
	if err := s.memory.signer.validate(r); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}

	key := chi.URLParam(r, "*")
	data, err := s.memory.Get(r.Context(), key)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "object not found")
		return
	}
	w.Write(data)
}

// withURL attaches a fresh presigned download URL to a directly
// retrievable record. Chunked parents have no single object to point at.
func (s *Server) withURL(r *http.Request, rec *api.Resource) api.Resource {
	out := *rec
	if out.IsChunked {
		return out
	}
	if key, ok := s.records.blobKey(out.ResourceID); ok {
		if url, err := s.blobs.PresignGet(r.Context(), key); err == nil {
			out.URL = url
		}
	}
	return out
}

func objectKey(bookingID, resourceID, fileName string) string {
	return bookingID + "/" + resourceID + "_" + fileName
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"message": msg})
}
