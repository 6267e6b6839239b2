package api

import (
	"github.com/pilotforce/transfer/pkg/transfer/exif"
)

// Resource status constants, as recorded by the backend.
const (
	ResourceStatusPending  = "pending"
	ResourceStatusComplete = "complete"
)

// BookingStatusCompleted marks a booking whose survey output has been
// delivered.
const BookingStatusCompleted = "Completed"

// Resource describes one stored file attached to a booking, as reported
// by the backend. A chunked resource has no direct URL; its bytes are
// retrievable only through its constituent parts.
type Resource struct {
	ResourceID       string         `json:"resourceId"`
	BookingID        string         `json:"bookingId,omitempty"`
	FileName         string         `json:"fileName"`
	ContentType      string         `json:"contentType,omitempty"`
	Size             int64          `json:"size,omitempty"`
	URL              string         `json:"url,omitempty"`
	IsChunked        bool           `json:"isChunked,omitempty"`
	TotalChunks      int            `json:"totalChunks,omitempty"`
	OriginalFileName string         `json:"originalFileName,omitempty"`
	IsImage          bool           `json:"isImage,omitempty"`
	Status           string         `json:"status,omitempty"`
	Geolocation      *exif.Metadata `json:"geolocation,omitempty"`
	ChunkInfo        *ChunkInfo     `json:"chunkInfo,omitempty"`
	CreatedAt        string         `json:"createdAt,omitempty"`
}

// ChunkInfo marks a resource record as one part of a chunked parent.
type ChunkInfo struct {
	ResourceID string `json:"resourceId"`
	ChunkIndex int    `json:"chunkIndex"`
}

// ChunkPart is one downloadable part of a chunked resource.
type ChunkPart struct {
	ResourceID string `json:"resourceId"`
	FileName   string `json:"fileName"`
	ChunkIndex int    `json:"chunkIndex"`
	URL        string `json:"url"`
	Size       int64  `json:"size,omitempty"`
}

// PresignedUploadRequest asks the backend for a presigned storage URL.
type PresignedUploadRequest struct {
	FileName    string         `json:"fileName"`
	ContentType string         `json:"contentType"`
	FileSize    int64          `json:"fileSize"`
	Metadata    *exif.Metadata `json:"metadata,omitempty"`
}

// PresignedUploadResponse carries the presigned URL and the resource id
// the backend assigned to the pending record.
type PresignedUploadResponse struct {
	UploadURL  string `json:"uploadUrl"`
	ResourceID string `json:"resourceId"`
}

// ProxiedUploadRequest posts a whole small file through the API proxy in
// one call, base64-encoded.
type ProxiedUploadRequest struct {
	ResourceID  string         `json:"resourceId,omitempty"`
	FileName    string         `json:"fileName"`
	ContentType string         `json:"contentType"`
	FileData    string         `json:"fileData"`
	Metadata    *exif.Metadata `json:"metadata,omitempty"`
}

// ProxiedUploadResponse is the backend's record of a proxied upload.
type ProxiedUploadResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	ResourceID string `json:"resourceId"`
	FileName   string `json:"fileName"`
	URL        string `json:"resourceUrl,omitempty"`
}

// CreateResourceRecordRequest registers a pending record for a chunked
// upload before any chunk is posted.
type CreateResourceRecordRequest struct {
	ResourceID  string         `json:"resourceId"`
	FileName    string         `json:"fileName"`
	ContentType string         `json:"contentType"`
	FileSize    int64          `json:"fileSize"`
	TotalChunks int            `json:"totalChunks"`
	Status      string         `json:"status"`
	Metadata    *exif.Metadata `json:"metadata,omitempty"`
}

// ChunkUploadRequest posts one base64-encoded chunk. Chunks of a file
// must be posted sequentially in ascending index order; the backend
// reconstructs by append.
type ChunkUploadRequest struct {
	ResourceID  string `json:"resourceId"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	FileName    string `json:"fileName"`
	Chunk       string `json:"chunk"`
	IsLastChunk bool   `json:"isLastChunk"`
}

// StatusUpdateRequest changes a resource record's or booking's status.
type StatusUpdateRequest struct {
	Status string `json:"status"`
}
