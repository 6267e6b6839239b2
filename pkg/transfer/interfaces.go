package transfer

import (
	"context"
	"io"

	"github.com/pilotforce/transfer/pkg/transfer/api"
	"github.com/pilotforce/transfer/pkg/transfer/presigned"
)

// BackendAPI is the slice of the booking backend the transfer pipeline
// needs. *api.Client implements it.
type BackendAPI interface {
	RequestUploadURL(ctx context.Context, bookingID string, req api.PresignedUploadRequest) (*api.PresignedUploadResponse, error)
	UploadProxied(ctx context.Context, bookingID string, req api.ProxiedUploadRequest) (*api.ProxiedUploadResponse, error)
	CreateResourceRecord(ctx context.Context, bookingID string, req api.CreateResourceRecordRequest) error
	UploadChunk(ctx context.Context, bookingID string, req api.ChunkUploadRequest) error
	UpdateResourceStatus(ctx context.Context, bookingID, resourceID, status string) error
	UpdateBookingStatus(ctx context.Context, bookingID, status string) error
	ListResources(ctx context.Context, bookingID string) ([]api.Resource, error)
	GetResource(ctx context.Context, bookingID, resourceID string) (*api.Resource, error)
	ListChunks(ctx context.Context, bookingID, resourceID string) ([]api.ChunkPart, error)
}

// StorageClient performs raw byte transfers against storage URLs.
// *presigned.Client implements it.
type StorageClient interface {
	Put(ctx context.Context, url string, data io.Reader, size int64, contentType string, onProgress presigned.ProgressFunc) error
	Get(ctx context.Context, url string, onProgress presigned.ProgressFunc) ([]byte, error)
}
