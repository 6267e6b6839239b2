package transfer

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pilotforce/transfer/pkg/transfer/exif"
)

// TaskStatus is the lifecycle state of one upload task.
type TaskStatus string

// Task status constants (typed).
const (
	TaskPending   TaskStatus = "pending"
	TaskUploading TaskStatus = "uploading"
	TaskRetrying  TaskStatus = "retrying"
	TaskComplete  TaskStatus = "complete"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is final. Terminal tasks are never
// mutated again.
func (s TaskStatus) Terminal() bool {
	return s == TaskComplete || s == TaskFailed
}

// Strategy selects how a file's bytes reach storage.
type Strategy string

const (
	// StrategyDirect uploads straight to storage through a presigned URL.
	StrategyDirect Strategy = "direct"
	// StrategyProxied posts the whole file base64-encoded through the API
	// proxy in a single call. Only valid at or below the proxy threshold.
	StrategyProxied Strategy = "proxied"
	// StrategyChunked splits the file and posts each chunk sequentially
	// through the API proxy.
	StrategyChunked Strategy = "chunked"
)

// FileInput is one file selected for upload: its name, MIME type and full
// content. Survey uploads are bounded by the batch ceiling, so content is
// held in memory.
type FileInput struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// NewFileInput builds a FileInput from raw bytes, guessing the MIME type
// from the file extension when contentType is empty.
func NewFileInput(name string, data []byte, contentType string) FileInput {
	if contentType == "" {
		contentType = detectContentType(name)
	}
	return FileInput{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}
}

// FileFromPath reads a local file into a FileInput.
func FileFromPath(path string) (FileInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileInput{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return NewFileInput(filepath.Base(path), data, ""), nil
}

// detectContentType resolves a MIME type from the file extension, with a
// fallback table for the survey formats the platform handles.
func detectContentType(name string) string {
	ext := filepath.Ext(name)
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	switch ext {
	case ".tif", ".tiff":
		return "image/tiff"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// UploadTask is one file awaiting or undergoing transfer. Tasks are owned
// by the orchestrator; callers observe them through progress callbacks as
// value snapshots.
type UploadTask struct {
	File       FileInput
	ResourceID string
	BookingID  string
	Strategy   Strategy
	Status     TaskStatus
	Progress   int // 0-100, monotonically non-decreasing while active
	Retries    int
	Metadata   *exif.Metadata
	Err        error
}

// BatchResult aggregates the outcome of one orchestrated upload run. The
// orchestrator always returns a result for every attempted batch; per-file
// failures land in Failed rather than aborting the run.
type BatchResult struct {
	Succeeded []string // file names
	Failed    []string // file names, after exhausted retries
	// StatusUpdated records whether the parent booking was marked
	// Completed (attempted once iff at least one file succeeded).
	StatusUpdated bool
}

// FailedError returns a consolidated error naming every failed file, or
// nil when everything succeeded.
func (r *BatchResult) FailedError() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &UploadFailureError{Files: r.Failed}
}

// NewResourceID generates a client-side resource identifier in the
// backend's record format.
func NewResourceID() string {
	return fmt.Sprintf("file_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
