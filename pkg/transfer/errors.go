package transfer

import (
	"errors"
	"fmt"
	"strings"
)

// Error types
var (
	// ErrEmptyBatch indicates an upload was requested with no files.
	ErrEmptyBatch = errors.New("no files to upload")

	// ErrResourceNotFound indicates a resource id has no backend record.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrReassembly indicates a chunked download could not be rebuilt
	// into the original file. No partial file is ever surfaced.
	ErrReassembly = errors.New("failed to download and reassemble file chunks")
)

// OversizeError rejects a batch before any network call, naming every
// offending file rather than just the first.
type OversizeError struct {
	Files []string
	Limit int64
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("%d file(s) exceed the %d byte limit: %s",
		len(e.Files), e.Limit, strings.Join(e.Files, ", "))
}

// UploadFailureError is the consolidated per-batch failure report.
type UploadFailureError struct {
	Files []string
}

func (e *UploadFailureError) Error() string {
	return fmt.Sprintf("failed to upload %d file(s): %s", len(e.Files), strings.Join(e.Files, ", "))
}

// UploadError represents a failure while transferring one file.
type UploadError struct {
	ResourceID string
	FileName   string
	Op         string
	Err        error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed for %s (%s): %v", e.Op, e.FileName, e.ResourceID, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// DownloadError represents a failure while retrieving one resource.
type DownloadError struct {
	ResourceID string
	Op         string
	Err        error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed for resource %s: %v", e.Op, e.ResourceID, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
