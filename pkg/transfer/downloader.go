package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/pilotforce/transfer/pkg/transfer/api"
	"github.com/pilotforce/transfer/pkg/transfer/chunk"
)

// metadataProgressPct is the share of download progress attributed to the
// initial metadata fetch; the parts split the remainder evenly.
const metadataProgressPct = 15

// DownloadResult is a fully reassembled resource.
type DownloadResult struct {
	Data     []byte
	FileName string
	Resource *api.Resource
}

// DownloadProgressFunc observes overall download progress, 0-100.
type DownloadProgressFunc func(pct int)

// Downloader retrieves a resource by id, transparently reassembling
// chunked resources from their parts.
type Downloader struct {
	backend BackendAPI
	storage StorageClient
	logger  *slog.Logger
}

// DownloaderOption is a functional option for configuring a Downloader.
type DownloaderOption func(*Downloader)

// WithDownloaderLogger sets the downloader logger.
func WithDownloaderLogger(logger *slog.Logger) DownloaderOption {
	return func(d *Downloader) { d.logger = logger }
}

// NewDownloader creates a resource downloader over the given backend and
// storage clients.
func NewDownloader(backend BackendAPI, storage StorageClient, opts ...DownloaderOption) (*Downloader, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend client is required")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	d := &Downloader{
		backend: backend,
		storage: storage,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(slog.String("component", "downloader"))
	return d, nil
}

// Download fetches a resource's metadata, downloads its bytes (all parts,
// for a chunked resource), and returns the reassembled file. Partial
// downloads are never returned: any failure along the way discards what
// was fetched and surfaces a single error.
func (d *Downloader) Download(ctx context.Context, bookingID, resourceID string, onProgress DownloadProgressFunc) (*DownloadResult, error) {
	report := func(pct int) {
		if onProgress != nil {
			onProgress(pct)
		}
	}

	meta, err := d.backend.GetResource(ctx, bookingID, resourceID)
	if err != nil {
		if api.IsNotFound(err) {
			return nil, &DownloadError{ResourceID: resourceID, Op: "metadata", Err: ErrResourceNotFound}
		}
		return nil, &DownloadError{ResourceID: resourceID, Op: "metadata", Err: err}
	}
	report(metadataProgressPct)

	var data []byte
	if meta.IsChunked && meta.TotalChunks > 1 {
		data, err = d.downloadChunked(ctx, bookingID, meta, report)
	} else {
		data, err = d.downloadSingle(ctx, meta, report)
	}
	if err != nil {
		return nil, err
	}
	report(100)

	fileName := meta.OriginalFileName
	if fileName == "" {
		fileName = meta.FileName
	}

	d.logger.Info("download complete",
		"resource_id", resourceID,
		"file", fileName,
		"bytes", len(data),
		"chunked", meta.IsChunked,
	)
	return &DownloadResult{Data: data, FileName: fileName, Resource: meta}, nil
}

// downloadSingle fetches a non-chunked resource through its direct URL.
func (d *Downloader) downloadSingle(ctx context.Context, meta *api.Resource, report DownloadProgressFunc) ([]byte, error) {
	if meta.URL == "" {
		return nil, &DownloadError{ResourceID: meta.ResourceID, Op: "get", Err: fmt.Errorf("resource has no download URL")}
	}

	data, err := d.storage.Get(ctx, meta.URL, func(n int64) {
		if meta.Size > 0 {
			// Storage may deliver more bytes than the recorded size; never
			// report past 100.
			span := 100 - metadataProgressPct
			report(min(metadataProgressPct+int(n*int64(span)/meta.Size), 100))
		}
	})
	if err != nil {
		return nil, &DownloadError{ResourceID: meta.ResourceID, Op: "get", Err: err}
	}
	return data, nil
}

// downloadChunked locates every part, downloads them sequentially and
// reassembles the original file.
func (d *Downloader) downloadChunked(ctx context.Context, bookingID string, meta *api.Resource, report DownloadProgressFunc) ([]byte, error) {
	parts, err := d.locateChunks(ctx, bookingID, meta.ResourceID)
	if err != nil {
		return nil, &DownloadError{ResourceID: meta.ResourceID, Op: "list chunks", Err: fmt.Errorf("%w: %v", ErrReassembly, err)}
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].ChunkIndex < parts[j].ChunkIndex })

	if err := validateParts(parts, meta.TotalChunks); err != nil {
		return nil, &DownloadError{ResourceID: meta.ResourceID, Op: "validate chunks", Err: fmt.Errorf("%w: %v", ErrReassembly, err)}
	}

	span := 100 - metadataProgressPct
	payloads := make([][]byte, 0, len(parts))
	for i, part := range parts {
		data, err := d.storage.Get(ctx, part.URL, nil)
		if err != nil {
			return nil, &DownloadError{ResourceID: meta.ResourceID,
				Op: fmt.Sprintf("chunk %d/%d", part.ChunkIndex+1, meta.TotalChunks),
				Err: fmt.Errorf("%w: %v", ErrReassembly, err)}
		}
		payloads = append(payloads, data)
		report(metadataProgressPct + (i+1)*span/len(parts))
	}

	return chunk.Reassemble(payloads), nil
}

// locateChunks finds the parts of a chunked resource. The dedicated
// chunk-list endpoint is the primary path; when it is unavailable the
// locator falls back to scanning the booking's resources for part records,
// matched either by their chunk-membership marker or by the part filename
// convention. Both paths yield the same normalized descriptors, so the
// caller never knows which was used.
func (d *Downloader) locateChunks(ctx context.Context, bookingID, resourceID string) ([]api.ChunkPart, error) {
	parts, err := d.backend.ListChunks(ctx, bookingID, resourceID)
	if err == nil && len(parts) > 0 {
		return parts, nil
	}
	if err != nil && !api.IsNotFound(err) {
		return nil, err
	}

	d.logger.Debug("chunk list endpoint unavailable, scanning resources", "resource_id", resourceID)

	resources, err := d.backend.ListResources(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var found []api.ChunkPart
	for _, r := range resources {
		memberOf := r.ChunkInfo != nil && r.ChunkInfo.ResourceID == resourceID
		if !memberOf && !chunk.IsPartOf(r.FileName, resourceID) {
			continue
		}

		idx := -1
		if r.ChunkInfo != nil {
			idx = r.ChunkInfo.ChunkIndex
		} else if n, ok := chunk.ParsePartIndex(r.FileName); ok {
			idx = n
		}
		if idx < 0 {
			return nil, fmt.Errorf("part %s has no usable index", r.FileName)
		}

		found = append(found, api.ChunkPart{
			ResourceID: resourceID,
			FileName:   r.FileName,
			ChunkIndex: idx,
			URL:        r.URL,
			Size:       r.Size,
		})
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("no chunk parts found for resource %s", resourceID)
	}
	return found, nil
}

// validateParts enforces the chunked-resource invariant: exactly total
// parts with contiguous indexes starting at zero.
func validateParts(sorted []api.ChunkPart, total int) error {
	if len(sorted) != total {
		return fmt.Errorf("expected %d parts, found %d", total, len(sorted))
	}
	for i, p := range sorted {
		if p.ChunkIndex != i {
			return fmt.Errorf("missing or duplicate part at index %d", i)
		}
	}
	return nil
}

// SaveFile writes a downloaded resource into dir under its file name.
// The write is atomic: the data lands in a temp file first and is renamed
// into place, so a failed write never leaves a partial file.
func SaveFile(dir, fileName string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing file: %w", err)
	}

	target := filepath.Join(dir, filepath.Base(fileName))
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("moving file into place: %w", err)
	}
	return nil
}
