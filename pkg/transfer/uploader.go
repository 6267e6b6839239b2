package transfer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pilotforce/transfer/pkg/transfer/api"
	"github.com/pilotforce/transfer/pkg/transfer/chunk"
	"github.com/pilotforce/transfer/pkg/transfer/exif"
)

// Batch scheduling defaults. Large selections are split into outer groups
// of files to bound how much is in flight over the whole run, and each
// group into small batches uploaded with bounded concurrency. The growing
// inter-batch delay and the fixed inter-group delay are deliberate
// backpressure: hundreds of files at full speed saturate the backend and
// cascade into failures.
const (
	DefaultFileGroupSize    = 10
	DefaultBatchSize        = 2
	DefaultBatchDelay       = 500 * time.Millisecond
	DefaultBatchDelayMax    = 5 * time.Second
	DefaultBatchDelayGrowth = 1.5
	DefaultGroupDelay       = 2 * time.Second
)

// ProgressFunc observes task state changes. It receives a snapshot and
// may be called concurrently from different upload goroutines.
type ProgressFunc func(task UploadTask)

// ExtractFunc produces image metadata from file bytes. The default is
// exif.Extract.
type ExtractFunc func(data []byte, contentType string) *exif.Metadata

// Uploader drives the end-to-end upload of a batch of files: routing,
// chunking, bounded concurrency, per-file retry with exponential backoff,
// and aggregate result reporting.
type Uploader struct {
	backend BackendAPI
	storage StorageClient

	router  Router
	backoff BackoffPolicy

	chunkSize        int
	groupSize        int
	batchSize        int
	batchDelay       time.Duration
	batchDelayMax    time.Duration
	batchDelayGrowth float64
	groupDelay       time.Duration

	extract    ExtractFunc
	onProgress ProgressFunc
	logger     *slog.Logger

	mu sync.Mutex // guards progress callback dispatch ordering per task
}

// UploaderOption is a functional option for configuring an Uploader.
type UploaderOption func(*Uploader)

// WithRouter overrides the size-based routing policy.
func WithRouter(r Router) UploaderOption {
	return func(u *Uploader) { u.router = r }
}

// WithBackoff overrides the per-file retry policy.
func WithBackoff(p BackoffPolicy) UploaderOption {
	return func(u *Uploader) { u.backoff = p }
}

// WithChunkSize sets the chunk size for proxied chunked uploads.
func WithChunkSize(size int) UploaderOption {
	return func(u *Uploader) { u.chunkSize = size }
}

// WithBatching sets the outer group size and the concurrent batch size.
func WithBatching(groupSize, batchSize int) UploaderOption {
	return func(u *Uploader) {
		if groupSize > 0 {
			u.groupSize = groupSize
		}
		if batchSize > 0 {
			u.batchSize = batchSize
		}
	}
}

// WithDelays sets the backpressure delays: the base inter-batch delay
// (which grows multiplicatively, capped at max) and the fixed delay
// between file groups. Zero values disable the corresponding delay.
func WithDelays(batchDelay, batchDelayMax, groupDelay time.Duration) UploaderOption {
	return func(u *Uploader) {
		u.batchDelay = batchDelay
		u.batchDelayMax = batchDelayMax
		u.groupDelay = groupDelay
	}
}

// WithExtractor replaces the image metadata extractor.
func WithExtractor(fn ExtractFunc) UploaderOption {
	return func(u *Uploader) { u.extract = fn }
}

// WithProgress registers a task progress observer.
func WithProgress(fn ProgressFunc) UploaderOption {
	return func(u *Uploader) { u.onProgress = fn }
}

// WithUploaderLogger sets the uploader logger.
func WithUploaderLogger(logger *slog.Logger) UploaderOption {
	return func(u *Uploader) { u.logger = logger }
}

// NewUploader creates an upload orchestrator over the given backend and
// storage clients.
func NewUploader(backend BackendAPI, storage StorageClient, opts ...UploaderOption) (*Uploader, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend client is required")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	u := &Uploader{
		backend:          backend,
		storage:          storage,
		router:           NewRouter(0, 0, false),
		backoff:          DefaultBackoff(),
		chunkSize:        chunk.DefaultSize,
		groupSize:        DefaultFileGroupSize,
		batchSize:        DefaultBatchSize,
		batchDelay:       DefaultBatchDelay,
		batchDelayMax:    DefaultBatchDelayMax,
		batchDelayGrowth: DefaultBatchDelayGrowth,
		groupDelay:       DefaultGroupDelay,
		extract:          exif.Extract,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = u.logger.With(slog.String("component", "uploader"))
	return u, nil
}

// Upload transfers files into the booking, returning an aggregate result.
// Validation failures (oversize files, empty batch) are returned as an
// error before any network call; per-file transfer failures never abort
// the run and are reported in the result's Failed list. When at least one
// file succeeds the parent booking is marked Completed, best-effort.
func (u *Uploader) Upload(ctx context.Context, bookingID string, files []FileInput) (*BatchResult, error) {
	if err := u.router.ValidateBatch(files); err != nil {
		return nil, err
	}

	tasks := make([]*UploadTask, len(files))
	for i, f := range files {
		t := &UploadTask{
			File:       f,
			ResourceID: NewResourceID(),
			BookingID:  bookingID,
			Strategy:   u.router.Classify(f),
			Status:     TaskPending,
		}
		if strings.HasPrefix(f.ContentType, "image/") {
			t.Metadata = u.extract(f.Data, f.ContentType)
		}
		tasks[i] = t
		u.notify(t)
	}

	u.logger.Info("starting upload batch",
		"booking_id", bookingID,
		"files", len(tasks),
	)

	u.runBatches(ctx, tasks)

	result := &BatchResult{}
	for _, t := range tasks {
		if t.Status == TaskComplete {
			result.Succeeded = append(result.Succeeded, t.File.Name)
		} else {
			result.Failed = append(result.Failed, t.File.Name)
		}
	}

	if len(result.Succeeded) > 0 {
		// The files are safely stored even if this flag update fails,
		// so a failure here is logged rather than surfaced.
		if err := u.backend.UpdateBookingStatus(ctx, bookingID, api.BookingStatusCompleted); err != nil {
			u.logger.Warn("failed to mark booking completed", "booking_id", bookingID, "err", err)
		} else {
			result.StatusUpdated = true
		}
	}

	u.logger.Info("upload batch finished",
		"booking_id", bookingID,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
	)
	return result, nil
}

// runBatches walks the two-level group/batch partition. Batch K+1 never
// starts before batch K has fully resolved.
func (u *Uploader) runBatches(ctx context.Context, tasks []*UploadTask) {
	batchNum := 0
	for g := 0; g < len(tasks); g += u.groupSize {
		if g > 0 && !u.pause(ctx, u.groupDelay) {
			u.failRemaining(tasks[g:], ctx.Err())
			return
		}

		group := tasks[g:min(g+u.groupSize, len(tasks))]
		for b := 0; b < len(group); b += u.batchSize {
			if batchNum > 0 && !u.pause(ctx, u.delayForBatch(batchNum)) {
				u.failRemaining(group[b:], ctx.Err())
				if g+u.groupSize < len(tasks) {
					u.failRemaining(tasks[g+u.groupSize:], ctx.Err())
				}
				return
			}

			batch := group[b:min(b+u.batchSize, len(group))]
			var wg sync.WaitGroup
			for _, t := range batch {
				wg.Add(1)
				go func(t *UploadTask) {
					defer wg.Done()
					u.runTask(ctx, t)
				}(t)
			}
			wg.Wait()
			batchNum++
		}
	}
}

// delayForBatch grows the inter-batch delay multiplicatively with the
// number of completed batches, capped at the configured maximum.
func (u *Uploader) delayForBatch(completed int) time.Duration {
	d := float64(u.batchDelay)
	for i := 1; i < completed; i++ {
		d *= u.batchDelayGrowth
		if time.Duration(d) >= u.batchDelayMax {
			return u.batchDelayMax
		}
	}
	if time.Duration(d) > u.batchDelayMax {
		return u.batchDelayMax
	}
	return time.Duration(d)
}

// pause sleeps for d, reporting false if the context was cancelled.
func (u *Uploader) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (u *Uploader) failRemaining(tasks []*UploadTask, err error) {
	for _, t := range tasks {
		if !t.Status.Terminal() {
			t.Err = err
			t.Status = TaskFailed
			u.notify(t)
		}
	}
}

// runTask drives one file through the retry loop to a terminal state.
func (u *Uploader) runTask(ctx context.Context, t *UploadTask) {
	err := RetryWithBackoff(ctx, u.backoff,
		func(ctx context.Context) error {
			u.setStatus(t, TaskUploading)
			return u.uploadOnce(ctx, t)
		},
		func(attempt int, cause error) {
			t.Retries = attempt
			u.setStatus(t, TaskRetrying)
			u.logger.Warn("retrying upload",
				"file", t.File.Name,
				"resource_id", t.ResourceID,
				"attempt", attempt,
				"err", cause,
			)
		},
	)

	if err != nil {
		t.Err = err
		u.setStatus(t, TaskFailed)
		u.logger.Error("upload failed", "file", t.File.Name, "resource_id", t.ResourceID, "err", err)
		return
	}
	u.setProgress(t, 100)
	u.setStatus(t, TaskComplete)
}

func (u *Uploader) uploadOnce(ctx context.Context, t *UploadTask) error {
	switch t.Strategy {
	case StrategyDirect:
		return u.uploadDirect(ctx, t)
	case StrategyProxied:
		return u.uploadProxied(ctx, t)
	case StrategyChunked:
		return u.uploadChunked(ctx, t)
	default:
		return fmt.Errorf("unknown upload strategy %q", t.Strategy)
	}
}

// uploadDirect requests a presigned URL and PUTs the file straight to
// storage with byte-level progress.
func (u *Uploader) uploadDirect(ctx context.Context, t *UploadTask) error {
	resp, err := u.backend.RequestUploadURL(ctx, t.BookingID, api.PresignedUploadRequest{
		FileName:    t.File.Name,
		ContentType: t.File.ContentType,
		FileSize:    t.File.Size,
		Metadata:    t.Metadata,
	})
	if err != nil {
		return &UploadError{ResourceID: t.ResourceID, FileName: t.File.Name, Op: "presign", Err: err}
	}
	if resp.ResourceID != "" {
		t.ResourceID = resp.ResourceID
	}

	err = u.storage.Put(ctx, resp.UploadURL, bytes.NewReader(t.File.Data), t.File.Size, t.File.ContentType,
		func(n int64) { u.setProgress(t, bytePct(n, t.File.Size)) })
	if err != nil {
		return &UploadError{ResourceID: t.ResourceID, FileName: t.File.Name, Op: "put", Err: err}
	}

	// The object is already stored; the completion notice is advisory.
	if err := u.backend.UpdateResourceStatus(ctx, t.BookingID, t.ResourceID, api.ResourceStatusComplete); err != nil {
		u.logger.Warn("failed to mark resource complete", "resource_id", t.ResourceID, "err", err)
	}
	return nil
}

// uploadProxied posts the whole file base64-encoded in one call.
func (u *Uploader) uploadProxied(ctx context.Context, t *UploadTask) error {
	resp, err := u.backend.UploadProxied(ctx, t.BookingID, api.ProxiedUploadRequest{
		ResourceID:  t.ResourceID,
		FileName:    t.File.Name,
		ContentType: t.File.ContentType,
		FileData:    base64.StdEncoding.EncodeToString(t.File.Data),
		Metadata:    t.Metadata,
	})
	if err != nil {
		return &UploadError{ResourceID: t.ResourceID, FileName: t.File.Name, Op: "proxied", Err: err}
	}
	if resp.ResourceID != "" {
		t.ResourceID = resp.ResourceID
	}
	return nil
}

// uploadChunked registers a pending record, posts every chunk strictly
// sequentially (the backend reconstructs by append, so receive order must
// match part order), then marks the record complete.
func (u *Uploader) uploadChunked(ctx context.Context, t *UploadTask) error {
	chunks, err := chunk.Split(t.ResourceID, t.File.Data, u.chunkSize)
	if err != nil {
		return &UploadError{ResourceID: t.ResourceID, FileName: t.File.Name, Op: "split", Err: err}
	}

	err = u.backend.CreateResourceRecord(ctx, t.BookingID, api.CreateResourceRecordRequest{
		ResourceID:  t.ResourceID,
		FileName:    t.File.Name,
		ContentType: t.File.ContentType,
		FileSize:    t.File.Size,
		TotalChunks: len(chunks),
		Status:      api.ResourceStatusPending,
		Metadata:    t.Metadata,
	})
	if err != nil {
		return &UploadError{ResourceID: t.ResourceID, FileName: t.File.Name, Op: "create record", Err: err}
	}

	for i, c := range chunks {
		err := u.backend.UploadChunk(ctx, t.BookingID, api.ChunkUploadRequest{
			ResourceID:  t.ResourceID,
			ChunkIndex:  c.Index,
			TotalChunks: c.Total,
			FileName:    t.File.Name,
			Chunk:       chunk.Encode(c),
			IsLastChunk: c.IsLast(),
		})
		if err != nil {
			return &UploadError{ResourceID: t.ResourceID, FileName: t.File.Name,
				Op: fmt.Sprintf("chunk %d/%d", c.Index+1, c.Total), Err: err}
		}
		u.setProgress(t, (i+1)*99/len(chunks))
	}

	err = u.backend.UpdateResourceStatus(ctx, t.BookingID, t.ResourceID, api.ResourceStatusComplete)
	if err != nil {
		return &UploadError{ResourceID: t.ResourceID, FileName: t.File.Name, Op: "complete", Err: err}
	}
	return nil
}

// setProgress raises the task's progress, never lowering it.
func (u *Uploader) setProgress(t *UploadTask, pct int) {
	if pct > t.Progress {
		t.Progress = pct
		u.notify(t)
	}
}

func (u *Uploader) setStatus(t *UploadTask, s TaskStatus) {
	t.Status = s
	u.notify(t)
}

func (u *Uploader) notify(t *UploadTask) {
	if u.onProgress == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onProgress(*t)
}

func bytePct(transferred, total int64) int {
	if total <= 0 {
		return 100
	}
	pct := int(transferred * 100 / total)
	if pct > 100 {
		pct = 100
	}
	return pct
}
