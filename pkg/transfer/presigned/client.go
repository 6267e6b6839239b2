// Package presigned performs the raw storage transfers of the upload
// pipeline: PUT to a presigned upload URL and GET from a presigned or
// direct resource URL, with byte-level progress reporting. The client is
// deliberately thin; retry and orchestration live with the caller.
package presigned

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ProgressFunc receives the cumulative number of bytes transferred so
// far. It is called on every read, not just at start and end.
type ProgressFunc func(bytesTransferred int64)

// StatusError is returned for any non-2xx storage response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("storage request failed with status %s", e.Status)
}

// Temporary reports whether the failure is worth retrying (5xx).
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500
}

// Client performs raw PUT/GET transfers against storage URLs.
type Client struct {
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout overrides the per-request timeout. Large GeoTIFF uploads
// need a generous default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a storage transfer client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put uploads data to a presigned URL. size must be the exact byte count;
// onProgress, if non-nil, receives cumulative bytes as the body is read.
func (c *Client) Put(ctx context.Context, url string, data io.Reader, size int64, contentType string, onProgress ProgressFunc) error {
	body := data
	if onProgress != nil {
		body = &progressReader{reader: data, callback: onProgress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	req.ContentLength = size
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage put: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

// Get downloads the object at url, reporting cumulative bytes through
// onProgress as they arrive.
func (c *Client) Get(ctx context.Context, url string, onProgress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var reader io.Reader = resp.Body
	if onProgress != nil {
		reader = &progressReader{reader: resp.Body, callback: onProgress}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading storage response: %w", err)
	}
	return data, nil
}

// progressReader wraps an io.Reader to report cumulative bytes read.
type progressReader struct {
	reader    io.Reader
	bytesRead int64
	callback  ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.bytesRead += int64(n)
	if pr.callback != nil && n > 0 {
		pr.callback(pr.bytesRead)
	}
	return n, err
}
