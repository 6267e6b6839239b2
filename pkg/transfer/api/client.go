// Package api is the REST client for the booking backend: presigned URL
// issuance, proxied and chunked uploads, resource metadata and chunk
// listing, and status updates. Authentication is delegated to an injected
// CredentialProvider; on a 401 the client makes exactly one
// refresh-and-retry attempt before propagating the failure.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// APIError carries the HTTP status of a failed backend call plus the
// backend's message when one was supplied.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api request failed with status %d", e.StatusCode)
}

// IsNotFound reports whether err is a backend 404/405, used by the
// downloader to fall back from the dedicated chunk-list endpoint.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusMethodNotAllowed
	}
	return false
}

// Client talks to the booking backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialProvider
	logger     *slog.Logger
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCredentials sets the credential provider for authenticated calls.
func WithCredentials(creds CredentialProvider) Option {
	return func(c *Client) { c.creds = creds }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a backend client rooted at baseURL (the API Gateway
// origin, without a trailing slash).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "api_client"))
	return c
}

// RequestUploadURL asks the backend for a presigned storage URL for one
// file, registering a pending resource record.
func (c *Client) RequestUploadURL(ctx context.Context, bookingID string, req PresignedUploadRequest) (*PresignedUploadResponse, error) {
	var resp PresignedUploadResponse
	path := fmt.Sprintf("/admin/bookings/%s/presigned-upload", url.PathEscape(bookingID))
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadProxied posts a whole base64-encoded file through the API proxy
// in a single call.
func (c *Client) UploadProxied(ctx context.Context, bookingID string, req ProxiedUploadRequest) (*ProxiedUploadResponse, error) {
	var resp ProxiedUploadResponse
	path := fmt.Sprintf("/admin/bookings/%s/resources", url.PathEscape(bookingID))
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.Message}
	}
	return &resp, nil
}

// CreateResourceRecord registers a pending record for a chunked upload.
func (c *Client) CreateResourceRecord(ctx context.Context, bookingID string, req CreateResourceRecordRequest) error {
	path := fmt.Sprintf("/admin/bookings/%s/resource-records", url.PathEscape(bookingID))
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// UploadChunk posts one chunk of a file. Chunks must be posted in
// ascending index order.
func (c *Client) UploadChunk(ctx context.Context, bookingID string, req ChunkUploadRequest) error {
	path := fmt.Sprintf("/admin/bookings/%s/chunk-upload", url.PathEscape(bookingID))
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// UpdateResourceStatus marks a resource record (e.g. "complete").
func (c *Client) UpdateResourceStatus(ctx context.Context, bookingID, resourceID, status string) error {
	path := fmt.Sprintf("/admin/bookings/%s/resource-records/%s", url.PathEscape(bookingID), url.PathEscape(resourceID))
	return c.do(ctx, http.MethodPut, path, StatusUpdateRequest{Status: status}, nil)
}

// UpdateBookingStatus marks the booking itself (e.g. "Completed").
func (c *Client) UpdateBookingStatus(ctx context.Context, bookingID, status string) error {
	path := fmt.Sprintf("/admin/bookings/%s/status", url.PathEscape(bookingID))
	return c.do(ctx, http.MethodPut, path, StatusUpdateRequest{Status: status}, nil)
}

// ListResources returns every resource attached to a booking, including
// chunk-part records.
func (c *Client) ListResources(ctx context.Context, bookingID string) ([]Resource, error) {
	var resp struct {
		Resources []Resource `json:"resources"`
	}
	path := fmt.Sprintf("/admin/bookings/%s/resources", url.PathEscape(bookingID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Resources, nil
}

// GetResource fetches one resource's metadata.
func (c *Client) GetResource(ctx context.Context, bookingID, resourceID string) (*Resource, error) {
	var resp Resource
	path := fmt.Sprintf("/admin/bookings/%s/resources/%s", url.PathEscape(bookingID), url.PathEscape(resourceID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListChunks returns the ordered part list for a chunked resource.
func (c *Client) ListChunks(ctx context.Context, bookingID, resourceID string) ([]ChunkPart, error) {
	var resp struct {
		Chunks []ChunkPart `json:"chunks"`
	}
	path := fmt.Sprintf("/admin/bookings/%s/resources/%s/chunks", url.PathEscape(bookingID), url.PathEscape(resourceID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chunks, nil
}

// do performs one JSON request against the backend. The body is buffered
// so a single refresh-and-retry after a 401 can replay it.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.creds != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		ok, refreshErr := c.creds.Refresh(ctx)
		if refreshErr != nil || !ok {
			c.logger.Warn("token refresh failed", "path", path, "err", refreshErr)
			return &APIError{StatusCode: http.StatusUnauthorized, Message: "unauthenticated"}
		}

		c.logger.Debug("retrying after token refresh", "path", path)
		resp, err = c.send(ctx, method, path, payload)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving bearer token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil {
		if body.Message != "" {
			apiErr.Message = body.Message
		} else if body.Error != "" {
			apiErr.Message = body.Error
		}
	}
	return apiErr
}
