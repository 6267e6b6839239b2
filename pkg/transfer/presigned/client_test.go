package presigned_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotforce/transfer/pkg/transfer/presigned"
)

func TestPut(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	var gotLength int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotContentType = r.Header.Get("Content-Type")
		gotLength = r.ContentLength
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	payload := bytes.Repeat([]byte("tile"), 1000)
	var progress []int64
	err := presigned.NewClient().Put(context.Background(), srv.URL,
		bytes.NewReader(payload), int64(len(payload)), "image/tiff",
		func(n int64) { progress = append(progress, n) })
	require.NoError(t, err)

	assert.Equal(t, payload, gotBody)
	assert.Equal(t, "image/tiff", gotContentType)
	assert.Equal(t, int64(len(payload)), gotLength)

	require.NotEmpty(t, progress)
	assert.Equal(t, int64(len(payload)), progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}
}

func TestPutRejectedByStorage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := presigned.NewClient().Put(context.Background(), srv.URL,
		bytes.NewReader([]byte("x")), 1, "", nil)
	require.Error(t, err)

	var statusErr *presigned.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.False(t, statusErr.Temporary(), "4xx is not retryable")
}

func TestGet(t *testing.T) {
	payload := bytes.Repeat([]byte("pixel"), 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write(payload)
	}))
	defer srv.Close()

	var final int64
	data, err := presigned.NewClient().Get(context.Background(), srv.URL,
		func(n int64) { final = n })
	require.NoError(t, err)

	assert.Equal(t, payload, data)
	assert.Equal(t, int64(len(payload)), final)
}

func TestGetServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := presigned.NewClient().Get(context.Background(), srv.URL, nil)
	require.Error(t, err)

	var statusErr *presigned.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.True(t, statusErr.Temporary(), "5xx is retryable")
}

func TestGetContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := presigned.NewClient().Get(ctx, srv.URL, nil)
	assert.Error(t, err)
}
