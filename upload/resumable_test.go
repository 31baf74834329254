package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadResumable(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "payload.bin", 256)

	var gotRange, gotResumable string
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			gotResumable = r.Header.Get("x-goog-resumable")
			w.Header().Set("Location", server.URL+"/session-1")
			w.WriteHeader(http.StatusCreated)
		case http.MethodPut:
			require.Equal(t, "/session-1", r.URL.Path)
			gotRange = r.Header.Get("Content-Range")
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	uploader := NewGCSUploader(server.Client(), log.NewLogger())
	err := uploader.UploadResumable(context.Background(), server.URL, path)

	require.NoError(t, err)
	assert.Equal(t, "start", gotResumable)
	assert.Equal(t, "bytes 0-255/256", gotRange)
}

func TestUploadResumable_RetriesWholeSequence(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "payload.bin", 64)

	var sessionStarts, puts atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			sessionStarts.Add(1)
			w.Header().Set("Location", server.URL+"/session")
			w.WriteHeader(http.StatusCreated)
		case http.MethodPut:
			// First data PUT fails, second succeeds.
			if puts.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	uploader := NewGCSUploader(server.Client(), log.NewLogger())
	err := uploader.UploadResumable(context.Background(), server.URL, path)

	require.NoError(t, err)
	// A failed PUT restarts from the session request, not mid-file.
	assert.Equal(t, int32(2), sessionStarts.Load())
	assert.Equal(t, int32(2), puts.Load())
}

func TestUploadResumable_GivesUpAfterMaxRetries(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "payload.bin", 64)

	var sessionStarts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionStarts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	uploader := NewGCSUploader(server.Client(), log.NewLogger())
	uploader.maxRetries = 2
	err := uploader.UploadResumable(context.Background(), server.URL, path)

	require.Error(t, err)
	var sessionErr *SessionError
	require.ErrorAs(t, err, &sessionErr)
	assert.Equal(t, http.StatusForbidden, sessionErr.StatusCode)
	assert.Equal(t, int32(3), sessionStarts.Load())
}

func TestUploadResumable_MissingLocalFileIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	uploader := NewGCSUploader(server.Client(), log.NewLogger())
	err := uploader.UploadResumable(context.Background(), server.URL, "/nonexistent/file.bin")

	require.Error(t, err)
	assert.Equal(t, int32(0), calls.Load())
}

func TestUploadDirect(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "annotations.json", 32)

	var gotMethod string
	var gotLength int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotLength = r.ContentLength
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	uploader := NewGCSUploader(server.Client(), log.NewLogger())
	err := uploader.UploadDirect(context.Background(), server.URL, path)

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, int64(32), gotLength)
}

func TestUploadDirect_Non2xx(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "annotations.json", 32)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	uploader := NewGCSUploader(server.Client(), log.NewLogger())
	err := uploader.UploadDirect(context.Background(), server.URL, path)

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, http.StatusBadRequest, transferErr.StatusCode)
}

func TestUploadResumable_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "empty.bin", 0)

	var gotRange string
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Header().Set("Location", server.URL+"/session-empty")
			w.WriteHeader(http.StatusCreated)
		case http.MethodPut:
			gotRange = r.Header.Get("Content-Range")
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	uploader := NewGCSUploader(server.Client(), log.NewLogger())
	err := uploader.UploadResumable(context.Background(), server.URL, path)

	require.NoError(t, err)
	assert.Equal(t, "bytes */0", gotRange)
}
