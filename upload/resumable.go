package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/cenkalti/backoff/v4"
)

const contentTypeOctetStream = "application/octet-stream"

// GCSUploader pushes file bytes to signed Google Cloud Storage URLs. It
// implements the two-phase resumable protocol (start a session, then PUT the
// full body with a Content-Range header) as well as plain direct uploads.
type GCSUploader struct {
	httpClient *http.Client
	logger     log.Logger
	// maxRetries bounds the retried resumable sequences per file. A failed
	// phase 2 restarts from phase 1; offsets are never resumed mid-file.
	maxRetries uint64
}

// NewGCSUploader creates an uploader. httpClient may be nil, in which case a
// client without a global timeout is used (signed-URL hosts are slow for
// large bodies; cancellation comes from ctx).
func NewGCSUploader(httpClient *http.Client, logger log.Logger) *GCSUploader {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GCSUploader{
		httpClient: httpClient,
		logger:     logger,
		maxRetries: 3,
	}
}

// UploadResumable uploads one file to a signed URL using a resumable
// session. The whole two-phase sequence is retried with exponential backoff
// on failure.
func (u *GCSUploader) UploadResumable(ctx context.Context, signedURL, filePath string) error {
	operation := func() error {
		return u.uploadResumableOnce(ctx, signedURL, filePath)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), u.maxRetries), ctx)
	return backoff.Retry(operation, policy)
}

func (u *GCSUploader) uploadResumableOnce(ctx context.Context, signedURL, filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("stat %s: %w", filePath, err))
	}
	size := info.Size()

	sessionURL, err := u.startSession(ctx, signedURL)
	if err != nil {
		return err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("open %s: %w", filePath, err))
	}
	defer func() {
		if err := file.Close(); err != nil {
			u.logger.Errorf("failed to close file: %s", err)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, file)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create upload request: %w", err))
	}
	req.Header.Set("Content-Type", contentTypeOctetStream)
	// An empty file has no byte range; the session is finalized with the
	// total-size-only form of the header and no body.
	contentRange := fmt.Sprintf("bytes 0-%d/%d", size-1, size)
	if size == 0 {
		contentRange = "bytes */0"
		req.Body = http.NoBody
	}
	req.Header.Set("Content-Range", contentRange)
	req.ContentLength = size

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload to session url: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &TransferError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	return nil
}

// startSession issues the phase 1 request carrying the x-goog-resumable
// header and returns the session upload URL from the Location header.
func (u *GCSUploader) startSession(ctx context.Context, signedURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signedURL, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("create session request: %w", err))
	}
	req.Header.Set("x-goog-resumable", "start")
	req.Header.Set("Content-Type", contentTypeOctetStream)
	req.Header.Set("Content-Length", "0")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("start resumable session: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusCreated {
		return "", &SessionError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", &SessionError{StatusCode: resp.StatusCode, Body: "missing Location header"}
	}
	return location, nil
}

// UploadDirect uploads one file to a signed URL with a single streamed PUT.
// Used for small payloads such as preannotation files.
func (u *GCSUploader) UploadDirect(ctx context.Context, signedURL, filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", filePath, err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filePath, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			u.logger.Errorf("failed to close file: %s", err)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, file)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeOctetStream)
	req.ContentLength = info.Size()

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("direct upload: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &TransferError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	return nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = 0
	return b
}

func readErrorBody(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 1024))
	if err != nil {
		return ""
	}
	return string(raw)
}
