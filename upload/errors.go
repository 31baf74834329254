package upload

import (
	"errors"
	"fmt"
)

// ErrAllUploadsFailed is returned when every batch failed and no file was
// uploaded. Partial failure is not an error: it is reported in the Result.
var ErrAllUploadsFailed = errors.New("all file uploads failed")

// ErrNoFiles is returned when the input contains no uploadable files.
var ErrNoFiles = errors.New("no valid files to upload")

// Failure records one file that could not be uploaded and why.
type Failure struct {
	Path   string
	Reason string
}

// SessionError means phase 1 of the resumable protocol did not return the
// expected 201 with a session Location.
type SessionError struct {
	StatusCode int
	Body       string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("resumable session start failed: %d - %s", e.StatusCode, e.Body)
}

// TransferError means the phase 2 PUT did not return 200 or 201.
type TransferError struct {
	StatusCode int
	Body       string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("resumable upload failed: %d - %s", e.StatusCode, e.Body)
}

// BatchConnectError means the batch connect call failed outright; every file
// in the batch is failed, sibling batches are unaffected.
type BatchConnectError struct {
	Err error
}

func (e *BatchConnectError) Error() string {
	return fmt.Sprintf("batch connect failed: %s", e.Err)
}

func (e *BatchConnectError) Unwrap() error {
	return e.Err
}
