package upload

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/labellerr/labellerr-go/api"
	"github.com/labellerr/labellerr-go/config"
)

// ConnectService is the slice of the API gateway the orchestrator consumes:
// registering a batch of file names and receiving signed upload links.
type ConnectService interface {
	ConnectLocalFiles(ctx context.Context, clientID string, fileNames []string, connectionID string) (api.ConnectResult, error)
}

// Params bounds a multi-file upload call. Zero fields fall back to the
// platform defaults.
type Params struct {
	MaxBatchBytes int64
	MaxBatchCount int
	// Concurrency caps the parallel batch workers. The effective worker
	// count is min(NumCPU, batch count, Concurrency).
	Concurrency int
}

func (p Params) withDefaults() Params {
	if p.MaxBatchBytes <= 0 {
		p.MaxBatchBytes = config.FileBatchSizeBytes
	}
	if p.MaxBatchCount <= 0 {
		p.MaxBatchCount = config.FileBatchCount
	}
	if p.Concurrency <= 0 {
		p.Concurrency = config.UploadConcurrencyCap
	}
	return p
}

// Result is the aggregate of one multi-file upload call. Success and Fail
// together cover exactly the input file set, with no overlap.
type Result struct {
	// ConnectionID groups the uploaded files server-side; it goes into the
	// caller's dataset-creation payload.
	ConnectionID string
	Success      []string
	Fail         []Failure
}

// Uploader orchestrates multi-file uploads: it plans batches, registers each
// with the connect endpoint and pushes file bytes through the resumable
// uploader, running batches on a bounded worker pool.
type Uploader struct {
	connector ConnectService
	gcs       *GCSUploader
	logger    log.Logger
}

// NewUploader wires the orchestrator. gcs may be nil, in which case a
// default GCSUploader is created.
func NewUploader(connector ConnectService, gcs *GCSUploader, logger log.Logger) *Uploader {
	if gcs == nil {
		gcs = NewGCSUploader(nil, logger)
	}
	return &Uploader{
		connector: connector,
		gcs:       gcs,
		logger:    logger,
	}
}

type batchOutcome struct {
	success []string
	fail    []Failure
}

// UploadFiles uploads the given local files under a single temporary
// connection and returns the per-file accounting. It returns
// ErrAllUploadsFailed only when the success list would be empty; partial
// failure is reported in the Result, not raised.
func (u *Uploader) UploadFiles(ctx context.Context, clientID string, paths []string, params Params) (*Result, error) {
	params = params.withDefaults()

	// The connect response keys upload links by base name, so two paths
	// with the same base name would collapse into one slot. Only the first
	// occurrence is uploaded; later ones are reported as failures up front.
	unique := make([]string, 0, len(paths))
	seen := make(map[string]string, len(paths))
	var duplicates []Failure
	for _, path := range paths {
		name := filepath.Base(path)
		if first, ok := seen[name]; ok {
			duplicates = append(duplicates, Failure{
				Path:   path,
				Reason: fmt.Sprintf("duplicate file name %q, already queued from %s", name, first),
			})
			continue
		}
		seen[name] = path
		unique = append(unique, path)
	}

	plan := PlanBatches(unique, params.MaxBatchBytes, params.MaxBatchCount)
	if len(plan.Batches) == 0 {
		if len(plan.Rejected)+len(duplicates) > 0 {
			return nil, fmt.Errorf("%w: %d files rejected before upload", ErrNoFiles, len(plan.Rejected)+len(duplicates))
		}
		return nil, ErrNoFiles
	}

	workers := workerCount(len(plan.Batches), params.Concurrency)
	u.logger.Debugf("Uploading %d batches with %d workers", len(plan.Batches), workers)

	// The connection id is minted once before fan-out and shared read-only
	// across all batch workers.
	connectionID := uuid.NewString()

	outcomes := make(chan batchOutcome, len(plan.Batches))
	semaphore := make(chan struct{}, workers)

	for _, batch := range plan.Batches {
		go func(batch Batch) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			outcomes <- u.processBatch(ctx, clientID, batch, connectionID)
		}(batch)
	}

	result := &Result{
		ConnectionID: connectionID,
		Fail:         append(plan.Rejected, duplicates...),
	}
	for i := 0; i < len(plan.Batches); i++ {
		outcome := <-outcomes
		result.Success = append(result.Success, outcome.success...)
		result.Fail = append(result.Fail, outcome.fail...)
	}

	if len(result.Success) == 0 {
		return nil, ErrAllUploadsFailed
	}
	return result, nil
}

// processBatch connects one batch and uploads its files. A failed connect
// call (or a response without the success marker) fails the whole batch;
// a failed file transfer fails only that file.
func (u *Uploader) processBatch(ctx context.Context, clientID string, batch Batch, connectionID string) batchOutcome {
	u.logger.Debugf("Connecting batch of %d files (%s)", len(batch.Paths), units.HumanSize(float64(batch.Size)))

	pathsByName := make(map[string]string, len(batch.Paths))
	names := make([]string, 0, len(batch.Paths))
	for _, path := range batch.Paths {
		name := filepath.Base(path)
		pathsByName[name] = path
		names = append(names, name)
	}

	connected, err := u.connector.ConnectLocalFiles(ctx, clientID, names, connectionID)
	if err != nil {
		return failBatch(batch, &BatchConnectError{Err: err})
	}
	if !connected.Connected() {
		return failBatch(batch, &BatchConnectError{Err: fmt.Errorf("unexpected connect response: %q", connected.Message)})
	}

	var outcome batchOutcome
	for _, name := range names {
		path := pathsByName[name]
		signedURL, ok := connected.ResumableUploadLinks[name]
		if !ok {
			outcome.fail = append(outcome.fail, Failure{Path: path, Reason: "no upload link in connect response"})
			continue
		}
		if err := u.gcs.UploadResumable(ctx, signedURL, path); err != nil {
			u.logger.Errorf("Upload failed for %s: %s", path, err)
			outcome.fail = append(outcome.fail, Failure{Path: path, Reason: err.Error()})
			continue
		}
		outcome.success = append(outcome.success, path)
	}
	return outcome
}

func failBatch(batch Batch, err error) batchOutcome {
	var outcome batchOutcome
	for _, path := range batch.Paths {
		outcome.fail = append(outcome.fail, Failure{Path: path, Reason: err.Error()})
	}
	return outcome
}

func workerCount(batches, limit int) int {
	workers := runtime.NumCPU()
	if batches < workers {
		workers = batches
	}
	if limit < workers {
		workers = limit
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
