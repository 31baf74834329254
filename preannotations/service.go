// Package preannotations uploads annotation files to a project through a
// direct-upload signed URL and tracks the server-side ingestion job to a
// terminal state.
package preannotations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/labellerr/labellerr-go/api"
	"github.com/labellerr/labellerr-go/jobs"
	"github.com/labellerr/labellerr-go/upload"
)

// Formats the platform accepts for preannotation files.
var Formats = []string{"json", "coco_json", "csv", "png"}

// Service executes preannotation operations against the gateway.
type Service struct {
	api     *api.Client
	gcs     *upload.GCSUploader
	tracker *jobs.Tracker
	logger  log.Logger
}

// NewService wires the preannotation service. gcs may be nil.
func NewService(apiClient *api.Client, gcs *upload.GCSUploader, tracker *jobs.Tracker, logger log.Logger) *Service {
	if gcs == nil {
		gcs = upload.NewGCSUploader(nil, logger)
	}
	if tracker == nil {
		tracker = jobs.NewTracker(logger)
	}
	return &Service{
		api:     apiClient,
		gcs:     gcs,
		tracker: tracker,
		logger:  logger,
	}
}

// UploadParams configures one preannotation upload.
type UploadParams struct {
	ProjectID        string
	ClientID         string
	AnnotationFormat string
	AnnotationFile   string
	// Track bounds the ingestion-job polling; zero values mean the
	// platform's 5 second interval with no upper bound.
	Track jobs.Options
}

// Validate ...
func (p UploadParams) Validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.ProjectID, validation.Required),
		validation.Field(&p.ClientID, validation.Required),
		validation.Field(&p.AnnotationFormat, validation.Required, validation.In(toAny(Formats)...)),
		validation.Field(&p.AnnotationFile, validation.Required),
	); err != nil {
		return err
	}
	if p.AnnotationFormat == "coco_json" && strings.ToLower(filepath.Ext(p.AnnotationFile)) != ".json" {
		return fmt.Errorf("coco_json annotation format requires a .json file")
	}
	if _, err := os.Stat(p.AnnotationFile); err != nil {
		return fmt.Errorf("annotation file: %w", err)
	}
	return nil
}

// Upload pushes the annotation file to the platform, triggers ingestion and
// blocks until the job reaches a terminal state. The final job status is
// returned; a server-side failure surfaces as *jobs.FailedError.
func (s *Service) Upload(ctx context.Context, params UploadParams) (jobs.Status, error) {
	if err := params.Validate(); err != nil {
		return jobs.Status{}, fmt.Errorf("upload preannotation: %w", err)
	}

	fileName := filepath.Base(params.AnnotationFile)
	gcsPath := fmt.Sprintf("%s/%s-%s", params.ProjectID, params.AnnotationFormat, fileName)

	s.logger.Infof("Uploading annotation file %s...", fileName)
	signedURL, err := s.api.DirectUploadURL(ctx, params.ClientID, "pre-annotations", gcsPath)
	if err != nil {
		return jobs.Status{}, err
	}
	if err := s.gcs.UploadDirect(ctx, signedURL, params.AnnotationFile); err != nil {
		return jobs.Status{}, fmt.Errorf("upload annotation file: %w", err)
	}

	jobID, err := s.trigger(ctx, params, gcsPath)
	if err != nil {
		return jobs.Status{}, err
	}
	s.logger.Infof("Preannotation upload successful, job id: %s", jobID)

	return s.tracker.Track(ctx, s.statusFunc(params.ProjectID, params.ClientID, jobID), params.Track)
}

// UploadAsync runs Upload on its own goroutine and delivers the final job
// status on the returned channel.
func (s *Service) UploadAsync(ctx context.Context, params UploadParams) <-chan jobs.Result {
	done := make(chan jobs.Result, 1)
	go func() {
		status, err := s.Upload(ctx, params)
		done <- jobs.Result{Status: status, Err: err}
	}()
	return done
}

// trigger starts the server-side ingestion of the uploaded file and returns
// the job id.
func (s *Service) trigger(ctx context.Context, params UploadParams, gcsPath string) (string, error) {
	query := url.Values{}
	query.Set("project_id", params.ProjectID)
	query.Set("answer_format", params.AnnotationFormat)
	query.Set("client_id", params.ClientID)
	query.Set("gcs_path", gcsPath)

	var response struct {
		JobID string `json:"job_id"`
	}
	err := s.api.DoJSON(ctx, api.RequestOptions{
		Method:       http.MethodPost,
		Path:         "/actions/upload_answers",
		Query:        query,
		ClientID:     params.ClientID,
		ExtraHeaders: map[string]string{"email_id": s.api.EmailID()},
	}, &response)
	if err != nil {
		return "", fmt.Errorf("trigger preannotation ingestion: %w", err)
	}
	return response.JobID, nil
}

// JobStatus fetches the current state of an ingestion job.
func (s *Service) JobStatus(ctx context.Context, projectID, clientID, jobID string) (jobs.Status, error) {
	return s.statusFunc(projectID, clientID, jobID)(ctx)
}

func (s *Service) statusFunc(projectID, clientID, jobID string) jobs.StatusFunc {
	return func(ctx context.Context) (jobs.Status, error) {
		query := url.Values{}
		query.Set("project_id", projectID)
		query.Set("job_id", jobID)
		query.Set("client_id", clientID)

		envelope, err := s.api.Do(ctx, api.RequestOptions{
			Method:   http.MethodGet,
			Path:     "/actions/upload_answers_status",
			Query:    query,
			ClientID: clientID,
		})
		if err != nil {
			return jobs.Status{}, fmt.Errorf("get preannotation job status: %w", err)
		}

		var response struct {
			Status string `json:"status"`
		}
		if err := api.DecodeResponse(envelope, &response); err != nil {
			return jobs.Status{}, fmt.Errorf("decode job status: %w", err)
		}
		return jobs.Status{State: response.Status, Payload: envelope.Response}, nil
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
