// Package exports creates local export jobs, polls their generation status,
// and downloads the finished report archives.
package exports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bitrise-io/go-utils/v2/log"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/labellerr/labellerr-go/api"
	"github.com/labellerr/labellerr-go/jobs"
)

// Formats the platform can generate locally.
var Formats = []string{"json", "coco_json", "csv", "png"}

// Statuses that can be included in an export.
var Statuses = []string{"review", "r_assigned", "client_review", "cr_assigned", "accepted"}

// ExportConfig describes one export job.
type ExportConfig struct {
	ExportName        string   `json:"export_name"`
	ExportDescription string   `json:"export_description"`
	ExportFormat      string   `json:"export_format"`
	Statuses          []string `json:"statuses"`
	// Filled in by the service; local exports always cover all questions.
	ExportDestination string   `json:"export_destination,omitempty"`
	QuestionIDs       []string `json:"question_ids,omitempty"`
}

// Validate ...
func (c ExportConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ExportName, validation.Required),
		validation.Field(&c.ExportDescription, validation.Required),
		validation.Field(&c.ExportFormat, validation.Required, validation.In(toAny(Formats)...)),
		validation.Field(&c.Statuses, validation.Required, validation.Each(validation.In(toAny(Statuses)...))),
	)
}

// ReportStatus is one entry of the export status endpoint's response.
type ReportStatus struct {
	ReportID     string `json:"report_id"`
	IsCompleted  bool   `json:"is_completed"`
	ExportStatus string `json:"export_status"`
}

// Generated reports whether the archive is ready for download.
func (r ReportStatus) Generated() bool {
	return r.IsCompleted && r.ExportStatus == "Created"
}

// Service executes export operations against the gateway.
type Service struct {
	api     *api.Client
	tracker *jobs.Tracker
	logger  log.Logger
}

// NewService ...
func NewService(apiClient *api.Client, tracker *jobs.Tracker, logger log.Logger) *Service {
	if tracker == nil {
		tracker = jobs.NewTracker(logger)
	}
	return &Service{
		api:     apiClient,
		tracker: tracker,
		logger:  logger,
	}
}

// CreateLocal starts a local export job and returns the report id.
func (s *Service) CreateLocal(ctx context.Context, projectID, clientID string, cfg ExportConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("export config: %w", err)
	}
	cfg.ExportDestination = "local"
	cfg.QuestionIDs = []string{"all"}

	query := url.Values{}
	query.Set("project_id", projectID)
	query.Set("client_id", clientID)

	var response struct {
		ReportID string `json:"report_id"`
	}
	err := s.api.DoJSON(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/sdk/export/files",
		Query:    query,
		ClientID: clientID,
		Body:     cfg,
	}, &response)
	if err != nil {
		return "", fmt.Errorf("create local export: %w", err)
	}
	return response.ReportID, nil
}

// CheckStatus fetches the generation status of the given reports.
func (s *Service) CheckStatus(ctx context.Context, projectID, clientID string, reportIDs []string) ([]ReportStatus, error) {
	if len(reportIDs) == 0 {
		return nil, fmt.Errorf("report_ids must be a non-empty list")
	}

	query := url.Values{}
	query.Set("project_id", projectID)
	query.Set("uuid", api.RequestID())
	query.Set("client_id", clientID)

	envelope, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/exports/status",
		Query:    query,
		ClientID: clientID,
		Body:     map[string][]string{"report_ids": reportIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("check export status: %w", err)
	}

	// The status endpoint reports at the envelope's top level, not inside
	// the response field.
	var body struct {
		Status []ReportStatus `json:"status"`
	}
	if len(envelope.Response) > 0 {
		if err := api.DecodeResponse(envelope, &body); err != nil {
			return nil, fmt.Errorf("decode export status: %w", err)
		}
	}
	return body.Status, nil
}

// FetchDownloadURL returns the signed download URL of one generated report.
func (s *Service) FetchDownloadURL(ctx context.Context, projectID, clientID, reportID string) (string, error) {
	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("project_id", projectID)
	query.Set("uuid", api.RequestID())
	query.Set("report_id", reportID)

	var response struct {
		DownloadURL string `json:"download_url"`
	}
	err := s.api.DoJSON(ctx, api.RequestOptions{
		Method:   http.MethodGet,
		Path:     "/exports/download",
		Query:    query,
		ClientID: clientID,
	}, &response)
	if err != nil {
		return "", fmt.Errorf("fetch download url for report %s: %w", reportID, err)
	}
	return response.DownloadURL, nil
}

// WaitForReports polls the status endpoint until every report is generated,
// then returns one download URL per report id. Bounds come from opts; the
// default interval is the platform's job poll interval.
func (s *Service) WaitForReports(ctx context.Context, projectID, clientID string, reportIDs []string, opts jobs.Options) (map[string]string, error) {
	fetch := func(ctx context.Context) (jobs.Status, error) {
		statuses, err := s.CheckStatus(ctx, projectID, clientID, reportIDs)
		if err != nil {
			return jobs.Status{}, err
		}
		payload, _ := json.Marshal(statuses)
		state := jobs.StateCompleted
		for _, status := range statuses {
			if status.ExportStatus == "Failed" {
				return jobs.Status{State: jobs.StateFailed, Payload: payload}, nil
			}
			if !status.Generated() {
				state = "processing"
			}
		}
		if len(statuses) < len(reportIDs) {
			state = "processing"
		}
		return jobs.Status{State: state, Payload: payload}, nil
	}

	if _, err := s.tracker.Track(ctx, fetch, opts); err != nil {
		return nil, fmt.Errorf("wait for export reports: %w", err)
	}

	urls := make(map[string]string, len(reportIDs))
	for _, reportID := range reportIDs {
		downloadURL, err := s.FetchDownloadURL(ctx, projectID, clientID, reportID)
		if err != nil {
			return nil, err
		}
		urls[reportID] = downloadURL
	}
	return urls, nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
