// Package datasets covers dataset lifecycle operations: creation with local
// or cloud-connector sources, readiness tracking, listing, attachment to
// projects and deletion.
package datasets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/labellerr/labellerr-go/api"
	"github.com/labellerr/labellerr-go/config"
	"github.com/labellerr/labellerr-go/jobs"
	"github.com/labellerr/labellerr-go/upload"
)

// Scope is the permission level used when listing datasets.
type Scope string

// Supported scopes.
const (
	ScopeProject Scope = "project"
	ScopeClient  Scope = "client"
	ScopePublic  Scope = "public"
)

// Dataset is the platform's description of a dataset.
type Dataset struct {
	DatasetID   string          `json:"dataset_id"`
	Name        string          `json:"dataset_name"`
	Description string          `json:"dataset_description"`
	DataType    config.DataType `json:"data_type"`
	FilesCount  int             `json:"files_count"`
	// StatusCode is the platform's readiness marker; readyStatusCode means
	// the dataset is ready for use.
	StatusCode int `json:"status_code"`
}

// The platform reports this status code once a dataset is ready.
const readyStatusCode = 300

// Ready reports whether the dataset can be attached to projects.
func (d Dataset) Ready() bool {
	return d.StatusCode == readyStatusCode
}

// Service executes dataset operations against the gateway.
type Service struct {
	api      *api.Client
	uploader *upload.Uploader
	tracker  *jobs.Tracker
	logger   log.Logger
}

// NewService wires the dataset service. uploader may be nil when the caller
// never uploads local files.
func NewService(apiClient *api.Client, uploader *upload.Uploader, tracker *jobs.Tracker, logger log.Logger) *Service {
	if uploader == nil {
		uploader = upload.NewUploader(apiClient, nil, logger)
	}
	if tracker == nil {
		tracker = jobs.NewTracker(logger)
	}
	return &Service{
		api:      apiClient,
		uploader: uploader,
		tracker:  tracker,
		logger:   logger,
	}
}

// CreateParams configures dataset creation. Exactly one of FilesToUpload,
// FolderToUpload or ConnectionID must describe the data source; a connection
// id typically comes from a cloud connector.
type CreateParams struct {
	ClientID    string
	Name        string
	Description string
	DataType    config.DataType
	// FilesToUpload are local files uploaded before the dataset is created.
	FilesToUpload []string
	// FolderToUpload is a local folder scanned for files of DataType.
	FolderToUpload string
	// IncludePatterns optionally narrows the folder scan with glob patterns.
	IncludePatterns []string
	// ConnectionID references files already connected to the platform.
	ConnectionID string
}

// Validate ...
func (p CreateParams) Validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.ClientID, validation.Required),
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.DataType, validation.Required),
	); err != nil {
		return err
	}
	if !p.DataType.Valid() {
		return fmt.Errorf("invalid data_type %q, must be one of %v", p.DataType, config.DataTypes)
	}
	sources := 0
	if len(p.FilesToUpload) > 0 {
		sources++
	}
	if p.FolderToUpload != "" {
		sources++
	}
	if p.ConnectionID != "" {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("exactly one of files_to_upload, folder_to_upload or connection_id must be provided")
	}
	return nil
}

// CreateResult is the outcome of dataset creation, including the per-file
// upload accounting when local files were involved.
type CreateResult struct {
	DatasetID string
	Upload    *upload.Result
}

type createRequest struct {
	DatasetName        string          `json:"dataset_name"`
	DatasetDescription string          `json:"dataset_description"`
	DataType           config.DataType `json:"data_type"`
	ConnectionID       string          `json:"connection_id"`
	Path               string          `json:"path"`
	ClientID           string          `json:"client_id"`
}

// Create uploads the dataset's files (when a local source is given) and
// creates the dataset from the resulting connection.
func (s *Service) Create(ctx context.Context, params CreateParams) (*CreateResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}

	result := &CreateResult{}
	connectionID := params.ConnectionID

	switch {
	case len(params.FilesToUpload) > 0:
		uploadResult, err := s.uploader.UploadFiles(ctx, params.ClientID, params.FilesToUpload, upload.Params{})
		if err != nil {
			return nil, fmt.Errorf("upload files to dataset: %w", err)
		}
		result.Upload = uploadResult
		connectionID = uploadResult.ConnectionID

	case params.FolderToUpload != "":
		uploadResult, err := s.uploadFolder(ctx, params)
		if err != nil {
			return nil, err
		}
		result.Upload = uploadResult
		connectionID = uploadResult.ConnectionID
	}

	query := url.Values{}
	query.Set("client_id", params.ClientID)
	query.Set("uuid", api.RequestID())

	var response struct {
		DatasetID string `json:"dataset_id"`
	}
	err := s.api.DoJSON(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/datasets/create",
		Query:    query,
		ClientID: params.ClientID,
		Body: createRequest{
			DatasetName:        params.Name,
			DatasetDescription: params.Description,
			DataType:           params.DataType,
			ConnectionID:       connectionID,
			Path:               "local",
			ClientID:           params.ClientID,
		},
	}, &response)
	if err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}

	result.DatasetID = response.DatasetID
	return result, nil
}

// uploadFolder scans the folder, enforces the dataset-level ceilings and
// uploads what it found.
func (s *Service) uploadFolder(ctx context.Context, params CreateParams) (*upload.Result, error) {
	scan, err := upload.ScanFolder(params.FolderToUpload, params.DataType, params.IncludePatterns)
	if err != nil {
		return nil, fmt.Errorf("analyze folder contents: %w", err)
	}

	if scan.FileCount > config.DatasetFileCountLimit {
		return nil, fmt.Errorf("total file count %d exceeds limit of %d files", scan.FileCount, config.DatasetFileCountLimit)
	}
	if scan.TotalSize > config.DatasetSizeLimitBytes {
		return nil, fmt.Errorf("total file size %s exceeds limit of %s",
			units.HumanSize(float64(scan.TotalSize)), units.HumanSize(float64(config.DatasetSizeLimitBytes)))
	}

	s.logger.Infof("Uploading %d files (%s) from %s", scan.FileCount, units.HumanSize(float64(scan.TotalSize)), params.FolderToUpload)
	return s.uploader.UploadFiles(ctx, params.ClientID, scan.Paths, upload.Params{})
}

// Get fetches a single dataset description.
func (s *Service) Get(ctx context.Context, clientID, datasetID string) (Dataset, error) {
	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	var dataset Dataset
	err := s.api.DoJSON(ctx, api.RequestOptions{
		Method:       http.MethodGet,
		Path:         "/datasets/" + datasetID,
		Query:        query,
		ClientID:     clientID,
		ExtraHeaders: map[string]string{"Origin": config.AllowedOrigin},
	}, &dataset)
	if err != nil {
		return Dataset{}, fmt.Errorf("get dataset %s: %w", datasetID, err)
	}
	if dataset.DatasetID == "" {
		dataset.DatasetID = datasetID
	}
	return dataset, nil
}

// List returns the datasets visible under the given scope.
func (s *Service) List(ctx context.Context, clientID string, dataType config.DataType, projectID string, scope Scope) ([]Dataset, error) {
	if err := validation.Validate(string(scope), validation.Required, validation.In(string(ScopeProject), string(ScopeClient), string(ScopePublic))); err != nil {
		return nil, fmt.Errorf("scope: %w", err)
	}

	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("data_type", string(dataType))
	query.Set("permission_level", string(scope))
	query.Set("project_id", projectID)
	query.Set("uuid", api.RequestID())

	var datasets []Dataset
	err := s.api.DoJSON(ctx, api.RequestOptions{
		Method:   http.MethodGet,
		Path:     "/datasets/list",
		Query:    query,
		ClientID: clientID,
	}, &datasets)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return datasets, nil
}

// Delete removes a dataset.
func (s *Service) Delete(ctx context.Context, clientID, datasetID string) error {
	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	_, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodDelete,
		Path:     "/datasets/" + datasetID + "/delete",
		Query:    query,
		ClientID: clientID,
	})
	if err != nil {
		return fmt.Errorf("delete dataset %s: %w", datasetID, err)
	}
	return nil
}

type attachRequest struct {
	AttachedDatasets []string `json:"attached_datasets"`
}

// AttachToProject attaches datasets to an existing project.
func (s *Service) AttachToProject(ctx context.Context, clientID, projectID string, datasetIDs []string) error {
	if len(datasetIDs) == 0 {
		return fmt.Errorf("at least one dataset id must be provided")
	}

	query := url.Values{}
	query.Set("project_id", projectID)
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	_, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/actions/jobs/add_datasets_to_project",
		Query:    query,
		ClientID: clientID,
		Body:     attachRequest{AttachedDatasets: datasetIDs},
	})
	if err != nil {
		return fmt.Errorf("attach datasets to project %s: %w", projectID, err)
	}
	return nil
}

// DetachFromProject detaches datasets from an existing project.
func (s *Service) DetachFromProject(ctx context.Context, clientID, projectID string, datasetIDs []string) error {
	if len(datasetIDs) == 0 {
		return fmt.Errorf("at least one dataset id must be provided")
	}

	query := url.Values{}
	query.Set("project_id", projectID)
	query.Set("uuid", api.RequestID())

	_, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/actions/jobs/delete_datasets_from_project",
		Query:    query,
		ClientID: clientID,
		Body:     attachRequest{AttachedDatasets: datasetIDs},
	})
	if err != nil {
		return fmt.Errorf("detach datasets from project %s: %w", projectID, err)
	}
	return nil
}

// WaitUntilReady polls the dataset until the platform reports it ready. The
// default bounds are the platform poll interval and no timeout; pass opts to
// tighten them.
func (s *Service) WaitUntilReady(ctx context.Context, clientID, datasetID string, opts jobs.Options) (Dataset, error) {
	var last Dataset
	fetch := func(ctx context.Context) (jobs.Status, error) {
		dataset, err := s.Get(ctx, clientID, datasetID)
		if err != nil {
			return jobs.Status{}, err
		}
		last = dataset
		if dataset.Ready() {
			return jobs.Status{State: jobs.StateCompleted}, nil
		}
		return jobs.Status{State: "processing"}, nil
	}
	if opts.Interval <= 0 {
		opts.Interval = config.DefaultPollInterval
	}

	if _, err := s.tracker.Track(ctx, fetch, opts); err != nil {
		return last, fmt.Errorf("wait for dataset %s: %w", datasetID, err)
	}
	return last, nil
}
