// Package projects covers project operations: creation, the full project
// initiation orchestration (dataset upload, readiness wait, annotation
// guideline, project setup), listing and rotation configuration.
package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/labellerr/labellerr-go/api"
	"github.com/labellerr/labellerr-go/config"
	"github.com/labellerr/labellerr-go/datasets"
	"github.com/labellerr/labellerr-go/jobs"
)

// RotationConfig controls how many annotation and review rounds each file
// goes through.
type RotationConfig struct {
	AnnotationRotationCount   int `json:"annotation_rotation_count"`
	ReviewRotationCount       int `json:"review_rotation_count"`
	ClientReviewRotationCount int `json:"client_review_rotation_count"`
}

// DefaultRotationConfig is one annotation, review and client-review round.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		AnnotationRotationCount:   1,
		ReviewRotationCount:       1,
		ClientReviewRotationCount: 1,
	}
}

// Validate enforces the platform's rotation rules: exactly one review
// round, and client review rounds constrained by the annotation rounds.
func (c RotationConfig) Validate() error {
	if c.ReviewRotationCount != 1 {
		return fmt.Errorf("review_rotation_count must be 1")
	}
	switch {
	case c.AnnotationRotationCount == 0 && c.ClientReviewRotationCount != 0:
		return fmt.Errorf("client_review_rotation_count must be 0 when annotation_rotation_count is 0")
	case c.AnnotationRotationCount == 1 && c.ClientReviewRotationCount != 0 && c.ClientReviewRotationCount != 1:
		return fmt.Errorf("client_review_rotation_count can only be 0 or 1 when annotation_rotation_count is 1")
	case c.AnnotationRotationCount > 1 && c.ClientReviewRotationCount != 0:
		return fmt.Errorf("client_review_rotation_count must be 0 when annotation_rotation_count is greater than 1")
	}
	return nil
}

// OptionTypes the annotation guideline accepts.
var OptionTypes = []string{
	"input", "radio", "boolean", "select", "dropdown", "stt", "imc",
	"BoundingBox", "polygon", "dot", "audio",
}

// Question is one entry of an annotation guideline.
type Question struct {
	QuestionNumber int      `json:"question_number,omitempty"`
	Question       string   `json:"question"`
	OptionType     string   `json:"option_type"`
	Required       bool     `json:"required,omitempty"`
	Options        []any    `json:"options,omitempty"`
	SelectOptions  []string `json:"select_options,omitempty"`
}

// Validate ...
func (q Question) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.OptionType, validation.Required, validation.In(toAny(OptionTypes)...)),
	)
}

// Service executes project operations against the gateway.
type Service struct {
	api      *api.Client
	datasets *datasets.Service
	logger   log.Logger
}

// NewService wires the project service; datasetService is used by the
// initiation orchestration and may be nil when only the plain project
// endpoints are needed.
func NewService(apiClient *api.Client, datasetService *datasets.Service, logger log.Logger) *Service {
	return &Service{
		api:      apiClient,
		datasets: datasetService,
		logger:   logger,
	}
}

type createProjectRequest struct {
	ProjectName          string          `json:"project_name"`
	AttachedDatasets     []string        `json:"attached_datasets"`
	DataType             config.DataType `json:"data_type"`
	AnnotationTemplateID string          `json:"annotation_template_id"`
	Rotations            RotationConfig  `json:"rotations"`
	CreatedBy            string          `json:"created_by,omitempty"`
}

// CreateProjectParams configures plain project creation from an existing
// dataset and annotation template.
type CreateProjectParams struct {
	ProjectName          string
	DataType             config.DataType
	ClientID             string
	DatasetID            string
	AnnotationTemplateID string
	RotationConfig       RotationConfig
	CreatedBy            string
}

// Create creates a project attached to an existing dataset.
func (s *Service) Create(ctx context.Context, params CreateProjectParams) (string, error) {
	query := url.Values{}
	query.Set("client_id", params.ClientID)

	var response struct {
		ProjectID string `json:"project_id"`
	}
	err := s.api.DoJSON(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/projects/create",
		Query:    query,
		ClientID: params.ClientID,
		Body: createProjectRequest{
			ProjectName:          params.ProjectName,
			AttachedDatasets:     []string{params.DatasetID},
			DataType:             params.DataType,
			AnnotationTemplateID: params.AnnotationTemplateID,
			Rotations:            params.RotationConfig,
			CreatedBy:            params.CreatedBy,
		},
	}, &response)
	if err != nil {
		return "", fmt.Errorf("create project: %w", err)
	}
	return response.ProjectID, nil
}

// Project is one entry of the project list.
type Project struct {
	ProjectID   string          `json:"project_id"`
	ProjectName string          `json:"project_name"`
	DataType    config.DataType `json:"data_type"`
}

// List returns every project visible to the client.
func (s *Service) List(ctx context.Context, clientID string) ([]Project, error) {
	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	var projects []Project
	err := s.api.DoJSON(ctx, api.RequestOptions{
		Method:   http.MethodGet,
		Path:     "/project_drafts/projects/detailed_list",
		Query:    query,
		ClientID: clientID,
	}, &projects)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

const defaultSearchPageSize = 10

// FileSearchParams filters a project file search. Size of 0 falls back to
// the platform default page size; NextSearchAfter carries the pagination
// cursor from the previous page.
type FileSearchParams struct {
	SearchQueries   map[string]any
	Size            int
	NextSearchAfter any
}

// Validate ...
func (p FileSearchParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.SearchQueries, validation.Required),
	)
}

// SearchFiles lists files in the project matching the search queries and
// returns the raw result page, including the pagination cursor.
func (s *Service) SearchFiles(ctx context.Context, clientID, projectID string, params FileSearchParams) (json.RawMessage, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("file search params: %w", err)
	}
	if params.Size <= 0 {
		params.Size = defaultSearchPageSize
	}

	query := url.Values{}
	query.Set("project_id", projectID)
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	envelope, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/search/project_files",
		Query:    query,
		ClientID: clientID,
		Body: map[string]any{
			"search_queries":    params.SearchQueries,
			"size":              params.Size,
			"next_search_after": params.NextSearchAfter,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search project files: %w", err)
	}
	return json.RawMessage(envelope.Response), nil
}

// BulkAssignParams moves a set of files to a new status, optionally
// assigning them to a user.
type BulkAssignParams struct {
	FileIDs   []string
	NewStatus string
	AssignTo  string
}

// Validate ...
func (p BulkAssignParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FileIDs, validation.Required),
		validation.Field(&p.NewStatus, validation.Required),
	)
}

// BulkAssignFiles assigns multiple project files to a new status in one
// call.
func (s *Service) BulkAssignFiles(ctx context.Context, clientID, projectID string, params BulkAssignParams) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("bulk assign params: %w", err)
	}

	query := url.Values{}
	query.Set("project_id", projectID)
	query.Set("uuid", api.RequestID())
	query.Set("client_id", clientID)

	body := map[string]any{
		"file_ids":   params.FileIDs,
		"new_status": params.NewStatus,
	}
	if params.AssignTo != "" {
		body["assign_to"] = params.AssignTo
	}

	_, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/actions/files/bulk_assign",
		Query:    query,
		ClientID: clientID,
		Body:     body,
	})
	if err != nil {
		return fmt.Errorf("bulk assign files: %w", err)
	}
	return nil
}

// UpdateRotationCount replaces a project's rotation configuration.
func (s *Service) UpdateRotationCount(ctx context.Context, clientID, projectID string, rotations RotationConfig) error {
	if err := rotations.Validate(); err != nil {
		return fmt.Errorf("rotation config: %w", err)
	}

	query := url.Values{}
	query.Set("project_id", projectID)
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	_, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/projects/rotations/add",
		Query:    query,
		ClientID: clientID,
		Body:     rotations,
	})
	if err != nil {
		return fmt.Errorf("update rotation config: %w", err)
	}
	return nil
}

type guidelineRequest struct {
	TemplateName string     `json:"templateName"`
	Questions    []Question `json:"questions"`
}

// CreateAnnotationGuideline creates an annotation template from the given
// questions and returns its id.
func (s *Service) CreateAnnotationGuideline(ctx context.Context, clientID string, questions []Question, templateName string, dataType config.DataType) (string, error) {
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return "", fmt.Errorf("annotation guide question %d: %w", i+1, err)
		}
	}

	query := url.Values{}
	query.Set("data_type", string(dataType))
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	var response struct {
		TemplateID string `json:"template_id"`
	}
	err := s.api.DoJSON(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/annotations/create_template",
		Query:    query,
		ClientID: clientID,
		Body:     guidelineRequest{TemplateName: templateName, Questions: questions},
	}, &response)
	if err != nil {
		return "", fmt.Errorf("create annotation guideline: %w", err)
	}
	return response.TemplateID, nil
}

// InitiateParams drives the full project initiation orchestration.
type InitiateParams struct {
	ClientID           string
	ProjectName        string
	DatasetName        string
	DatasetDescription string
	DataType           config.DataType
	CreatedBy          string
	AnnotationGuide    []Question
	// RotationConfig defaults to DefaultRotationConfig when zero.
	RotationConfig *RotationConfig
	// Exactly one of FilesToUpload and FolderToUpload must be set.
	FilesToUpload  []string
	FolderToUpload string
	// ReadyTimeout bounds the dataset readiness wait; it defaults to the
	// platform's 60 second window.
	ReadyTimeout jobs.Options
}

// Validate ...
func (p InitiateParams) Validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.ClientID, validation.Required),
		validation.Field(&p.ProjectName, validation.Required),
		validation.Field(&p.DatasetName, validation.Required),
		validation.Field(&p.CreatedBy, validation.Required),
		validation.Field(&p.AnnotationGuide, validation.Required),
	); err != nil {
		return err
	}
	if !p.DataType.Valid() {
		return fmt.Errorf("invalid data_type %q, must be one of %v", p.DataType, config.DataTypes)
	}
	if len(p.FilesToUpload) > 0 && p.FolderToUpload != "" {
		return fmt.Errorf("cannot provide both files_to_upload and folder_to_upload")
	}
	if len(p.FilesToUpload) == 0 && p.FolderToUpload == "" {
		return fmt.Errorf("either files_to_upload or folder_to_upload must be provided")
	}
	return nil
}

// InitiateResult is the outcome of the orchestration.
type InitiateResult struct {
	ProjectID            string
	DatasetID            string
	AnnotationTemplateID string
}

// Initiate orchestrates project creation end to end: upload data and create
// the dataset, wait for it to become ready, create the annotation guideline,
// then create the project.
func (s *Service) Initiate(ctx context.Context, params InitiateParams) (*InitiateResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("initiate project: %w", err)
	}
	rotations := DefaultRotationConfig()
	if params.RotationConfig != nil {
		rotations = *params.RotationConfig
	}
	if err := rotations.Validate(); err != nil {
		return nil, fmt.Errorf("rotation config: %w", err)
	}
	s.logger.Infof("Rotation configuration validated")

	s.logger.Infof("Creating dataset...")
	created, err := s.datasets.Create(ctx, datasets.CreateParams{
		ClientID:       params.ClientID,
		Name:           params.DatasetName,
		Description:    params.DatasetDescription,
		DataType:       params.DataType,
		FilesToUpload:  params.FilesToUpload,
		FolderToUpload: params.FolderToUpload,
	})
	if err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}

	readyOpts := params.ReadyTimeout
	if readyOpts.Timeout <= 0 {
		readyOpts.Timeout = datasetReadyTimeout
	}
	if readyOpts.Interval <= 0 {
		readyOpts.Interval = config.JobPollInterval
	}
	// Readiness polling is best effort: a slow dataset is not fatal to
	// the remaining steps.
	if _, err := s.datasets.WaitUntilReady(ctx, params.ClientID, created.DatasetID, readyOpts); err != nil {
		s.logger.Warnf("Dataset %s not ready yet: %s", created.DatasetID, err)
	} else {
		s.logger.Infof("Dataset created and ready for use")
	}

	templateID, err := s.CreateAnnotationGuideline(ctx, params.ClientID, params.AnnotationGuide, params.ProjectName, params.DataType)
	if err != nil {
		return nil, err
	}
	s.logger.Infof("Annotation guidelines created")

	projectID, err := s.Create(ctx, CreateProjectParams{
		ProjectName:          params.ProjectName,
		DataType:             params.DataType,
		ClientID:             params.ClientID,
		DatasetID:            created.DatasetID,
		AnnotationTemplateID: templateID,
		RotationConfig:       rotations,
		CreatedBy:            params.CreatedBy,
	})
	if err != nil {
		return nil, err
	}

	return &InitiateResult{
		ProjectID:            projectID,
		DatasetID:            created.DatasetID,
		AnnotationTemplateID: templateID,
	}, nil
}

// The platform usually flips a dataset to ready well within a minute.
const datasetReadyTimeout = 60 * time.Second

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
