// Package autolabel starts model training jobs on the platform and lists
// their status.
package autolabel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bitrise-io/go-utils/v2/log"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/labellerr/labellerr-go/api"
)

const (
	defaultEpochs             = 10
	defaultMinSamplesPerClass = 100
)

// Hyperparameters tunes a training run.
type Hyperparameters struct {
	Epochs int `json:"epochs"`
}

// TrainingRequest configures one model training job.
type TrainingRequest struct {
	ModelID            string          `json:"model_id"`
	JobName            string          `json:"job_name"`
	Projects           []string        `json:"projects,omitempty"`
	Hyperparameters    Hyperparameters `json:"hyperparameters"`
	SliceID            string          `json:"slice_id,omitempty"`
	MinSamplesPerClass int             `json:"min_samples_per_class"`
}

// Validate ...
func (r TrainingRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ModelID, validation.Required),
		validation.Field(&r.JobName, validation.Required),
	)
}

func (r TrainingRequest) withDefaults() TrainingRequest {
	if r.Hyperparameters.Epochs <= 0 {
		r.Hyperparameters.Epochs = defaultEpochs
	}
	if r.MinSamplesPerClass <= 0 {
		r.MinSamplesPerClass = defaultMinSamplesPerClass
	}
	return r
}

// Service talks to the ML training endpoints.
type Service struct {
	api    *api.Client
	logger log.Logger
}

// NewService wires the autolabel service.
func NewService(apiClient *api.Client, logger log.Logger) *Service {
	return &Service{
		api:    apiClient,
		logger: logger,
	}
}

// StartTraining submits a training job and returns the raw job descriptor
// reported by the platform.
func (s *Service) StartTraining(ctx context.Context, clientID string, request TrainingRequest) (json.RawMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("training request: %w", err)
	}
	request = request.withDefaults()

	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	envelope, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/ml_training/training/start",
		Query:    query,
		ClientID: clientID,
		Body:     request,
	})
	if err != nil {
		return nil, fmt.Errorf("start training: %w", err)
	}
	s.logger.Infof("Training job %s submitted", request.JobName)
	return json.RawMessage(envelope.Response), nil
}

// ListTrainingJobs returns the raw list of training jobs for the client.
func (s *Service) ListTrainingJobs(ctx context.Context, clientID string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	envelope, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodGet,
		Path:     "/ml_training/training/list",
		Query:    query,
		ClientID: clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("list training jobs: %w", err)
	}
	return json.RawMessage(envelope.Response), nil
}
