package autolabel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labellerr/labellerr-go/api"
	"github.com/labellerr/labellerr-go/config"
)

func newTestService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := log.NewLogger()
	apiClient := api.NewClient(config.Config{
		BaseURL:   server.URL,
		APIKey:    "key",
		APISecret: "secret",
	}, logger)
	return NewService(apiClient, logger)
}

func TestStartTraining(t *testing.T) {
	var gotBody map[string]any
	service := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/ml_training/training/start", r.URL.Path)
		require.Equal(t, "workspace-1", r.URL.Query().Get("client_id"))
		require.NotEmpty(t, r.URL.Query().Get("uuid"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":  "ok",
			"response": map[string]any{"job_id": "train-1"},
		})
	}))

	job, err := service.StartTraining(context.Background(), "workspace-1", TrainingRequest{
		ModelID: "yolov8",
		JobName: "cats-v1",
	})

	require.NoError(t, err)
	assert.Contains(t, string(job), "train-1")
	assert.Equal(t, "yolov8", gotBody["model_id"])
	assert.Equal(t, "cats-v1", gotBody["job_name"])
	assert.Equal(t, map[string]any{"epochs": float64(10)}, gotBody["hyperparameters"])
	assert.Equal(t, float64(100), gotBody["min_samples_per_class"])
}

func TestStartTraining_Validation(t *testing.T) {
	service := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := service.StartTraining(context.Background(), "workspace-1", TrainingRequest{JobName: "cats-v1"})
	assert.Error(t, err)

	_, err = service.StartTraining(context.Background(), "workspace-1", TrainingRequest{ModelID: "yolov8"})
	assert.Error(t, err)
}

func TestListTrainingJobs(t *testing.T) {
	service := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/ml_training/training/list", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":  "ok",
			"response": []map[string]any{{"job_id": "train-1", "status": "running"}},
		})
	}))

	jobList, err := service.ListTrainingJobs(context.Background(), "workspace-1")

	require.NoError(t, err)
	assert.Contains(t, string(jobList), "running")
}
