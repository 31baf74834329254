package preannotations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labellerr/labellerr-go/api"
	"github.com/labellerr/labellerr-go/config"
	"github.com/labellerr/labellerr-go/jobs"
	"github.com/labellerr/labellerr-go/upload"
)

func writeAnnotationFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(`{"annotations":[]}`), 0o600))
	return path
}

func TestUploadParamsValidate(t *testing.T) {
	existing := writeAnnotationFile(t, "annotations.json")

	tests := []struct {
		name    string
		params  UploadParams
		wantErr string
	}{
		{
			name: "valid",
			params: UploadParams{
				ProjectID:        "proj-1",
				ClientID:         "workspace-1",
				AnnotationFormat: "coco_json",
				AnnotationFile:   existing,
			},
		},
		{
			name: "unknown format",
			params: UploadParams{
				ProjectID:        "proj-1",
				ClientID:         "workspace-1",
				AnnotationFormat: "yolo",
				AnnotationFile:   existing,
			},
			wantErr: "AnnotationFormat",
		},
		{
			name: "coco_json requires a json file",
			params: UploadParams{
				ProjectID:        "proj-1",
				ClientID:         "workspace-1",
				AnnotationFormat: "coco_json",
				AnnotationFile:   "annotations.csv",
			},
			wantErr: ".json",
		},
		{
			name: "file must exist",
			params: UploadParams{
				ProjectID:        "proj-1",
				ClientID:         "workspace-1",
				AnnotationFormat: "json",
				AnnotationFile:   "/nonexistent/annotations.json",
			},
			wantErr: "annotation file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

// newUploadBackend serves the direct-upload URL, the signed PUT, the trigger
// endpoint and a scripted sequence of job statuses.
func newUploadBackend(t *testing.T, statuses ...string) (*Service, *atomic.Int32) {
	statusCalls := &atomic.Int32{}
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/connectors/direct-upload-url", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok","response":"` + server.URL + `/signed"}`))
	})
	mux.HandleFunc("/signed", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/actions/upload_answers", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("email_id"))
		assert.NotEmpty(t, r.URL.Query().Get("gcs_path"))
		w.Write([]byte(`{"message":"ok","response":{"job_id":"job-1"}}`))
	})
	mux.HandleFunc("/actions/upload_answers_status", func(w http.ResponseWriter, r *http.Request) {
		index := int(statusCalls.Add(1)) - 1
		if index >= len(statuses) {
			index = len(statuses) - 1
		}
		w.Write([]byte(`{"message":"ok","response":{"status":"` + statuses[index] + `"}}`))
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	logger := log.NewLogger()
	apiClient := api.NewClient(config.Config{
		BaseURL:   server.URL,
		APIKey:    "key",
		APISecret: "secret",
	}, logger)
	gcs := upload.NewGCSUploader(server.Client(), logger)
	return NewService(apiClient, gcs, nil, logger), statusCalls
}

func TestUpload(t *testing.T) {
	service, statusCalls := newUploadBackend(t, "processing", "processing", "completed")
	path := writeAnnotationFile(t, "annotations.json")

	status, err := service.Upload(context.Background(), UploadParams{
		ProjectID:        "proj-1",
		ClientID:         "workspace-1",
		AnnotationFormat: "json",
		AnnotationFile:   path,
		Track:            jobs.Options{Interval: time.Millisecond},
	})

	require.NoError(t, err)
	assert.Equal(t, jobs.StateCompleted, status.State)
	assert.Equal(t, int32(3), statusCalls.Load())
}

func TestUpload_JobFails(t *testing.T) {
	service, statusCalls := newUploadBackend(t, "failed")
	path := writeAnnotationFile(t, "annotations.json")

	status, err := service.Upload(context.Background(), UploadParams{
		ProjectID:        "proj-1",
		ClientID:         "workspace-1",
		AnnotationFormat: "json",
		AnnotationFile:   path,
		Track:            jobs.Options{Interval: time.Millisecond},
	})

	var failedErr *jobs.FailedError
	require.ErrorAs(t, err, &failedErr)
	assert.Equal(t, jobs.StateFailed, status.State)
	assert.Equal(t, int32(1), statusCalls.Load())
}

func TestUploadAsync(t *testing.T) {
	service, _ := newUploadBackend(t, "completed")
	path := writeAnnotationFile(t, "annotations.json")

	result := <-service.UploadAsync(context.Background(), UploadParams{
		ProjectID:        "proj-1",
		ClientID:         "workspace-1",
		AnnotationFormat: "json",
		AnnotationFile:   path,
		Track:            jobs.Options{Interval: time.Millisecond},
	})

	require.NoError(t, result.Err)
	assert.Equal(t, jobs.StateCompleted, result.Status.State)
}

func TestJobStatus(t *testing.T) {
	service, _ := newUploadBackend(t, "processing")

	status, err := service.JobStatus(context.Background(), "proj-1", "workspace-1", "job-1")

	require.NoError(t, err)
	assert.Equal(t, "processing", status.State)
}
