package exports

import (
	"compress/gzip"
	"context"
	"encoding/json"
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
)

func TestExportConfigValidate(t *testing.T) {
	valid := ExportConfig{
		ExportName:        "weekly",
		ExportDescription: "weekly accepted annotations",
		ExportFormat:      "coco_json",
		Statuses:          []string{"accepted"},
	}
	assert.NoError(t, valid.Validate())

	badFormat := valid
	badFormat.ExportFormat = "yolo"
	assert.Error(t, badFormat.Validate())

	badStatus := valid
	badStatus.Statuses = []string{"accepted", "pending"}
	assert.Error(t, badStatus.Validate())

	missingName := valid
	missingName.ExportName = ""
	assert.Error(t, missingName.Validate())
}

func TestReportStatusGenerated(t *testing.T) {
	assert.True(t, ReportStatus{IsCompleted: true, ExportStatus: "Created"}.Generated())
	assert.False(t, ReportStatus{IsCompleted: false, ExportStatus: "Created"}.Generated())
	assert.False(t, ReportStatus{IsCompleted: true, ExportStatus: "Creating"}.Generated())
}

func newExportService(t *testing.T, handler http.Handler) (*Service, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := log.NewLogger()
	apiClient := api.NewClient(config.Config{
		BaseURL:   server.URL,
		APIKey:    "key",
		APISecret: "secret",
	}, logger)
	return NewService(apiClient, nil, logger), server
}

func TestCreateLocal(t *testing.T) {
	var gotBody map[string]any
	service, _ := newExportService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sdk/export/files", r.URL.Path)
		assert.Equal(t, "proj-1", r.URL.Query().Get("project_id"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"message":"ok","response":{"report_id":"rep-1"}}`))
	}))

	reportID, err := service.CreateLocal(context.Background(), "proj-1", "workspace-1", ExportConfig{
		ExportName:        "weekly",
		ExportDescription: "weekly accepted annotations",
		ExportFormat:      "json",
		Statuses:          []string{"accepted", "review"},
	})

	require.NoError(t, err)
	assert.Equal(t, "rep-1", reportID)
	// Local exports always go to the local destination and cover every question.
	assert.Equal(t, "local", gotBody["export_destination"])
	assert.Equal(t, []any{"all"}, gotBody["question_ids"])
}

func TestCreateLocal_InvalidConfig(t *testing.T) {
	service, _ := newExportService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an invalid config")
	}))

	_, err := service.CreateLocal(context.Background(), "proj-1", "workspace-1", ExportConfig{})

	assert.ErrorContains(t, err, "export config")
}

func TestCheckStatus(t *testing.T) {
	service, _ := newExportService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/exports/status", r.URL.Path)
		var body map[string][]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, []string{"rep-1", "rep-2"}, body["report_ids"])
		w.Write([]byte(`{"message":"ok","response":{"status":[
			{"report_id":"rep-1","is_completed":true,"export_status":"Created"},
			{"report_id":"rep-2","is_completed":false,"export_status":"Creating"}
		]}}`))
	}))

	statuses, err := service.CheckStatus(context.Background(), "proj-1", "workspace-1", []string{"rep-1", "rep-2"})

	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Generated())
	assert.False(t, statuses[1].Generated())

	t.Run("empty report list", func(t *testing.T) {
		_, err := service.CheckStatus(context.Background(), "proj-1", "workspace-1", nil)
		assert.ErrorContains(t, err, "non-empty")
	})
}

func TestWaitForReports(t *testing.T) {
	var statusCalls atomic.Int32
	service, _ := newExportService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/exports/status":
			exportStatus := "Creating"
			completed := false
			if statusCalls.Add(1) >= 2 {
				exportStatus = "Created"
				completed = true
			}
			raw, _ := json.Marshal(map[string]any{"status": []ReportStatus{
				{ReportID: "rep-1", IsCompleted: completed, ExportStatus: exportStatus},
			}})
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok", "response": json.RawMessage(raw)})
		case "/exports/download":
			assert.Equal(t, "rep-1", r.URL.Query().Get("report_id"))
			w.Write([]byte(`{"message":"ok","response":{"download_url":"https://storage.example/rep-1.gz"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	urls, err := service.WaitForReports(context.Background(), "proj-1", "workspace-1", []string{"rep-1"}, jobs.Options{
		Interval: time.Millisecond,
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"rep-1": "https://storage.example/rep-1.gz"}, urls)
	assert.Equal(t, int32(2), statusCalls.Load())
}

func TestWaitForReports_Failure(t *testing.T) {
	service, _ := newExportService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := json.Marshal(map[string]any{"status": []ReportStatus{
			{ReportID: "rep-1", ExportStatus: "Failed"},
		}})
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok", "response": json.RawMessage(raw)})
	}))

	_, err := service.WaitForReports(context.Background(), "proj-1", "workspace-1", []string{"rep-1"}, jobs.Options{
		Interval: time.Millisecond,
	})

	var failedErr *jobs.FailedError
	assert.ErrorAs(t, err, &failedErr)
}

func TestDownload_PlainFile(t *testing.T) {
	service, server := newExportService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"annotations":[]}`))
	}))

	dest := filepath.Join(t.TempDir(), "report.json")
	path, err := service.Download(context.Background(), server.URL+"/file", dest)

	require.NoError(t, err)
	assert.Equal(t, dest, path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"annotations":[]}`, string(content))
}

func TestDownload_GzipIsDecompressed(t *testing.T) {
	service, server := newExportService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writer := gzip.NewWriter(w)
		_, _ = writer.Write([]byte(`{"annotations":[1]}`))
		_ = writer.Close()
	}))

	dest := filepath.Join(t.TempDir(), "report.json.gz")
	path, err := service.Download(context.Background(), server.URL+"/file", dest)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(dest), "report.json"), path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"annotations":[1]}`, string(content))
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownload_EmptyURL(t *testing.T) {
	service, _ := newExportService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	_, err := service.Download(context.Background(), "", filepath.Join(t.TempDir(), "x"))

	assert.ErrorContains(t, err, "empty")
}
