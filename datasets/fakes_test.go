package datasets

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/labellerr/labellerr-go/api"
	"github.com/labellerr/labellerr-go/config"
)

// fakeBackend emulates the slice of the platform the dataset service talks
// to: local-file connect, signed-URL uploads and the dataset endpoints.
type fakeBackend struct {
	t      *testing.T
	server *httptest.Server

	mu             sync.Mutex
	connectedFiles []string
	uploadedBodies int
	createBody     map[string]any
	datasets       map[string]Dataset
	// getCalls counts dataset fetches, for readiness polling tests.
	getCalls int
	// readyAfter flips the returned status code once getCalls passes it.
	readyAfter int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	backend := &fakeBackend{t: t, datasets: map[string]Dataset{}}
	mux := http.NewServeMux()

	mux.HandleFunc("/connectors/connect/local", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FileNames []string `json:"file_names"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		backend.mu.Lock()
		backend.connectedFiles = append(backend.connectedFiles, body.FileNames...)
		backend.mu.Unlock()

		links := map[string]string{}
		for _, name := range body.FileNames {
			links[name] = backend.server.URL + "/gcs/" + name
		}
		response := map[string]any{
			"message": "200: Success",
			"response": map[string]any{
				"resumable_upload_links": links,
			},
		}
		_ = json.NewEncoder(w).Encode(response)
	})

	mux.HandleFunc("/gcs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-resumable") == "start" {
			w.Header().Set("Location", backend.server.URL+"/gcs-session"+r.URL.Path)
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/gcs-session/", func(w http.ResponseWriter, r *http.Request) {
		backend.mu.Lock()
		backend.uploadedBodies++
		backend.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/datasets/create", func(w http.ResponseWriter, r *http.Request) {
		backend.mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&backend.createBody)
		backend.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":  "ok",
			"response": map[string]any{"dataset_id": "ds-new"},
		})
	})

	mux.HandleFunc("/datasets/list", func(w http.ResponseWriter, r *http.Request) {
		var list []Dataset
		for _, dataset := range backend.datasets {
			list = append(list, dataset)
		}
		raw, _ := json.Marshal(list)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok", "response": json.RawMessage(raw)})
	})

	mux.HandleFunc("/datasets/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/datasets/"):]
		if r.Method == http.MethodDelete {
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "deleted"})
			return
		}

		backend.mu.Lock()
		backend.getCalls++
		calls := backend.getCalls
		dataset, ok := backend.datasets[id]
		backend.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "not found"})
			return
		}
		if backend.readyAfter > 0 && calls >= backend.readyAfter {
			dataset.StatusCode = 300
		}
		raw, _ := json.Marshal(dataset)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok", "response": json.RawMessage(raw)})
	})

	backend.server = httptest.NewServer(mux)
	t.Cleanup(backend.server.Close)
	return backend
}

func (b *fakeBackend) newService(t *testing.T) *Service {
	logger := log.NewLogger()
	apiClient := api.NewClient(config.Config{
		BaseURL:   b.server.URL,
		APIKey:    "key",
		APISecret: "secret",
	}, logger)
	return NewService(apiClient, nil, nil, logger)
}
