package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/labellerr/labellerr-go/api"
)

// fakeConnectService scripts connect responses per batch and records what
// the orchestrator sent.
type fakeConnectService struct {
	mu sync.Mutex

	// respond builds the reply for one connect call; nil means connect every
	// batch with a link per file pointing at linkURL.
	respond func(fileNames []string) (api.ConnectResult, error)
	linkURL string

	calls         int
	connectionIDs []string
	inFlight      int
	maxInFlight   int
	delay         time.Duration
}

func (f *fakeConnectService) ConnectLocalFiles(ctx context.Context, clientID string, fileNames []string, connectionID string) (api.ConnectResult, error) {
	f.mu.Lock()
	f.calls++
	f.connectionIDs = append(f.connectionIDs, connectionID)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(fileNames)
	}

	links := make(map[string]string, len(fileNames))
	for _, name := range fileNames {
		links[name] = f.linkURL
	}
	return api.ConnectResult{
		Message:              "200: Success",
		ResumableUploadLinks: links,
	}, nil
}

// newFakeGCSServer speaks just enough of the resumable protocol for the
// orchestrator: session start returns a Location on the same server, the
// data PUT succeeds.
func newFakeGCSServer() *httptest.Server {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-resumable") == "start" {
			w.Header().Set("Location", server.URL+"/session")
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	return server
}
