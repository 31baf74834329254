// Package files reads per-file metadata and resolves files to their
// data-type-specific variants.
package files

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/labellerr/labellerr-go/api"
	"github.com/labellerr/labellerr-go/config"
)

// Metadata is the platform's per-file record. Fields vary by data type, so
// everything beyond the common ones stays in Extra.
type Metadata struct {
	FileName    string `json:"file_name"`
	TotalFrames int    `json:"total_frames"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps unknown metadata fields available in Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	if err := json.Unmarshal(data, (*plain)(m)); err != nil {
		return err
	}
	return json.Unmarshal(data, &m.Extra)
}

// Record is the file data endpoint's response.
type Record struct {
	DataType config.DataType `json:"data_type"`
	Metadata Metadata        `json:"file_metadata"`
	// Answers holds annotation answers when they were requested.
	Answers json.RawMessage `json:"answers"`
}

// Service talks to the file data endpoints.
type Service struct {
	api    *api.Client
	logger log.Logger
}

// NewService ...
func NewService(apiClient *api.Client, logger log.Logger) *Service {
	return &Service{api: apiClient, logger: logger}
}

// Get fetches the metadata of one file, optionally with its annotation
// answers.
func (s *Service) Get(ctx context.Context, clientID, projectID, fileID string, includeAnswers bool) (Record, error) {
	query := url.Values{}
	query.Set("file_id", fileID)
	query.Set("include_answers", strconv.FormatBool(includeAnswers))
	query.Set("project_id", projectID)
	query.Set("uuid", api.RequestID())
	query.Set("client_id", clientID)

	envelope, err := s.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodGet,
		Path:     "/data/file_data",
		Query:    query,
		ClientID: clientID,
	})
	if err != nil {
		return Record{}, fmt.Errorf("get file %s: %w", fileID, err)
	}

	// This endpoint reports at the body's top level.
	var record Record
	if err := json.Unmarshal(envelope.Raw, &record); err != nil {
		return Record{}, fmt.Errorf("decode file %s: %w", fileID, err)
	}
	return record, nil
}

// Typed is a file resolved to its data-type-specific variant.
type Typed interface {
	Describe() Record
}

// Handle is the behavior shared by every file variant.
type Handle struct {
	svc       *Service
	clientID  string
	projectID string
	datasetID string
	fileID    string
	record    Record
}

// Describe returns the record fetched at resolution time.
func (h Handle) Describe() Record {
	return h.record
}

// Refresh re-fetches the file's metadata.
func (h *Handle) Refresh(ctx context.Context, includeAnswers bool) (Record, error) {
	record, err := h.svc.Get(ctx, h.clientID, h.projectID, h.fileID, includeAnswers)
	if err != nil {
		return Record{}, err
	}
	h.record = record
	return record, nil
}

// The per-data-type variants. Only video files carry extra behavior today.
type (
	// ImageFile ...
	ImageFile struct{ Handle }
	// AudioFile ...
	AudioFile struct{ Handle }
	// DocumentFile ...
	DocumentFile struct{ Handle }
	// TextFile ...
	TextFile struct{ Handle }
)

var variantConstructors = map[config.DataType]func(Handle) Typed{
	config.DataTypeImage:    func(h Handle) Typed { return ImageFile{h} },
	config.DataTypeVideo:    func(h Handle) Typed { return &VideoFile{Handle: h} },
	config.DataTypeAudio:    func(h Handle) Typed { return AudioFile{h} },
	config.DataTypeDocument: func(h Handle) Typed { return DocumentFile{h} },
	config.DataTypeText:     func(h Handle) Typed { return TextFile{h} },
}

// Resolve fetches the file and constructs the variant matching its
// server-reported data type. datasetID may be empty; video frame operations
// require it.
func (s *Service) Resolve(ctx context.Context, clientID, projectID, datasetID, fileID string) (Typed, error) {
	record, err := s.Get(ctx, clientID, projectID, fileID, false)
	if err != nil {
		return nil, err
	}
	construct, ok := variantConstructors[record.DataType]
	if !ok {
		return nil, fmt.Errorf("file %s: unsupported data type %q", fileID, record.DataType)
	}
	return construct(Handle{
		svc:       s,
		clientID:  clientID,
		projectID: projectID,
		datasetID: datasetID,
		fileID:    fileID,
		record:    record,
	}), nil
}
