package datasets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/labellerr/labellerr-go/api"
	"github.com/labellerr/labellerr-go/config"
)

// Typed is a dataset resolved to its data-type-specific variant.
type Typed interface {
	Describe() Dataset
}

// Handle is the behavior shared by every dataset variant. Variants embed it;
// the server-reported data type picks the concrete one.
type Handle struct {
	svc      *Service
	clientID string
	info     Dataset
}

// Describe returns the dataset description fetched at resolution time.
func (h Handle) Describe() Dataset {
	return h.info
}

type syncRequest struct {
	ClientID     string          `json:"client_id"`
	ProjectID    string          `json:"project_id"`
	DatasetID    string          `json:"dataset_id"`
	Path         string          `json:"path"`
	DataType     config.DataType `json:"data_type"`
	EmailID      string          `json:"email_id"`
	ConnectionID string          `json:"connection_id"`
}

// Sync re-synchronizes the dataset's connector source with the platform.
func (h Handle) Sync(ctx context.Context, projectID, path, emailID, connectionID string) error {
	query := url.Values{}
	query.Set("uuid", api.RequestID())
	query.Set("client_id", h.clientID)

	_, err := h.svc.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/connectors/datasets/sync",
		Query:    query,
		ClientID: h.clientID,
		Body: syncRequest{
			ClientID:     h.clientID,
			ProjectID:    projectID,
			DatasetID:    h.info.DatasetID,
			Path:         path,
			DataType:     h.info.DataType,
			EmailID:      emailID,
			ConnectionID: connectionID,
		},
	})
	if err != nil {
		return fmt.Errorf("sync dataset %s: %w", h.info.DatasetID, err)
	}
	return nil
}

type multimodalIndexRequest struct {
	DatasetID    string `json:"dataset_id"`
	ClientID     string `json:"client_id"`
	IsMultimodal bool   `json:"is_multimodal"`
}

// EnableMultimodalIndexing turns on multimodal search indexing for the
// dataset. Disabling is not supported by the platform.
func (h Handle) EnableMultimodalIndexing(ctx context.Context) error {
	query := url.Values{}
	query.Set("client_id", h.clientID)

	_, err := h.svc.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/search/multimodal_index",
		Query:    query,
		ClientID: h.clientID,
		Body: multimodalIndexRequest{
			DatasetID:    h.info.DatasetID,
			ClientID:     h.clientID,
			IsMultimodal: true,
		},
	})
	if err != nil {
		return fmt.Errorf("enable multimodal indexing for dataset %s: %w", h.info.DatasetID, err)
	}
	return nil
}

// The per-data-type variants.
type (
	// ImageDataset ...
	ImageDataset struct{ Handle }
	// VideoDataset ...
	VideoDataset struct{ Handle }
	// AudioDataset ...
	AudioDataset struct{ Handle }
	// DocumentDataset ...
	DocumentDataset struct{ Handle }
	// TextDataset ...
	TextDataset struct{ Handle }
)

// variantConstructors maps the server-reported data type to a constructor.
// The table is built here, in one place, and resolved only after the
// describing response is fetched.
var variantConstructors = map[config.DataType]func(Handle) Typed{
	config.DataTypeImage:    func(h Handle) Typed { return ImageDataset{h} },
	config.DataTypeVideo:    func(h Handle) Typed { return VideoDataset{h} },
	config.DataTypeAudio:    func(h Handle) Typed { return AudioDataset{h} },
	config.DataTypeDocument: func(h Handle) Typed { return DocumentDataset{h} },
	config.DataTypeText:     func(h Handle) Typed { return TextDataset{h} },
}

// Resolve fetches the dataset and constructs the variant matching its
// server-reported data type.
func (s *Service) Resolve(ctx context.Context, clientID, datasetID string) (Typed, error) {
	info, err := s.Get(ctx, clientID, datasetID)
	if err != nil {
		return nil, err
	}
	construct, ok := variantConstructors[info.DataType]
	if !ok {
		return nil, fmt.Errorf("dataset %s: unsupported data type %q", datasetID, info.DataType)
	}
	return construct(Handle{svc: s, clientID: clientID, info: info}), nil
}
