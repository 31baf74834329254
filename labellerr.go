// Package labellerr is the front door of the Labellerr Go SDK. It wires the
// API gateway and the resource services together; everything it exposes can
// also be constructed directly from the subpackages.
package labellerr

import (
	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/labellerr/labellerr-go/api"
	"github.com/labellerr/labellerr-go/autolabel"
	"github.com/labellerr/labellerr-go/config"
	"github.com/labellerr/labellerr-go/connectors"
	"github.com/labellerr/labellerr-go/datasets"
	"github.com/labellerr/labellerr-go/exports"
	"github.com/labellerr/labellerr-go/files"
	"github.com/labellerr/labellerr-go/jobs"
	"github.com/labellerr/labellerr-go/preannotations"
	"github.com/labellerr/labellerr-go/projects"
	"github.com/labellerr/labellerr-go/upload"
	"github.com/labellerr/labellerr-go/users"
)

// Client bundles the SDK's services behind one constructor.
type Client struct {
	API            *api.Client
	Uploader       *upload.Uploader
	Jobs           *jobs.Tracker
	Datasets       *datasets.Service
	Projects       *projects.Service
	Preannotations *preannotations.Service
	Exports        *exports.Service
	Connectors     *connectors.Service
	Users          *users.Service
	Files          *files.Service
	Autolabel      *autolabel.Service

	logger log.Logger
}

// NewClient validates the configuration and constructs a fully wired client.
func NewClient(cfg config.Config, logger log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.NewLogger()
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	apiClient := api.NewClient(cfg, logger)
	gcs := upload.NewGCSUploader(apiClient.HTTPClient(), logger)
	uploader := upload.NewUploader(apiClient, gcs, logger)
	tracker := jobs.NewTracker(logger)
	datasetService := datasets.NewService(apiClient, uploader, tracker, logger)

	return &Client{
		API:            apiClient,
		Uploader:       uploader,
		Jobs:           tracker,
		Datasets:       datasetService,
		Projects:       projects.NewService(apiClient, datasetService, logger),
		Preannotations: preannotations.NewService(apiClient, gcs, tracker, logger),
		Exports:        exports.NewService(apiClient, tracker, logger),
		Connectors:     connectors.NewService(apiClient, logger),
		Users:          users.NewService(apiClient, logger),
		Files:          files.NewService(apiClient, logger),
		Autolabel:      autolabel.NewService(apiClient, logger),
		logger:         logger,
	}, nil
}
