// Package config holds the platform constants and client configuration
// shared by every service in the SDK.
package config

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/bitrise-io/go-utils/v2/env"
)

const (
	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://api.labellerr.com"

	// AllowedOrigin is sent in the origin header of every API request.
	AllowedOrigin = "https://pro.labellerr.com"

	// FileBatchSizeBytes is the maximum cumulative size of a single upload batch.
	FileBatchSizeBytes = 15 * 1024 * 1024

	// FileBatchCount is the maximum number of files in a single upload batch.
	FileBatchCount = 900

	// DatasetSizeLimitBytes is the maximum cumulative size of all files in one dataset.
	DatasetSizeLimitBytes = int64(2.5 * 1024 * 1024 * 1024)

	// DatasetFileCountLimit is the maximum number of files in one dataset.
	DatasetFileCountLimit = 2500

	// UploadConcurrencyCap is the hard ceiling on parallel batch uploads,
	// regardless of machine size.
	UploadConcurrencyCap = 20

	// DefaultPollInterval is used by short-lived polls (dataset readiness).
	DefaultPollInterval = 2 * time.Second

	// JobPollInterval is used when tracking long-running server-side jobs.
	JobPollInterval = 5 * time.Second
)

// DataType identifies the kind of data a dataset or project holds.
type DataType string

// Supported data types.
const (
	DataTypeImage    DataType = "image"
	DataTypeVideo    DataType = "video"
	DataTypeAudio    DataType = "audio"
	DataTypeDocument DataType = "document"
	DataTypeText     DataType = "text"
)

// DataTypes lists every supported data type.
var DataTypes = []DataType{DataTypeImage, DataTypeVideo, DataTypeAudio, DataTypeDocument, DataTypeText}

// FileExtensions maps a data type to the file extensions accepted for it.
var FileExtensions = map[DataType][]string{
	DataTypeImage:    {".jpg", ".jpeg", ".png", ".tiff"},
	DataTypeVideo:    {".mp4"},
	DataTypeAudio:    {".mp3", ".wav"},
	DataTypeDocument: {".pdf"},
	DataTypeText:     {".txt"},
}

// Valid reports whether t is a supported data type.
func (t DataType) Valid() bool {
	_, ok := FileExtensions[t]
	return ok
}

// Config is the client configuration. BaseURL falls back to DefaultBaseURL
// when empty; the credentials are required.
type Config struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	// Source identifies the caller in request headers, e.g. "sdk" or "sdk-async".
	Source string `yaml:"source"`
}

// Validate checks that the required fields are present.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.APIKey, validation.Required),
		validation.Field(&c.APISecret, validation.Required),
	)
}

// WithDefaults returns a copy of c with empty optional fields filled in.
func (c Config) WithDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Source == "" {
		c.Source = "sdk"
	}
	return c
}

// FromEnv builds a Config from the environment:
// LABELLERR_API_KEY, LABELLERR_API_SECRET and optionally LABELLERR_BASE_URL.
func FromEnv(envRepo env.Repository) (Config, error) {
	cfg := Config{
		BaseURL:   envRepo.Get("LABELLERR_BASE_URL"),
		APIKey:    envRepo.Get("LABELLERR_API_KEY"),
		APISecret: envRepo.Get("LABELLERR_API_SECRET"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config from environment: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// FromFile loads a Config from a YAML file.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg.WithDefaults(), nil
}
