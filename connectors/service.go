// Package connectors manages cloud storage connections: quick connects for
// dataset creation, full validated connections, and connection CRUD.
package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/bitrise-io/go-utils/v2/log"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/labellerr/labellerr-go/api"
)

// Connection directions supported by the platform.
const (
	TypeImport = "import"
	TypeExport = "export"
)

// Registered connector kinds.
const (
	ConnectorS3  = "s3"
	ConnectorGCS = "gcs"
)

// Connection is a stored cloud storage connection.
type Connection struct {
	ConnectionID   string `json:"connection_id"`
	ConnectionType string `json:"connection_type"`
	Connector      string `json:"connector"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	DataType       string `json:"data_type"`
}

// GCPConfig configures a quick GCS connection.
type GCPConfig struct {
	BucketName        string `json:"bucket_name"`
	FolderPath        string `json:"folder_path"`
	ServiceAccountKey string `json:"service_account_key,omitempty"`
}

// AWSConfig configures a quick S3 connection.
type AWSConfig struct {
	BucketName      string `json:"bucket_name"`
	FolderPath      string `json:"folder_path"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	Region          string `json:"region,omitempty"`
}

// S3ConnectionParams configures a full, validated S3 connection.
type S3ConnectionParams struct {
	Name            string
	Description     string
	S3Path          string
	DataType        string
	ConnectionType  string
	AccessKeyID     string
	SecretAccessKey string
}

// Validate ...
func (p S3ConnectionParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.S3Path, validation.Required),
		validation.Field(&p.DataType, validation.Required),
		validation.Field(&p.AccessKeyID, validation.Required),
		validation.Field(&p.SecretAccessKey, validation.Required),
		validation.Field(&p.ConnectionType, validation.In(TypeImport, TypeExport)),
	)
}

// Service talks to the connector endpoints.
type Service struct {
	api    *api.Client
	logger log.Logger
}

// NewService ...
func NewService(apiClient *api.Client, logger log.Logger) *Service {
	return &Service{api: apiClient, logger: logger}
}

// QuickConnectGCP registers a GCS bucket for dataset creation and returns
// the connection id.
func (s *Service) QuickConnectGCP(ctx context.Context, clientID string, cfg GCPConfig) (string, error) {
	if cfg.BucketName == "" {
		return "", fmt.Errorf("bucket_name is required")
	}
	return s.quickConnect(ctx, clientID, "/connectors/connect/gcp", cfg)
}

// QuickConnectAWS registers an S3 bucket for dataset creation and returns
// the connection id.
func (s *Service) QuickConnectAWS(ctx context.Context, clientID string, cfg AWSConfig) (string, error) {
	if cfg.BucketName == "" {
		return "", fmt.Errorf("bucket_name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return s.quickConnect(ctx, clientID, "/connectors/connect/aws", cfg)
}

func (s *Service) quickConnect(ctx context.Context, clientID, path string, cfg any) (string, error) {
	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	var response struct {
		ConnectionID string `json:"connection_id"`
	}
	err := s.api.DoJSON(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     path,
		Query:    query,
		ClientID: clientID,
		Body:     cfg,
	}, &response)
	if err != nil {
		return "", fmt.Errorf("connect bucket: %w", err)
	}
	if response.ConnectionID == "" {
		return "", fmt.Errorf("connect bucket: no connection id in response")
	}
	return response.ConnectionID, nil
}

// SetupS3Connection validates credentials against the bucket and, when the
// test passes, saves the connection. Returns the stored connection.
func (s *Service) SetupS3Connection(ctx context.Context, clientID string, params S3ConnectionParams) (Connection, error) {
	if err := params.Validate(); err != nil {
		return Connection{}, fmt.Errorf("connection params: %w", err)
	}
	if params.ConnectionType == "" {
		params.ConnectionType = TypeImport
	}

	credentials, err := json.Marshal(map[string]string{
		"access_key_id":     params.AccessKeyID,
		"secret_access_key": params.SecretAccessKey,
	})
	if err != nil {
		return Connection{}, fmt.Errorf("marshal credentials: %w", err)
	}

	testFields := map[string]string{
		"credentials":     string(credentials),
		"connector":       ConnectorS3,
		"path":            params.S3Path,
		"connection_type": params.ConnectionType,
		"data_type":       params.DataType,
	}
	if err := s.postForm(ctx, clientID, "/connectors/connections/test", testFields, nil); err != nil {
		return Connection{}, fmt.Errorf("test connection: %w", err)
	}

	createFields := map[string]string{
		"client_id":       clientID,
		"connector":       ConnectorS3,
		"name":            params.Name,
		"description":     params.Description,
		"connection_type": params.ConnectionType,
		"data_type":       params.DataType,
		"credentials":     string(credentials),
	}
	var connection Connection
	if err := s.postForm(ctx, clientID, "/connectors/connections/create", createFields, &connection); err != nil {
		return Connection{}, fmt.Errorf("create connection: %w", err)
	}
	return connection, nil
}

// Get fetches a stored connection by id.
func (s *Service) Get(ctx context.Context, clientID, connectionID string) (Connection, error) {
	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	var connection Connection
	err := s.api.DoJSON(ctx, api.RequestOptions{
		Method:   http.MethodGet,
		Path:     "/connections/" + connectionID,
		Query:    query,
		ClientID: clientID,
	}, &connection)
	if err != nil {
		return Connection{}, fmt.Errorf("get connection %s: %w", connectionID, err)
	}
	return connection, nil
}

// List returns stored connections, optionally filtered by connector kind.
func (s *Service) List(ctx context.Context, clientID, connectionType, connector string) ([]Connection, error) {
	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())
	query.Set("connection_type", connectionType)
	if connector != "" {
		query.Set("connector", connector)
	}

	var connections []Connection
	err := s.api.DoJSON(ctx, api.RequestOptions{
		Method:       http.MethodGet,
		Path:         "/connectors/connections/list",
		Query:        query,
		ClientID:     clientID,
		ExtraHeaders: map[string]string{"email_id": s.api.EmailID()},
	}, &connections)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return connections, nil
}

// Delete removes a stored connection.
func (s *Service) Delete(ctx context.Context, clientID, connectionID string) error {
	if connectionID == "" {
		return fmt.Errorf("connection_id is required")
	}

	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	_, err := s.api.Do(ctx, api.RequestOptions{
		Method:       http.MethodPost,
		Path:         "/connectors/connections/delete",
		Query:        query,
		ClientID:     clientID,
		ExtraHeaders: map[string]string{"email_id": s.api.EmailID()},
		Body:         map[string]string{"connection_id": connectionID},
	})
	if err != nil {
		return fmt.Errorf("delete connection %s: %w", connectionID, err)
	}
	return nil
}

func (s *Service) postForm(ctx context.Context, clientID, path string, fields map[string]string, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("write form field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close form writer: %w", err)
	}

	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("uuid", api.RequestID())

	envelope, err := s.api.Do(ctx, api.RequestOptions{
		Method:       http.MethodPost,
		Path:         path,
		Query:        query,
		ClientID:     clientID,
		ExtraHeaders: map[string]string{"email_id": s.api.EmailID()},
		RawBody:      buf.Bytes(),
		ContentType:  writer.FormDataContentType(),
	})
	if err != nil {
		return err
	}
	if out != nil {
		if err := api.DecodeResponse(envelope, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
