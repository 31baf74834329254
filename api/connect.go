package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// connectMessageOK is the success marker the connect endpoint returns in the
// envelope's message field. The batch is only considered connected when the
// marker is present.
const connectMessageOK = "200: Success"

// ConnectResult is the response of the local-files connect endpoint: the
// temporary connection id grouping the files, one resumable signed URL per
// file name, and the raw response message.
type ConnectResult struct {
	TemporaryConnectionID string            `json:"temporary_connection_id"`
	ResumableUploadLinks  map[string]string `json:"resumable_upload_links"`
	Message               string
}

// Connected reports whether the server acknowledged the batch.
func (r ConnectResult) Connected() bool {
	return r.Message == connectMessageOK
}

// DirectUploadURL requests a single-use signed upload URL for one file.
func (c *Client) DirectUploadURL(ctx context.Context, clientID, purpose, fileName string) (string, error) {
	query := url.Values{}
	query.Set("client_id", clientID)
	query.Set("purpose", purpose)
	query.Set("file_name", fileName)

	var response string
	err := c.DoJSON(ctx, RequestOptions{
		Method:       http.MethodGet,
		Path:         "/connectors/direct-upload-url",
		Query:        query,
		ClientID:     clientID,
		SuccessCodes: []int{http.StatusOK},
	}, &response)
	if err != nil {
		return "", fmt.Errorf("get direct upload url: %w", err)
	}
	return response, nil
}

type connectLocalFilesRequest struct {
	FileNames             []string `json:"file_names"`
	TemporaryConnectionID string   `json:"temporary_connection_id,omitempty"`
}

// ConnectLocalFiles registers a batch of file names with the platform and
// returns a signed resumable upload URL for each. Passing a non-empty
// connectionID groups the batch under an existing temporary connection.
func (c *Client) ConnectLocalFiles(ctx context.Context, clientID string, fileNames []string, connectionID string) (ConnectResult, error) {
	query := url.Values{}
	query.Set("client_id", clientID)

	envelope, err := c.Do(ctx, RequestOptions{
		Method:   http.MethodPost,
		Path:     "/connectors/connect/local",
		Query:    query,
		ClientID: clientID,
		Body: connectLocalFilesRequest{
			FileNames:             fileNames,
			TemporaryConnectionID: connectionID,
		},
	})
	if err != nil {
		return ConnectResult{}, err
	}

	var result ConnectResult
	if err := DecodeResponse(envelope, &result); err != nil {
		return ConnectResult{}, fmt.Errorf("decode connect response: %w", err)
	}
	result.Message = envelope.Message
	return result, nil
}
