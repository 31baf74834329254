// Package api is the single choke point for HTTP access to the Labellerr
// platform. Every service issues its requests through Client, which builds
// the standard headers, retries transient failures and converts non-2xx
// responses into typed errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/labellerr/labellerr-go/config"
)

// Envelope is the common shape of platform responses. Raw keeps the full
// body for the handful of endpoints that report outside the response field.
type Envelope struct {
	Message  string          `json:"message"`
	Response json.RawMessage `json:"response"`
	Raw      []byte          `json:"-"`
}

// RequestOptions describes a single API call.
type RequestOptions struct {
	Method string
	// Path is relative to the client's base URL, e.g. "/datasets/create".
	Path  string
	Query url.Values
	// ClientID is added as a header when set, the way the web console does it.
	ClientID     string
	ExtraHeaders map[string]string
	// Body is JSON-marshaled when non-nil.
	Body any
	// RawBody takes precedence over Body and is sent as-is with
	// ContentType, for multipart endpoints.
	RawBody     []byte
	ContentType string
	// SuccessCodes defaults to 200 and 201.
	SuccessCodes []int
}

// Client talks to the Labellerr REST API.
type Client struct {
	httpClient *retryablehttp.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	source     string
	logger     log.Logger
}

// NewClient creates a Client from the given configuration. The underlying
// HTTP client retries transient failures with backoff.
func NewClient(cfg config.Config, logger log.Logger) *Client {
	cfg = cfg.WithDefaults()
	return &Client{
		httpClient: retryhttp.NewClient(logger),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		source:     cfg.Source,
		logger:     logger,
	}
}

// BaseURL returns the API base URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// EmailID returns the value for the email_id header some action endpoints
// expect; the platform uses the API key as the account email.
func (c *Client) EmailID() string {
	return c.apiKey
}

// HTTPClient returns the underlying retrying client as a standard
// *http.Client, for collaborators that speak to signed URLs directly.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient.StandardClient()
}

// Do issues a single API call and returns the parsed response envelope.
// Non-2xx responses become an *Error; a success response with a non-JSON
// body becomes a *NotJSONError.
func (c *Client) Do(ctx context.Context, opts RequestOptions) (Envelope, error) {
	requestID := uuid.NewString()

	apiURL := c.baseURL + opts.Path
	if len(opts.Query) > 0 {
		apiURL += "?" + opts.Query.Encode()
	}

	var bodyReader io.Reader
	switch {
	case opts.RawBody != nil:
		bodyReader = bytes.NewReader(opts.RawBody)
	case opts.Body != nil:
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, opts.Method, apiURL, bodyReader)
	if err != nil {
		return Envelope{}, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, opts)
	switch {
	case opts.RawBody != nil && opts.ContentType != "":
		req.Header.Set("Content-Type", opts.ContentType)
	case opts.Body != nil:
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("%s %s: %w", opts.Method, opts.Path, err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Envelope{}, fmt.Errorf("read response body: %w", err)
	}

	successCodes := opts.SuccessCodes
	if len(successCodes) == 0 {
		successCodes = []int{http.StatusOK, http.StatusCreated}
	}
	if !containsCode(successCodes, resp.StatusCode) {
		return Envelope{}, &Error{StatusCode: resp.StatusCode, Body: string(raw), RequestID: requestID}
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, &NotJSONError{Body: string(raw)}
	}
	envelope.Raw = raw
	return envelope, nil
}

// DoJSON issues a call and decodes the envelope's response field into out.
func (c *Client) DoJSON(ctx context.Context, opts RequestOptions, out any) error {
	envelope, err := c.Do(ctx, opts)
	if err != nil {
		return err
	}
	if out == nil || len(envelope.Response) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Response, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *retryablehttp.Request, opts RequestOptions) {
	req.Header.Set("api_key", c.apiKey)
	req.Header.Set("api_secret", c.apiSecret)
	req.Header.Set("source", c.source)
	req.Header.Set("origin", config.AllowedOrigin)
	if opts.ClientID != "" {
		req.Header.Set("client_id", opts.ClientID)
	}
	for k, v := range opts.ExtraHeaders {
		req.Header.Set(k, v)
	}
}

// RequestID generates a request tracking id, the same uuid the web console
// sends with every call.
func RequestID() string {
	return uuid.NewString()
}

// DecodeResponse decodes an envelope response field into out.
func DecodeResponse(envelope Envelope, out any) error {
	if len(envelope.Response) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Response, out)
}

func containsCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
