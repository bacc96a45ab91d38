// Package api is the REST client for the chat backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tOgg1/parley/internal/logging"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "http://localhost:3001/api".
	BaseURL string
	// Tokens supplies the bearer credential. Requests fail with ErrNoToken if nil.
	Tokens TokenSource
	// HTTPClient is used for all requests. If nil, a client with Timeout is created.
	HTTPClient *http.Client
	// Timeout bounds each request when HTTPClient is nil.
	// Default: 10s
	Timeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
	// SearchMinLength is the shortest trimmed query sent to user search.
	// Default: 2
	SearchMinLength int
	// SearchRate and SearchBurst throttle user search requests.
	// Default: 4/s, burst 2
	SearchRate  float64
	SearchBurst int
}

// Client talks to the chat backend.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	userAgent  string
	logger     zerolog.Logger

	searchMinLength int
	searchLimiter   *rate.Limiter
}

// NewClient creates a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("api: BaseURL %q must be http or https", config.BaseURL)
	}

	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if config.UserAgent == "" {
		config.UserAgent = "parley"
	}
	if config.SearchMinLength <= 0 {
		config.SearchMinLength = 2
	}
	if config.SearchRate <= 0 {
		config.SearchRate = 4
	}
	if config.SearchBurst <= 0 {
		config.SearchBurst = 2
	}

	return &Client{
		baseURL:         strings.TrimRight(config.BaseURL, "/"),
		tokens:          config.Tokens,
		httpClient:      httpClient,
		userAgent:       config.UserAgent,
		logger:          logging.Component("api"),
		searchMinLength: config.SearchMinLength,
		searchLimiter:   rate.NewLimiter(rate.Limit(config.SearchRate), config.SearchBurst),
	}, nil
}

// CloseIdleConnections closes idle connections in the transport pool.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// doJSON performs a request with an optional JSON body and decodes a JSON
// response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, requestBody, out any) error {
	var body io.Reader
	contentType := ""
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("api: failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	responseBody, err := c.do(ctx, method, path, query, contentType, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrInvalidResponse, method, path, err)
	}
	return nil
}

// do performs an authenticated request. On 2xx it returns the body; otherwise a *ServerError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader) ([]byte, error) {
	if c.tokens == nil {
		return nil, ErrNoToken
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("api: resolve token: %w", err)
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("api: failed to create request: %w", err)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("User-Agent", c.userAgent)
	request.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Str("error", logging.Redact(err.Error())).
			Msg("request failed")
		return nil, fmt.Errorf("api: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("api: failed to read response body: %w", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", response.StatusCode).
		Dur("duration", time.Since(start)).
		Interface("headers", logging.RedactHeaders(request.Header)).
		Msg("request completed")

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, decodeServerError(response.StatusCode, responseBody)
}

// decodeServerError builds a ServerError, taking the text from "message" or "error".
func decodeServerError(status int, body []byte) *ServerError {
	serverErr := &ServerError{StatusCode: status}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		serverErr.Code = payload.Code
		serverErr.Message = strings.TrimSpace(payload.Message)
		if serverErr.Message == "" {
			serverErr.Message = strings.TrimSpace(payload.Error)
		}
	}
	return serverErr
}

func decodeBody(body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidResponse)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
