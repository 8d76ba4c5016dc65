// Package api is the HTTP client for the remote Puzzle fact-check service:
// launching runs, requesting interruption, and opening the long-lived event
// stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// FriendlyServerBusyMessage replaces raw backend text for 5xx launch
	// failures. Puzzle is a small personal deployment and overload is the
	// common failure, so the raw body is noise to the user.
	FriendlyServerBusyMessage = "The server ran into a problem, please try again later (Puzzle is a personal experiment with limited compute, thanks for understanding)."

	defaultRequestTimeout = 30 * time.Second
)

// LaunchError describes a failed launch call with the user-facing message the
// session controller records in the event log.
type LaunchError struct {
	StatusCode int
	Message    string
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch fact-check: status %d: %s", e.StatusCode, e.Message)
}

// Is enables errors.Is checks for launch failures.
func (e *LaunchError) Is(target error) bool {
	_, ok := target.(*LaunchError)
	return ok
}

// AgentModelConfig selects a model for one pipeline agent.
type AgentModelConfig struct {
	ModelName     string `json:"model_name"`
	ModelProvider string `json:"model_provider"`
	MaxRetries    int    `json:"max_retries,omitempty"`
}

// SearcherModelConfig selects a model and tooling for the search agent.
type SearcherModelConfig struct {
	ModelName       string   `json:"model_name"`
	ModelProvider   string   `json:"model_provider"`
	MaxSearchTokens int      `json:"max_search_tokens"`
	SelectedTools   []string `json:"selected_tools"`
}

// LaunchConfig is the nested per-agent configuration sent with a launch.
type LaunchConfig struct {
	MainAgent         AgentModelConfig    `json:"main_agent"`
	MetadataExtractor AgentModelConfig    `json:"metadata_extractor"`
	Searcher          SearcherModelConfig `json:"searcher"`
}

// LaunchRequest is the POST /start-fact-check body.
type LaunchRequest struct {
	NewsText string       `json:"news_text"`
	Config   LaunchConfig `json:"config"`
}

type launchResponse struct {
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Option customizes Client construction.
type Option func(*Client)

// WithHTTPClient injects the HTTP client used for launch/interrupt calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// Client talks to one Puzzle fact-check service deployment.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no timeout: the event stream is long-lived by design.
	streamClient *http.Client
}

// NewClient validates the base URL and builds a client.
func NewClient(baseURL string, options ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("server base url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("server base url %q is not a valid absolute url", baseURL)
	}

	client := &Client{
		baseURL:      trimmed,
		httpClient:   &http.Client{Timeout: defaultRequestTimeout},
		streamClient: &http.Client{},
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(client)
	}
	return client, nil
}

// BaseURL returns the configured service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartFactCheck launches a run and returns the assigned session id. 5xx
// responses surface FriendlyServerBusyMessage; other non-2xx responses
// surface the backend-provided error field verbatim.
func (c *Client) StartFactCheck(ctx context.Context, request LaunchRequest) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encode launch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/start-fact-check", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build launch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("launch fact-check: %w", err)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", launchErrorFromResponse(resp)
	}

	var launched launchResponse
	if err := json.NewDecoder(resp.Body).Decode(&launched); err != nil {
		return "", fmt.Errorf("decode launch response: %w", err)
	}
	if strings.TrimSpace(launched.SessionID) == "" {
		return "", errors.New("launch response carried no session id")
	}
	return launched.SessionID, nil
}

// Interrupt requests a cooperative stop of a running session. The response
// body is ignored beyond confirming receipt.
func (c *Client) Interrupt(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("session id is required")
	}

	target := fmt.Sprintf("%s/agents/%s/interrupt", c.baseURL, url.PathEscape(sessionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return fmt.Errorf("build interrupt request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("interrupt session %s: %w", sessionID, err)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("interrupt session %s: status %d", sessionID, resp.StatusCode)
	}
	return nil
}

// OpenEvents opens the long-lived server-push event stream for a session. The
// caller owns the returned body and must close it.
func (c *Client) OpenEvents(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	target := fmt.Sprintf("%s/agents/%s/events", c.baseURL, url.PathEscape(sessionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build events request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open event stream for %s: %w", sessionID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		closeBody(resp.Body)
		return nil, &StreamOpenError{StatusCode: resp.StatusCode, Body: body}
	}
	return resp.Body, nil
}

// StreamOpenError carries the response body of a failed stream open so the
// session controller can classify it.
type StreamOpenError struct {
	StatusCode int
	Body       []byte
}

func (e *StreamOpenError) Error() string {
	return fmt.Sprintf("open event stream: status %d", e.StatusCode)
}

// FailureBody returns the raw response body for failure classification.
func (e *StreamOpenError) FailureBody() []byte {
	return e.Body
}

func launchErrorFromResponse(resp *http.Response) error {
	if resp.StatusCode >= 500 && resp.StatusCode < 600 {
		return &LaunchError{StatusCode: resp.StatusCode, Message: FriendlyServerBusyMessage}
	}

	var backend errorResponse
	message := "Unknown error"
	if err := json.NewDecoder(resp.Body).Decode(&backend); err == nil && strings.TrimSpace(backend.Error) != "" {
		message = backend.Error
	}
	return &LaunchError{StatusCode: resp.StatusCode, Message: message}
}

func closeBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	_ = body.Close()
}
