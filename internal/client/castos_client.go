package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/castos/studio/internal/config"
	"github.com/castos/studio/internal/model"
	"golang.org/x/time/rate"
)

// ProjectAPI defines the backend operations the gateway relies on
type ProjectAPI interface {
	RunProject(ctx context.Context, req *model.SubmitRequest) (*model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
	GetProject(ctx context.Context, id model.ProjectID) (*model.Project, error)
	DeleteProject(ctx context.Context, id model.ProjectID) error
}

// CastOSClient implements ProjectAPI for the casting optimization backend.
// Every request acquires a fresh credential from its TokenSource.
type CastOSClient struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	limiter    *rate.Limiter
}

// Option customizes a CastOSClient
type Option func(*CastOSClient)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *CastOSClient) {
		c.httpClient = hc
	}
}

// WithLimiter throttles outbound requests. The limiter is shared by every
// client derived through WithTokenSource.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *CastOSClient) {
		c.limiter = l
	}
}

// NewCastOSClient creates a new backend client
func NewCastOSClient(cfg *config.CastOSConfig, tokens TokenSource, opts ...Option) *CastOSClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if tokens == nil {
		tokens = NoToken
	}

	c := &CastOSClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: cfg.BaseURL,
		tokens:  tokens,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTokenSource returns a client sharing transport and limiter but
// authenticating with a different credential source
func (c *CastOSClient) WithTokenSource(tokens TokenSource) *CastOSClient {
	if tokens == nil {
		tokens = NoToken
	}
	clone := *c
	clone.tokens = tokens
	return &clone
}

// OnBehalfOf authenticates with the caller's tokens, falling back to this
// client's own source (usually the service token) when they are empty
func (c *CastOSClient) OnBehalfOf(tokens TokenSource) *CastOSClient {
	return c.WithTokenSource(FirstToken(tokens, c.tokens))
}

// RunProject submits a new optimization job
func (c *CastOSClient) RunProject(ctx context.Context, req *model.SubmitRequest) (*model.Project, error) {
	var result model.Project
	if err := c.Post(ctx, "/api/projects/run", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListProjects retrieves the caller's projects in server order
func (c *CastOSClient) ListProjects(ctx context.Context) ([]model.Project, error) {
	var result []model.Project
	if err := c.Get(ctx, "/api/projects/", &result); err != nil {
		return nil, err
	}
	if result == nil {
		result = []model.Project{}
	}
	return result, nil
}

// GetProject retrieves a single project with its characters and result
func (c *CastOSClient) GetProject(ctx context.Context, id model.ProjectID) (*model.Project, error) {
	var result model.Project
	if err := c.Get(ctx, projectPath(id), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteProject removes a project
func (c *CastOSClient) DeleteProject(ctx context.Context, id model.ProjectID) error {
	return c.Delete(ctx, projectPath(id))
}

// Get sends a GET request and parses the JSON response into result
func (c *CastOSClient) Get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post sends a POST request with a JSON body
func (c *CastOSClient) Post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// Delete sends a DELETE request, discarding any response body
func (c *CastOSClient) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// IsConfigured returns true if the client has a backend to talk to
func (c *CastOSClient) IsConfigured() bool {
	return c.baseURL != ""
}

func projectPath(id model.ProjectID) string {
	return "/api/projects/" + url.PathEscape(id.String())
}

// do executes one request. Failures of any kind are returned as *APIError.
func (c *CastOSClient) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return &APIError{Kind: KindDecode, Method: method, Path: path, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return &APIError{Kind: KindTransport, Method: method, Path: path, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens(ctx)
	if err != nil {
		log.Printf("[CastOS API] token acquisition failed for %s %s, continuing unauthenticated: %v", method, path, err)
		token = ""
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &APIError{Kind: KindTransport, Method: method, Path: path, Err: err}
		}
	}

	log.Printf("[CastOS API] → %s %s", method, path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[CastOS API] ✗ %s %s: request failed: %v", method, path, err)
		return &APIError{Kind: KindTransport, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[CastOS API] ✗ %s %s: failed to read response: %v", method, path, err)
		return &APIError{Kind: KindTransport, Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}

	log.Printf("[CastOS API] ← %d %s %s (%d bytes)", resp.StatusCode, method, path, len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Kind:   KindStatus,
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Detail: extractDetail(respBody),
		}
	}

	if result == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[CastOS API] ✗ unmarshal error for %s %s: %v", method, path, err)
		return &APIError{Kind: KindDecode, Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}

	return nil
}
