package apparatus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Apparatus server (e.g. "http://localhost:5000").
	BaseURL string

	// APIKey is the secret used to obtain a JWT token. Leave empty when the
	// server runs without authentication.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Apparatus experiment-tracking API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("apparatus: BaseURL is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL: baseURL,
		client:  httpClient,
	}
	if cfg.APIKey != "" {
		c.tokenMgr = newTokenManager(baseURL, cfg.APIKey, httpClient)
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Experiments
// ---------------------------------------------------------------------------

// CreateExperiment creates a named experiment. Duplicate names are allowed;
// the returned ID is the identity.
func (c *Client) CreateExperiment(ctx context.Context, name string) (*ExperimentRef, error) {
	if name == "" {
		return nil, fmt.Errorf("apparatus: experiment name is required")
	}
	q := url.Values{}
	q.Set("name", name)
	var resp ExperimentRef
	if err := c.post(ctx, "/api/experiments?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListExperiments lists all experiments, newest first.
func (c *Client) ListExperiments(ctx context.Context) ([]Experiment, error) {
	var resp []Experiment
	if err := c.get(ctx, "/api/experiments", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListExperimentRuns lists an experiment's root runs, newest first.
func (c *Client) ListExperimentRuns(ctx context.Context, experimentID uuid.UUID) ([]Run, error) {
	var resp []Run
	if err := c.get(ctx, "/api/experiments/"+experimentID.String()+"/runs", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// CreateRun starts a new run. With opts.ParentRunID the run nests under the
// parent and inherits its experiment; with opts.ExperimentID alone it files
// under that experiment; with neither it lands in the Default experiment.
func (c *Client) CreateRun(ctx context.Context, name string, opts *CreateRunOptions) (*RunRef, error) {
	if name == "" {
		return nil, fmt.Errorf("apparatus: run name is required")
	}
	q := url.Values{}
	q.Set("name", name)
	if opts != nil {
		if opts.ExperimentID != nil {
			q.Set("experiment_uuid", opts.ExperimentID.String())
		}
		if opts.ParentRunID != nil {
			q.Set("parent_run_uuid", opts.ParentRunID.String())
		}
	}
	var resp RunRef
	if err := c.post(ctx, "/api/runs?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRun retrieves a run with its experiment and ancestor chain.
func (c *Client) GetRun(ctx context.Context, runID uuid.UUID) (*RunDetail, error) {
	var resp RunDetail
	if err := c.get(ctx, "/api/runs/"+runID.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListChildren lists a run's direct children, newest first.
func (c *Client) ListChildren(ctx context.Context, runID uuid.UUID) ([]Run, error) {
	var resp []Run
	if err := c.get(ctx, "/api/runs/"+runID.String()+"/children", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// Params
// ---------------------------------------------------------------------------

// LogParam records a key/value parameter on a run. The type tag is inferred
// from the Go type: string, bool, int/int64, or float32/float64. Re-logging
// a key overwrites the previous value (last write wins).
func (c *Client) LogParam(ctx context.Context, runID uuid.UUID, key string, value any) error {
	var raw, typ string
	switch v := value.(type) {
	case string:
		raw, typ = v, "string"
	case bool:
		raw, typ = strconv.FormatBool(v), "bool"
	case int:
		raw, typ = strconv.FormatInt(int64(v), 10), "int"
	case int64:
		raw, typ = strconv.FormatInt(v, 10), "int"
	case float32:
		raw, typ = strconv.FormatFloat(float64(v), 'g', -1, 32), "float"
	case float64:
		raw, typ = strconv.FormatFloat(v, 'g', -1, 64), "float"
	default:
		return fmt.Errorf("apparatus: unsupported param value type %T", value)
	}

	q := url.Values{}
	q.Set("run_uuid", runID.String())
	q.Set("key", key)
	q.Set("value", raw)
	q.Set("type", typ)
	return c.post(ctx, "/api/params?"+q.Encode(), nil)
}

// ListParams lists a run's parameters with their typed values.
func (c *Client) ListParams(ctx context.Context, runID uuid.UUID) ([]Param, error) {
	var resp []Param
	if err := c.get(ctx, "/api/runs/"+runID.String()+"/params", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// LogMetrics appends a batch of points to a run's metric series, timestamped
// with the current wall clock.
func (c *Client) LogMetrics(ctx context.Context, runID uuid.UUID, key string, points []MetricPoint) error {
	return c.LogMetricsAt(ctx, runID, key, points, time.Now())
}

// LogMetricsAt appends a batch of points with an explicit batch timestamp.
func (c *Client) LogMetricsAt(ctx context.Context, runID uuid.UUID, key string, points []MetricPoint, loggedAt time.Time) error {
	if key == "" {
		return fmt.Errorf("apparatus: metric key is required")
	}
	if points == nil {
		points = []MetricPoint{}
	}
	millis := loggedAt.UnixMilli()
	body := map[string]any{
		"run_uuid":               runID.String(),
		"key":                    key,
		"values":                 points,
		"logged_at_epoch_millis": millis,
	}
	return c.postJSON(ctx, "/api/metrics", body, nil)
}

// GetSeries retrieves one metric series in arrival order.
func (c *Client) GetSeries(ctx context.Context, runID uuid.UUID, key string) (*Series, error) {
	q := url.Values{}
	q.Set("key", key)
	var resp Series
	if err := c.get(ctx, "/api/runs/"+runID.String()+"/metrics?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSeriesKeys lists the metric keys logged under a run.
func (c *Client) ListSeriesKeys(ctx context.Context, runID uuid.UUID) ([]string, error) {
	var resp struct {
		Keys []string `json:"keys"`
	}
	if err := c.get(ctx, "/api/runs/"+runID.String()+"/metrics", &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

// LogArtifact uploads an artifact under a run-scoped logical path.
// Re-uploading to the same path replaces the previous payload. contentType
// may be empty; the server then infers it from the path extension.
func (c *Client) LogArtifact(ctx context.Context, runID uuid.UUID, path, contentType string, r io.Reader) (*ArtifactUpload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("run_uuid", runID.String()); err != nil {
		return nil, fmt.Errorf("apparatus: build multipart form: %w", err)
	}
	if err := mw.WriteField("path", path); err != nil {
		return nil, fmt.Errorf("apparatus: build multipart form: %w", err)
	}

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, path))
	if contentType != "" {
		hdr.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("apparatus: build multipart form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("apparatus: read artifact payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("apparatus: finalize multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/artifacts", &buf)
	if err != nil {
		return nil, fmt.Errorf("apparatus: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp ArtifactUpload
	if err := c.doRequest(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListArtifacts lists a run's artifact records.
func (c *Client) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]Artifact, error) {
	var resp []Artifact
	if err := c.get(ctx, "/api/runs/"+runID.String()+"/artifacts", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DownloadArtifact streams an artifact payload. The caller must close the
// returned reader.
func (c *Client) DownloadArtifact(ctx context.Context, runID uuid.UUID, path string) (io.ReadCloser, error) {
	q := url.Values{}
	q.Set("run_uuid", runID.String())
	q.Set("path", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/artifacts/blob?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("apparatus: create request: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apparatus: %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, parseErrorResponse(resp.StatusCode, body)
	}
	return resp.Body, nil
}

// Health checks the server's health status. This endpoint does not require
// authentication and will work even if the client has invalid credentials.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("apparatus: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apparatus: GET /health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var h Health
	if err := handleResponse(resp, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

func (c *Client) post(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("apparatus: create request: %w", err)
	}
	return c.doRequest(ctx, req, dest)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("apparatus: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("apparatus: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("apparatus: create request: %w", err)
	}
	return c.doRequest(ctx, req, dest)
}

func (c *Client) doRequest(ctx context.Context, req *http.Request, dest any) error {
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("apparatus: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokenMgr == nil {
		return nil
	}
	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("apparatus: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("apparatus: decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var wire struct {
		Error         string   `json:"error"`
		MissingFields []string `json:"missing_fields"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != "" {
		apiErr.Message = wire.Error
		apiErr.MissingFields = wire.MissingFields
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(statusCode)
		}
	}
	return apiErr
}

// ---------------------------------------------------------------------------
// Token management
// ---------------------------------------------------------------------------

// tokenManager exchanges the API key for a JWT at /auth/token and caches it
// until shortly before expiry.
type tokenManager struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenManager(baseURL, apiKey string, client *http.Client) *tokenManager {
	return &tokenManager{baseURL: baseURL, apiKey: apiKey, client: client}
}

func (m *tokenManager) getToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && time.Until(m.expiresAt) > time.Minute {
		return m.token, nil
	}

	encoded, err := json.Marshal(map[string]string{"api_key": m.apiKey})
	if err != nil {
		return "", fmt.Errorf("apparatus: marshal token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/auth/token", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("apparatus: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("apparatus: POST /auth/token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := handleResponse(resp, &result); err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", &Error{StatusCode: resp.StatusCode, Message: "empty token in response"}
	}

	m.token = result.Token
	m.expiresAt = result.ExpiresAt
	return m.token, nil
}
