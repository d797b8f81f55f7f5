package docanalysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Default base URL for a locally deployed analysis gateway.
const defaultBaseURL = "http://localhost:8200/v1"

// Client defines the async document-analysis operations the core depends on.
type Client interface {
	StartAnalysis(ctx context.Context, req StartAnalysisRequest) (*StartAnalysisResponse, error)
	GetAnalysis(ctx context.Context, jobID string) (*AnalysisStatus, error)
}

// StartAnalysisRequest is the body for POST /analyses.
type StartAnalysisRequest struct {
	Document DocumentLocation `json:"document"`
	Features FeatureSet       `json:"features"`
	// ClientRequestToken makes resubmission of the same document idempotent
	// on the service side.
	ClientRequestToken string `json:"clientRequestToken,omitempty"`
	JobTag             string `json:"jobTag,omitempty"`
}

// StartAnalysisResponse is the response from POST /analyses.
type StartAnalysisResponse struct {
	JobID string `json:"jobId"`
}

// AnalysisStatus is the response from GET /analyses/{id}. Blocks is populated
// only once Status is terminal, and may legitimately be empty even on
// SUCCEEDED.
type AnalysisStatus struct {
	Status        JobStatus         `json:"status"`
	StatusMessage string            `json:"statusMessage,omitempty"`
	Metadata      *DocumentMetadata `json:"metadata,omitempty"`
	Blocks        []Block           `json:"blocks,omitempty"`
}

// APIError is returned when the analysis service responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docanalysis: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps request throughput across every job sharing this client.
// Analysis services throttle status calls aggressively; batch runs poll many
// jobs through one client, so the limiter lives here rather than per job.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new analysis-service client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) StartAnalysis(ctx context.Context, req StartAnalysisRequest) (*StartAnalysisResponse, error) {
	var resp StartAnalysisResponse
	if err := c.post(ctx, "/analyses", req, &resp); err != nil {
		return nil, eris.Wrap(err, "docanalysis: start analysis")
	}
	return &resp, nil
}

func (c *httpClient) GetAnalysis(ctx context.Context, jobID string) (*AnalysisStatus, error) {
	var resp AnalysisStatus
	if err := c.get(ctx, fmt.Sprintf("/analyses/%s", jobID), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("docanalysis: get analysis %s", jobID))
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return eris.Wrap(err, "rate limit wait")
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
