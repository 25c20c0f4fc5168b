package openclaw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Client talks to the OpenAI-compatible OpenClaw gateway.
type Client struct {
	baseURL        string
	apiKey         string
	embeddingModel string
	httpClient     *http.Client
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	APIKey         string
	EmbeddingModel string
	// HeaderTimeout bounds the wait for response headers. There is no overall
	// timeout so streamed completions run as long as the caller's context.
	HeaderTimeout time.Duration
	HTTPClient    *http.Client
}

// NewClient constructs a gateway client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.HeaderTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   16,
		}}
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		apiKey:         opts.APIKey,
		embeddingModel: opts.EmbeddingModel,
		httpClient:     httpClient,
	}
}

// UpstreamError is a non-2xx reply from the gateway.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	msg := gjson.GetBytes(e.Body, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(e.Body))
	}
	return fmt.Sprintf("openclaw: status=%d %s", e.Status, msg)
}

// ChatCompletion posts body to /v1/chat/completions and returns the live
// response. The caller owns and must close the body.
func (c *Client) ChatCompletion(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if gjson.GetBytes(body, "stream").Bool() {
		req.Header.Set("Accept", "text/event-stream")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openclaw chat: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &UpstreamError{Status: resp.StatusCode, Body: raw}
	}
	return resp, nil
}

// Models returns the raw /v1/models document.
func (c *Client) Models(ctx context.Context) ([]byte, error) {
	return c.getJSON(ctx, "/v1/models")
}

// Embed returns the embedding vector for input.
func (c *Client) Embed(ctx context.Context, input string) ([]float32, error) {
	payload, err := json.Marshal(map[string]any{"model": c.embeddingModel, "input": input})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	values := gjson.GetBytes(raw, "data.0.embedding").Array()
	if len(values) == 0 {
		return nil, fmt.Errorf("openclaw embeddings: empty vector")
	}
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v.Float())
	}
	return out, nil
}

// Health probes the gateway with a 3 second budget.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := c.getJSON(ctx, "/v1/models")
	return err
}

func (c *Client) getJSON(ctx context.Context, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openclaw %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read openclaw response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: raw}
	}
	return raw, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("openclaw: base url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build openclaw request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}
