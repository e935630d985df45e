// Raw HTTP client for the heatx proxy server
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultProxyURL = "http://localhost:3000"

// ProxyClient makes raw requests against a running `heatx serve` instance.
type ProxyClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewProxyClient creates a client for the proxy at baseURL.
func NewProxyClient(baseURL string, client *http.Client) *ProxyClient {
	if baseURL == "" {
		baseURL = defaultProxyURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ProxyClient{baseURL: baseURL, httpClient: client}
}

// WithToken returns a copy of p that sends token as a bearer Authorization header.
func (p *ProxyClient) WithToken(token string) *ProxyClient {
	cp := *p
	cp.token = token
	return &cp
}

// APIResponse is a raw proxy response with its body decoded when it is JSON.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs a GET request to path.
func (p *ProxyClient) Get(ctx context.Context, path string) (*APIResponse, error) {
	return p.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (p *ProxyClient) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return p.do(ctx, http.MethodPost, path, data)
}

func (p *ProxyClient) do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "heatx/"+Version)
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: raw}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}
	return apiResp, nil
}
