// Package remote provides an HTTP client for a running quotamon server.
// The CLI uses it to query deployments whose counter store is not directly
// reachable, such as the process-local memory backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the quotamon HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// ClientConfig configures the client.
type ClientConfig struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string

	// Token is the admin bearer token. Empty sends no Authorization header.
	Token string

	Timeout time.Duration
}

// NewClient creates a quotamon API client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
	}
}

// CheckResult is the outcome of an admission check.
type CheckResult struct {
	Allowed   bool
	Resource  string
	Count     int64
	Limit     int64
	Remaining int64
}

// UsageSnapshot is one resource's usage as reported by the server.
type UsageSnapshot struct {
	Resource string  `json:"resource"`
	Period   string  `json:"period"`
	Count    int64   `json:"count"`
	Limit    int64   `json:"limit"`
	Percent  float64 `json:"percent"`
	Level    string  `json:"level"`
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error %d (%s): %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Detail)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	if ae, ok := err.(*APIError); ok {
		return ae.StatusCode == http.StatusNotFound
	}
	return false
}

// Health probes the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", status)
	}
	return nil
}

// Check asks whether a call to the resource would be admitted. An
// exhausted quota is reported via CheckResult, not an error.
func (c *Client) Check(ctx context.Context, resource string) (CheckResult, error) {
	status, raw, err := c.do(ctx, http.MethodPost, "/v1/check", map[string]string{"resource": resource})
	if err != nil {
		return CheckResult{}, err
	}

	switch status {
	case http.StatusOK:
		var doc struct {
			Meta struct {
				Allowed   bool   `json:"allowed"`
				Resource  string `json:"resource"`
				Count     int64  `json:"count"`
				Limit     int64  `json:"limit"`
				Remaining int64  `json:"remaining"`
			} `json:"meta"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return CheckResult{}, fmt.Errorf("decode response: %w", err)
		}
		return CheckResult{
			Allowed:   doc.Meta.Allowed,
			Resource:  doc.Meta.Resource,
			Count:     doc.Meta.Count,
			Limit:     doc.Meta.Limit,
			Remaining: doc.Meta.Remaining,
		}, nil

	case http.StatusTooManyRequests:
		apiErr := parseError(status, raw)
		if apiErr.Code != "quota_exceeded" {
			return CheckResult{}, apiErr
		}
		var errDoc struct {
			Errors []struct {
				Meta struct {
					Resource string `json:"resource"`
					Count    int64  `json:"count"`
					Limit    int64  `json:"limit"`
				} `json:"meta"`
			} `json:"errors"`
		}
		if err := json.Unmarshal(raw, &errDoc); err != nil || len(errDoc.Errors) == 0 {
			return CheckResult{Resource: resource}, nil
		}
		m := errDoc.Errors[0].Meta
		return CheckResult{
			Allowed:  false,
			Resource: m.Resource,
			Count:    m.Count,
			Limit:    m.Limit,
		}, nil

	default:
		return CheckResult{}, parseError(status, raw)
	}
}

// Record reports a call outcome to the server.
func (c *Client) Record(ctx context.Context, resource, operation string, success bool) error {
	body := map[string]any{
		"resource":  resource,
		"operation": operation,
		"success":   success,
	}
	status, raw, err := c.do(ctx, http.MethodPost, "/v1/record", body)
	if err != nil {
		return err
	}
	if status != http.StatusAccepted {
		return parseError(status, raw)
	}
	return nil
}

// Usage fetches the usage snapshot for one resource.
func (c *Client) Usage(ctx context.Context, resource string) (UsageSnapshot, error) {
	status, raw, err := c.do(ctx, http.MethodGet, "/v1/usage/"+resource, nil)
	if err != nil {
		return UsageSnapshot{}, err
	}
	if status != http.StatusOK {
		return UsageSnapshot{}, parseError(status, raw)
	}

	var doc struct {
		Data struct {
			Attributes UsageSnapshot `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return UsageSnapshot{}, fmt.Errorf("decode response: %w", err)
	}
	return doc.Data.Attributes, nil
}

// ListUsage fetches snapshots for all configured resources.
func (c *Client) ListUsage(ctx context.Context) ([]UsageSnapshot, error) {
	status, raw, err := c.do(ctx, http.MethodGet, "/v1/usage", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, parseError(status, raw)
	}

	var doc struct {
		Data []struct {
			Attributes UsageSnapshot `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	snapshots := make([]UsageSnapshot, 0, len(doc.Data))
	for _, d := range doc.Data {
		snapshots = append(snapshots, d.Attributes)
	}
	return snapshots, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// parseError extracts the first error from a response document.
func parseError(status int, raw []byte) *APIError {
	var doc struct {
		Errors []struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
			Title  string `json:"title"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &doc); err == nil && len(doc.Errors) > 0 {
		detail := doc.Errors[0].Detail
		if detail == "" {
			detail = doc.Errors[0].Title
		}
		return &APIError{StatusCode: status, Code: doc.Errors[0].Code, Detail: detail}
	}
	return &APIError{StatusCode: status, Detail: string(raw)}
}
