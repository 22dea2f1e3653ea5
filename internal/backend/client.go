package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Backend endpoints consumed by the monitoring core.
const (
	PathClassifySMS   = "/sms/classify_or_scan"
	PathScanEmail     = "/scan-email"
	PathGoogleStatus  = "/google-status"
	PathMonitorToggle = "/monitor/toggle"
)

// maxErrorBody caps how much of an error response is kept for messages.
const maxErrorBody = 512

// Client is a thin HTTP client for the SwiftShield backend. It handles
// Bearer token authentication and JSON marshaling. It never retries: every
// caller in the monitoring core treats a failed call as dropped.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a backend client. timeout bounds every request in
// addition to any deadline on the caller's context.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetRateLimit caps scan requests to perSec (burst 1). Zero or negative
// removes the cap.
func (c *Client) SetRateLimit(perSec float64) {
	if perSec <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
}

// ClassifySMS asks the backend to classify a single SMS.
func (c *Client) ClassifySMS(
	ctx context.Context,
	req ClassifyRequest,
) (*ClassifyResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	var result ClassifyResult
	if err := c.do(ctx, http.MethodPost, PathClassifySMS, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ScanEmail asks the backend to classify a single mail message.
func (c *Client) ScanEmail(
	ctx context.Context,
	req EmailScanRequest,
) (*ClassifyResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	var result ClassifyResult
	if err := c.do(ctx, http.MethodPost, PathScanEmail, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CheckLinkStatus reports whether the user's mail account is linked.
// A response without a boolean "linked" field reads as not linked.
func (c *Client) CheckLinkStatus(ctx context.Context) (LinkStatus, error) {
	var raw map[string]any
	if err := c.do(ctx, http.MethodGet, PathGoogleStatus, nil, &raw); err != nil {
		return LinkStatus{}, err
	}

	linked, ok := raw["linked"].(bool)
	if !ok {
		return LinkStatus{Linked: false}, nil
	}
	return LinkStatus{Linked: linked}, nil
}

// ToggleMonitoring informs the backend of the intended monitoring state.
func (c *Client) ToggleMonitoring(ctx context.Context, req ToggleRequest) error {
	return c.do(ctx, http.MethodPost, PathMonitorToggle, req, nil)
}

// wait blocks on the rate limiter, if one is configured.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return nil
}

// do is the core HTTP method that builds the request, handles auth and
// JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{
			Path:    path,
			Message: truncate(string(respBody), maxErrorBody),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   truncate(string(respBody), maxErrorBody),
		}
	}

	// No content to parse (e.g. 204).
	if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
