package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/adroute/internal/domain/model"
)

// Client talks to the adroute HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client that never follows redirects, so /route
// answers can be inspected.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// Register posts one buyer. A 4xx answer wraps ErrRejected.
func (c *Client) Register(ctx context.Context, b *model.Buyer) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal buyer %q: %w", b.ID, err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/buyers", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusCreated {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	var apiErr apiError
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
		return fmt.Errorf("%w: %q: %d %s", ErrRejected, b.ID, resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("register %q: %d %s", b.ID, resp.StatusCode, apiErr.Message)
}

// Route issues one probe.
func (c *Client) Route(ctx context.Context, p Probe) ProbeResult {
	q := url.Values{}
	q.Set("timestamp", p.Timestamp)
	q.Set("device", p.Device)
	q.Set("state", p.State)

	res := ProbeResult{Probe: p}
	resp, err := c.do(ctx, http.MethodGet, "/route?"+q.Encode(), nil)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	res.Status = resp.StatusCode
	res.Location = resp.Header.Get("Location")
	return res
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}
