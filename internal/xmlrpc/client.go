package xmlrpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultClientMaxBody = 1 << 20

// Client performs calls against a remote XML-RPC endpoint.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	// MaxResponseBytes bounds the decoded response; defaults to 1 MiB.
	MaxResponseBytes int64
}

// NewClient returns a client with the given request timeout.
func NewClient(timeout time.Duration, userAgent string) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		UserAgent: userAgent,
	}
}

// Call invokes method at url. A remote fault is returned as *Fault.
func (c *Client) Call(ctx context.Context, url, method string, args ...any) (any, error) {
	var body bytes.Buffer
	if err := EncodeCall(&body, method, args...); err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("call %s: unexpected status %d", method, resp.StatusCode)
	}
	limit := c.MaxResponseBytes
	if limit <= 0 {
		limit = defaultClientMaxBody
	}
	return DecodeResponse(io.LimitReader(resp.Body, limit))
}
