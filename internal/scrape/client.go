package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://opencorporates.al"
	requestTimeout = 30 * time.Second

	// RequestDelay is the fixed polite pause between consecutive requests to
	// the registry. Not configurable at runtime.
	RequestDelay = 1500 * time.Millisecond

	userAgent = "QKBIntelligence/1.0 (research; contact@qkb.al)"
)

// ErrNotFound marks a 404 from the registry: an expected outcome, not a
// transport failure.
var ErrNotFound = errors.New("not found")

// Client issues polite HTTP requests against the registry source. One client
// is opened per pipeline run and reused across all fetches.
type Client struct {
	http    *http.Client
	baseURL string
	delay   time.Duration
}

func NewClient() *Client {
	return NewClientWithBase(defaultBaseURL)
}

func NewClientWithBase(baseURL string) *Client {
	return &Client{
		http: &http.Client{
			Timeout: requestTimeout,
			// Redirects followed by default; the registry bounces /sq/ paths.
		},
		baseURL: baseURL,
		delay:   RequestDelay,
	}
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp, nil
}

// GetJSON fetches path and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, path string, v any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// GetHTML fetches path and returns the raw body as a string.
func (c *Client) GetHTML(ctx context.Context, path string) (string, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(body), nil
}

// sleep waits for the polite delay unless the context is cancelled first.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
