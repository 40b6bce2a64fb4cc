package screenshot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"Prospector/internal/ports"
)

// maxImageBytes bounds the rendered image read from the service.
const maxImageBytes = 10 << 20

// Client renders web pages through an external screenshot service.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.ScreenshotCapturer = (*Client)(nil)

// NewClient creates a reusable HTTP client. A nil httpClient gets a default
// with a generous timeout, since rendering is slow.
func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     httpClient,
	}
}

// Capture renders pageURL as a full-page PNG and returns it base64-encoded.
func (c *Client) Capture(ctx context.Context, pageURL string) (string, error) {
	if c.endpoint == "" || c.apiKey == "" {
		return "", errors.New("screenshot client misconfigured")
	}
	if pageURL == "" {
		return "", errors.New("page url is required")
	}

	query := url.Values{}
	query.Set("access_key", c.apiKey)
	query.Set("url", pageURL)
	query.Set("format", "png")
	query.Set("full_page", "true")
	query.Set("viewport_width", "1280")

	image, err := c.get(ctx, query)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(image), nil
}

func (c *Client) get(ctx context.Context, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("empty screenshot")
	}
	return body, nil
}
