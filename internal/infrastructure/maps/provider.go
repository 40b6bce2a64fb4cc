// Package maps bootstraps the map provider once per process and serves
// location predictions for the discovery form.
package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"Prospector/internal/ports"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("map provider not configured")

const defaultLoadTimeout = 10 * time.Second

// Handle is a loaded map provider.
type Handle struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// Provider loads the map provider on first use. Concurrent callers share a
// single load; a successful load is kept, a failed one is retried by the next
// caller.
type Provider struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client

	group  singleflight.Group
	mu     sync.Mutex
	handle *Handle
	loads  int
}

var _ ports.LocationSuggester = (*Provider)(nil)

// NewProvider configures the provider without contacting it.
func NewProvider(endpoint, apiKey string, timeout time.Duration, client *http.Client) *Provider {
	if timeout <= 0 {
		timeout = defaultLoadTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Provider{endpoint: endpoint, apiKey: apiKey, timeout: timeout, client: client}
}

// Ensure returns the loaded handle, loading it if needed. The load is bounded
// by the provider timeout and is not cancelled when one waiting caller gives up.
func (p *Provider) Ensure(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	if p.handle != nil {
		h := p.handle
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	ch := p.group.DoChan("load", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		h, err := p.load(loadCtx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.handle = h
		p.mu.Unlock()
		return h, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Loads reports how many bootstrap attempts were made.
func (p *Provider) Loads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}

// Suggest loads the provider if needed and returns predictions for input.
func (p *Provider) Suggest(ctx context.Context, input string) ([]string, error) {
	h, err := p.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return h.Suggest(ctx, input)
}

// load verifies the key with a probe request.
func (p *Provider) load(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	p.loads++
	p.mu.Unlock()

	if p.apiKey == "" || p.endpoint == "" {
		return nil, ErrNotConfigured
	}
	h := &Handle{endpoint: p.endpoint, apiKey: p.apiKey, client: p.client}
	if _, err := h.predict(ctx, "a"); err != nil {
		return nil, fmt.Errorf("load map provider: %w", err)
	}
	return h, nil
}

type autocompleteResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Predictions  []struct {
		Description string `json:"description"`
	} `json:"predictions"`
}

// Suggest returns location predictions for a partially typed query.
func (h *Handle) Suggest(ctx context.Context, input string) ([]string, error) {
	if input == "" {
		return []string{}, nil
	}
	return h.predict(ctx, input)
}

func (h *Handle) predict(ctx context.Context, input string) ([]string, error) {
	query := url.Values{}
	query.Set("input", input)
	query.Set("types", "(regions)")
	query.Set("key", h.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var decoded autocompleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	switch decoded.Status {
	case "OK", "ZERO_RESULTS":
	default:
		return nil, fmt.Errorf("map provider status %s: %s", decoded.Status, decoded.ErrorMessage)
	}

	out := make([]string, 0, len(decoded.Predictions))
	for _, p := range decoded.Predictions {
		if p.Description != "" {
			out = append(out, p.Description)
		}
	}
	return out, nil
}
