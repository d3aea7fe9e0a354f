package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"addonsync"

	"github.com/cenkalti/backoff/v4"
	"github.com/containerd/errdefs"
)

const (
	// refreshInterval is 1h: catalog content changes rarely; the reconcile
	// loop polls HasMetadata at its own cadence.
	refreshInterval = time.Hour
	// fetchMaxElapsed bounds one backoff-driven fetch attempt chain.
	fetchMaxElapsed = 2 * time.Minute
)

// Client is an HTTP catalog client. Metadata is unavailable until the
// first successful fetch; every call is safe for concurrent use.
type Client struct {
	url  string
	http *http.Client
	host Deployer

	mu        sync.RWMutex
	doc       *Document
	fetchedAt time.Time
}

// NewClient builds a catalog client for the given update-site URL.
// httpClient may be nil.
func NewClient(url string, httpClient *http.Client, host Deployer) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: url, http: httpClient, host: host}
}

// HasMetadata reports whether catalog data has been fetched at least once.
func (c *Client) HasMetadata() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc != nil
}

// FetchedAt returns when the current snapshot was fetched; zero before the
// first successful fetch.
func (c *Client) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Generated returns the snapshot's server-side generation timestamp.
func (c *Client) Generated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.doc == nil {
		return time.Time{}
	}
	return c.doc.Generated
}

// Resolve maps a component name to its catalog entry bound to the local
// substrate. The error is errdefs NotFound when the catalog does not
// offer the component, and errdefs Unavailable before the first fetch.
func (c *Client) Resolve(_ context.Context, name string) (addonsync.Resolved, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.doc == nil {
		return nil, fmt.Errorf("catalog metadata not fetched yet: %w", errdefs.ErrUnavailable)
	}
	for _, entry := range c.doc.Components {
		if entry.Name == name {
			return resolved{entry: entry, host: c.host}, nil
		}
	}
	return nil, fmt.Errorf("catalog has no component %q: %w", name, errdefs.ErrNotFound)
}

// Refresh fetches the catalog document once and replaces the snapshot.
func (c *Client) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("build catalog request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch catalog: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("fetch catalog: unexpected status %s", resp.Status)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode catalog document: %w", err)
	}
	if err := validate(doc); err != nil {
		return fmt.Errorf("invalid catalog document: %w", err)
	}

	c.mu.Lock()
	c.doc = &doc
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	slog.Debug("Catalog metadata refreshed.", "components", len(doc.Components), "generated", doc.Generated)
	return nil
}

// Run keeps the snapshot fresh until ctx is cancelled. Each fetch attempt
// chain retries with exponential backoff; a chain that exhausts its
// budget is logged and retried at the next interval.
func (c *Client) Run(ctx context.Context) {
	c.refreshWithBackoff(ctx)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshWithBackoff(ctx)
		}
	}
}

func (c *Client) refreshWithBackoff(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = fetchMaxElapsed
	err := backoff.Retry(func() error {
		return c.Refresh(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		slog.Warn("Catalog metadata fetch failed, will retry later.", "url", c.url, "err", err)
	}
}

func validate(doc Document) error {
	seen := make(map[string]struct{}, len(doc.Components))
	for i, entry := range doc.Components {
		if entry.Name == "" {
			return fmt.Errorf("component %d has no name", i)
		}
		if _, dup := seen[entry.Name]; dup {
			return fmt.Errorf("duplicate component %q", entry.Name)
		}
		seen[entry.Name] = struct{}{}
		if entry.Image == "" {
			return fmt.Errorf("component %q has no image", entry.Name)
		}
	}
	return nil
}
