// Package sdk provides a Go client for the addonsync daemon.
// CLI commands and external tools use this to talk to the local daemon
// over its unix socket.
package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"addonsync/api"
)

// Client talks HTTP over the daemon's unix socket.
type Client struct {
	http *http.Client
}

// Dial builds a client for the daemon socket. No connection is made until
// the first request.
func Dial(socketPath string) *Client {
	return &Client{
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// Status returns the daemon's reconcile status.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.get(ctx, "/v1/status", &resp); err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	return &resp, nil
}

// Requirements returns the declared add-on set and its installed state.
func (c *Client) Requirements(ctx context.Context) (*api.RequirementsResponse, error) {
	var resp api.RequirementsResponse
	if err := c.get(ctx, "/v1/requirements", &resp); err != nil {
		return nil, fmt.Errorf("get requirements: %w", err)
	}
	return &resp, nil
}

// History returns recent deploys, newest first.
func (c *Client) History(ctx context.Context) (*api.HistoryResponse, error) {
	var resp api.HistoryResponse
	if err := c.get(ctx, "/v1/history", &resp); err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return &resp, nil
}

// Ready reports whether the daemon considers the host converged.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://addonsync/ready", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("get readiness: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	// The host is a placeholder; the transport dials the unix socket.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://addonsync"+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
