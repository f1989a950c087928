package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/passenger.counter/internal/httputil"
)

// Client talks to a running server. The pcn status and reset
// subcommands use it.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a client for the server at base, e.g.
// "http://localhost:8080". A nil hc uses http.DefaultClient.
func NewClient(base string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{base: strings.TrimRight(base, "/"), http: hc}
}

// Streams lists the running streams.
func (c *Client) Streams(ctx context.Context) ([]StreamStatus, error) {
	var out []StreamStatus
	err := httputil.DoJSON(ctx, c.http, http.MethodGet, c.base+"/api/streams", nil, &out)
	return out, err
}

// Reset resets one stream, or every stream when name is empty.
func (c *Client) Reset(ctx context.Context, name string) error {
	u := c.base + "/api/reset"
	if name != "" {
		u = c.base + "/api/streams/" + url.PathEscape(name) + "/reset"
	}
	return httputil.DoJSON(ctx, c.http, http.MethodPost, u, nil, nil)
}

// SetParams applies a partial parameter update.
func (c *Client) SetParams(ctx context.Context, patch map[string]interface{}) error {
	return httputil.DoJSON(ctx, c.http, http.MethodPatch, c.base+"/api/params", patch, nil)
}
