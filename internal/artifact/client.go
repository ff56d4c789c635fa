// Package artifact is the HTTP client for the external artifact store. The
// store is addressed as {base}/artifacts/{session}/{path}; fetches are plain
// GETs and uploads POST with ?upload=true. The bearer credential lives here,
// in host code; sandboxed code only ever sees the bound helper functions.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/oneprompteu/oneprompt/internal/apperror"
)

const (
	fetchTimeout  = 30 * time.Second
	uploadTimeout = 60 * time.Second
)

// Client talks to one artifact store. Zero-value credentials mean
// unauthenticated requests; a static token and an OAuth2 client-credentials
// token source are both supported, the token source winning when set.
type Client struct {
	baseURL string
	token   string
	tokens  oauth2.TokenSource
	http    *http.Client
}

// Config holds client construction parameters.
type Config struct {
	BaseURL string
	// Token is a static bearer token presented on every request.
	Token string
	// OAuth, when TokenURL is set, replaces the static token with a
	// client-credentials token source.
	OAuth clientcredentials.Config
}

// New creates a Client. An empty BaseURL is an error: callers should skip
// constructing a client when no store is configured.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("artifact: store URL not configured")
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{},
	}
	if cfg.OAuth.TokenURL != "" {
		c.tokens = cfg.OAuth.TokenSource(context.Background())
	}
	return c, nil
}

// Fetch retrieves an artifact's raw bytes. A 404 maps to apperror.ErrNotFound.
func (c *Client) Fetch(ctx context.Context, sessionID, path string) ([]byte, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("artifact: no session id")
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.artifactURL(sessionID, path, false), nil)
	if err != nil {
		return nil, fmt.Errorf("artifact: building fetch request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("artifact: fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperror.NotFound("artifact", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("artifact: fetching %s: store returned %s", path, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("artifact: reading %s: %w", path, err)
	}
	return data, nil
}

// Upload stores bytes at the given path and returns the store's decoded
// JSON response.
func (c *Client) Upload(ctx context.Context, sessionID, path string, data []byte, contentType string) (map[string]any, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("artifact: no session id")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.artifactURL(sessionID, path, true), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("artifact: building upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("artifact: uploading %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("artifact: uploading %s: store returned %s", path, resp.Status)
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("artifact: decoding upload response: %w", err)
	}
	return decoded, nil
}

func (c *Client) artifactURL(sessionID, path string, upload bool) string {
	clean := strings.TrimLeft(path, "/")
	u := fmt.Sprintf("%s/artifacts/%s/%s", c.baseURL, url.PathEscape(sessionID), clean)
	if upload {
		u += "?upload=true"
	}
	return u
}

func (c *Client) authorize(req *http.Request) error {
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("artifact: obtaining token: %w", err)
		}
		tok.SetAuthHeader(req)
		return nil
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return nil
}
