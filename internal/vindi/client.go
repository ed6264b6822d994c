package vindi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type Config struct {
	APIKey      string
	Environment Environment
	// BaseURL overrides the URL derived from Environment.
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	apiKey      string
	environment Environment
	baseURL     string
	httpClient  *http.Client
}

func NewClient(cfg Config) *Client {
	env := cfg.Environment
	if env != EnvironmentProduction {
		env = EnvironmentSandbox
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sandboxBaseURL
		if env == EnvironmentProduction {
			baseURL = productionBaseURL
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		apiKey:      cfg.APIKey,
		environment: env,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  httpClient,
	}
}

func (c *Client) Environment() Environment {
	return c.environment
}

// AssetURL turns a path relative to the gateway host into an absolute URL.
// Absolute URLs are returned unchanged.
func (c *Client) AssetURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return path
	}
	return u.Scheme + "://" + u.Host + "/" + strings.TrimPrefix(path, "/")
}

// Fetch performs an authenticated GET against an absolute gateway URL and returns the raw
// body. It is used to dereference links found inside gateway response fields.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if strings.HasPrefix(rawURL, c.AssetURL("/")) {
		req.SetBasicAuth(c.apiKey, "")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Op: "fetch", Status: resp.StatusCode}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: could not encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: could not create request: %w", op, err)
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: could not read response: %w", op, err)
	}

	slog.DebugContext(ctx, "gateway call", "op", op, "method", method, "path", req.URL.Path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Op: op, Status: resp.StatusCode, Message: vendorMessage(body)}
	}

	if out == nil || len(body) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: could not decode response: %w", op, err)
	}
	return nil
}
