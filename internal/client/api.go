package client

import (
	"context"
	"fmt"
	"net/http"
)

// HealthPath is hit by CheckConnectivity
const HealthPath = "/api/v1/health"

// GetJSON fetches path and decodes the JSON body into out
func (c *HTTPClient) GetJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   normalizePath(path),
	})
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	return parseJSONResponse(resp, out)
}

// PostJSON sends in as JSON to path and decodes the answer into out
func (c *HTTPClient) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	resp, err := c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   normalizePath(path),
		Body:   in,
	})
	if err != nil {
		return err
	}

	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return parseJSONResponse(resp, out)
}

// CheckConnectivity performs a simple connectivity check
func (c *HTTPClient) CheckConnectivity(ctx context.Context) error {
	if _, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: HealthPath}); err != nil {
		return fmt.Errorf("connectivity check failed: %w", err)
	}
	return nil
}
