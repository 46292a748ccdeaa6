package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"ferry-booking-client/internal/auth"
	"ferry-booking-client/internal/config"
	"ferry-booking-client/internal/logging"

	"github.com/sirupsen/logrus"
)

const maxResponseBody = 10 << 20

// HTTPClient provides authenticated HTTP communication with the booking API
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Entry
}

// NewBaseTransport returns the connection-level transport shared by the
// session pipeline and the auth service.
func NewBaseTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}

// NewHTTPClient creates a client whose requests all pass through transport
func NewHTTPClient(cfg *config.Config, transport http.RoundTripper, logger *logrus.Logger) (*HTTPClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Timeout:   cfg.RequestTimeoutDuration(),
			Transport: transport,
		},
		baseURL: cfg.BaseURL(),
		logger:  logging.NewServiceLogger(logger, "api-client"),
	}, nil
}

// Request represents an HTTP request to be made
type Request struct {
	Method  string
	Path    string
	Body    interface{}
	Headers map[string]string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Do executes a request. Non-2xx answers return the response together with an
// *auth.APIError; network failures return *auth.TransientError. Nothing is
// retried here except the single replay after a token refresh.
func (c *HTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	op := req.Method + " " + req.Path
	fullURL := c.baseURL + normalizePath(req.Path)

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	c.logger.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    fullURL,
	}).Debug("Making HTTP request")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		wrapped := auth.ClassifyTransport(op, err)
		if auth.IsTransient(wrapped) {
			logging.LogNetworkError(c.logger, wrapped, op)
		}
		return nil, wrapped
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, auth.ClassifyTransport(op, fmt.Errorf("failed to read response body: %w", err))
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Headers:    httpResp.Header,
	}

	c.logger.WithFields(logrus.Fields{
		"status_code": httpResp.StatusCode,
		"body_length": len(respBody),
	}).Debug("HTTP response received")

	if httpResp.StatusCode >= 400 {
		return resp, &auth.APIError{Op: op, StatusCode: httpResp.StatusCode, Body: respBody}
	}

	return resp, nil
}

// Close closes idle connections
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// BaseURL returns the API host requests are sent to
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// parseJSONResponse parses a JSON response into the provided interface
func parseJSONResponse(resp *Response, v interface{}) error {
	if resp == nil {
		return fmt.Errorf("response is nil")
	}

	if len(resp.Body) == 0 {
		return fmt.Errorf("response body is empty")
	}

	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("failed to unmarshal JSON response: %w", err)
	}

	return nil
}

func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
