package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ferry-booking-client/internal/logging"

	"github.com/sirupsen/logrus"
)

// Auth endpoint paths
const (
	PathGuest   = "/auth/guest"
	PathSignup  = "/auth/signup"
	PathLogin   = "/auth/login"
	PathRefresh = "/auth/refresh"
)

const maxResponseBody = 1 << 20

type refreshDisabledKey struct{}

// WithRefreshDisabled marks a request context so the refresh pipeline will
// never try to refresh and replay it. Auth endpoint calls always carry it.
func WithRefreshDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, refreshDisabledKey{}, true)
}

// RefreshDisabled reports whether ctx was marked by WithRefreshDisabled
func RefreshDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(refreshDisabledKey{}).(bool)
	return v
}

// SignupPayload carries the profile fields sent on signup
type SignupPayload map[string]interface{}

// Service issues guest sessions and performs signup, login, refresh and logout
type Service struct {
	httpClient *http.Client
	baseURL    string
	tokens     CredentialStore
	device     DeviceIDProvider
	logger     *logrus.Entry
}

// NewService creates the auth service. httpClient must not route through the
// refresh pipeline.
func NewService(baseURL string, httpClient *http.Client, tokens CredentialStore, device DeviceIDProvider, logger *logrus.Logger) (*Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if device == nil {
		return nil, fmt.Errorf("device identity provider is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Service{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tokens:     tokens,
		device:     device,
		logger:     logging.NewServiceLogger(logger, "auth"),
	}, nil
}

// CreateGuestSession obtains an anonymous token pair bound to this device
func (s *Service) CreateGuestSession(ctx context.Context) (*AuthResponse, error) {
	deviceID, err := s.device.GetOrCreateDeviceID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.authenticate(ctx, "guest", PathGuest, map[string]interface{}{
		"deviceId": deviceID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("device_id", deviceID).Info("Guest session created")
	return resp, nil
}

// Signup registers an account, upgrading the current guest session if the
// server correlates it by device id.
func (s *Service) Signup(ctx context.Context, payload SignupPayload) (*AuthResponse, error) {
	deviceID, err := s.device.GetOrCreateDeviceID(ctx)
	if err != nil {
		return nil, err
	}

	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["deviceId"] = deviceID

	resp, err := s.authenticate(ctx, "signup", PathSignup, body)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("device_id", deviceID).Info("Signup succeeded")
	return resp, nil
}

// Login exchanges credentials for a user token pair
func (s *Service) Login(ctx context.Context, login, password string) (*AuthResponse, error) {
	deviceID, err := s.device.GetOrCreateDeviceID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.authenticate(ctx, "login", PathLogin, map[string]interface{}{
		"login":    login,
		"password": password,
		"deviceId": deviceID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("device_id", deviceID).Info("Login succeeded")
	return resp, nil
}

// RefreshToken refreshes using the refresh token on file
func (s *Service) RefreshToken(ctx context.Context) (*AuthResponse, error) {
	cred, err := s.tokens.GetTokens(ctx)
	if err != nil {
		return nil, err
	}
	if !cred.HasRefresh() {
		return nil, ErrNoRefreshToken
	}

	return s.RefreshWith(ctx, cred.RefreshToken)
}

// RefreshWith refreshes using the given refresh token and persists the new
// pair. The refresh pipeline calls this directly.
func (s *Service) RefreshWith(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	deviceID, err := s.device.GetOrCreateDeviceID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.authenticate(ctx, "refresh", PathRefresh, map[string]interface{}{
		"refreshToken": refreshToken,
		"deviceId":     deviceID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Token pair refreshed")
	return resp, nil
}

// Logout drops the current tokens and immediately starts a guest session, so
// there is always a session after a successful logout.
func (s *Service) Logout(ctx context.Context) (*AuthResponse, error) {
	if err := s.tokens.ClearTokens(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("Logged out, starting guest session")
	return s.CreateGuestSession(ctx)
}

// authenticate posts body to path and persists the returned tokens
func (s *Service) authenticate(ctx context.Context, op, path string, body interface{}) (*AuthResponse, error) {
	resp, err := s.post(ctx, op, path, body)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.SaveTokens(ctx, resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

func (s *Service) post(ctx context.Context, op, path string, body interface{}) (*AuthResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request body: %w", op, err)
	}

	req, err := http.NewRequestWithContext(WithRefreshDisabled(ctx), http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create HTTP request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := s.httpClient.Do(req)
	if err != nil {
		wrapped := ClassifyTransport(op, err)
		logging.LogNetworkError(s.logger, wrapped, op)
		return nil, wrapped
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, ClassifyTransport(op, fmt.Errorf("failed to read response body: %w", err))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		s.logger.WithFields(logrus.Fields{
			"operation":   op,
			"status_code": httpResp.StatusCode,
		}).Warn("Auth endpoint rejected request")
		return nil, &APIError{Op: op, StatusCode: httpResp.StatusCode, Body: respBody}
	}

	var authResp AuthResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &authResp); err != nil {
			return nil, fmt.Errorf("%s: failed to parse response: %w", op, err)
		}
	}
	authResp.Raw = respBody

	return &authResp, nil
}
