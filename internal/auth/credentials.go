package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"ferry-booking-client/internal/logging"
	"ferry-booking-client/internal/storage"

	"github.com/sirupsen/logrus"
)

// Storage keys
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyDeviceID     = "deviceId"
)

// Credential is the persisted token pair. Either field may be empty.
type Credential struct {
	AccessToken  string
	RefreshToken string
}

// HasAccess reports whether an access token is on file
func (c Credential) HasAccess() bool {
	return c.AccessToken != ""
}

// HasRefresh reports whether a refresh token is on file
func (c Credential) HasRefresh() bool {
	return c.RefreshToken != ""
}

// IsComplete reports whether both tokens are on file
func (c Credential) IsComplete() bool {
	return c.HasAccess() && c.HasRefresh()
}

// TokenData is the data envelope of every auth endpoint
type TokenData struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// AuthResponse is the wire payload returned by the auth endpoints
type AuthResponse struct {
	Data TokenData `json:"data"`

	// Raw holds the full response body, including fields beyond the tokens
	Raw json.RawMessage `json:"-"`
}

// CredentialStore persists the session token pair
type CredentialStore interface {
	SaveTokens(ctx context.Context, resp *AuthResponse) error
	GetTokens(ctx context.Context) (Credential, error)
	ClearTokens(ctx context.Context) error
}

// TokenStore is the CredentialStore backed by a storage.KV
type TokenStore struct {
	kv     storage.KV
	logger *logrus.Entry
}

// NewTokenStore creates a token store on top of kv
func NewTokenStore(kv storage.KV, logger *logrus.Logger) (*TokenStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &TokenStore{
		kv:     kv,
		logger: logging.NewServiceLogger(logger, "credentials"),
	}, nil
}

// SaveTokens persists the tokens present and non-empty in resp. Absent fields
// leave the stored value untouched.
func (s *TokenStore) SaveTokens(ctx context.Context, resp *AuthResponse) error {
	if resp == nil {
		return nil
	}

	values := make(map[string]string, 2)
	if resp.Data.AccessToken != "" {
		values[KeyAccessToken] = resp.Data.AccessToken
	}
	if resp.Data.RefreshToken != "" {
		values[KeyRefreshToken] = resp.Data.RefreshToken
	}
	if len(values) == 0 {
		return nil
	}

	if err := s.kv.Set(ctx, values); err != nil {
		logging.LogStorageError(s.logger, err, "save_tokens")
		return fmt.Errorf("failed to save tokens: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"access_token":  values[KeyAccessToken] != "",
		"refresh_token": values[KeyRefreshToken] != "",
	}).Debug("Tokens saved")
	return nil
}

// GetTokens reads both tokens as one snapshot
func (s *TokenStore) GetTokens(ctx context.Context) (Credential, error) {
	values, err := s.kv.Get(ctx, KeyAccessToken, KeyRefreshToken)
	if err != nil {
		logging.LogStorageError(s.logger, err, "get_tokens")
		return Credential{}, fmt.Errorf("failed to read tokens: %w", err)
	}

	return Credential{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
	}, nil
}

// ClearTokens removes both tokens. Safe to call repeatedly.
func (s *TokenStore) ClearTokens(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyAccessToken, KeyRefreshToken); err != nil {
		logging.LogStorageError(s.logger, err, "clear_tokens")
		return fmt.Errorf("failed to clear tokens: %w", err)
	}

	s.logger.Debug("Tokens cleared")
	return nil
}
