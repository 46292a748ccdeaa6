package devserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ferry-booking-client/internal/auth"
	"ferry-booking-client/internal/config"
	"ferry-booking-client/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	cfg := config.DefaultConfig().DevServer
	s, err := NewServer(cfg, logging.NewNopLogger(), WithPasswordCost(bcrypt.MinCost))
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

type envelope struct {
	Data struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		Kind         string `json:"kind"`
		Subject      string `json:"subject"`
		DeviceID     string `json:"deviceId"`
		User         *struct {
			ID    string `json:"id"`
			Login string `json:"login"`
		} `json:"user"`
	} `json:"data"`
	Error string `json:"error"`
}

func call(t *testing.T, ts *httptest.Server, method, path, bearer string, body interface{}) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func TestNewServer(t *testing.T) {
	logger := logging.NewNopLogger()
	cfg := config.DefaultConfig().DevServer

	_, err := NewServer(cfg, nil)
	assert.Error(t, err)

	bad := cfg
	bad.SigningKey = ""
	_, err = NewServer(bad, logger)
	assert.Error(t, err)

	bad = cfg
	bad.AccessTTL = 0
	_, err = NewServer(bad, logger)
	assert.Error(t, err)

	s, err := NewServer(cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, cfg.Addr, s.httpServer.Addr)
}

func TestServer_Health(t *testing.T) {
	_, ts := newTestServer(t)

	status, _ := call(t, ts, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_GuestSession(t *testing.T) {
	_, ts := newTestServer(t)

	status, env := call(t, ts, http.MethodPost, "/auth/guest", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", env.Error)

	status, env = call(t, ts, http.MethodPost, "/auth/guest", "", map[string]string{"deviceId": "dev-1"})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, env.Data.AccessToken)
	assert.NotEmpty(t, env.Data.RefreshToken)
	assert.Equal(t, kindGuest, env.Data.Kind)

	info, err := auth.InspectAccessToken(env.Data.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, kindGuest, info.Kind)
	assert.False(t, info.ExpiresAt.IsZero())

	status, me := call(t, ts, http.MethodGet, "/api/v1/me", env.Data.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dev-1", me.Data.DeviceID)
	assert.Equal(t, kindGuest, me.Data.Kind)
}

func TestServer_SignupAndLogin(t *testing.T) {
	_, ts := newTestServer(t)

	profile := map[string]interface{}{
		"email":    "Maria@example.com",
		"password": "secret-pass",
		"name":     "Maria",
		"deviceId": "dev-1",
	}
	status, env := call(t, ts, http.MethodPost, "/auth/signup", "", profile)
	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, env.Data.User)
	assert.Equal(t, "maria@example.com", env.Data.User.Login)
	assert.Equal(t, kindUser, env.Data.Kind)

	status, env = call(t, ts, http.MethodPost, "/auth/signup", "", profile)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "login_taken", env.Error)

	status, _ = call(t, ts, http.MethodPost, "/auth/signup", "", map[string]string{"email": "x@example.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = call(t, ts, http.MethodPost, "/auth/login", "", map[string]string{
		"login": "maria@example.com", "password": "wrong-pass", "deviceId": "dev-1",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", env.Error)

	status, env = call(t, ts, http.MethodPost, "/auth/login", "", map[string]string{
		"login": "MARIA@example.com", "password": "secret-pass", "deviceId": "dev-1",
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, env.Data.AccessToken)

	status, me := call(t, ts, http.MethodGet, "/api/v1/me", env.Data.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, kindUser, me.Data.Kind)
}

func TestServer_RefreshRotates(t *testing.T) {
	_, ts := newTestServer(t)

	_, guest := call(t, ts, http.MethodPost, "/auth/guest", "", map[string]string{"deviceId": "dev-1"})
	r1 := guest.Data.RefreshToken

	status, env := call(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": r1, "deviceId": "dev-1"})
	require.Equal(t, http.StatusOK, status)
	assert.NotEqual(t, r1, env.Data.RefreshToken)
	assert.Equal(t, kindGuest, env.Data.Kind)

	// refresh tokens are single use
	status, env = call(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": r1, "deviceId": "dev-1"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_grant", env.Error)

	status, _ = call(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{"deviceId": "dev-1"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_RefreshBoundToDevice(t *testing.T) {
	_, ts := newTestServer(t)

	_, guest := call(t, ts, http.MethodPost, "/auth/guest", "", map[string]string{"deviceId": "dev-1"})

	status, _ := call(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{
		"refreshToken": guest.Data.RefreshToken, "deviceId": "dev-2",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestServer_ProtectedRoutes(t *testing.T) {
	s, ts := newTestServer(t)

	status, env := call(t, ts, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", env.Error)

	status, _ = call(t, ts, http.MethodGet, "/api/v1/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	_, guest := call(t, ts, http.MethodPost, "/auth/guest", "", map[string]string{"deviceId": "dev-1"})
	status, _ = call(t, ts, http.MethodGet, "/api/v1/me", guest.Data.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)

	s.ExpireAccessTokens()

	status, env = call(t, ts, http.MethodGet, "/api/v1/me", guest.Data.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token_expired", env.Error)

	// the refresh token survives and yields a working access token
	_, refreshed := call(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{
		"refreshToken": guest.Data.RefreshToken, "deviceId": "dev-1",
	})
	status, _ = call(t, ts, http.MethodGet, "/api/v1/me", refreshed.Data.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_ForeignSigningKeyRejected(t *testing.T) {
	_, ts := newTestServer(t)

	other := config.DefaultConfig().DevServer
	other.SigningKey = "someone-else"
	foreign, err := NewServer(other, logging.NewNopLogger())
	require.NoError(t, err)

	pair, err := foreign.tokens.issue("guest:x", kindGuest, "dev-1")
	require.NoError(t, err)

	status, _ := call(t, ts, http.MethodGet, "/api/v1/me", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestServer_InvalidJSON(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := ts.Client().Post(ts.URL+"/auth/login", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
