package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"ferry-booking-client/internal/auth"
	"ferry-booking-client/internal/logging"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// maxBufferedBody bounds how much of a 401 body is kept while refreshing
const maxBufferedBody = 64 << 10

// Request lifecycle phases, logged with the "phase" field
const (
	phaseSent       = "sent"
	phaseRefreshing = "refreshing"
	phaseReplayed   = "replayed"
	phaseFailed     = "failed"
	phaseResolved   = "resolved"
)

// Refresher exchanges a refresh token for a new pair and persists it
type Refresher interface {
	RefreshWith(ctx context.Context, refreshToken string) (*auth.AuthResponse, error)
}

// TokenSource is the view of the credential store the pipeline needs
type TokenSource interface {
	GetTokens(ctx context.Context) (auth.Credential, error)
	ClearTokens(ctx context.Context) error
}

// TransportConfig tunes the refresh behaviour
type TransportConfig struct {
	// SingleFlight makes concurrent 401s holding the same refresh token share
	// one refresh call. When false every 401 refreshes on its own.
	SingleFlight   bool
	RefreshTimeout time.Duration
}

// Transport is an http.RoundTripper that attaches the current bearer token
// and, on a 401, refreshes the token pair and replays the request once.
type Transport struct {
	base      http.RoundTripper
	tokens    TokenSource
	refresher Refresher
	cfg       TransportConfig
	logger    *logrus.Entry
	group     singleflight.Group
}

// NewTransport wraps base with the session pipeline
func NewTransport(base http.RoundTripper, tokens TokenSource, refresher Refresher, cfg TransportConfig, logger *logrus.Logger) (*Transport, error) {
	if base == nil {
		base = NewBaseTransport()
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if refresher == nil {
		return nil, fmt.Errorf("refresher is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 15 * time.Second
	}

	return &Transport{
		base:      base,
		tokens:    tokens,
		refresher: refresher,
		cfg:       cfg,
		logger:    logging.NewServiceLogger(logger, "session-transport"),
	}, nil
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	entry := t.logger.WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.URL.Path,
	})

	cred, err := t.tokens.GetTokens(ctx)
	if err != nil {
		closeBody(req)
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	sentToken := cred.AccessToken
	resp, err := t.base.RoundTrip(withBearer(req, req.Body, sentToken))
	if err != nil {
		// timeouts and network failures never enter the refresh path
		return nil, err
	}
	entry.WithFields(logrus.Fields{"phase": phaseSent, "status_code": resp.StatusCode}).Debug("Request sent")

	if resp.StatusCode != http.StatusUnauthorized || auth.RefreshDisabled(ctx) {
		return resp, nil
	}

	return t.handleUnauthorized(req, resp, sentToken, entry)
}

func (t *Transport) handleUnauthorized(req *http.Request, original *http.Response, sentToken string, entry *logrus.Entry) (*http.Response, error) {
	ctx := req.Context()
	entry = entry.WithField("phase", phaseRefreshing)
	bufferBody(original, entry)

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		entry.Warn("Request body cannot be replayed, returning 401")
		return original, nil
	}

	cred, err := t.tokens.GetTokens(ctx)
	if err != nil {
		entry.WithError(err).Warn("Could not read credentials after 401")
		return original, nil
	}

	if !cred.HasRefresh() {
		entry.Info("No refresh token on file, clearing session")
		if err := t.tokens.ClearTokens(ctx); err != nil {
			entry.WithError(err).Warn("Failed to clear tokens")
		}
		return original, nil
	}

	// a concurrent request already rotated the pair; reuse it
	if cred.HasAccess() && cred.AccessToken != sentToken {
		entry.Debug("Access token changed while request was in flight, replaying")
		return t.replay(req, original, cred.AccessToken, entry)
	}

	accessToken, err := t.refresh(ctx, cred.RefreshToken)
	if err != nil {
		logging.LogSecurityError(entry, err, "refresh", map[string]interface{}{
			"phase": phaseFailed,
			"path":  req.URL.Path,
		})
		// a refresh that lost the race against a rotation still has a usable pair
		latest, kept := t.clearIfUnchanged(ctx, cred.RefreshToken, entry)
		if kept && latest.HasAccess() && latest.AccessToken != sentToken {
			entry.Debug("Refresh lost to a concurrent rotation, replaying with stored token")
			return t.replay(req, original, latest.AccessToken, entry)
		}
		return original, nil
	}

	return t.replay(req, original, accessToken, entry)
}

// refresh runs one refresh call, shared between concurrent callers when
// single-flight is enabled. The call is detached from the caller's
// cancellation so one abandoned request cannot fail the others.
func (t *Transport) refresh(ctx context.Context, refreshToken string) (string, error) {
	do := func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.RefreshTimeout)
		defer cancel()

		resp, err := t.refresher.RefreshWith(auth.WithRefreshDisabled(rctx), refreshToken)
		if err != nil {
			return nil, &auth.RefreshFailedError{Err: err}
		}
		return resp, nil
	}

	var (
		v   interface{}
		err error
	)
	if t.cfg.SingleFlight {
		var shared bool
		v, err, shared = t.group.Do(refreshToken, do)
		if shared {
			t.logger.Debug("Joined in-flight token refresh")
		}
	} else {
		v, err = do()
	}
	if err != nil {
		return "", err
	}

	// read back what is stored now rather than trusting our own copy
	cred, readErr := t.tokens.GetTokens(ctx)
	if readErr == nil && cred.HasAccess() {
		return cred.AccessToken, nil
	}

	resp := v.(*auth.AuthResponse)
	if resp.Data.AccessToken == "" {
		return "", &auth.RefreshFailedError{Err: fmt.Errorf("refresh response carried no access token")}
	}
	return resp.Data.AccessToken, nil
}

func (t *Transport) replay(req *http.Request, original *http.Response, accessToken string, entry *logrus.Entry) (*http.Response, error) {
	var body io.ReadCloser
	if req.GetBody != nil {
		var err error
		body, err = req.GetBody()
		if err != nil {
			entry.WithError(err).Warn("Could not rewind request body, returning 401")
			return original, nil
		}
	}

	retry := req.WithContext(auth.WithRefreshDisabled(req.Context()))
	resp, err := t.base.RoundTrip(withBearer(retry, body, accessToken))
	if err != nil {
		return nil, err
	}
	original.Body.Close()

	entry.WithFields(logrus.Fields{
		"phase":       phaseReplayed,
		"status_code": resp.StatusCode,
	}).Debug("Request replayed with refreshed token")

	if resp.StatusCode == http.StatusUnauthorized {
		entry.WithField("phase", phaseFailed).Warn("Replayed request still unauthorized")
	} else {
		entry.WithField("phase", phaseResolved).Debug("Request resolved after refresh")
	}
	return resp, nil
}

// clearIfUnchanged drops the session unless another refresh already stored a
// newer pair, in which case that pair is returned with kept set.
func (t *Transport) clearIfUnchanged(ctx context.Context, refreshToken string, entry *logrus.Entry) (auth.Credential, bool) {
	cred, err := t.tokens.GetTokens(ctx)
	if err == nil && cred.RefreshToken != refreshToken {
		entry.Debug("Session was refreshed elsewhere, keeping new tokens")
		return cred, true
	}
	if err := t.tokens.ClearTokens(ctx); err != nil {
		entry.WithError(err).Warn("Failed to clear tokens")
	}
	return auth.Credential{}, false
}

// CloseIdleConnections releases idle connections held by the base transport.
// http.Client.CloseIdleConnections only reaches the base through this method.
func (t *Transport) CloseIdleConnections() {
	type closeIdler interface {
		CloseIdleConnections()
	}
	if ci, ok := t.base.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}

// withBearer clones req with body and the Authorization header for token.
// The caller's request and headers are never modified.
func withBearer(req *http.Request, body io.ReadCloser, token string) *http.Request {
	clone := req.Clone(req.Context())
	clone.Body = body
	if token != "" {
		clone.Header.Set("Authorization", "Bearer "+token)
	}
	return clone
}

// bufferBody reads a small response body into memory so the connection can be
// reused while the refresh runs. Bodies past maxBufferedBody are cut off.
func bufferBody(resp *http.Response, entry *logrus.Entry) {
	if resp.Body == nil {
		return
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBufferedBody+1))
	if err != nil {
		entry.WithError(err).Debug("Could not read full 401 body, keeping what arrived")
	}
	if len(data) > maxBufferedBody {
		data = data[:maxBufferedBody]
		entry.WithField("limit_bytes", maxBufferedBody).Debug("401 body truncated while buffering")
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	resp.ContentLength = int64(len(data))
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}
