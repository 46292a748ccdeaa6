package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"ferry-booking-client/internal/auth"
	"ferry-booking-client/internal/logging"

	"github.com/sirupsen/logrus"
)

// State is the kind of session the client currently holds
type State int

const (
	StateUnknown State = iota
	StateGuest
	StateUser
)

func (s State) String() string {
	switch s {
	case StateGuest:
		return "GUEST"
	case StateUser:
		return "USER"
	default:
		return "UNKNOWN"
	}
}

// AuthService is the subset of auth.Service the manager drives
type AuthService interface {
	CreateGuestSession(ctx context.Context) (*auth.AuthResponse, error)
	Signup(ctx context.Context, payload auth.SignupPayload) (*auth.AuthResponse, error)
	Login(ctx context.Context, login, password string) (*auth.AuthResponse, error)
	RefreshToken(ctx context.Context) (*auth.AuthResponse, error)
	Logout(ctx context.Context) (*auth.AuthResponse, error)
}

// TokenReader reads the persisted token pair
type TokenReader interface {
	GetTokens(ctx context.Context) (auth.Credential, error)
}

// Manager owns the session state for the lifetime of the client
type Manager struct {
	service AuthService
	tokens  TokenReader
	logger  *logrus.Entry

	// opMu serializes state transitions; mu guards the fields below it
	opMu    sync.Mutex
	mu      sync.RWMutex
	state   State
	lastErr error
}

// NewManager creates a session manager in the UNKNOWN state
func NewManager(service AuthService, tokens TokenReader, logger *logrus.Logger) (*Manager, error) {
	if isNil(service) {
		return nil, fmt.Errorf("auth service is required")
	}
	if isNil(tokens) {
		return nil, fmt.Errorf("token reader is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Manager{
		service: service,
		tokens:  tokens,
		logger:  logging.NewServiceLogger(logger, "session"),
		state:   StateUnknown,
	}, nil
}

// InitializeAuth decides the session for this launch. A stored token pair is
// refreshed into a user session; anything else, including any failure on the
// way, falls back to a fresh guest session. It never returns an error: if the
// guest call fails too the state stays UNKNOWN and LastError reports why.
func (m *Manager) InitializeAuth(ctx context.Context) State {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.tryResume(ctx) {
		m.set(StateUser, nil)
		m.logger.WithField("state", StateUser.String()).Info("Resumed user session")
		return StateUser
	}

	if _, err := m.service.CreateGuestSession(ctx); err != nil {
		logging.LogOperationError(m.logger, err, "session", "create_guest_session")
		m.set(StateUnknown, fmt.Errorf("guest session fallback failed: %w", err))
		return StateUnknown
	}

	m.set(StateGuest, nil)
	m.logger.WithField("state", StateGuest.String()).Info("Started guest session")
	return StateGuest
}

// tryResume refreshes a stored token pair. It reports whether a usable access
// token came back.
func (m *Manager) tryResume(ctx context.Context) bool {
	cred, err := m.tokens.GetTokens(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Could not read stored tokens, falling back to guest")
		return false
	}
	if !cred.IsComplete() {
		m.logger.Debug("No stored session")
		return false
	}

	resp, err := m.service.RefreshToken(ctx)
	if err != nil {
		entry := m.logger.WithError(err)
		if errors.Is(err, auth.ErrNoRefreshToken) || auth.IsUnauthorized(err) {
			entry.Info("Stored session rejected, falling back to guest")
		} else {
			entry.Warn("Session refresh failed, falling back to guest")
		}
		return false
	}

	return resp != nil && resp.Data.AccessToken != ""
}

// State returns the last computed state without side effects
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastError returns the failure that left the manager in its current state,
// if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Login authenticates a user. On failure the current session is kept.
func (m *Manager) Login(ctx context.Context, login, password string) (*auth.AuthResponse, error) {
	if login == "" || password == "" {
		return nil, fmt.Errorf("login and password are required")
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	resp, err := m.service.Login(ctx, login, password)
	if err != nil {
		return nil, err
	}

	m.set(StateUser, nil)
	m.logger.WithField("state", StateUser.String()).Info("User logged in")
	return resp, nil
}

// Signup registers a user and switches to the user session
func (m *Manager) Signup(ctx context.Context, payload auth.SignupPayload) (*auth.AuthResponse, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	resp, err := m.service.Signup(ctx, payload)
	if err != nil {
		return nil, err
	}

	m.set(StateUser, nil)
	m.logger.WithField("state", StateUser.String()).Info("User signed up")
	return resp, nil
}

// Logout drops the current session and starts a guest one. If the guest
// call fails the stored tokens are already gone and the state is UNKNOWN.
func (m *Manager) Logout(ctx context.Context) (*auth.AuthResponse, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	resp, err := m.service.Logout(ctx)
	if err != nil {
		m.set(StateUnknown, err)
		return nil, err
	}

	m.set(StateGuest, nil)
	m.logger.WithField("state", StateGuest.String()).Info("Logged out, guest session started")
	return resp, nil
}

func (m *Manager) set(state State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.lastErr = err
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Func:
		return rv.IsNil()
	}
	return false
}
