package devserver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session kinds carried in the "kind" claim
const (
	kindGuest = "guest"
	kindUser  = "user"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errLoginTaken         = errors.New("login already registered")
	errInvalidGrant       = errors.New("refresh token is invalid or expired")
)

type user struct {
	ID           string
	Login        string
	PasswordHash []byte
	Profile      map[string]interface{}
	CreatedAt    time.Time
}

// refreshGrant is what a refresh token can be exchanged for, once
type refreshGrant struct {
	Subject   string
	Kind      string
	DeviceID  string
	ExpiresAt time.Time
}

type sessionStore struct {
	mu     sync.Mutex
	users  map[string]*user
	grants map[string]refreshGrant
	epoch  int64
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		users:  make(map[string]*user),
		grants: make(map[string]refreshGrant),
	}
}

func (s *sessionStore) addUser(u *user) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.Login]; exists {
		return errLoginTaken
	}
	s.users[u.Login] = u
	return nil
}

func (s *sessionStore) userByLogin(login string) (*user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[login]
	return u, ok
}

func (s *sessionStore) putGrant(token string, grant refreshGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[token] = grant
}

// takeGrant removes and returns the grant for token. Refresh tokens rotate,
// so a second exchange of the same token fails.
func (s *sessionStore) takeGrant(token string, now time.Time) (refreshGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[token]
	if !ok {
		return refreshGrant{}, errInvalidGrant
	}
	delete(s.grants, token)

	if now.After(grant.ExpiresAt) {
		return refreshGrant{}, errInvalidGrant
	}
	return grant, nil
}

func (s *sessionStore) currentEpoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *sessionStore) bumpEpoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	return s.epoch
}

// accessClaims are the claims of an HS256 access token
type accessClaims struct {
	Kind     string `json:"kind"`
	DeviceID string `json:"device,omitempty"`
	Epoch    int64  `json:"epoch"`
	jwt.RegisteredClaims
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type tokenIssuer struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	sessions   *sessionStore
}

func (t *tokenIssuer) issue(subject, kind, deviceID string) (tokenPair, error) {
	now := time.Now()
	claims := accessClaims{
		Kind:     kind,
		DeviceID: deviceID,
		Epoch:    t.sessions.currentEpoch(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return tokenPair{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh := uuid.NewString()
	t.sessions.putGrant(refresh, refreshGrant{
		Subject:   subject,
		Kind:      kind,
		DeviceID:  deviceID,
		ExpiresAt: now.Add(t.refreshTTL),
	})

	return tokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// verify parses and validates an access token
func (t *tokenIssuer) verify(tokenString string) (*accessClaims, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.key, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.Epoch != t.sessions.currentEpoch() {
		return nil, fmt.Errorf("token was revoked")
	}
	return claims, nil
}
