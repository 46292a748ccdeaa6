package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxRequestBody    = 1 << 20
	minPasswordLength = 6
)

type claimsKey struct{}

// errorResponse is the body of every non-2xx answer
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type guestRequest struct {
	DeviceID string `json:"deviceId"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

type authData struct {
	tokenPair
	Kind string    `json:"kind"`
	User *userView `json:"user,omitempty"`
}

type userView struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	var req guestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.DeviceID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "deviceId is required")
		return
	}

	pair, err := s.tokens.issue("guest:"+uuid.NewString(), kindGuest, req.DeviceID)
	if err != nil {
		s.writeServerError(w, err)
		return
	}

	s.logger.WithField("device_id", req.DeviceID).Info("Guest session issued")
	s.writeData(w, http.StatusOK, authData{tokenPair: pair, Kind: kindGuest})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var profile map[string]interface{}
	if !s.decode(w, r, &profile) {
		return
	}

	login := stringField(profile, "login")
	if login == "" {
		login = stringField(profile, "email")
	}
	password := stringField(profile, "password")
	deviceID := stringField(profile, "deviceId")

	if login == "" || password == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "login (or email) and password are required")
		return
	}
	if len(password) < minPasswordLength {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "password is too short")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		s.writeServerError(w, err)
		return
	}

	delete(profile, "password")
	delete(profile, "deviceId")
	u := &user{
		ID:           uuid.NewString(),
		Login:        strings.ToLower(login),
		PasswordHash: hash,
		Profile:      profile,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.sessions.addUser(u); err != nil {
		s.writeError(w, http.StatusConflict, "login_taken", err.Error())
		return
	}

	pair, err := s.tokens.issue(u.ID, kindUser, deviceID)
	if err != nil {
		s.writeServerError(w, err)
		return
	}

	s.logger.WithFields(logrus.Fields{"user_id": u.ID, "device_id": deviceID}).Info("User signed up")
	s.writeData(w, http.StatusCreated, authData{tokenPair: pair, Kind: kindUser, User: &userView{ID: u.ID, Login: u.Login}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Login == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "login and password are required")
		return
	}

	u, ok := s.sessions.userByLogin(strings.ToLower(req.Login))
	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		s.logger.WithField("device_id", req.DeviceID).Warn("Login rejected")
		s.writeError(w, http.StatusUnauthorized, "invalid_credentials", errInvalidCredentials.Error())
		return
	}

	pair, err := s.tokens.issue(u.ID, kindUser, req.DeviceID)
	if err != nil {
		s.writeServerError(w, err)
		return
	}

	s.logger.WithFields(logrus.Fields{"user_id": u.ID, "device_id": req.DeviceID}).Info("User logged in")
	s.writeData(w, http.StatusOK, authData{tokenPair: pair, Kind: kindUser, User: &userView{ID: u.ID, Login: u.Login}})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	grant, err := s.sessions.takeGrant(req.RefreshToken, time.Now())
	if err == nil && grant.DeviceID != "" && req.DeviceID != grant.DeviceID {
		err = errInvalidGrant
	}
	if err != nil {
		s.logger.WithField("device_id", req.DeviceID).Warn("Refresh rejected")
		s.writeError(w, http.StatusUnauthorized, "invalid_grant", err.Error())
		return
	}

	pair, err := s.tokens.issue(grant.Subject, grant.Kind, grant.DeviceID)
	if err != nil {
		s.writeServerError(w, err)
		return
	}

	s.logger.WithFields(logrus.Fields{"subject": grant.Subject, "kind": grant.Kind}).Debug("Token pair rotated")
	s.writeData(w, http.StatusOK, authData{tokenPair: pair, Kind: grant.Kind})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	s.writeData(w, http.StatusOK, map[string]string{
		"subject":  claims.Subject,
		"kind":     claims.Kind,
		"deviceId": claims.DeviceID,
	})
}

func claimsFromContext(ctx context.Context) *accessClaims {
	claims, _ := ctx.Value(claimsKey{}).(*accessClaims)
	if claims == nil {
		return &accessClaims{}
	}
	return claims
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return strings.TrimSpace(v)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid_json", "request body must be a JSON object")
		return false
	}
	return true
}

func (s *Server) writeData(w http.ResponseWriter, status int, data interface{}) {
	s.writeJSON(w, status, map[string]interface{}{"data": data})
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func (s *Server) writeServerError(w http.ResponseWriter, err error) {
	s.logger.WithError(err).Error("Request failed")
	s.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
