package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cardiolab/afdash/internal/auth"
	"github.com/cardiolab/afdash/internal/storage"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  userProfile `json:"user"`
}

type userProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
}

func profileOf(u *storage.User) userProfile {
	return userProfile{
		ID:       u.ID.String(),
		Username: u.Username,
		Email:    u.Email,
		Age:      u.Age,
		Gender:   u.Gender,
	}
}

func (req registerRequest) validate() string {
	if len(strings.TrimSpace(req.Username)) < 2 {
		return "Username must be at least 2 characters long"
	}
	if !strings.Contains(req.Email, "@") {
		return "Please enter a valid email address"
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return err.Error()
	}
	if req.Age < 1 || req.Age > 120 {
		return "Please enter a valid age"
	}
	if req.Gender == "" {
		return "Please select a gender"
	}
	return ""
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.log.Error("hashing password", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
		return
	}

	id, err := s.users.CreateUser(r.Context(), storage.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Age:          req.Age,
		Gender:       req.Gender,
	})
	if errors.Is(err, storage.ErrDuplicateEmail) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "An account with this email already exists"})
		return
	}
	if err != nil {
		s.log.Error("creating user", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
		return
	}

	user, err := s.users.GetUserByID(r.Context(), id.String())
	if err != nil {
		s.log.Error("loading new user", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
		return
	}

	token, err := s.tokens.Generate(id.String())
	if err != nil {
		s.log.Error("issuing token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: profileOf(user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
		return
	}
	if err != nil {
		s.log.Error("looking up user", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
		return
	}

	token, err := s.tokens.Generate(user.ID.String())
	if err != nil {
		s.log.Error("issuing token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: profileOf(user)})
}

// handleLogout drops the user's in-flight analysis sessions. The token itself
// stays valid until expiry; clients discard it.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.flows.Drop(UserID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleForgotPassword issues a single-use reset token. The token is returned
// in the response; mail delivery is a deployment concern handled outside this
// service. Unknown emails get the same response so accounts cannot be
// enumerated.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	resp := map[string]string{"message": "If that account exists, a reset token has been issued"}

	user, err := s.users.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if err != nil {
		s.log.Error("looking up user", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reset failed"})
		return
	}

	token, err := s.resets.Issue(r.Context(), user.ID.String())
	if err != nil {
		s.log.Error("issuing reset token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reset failed"})
		return
	}

	resp["reset_token"] = token
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	userID, err := s.resets.Consume(r.Context(), req.Token)
	if errors.Is(err, auth.ErrResetTokenInvalid) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid or expired reset token"})
		return
	}
	if err != nil {
		s.log.Error("consuming reset token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reset failed"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.log.Error("hashing password", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reset failed"})
		return
	}
	if err := s.users.UpdatePassword(r.Context(), userID, hash); err != nil {
		s.log.Error("updating password", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reset failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetUserByID(r.Context(), UserID(r.Context()))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return
	}
	if err != nil {
		s.log.Error("loading user", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, profileOf(user))
}
