package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/middleware"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/response"
	"ai-mistake-tracker/services/auth-service/utils"

	"go.uber.org/zap"
)

type eventEmitter interface {
	Emit(ctx context.Context, e models.Event)
}

type server struct {
	users  userRepository
	auth   *middleware.Authenticator
	events eventEmitter
	log    *zap.Logger
	now    func() time.Time

	// adminEmail registers as admin instead of user. It seeds the first
	// administrator, who can then grant roles to others.
	adminEmail string
}

func newServer(users userRepository, auth *middleware.Authenticator, events eventEmitter, log *zap.Logger) *server {
	return &server{
		users:  users,
		auth:   auth,
		events: events,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/me", s.auth.Auth(s.me))
	mux.HandleFunc("PUT /api/auth/profile", s.auth.Auth(s.updateProfile))
	mux.HandleFunc("PUT /api/auth/password", s.auth.Auth(s.changePassword))
	mux.HandleFunc("DELETE /api/auth/account", s.auth.Auth(s.deleteAccount))

	mux.HandleFunc("GET /api/users", s.auth.Auth(middleware.RequireAdmin(s.listUsers)))
	mux.HandleFunc("PUT /api/users/{id}/role", s.auth.Auth(middleware.RequireAdmin(s.setRole)))

	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", middleware.MetricsHandler())
	return middleware.Chain(mux, s.log)
}

type session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (s *server) issue(w http.ResponseWriter, r *http.Request, status int, message string, u *models.User) {
	token, err := s.auth.IssueToken(u.Principal(), s.now())
	if err != nil {
		middleware.WithTrace(s.log, r).Error("token signing failed", zap.String("user_id", u.ID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "Failed to generate token", "")
		return
	}
	response.Success(w, status, message, session{Token: token, User: u})
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}
	input.Email = utils.NormalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)

	for _, err := range []error{
		utils.ValidateName(input.Name),
		utils.ValidateEmail(input.Email),
		utils.ValidatePassword(input.Password),
	} {
		if err != nil {
			s.fail(w, r, "Validation failed", err)
			return
		}
	}

	ctx := r.Context()
	if _, err := s.users.ByEmail(ctx, input.Email); err == nil {
		s.fail(w, r, "Email already registered", apperr.InvalidArgument("email already registered"))
		return
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		s.fail(w, r, "Failed to process registration", err)
		return
	}

	role := models.RoleUser
	if s.adminEmail != "" && input.Email == s.adminEmail {
		role = models.RoleAdmin
	}

	now := s.now()
	user := &models.User{
		Email:       input.Email,
		Password:    hashed,
		Name:        input.Name,
		Role:        role,
		Preferences: models.Preferences{Theme: "auto"},
		LastLogin:   &now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		s.fail(w, r, "Failed to save user", err)
		return
	}

	middleware.WithTrace(s.log, r).Info("user registered", zap.String("user_id", user.ID))
	s.issue(w, r, http.StatusCreated, "User registered successfully", user)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}
	if input.Email == "" || input.Password == "" {
		response.Error(w, http.StatusBadRequest, "Email and Password are required", "")
		return
	}

	ctx := r.Context()
	user, err := s.users.ByEmail(ctx, utils.NormalizeEmail(input.Email))
	if err != nil || !utils.CheckPasswordHash(input.Password, user.Password) {
		middleware.WithTrace(s.log, r).Warn("failed login attempt")
		response.Error(w, http.StatusUnauthorized, "Invalid email or password", "")
		return
	}

	now := s.now()
	user.LastLogin = &now
	if err := s.users.Save(ctx, user); err != nil {
		middleware.WithTrace(s.log, r).Warn("failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	middleware.WithTrace(s.log, r).Info("user logged in", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	s.issue(w, r, http.StatusOK, "Login successful", user)
}

func (s *server) current(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	p := middleware.PrincipalFrom(r.Context())
	user, err := s.users.ByID(r.Context(), p.UserID)
	if err != nil {
		s.fail(w, r, "User not found", err)
		return nil, false
	}
	return user, true
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	user, ok := s.current(w, r)
	if !ok {
		return
	}
	response.Success(w, http.StatusOK, "User profile fetched", user)
}

func (s *server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        *string `json:"name"`
		Preferences *struct {
			Theme       *string `json:"theme"`
			PreferredAI *string `json:"preferredAI"`
		} `json:"preferences"`
	}
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}

	user, ok := s.current(w, r)
	if !ok {
		return
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if err := utils.ValidateName(name); err != nil {
			s.fail(w, r, "Validation failed", err)
			return
		}
		user.Name = name
	}
	if prefs := input.Preferences; prefs != nil {
		if prefs.Theme != nil {
			if !utils.ValidTheme(*prefs.Theme) {
				s.fail(w, r, "Validation failed", apperr.InvalidArgument("theme must be light, dark or auto"))
				return
			}
			user.Preferences.Theme = *prefs.Theme
		}
		if prefs.PreferredAI != nil {
			if *prefs.PreferredAI != "" && !models.ValidAITool(*prefs.PreferredAI) {
				s.fail(w, r, "Validation failed", apperr.InvalidArgument("unknown AI tool %q", *prefs.PreferredAI))
				return
			}
			user.Preferences.PreferredAI = *prefs.PreferredAI
		}
	}

	if err := s.users.Save(r.Context(), user); err != nil {
		s.fail(w, r, "Failed to update profile", err)
		return
	}
	response.Success(w, http.StatusOK, "Profile updated successfully", user)
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	var input struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}
	if err := utils.ValidatePassword(input.NewPassword); err != nil {
		s.fail(w, r, "Validation failed", err)
		return
	}

	user, ok := s.current(w, r)
	if !ok {
		return
	}
	if !utils.CheckPasswordHash(input.CurrentPassword, user.Password) {
		response.Error(w, http.StatusBadRequest, "Current password is incorrect", "")
		return
	}

	hashed, err := utils.HashPassword(input.NewPassword)
	if err != nil {
		s.fail(w, r, "Failed to change password", err)
		return
	}
	user.Password = hashed
	if err := s.users.Save(r.Context(), user); err != nil {
		s.fail(w, r, "Failed to change password", err)
		return
	}
	middleware.WithTrace(s.log, r).Info("password changed", zap.String("user_id", user.ID))
	response.Success(w, http.StatusOK, "Password changed successfully", nil)
}

// deleteAccount removes the user and announces it so reports filed by them
// are anonymized downstream.
func (s *server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	if err := s.users.Delete(r.Context(), p.UserID); err != nil {
		s.fail(w, r, "Failed to delete account", err)
		return
	}
	if s.events != nil {
		s.events.Emit(r.Context(), models.NewUserDeletedEvent(p.UserID, s.now()))
	}
	middleware.WithTrace(s.log, r).Info("account deleted", zap.String("user_id", p.UserID))
	response.Success(w, http.StatusOK, "Account deleted successfully", nil)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := map[string]string{"status": "UP", "service": "auth-service", "database": "connected"}
	if err := s.users.Ping(ctx); err != nil {
		health["status"] = "DOWN"
		health["database"] = "disconnected"
		response.JSON(w, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, http.StatusOK, health)
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	if response.StatusOf(err) == http.StatusInternalServerError {
		middleware.WithTrace(s.log, r).Error(message, zap.String("path", r.URL.Path), zap.Error(err))
	}
	response.FromError(w, message, err)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return apperr.InvalidArgument("invalid request payload: %v", err)
	}
	return nil
}
