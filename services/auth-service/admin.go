package main

import (
	"math"
	"net/http"
	"strconv"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/middleware"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/response"

	"go.uber.org/zap"
)

const (
	defaultUserPage = 20
	maxUserPage     = 100
)

type userPage struct {
	Users []models.User `json:"users"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Total int64         `json:"total"`
	Pages int           `json:"pages"`
}

func (s *server) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := positiveInt(q.Get("page"), 1, math.MaxInt32)
	if err != nil {
		s.fail(w, r, "Invalid query", apperr.InvalidArgument("page must be a positive integer"))
		return
	}
	limit, err := positiveInt(q.Get("limit"), defaultUserPage, maxUserPage)
	if err != nil {
		s.fail(w, r, "Invalid query", apperr.InvalidArgument("limit must be between 1 and %d", maxUserPage))
		return
	}
	role := models.Role(q.Get("role"))
	if role != "" && !role.Valid() {
		s.fail(w, r, "Invalid query", apperr.InvalidArgument("invalid role filter %q", role))
		return
	}

	users, total, err := s.users.List(r.Context(), role, (page-1)*limit, limit)
	if err != nil {
		s.fail(w, r, "Failed to list users", err)
		return
	}
	response.Success(w, http.StatusOK, "Users retrieved", userPage{
		Users: users,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(limit))),
	})
}

// setRole changes another user's role. Admins cannot change their own role,
// so the last admin cannot lock everyone out by accident.
func (s *server) setRole(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Role models.Role `json:"role"`
	}
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}
	if !input.Role.Valid() {
		s.fail(w, r, "Validation failed", apperr.InvalidArgument("role must be user, moderator or admin"))
		return
	}

	id := r.PathValue("id")
	p := middleware.PrincipalFrom(r.Context())
	if id == p.UserID {
		s.fail(w, r, "Cannot change your own role", apperr.InvalidArgument("cannot change your own role"))
		return
	}

	user, err := s.users.SetRole(r.Context(), id, input.Role)
	if err != nil {
		s.fail(w, r, "Failed to update role", err)
		return
	}
	middleware.WithTrace(s.log, r).Info("role changed",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("by", p.UserID),
	)
	response.Success(w, http.StatusOK, "User role updated", user)
}

// positiveInt parses v within [1, max]; empty means def.
func positiveInt(v string, def, max int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		return 0, apperr.ErrInvalidArgument
	}
	return n, nil
}
