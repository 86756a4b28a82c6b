package middleware

import (
	"net/http"

	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/response"
)

// RequireRole ensures the authenticated user has one of the allowed roles.
// It must run after Auth.
func RequireRole(allowedRoles ...models.Role) func(http.HandlerFunc) http.HandlerFunc {
	allowed := make(map[models.Role]bool, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = true
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(UserContextKey).(*UserClaims)
			if !ok {
				response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}

			if !allowed[claims.Role] {
				response.Error(w, http.StatusForbidden, "Forbidden", "Insufficient role")
				return
			}

			next(w, r)
		}
	}
}

// RequireStaff admits moderators and admins.
func RequireStaff(next http.HandlerFunc) http.HandlerFunc {
	return RequireRole(models.RoleModerator, models.RoleAdmin)(next)
}

func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return RequireRole(models.RoleAdmin)(next)
}
