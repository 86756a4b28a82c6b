package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/response"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 24 * time.Hour

type UserClaims struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email"`
	Name   string      `json:"name"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c *UserClaims) Principal() models.Principal {
	return models.Principal{UserID: c.UserID, Name: c.Name, Email: c.Email, Role: c.Role}
}

// Authenticator signs and verifies HS256 user tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) IssueToken(p models.Principal, now time.Time) (string, error) {
	claims := UserClaims{
		UserID: p.UserID,
		Email:  p.Email,
		Name:   p.Name,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Authenticator) ParseToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token claims")
	}
	if !claims.Role.Valid() {
		claims.Role = models.RoleUser
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || tokenString == authHeader {
		return "", false
	}
	return tokenString, true
}

// Auth rejects requests without a valid bearer token.
func (a *Authenticator) Auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			response.Error(w, http.StatusUnauthorized, "Missing Authorization header", "")
			return
		}
		tokenString, ok := bearerToken(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "Invalid token format", "Format must be Bearer <token>")
			return
		}
		claims, err := a.ParseToken(tokenString)
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "Invalid or expired token", err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), UserContextKey, claims)))
	}
}

// OptionalAuth attaches the caller's claims when a valid token is present
// and otherwise lets the request through anonymously.
func (a *Authenticator) OptionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if tokenString, ok := bearerToken(r); ok {
			if claims, err := a.ParseToken(tokenString); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), UserContextKey, claims))
			}
		}
		next(w, r)
	}
}

// PrincipalFrom returns the caller identity, or the zero Principal for
// anonymous requests.
func PrincipalFrom(ctx context.Context) models.Principal {
	if claims, ok := ctx.Value(UserContextKey).(*UserClaims); ok {
		return claims.Principal()
	}
	return models.Principal{}
}
