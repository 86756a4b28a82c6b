package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/middleware"
	"ai-mistake-tracker/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memUsers struct {
	mu     sync.Mutex
	byID   map[string]models.User
	order  []string
	nextID int
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]models.User{}}
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.byID {
		if other.Email == u.Email {
			return apperr.InvalidArgument("email already registered")
		}
	}
	m.nextID++
	u.ID = fmt.Sprintf("user-%d", m.nextID)
	m.byID[u.ID] = *u
	m.order = append(m.order, u.ID)
	return nil
}

func (m *memUsers) ByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (m *memUsers) ByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &u, nil
}

func (m *memUsers) Save(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[u.ID] = *u
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return apperr.NotFound("user not found")
	}
	delete(m.byID, id)
	return nil
}

func (m *memUsers) List(_ context.Context, role models.Role, offset, limit int) ([]models.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.User
	for i := len(m.order) - 1; i >= 0; i-- {
		u, ok := m.byID[m.order[i]]
		if ok && (role == "" || u.Role == role) {
			matched = append(matched, u)
		}
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return []models.User{}, total, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (m *memUsers) SetRole(_ context.Context, id string, role models.Role) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	u.Role = role
	m.byID[id] = u
	return &u, nil
}

func (m *memUsers) Ping(context.Context) error { return nil }

type captured struct {
	events []models.Event
}

func (c *captured) Emit(_ context.Context, e models.Event) { c.events = append(c.events, e) }

type authHarness struct {
	handler http.Handler
	users   *memUsers
	events  *captured
}

func newAuthHarness() *authHarness {
	users := newMemUsers()
	events := &captured{}
	srv := newServer(users, middleware.NewAuthenticator("test-secret"), events, zap.NewNop())
	srv.adminEmail = "root@example.org"
	return &authHarness{handler: srv.routes(), users: users, events: events}
}

type apiResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func (h *authHarness) call(t *testing.T, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func (h *authHarness) register(t *testing.T, email, password string) session {
	t.Helper()
	return h.registerNamed(t, "Ada Lovelace", email, password)
}

func (h *authHarness) registerNamed(t *testing.T, name, email, password string) session {
	t.Helper()
	code, resp := h.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var s session
	require.NoError(t, json.Unmarshal(resp.Data, &s))
	return s
}

func TestRegisterAndLogin(t *testing.T) {
	h := newAuthHarness()
	s := h.register(t, "Ada@Example.org", "Engine1")
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, "ada@example.org", s.User.Email)
	assert.Equal(t, models.RoleUser, s.User.Role)
	assert.Equal(t, "auto", s.User.Preferences.Theme)

	code, _ := h.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ada Again", "email": "ada@example.org", "password": "Engine1",
	})
	assert.Equal(t, http.StatusBadRequest, code, "duplicate email")

	code, _ = h.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.org", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = h.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nobody@example.org", "password": "Engine1"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp := h.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ADA@example.org", "password": "Engine1"})
	require.Equal(t, http.StatusOK, code)
	var again session
	require.NoError(t, json.Unmarshal(resp.Data, &again))
	assert.Equal(t, s.User.ID, again.User.ID)
	assert.NotNil(t, again.User.LastLogin)

	code, resp = h.call(t, http.MethodGet, "/api/auth/me", again.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(resp.Data), "password")
}

func TestRegisterValidation(t *testing.T) {
	h := newAuthHarness()
	cases := map[string]map[string]string{
		"short name":     {"name": "A", "email": "a@example.org", "password": "Engine1"},
		"bad email":      {"name": "Ada", "email": "ada.example.org", "password": "Engine1"},
		"weak password":  {"name": "Ada", "email": "a@example.org", "password": "engine1"},
		"short password": {"name": "Ada", "email": "a@example.org", "password": "En1"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			code, _ := h.call(t, http.MethodPost, "/api/auth/register", "", body)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}
	assert.Empty(t, h.users.byID)
}

func TestUpdateProfile(t *testing.T) {
	h := newAuthHarness()
	s := h.register(t, "ada@example.org", "Engine1")

	code, resp := h.call(t, http.MethodPut, "/api/auth/profile", s.Token, map[string]any{
		"name":        "Countess Ada",
		"preferences": map[string]string{"theme": "dark", "preferredAI": "Claude-3"},
	})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var u models.User
	require.NoError(t, json.Unmarshal(resp.Data, &u))
	assert.Equal(t, "Countess Ada", u.Name)
	assert.Equal(t, "dark", u.Preferences.Theme)
	assert.Equal(t, "Claude-3", u.Preferences.PreferredAI)

	code, _ = h.call(t, http.MethodPut, "/api/auth/profile", s.Token, map[string]any{
		"preferences": map[string]string{"theme": "sepia"},
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.call(t, http.MethodPut, "/api/auth/profile", "", map[string]any{"name": "Nobody"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestChangePassword(t *testing.T) {
	h := newAuthHarness()
	s := h.register(t, "ada@example.org", "Engine1")

	code, _ := h.call(t, http.MethodPut, "/api/auth/password", s.Token, map[string]string{
		"currentPassword": "Wrong1", "newPassword": "Analytical2",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.call(t, http.MethodPut, "/api/auth/password", s.Token, map[string]string{
		"currentPassword": "Engine1", "newPassword": "Analytical2",
	})
	require.Equal(t, http.StatusOK, code)

	code, _ = h.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.org", "password": "Engine1"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = h.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.org", "password": "Analytical2"})
	assert.Equal(t, http.StatusOK, code)
}

func TestDeleteAccountPublishesEvent(t *testing.T) {
	h := newAuthHarness()
	s := h.register(t, "ada@example.org", "Engine1")

	code, _ := h.call(t, http.MethodDelete, "/api/auth/account", s.Token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, h.events.events, 1)
	assert.Equal(t, models.EventUserDeleted, h.events.events[0].Type)
	assert.Equal(t, s.User.ID, h.events.events[0].ActorID)

	code, _ = h.call(t, http.MethodGet, "/api/auth/me", s.Token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = h.call(t, http.MethodDelete, "/api/auth/account", s.Token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Len(t, h.events.events, 1)
}

func TestAdminListsUsers(t *testing.T) {
	h := newAuthHarness()
	root := h.registerNamed(t, "Root", "Root@example.org", "Engine1")
	require.Equal(t, models.RoleAdmin, root.User.Role, "configured admin email")
	ada := h.register(t, "ada@example.org", "Engine1")
	assert.Equal(t, models.RoleUser, ada.User.Role)

	code, _ := h.call(t, http.MethodGet, "/api/users", ada.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = h.call(t, http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp := h.call(t, http.MethodGet, "/api/users", root.Token, nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var page userPage
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
	require.Len(t, page.Users, 2)
	assert.Equal(t, ada.User.ID, page.Users[0].ID, "newest first")

	code, resp = h.call(t, http.MethodGet, "/api/users?role=admin&limit=1", root.Token, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Users, 1)
	assert.Equal(t, root.User.ID, page.Users[0].ID)

	for _, q := range []string{"?role=owner", "?limit=0", "?limit=101", "?page=zero"} {
		code, _ = h.call(t, http.MethodGet, "/api/users"+q, root.Token, nil)
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
}

func TestAdminChangesRoles(t *testing.T) {
	h := newAuthHarness()
	root := h.registerNamed(t, "Root", "root@example.org", "Engine1")
	ada := h.register(t, "ada@example.org", "Engine1")

	path := "/api/users/" + ada.User.ID + "/role"
	code, _ := h.call(t, http.MethodPut, path, ada.Token, map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, code, "users cannot promote themselves")

	code, resp := h.call(t, http.MethodPut, path, root.Token, map[string]string{"role": "superuser"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Error, "role must be")

	code, resp = h.call(t, http.MethodPut, "/api/users/"+root.User.ID+"/role", root.Token, map[string]string{"role": "user"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Error, "own role")
	assert.Equal(t, models.RoleAdmin, h.users.byID[root.User.ID].Role)

	code, _ = h.call(t, http.MethodPut, "/api/users/user-99/role", root.Token, map[string]string{"role": "moderator"})
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = h.call(t, http.MethodPut, path, root.Token, map[string]string{"role": "moderator"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var u models.User
	require.NoError(t, json.Unmarshal(resp.Data, &u))
	assert.Equal(t, models.RoleModerator, u.Role)

	code, resp = h.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.org", "password": "Engine1"})
	require.Equal(t, http.StatusOK, code)
	var s session
	require.NoError(t, json.Unmarshal(resp.Data, &s))
	claims, err := middleware.NewAuthenticator("test-secret").ParseToken(s.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, claims.Role, "new tokens carry the granted role")
}
