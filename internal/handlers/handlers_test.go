package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/api/internal/blocklist"
	"authgate/api/internal/config"
	"authgate/api/internal/models"
	"authgate/api/internal/retry"
	"authgate/api/internal/service"
	"authgate/api/internal/storetest"
	"authgate/api/internal/throttle"
)

type handlerFixture struct {
	engine  *gin.Engine
	auth    *service.AuthService
	roles   *service.RoleService
	history *storetest.HistoryStore
	users   *storetest.UserStore
	redis   *miniredis.Miniredis
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	return newHandlerFixtureWithLimit(t, 50)
}

func newHandlerFixtureWithLimit(t *testing.T, limit int) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTSecret:      "handler-test-secret",
			AccessTTL:      15 * time.Minute,
			RefreshTTL:     24 * time.Hour,
			PasswordMinLen: 8,
		},
		Throttle: config.ThrottleConfig{Limit: limit, Window: time.Minute},
		Retry: config.RetryConfig{
			InitialDelay: time.Millisecond,
			Factor:       2,
			MaxDelay:     5 * time.Millisecond,
			MaxAttempts:  2,
		},
	}

	users := storetest.NewUserStore()
	history := storetest.NewHistoryStore()
	retryCfg := retry.Config(cfg.Retry)

	tokens := service.NewTokenService(users, blocklist.NewLedger(client), cfg.Security, retryCfg, zerolog.Nop())
	auth := service.NewAuthService(users, history, tokens, cfg.Security, retryCfg, zerolog.Nop())
	roles := service.NewRoleService(storetest.NewRoleStore(), users, tokens, zerolog.Nop())
	limiter := throttle.NewLimiter(client, cfg.Throttle.Limit, cfg.Throttle.Window)

	hs := HandlerSet{
		log:     zerolog.Nop(),
		cfg:     cfg,
		auth:    auth,
		roles:   roles,
		tokens:  tokens,
		limiter: limiter,
		cache:   client,
	}

	engine := gin.New()
	hs.Register(engine.Group("/api"))

	return &handlerFixture{
		engine:  engine,
		auth:    auth,
		roles:   roles,
		history: history,
		users:   users,
		redis:   mr,
	}
}

func (fx *handlerFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	fx.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (fx *handlerFixture) signup(t *testing.T, email, password, name string) models.User {
	t.Helper()
	user, err := fx.auth.Signup(context.Background(), service.SignupInput{
		Email:     email,
		Password:  password,
		Password2: password,
		Name:      name,
	})
	require.NoError(t, err)
	return user
}

func (fx *handlerFixture) login(t *testing.T, email, password, device string) (access, refresh string) {
	t.Helper()
	w := fx.do(http.MethodPost, "/api/v1/login",
		`{"email":"`+email+`","password":"`+password+`"}`,
		map[string]string{"User-Agent": device})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	return body["access_token"].(string), body["refresh_token"].(string)
}

func bearer(token, device string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"User-Agent":    device,
	}
}

func TestSignupAndLoginFlow(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodPost, "/api/v1/user_crud",
		`{"email":"a@b.com","password":"longenough","password2":"longenough","name":"alice"}`,
		map[string]string{"User-Agent": "firefox"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody(t, w)
	assert.NotEmpty(t, created["user_id"])
	assert.Equal(t, "a@b.com", created["email"])

	access, refresh := fx.login(t, "a@b.com", "longenough", "firefox")
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)
}

func TestSignupShortPassword(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodPost, "/api/v1/user_crud",
		`{"email":"a@b.com","password":"shrt","password2":"shrt","name":"alice"}`,
		map[string]string{"User-Agent": "firefox"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "bad_request", body["error"])
}

func TestLoginWrongPassword(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.signup(t, "a@b.com", "longenough", "alice")

	w := fx.do(http.MethodPost, "/api/v1/login",
		`{"email":"a@b.com","password":"wrongpassword"}`,
		map[string]string{"User-Agent": "firefox"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "unauthorized", body["error"])
	assert.NotContains(t, body, "access_token")
}

func TestLoginFailsWhenAuditStoreDown(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.signup(t, "a@b.com", "longenough", "alice")

	fx.history.Fail(errors.New("history store down"))

	w := fx.do(http.MethodPost, "/api/v1/login",
		`{"email":"a@b.com","password":"longenough"}`,
		map[string]string{"User-Agent": "firefox"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "internal_server_error", body["error"])
	assert.NotContains(t, body, "access_token")
}

func TestLoginUnparsableBody(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodPost, "/api/v1/login", `{"email": not json`,
		map[string]string{"User-Agent": "firefox"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "unprocessable_entity", body["error"])
}

func TestLogoutGuards(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.signup(t, "a@b.com", "longenough", "alice")
	access, _ := fx.login(t, "a@b.com", "longenough", "firefox")

	// No token at all.
	w := fx.do(http.MethodDelete, "/api/v1/logout", "",
		map[string]string{"User-Agent": "firefox"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Token but no identifying header.
	w = fx.do(http.MethodDelete, "/api/v1/logout", "",
		map[string]string{"Authorization": "Bearer " + access})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Both present: revokes the session.
	w = fx.do(http.MethodDelete, "/api/v1/logout", "", bearer(access, "firefox"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = fx.do(http.MethodGet, "/api/v1/check_user", "", bearer(access, "firefox"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "token revoked", body["message"])
}

func TestLogoutAllRevokesOtherDevices(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.signup(t, "a@b.com", "longenough", "alice")
	laptopAccess, _ := fx.login(t, "a@b.com", "longenough", "laptop")
	phoneAccess, _ := fx.login(t, "a@b.com", "longenough", "phone")

	w := fx.do(http.MethodDelete, "/api/v1/logout_all", "", bearer(laptopAccess, "laptop"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, token := range []string{laptopAccess, phoneAccess} {
		w = fx.do(http.MethodGet, "/api/v1/check_user", "", bearer(token, "any"))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

func TestRefreshRequiresRefreshToken(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.signup(t, "a@b.com", "longenough", "alice")
	access, refresh := fx.login(t, "a@b.com", "longenough", "firefox")

	// An access token is the wrong kind for this route.
	w := fx.do(http.MethodPost, "/api/v1/refresh", "", bearer(access, "firefox"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "wrong token type", body["message"])

	w = fx.do(http.MethodPost, "/api/v1/refresh", "", bearer(refresh, "firefox"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	refreshed := decodeBody(t, w)
	assert.Equal(t, refresh, refreshed["refresh_token"])
	assert.NotEqual(t, access, refreshed["access_token"])
	assert.NotEmpty(t, refreshed["access_token"])
}

func TestHistoryAuthDefaultPageSize(t *testing.T) {
	fx := newHandlerFixture(t)
	user := fx.signup(t, "a@b.com", "longenough", "alice")
	access, _ := fx.login(t, "a@b.com", "longenough", "firefox")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 6; i++ {
		fx.history.Append(models.AuthHistoryRecord{
			ID:         string(rune('a' + i)),
			UserID:     user.ID,
			DeviceID:   "old-device",
			Outcome:    models.AuthOutcomeSuccess,
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	w := fx.do(http.MethodGet, "/api/v1/history_auth", "", bearer(access, "firefox"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	entries := body["history_auth"].([]any)
	assert.Len(t, entries, service.DefaultHistoryPageSize)

	// The login above is the newest event.
	first := entries[0].(map[string]any)
	assert.Equal(t, "firefox", first["device_id"])

	w = fx.do(http.MethodGet, "/api/v1/history_auth?page=1", "", bearer(access, "firefox"))
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Len(t, body["history_auth"].([]any), 2)

	w = fx.do(http.MethodGet, "/api/v1/history_auth?page=9", "", bearer(access, "firefox"))
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Empty(t, body["history_auth"])
}

func TestGetUserByID(t *testing.T) {
	fx := newHandlerFixture(t)
	user := fx.signup(t, "a@b.com", "longenough", "alice")

	w := fx.do(http.MethodGet, "/api/v1/get_user_by_id?id="+user.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, user.ID, body["user_id"])
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "a@b.com", body["email"])

	w = fx.do(http.MethodGet, "/api/v1/get_user_by_id?id=nosuchuser", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = fx.do(http.MethodGet, "/api/v1/get_user_by_id", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriberGate(t *testing.T) {
	fx := newHandlerFixture(t)
	ctx := context.Background()
	user := fx.signup(t, "a@b.com", "longenough", "alice")
	access, _ := fx.login(t, "a@b.com", "longenough", "firefox")

	w := fx.do(http.MethodGet, "/api/v1/check_user_is_subscriber", "", bearer(access, "firefox"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, err := fx.roles.CreateRole(ctx, models.RoleSubscriber)
	require.NoError(t, err)
	require.NoError(t, fx.roles.AssignRole(ctx, user.ID, models.RoleSubscriber))

	// The role change revoked the live session; the old token is dead.
	w = fx.do(http.MethodGet, "/api/v1/check_user_is_subscriber", "", bearer(access, "firefox"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	access, _ = fx.login(t, "a@b.com", "longenough", "firefox")
	w = fx.do(http.MethodGet, "/api/v1/check_user_is_subscriber", "", bearer(access, "firefox"))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRoleCrudRequiresAdmin(t *testing.T) {
	fx := newHandlerFixture(t)
	ctx := context.Background()

	fx.signup(t, "user@b.com", "longenough", "bob")
	userAccess, _ := fx.login(t, "user@b.com", "longenough", "firefox")

	w := fx.do(http.MethodPost, "/api/v1/role_crud", `{"name":"premium"}`, bearer(userAccess, "firefox"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := fx.signup(t, "admin@b.com", "longenough", "root")
	_, err := fx.roles.CreateRole(ctx, models.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, fx.roles.AssignRole(ctx, admin.ID, models.RoleAdmin))
	adminAccess, _ := fx.login(t, "admin@b.com", "longenough", "firefox")

	w = fx.do(http.MethodPost, "/api/v1/role_crud", `{"name":"premium"}`, bearer(adminAccess, "firefox"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = fx.do(http.MethodGet, "/api/v1/role_crud", "", bearer(adminAccess, "firefox"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["roles"], "premium")

	w = fx.do(http.MethodPut, "/api/v1/role_crud",
		`{"name":"premium","new_name":"gold"}`, bearer(adminAccess, "firefox"))
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = fx.do(http.MethodDelete, "/api/v1/role_crud", `{"name":"gold"}`, bearer(adminAccess, "firefox"))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestUserRoleEndpoints(t *testing.T) {
	fx := newHandlerFixture(t)
	ctx := context.Background()

	admin := fx.signup(t, "admin@b.com", "longenough", "root")
	_, err := fx.roles.CreateRole(ctx, models.RoleAdmin)
	require.NoError(t, err)
	_, err = fx.roles.CreateRole(ctx, models.RoleSubscriber)
	require.NoError(t, err)
	require.NoError(t, fx.roles.AssignRole(ctx, admin.ID, models.RoleAdmin))
	adminAccess, _ := fx.login(t, "admin@b.com", "longenough", "firefox")

	target := fx.signup(t, "user@b.com", "longenough", "bob")

	w := fx.do(http.MethodPost, "/api/v1/user/roles",
		`{"user_id":"`+target.ID+`","role":"subscriber"}`, bearer(adminAccess, "firefox"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = fx.do(http.MethodGet, "/api/v1/user/roles/"+target.ID, "", bearer(adminAccess, "firefox"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["roles"], "subscriber")

	w = fx.do(http.MethodDelete, "/api/v1/user/roles",
		`{"user_id":"`+target.ID+`","role":"subscriber"}`, bearer(adminAccess, "firefox"))
	require.Equal(t, http.StatusOK, w.Code)

	w = fx.do(http.MethodGet, "/api/v1/user/roles/"+target.ID, "", bearer(adminAccess, "firefox"))
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Empty(t, body["roles"])
}

func TestLoginThrottled(t *testing.T) {
	fx := newHandlerFixtureWithLimit(t, 3)
	fx.signup(t, "a@b.com", "longenough", "alice")

	headers := map[string]string{"User-Agent": "firefox"}
	body := `{"email":"a@b.com","password":"wrongpassword"}`

	for i := 0; i < 3; i++ {
		w := fx.do(http.MethodPost, "/api/v1/login", body, headers)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := fx.do(http.MethodPost, "/api/v1/login", body, headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Another device keeps its own budget.
	w = fx.do(http.MethodPost, "/api/v1/login", body, map[string]string{"User-Agent": "phone"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A fresh window restores the original device.
	fx.redis.FastForward(2 * time.Minute)
	w = fx.do(http.MethodPost, "/api/v1/login", body, headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateUserThroughHandler(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.signup(t, "a@b.com", "longenough", "alice")
	access, _ := fx.login(t, "a@b.com", "longenough", "firefox")

	w := fx.do(http.MethodPut, "/api/v1/user_crud",
		`{"name":"alice2"}`, bearer(access, "firefox"))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "alice2", body["name"])
	assert.Equal(t, "a@b.com", body["email"])

	// Update without a token is rejected by the guard.
	w = fx.do(http.MethodPut, "/api/v1/user_crud",
		`{"name":"eve"}`, map[string]string{"User-Agent": "firefox"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateUserDuplicateEmailRejected(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.signup(t, "a@b.com", "longenough", "alice")
	fx.signup(t, "b@b.com", "longenough", "bob")
	access, _ := fx.login(t, "b@b.com", "longenough", "firefox")

	w := fx.do(http.MethodPut, "/api/v1/user_crud",
		`{"email":"a@b.com"}`, bearer(access, "firefox"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "bad_request", body["error"])
}

func TestHealthEndpoint(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodGet, "/api/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["cache"])
}
