package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wedsite/internal/api/middleware"
	"wedsite/internal/auth"
	"wedsite/internal/database"
)

type memKV struct {
	mu   sync.Mutex
	vals map[string]string
	ttls map[string]time.Duration
}

func newMemKV() *memKV {
	return &memKV{vals: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	if v, ok := m.vals[key]; ok {
		_ = json.Unmarshal([]byte(v), &n)
	}
	n++
	raw, _ := json.Marshal(n)
	m.vals[key] = string(raw)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func (m *memKV) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttls[key] = ttl
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func (m *memKV) TTL(ctx context.Context, key string) *redis.DurationCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := redis.NewDurationCmd(ctx, time.Second)
	if _, ok := m.vals[key]; !ok {
		cmd.SetVal(-2)
		return cmd
	}
	cmd.SetVal(m.ttls[key])
	return cmd
}

func (m *memKV) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	v, ok := m.vals[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (m *memKV) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case string:
		m.vals[key] = v
	default:
		raw, _ := json.Marshal(v)
		m.vals[key] = string(raw)
	}
	m.ttls[key] = ttl
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (m *memKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.vals[k]; ok {
			n++
		}
		delete(m.vals, k)
		delete(m.ttls, k)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func (m *memKV) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.vals[key]
	return ok
}

type authFixture struct {
	db     *gorm.DB
	kv     *memKV
	svc    *auth.AuthService
	router *gin.Engine
}

func newAuthFixture(t *testing.T, lockThreshold int) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &authFixture{db: newTestDB(t), kv: newMemKV(), svc: newTestAuthService(t)}
	h := NewAuthHandler(f.db, f.svc, f.kv, nil, 100, lockThreshold, time.Minute, "")

	f.router = gin.New()
	g := f.router.Group("/v1/auth")
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout)
	g.POST("/change-password", middleware.AuthMiddleware(f.svc), h.ChangePassword)
	return f
}

func (f *authFixture) createUser(t *testing.T, username, password string, mustChange bool) database.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u := database.User{Username: username, PasswordHash: hash, MustChangePassword: mustChange}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

func (f *authFixture) post(path string, body any, header http.Header, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == refreshTokenCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", refreshTokenCookieName)
	return nil
}

func TestLoginIssuesTokensAndRefreshCookie(t *testing.T) {
	f := newAuthFixture(t, 5)
	f.createUser(t, "ana-e-joao", "casamento2026", true)

	w := f.post("/v1/auth/login", gin.H{"username": " Ana-E-Joao ", "password": "casamento2026"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.True(t, resp.MustChangePassword)

	cookie := refreshCookie(t, w)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	f := newAuthFixture(t, 2)
	f.createUser(t, "bia", "casamento2026", false)

	for i := 0; i < 2; i++ {
		w := f.post("/v1/auth/login", gin.H{"username": "bia", "password": "nope"}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	assert.True(t, f.kv.has("lock:login:bia"))

	w := f.post("/v1/auth/login", gin.H{"username": "bia", "password": "casamento2026"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "locked")
}

func TestRefreshRotatesAndRevokesOldToken(t *testing.T) {
	f := newAuthFixture(t, 5)
	f.createUser(t, "caio", "casamento2026", false)

	login := f.post("/v1/auth/login", gin.H{"username": "caio", "password": "casamento2026"}, nil)
	require.Equal(t, http.StatusOK, login.Code)
	first := refreshCookie(t, login)

	w := f.post("/v1/auth/refresh", nil, nil, first)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	second := refreshCookie(t, w)
	assert.NotEqual(t, first.Value, second.Value)

	replay := f.post("/v1/auth/refresh", nil, nil, first)
	assert.Equal(t, http.StatusUnauthorized, replay.Code)

	assert.Equal(t, http.StatusUnauthorized, f.post("/v1/auth/refresh", nil, nil).Code)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	f := newAuthFixture(t, 5)
	f.createUser(t, "duda", "casamento2026", false)

	login := f.post("/v1/auth/login", gin.H{"username": "duda", "password": "casamento2026"}, nil)
	cookie := refreshCookie(t, login)

	assert.Equal(t, http.StatusOK, f.post("/v1/auth/logout", nil, nil, cookie).Code)
	assert.Equal(t, http.StatusUnauthorized, f.post("/v1/auth/refresh", nil, nil, cookie).Code)
}

func TestChangePasswordEnforcesPolicyAndClearsFlag(t *testing.T) {
	f := newAuthFixture(t, 5)
	user := f.createUser(t, "eva", "provisoria99", true)

	pair, err := f.svc.GenerateTokenPair(user.ID, true)
	require.NoError(t, err)
	bearer := http.Header{"Authorization": []string{"Bearer " + pair.AccessToken}}

	weak := f.post("/v1/auth/change-password", gin.H{
		"current_password": "provisoria99",
		"new_password":     "somenteletras",
		"confirm_password": "somenteletras",
	}, bearer)
	assert.Equal(t, http.StatusBadRequest, weak.Code)
	assert.Contains(t, weak.Body.String(), "weak password")

	mismatch := f.post("/v1/auth/change-password", gin.H{
		"current_password": "provisoria99",
		"new_password":     "quinta2026",
		"confirm_password": "quinta2027",
	}, bearer)
	assert.Equal(t, http.StatusBadRequest, mismatch.Code)

	ok := f.post("/v1/auth/change-password", gin.H{
		"current_password": "provisoria99",
		"new_password":     "quinta2026",
		"confirm_password": "quinta2026",
	}, bearer)
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())

	var got database.User
	require.NoError(t, f.db.First(&got, user.ID).Error)
	assert.False(t, got.MustChangePassword)
	assert.True(t, auth.CheckPasswordHash("quinta2026", got.PasswordHash))
}
