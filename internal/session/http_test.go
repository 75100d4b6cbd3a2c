package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceLoginAndRefreshWithCookie(t *testing.T) {
	refreshCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "r1", Path: "/"})
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "a1", "token_type": "Bearer", "expires_in": 900})
	})
	mux.HandleFunc("/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		c, err := r.Cookie("refresh_token")
		if err != nil || c.Value != "r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "a2", "token_type": "Bearer", "expires_in": 900})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, nil)
	require.NoError(t, err)
	ctx := context.Background()

	tok, err := src.GetSession(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	assert.ErrorIs(t, src.Login(ctx, "couple", "wrong"), ErrNoSession)
	require.NoError(t, src.Login(ctx, "couple", "secret123"))
	tok, _ = src.GetSession(ctx)
	assert.Equal(t, "a1", tok)

	tok, err = src.RefreshSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", tok)
	assert.Equal(t, 1, refreshCalls)
}

func TestHTTPSourceExpiredToken(t *testing.T) {
	src, err := NewHTTPSource("http://unused.invalid", nil)
	require.NoError(t, err)
	src.store("a1", 5)
	tok, _ := src.GetSession(context.Background())
	assert.Empty(t, tok, "a token inside the safety margin counts as expired")
}

func TestStaticSource(t *testing.T) {
	s := &Static{Token: "t0", Refreshed: []string{"t1"}}
	ctx := context.Background()
	tok, _ := s.RefreshSession(ctx)
	assert.Equal(t, "t1", tok)
	tok, _ = s.RefreshSession(ctx)
	assert.Empty(t, tok)
	assert.Equal(t, 2, s.Refreshes)
}
