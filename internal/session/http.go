package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

// tokenResponse mirrors the API's login/refresh reply.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// HTTPSource logs in against the API and refreshes through the refresh
// cookie the API sets, kept in a cookie jar.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewHTTPSource creates a source for the API at baseURL.
func NewHTTPSource(baseURL string, logger *slog.Logger) (*HTTPSource, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Jar: jar, Timeout: 15 * time.Second},
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Client returns the HTTP client sharing the session's cookie jar.
func (s *HTTPSource) Client() *http.Client { return s.client }

// Login exchanges credentials for a token pair.
func (s *HTTPSource) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("encode login: %w", err)
	}
	tok, err := s.post(ctx, "/v1/auth/login", body)
	if err != nil {
		return err
	}
	if tok == "" {
		return ErrNoSession
	}
	return nil
}

// GetSession returns the cached access token, or "" once it has expired.
func (s *HTTPSource) GetSession(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || (!s.expiresAt.IsZero() && !s.now().Before(s.expiresAt)) {
		return "", nil
	}
	return s.token, nil
}

// RefreshSession asks the API for a new pair. A 401 means the refresh
// cookie is no longer valid and yields "" with no error.
func (s *HTTPSource) RefreshSession(ctx context.Context) (string, error) {
	return s.post(ctx, "/v1/auth/refresh", nil)
}

func (s *HTTPSource) post(ctx context.Context, path string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		s.logger.Info("session rejected", slog.String("path", path))
		s.store("", 0)
		return "", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return "", fmt.Errorf("%s status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode %s response: %w", path, err)
	}
	s.store(tr.AccessToken, tr.ExpiresIn)
	return tr.AccessToken, nil
}

func (s *HTTPSource) store(token string, expiresIn int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = time.Time{}
	if token != "" && expiresIn > 0 {
		// 提前 10 秒视为过期，避免请求途中失效。
		s.expiresAt = s.now().Add(time.Duration(expiresIn)*time.Second - 10*time.Second)
	}
}
