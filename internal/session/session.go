// Package session is the client side of authentication: where the editing
// core gets its bearer token and what it does when the session is gone.
package session

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSession means neither a current nor a refreshed token is available.
var ErrNoSession = errors.New("session: no valid session")

// Source hands out access tokens. An empty token with a nil error means
// "no session"; errors are transport failures.
type Source interface {
	GetSession(ctx context.Context) (string, error)
	RefreshSession(ctx context.Context) (string, error)
}

// Redirector sends the user to the login page once recovery failed.
type Redirector interface {
	RedirectToLogin(reason string)
}

// RedirectFunc adapts a function to Redirector.
type RedirectFunc func(reason string)

func (f RedirectFunc) RedirectToLogin(reason string) { f(reason) }

// Static is a fixed-token source, useful for scripts and tests. Refresh
// returns the next token from Refreshed, or "" once exhausted.
type Static struct {
	mu        sync.Mutex
	Token     string
	Refreshed []string
	Refreshes int
}

func (s *Static) GetSession(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Token, nil
}

func (s *Static) RefreshSession(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Refreshes++
	if len(s.Refreshed) == 0 {
		s.Token = ""
		return "", nil
	}
	s.Token = s.Refreshed[0]
	s.Refreshed = s.Refreshed[1:]
	return s.Token, nil
}
