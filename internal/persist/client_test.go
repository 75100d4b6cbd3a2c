package persist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedsite/internal/autosave"
	"wedsite/internal/errcode"
	"wedsite/internal/notice"
	"wedsite/internal/profile"
	"wedsite/internal/session"
)

type fakeWriter struct {
	mu      sync.Mutex
	calls   []profile.Record
	tokens  []string
	replies []error
	block   chan struct{}
	entered chan struct{}
}

func (w *fakeWriter) Write(ctx context.Context, token string, rec profile.Record) (profile.Record, error) {
	w.mu.Lock()
	w.calls = append(w.calls, rec)
	w.tokens = append(w.tokens, token)
	var err error
	if len(w.replies) > 0 {
		err = w.replies[0]
		w.replies = w.replies[1:]
	}
	block, entered := w.block, w.entered
	w.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

type redirects struct {
	mu     sync.Mutex
	count  int
	reason string
}

func (r *redirects) RedirectToLogin(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	r.reason = reason
}

func complete() profile.Record {
	return profile.Record{
		profile.KeyBrideName:   "Maria",
		profile.KeyGroomName:   "João",
		profile.KeyWeddingDate: "2026-06-20",
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newClient(store *profile.Store, w Writer, src session.Source, clock *autosave.ManualClock, opts ...Option) *Client {
	base := []Option{WithAfterFunc(clock.AfterFunc), WithLogger(quiet()), WithDelay(3 * time.Second)}
	return New(store, w, src, append(base, opts...)...)
}

func TestDebounceCoalescesMutations(t *testing.T) {
	clock := &autosave.ManualClock{}
	store := profile.NewStore(complete())
	w := &fakeWriter{}
	c := newClient(store, w, &session.Static{Token: "t"}, clock)

	for _, v := range []string{"Quinta", "Quinta do", "Quinta do Lago"} {
		store.Set("venue_name", v)
		c.Touch()
		clock.Advance(time.Second)
	}
	assert.Equal(t, 0, w.count())
	assert.True(t, c.State().HasUnsavedChanges)

	clock.Advance(3 * time.Second)
	require.Equal(t, 1, w.count())
	assert.Equal(t, "Quinta do Lago", w.calls[0]["venue_name"])

	st := c.State()
	assert.False(t, st.HasUnsavedChanges)
	assert.NotNil(t, st.LastSavedAt)
	assert.False(t, st.IsSaving)
}

func TestAutosaveGateNeedsMinimumSubset(t *testing.T) {
	clock := &autosave.ManualClock{}
	store := profile.NewStore(profile.Record{profile.KeyBrideName: "Maria"})
	w := &fakeWriter{}
	c := newClient(store, w, &session.Static{Token: "t"}, clock)

	c.Touch()
	clock.Advance(time.Minute)
	assert.Equal(t, 0, w.count())
	assert.True(t, c.State().HasUnsavedChanges, "skipped autosave keeps the draft dirty")

	err := c.Save(context.Background(), ModeSubmit)
	assert.ErrorIs(t, err, profile.ErrIncomplete)
	assert.Equal(t, 0, w.count())
}

func TestUnauthorizedRefreshesOnceAndRetriesOnce(t *testing.T) {
	clock := &autosave.ManualClock{}
	store := profile.NewStore(complete())
	w := &fakeWriter{replies: []error{&StatusError{Status: http.StatusUnauthorized}}}
	src := &session.Static{Token: "old", Refreshed: []string{"new"}}
	c := newClient(store, w, src, clock)

	c.Touch()
	require.NoError(t, c.Save(context.Background(), ModeSubmit))
	assert.Equal(t, 1, src.Refreshes)
	assert.Equal(t, []string{"old", "new"}, w.tokens)
	assert.False(t, c.Pending(), "submit cancels the pending autosave")
}

func TestSecondUnauthorizedIsTerminal(t *testing.T) {
	clock := &autosave.ManualClock{}
	w := &fakeWriter{replies: []error{
		&StatusError{Status: http.StatusUnauthorized},
		&StatusError{Status: http.StatusUnauthorized},
	}}
	src := &session.Static{Token: "old", Refreshed: []string{"new", "newer"}}
	r := &redirects{}
	c := newClient(profile.NewStore(complete()), w, src, clock, WithRedirector(r))

	err := c.Save(context.Background(), ModeSubmit)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 1, src.Refreshes)
	assert.Equal(t, 2, w.count())
	assert.Equal(t, 0, r.count, "refresh succeeded, so no redirect")
}

func TestFailedRefreshRedirectsWithoutRetry(t *testing.T) {
	clock := &autosave.ManualClock{}
	w := &fakeWriter{replies: []error{&StatusError{Status: http.StatusUnauthorized}}}
	src := &session.Static{Token: "old"}
	r := &redirects{}
	ch := notice.NewChannel(4)
	c := newClient(profile.NewStore(complete()), w, src, clock, WithRedirector(r), WithNotifier(ch))

	c.Touch()
	err := c.Save(context.Background(), ModeSubmit)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 1, src.Refreshes)
	assert.Equal(t, 1, w.count(), "no retry after a failed refresh")
	assert.Equal(t, 1, r.count)
	assert.True(t, c.State().HasUnsavedChanges)

	n := <-ch.C
	assert.Equal(t, errcode.SessionExpired, n.Code)
}

func TestMissingTokenRefreshesBeforeWriting(t *testing.T) {
	clock := &autosave.ManualClock{}
	w := &fakeWriter{}
	src := &session.Static{Refreshed: []string{"fresh"}}
	c := newClient(profile.NewStore(complete()), w, src, clock)

	require.NoError(t, c.Save(context.Background(), ModeSubmit))
	assert.Equal(t, []string{"fresh"}, w.tokens)

	r := &redirects{}
	none := newClient(profile.NewStore(complete()), &fakeWriter{}, &session.Static{}, clock, WithRedirector(r))
	assert.ErrorIs(t, none.Save(context.Background(), ModeSubmit), ErrSessionExpired)
	assert.Equal(t, 1, r.count)
}

func TestSaveWhileInFlightIsNoOpThenReschedules(t *testing.T) {
	clock := &autosave.ManualClock{}
	store := profile.NewStore(complete())
	release := make(chan struct{})
	w := &fakeWriter{block: release, entered: make(chan struct{}, 1)}
	c := newClient(store, w, &session.Static{Token: "t"}, clock)
	c.Touch()

	done := make(chan error, 1)
	go func() { done <- c.Save(context.Background(), ModeSubmit) }()
	<-w.entered
	assert.True(t, c.State().IsSaving)

	store.Set("venue_name", "Palácio")
	c.Touch()
	clock.Advance(3 * time.Second)
	assert.Equal(t, 1, w.count(), "autosave must not fire while a submit is in flight")

	w.mu.Lock()
	w.block = nil
	w.entered = nil
	w.mu.Unlock()
	close(release)
	require.NoError(t, <-done)

	st := c.State()
	assert.True(t, st.HasUnsavedChanges, "edit landed during the save")
	assert.True(t, c.Pending(), "a fresh cycle is scheduled")

	clock.Advance(3 * time.Second)
	require.Equal(t, 2, w.count())
	assert.Equal(t, "Palácio", w.calls[1]["venue_name"])
	assert.False(t, c.State().HasUnsavedChanges)
}

func TestFailureNotifiesAndKeepsDirty(t *testing.T) {
	clock := &autosave.ManualClock{}
	w := &fakeWriter{replies: []error{errors.New("connection reset")}}
	ch := notice.NewChannel(4)
	c := newClient(profile.NewStore(complete()), w, &session.Static{Token: "t"}, clock, WithNotifier(ch))

	c.Touch()
	clock.Advance(3 * time.Second)
	assert.Equal(t, 1, w.count())
	assert.True(t, c.State().HasUnsavedChanges)
	n := <-ch.C
	assert.Equal(t, notice.Error, n.Level)
	assert.False(t, c.Pending(), "no retry until the next mutation")

	c.Touch()
	clock.Advance(3 * time.Second)
	assert.Equal(t, 2, w.count())
	assert.False(t, c.State().HasUnsavedChanges)
}

func TestSaveTimeout(t *testing.T) {
	clock := &autosave.ManualClock{}
	w := &fakeWriter{block: make(chan struct{})}
	c := newClient(profile.NewStore(complete()), w, &session.Static{Token: "t"}, clock, WithTimeout(20*time.Millisecond))
	err := c.Save(context.Background(), ModeSubmit)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseCancelsTimer(t *testing.T) {
	clock := &autosave.ManualClock{}
	w := &fakeWriter{}
	c := newClient(profile.NewStore(complete()), w, &session.Static{Token: "t"}, clock)
	c.Touch()
	c.Close()
	clock.Advance(time.Minute)
	assert.Equal(t, 0, w.count())
	assert.ErrorIs(t, c.Save(context.Background(), ModeSubmit), ErrClosed)
}

func TestOnSavedHookAndFlush(t *testing.T) {
	clock := &autosave.ManualClock{}
	var got profile.Record
	c := newClient(profile.NewStore(complete()), &fakeWriter{}, &session.Static{Token: "t"}, clock,
		OnSaved(func(r profile.Record) { got = r }))
	require.NoError(t, c.Flush(context.Background()), "nothing to flush")
	assert.Nil(t, got)

	c.Touch()
	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, "Maria", got[profile.KeyBrideName])
}

func TestFlushReportsGateFailure(t *testing.T) {
	clock := &autosave.ManualClock{}
	store := profile.NewStore(profile.Record{profile.KeyBrideName: "Maria"})
	w := &fakeWriter{}
	c := newClient(store, w, &session.Static{Token: "t"}, clock)

	store.Set(profile.KeyGroomName, "João")
	c.Touch()
	assert.ErrorIs(t, c.Flush(context.Background()), profile.ErrIncomplete)
	assert.False(t, c.Pending())
	assert.True(t, c.State().HasUnsavedChanges)
	assert.Zero(t, w.count())
}

func TestHTTPWriter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, SitePath, r.URL.Path)
		var p SitePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		p.Fields["accepted"] = "yes"
		_ = json.NewEncoder(w).Encode(p)
	}))
	defer srv.Close()

	hw := NewHTTPWriter(srv.URL, srv.Client())
	out, err := hw.Write(context.Background(), "good", complete())
	require.NoError(t, err)
	assert.Equal(t, "yes", out["accepted"])

	_, err = hw.Write(context.Background(), "bad", complete())
	assert.True(t, IsUnauthorized(err))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "unauthorized", se.Message)
}

func TestRejectedSaveCarriesStatusCode(t *testing.T) {
	clock := &autosave.ManualClock{}
	w := &fakeWriter{replies: []error{&StatusError{Status: http.StatusConflict, Message: "slug already taken"}}}
	ch := notice.NewChannel(4)
	c := newClient(profile.NewStore(complete()), w, &session.Static{Token: "t"}, clock, WithNotifier(ch))

	c.Touch()
	require.Error(t, c.Save(context.Background(), ModeSubmit))
	n := <-ch.C
	assert.Equal(t, errcode.SaveConflict, n.Code)
	assert.Contains(t, n.Message, "slug already taken")
	assert.True(t, c.State().HasUnsavedChanges)
}
