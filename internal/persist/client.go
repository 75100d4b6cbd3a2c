// Package persist flushes the session's canonical record to the backing
// store: debounced autosave, explicit submit, and session-expiry recovery.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"wedsite/internal/autosave"
	"wedsite/internal/errcode"
	"wedsite/internal/notice"
	"wedsite/internal/profile"
	"wedsite/internal/session"
)

// DefaultSaveTimeout bounds one write attempt, refresh and retry included.
const DefaultSaveTimeout = 15 * time.Second

// Mode says who asked for a save.
type Mode int

const (
	ModeAutosave Mode = iota
	ModeSubmit
)

func (m Mode) String() string {
	if m == ModeSubmit {
		return "submit"
	}
	return "autosave"
}

var (
	// ErrInFlight is returned when another save is still running. The dirty
	// flag stays set and a new cycle is scheduled once that save resolves.
	ErrInFlight = errors.New("persist: a save is already in flight")
	// ErrSessionExpired means no usable token could be obtained.
	ErrSessionExpired = errors.New("persist: session expired")
	ErrClosed         = errors.New("persist: client closed")
)

// StatusError is a non-2xx reply from the persistence API.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("save failed with status %d", e.Status)
	}
	return fmt.Sprintf("save failed with status %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 reply.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusUnauthorized
}

// Writer sends the full record and returns the record the server accepted.
type Writer interface {
	Write(ctx context.Context, token string, rec profile.Record) (profile.Record, error)
}

// Validator gates every save; both modes use the same one.
type Validator func(profile.Record) error

// SaveState is the session-wide save status.
type SaveState struct {
	LastSavedAt       *time.Time `json:"lastSavedAt"`
	HasUnsavedChanges bool       `json:"hasUnsavedChanges"`
	IsSaving          bool       `json:"isSaving"`
}

// Metrics receives save outcomes; nil disables reporting.
type Metrics interface {
	ObserveSave(mode, outcome string, d time.Duration)
}

type Option func(*Client)

func WithValidator(v Validator) Option      { return func(c *Client) { c.validate = v } }
func WithNotifier(n notice.Notifier) Option { return func(c *Client) { c.notifier = n } }
func WithRedirector(r session.Redirector) Option {
	return func(c *Client) { c.redirect = r }
}
func WithDelay(d time.Duration) Option { return func(c *Client) { c.delay = d } }
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}
func WithAfterFunc(af autosave.AfterFunc) Option { return func(c *Client) { c.after = af } }
func WithClock(now func() time.Time) Option      { return func(c *Client) { c.now = now } }
func WithMetrics(m Metrics) Option               { return func(c *Client) { c.metrics = m } }
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// OnSaved registers a hook run after every successful save with the record
// the server accepted. Hooks own any downstream refresh.
func OnSaved(fn func(profile.Record)) Option {
	return func(c *Client) { c.onSaved = append(c.onSaved, fn) }
}

// Client 持有唯一的防抖定时器，画布与表单都通过 Touch 共享它，
// 因此任何来源的保存都是串行的。
type Client struct {
	store    *profile.Store
	writer   Writer
	sessions session.Source

	validate Validator
	notifier notice.Notifier
	redirect session.Redirector
	metrics  Metrics
	logger   *slog.Logger
	onSaved  []func(profile.Record)
	now      func() time.Time
	delay    time.Duration
	timeout  time.Duration
	after    autosave.AfterFunc

	debouncer *autosave.Debouncer

	mu      sync.Mutex
	state   SaveState
	saving  bool
	pending bool
	closed  bool
}

// New creates a client over store. Nothing is scheduled until Touch.
func New(store *profile.Store, writer Writer, sessions session.Source, opts ...Option) *Client {
	c := &Client{
		store:    store,
		writer:   writer,
		sessions: sessions,
		validate: profile.ReadyToSave,
		notifier: notice.Discard,
		logger:   slog.Default(),
		now:      time.Now,
		delay:    autosave.DefaultDelay,
		timeout:  DefaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	var dopts []autosave.Option
	if c.after != nil {
		dopts = append(dopts, autosave.WithAfterFunc(c.after))
	}
	c.debouncer = autosave.New(c.delay, c.autosave, dopts...)
	return c
}

// State returns a copy of the save state.
func (c *Client) State() SaveState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	if st.LastSavedAt != nil {
		t := *st.LastSavedAt
		st.LastSavedAt = &t
	}
	return st
}

// Touch marks the session dirty and restarts the autosave timer.
func (c *Client) Touch() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state.HasUnsavedChanges = true
	c.mu.Unlock()
	c.debouncer.Trigger()
}

func (c *Client) autosave() {
	if err := c.Save(context.Background(), ModeAutosave); err != nil && !errors.Is(err, ErrInFlight) {
		c.logger.Info("autosave failed", slog.Any("error", err))
	}
}

// Save snapshots the store and writes it. Autosave skips an incomplete or
// invalid record silently; submit returns the validation error. A submit
// cancels the pending autosave timer.
func (c *Client) Save(ctx context.Context, mode Mode) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if mode == ModeSubmit {
		c.debouncer.Cancel()
	}
	if c.saving {
		c.pending = true
		c.mu.Unlock()
		c.logger.Debug("save skipped, another save in flight", slog.String("mode", mode.String()))
		return ErrInFlight
	}
	if mode == ModeAutosave && !c.state.HasUnsavedChanges {
		c.mu.Unlock()
		return nil
	}

	rec, rev := c.store.Snapshot()
	if err := c.validate(rec); err != nil {
		c.mu.Unlock()
		if mode == ModeAutosave {
			c.logger.Info("autosave skipped, record not ready", slog.Any("reason", err))
			return nil
		}
		c.notifier.Notify(notice.Failed(errcode.ValidationFailed, err.Error(), c.now()))
		return err
	}
	c.saving = true
	c.state.IsSaving = true
	c.mu.Unlock()

	started := c.now()
	saved, err := c.write(ctx, rec)

	c.mu.Lock()
	c.saving = false
	c.state.IsSaving = false
	reschedule := false
	if err == nil {
		at := c.now()
		c.state.LastSavedAt = &at
		if c.store.Revision() == rev {
			c.state.HasUnsavedChanges = false
		} else {
			reschedule = true
		}
	}
	if c.pending {
		c.pending = false
		reschedule = reschedule || c.state.HasUnsavedChanges
	}
	closed := c.closed
	hooks := c.onSaved
	c.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if c.metrics != nil {
		c.metrics.ObserveSave(mode.String(), outcome, c.now().Sub(started))
	}

	if err != nil {
		code := errcode.SaveFailed
		var se *StatusError
		switch {
		case errors.Is(err, ErrSessionExpired):
			code = errcode.SessionExpired
		case errors.As(err, &se):
			code = errcode.FromHTTPStatus(se.Status)
		}
		c.logger.Warn("save failed", slog.String("mode", mode.String()), slog.Any("error", err))
		c.notifier.Notify(notice.Failed(code, userMessage(err), c.now()))
	} else {
		c.logger.Info("site saved", slog.String("mode", mode.String()), slog.Int("fields", len(rec)))
		c.notifier.Notify(notice.Saved(c.now()))
		for _, fn := range hooks {
			fn(saved)
		}
	}
	if reschedule && !closed {
		c.debouncer.Trigger()
	}
	return err
}

// write obtains a token, writes, and on a 401 refreshes once and retries once.
func (c *Client) write(ctx context.Context, rec profile.Record) (profile.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	refreshed := false
	token, err := c.sessions.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if token == "" {
		refreshed = true
		if token, err = c.refresh(ctx); err != nil {
			return nil, err
		}
	}

	saved, err := c.writer.Write(ctx, token, rec)
	if !IsUnauthorized(err) {
		return saved, err
	}
	if refreshed {
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	c.logger.Info("save unauthorized, refreshing session")
	if token, err = c.refresh(ctx); err != nil {
		return nil, err
	}
	saved, err = c.writer.Write(ctx, token, rec)
	if IsUnauthorized(err) {
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	return saved, err
}

// refresh asks for a new token once; failure sends the user to login.
func (c *Client) refresh(ctx context.Context) (string, error) {
	token, err := c.sessions.RefreshSession(ctx)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil {
		c.logger.Warn("session refresh failed", slog.Any("error", err))
	}
	if c.redirect != nil {
		c.redirect.RedirectToLogin("session expired")
	}
	if err != nil {
		return "", fmt.Errorf("%w: refresh: %v", ErrSessionExpired, err)
	}
	return "", ErrSessionExpired
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrSessionExpired):
		return "Your session expired. Please sign in again."
	case errors.Is(err, context.DeadlineExceeded):
		return "Saving took too long. We'll try again."
	}
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return "Could not save: " + se.Message
	}
	return "Could not save your changes. We'll try again."
}

// Flush cancels the timer and saves now if anything is unsaved. It is an
// explicit save: a record that fails the gate is returned as an error.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	dirty := c.state.HasUnsavedChanges
	c.mu.Unlock()
	c.debouncer.Cancel()
	if !dirty {
		return nil
	}
	return c.Save(ctx, ModeSubmit)
}

// Pending reports whether an autosave is scheduled.
func (c *Client) Pending() bool { return c.debouncer.Pending() }

// Close stops the timer; later saves fail with ErrClosed.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.debouncer.Close()
}
