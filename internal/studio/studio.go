// Package studio assembles one editing session: the canonical store, the
// inline canvas, the settings form, the sync bus between them and the
// persistence client both surfaces feed.
package studio

import (
	"log/slog"
	"time"

	"wedsite/internal/autosave"
	"wedsite/internal/editor"
	"wedsite/internal/form"
	"wedsite/internal/notice"
	"wedsite/internal/persist"
	"wedsite/internal/profile"
	"wedsite/internal/render"
	"wedsite/internal/session"
	"wedsite/internal/site"
	"wedsite/internal/syncbus"
	"wedsite/internal/upload"
)

// Deps are the collaborators of a session. Writer and Sessions are required.
type Deps struct {
	Writer     persist.Writer
	Sessions   session.Source
	Uploader   upload.Uploader
	Themes     *render.ThemeStyles
	Notifier   notice.Notifier
	Redirector session.Redirector
	Metrics    persist.Metrics
	Logger     *slog.Logger
	Mapper     profile.Mapper

	Delay     time.Duration
	Timeout   time.Duration
	AfterFunc autosave.AfterFunc
	ImageURL  func(string) string
	Now       func() time.Time
	// Observer sees every inline editor transition.
	Observer editor.Observer
}

// Session is one open editing session.
type Session struct {
	Store  *profile.Store
	Bus    *syncbus.Bus
	Client *persist.Client
	Form   *form.Form
	Canvas *Canvas

	logger *slog.Logger
}

// Open builds a session over rec.
func Open(rec profile.Record, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	schema := form.DefaultSchema()
	if deps.Themes != nil {
		schema = schema.WithOptions(profile.KeyTheme, deps.Themes.Names())
	}

	store := profile.NewStore(rec)
	bus := syncbus.New(logger)

	// 表单挂载后，自动保存与提交共用表单的校验。
	var surface *form.Form
	opts := []persist.Option{
		persist.WithValidator(func(r profile.Record) error { return surface.Check(r) }),
		persist.WithLogger(logger),
	}
	if deps.Notifier != nil {
		opts = append(opts, persist.WithNotifier(deps.Notifier))
	}
	if deps.Redirector != nil {
		opts = append(opts, persist.WithRedirector(deps.Redirector))
	}
	if deps.Metrics != nil {
		opts = append(opts, persist.WithMetrics(deps.Metrics))
	}
	if deps.Delay > 0 {
		opts = append(opts, persist.WithDelay(deps.Delay))
	}
	if deps.Timeout > 0 {
		opts = append(opts, persist.WithTimeout(deps.Timeout))
	}
	if deps.AfterFunc != nil {
		opts = append(opts, persist.WithAfterFunc(deps.AfterFunc))
	}
	if deps.Now != nil {
		opts = append(opts, persist.WithClock(deps.Now))
	}
	client := persist.New(store, deps.Writer, deps.Sessions, opts...)

	s := &Session{
		Store:  store,
		Bus:    bus,
		Client: client,
		logger: logger,
	}
	surface = form.New(store, bus, client,
		form.WithSchema(schema),
		form.WithMapper(deps.Mapper),
		form.WithLogger(logger),
	)
	s.Form = surface
	s.Canvas = newCanvas(store, bus, client, deps, logger)
	logger.Info("editing session opened",
		slog.Int("fields", len(rec)),
		slog.Int("sections", len(site.Catalog())),
	)
	return s
}

// State returns the session-wide save state.
func (s *Session) State() persist.SaveState { return s.Client.State() }

// Close stops the autosave timer and drops every subscription. Unsaved
// changes are not flushed; call Client.Flush first to keep them.
func (s *Session) Close() {
	s.Canvas.close()
	s.Form.Close()
	s.Client.Close()
	s.Bus.Close()
	s.logger.Info("editing session closed")
}
