package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"wedsite/internal/editor"
	"wedsite/internal/field"
	"wedsite/internal/persist"
	"wedsite/internal/profile"
	"wedsite/internal/render"
	"wedsite/internal/site"
	"wedsite/internal/syncbus"
	"wedsite/internal/upload"
)

// CanvasSurface is the canvas's name on the sync bus.
const CanvasSurface = "canvas"

var (
	ErrUnknownField = errors.New("studio: unknown field")
	ErrNoUploader   = errors.New("studio: no uploader configured")
)

// Canvas 是内联编辑面：模板投影 + 每字段一个编辑器。
// 所有写入先落到共享 store，再发布到总线。
type Canvas struct {
	store    *profile.Store
	bus      *syncbus.Bus
	client   *persist.Client
	uploader upload.Uploader
	themes   *render.ThemeStyles
	renderer *render.Renderer
	editors  *editor.Set
	imageURL func(string) string
	logger   *slog.Logger

	mu    sync.Mutex
	tpl   *site.Template
	unsub func()
}

func newCanvas(store *profile.Store, bus *syncbus.Bus, client *persist.Client, deps Deps, logger *slog.Logger) *Canvas {
	rec, _ := store.Snapshot()
	c := &Canvas{
		store:    store,
		bus:      bus,
		client:   client,
		uploader: deps.Uploader,
		themes:   deps.Themes,
		renderer: render.New(logger),
		imageURL: deps.ImageURL,
		logger:   logger,
		tpl:      site.Build(rec),
	}
	eopts := []editor.Option{editor.WithLogger(logger), editor.WithImageURL(deps.ImageURL)}
	if deps.Observer != nil {
		eopts = append(eopts, editor.WithObserver(deps.Observer))
	}
	c.editors = editor.NewSet(c.UpdateField, eopts...)
	c.unsub = bus.Subscribe(CanvasSurface, c.deliver)
	return c
}

// Render writes the editable page.
func (c *Canvas) Render(ctx context.Context, w io.Writer) (render.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	opts := render.Options{
		Editable: true,
		Editors:  c.editors,
		ImageURL: c.imageURL,
	}
	if c.themes != nil {
		styles, err := c.themes.Bind(c.tpl.Global)
		if err != nil {
			c.logger.Warn("theme fallback", slog.String("theme", c.tpl.Global.Theme), slog.Any("error", err))
		}
		if styles != nil {
			opts.Styles = styles
		}
	}
	return c.renderer.RenderPage(ctx, w, c.tpl, opts)
}

// Template returns an independent copy of the canvas template.
func (c *Canvas) Template() *site.Template {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tpl.Clone()
}

// Editor returns the inline editor of field id.
func (c *Canvas) Editor(id string) (*editor.Editor, error) {
	c.mu.Lock()
	f, ok := c.tpl.Field(id)
	var snapshot field.EditableField
	if ok {
		snapshot = *f
	}
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	return c.editors.For(snapshot), nil
}

// UpdateField is the inline editors' save callback: the template and the
// store take the value, the other surfaces hear about it and autosave is
// rescheduled.
func (c *Canvas) UpdateField(_ context.Context, id, value string) error {
	c.mu.Lock()
	c.tpl.SetValue(id, value)
	c.mu.Unlock()

	if !c.store.Set(id, value) {
		return nil
	}
	c.bus.Publish(syncbus.Update{FieldID: id, Value: value, Origin: CanvasSurface})
	c.client.Touch()
	return nil
}

func (c *Canvas) deliver(u syncbus.Update) {
	c.mu.Lock()
	c.tpl.SetValue(u.FieldID, u.Value)
	c.mu.Unlock()
	c.editors.Sync(u.FieldID, u.Value)
	if c.store.Set(u.FieldID, u.Value) {
		c.client.Touch()
	}
}

// PickImage uploads r and commits the returned object key to image field id.
func (c *Canvas) PickImage(ctx context.Context, id, name string, r io.Reader) error {
	if c.uploader == nil {
		return ErrNoUploader
	}
	ed, err := c.Editor(id)
	if err != nil {
		return err
	}
	if !ed.Field().Type.Atomic() {
		return editor.ErrNotAtomic
	}
	key, err := c.uploader.Upload(ctx, name, r)
	if err != nil {
		c.logger.Warn("image upload failed", slog.String("field", id), slog.Any("error", err))
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return ed.Pick(ctx, key)
}

// SetSectionEnabled hides or shows a section. Its content is kept.
func (c *Canvas) SetSectionEnabled(typ site.SectionType, enabled bool) error {
	c.mu.Lock()
	err := c.tpl.SetEnabled(typ, enabled)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if c.store.Set(profile.LayoutKey(string(typ), "enabled"), strconv.FormatBool(enabled)) {
		c.client.Touch()
	}
	return nil
}

// MoveSection places typ at pos in render order.
func (c *Canvas) MoveSection(typ site.SectionType, pos int) error {
	c.mu.Lock()
	if err := c.tpl.Move(typ, pos); err != nil {
		c.mu.Unlock()
		return err
	}
	layout := make(profile.Record, len(c.tpl.Sections))
	for _, s := range c.tpl.Sections {
		layout[profile.LayoutKey(string(s.Type), "order")] = strconv.Itoa(s.Order)
	}
	c.mu.Unlock()

	if c.store.SetAll(layout) {
		c.client.Touch()
	}
	return nil
}

func (c *Canvas) close() {
	c.editors.CancelAll()
	if c.unsub != nil {
		c.unsub()
	}
}
