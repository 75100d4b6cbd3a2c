// Package editor implements the per-field inline editing state machine used
// on the canvas. An Editor owns the edit buffer of one field and delegates the
// actual write to a SaveFunc supplied by the canvas.
package editor

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"sync"

	"wedsite/internal/field"
	"wedsite/internal/richtext"
)

// State 是内联编辑器的状态。
type State int

const (
	Viewing State = iota
	Editing
	Saving
	// Error 是瞬时状态：进入后立即回到 Editing，缓冲区保留以便修正。
	Error
)

func (s State) String() string {
	switch s {
	case Viewing:
		return "viewing"
	case Editing:
		return "editing"
	case Saving:
		return "saving"
	case Error:
		return "error"
	}
	return "unknown"
}

// Key is a keyboard commit or cancel key.
type Key int

const (
	KeyEnter Key = iota
	KeyEscape
)

// Command is a rich text formatting toggle.
type Command string

const (
	CmdBold         Command = "bold"
	CmdItalic       Command = "italic"
	CmdUnderline    Command = "underline"
	CmdAlignLeft    Command = "align-left"
	CmdAlignCenter  Command = "align-center"
	CmdAlignRight   Command = "align-right"
	CmdAlignJustify Command = "align-justify"
)

var (
	ErrDisabled      = errors.New("editor: field is disabled")
	ErrNotEditing    = errors.New("editor: not editing")
	ErrNotRichText   = errors.New("editor: formatting needs a rich text field")
	ErrNotAtomic     = errors.New("editor: field does not accept picks")
	ErrUnknownFormat = errors.New("editor: unknown formatting command")
)

// SaveFunc persists a validated value. A non-nil error rejects the commit;
// its text is shown next to the field.
type SaveFunc func(ctx context.Context, fieldID, value string) error

// Transition is reported to observers on every state change.
type Transition struct {
	FieldID string
	From    State
	To      State
	Err     error
}

// Observer receives transitions synchronously.
type Observer func(Transition)

type Option func(*Editor)

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(e *Editor) { e.observer = o }
}

// WithLogger sets the logger used for rejected commits.
func WithLogger(l *slog.Logger) Option {
	return func(e *Editor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithStrategy overrides the rendering strategy picked from the field type.
func WithStrategy(s Strategy) Option {
	return func(e *Editor) {
		if s != nil {
			e.strategy = s
		}
	}
}

// WithImageURL resolves stored image values for display.
func WithImageURL(fn func(string) string) Option {
	return func(e *Editor) { e.imageURL = fn }
}

// Editor 是单个字段的内联编辑状态机。
// committed 是最近一次成功提交（或外部同步）的值，buffer 只在编辑中有效。
// 富文本在 Input/Format 之前（docDirty 为 false）缓冲区就是已提交的原值。
type Editor struct {
	mu        sync.Mutex
	field     field.EditableField
	committed string
	buffer    string
	doc       richtext.Doc
	docDirty  bool
	state     State
	err       error

	save     SaveFunc
	strategy Strategy
	observer Observer
	imageURL func(string) string
	logger   *slog.Logger
}

// New creates an editor in Viewing state over f.
func New(f field.EditableField, save SaveFunc, opts ...Option) *Editor {
	e := &Editor{
		field:     f,
		committed: f.Value,
		save:      save,
		strategy:  StrategyFor(f.Type),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID returns the field id.
func (e *Editor) ID() string { return e.field.ID }

// State returns the current state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the last commit error, cleared on the next successful commit,
// on cancel and on re-activation.
func (e *Editor) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Value returns the committed value.
func (e *Editor) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.committed
}

// Buffer returns the pending edit value.
func (e *Editor) Buffer() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentBuffer()
}

// Field returns a copy of the field with the committed value.
func (e *Editor) Field() field.EditableField {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.field
	f.Value = e.committed
	return f
}

func (e *Editor) currentBuffer() string {
	if e.field.Type == field.RichText && e.docDirty {
		return e.doc.HTML()
	}
	return e.buffer
}

// caller must hold e.mu
func (e *Editor) transition(to State, err error) {
	from := e.state
	e.state = to
	if e.observer != nil {
		e.observer(Transition{FieldID: e.field.ID, From: from, To: to, Err: err})
	}
}

// Activate enters Editing with the buffer seeded from the committed value.
// Activating an editor that is already editing keeps its buffer.
func (e *Editor) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activate()
}

func (e *Editor) activate() error {
	if e.field.Disabled {
		return ErrDisabled
	}
	if e.state != Viewing {
		return nil
	}
	e.buffer = e.committed
	e.doc = richtext.Parse(e.committed)
	e.docDirty = false
	e.err = nil
	e.transition(Editing, nil)
	return nil
}

// Input replaces the buffer. For rich text the value is the plain text and
// the current formatting is kept.
func (e *Editor) Input(v string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Editing {
		return ErrNotEditing
	}
	if e.field.Type == field.RichText {
		e.doc.Text = v
		e.docDirty = true
		return nil
	}
	e.buffer = v
	return nil
}

// Format applies a formatting toggle to the rich text buffer in place.
func (e *Editor) Format(cmd Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.field.Type != field.RichText {
		return ErrNotRichText
	}
	if e.state != Editing {
		return ErrNotEditing
	}
	ok := false
	switch cmd {
	case CmdBold:
		ok = e.doc.Toggle(richtext.Bold)
	case CmdItalic:
		ok = e.doc.Toggle(richtext.Italic)
	case CmdUnderline:
		ok = e.doc.Toggle(richtext.Underline)
	case CmdAlignLeft:
		ok = e.doc.SetAlign(richtext.AlignLeft)
	case CmdAlignCenter:
		ok = e.doc.SetAlign(richtext.AlignCenter)
	case CmdAlignRight:
		ok = e.doc.SetAlign(richtext.AlignRight)
	case CmdAlignJustify:
		ok = e.doc.SetAlign(richtext.AlignJustify)
	}
	if !ok {
		return ErrUnknownFormat
	}
	e.docDirty = true
	return nil
}

// Key handles a keyboard key. Enter commits single-line fields only; in
// multi-line fields it is part of the text. Escape cancels.
func (e *Editor) Key(ctx context.Context, k Key) error {
	switch k {
	case KeyEscape:
		e.Cancel()
		return nil
	case KeyEnter:
		if !e.field.Type.SingleLine() {
			return nil
		}
		return e.commitIfEditing(ctx)
	}
	return nil
}

// Blur handles loss of focus: single-line fields commit, the others keep
// editing so a stray click does not lose input.
func (e *Editor) Blur(ctx context.Context) error {
	if !e.field.Type.SingleLine() {
		return nil
	}
	return e.commitIfEditing(ctx)
}

func (e *Editor) commitIfEditing(ctx context.Context) error {
	if e.State() != Editing {
		return nil
	}
	return e.Confirm(ctx)
}

// Confirm validates the buffer and hands it to the save callback.
func (e *Editor) Confirm(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Editing {
		e.mu.Unlock()
		return ErrNotEditing
	}
	return e.commit(ctx)
}

// Pick commits an atomic value (image, colour) and closes the editor at once.
func (e *Editor) Pick(ctx context.Context, v string) error {
	e.mu.Lock()
	if !e.field.Type.Atomic() {
		e.mu.Unlock()
		return ErrNotAtomic
	}
	if err := e.activate(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.buffer = v
	return e.commit(ctx)
}

// commit runs Editing -> Saving -> Viewing | Error -> Editing.
// It is entered with e.mu held and releases it around the save callback.
func (e *Editor) commit(ctx context.Context) error {
	value := e.currentBuffer()
	f := e.field
	e.transition(Saving, nil)

	if err := f.Check(value); err != nil {
		e.fail(err)
		e.mu.Unlock()
		return err
	}

	save := e.save
	e.mu.Unlock()
	var err error
	if save != nil {
		err = save(ctx, f.ID, value)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.logger.Warn("inline edit rejected",
			slog.String("field", f.ID),
			slog.Any("error", err),
		)
		e.fail(err)
		return err
	}
	e.committed = value
	e.field.Value = value
	e.err = nil
	e.transition(Viewing, nil)
	return nil
}

func (e *Editor) fail(err error) {
	e.err = err
	e.transition(Error, err)
	e.transition(Editing, err)
}

// Cancel discards the buffer and returns to Viewing with the committed value.
func (e *Editor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Editing {
		return
	}
	e.buffer = e.committed
	e.doc = richtext.Parse(e.committed)
	e.docDirty = false
	e.err = nil
	e.transition(Viewing, nil)
}

// Sync applies a value that changed elsewhere, e.g. in the settings form.
// An open buffer is left alone; cancelling it will restore the new value.
func (e *Editor) Sync(v string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.committed = v
	e.field.Value = v
	if e.state == Viewing {
		e.buffer = v
	}
}

// View renders the editor in its current state.
func (e *Editor) View() template.HTML {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.field
	f.Value = e.committed
	env := Env{ImageURL: e.imageURL, Editable: true}
	if e.state == Viewing {
		return e.strategy.Display(f, env)
	}
	env.Err = e.err
	env.Saving = e.state == Saving
	return e.strategy.Input(f, e.currentBuffer(), env)
}
