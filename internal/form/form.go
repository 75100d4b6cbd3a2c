package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"wedsite/internal/persist"
	"wedsite/internal/profile"
	"wedsite/internal/syncbus"
)

// Surface is the form's name on the sync bus.
const Surface = "form"

// ErrUnknownKey is returned by Set for keys the schema does not bind.
var ErrUnknownKey = errors.New("form: unknown key")

// Saver is the part of the persistence client the form drives.
type Saver interface {
	Touch()
	Save(ctx context.Context, mode persist.Mode) error
}

type Option func(*Form)

// WithSchema replaces DefaultSchema.
func WithSchema(s Schema) Option { return func(f *Form) { f.schema = s } }

// WithMapper replaces profile.FormStateOf as the seeding projection.
func WithMapper(m profile.Mapper) Option {
	return func(f *Form) {
		if m != nil {
			f.mapper = m
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Form) {
		if l != nil {
			f.logger = l
		}
	}
}

// Form 是结构化设置面。合法的本地编辑写入共享 store 并发布到总线；
// 不合法的值只留在本地草稿里，并带上字段错误。
type Form struct {
	store  *profile.Store
	bus    *syncbus.Bus
	saver  Saver
	schema Schema
	mapper profile.Mapper
	logger *slog.Logger

	mu     sync.Mutex
	values profile.FormState
	errs   Errors
	unsub  func()
}

// New seeds the form from the store and subscribes it to the bus.
func New(store *profile.Store, bus *syncbus.Bus, saver Saver, opts ...Option) *Form {
	f := &Form{
		store:  store,
		bus:    bus,
		saver:  saver,
		schema: DefaultSchema(),
		mapper: profile.FormStateOf,
		logger: slog.Default(),
		errs:   Errors{},
	}
	for _, opt := range opts {
		opt(f)
	}
	rec, _ := store.Snapshot()
	f.values = f.mapper(rec)
	if bus != nil {
		f.unsub = bus.Subscribe(Surface, f.deliver)
	}
	return f
}

// Schema returns the form layout.
func (f *Form) Schema() Schema { return f.schema }

// Set applies a local edit. An invalid value stays in the draft with an error
// and is neither stored nor published.
func (f *Form) Set(key, value string) error {
	input, ok := f.schema.Input(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	f.mu.Lock()
	f.values[key] = value
	msg := input.Check(value)
	if msg == "" {
		delete(f.errs, key)
	} else {
		f.errs[key] = msg
	}
	f.mu.Unlock()

	if msg != "" {
		return Errors{key: msg}
	}
	if !f.store.Set(key, value) {
		return nil
	}
	if f.bus != nil {
		f.bus.Publish(syncbus.Update{FieldID: key, Value: value, Origin: Surface})
	}
	if f.saver != nil {
		f.saver.Touch()
	}
	return nil
}

// deliver applies an update from another surface without republishing.
func (f *Form) deliver(u syncbus.Update) {
	if profile.IsLayoutKey(u.FieldID) {
		return
	}
	f.mu.Lock()
	f.values[u.FieldID] = u.Value
	delete(f.errs, u.FieldID)
	f.mu.Unlock()

	if f.store.Set(u.FieldID, u.Value) && f.saver != nil {
		f.saver.Touch()
	}
	f.logger.Debug("form applied update", slog.String("field", u.FieldID), slog.String("origin", u.Origin))
}

// Submit validates the whole draft and saves at once, bypassing the timer.
func (f *Form) Submit(ctx context.Context) error {
	f.mu.Lock()
	errs := f.schema.Validate(f.values)
	f.errs = errs
	f.mu.Unlock()
	if len(errs) > 0 {
		return cloneErrors(errs)
	}
	if f.saver == nil {
		return nil
	}
	return f.saver.Save(ctx, persist.ModeSubmit)
}

// Check is the save gate of a session with this form mounted: rec with the
// draft's rejected values laid over it, then the schema. Autosave and Submit
// both go through it, so a value the form refused blocks either kind of save.
func (f *Form) Check(rec profile.Record) error {
	f.mu.Lock()
	pending := make(profile.Record, len(f.errs))
	for k := range f.errs {
		if v, ok := f.values[k]; ok {
			pending[k] = v
		}
	}
	f.mu.Unlock()
	return f.schema.Check(rec.Merge(pending))
}

// Values returns a copy of the draft.
func (f *Form) Values() profile.FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values.Clone()
}

// Errors returns a copy of the current field errors.
func (f *Form) Errors() Errors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneErrors(f.errs)
}

// Close unsubscribes from the bus.
func (f *Form) Close() {
	f.mu.Lock()
	unsub := f.unsub
	f.unsub = nil
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func cloneErrors(e Errors) Errors {
	out := make(Errors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
