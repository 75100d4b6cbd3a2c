package editor

import (
	"sync"

	"wedsite/internal/field"
)

// Set keeps one editor per field id for a canvas. Fields shared between
// sections (wedding_date in hero and countdown) share their editor.
type Set struct {
	mu      sync.Mutex
	save    SaveFunc
	opts    []Option
	editors map[string]*Editor
}

// NewSet creates an empty set whose editors all save through save.
func NewSet(save SaveFunc, opts ...Option) *Set {
	return &Set{save: save, opts: opts, editors: make(map[string]*Editor)}
}

// For returns the editor of f, creating it on first use.
func (s *Set) For(f field.EditableField) *Editor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.editors[f.ID]; ok {
		return e
	}
	e := New(f, s.save, s.opts...)
	s.editors[f.ID] = e
	return e
}

// Get returns the editor of id if one was created.
func (s *Set) Get(id string) (*Editor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.editors[id]
	return e, ok
}

// Sync forwards an external value to the editor of id, if any.
func (s *Set) Sync(id, value string) {
	if e, ok := s.Get(id); ok {
		e.Sync(value)
	}
}

// CancelAll closes every open editor without saving.
func (s *Set) CancelAll() {
	s.mu.Lock()
	editors := make([]*Editor, 0, len(s.editors))
	for _, e := range s.editors {
		editors = append(editors, e)
	}
	s.mu.Unlock()
	for _, e := range editors {
		e.Cancel()
	}
}
