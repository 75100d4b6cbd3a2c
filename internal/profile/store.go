package profile

import "sync"

// Store 保存一次编辑会话中的规范记录。
// 只有本地编辑与同步总线投递会写入，语义为“后写覆盖”。
type Store struct {
	mu       sync.RWMutex
	record   Record
	revision uint64
}

// NewStore seeds a store with a copy of rec.
func NewStore(rec Record) *Store {
	return &Store{record: rec.Clone()}
}

// Get returns the current value for key.
func (s *Store) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record[key]
}

// Set writes key and reports whether the value changed.
func (s *Store) Set(key, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.record[key]; ok && cur == value {
		return false
	}
	s.record[key] = value
	s.revision++
	return true
}

// SetAll writes every entry of rec.
func (s *Store) SetAll(rec Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for k, v := range rec {
		if cur, ok := s.record[k]; ok && cur == v {
			continue
		}
		s.record[k] = v
		changed = true
	}
	if changed {
		s.revision++
	}
	return changed
}

// Replace swaps the whole record, e.g. after the server returned the accepted copy.
func (s *Store) Replace(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = rec.Clone()
	s.revision++
}

// Snapshot returns a copy of the record together with its revision.
func (s *Store) Snapshot() (Record, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Clone(), s.revision
}

// Revision increases on every effective write.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}
