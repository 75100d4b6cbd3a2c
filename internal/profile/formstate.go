package profile

import "maps"

// FormState is the structured form's projection of a Record: content keys
// only, flat, independent of how the canvas nests fields into sections.
type FormState map[string]string

// FormStateOf projects a record into form state. Layout keys stay out of the
// form; they are owned by the canvas.
func FormStateOf(r Record) FormState {
	fs := make(FormState, len(r))
	for k, v := range r {
		if IsLayoutKey(k) {
			continue
		}
		fs[k] = v
	}
	return fs
}

// Record projects form state back into record shape.
func (fs FormState) Record() Record {
	out := make(Record, len(fs))
	for k, v := range fs {
		if IsLayoutKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Clone returns an independent copy.
func (fs FormState) Clone() FormState {
	if fs == nil {
		return FormState{}
	}
	return maps.Clone(fs)
}

// Mapper converts a loaded record into form state. The default is FormStateOf;
// callers can supply their own when the record carries legacy keys.
type Mapper func(Record) FormState
