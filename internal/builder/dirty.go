package builder

import (
	"sort"

	"github.com/roach88/n1qlorm/internal/value"
)

// Attributes is a document with change tracking against the version last
// loaded or saved. It implements DirtyTracker.
type Attributes struct {
	original value.Document
	current  value.Document
}

// NewAttributes starts tracking doc. doc is copied.
func NewAttributes(doc value.Document) *Attributes {
	if doc == nil {
		doc = value.Document{}
	}
	return &Attributes{original: doc.Clone(), current: doc.Clone()}
}

// Get returns a field value.
func (a *Attributes) Get(field string) (any, bool) {
	v, ok := a.current[field]
	return v, ok
}

// Set changes a field.
func (a *Attributes) Set(field string, v any) {
	a.current[field] = v
}

// Unset deletes a field.
func (a *Attributes) Unset(field string) {
	delete(a.current, field)
}

// Document returns a copy of the current fields.
func (a *Attributes) Document() value.Document {
	return a.current.Clone()
}

// Dirty implements DirtyTracker.
func (a *Attributes) Dirty() value.Document {
	out := value.Document{}
	for k, v := range a.current {
		old, ok := a.original[k]
		if !ok || !value.Equal(old, v) {
			out[k] = v
		}
	}
	return out
}

// Removed implements DirtyTracker. Fields are sorted.
func (a *Attributes) Removed() []string {
	var out []string
	for k := range a.original {
		if _, ok := a.current[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// IsDirty reports whether anything changed.
func (a *Attributes) IsDirty() bool {
	return len(a.Dirty()) > 0 || len(a.Removed()) > 0
}

// Sync marks the current fields as saved.
func (a *Attributes) Sync() {
	a.original = a.current.Clone()
}
