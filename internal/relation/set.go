package relation

import (
	"context"
	"sort"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/value"
)

// Set holds the relations of one model by name.
type Set struct {
	byName map[string]Relation
}

// NewSet builds a set; duplicate names are an error.
func NewSet(rels ...Relation) (*Set, error) {
	s := &Set{byName: make(map[string]Relation, len(rels))}
	for _, r := range rels {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers r.
func (s *Set) Add(r Relation) error {
	if _, dup := s.byName[r.Name()]; dup {
		return dberr.New(dberr.CodeMisuse, "relation %q declared twice", r.Name())
	}
	s.byName[r.Name()] = r
	return nil
}

// Get returns the relation named name.
func (s *Set) Get(name string) (Relation, error) {
	r, ok := s.byName[name]
	if !ok {
		return nil, dberr.New(dberr.CodeMisuse, "no relation named %q", name)
	}
	return r, nil
}

// Names returns the relation names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// With eager-loads the named relations and stores the results on each
// parent under the relation name: a document (or nil) for single kinds,
// an array of documents otherwise. Parents are modified in place.
func (s *Set) With(ctx context.Context, conn *engine.Connection, parents []value.Document, names ...string) error {
	for _, name := range names {
		r, err := s.Get(name)
		if err != nil {
			return err
		}
		loaded, err := r.Eager(ctx, conn, parents)
		if err != nil {
			return err
		}
		for _, p := range parents {
			pk, err := keyOf(p)
			if err != nil {
				return err
			}
			attach(p, r, loaded[pk])
		}
	}
	return nil
}

func attach(parent value.Document, r Relation, docs []value.Document) {
	if r.Kind().Single() {
		if len(docs) == 0 {
			parent[r.Name()] = nil
			return
		}
		parent[r.Name()] = docs[0]
		return
	}
	arr := make([]any, len(docs))
	for i, d := range docs {
		arr[i] = d
	}
	parent[r.Name()] = arr
}
