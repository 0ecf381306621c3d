package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/n1qlorm/internal/dberr"
)

func TestPredicateSealed(t *testing.T) {
	// Compile-time check: every variant satisfies Predicate.
	var _ Predicate = (*Basic)(nil)
	var _ Predicate = (*In)(nil)
	var _ Predicate = (*InSub)(nil)
	var _ Predicate = (*Between)(nil)
	var _ Predicate = (*Null)(nil)
	var _ Predicate = (*Raw)(nil)
	var _ Predicate = (*AnyIn)(nil)
	var _ Predicate = (*Column)(nil)
	var _ Predicate = (*Nested)(nil)
}

func TestSetTarget(t *testing.T) {
	s := New("default")
	s.SetTarget("items")

	require.Len(t, s.Predicates, 1)
	b, ok := s.Predicates[0].(*Basic)
	require.True(t, ok)
	assert.Equal(t, "eloquent_type", b.Column)
	assert.Equal(t, "=", b.Operator)
	assert.Equal(t, "items", b.Value)
	assert.Equal(t, []any{"items"}, s.Flat())
}

func TestSetTarget_EmptyTypeAddsNoFilter(t *testing.T) {
	s := New("default")
	s.SetTarget("")

	assert.Empty(t, s.Predicates)
	assert.Empty(t, s.Flat())
}

func TestUseKeys_ThenUseIndex_Conflicts(t *testing.T) {
	s := New("default")
	require.NoError(t, s.UseKeys("a"))

	err := s.UseIndex("idx", IndexGSI)

	require.Error(t, err)
	assert.True(t, dberr.IsConflictingAccessPath(err))
	assert.Empty(t, s.Indexes, "failed call must not change state")
}

func TestUseKeys_EmptyMatchesNothing(t *testing.T) {
	s := New("default")
	s.SetTarget("items")

	require.NoError(t, s.UseKeys())
	require.NoError(t, s.UseKeys())

	assert.True(t, s.MatchesNothing)
	assert.Equal(t, AccessUnset, s.Mode())
	assert.False(t, s.OnlyTypeFilter())
	require.Len(t, s.Predicates, 2, "repeated empty lists add one predicate")
	assert.Equal(t, &Raw{SQL: "false", Conjunction: And}, s.Predicates[1])
	assert.True(t, s.Clone().MatchesNothing)
}

func TestUseIndex_ThenUseKeys_Conflicts(t *testing.T) {
	s := New("default")
	require.NoError(t, s.UseIndex("idx", IndexGSI))

	err := s.UseKeys("a")

	require.Error(t, err)
	assert.True(t, dberr.IsConflictingAccessPath(err))
	assert.Empty(t, s.Keys)
}

func TestAccessPath_RepeatIsIdempotent(t *testing.T) {
	s := New("default")
	require.NoError(t, s.UseKeys("a"))
	require.NoError(t, s.UseKeys("a", "b"))
	assert.Equal(t, []string{"a", "b"}, s.Keys)
	assert.False(t, s.SingleKey)
	assert.Equal(t, AccessKeys, s.Mode())

	s2 := New("default")
	require.NoError(t, s2.UseIndex("idx", IndexGSI))
	require.NoError(t, s2.UseIndex("idx", IndexGSI))
	require.NoError(t, s2.UseIndex("by_name", IndexView))
	assert.Len(t, s2.Indexes, 2)
	assert.Equal(t, AccessIndex, s2.Mode())
}

func TestFlat_CategoryOrder(t *testing.T) {
	s := New("default")
	s.AddBinding(BindHaving, "h")
	s.AddBinding(BindWhere, "w1")
	s.AddBinding(BindSelect, "s")
	s.AddBinding(BindWhere, "w2")

	assert.Equal(t, []any{"s", "w1", "w2", "h"}, s.Flat())
	assert.Equal(t, []any{"w1", "w2"}, s.Bindings(BindWhere))
}

func TestOnlyTypeFilter(t *testing.T) {
	tests := []struct {
		name  string
		build func(*State)
		want  bool
	}{
		{name: "no predicates", build: func(*State) {}, want: true},
		{name: "type only", build: func(s *State) { s.SetTarget("items") }, want: true},
		{
			name: "type plus field",
			build: func(s *State) {
				s.SetTarget("items")
				s.AddPredicate(&Basic{Column: "name", Operator: "=", Value: "x", Conjunction: And}, BindWhere, "x")
			},
			want: false,
		},
		{
			name: "unrelated single predicate",
			build: func(s *State) {
				s.AddPredicate(&Null{Column: "name", Conjunction: And}, BindWhere)
			},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New("default")
			tc.build(s)
			assert.Equal(t, tc.want, s.OnlyTypeFilter())
		})
	}
}

func TestClone_Independent(t *testing.T) {
	s := New("default")
	s.SetTarget("items")
	s.Aggregate = &Aggregate{Function: "count", Column: "*"}

	cp := s.Clone()
	cp.AddBinding(BindWhere, "extra")
	cp.Predicates = append(cp.Predicates, &Null{Column: "x"})
	cp.Aggregate.Column = "qty"

	assert.Equal(t, []any{"items"}, s.Flat())
	assert.Len(t, s.Predicates, 1)
	assert.Equal(t, "*", s.Aggregate.Column)
}

func TestSub_NoTypeFilter(t *testing.T) {
	s := New("travel")
	s.TypeField = "kind"
	s.SetTarget("hotel")

	sub := s.Sub()

	assert.Equal(t, "travel", sub.Collection)
	assert.Equal(t, "kind", sub.TypeField)
	assert.Empty(t, sub.Predicates)
	assert.Empty(t, sub.DocumentType)
}

func TestAccessModeString(t *testing.T) {
	assert.Equal(t, "unset", AccessUnset.String())
	assert.Equal(t, "keys", AccessKeys.String())
	assert.Equal(t, "index", AccessIndex.String())
}
