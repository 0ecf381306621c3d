package n1ql

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/queryir"
	"github.com/roach88/n1qlorm/internal/value"
)

const (
	defaultProjection = "select `default`.*, meta(`default`).`id` as `_id` from `default`"
	defaultReturning  = "returning `default`.*, meta(`default`).`id` as `_id`"
)

func testGrammar() *Grammar {
	return &Grammar{
		NewVar: func() string { return "v1" },
		NewKey: func(typ string) string { return typ + "::fixed" },
	}
}

func itemsState() *queryir.State {
	s := queryir.New("default")
	s.SetTarget("items")
	return s
}

func where(s *queryir.State, col, op string, v any) {
	s.AddPredicate(&queryir.Basic{Column: col, Operator: op, Value: v, Conjunction: queryir.And}, queryir.BindWhere, v)
}

func TestCompileSelect_RoundTrip(t *testing.T) {
	s := itemsState()
	where(s, "name", "=", "knife")

	stmt, err := testGrammar().CompileSelect(s)

	require.NoError(t, err)
	assert.Equal(t, defaultProjection+" where `eloquent_type` = ? and `name` = ?", stmt.Text)
	assert.Equal(t, []any{"items", "knife"}, stmt.Bindings)
}

func TestCompileSelect_Clauses(t *testing.T) {
	tests := []struct {
		name     string
		build    func(*queryir.State)
		want     string
		bindings []any
	}{
		{
			name:     "type only",
			build:    func(*queryir.State) {},
			want:     defaultProjection + " where `eloquent_type` = ?",
			bindings: []any{"items"},
		},
		{
			name: "single key",
			build: func(s *queryir.State) {
				require.NoError(t, s.UseKeys("items::1"))
			},
			want:     defaultProjection + ` use keys "items::1" where ` + "`eloquent_type` = ?",
			bindings: []any{"items"},
		},
		{
			name: "key list",
			build: func(s *queryir.State) {
				require.NoError(t, s.UseKeys("a", "b"))
			},
			want:     defaultProjection + ` use keys ["a","b"] where ` + "`eloquent_type` = ?",
			bindings: []any{"items"},
		},
		{
			name: "index hints",
			build: func(s *queryir.State) {
				require.NoError(t, s.UseIndex("by_name", queryir.IndexGSI))
				require.NoError(t, s.UseIndex("legacy", queryir.IndexView))
			},
			want:     defaultProjection + " use index (`by_name` using GSI, `legacy` using VIEW) where `eloquent_type` = ?",
			bindings: []any{"items"},
		},
		{
			name: "native key in",
			build: func(s *queryir.State) {
				s.AddPredicate(&queryir.In{Column: "_id", Values: []any{"x", "y"}, Conjunction: queryir.And}, queryir.BindWhere, "x", "y")
			},
			want:     defaultProjection + " where `eloquent_type` = ? and meta(`default`).`id` in [?, ?]",
			bindings: []any{"items", "x", "y"},
		},
		{
			name: "native key comparison",
			build: func(s *queryir.State) {
				where(s, "_id", "!=", "x")
			},
			want:     defaultProjection + " where `eloquent_type` = ? and meta(`default`).`id` != ?",
			bindings: []any{"items", "x"},
		},
		{
			name: "not in and empty in",
			build: func(s *queryir.State) {
				s.AddPredicate(&queryir.In{Column: "size", Values: []any{1}, Not: true, Conjunction: queryir.And}, queryir.BindWhere, 1)
				s.AddPredicate(&queryir.In{Column: "tag", Conjunction: queryir.Or}, queryir.BindWhere)
			},
			want:     defaultProjection + " where `eloquent_type` = ? and `size` not in [?] or `tag` in []",
			bindings: []any{"items", 1},
		},
		{
			name: "null tests",
			build: func(s *queryir.State) {
				s.AddPredicate(&queryir.Null{Column: "note", Conjunction: queryir.And}, queryir.BindWhere)
				s.AddPredicate(&queryir.Null{Column: "_id", Not: true, Conjunction: queryir.And}, queryir.BindWhere)
			},
			want: defaultProjection + " where `eloquent_type` = ? and (`note` is null or `note` is missing)" +
				" and (meta(`default`).`id` is not null and meta(`default`).`id` is not missing)",
			bindings: []any{"items"},
		},
		{
			name: "between",
			build: func(s *queryir.State) {
				s.AddPredicate(&queryir.Between{Column: "price", Low: 1, High: 9, Conjunction: queryir.And}, queryir.BindWhere, 1, 9)
				s.AddPredicate(&queryir.Between{Column: "qty", Low: 0, High: 2, Not: true, Conjunction: queryir.And}, queryir.BindWhere, 0, 2)
			},
			want:     defaultProjection + " where `eloquent_type` = ? and `price` between ? and ? and `qty` not between ? and ?",
			bindings: []any{"items", 1, 9, 0, 2},
		},
		{
			name: "any in",
			build: func(s *queryir.State) {
				s.AddPredicate(&queryir.AnyIn{Column: "tag_ids", Values: []any{"t1", "t2"}, Conjunction: queryir.And}, queryir.BindWhere, "t1", "t2")
			},
			want:     defaultProjection + " where `eloquent_type` = ? and any `v1` in `tag_ids` satisfies `v1` in [?, ?] end",
			bindings: []any{"items", "t1", "t2"},
		},
		{
			name: "raw and column",
			build: func(s *queryir.State) {
				s.AddPredicate(&queryir.Raw{SQL: "lower(`name`) = ?", Values: []any{"a"}, Conjunction: queryir.And}, queryir.BindWhere, "a")
				s.AddPredicate(&queryir.Column{First: "sold", Operator: "<", Second: "stock", Conjunction: queryir.Or}, queryir.BindWhere)
			},
			want:     defaultProjection + " where `eloquent_type` = ? and lower(`name`) = ? or `sold` < `stock`",
			bindings: []any{"items", "a"},
		},
		{
			name: "nested group",
			build: func(s *queryir.State) {
				sub := s.Sub()
				where(sub, "a", "=", 1)
				sub.AddPredicate(&queryir.Basic{Column: "b", Operator: "=", Value: 2, Conjunction: queryir.Or}, queryir.BindWhere, 2)
				s.AddPredicate(&queryir.Nested{Sub: sub, Conjunction: queryir.And}, queryir.BindWhere, sub.Flat()...)
			},
			want:     defaultProjection + " where `eloquent_type` = ? and (`a` = ? or `b` = ?)",
			bindings: []any{"items", 1, 2},
		},
		{
			name: "in sub-select",
			build: func(s *queryir.State) {
				sub := s.Sub()
				sub.SetTarget("users")
				sub.Projections = []string{"_id"}
				sub.RawSelect = true
				where(sub, "active", "=", true)
				s.AddPredicate(&queryir.InSub{Column: "owner_id", Sub: sub, Conjunction: queryir.And}, queryir.BindWhere, sub.Flat()...)
			},
			want: defaultProjection + " where `eloquent_type` = ? and `owner_id` in " +
				"(select raw meta(`default`).`id` from `default` where `eloquent_type` = ? and `active` = ?)",
			bindings: []any{"items", "users", true},
		},
		{
			name: "order limit offset",
			build: func(s *queryir.State) {
				s.Orders = []queryir.Order{{Column: "price", Direction: "DESC"}, {Column: "name"}}
				s.Limit = 2
				s.Offset = 4
			},
			want:     defaultProjection + " where `eloquent_type` = ? order by `price` desc, `name` asc limit 2 offset 4",
			bindings: []any{"items"},
		},
		{
			name: "group and having",
			build: func(s *queryir.State) {
				s.Projections = []string{"maker"}
				s.Groups = []string{"maker"}
				s.Havings = []queryir.Having{{Column: "total", Operator: ">", Conjunction: queryir.And}, {Raw: "count(*) > 1", Conjunction: queryir.Or}}
				s.AddBinding(queryir.BindHaving, 3)
			},
			want:     "select `maker` from `default` where `eloquent_type` = ? group by `maker` having `total` > ? or count(*) > 1",
			bindings: []any{"items", 3},
		},
		{
			name: "distinct projection dedupe",
			build: func(s *queryir.State) {
				s.Distinct = true
				s.Projections = []string{"name", "name", "_id", "*"}
			},
			want:     "select distinct `name`, meta(`default`).`id` as `_id`, `default`.* from `default` where `eloquent_type` = ?",
			bindings: []any{"items"},
		},
		{
			name: "aggregate",
			build: func(s *queryir.State) {
				s.Aggregate = &queryir.Aggregate{Function: "COUNT", Column: "*"}
			},
			want:     "select count(*) as `aggregate` from `default` where `eloquent_type` = ?",
			bindings: []any{"items"},
		},
		{
			name: "aggregate column",
			build: func(s *queryir.State) {
				s.Aggregate = &queryir.Aggregate{Function: "sum", Column: "price"}
			},
			want:     "select sum(`price`) as `aggregate` from `default` where `eloquent_type` = ?",
			bindings: []any{"items"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := itemsState()
			tc.build(s)

			stmt, err := testGrammar().CompileSelect(s)

			require.NoError(t, err)
			assert.Equal(t, tc.want, stmt.Text)
			assert.Equal(t, tc.bindings, stmt.Bindings)
		})
	}
}

func TestCompileSelect_NoTypeFilter(t *testing.T) {
	s := queryir.New("travel")

	stmt, err := testGrammar().CompileSelect(s)

	require.NoError(t, err)
	assert.Equal(t, "select `travel`.*, meta(`travel`).`id` as `_id` from `travel`", stmt.Text)
	assert.Empty(t, stmt.Bindings)
}

func TestCompileSelect_AliasOnlyInProjection(t *testing.T) {
	s := itemsState()
	where(s, "a as b", "=", 1)
	s.Groups = []string{"c as d"}
	s.Orders = []queryir.Order{{Column: "e as f"}}
	s.Projections = []string{"name as n"}

	stmt, err := testGrammar().CompileSelect(s)

	require.NoError(t, err)
	assert.Equal(t, "select `name` as `n` from `default` where `eloquent_type` = ? and `a as b` = ? group by `c as d` order by `e as f` asc", stmt.Text)
}

func TestCompileSelect_NativeKeyNeverBare(t *testing.T) {
	s := itemsState()
	where(s, "_id", "<>", "a")
	s.AddPredicate(&queryir.In{Column: "_id", Values: []any{"a"}, Conjunction: queryir.And}, queryir.BindWhere, "a")
	s.AddPredicate(&queryir.In{Column: "_id", Values: []any{"b"}, Not: true, Conjunction: queryir.And}, queryir.BindWhere, "b")
	s.AddPredicate(&queryir.Null{Column: "_id", Conjunction: queryir.And}, queryir.BindWhere)
	s.Projections = []string{"_id", "name"}

	stmt, err := testGrammar().CompileSelect(s)

	require.NoError(t, err)
	assert.NotContains(t, stmt.Text, "`_id` ")
	assert.NotRegexp(t, regexp.MustCompile("[^ ]`_id`"), stmt.Text)
	assert.Contains(t, stmt.Text, "meta(`default`).`id` in [?]")
	assert.Contains(t, stmt.Text, "meta(`default`).`id` not in [?]")
}

func TestCompileSelect_AnyInFreshVariable(t *testing.T) {
	s := itemsState()
	s.AddPredicate(&queryir.AnyIn{Column: "tags", Values: []any{"a"}, Conjunction: queryir.And}, queryir.BindWhere, "a")

	stmt, err := NewGrammar().CompileSelect(s)

	require.NoError(t, err)
	assert.Regexp(t, "any `(v[0-9a-f]{12})` in `tags` satisfies `v[0-9a-f]{12}` in \\[\\?\\] end$", stmt.Text)
}

func TestCompileSelect_AccessPathErrors(t *testing.T) {
	t.Run("conflict set by hand", func(t *testing.T) {
		s := itemsState()
		s.Keys = []string{"a"}
		s.Indexes = []queryir.IndexHint{{Name: "idx", Kind: queryir.IndexGSI}}

		_, err := testGrammar().CompileSelect(s)

		assert.True(t, dberr.IsConflictingAccessPath(err))
	})

	t.Run("unsupported kind", func(t *testing.T) {
		s := itemsState()
		require.NoError(t, s.UseIndex("fts_idx", queryir.IndexKind("FTS")))

		_, err := testGrammar().CompileSelect(s)

		assert.True(t, dberr.IsUnsupportedIndexKind(err))
	})

	t.Run("compile use rechecks", func(t *testing.T) {
		s := itemsState()
		s.Keys = []string{"a"}
		s.Indexes = []queryir.IndexHint{{Name: "idx", Kind: queryir.IndexGSI}}

		_, err := testGrammar().CompileUse(s)

		assert.True(t, dberr.IsConflictingAccessPath(err))
	})
}

func TestCompileUpdate(t *testing.T) {
	s := itemsState()
	require.NoError(t, s.UseKeys("items::1"))

	stmt, err := testGrammar().CompileUpdate(s, value.Document{
		"qty":   3,
		"note1": value.Missing,
		"meta":  map[string]any{"a": 1, "gone": value.Missing},
	})

	require.NoError(t, err)
	assert.Equal(t,
		"update `default` use keys \"items::1\" set `meta` = ?, `qty` = ? unset `note1` where `eloquent_type` = ? "+defaultReturning,
		stmt.Text)
	assert.Equal(t, []any{map[string]any{"a": 1}, 3, "items"}, stmt.Bindings)
}

func TestCompileUpdate_NoValues(t *testing.T) {
	_, err := testGrammar().CompileUpdate(itemsState(), value.Document{})
	assert.True(t, dberr.IsMisuse(err))
}

func TestCompileUpdate_ReturningColumns(t *testing.T) {
	s := itemsState()
	where(s, "name", "=", "knife")
	s.Returning = []string{"name", "_id"}
	s.Limit = 1

	stmt, err := testGrammar().CompileUpdate(s, value.Document{"qty": 1})

	require.NoError(t, err)
	assert.Equal(t,
		"update `default` set `qty` = ? where `eloquent_type` = ? and `name` = ? limit 1 returning `name`, meta(`default`).`id` as `_id`",
		stmt.Text)
	assert.Equal(t, []any{1, "items", "knife"}, stmt.Bindings)
}

func TestCompileUnset(t *testing.T) {
	s := itemsState()
	require.NoError(t, s.UseKeys("items::1"))

	stmt, err := testGrammar().CompileUnset(s, []string{"note1"})

	require.NoError(t, err)
	assert.Equal(t,
		"update `default` use keys \"items::1\" unset `note1` where `eloquent_type` = ? "+defaultReturning,
		stmt.Text)
	assert.NotContains(t, stmt.Text, " set ")
	assert.Equal(t, []any{"items"}, stmt.Bindings)

	_, err = testGrammar().CompileUnset(s, nil)
	assert.True(t, dberr.IsMisuse(err))
}

func TestCompileUpdateEmbedded(t *testing.T) {
	s := queryir.New("default")
	s.SetTarget("orders")
	require.NoError(t, s.UseKeys("orders::1"))

	stmt, err := testGrammar().CompileUpdateEmbedded(s, EmbeddedUpdate{
		Array:    "lines",
		KeyField: "id",
		Key:      7,
		Values:   value.Document{"qty": 2, "note": value.Missing},
	})

	require.NoError(t, err)
	assert.Equal(t,
		"update `default` use keys \"orders::1\""+
			" set `v1`.`qty` = ? for `v1` in `lines` when `v1`.`id` = ? end"+
			" unset `v1`.`note` for `v1` in `lines` when `v1`.`id` = ? end"+
			" where `eloquent_type` = ? "+defaultReturning,
		stmt.Text)
	assert.Equal(t, []any{2, 7, 7, "orders"}, stmt.Bindings)
}

func TestCompileDelete(t *testing.T) {
	s := itemsState()
	require.NoError(t, s.UseKeys("a", "b"))

	stmt, err := testGrammar().CompileDelete(s)

	require.NoError(t, err)
	assert.Equal(t, "delete from `default` use keys [\"a\",\"b\"] where `eloquent_type` = ? "+defaultReturning, stmt.Text)
	assert.Equal(t, []any{"items"}, stmt.Bindings)
}

func TestCompileDelete_WithIndexAndLimit(t *testing.T) {
	s := itemsState()
	require.NoError(t, s.UseIndex("by_qty", queryir.IndexGSI))
	where(s, "qty", "<", 1)
	s.Limit = 10

	stmt, err := testGrammar().CompileDelete(s)

	require.NoError(t, err)
	assert.Equal(t,
		"delete from `default` use index (`by_qty` using GSI) where `eloquent_type` = ? and `qty` < ? limit 10 "+defaultReturning,
		stmt.Text)
}

func TestCompileInsert_IsMisuse(t *testing.T) {
	_, err := testGrammar().CompileInsert(itemsState(), []value.Document{{"a": 1}})

	require.Error(t, err)
	assert.True(t, dberr.IsMisuse(err))
}

func TestCompileLegacyInsert(t *testing.T) {
	t.Run("generated key", func(t *testing.T) {
		stmt, err := testGrammar().CompileLegacyInsert(itemsState(), value.Document{"name": "knife", "x": value.Missing})

		require.NoError(t, err)
		assert.Equal(t, "insert into `default` (key, value) values (?, ?) "+defaultReturning, stmt.Text)
		assert.Equal(t, "items::fixed", stmt.Key)
		assert.Equal(t, []any{"items::fixed", value.Document{"name": "knife", "eloquent_type": "items"}}, stmt.Bindings)
	})

	t.Run("explicit key", func(t *testing.T) {
		stmt, err := testGrammar().CompileLegacyInsert(itemsState(), value.Document{"_id": "items::k", "name": "fork"})

		require.NoError(t, err)
		assert.Equal(t, "items::k", stmt.Key)
		assert.Equal(t, value.Document{"name": "fork", "eloquent_type": "items"}, stmt.Bindings[1])
	})

	t.Run("default generator", func(t *testing.T) {
		stmt, err := NewGrammar().CompileLegacyInsert(itemsState(), value.Document{"name": "spoon"})

		require.NoError(t, err)
		assert.Regexp(t, `^items::[0-9a-f-]{36}$`, stmt.Key)
	})

	t.Run("unencodable", func(t *testing.T) {
		_, err := testGrammar().CompileLegacyInsert(itemsState(), value.Document{"f": func() {}})
		assert.True(t, dberr.IsSerialization(err))
	})
}

func TestGenerateKey(t *testing.T) {
	assert.Regexp(t, `^users::[0-9a-f-]{36}$`, GenerateKey("users"))
	assert.Regexp(t, `^[0-9a-f-]{36}$`, GenerateKey(""))
	assert.NotEqual(t, GenerateKey("a"), GenerateKey("a"))
}
