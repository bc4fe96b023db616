//go:build unit
// +build unit

package sqlbind_test

import (
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vortex-fintech/pgexec/data/sqlbind"
)

type money int64

func (m money) Value() (driver.Value, error) { return int64(m), nil }

type tags []string

func (t tags) Value() (driver.Value, error) { return "{" + t[0] + "}", nil }

func TestNormalize_Kinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  any
		kind sqlbind.Kind
		sets int
	}{
		{"nil", nil, sqlbind.KindNone, 0},
		{"int scalar", 5, sqlbind.KindScalar, 1},
		{"string scalar", "abc", sqlbind.KindScalar, 1},
		{"bytes scalar", []byte("abc"), sqlbind.KindScalar, 1},
		{"valuer scalar", money(10), sqlbind.KindScalar, 1},
		{"valuer slice scalar", tags{"a"}, sqlbind.KindScalar, 1},
		{"positional", []any{5, "x"}, sqlbind.KindPositional, 1},
		{"typed positional", []int{1, 2}, sqlbind.KindPositional, 1},
		{"positional with later sequence", []any{5, []string{"a", "b"}}, sqlbind.KindPositional, 1},
		{"empty sequence", []any{}, sqlbind.KindPositional, 1},
		{"array", [2]int{1, 2}, sqlbind.KindPositional, 1},
		{"named", map[string]any{"id": 1}, sqlbind.KindNamed, 1},
		{"typed named", map[string]int{"id": 1}, sqlbind.KindNamed, 1},
		{"positional batch", [][]any{{1, "a"}, {2, "b"}}, sqlbind.KindPositionalBatch, 2},
		{"typed positional batch", [][]int{{1, 2}, {3, 4}, {5, 6}}, sqlbind.KindPositionalBatch, 3},
		{"batch of any", []any{[]any{1}, []int{2}}, sqlbind.KindPositionalBatch, 2},
		{"named batch", []map[string]any{{"id": 1}, {"id": 2}}, sqlbind.KindNamedBatch, 2},
		{"named batch of any", []any{map[string]any{"id": 1}}, sqlbind.KindNamedBatch, 1},
		{"params passthrough", sqlbind.Named(map[string]any{"a": 1}), sqlbind.KindNamed, 1},
		{"nil params pointer", (*sqlbind.Params)(nil), sqlbind.KindNone, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := sqlbind.Normalize(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, p.Kind())
			assert.Equal(t, tc.sets, p.Sets())
		})
	}
}

func TestNormalize_Values(t *testing.T) {
	t.Parallel()

	p, err := sqlbind.Normalize(5)
	require.NoError(t, err)
	assert.Equal(t, []any{5}, p.Args())

	p, err = sqlbind.Normalize([]int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, p.Args())

	p, err = sqlbind.Normalize(map[string]int{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 7}, p.Map())

	p, err = sqlbind.Normalize([][]int{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{1, 2}, {3, 4}}, p.Rows())
}

func TestNormalize_MixedBatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  any
	}{
		{"sequence then map", []any{[]any{1}, map[string]any{"a": 1}}},
		{"map then sequence", []any{map[string]any{"a": 1}, []any{1}}},
		{"sequence then scalar", []any{[]string{"a"}, 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := sqlbind.Normalize(tc.raw)
			assert.ErrorIs(t, err, sqlbind.ErrMixedBatch)
		})
	}
}

func TestKind(t *testing.T) {
	assert.True(t, sqlbind.KindPositionalBatch.IsBatch())
	assert.True(t, sqlbind.KindNamedBatch.IsBatch())
	assert.False(t, sqlbind.KindPositional.IsBatch())
	assert.True(t, sqlbind.KindNamed.IsNamed())
	assert.False(t, sqlbind.KindScalar.IsNamed())
	assert.Equal(t, "named_batch", sqlbind.KindNamedBatch.String())
	assert.Equal(t, "kind(42)", sqlbind.Kind(42).String())
}
