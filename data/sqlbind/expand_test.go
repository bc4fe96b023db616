//go:build unit
// +build unit

package sqlbind_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vortex-fintech/pgexec/data/sqlbind"
)

func TestExpandPositional(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		query   string
		style   sqlbind.Style
		lengths map[int]int
		want    string
	}{
		{
			name:    "marker inside parens gets bare list",
			query:   "SELECT * FROM t WHERE id = %s AND tag IN (%s)",
			lengths: map[int]int{1: 3},
			want:    "SELECT * FROM t WHERE id = %s AND tag IN (%s,%s,%s)",
		},
		{
			name:    "bare marker gets parenthesized",
			query:   "SELECT * FROM t WHERE tag IN %s",
			lengths: map[int]int{0: 2},
			want:    "SELECT * FROM t WHERE tag IN (%s,%s)",
		},
		{
			name:    "parens with whitespace",
			query:   "SELECT * FROM t WHERE tag IN ( %s )",
			lengths: map[int]int{0: 2},
			want:    "SELECT * FROM t WHERE tag IN ( %s,%s )",
		},
		{
			name:    "several expansions keep later indices aligned",
			query:   "SELECT 1 WHERE a IN (%s) AND b = %s AND c IN (%s)",
			lengths: map[int]int{0: 2, 2: 3},
			want:    "SELECT 1 WHERE a IN (%s,%s) AND b = %s AND c IN (%s,%s,%s)",
		},
		{
			name:    "literal percent is not a marker",
			query:   "SELECT 1 WHERE name LIKE 'a%%' AND id IN (%s)",
			lengths: map[int]int{0: 2},
			want:    "SELECT 1 WHERE name LIKE 'a%%' AND id IN (%s,%s)",
		},
		{
			name:    "qmark style",
			query:   "SELECT 1 WHERE id IN (?) AND x = ?",
			style:   sqlbind.StyleQMark,
			lengths: map[int]int{0: 3},
			want:    "SELECT 1 WHERE id IN (?,?,?) AND x = ?",
		},
		{
			name:    "too few markers returns query unchanged",
			query:   "SELECT %s",
			lengths: map[int]int{1: 2},
			want:    "SELECT %s",
		},
		{
			name:  "empty plan is a no-op",
			query: "SELECT %s",
			want:  "SELECT %s",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := sqlbind.ExpandPositional(tc.query, tc.style, tc.lengths)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExpandPositional_EmptySequence(t *testing.T) {
	t.Parallel()

	_, err := sqlbind.ExpandPositional("SELECT 1 WHERE id IN (%s)", sqlbind.StyleFormat, map[int]int{0: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sqlbind.ErrEmptyExpansion))

	var ee *sqlbind.EmptyExpansionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 0, ee.Position)
	assert.Empty(t, ee.Key)
}

func TestExpandPositional_EmptyBeforeFailSoft(t *testing.T) {
	t.Parallel()

	// index 4 does not exist in the query; emptiness still wins
	_, err := sqlbind.ExpandPositional("SELECT %s", sqlbind.StyleFormat, map[int]int{4: 0})
	assert.ErrorIs(t, err, sqlbind.ErrEmptyExpansion)
}

func TestExpandNamed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		query   string
		lengths map[string]int
		want    string
	}{
		{
			name:    "bare marker gets parenthesized",
			query:   "DELETE FROM t WHERE id = %(id)s",
			lengths: map[string]int{"id": 3},
			want:    "DELETE FROM t WHERE id = (%(id_0)s,%(id_1)s,%(id_2)s)",
		},
		{
			name:    "wrapped marker",
			query:   "DELETE FROM t WHERE id IN (%(id)s)",
			lengths: map[string]int{"id": 2},
			want:    "DELETE FROM t WHERE id IN (%(id_0)s,%(id_1)s)",
		},
		{
			name:    "every occurrence expands",
			query:   "SELECT 1 WHERE a IN (%(k)s) OR b IN (%(k)s) AND c = %(other)s",
			lengths: map[string]int{"k": 2},
			want:    "SELECT 1 WHERE a IN (%(k_0)s,%(k_1)s) OR b IN (%(k_0)s,%(k_1)s) AND c = %(other)s",
		},
		{
			name:    "prefix keys are distinct",
			query:   "SELECT 1 WHERE a = %(id)s AND b = %(ids)s",
			lengths: map[string]int{"ids": 2},
			want:    "SELECT 1 WHERE a = %(id)s AND b = (%(ids_0)s,%(ids_1)s)",
		},
		{
			name:    "key absent from query",
			query:   "SELECT 1",
			lengths: map[string]int{"id": 2},
			want:    "SELECT 1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := sqlbind.ExpandNamed(tc.query, sqlbind.StyleFormat, tc.lengths)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExpandNamed_EmptySequence(t *testing.T) {
	t.Parallel()

	_, err := sqlbind.ExpandNamed("SELECT 1 WHERE id IN %(ids)s", sqlbind.StyleFormat, map[string]int{"ids": 0})
	var ee *sqlbind.EmptyExpansionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "ids", ee.Key)
	assert.Equal(t, -1, ee.Position)
	assert.ErrorIs(t, err, sqlbind.ErrEmptyExpansion)
	assert.Contains(t, err.Error(), `"ids"`)
}

func TestSubKey(t *testing.T) {
	assert.Equal(t, "id_0", sqlbind.SubKey("id", 0))
	assert.Equal(t, "tag_12", sqlbind.SubKey("tag", 12))
}
