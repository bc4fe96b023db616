package sqlbind

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var ErrEmptyExpansion = errors.New("sqlbind: cannot expand empty sequence for SQL parameter")

// EmptyExpansionError reports a zero-length sequence parameter.
// An `IN ()` list is invalid SQL, so this is never emitted silently.
type EmptyExpansionError struct {
	Position int    // zero-based marker index, -1 for named parameters
	Key      string // named parameter key, empty for positional
}

func (e *EmptyExpansionError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: key %q", ErrEmptyExpansion, e.Key)
	}
	return fmt.Sprintf("%s: position %d", ErrEmptyExpansion, e.Position)
}

func (e *EmptyExpansionError) Is(target error) bool { return target == ErrEmptyExpansion }

// ExpandPositional replaces each positional marker whose zero-based index
// is in lengths with a group of that many markers. Markers already inside
// parentheses get a bare list, others get a parenthesized one.
//
// If q has fewer markers than the highest requested index needs, q is
// returned unchanged; Bind then reports the count mismatch.
func ExpandPositional(q string, style Style, lengths map[int]int) (string, error) {
	if len(lengths) == 0 {
		return q, nil
	}
	idx := make([]int, 0, len(lengths))
	for i := range lengths {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	for _, i := range idx {
		if lengths[i] <= 0 {
			return "", &EmptyExpansionError{Position: i}
		}
	}

	toks := tokenize(q, style)
	markers := 0
	for _, t := range toks {
		if t.kind == tokPositional {
			markers++
		}
	}
	if markers < idx[len(idx)-1]+1 {
		return q, nil
	}

	var b strings.Builder
	b.Grow(len(q) + 4*len(lengths))
	pos := 0
	for i, t := range toks {
		if t.kind != tokPositional {
			b.WriteString(t.text)
			continue
		}
		n, ok := lengths[pos]
		pos++
		if !ok {
			b.WriteString(t.text)
			continue
		}
		b.WriteString(group(slices.Repeat([]string{style.marker()}, n), !wrapped(toks, i)))
	}
	return b.String(), nil
}

// ExpandNamed replaces every %(key)s marker whose key is in lengths with
// a group of %(key_0)s .. %(key_{n-1})s markers.
func ExpandNamed(q string, style Style, lengths map[string]int) (string, error) {
	if len(lengths) == 0 {
		return q, nil
	}
	keys := make([]string, 0, len(lengths))
	for k := range lengths {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if lengths[k] <= 0 {
			return "", &EmptyExpansionError{Position: -1, Key: k}
		}
	}

	toks := tokenize(q, style)
	var b strings.Builder
	b.Grow(len(q) + 8*len(lengths))
	for i, t := range toks {
		n, ok := lengths[t.name]
		if t.kind != tokNamed || !ok {
			b.WriteString(t.text)
			continue
		}
		markers := make([]string, n)
		for j := range markers {
			markers[j] = namedMarker(SubKey(t.name, j))
		}
		b.WriteString(group(markers, !wrapped(toks, i)))
	}
	return b.String(), nil
}

// SubKey is the key of the i-th element of an expanded named parameter.
func SubKey(key string, i int) string {
	return key + "_" + strconv.Itoa(i)
}
