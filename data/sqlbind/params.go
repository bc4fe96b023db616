package sqlbind

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrUnsupportedParams = errors.New("sqlbind: unsupported parameter type")
	ErrMixedBatch        = errors.New("sqlbind: batch mixes positional and named parameter sets")
)

// Kind tags the shape of a Params value.
type Kind uint8

const (
	KindNone Kind = iota
	KindScalar
	KindPositional
	KindNamed
	KindPositionalBatch
	KindNamedBatch
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindScalar:
		return "scalar"
	case KindPositional:
		return "positional"
	case KindNamed:
		return "named"
	case KindPositionalBatch:
		return "positional_batch"
	case KindNamedBatch:
		return "named_batch"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// IsBatch reports whether k describes several parameter sets.
func (k Kind) IsBatch() bool {
	return k == KindPositionalBatch || k == KindNamedBatch
}

// IsNamed reports whether k binds by key.
func (k Kind) IsNamed() bool {
	return k == KindNamed || k == KindNamedBatch
}

// Params is the normalized parameter argument of one execution.
// The zero value is KindNone.
type Params struct {
	kind      Kind
	args      []any
	named     map[string]any
	rows      [][]any
	namedRows []map[string]any
}

func None() Params { return Params{} }

// Scalar binds v as a one-element positional tuple.
func Scalar(v any) Params {
	return Params{kind: KindScalar, args: []any{v}}
}

func Positional(args ...any) Params {
	return Params{kind: KindPositional, args: args}
}

func Named(m map[string]any) Params {
	return Params{kind: KindNamed, named: m}
}

func PositionalBatch(rows ...[]any) Params {
	return Params{kind: KindPositionalBatch, rows: rows}
}

func NamedBatch(rows ...map[string]any) Params {
	return Params{kind: KindNamedBatch, namedRows: rows}
}

func (p Params) Kind() Kind { return p.kind }

// Sets returns the number of parameter sets: 0 for none, 1 for a single
// set, the row count for batches.
func (p Params) Sets() int {
	switch p.kind {
	case KindNone:
		return 0
	case KindPositionalBatch:
		return len(p.rows)
	case KindNamedBatch:
		return len(p.namedRows)
	default:
		return 1
	}
}

// Args returns the positional values of a scalar or positional set.
func (p Params) Args() []any { return p.args }

// Map returns the values of a named set.
func (p Params) Map() map[string]any { return p.named }

// Rows returns the sets of a positional batch.
func (p Params) Rows() [][]any { return p.rows }

// NamedRows returns the sets of a named batch.
func (p Params) NamedRows() []map[string]any { return p.namedRows }

// Normalize classifies raw:
//
//   - nil is KindNone; a Params value is returned as is.
//   - a string-keyed map is KindNamed.
//   - a non-empty slice or array whose first element is a sequence or a
//     string-keyed map is a batch shaped like that first element.
//   - any other slice or array is KindPositional.
//   - everything else is KindScalar.
//
// []byte, byte arrays and driver.Valuer implementations are values, not
// sequences.
func Normalize(raw any) (Params, error) {
	switch v := raw.(type) {
	case nil:
		return None(), nil
	case Params:
		return v, nil
	case *Params:
		if v == nil {
			return None(), nil
		}
		return *v, nil
	case map[string]any:
		return Named(v), nil
	case []map[string]any:
		if len(v) == 0 {
			return Positional(), nil
		}
		return NamedBatch(v...), nil
	case [][]any:
		if len(v) == 0 {
			return Positional(), nil
		}
		return PositionalBatch(v...), nil
	}

	if isNamedMap(raw) {
		m, err := toMap(raw)
		if err != nil {
			return Params{}, err
		}
		return Named(m), nil
	}
	if !isSequence(raw) {
		return Scalar(raw), nil
	}

	rv := reflect.ValueOf(raw)
	if rv.Len() == 0 {
		return Positional(), nil
	}
	first := rv.Index(0).Interface()
	switch {
	case isSequence(first):
		rows := make([][]any, rv.Len())
		for i := range rows {
			el := rv.Index(i).Interface()
			if !isSequence(el) {
				return Params{}, fmt.Errorf("%w: element %d is %T", ErrMixedBatch, i, el)
			}
			rows[i] = spread(el)
		}
		return PositionalBatch(rows...), nil
	case isNamedMap(first):
		rows := make([]map[string]any, rv.Len())
		for i := range rows {
			el := rv.Index(i).Interface()
			if !isNamedMap(el) {
				return Params{}, fmt.Errorf("%w: element %d is %T", ErrMixedBatch, i, el)
			}
			m, err := toMap(el)
			if err != nil {
				return Params{}, err
			}
			rows[i] = m
		}
		return NamedBatch(rows...), nil
	default:
		return Positional(spread(raw)...), nil
	}
}

var valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

// isSequence reports whether v should be expanded into an IN-list.
func isSequence(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	if t.Implements(valuerType) {
		return false
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem().Kind() != reflect.Uint8
	default:
		return false
	}
}

func isNamedMap(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	return t.Kind() == reflect.Map && t.Key().Kind() == reflect.String && !t.Implements(valuerType)
}

func seqLen(v any) int {
	return reflect.ValueOf(v).Len()
}

// spread copies the elements of a slice or array into []any.
func spread(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func toMap(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedParams, v)
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, nil
}
