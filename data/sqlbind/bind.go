package sqlbind

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrArgCountMismatch = errors.New("sqlbind: placeholder count does not match argument count")
	ErrMissingNamedArg  = errors.New("sqlbind: named placeholder has no value")
	ErrMarkerMismatch   = errors.New("sqlbind: placeholder style does not match parameters")
)

// Statement is driver-ready SQL with $n placeholders.
type Statement struct {
	SQL string
	// Args holds one argument list per execution. Single executions have
	// exactly one entry, batches one per set.
	Args  [][]any
	Batch bool
}

// Bind compiles rw into a Statement. Positional markers become $1..$n in
// order; each distinct named key gets one $n, reused by repeated markers.
// Without parameters %% still becomes % and any marker is an
// ErrArgCountMismatch.
func Bind(rw Rewritten) (Statement, error) {
	toks := tokenize(rw.Text, rw.Style)

	var (
		b          strings.Builder
		positional int
		names      []string
		slot       = map[string]int{}
	)
	b.Grow(len(rw.Text) + 8)
	for _, t := range toks {
		switch t.kind {
		case tokText:
			b.WriteString(t.text)
		case tokPercent:
			b.WriteByte('%')
		case tokPositional:
			positional++
			b.WriteString("$" + strconv.Itoa(positional))
		case tokNamed:
			n, ok := slot[t.name]
			if !ok {
				names = append(names, t.name)
				n = len(names)
				slot[t.name] = n
			}
			b.WriteString("$" + strconv.Itoa(n))
		}
	}

	if rw.Kind == KindNone {
		if positional > 0 || len(names) > 0 {
			return Statement{}, fmt.Errorf("%w: %d markers, no parameters", ErrArgCountMismatch, positional+len(names))
		}
		return Statement{SQL: b.String(), Args: [][]any{nil}}, nil
	}

	if positional > 0 && len(names) > 0 {
		return Statement{}, fmt.Errorf("%w: query mixes positional and named markers", ErrMarkerMismatch)
	}
	if rw.Kind.IsNamed() && positional > 0 {
		return Statement{}, fmt.Errorf("%w: %s parameters with positional markers", ErrMarkerMismatch, rw.Kind)
	}
	if !rw.Kind.IsNamed() && len(names) > 0 {
		return Statement{}, fmt.Errorf("%w: %s parameters with named markers", ErrMarkerMismatch, rw.Kind)
	}

	st := Statement{SQL: b.String(), Batch: rw.Kind.IsBatch()}

	switch rw.Kind {
	case KindScalar, KindPositional:
		if len(rw.Args) != positional {
			return Statement{}, fmt.Errorf("%w: %d markers, %d values", ErrArgCountMismatch, positional, len(rw.Args))
		}
		st.Args = [][]any{rw.Args}

	case KindPositionalBatch:
		st.Args = make([][]any, len(rw.Rows))
		for i, r := range rw.Rows {
			if len(r) != positional {
				return Statement{}, fmt.Errorf("%w: set %d has %d values for %d markers", ErrArgCountMismatch, i, len(r), positional)
			}
			st.Args[i] = r
		}

	case KindNamed:
		args, err := namedArgs(names, rw.Named)
		if err != nil {
			return Statement{}, err
		}
		st.Args = [][]any{args}

	case KindNamedBatch:
		st.Args = make([][]any, len(rw.NamedRows))
		for i, r := range rw.NamedRows {
			args, err := namedArgs(names, r)
			if err != nil {
				return Statement{}, fmt.Errorf("set %d: %w", i, err)
			}
			st.Args[i] = args
		}

	default:
		return Statement{}, ErrUnsupportedParams
	}
	return st, nil
}

func namedArgs(names []string, m map[string]any) ([]any, error) {
	args := make([]any, len(names))
	for i, n := range names {
		v, ok := m[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingNamedArg, n)
		}
		args[i] = v
	}
	return args, nil
}

// Prepare runs Normalize, Rewrite and Bind.
func Prepare(q string, raw any, style Style) (Params, Rewritten, Statement, error) {
	p, err := Normalize(raw)
	if err != nil {
		return Params{}, Rewritten{}, Statement{}, err
	}
	rw, err := Rewrite(q, p, style)
	if err != nil {
		return p, Rewritten{}, Statement{}, err
	}
	st, err := Bind(rw)
	if err != nil {
		return p, rw, Statement{}, err
	}
	return p, rw, st, nil
}
