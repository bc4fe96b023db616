package sqlbind

import "fmt"

// Rewritten is a query whose sequence parameters have been expanded,
// together with the flattened values for every parameter set.
type Rewritten struct {
	Text  string
	Style Style
	Kind  Kind

	// Exactly one of the following is populated, depending on Kind.
	Args       []any            // scalar, positional
	Named      map[string]any   // named
	Rows       [][]any          // positional batch
	NamedRows  []map[string]any // named batch
	Expansions int              // number of expanded parameters
}

// Rewrite expands sequence parameters of p into q. For batches the
// expansion plan comes from the first set only; a later set whose
// sequence lengths differ from it fails with ErrArgCountMismatch.
func Rewrite(q string, p Params, style Style) (Rewritten, error) {
	rw := Rewritten{Text: q, Style: style, Kind: p.Kind()}

	switch p.Kind() {
	case KindNone:
		return rw, nil

	case KindScalar:
		rw.Args = p.Args()
		return rw, nil

	case KindPositional:
		plan := positionalPlan(p.Args())
		text, err := ExpandPositional(q, style, plan)
		if err != nil {
			return Rewritten{}, err
		}
		rw.Text, rw.Expansions = text, len(plan)
		rw.Args = flattenPositional(p.Args(), plan)
		return rw, nil

	case KindNamed:
		plan := namedPlan(p.Map())
		text, err := ExpandNamed(q, style, plan)
		if err != nil {
			return Rewritten{}, err
		}
		rw.Text, rw.Expansions = text, len(plan)
		rw.Named = flattenNamed(p.Map(), plan)
		return rw, nil

	case KindPositionalBatch:
		rows := p.Rows()
		if len(rows) == 0 {
			return rw, nil
		}
		plan := positionalPlan(rows[0])
		text, err := ExpandPositional(q, style, plan)
		if err != nil {
			return Rewritten{}, err
		}
		rw.Text, rw.Expansions = text, len(plan)
		rw.Rows = make([][]any, len(rows))
		for i, r := range rows {
			for idx, n := range plan {
				if idx < len(r) && isSequence(r[idx]) && seqLen(r[idx]) != n {
					return Rewritten{}, fmt.Errorf("%w: set %d: parameter %d has %d values, first set has %d", ErrArgCountMismatch, i, idx, seqLen(r[idx]), n)
				}
			}
			rw.Rows[i] = flattenPositional(r, plan)
		}
		return rw, nil

	case KindNamedBatch:
		rows := p.NamedRows()
		if len(rows) == 0 {
			return rw, nil
		}
		plan := namedPlan(rows[0])
		text, err := ExpandNamed(q, style, plan)
		if err != nil {
			return Rewritten{}, err
		}
		rw.Text, rw.Expansions = text, len(plan)
		rw.NamedRows = make([]map[string]any, len(rows))
		for i, r := range rows {
			for k, n := range plan {
				if v, ok := r[k]; ok && isSequence(v) && seqLen(v) != n {
					return Rewritten{}, fmt.Errorf("%w: set %d: %q has %d values, first set has %d", ErrArgCountMismatch, i, k, seqLen(v), n)
				}
			}
			rw.NamedRows[i] = flattenNamed(r, plan)
		}
		return rw, nil
	}
	return Rewritten{}, ErrUnsupportedParams
}

func positionalPlan(args []any) map[int]int {
	var plan map[int]int
	for i, v := range args {
		if !isSequence(v) {
			continue
		}
		if plan == nil {
			plan = make(map[int]int)
		}
		plan[i] = seqLen(v)
	}
	return plan
}

func namedPlan(m map[string]any) map[string]int {
	var plan map[string]int
	for k, v := range m {
		if !isSequence(v) {
			continue
		}
		if plan == nil {
			plan = make(map[string]int)
		}
		plan[k] = seqLen(v)
	}
	return plan
}

func flattenPositional(args []any, plan map[int]int) []any {
	if len(plan) == 0 {
		return args
	}
	out := make([]any, 0, len(args)+len(plan))
	for i, v := range args {
		if _, ok := plan[i]; ok && isSequence(v) {
			out = append(out, spread(v)...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func flattenNamed(m map[string]any, plan map[string]int) map[string]any {
	if len(plan) == 0 {
		return m
	}
	out := make(map[string]any, len(m)+len(plan))
	for k, v := range m {
		if _, ok := plan[k]; ok && isSequence(v) {
			for i, el := range spread(v) {
				out[SubKey(k, i)] = el
			}
			continue
		}
		out[k] = v
	}
	return out
}
