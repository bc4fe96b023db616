package sqlbind

import "strings"

// Style selects the positional marker.
type Style uint8

const (
	// StyleFormat uses %s for positional markers and %% for a literal %.
	StyleFormat Style = iota
	// StyleQMark uses ? for positional markers; % has no special meaning
	// other than in %(name)s.
	StyleQMark
)

func (s Style) marker() string {
	if s == StyleQMark {
		return "?"
	}
	return "%s"
}

type tokenKind uint8

const (
	tokText tokenKind = iota
	tokPositional
	tokNamed
	tokPercent // %% in StyleFormat
)

type token struct {
	kind tokenKind
	text string // verbatim source
	name string // key of a named marker
}

// tokenize splits q into text runs and markers in one pass.
func tokenize(q string, style Style) []token {
	var toks []token
	start := 0
	flush := func(end int) {
		if end > start {
			toks = append(toks, token{kind: tokText, text: q[start:end]})
		}
	}

	for i := 0; i < len(q); {
		c := q[i]
		switch {
		case c == '?' && style == StyleQMark:
			flush(i)
			toks = append(toks, token{kind: tokPositional, text: "?"})
			i++
			start = i

		case c == '%' && i+1 < len(q):
			next := q[i+1]
			switch {
			case next == '%' && style == StyleFormat:
				flush(i)
				toks = append(toks, token{kind: tokPercent, text: "%%"})
				i += 2
				start = i
			case next == 's' && style == StyleFormat:
				flush(i)
				toks = append(toks, token{kind: tokPositional, text: "%s"})
				i += 2
				start = i
			case next == '(':
				name, width, ok := scanNamed(q[i:])
				if !ok {
					i++
					continue
				}
				flush(i)
				toks = append(toks, token{kind: tokNamed, text: q[i : i+width], name: name})
				i += width
				start = i
			default:
				i++
			}

		default:
			i++
		}
	}
	flush(len(q))
	return toks
}

// scanNamed matches %(name)s at the start of s and returns the name and
// the marker width.
func scanNamed(s string) (string, int, bool) {
	end := strings.IndexByte(s, ')')
	if end < 0 || end+1 >= len(s) || s[end+1] != 's' {
		return "", 0, false
	}
	name := s[2:end]
	if name == "" || strings.ContainsAny(name, "(% \t\r\n") {
		return "", 0, false
	}
	return name, end + 2, true
}

func namedMarker(key string) string {
	return "%(" + key + ")s"
}

// wrapped reports whether the marker at toks[i] already sits inside
// parentheses, as in `IN (%s)`, ignoring whitespace.
func wrapped(toks []token, i int) bool {
	if i == 0 || i+1 >= len(toks) {
		return false
	}
	prev, next := toks[i-1], toks[i+1]
	if prev.kind != tokText || next.kind != tokText {
		return false
	}
	before := strings.TrimRight(prev.text, " \t\r\n")
	after := strings.TrimLeft(next.text, " \t\r\n")
	return strings.HasSuffix(before, "(") && strings.HasPrefix(after, ")")
}

// group renders n markers; the surrounding parentheses are added unless
// the source already has them.
func group(markers []string, parens bool) string {
	joined := strings.Join(markers, ",")
	if parens {
		return "(" + joined + ")"
	}
	return joined
}
