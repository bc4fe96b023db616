// Package sqlbind turns caller parameters into PostgreSQL bind arguments.
//
// It has three stages, all pure:
//
//   - Normalize classifies a raw argument into a Params value
//     (none, scalar, positional, named, positional batch, named batch).
//   - Rewrite expands every sequence-valued parameter into a list of
//     fresh markers, so `id IN (%s)` with []int{1, 2, 3} becomes
//     `id IN (%s,%s,%s)`, and flattens the values to match.
//   - Bind compiles the markers into `$n` placeholders and checks that
//     marker and value counts agree.
//
// Two marker conventions are understood: positional (`%s`, or `?` with
// StyleQMark) and named (`%(name)s`). A query should use one of them;
// mixing both is rejected by Bind when it contradicts the parameter kind.
// `%%` is a literal percent sign in StyleFormat.
package sqlbind
