package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vortex-fintech/pgexec/data/postgres"
	"github.com/vortex-fintech/pgexec/data/rowcache"
	"github.com/vortex-fintech/pgexec/data/sqlbind"
	"github.com/vortex-fintech/pgexec/foundation/logger"
)

func parseStyle(s string) (sqlbind.Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "format":
		return sqlbind.StyleFormat, nil
	case "qmark":
		return sqlbind.StyleQMark, nil
	default:
		return 0, fmt.Errorf("unknown placeholder style %q", s)
	}
}

// decodeParams reads a JSON document into the shapes Normalize accepts.
// Integral numbers become int64, others float64.
func decodeParams(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if dec.More() {
		return nil, errors.New("params: trailing data after JSON value")
	}
	return numbers(v), nil
}

func numbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = numbers(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = numbers(t[k])
		}
		return t
	default:
		return v
	}
}

func readSQL(args []string, in io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	q := strings.TrimSpace(string(b))
	if q == "" {
		return "", errors.New("no statement given")
	}
	return q, nil
}

func execCmd(g *globalFlags, fetch bool) *cobra.Command {
	var (
		params  string
		timeout time.Duration
		useCache bool
	)

	use, short := "exec [SQL|-]", "Run a statement and commit, printing the affected row count"
	if fetch {
		use, short = "query [SQL|-]", "Run a statement and print its rows as JSON lines; nothing is committed"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

The connection comes from DATABASE_URL or the POSTGRES_* variables.
Parameters are a JSON value: an array for %s markers, an object for
%(name)s markers, or an array of arrays/objects for a batch (exec only).
With --cache, query answers SELECTs from Redis and every committed exec
invalidates the cached results.

Examples:
  pgexec query "SELECT * FROM users WHERE id IN %(ids)s" --params '{"ids":[1,2,3]}'
  pgexec exec "INSERT INTO tags (name) VALUES (%s)" --params '[["a"],["b"]]'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			style, err := parseStyle(g.style)
			if err != nil {
				return err
			}
			q, err := readSQL(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			p, err := decodeParams(params)
			if err != nil {
				return err
			}

			log, err := logger.New("pgexec", g.env)
			if err != nil {
				return err
			}
			defer log.SafeSync()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var cache *rowcache.Cache
			if useCache {
				if cache, err = openCache(ctx); err != nil {
					return err
				}
				defer cache.Close()
			}

			cfg, err := postgres.LoadPoolConfig()
			if err != nil {
				return err
			}
			pool, err := postgres.Open(ctx, cfg, postgres.WithLogger(log))
			if err != nil {
				return err
			}
			defer pool.CloseAll()

			opts := []postgres.ExecutorOption{postgres.WithExecutorLogger(log), postgres.WithStyle(style)}
			if cache != nil {
				opts = append(opts, postgres.WithRowCache(cache))
			}
			ex := postgres.NewExecutor(pool, opts...)

			res, err := ex.Execute(ctx, q, p, fetch)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&params, "params", "p", "", "statement parameters as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline including pool start-up")
	cmd.Flags().BoolVar(&useCache, "cache", false, "use the Redis row cache from REDIS_ADDR; query reads it, a committed exec invalidates it")
	return cmd
}

// openCache fails when the cache was asked for but REDIS_ADDR is unset or
// Redis is unreachable.
func openCache(ctx context.Context) (*rowcache.Cache, error) {
	cfg, err := rowcache.LoadConfig(nil)
	if err != nil {
		return nil, err
	}
	return rowcache.Open(ctx, cfg)
}

func printResult(w io.Writer, res postgres.Result) error {
	if !res.Fetched {
		_, err := fmt.Fprintln(w, res.RowsAffected)
		return err
	}
	enc := json.NewEncoder(w)
	for _, r := range res.Rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func renderCmd(g *globalFlags) *cobra.Command {
	var params string

	cmd := &cobra.Command{
		Use:   "render [SQL|-]",
		Short: "Print the statement and arguments that would be sent, without connecting",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			style, err := parseStyle(g.style)
			if err != nil {
				return err
			}
			q, err := readSQL(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			raw, err := decodeParams(params)
			if err != nil {
				return err
			}
			p, rw, st, err := sqlbind.Prepare(q, raw, style)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			fmt.Fprintf(&buf, "kind: %s\n", p.Kind())
			fmt.Fprintf(&buf, "expansions: %d\n", rw.Expansions)
			fmt.Fprintf(&buf, "sql: %s\n", st.SQL)
			for i, a := range st.Args {
				b, err := json.Marshal(a)
				if err != nil {
					return err
				}
				fmt.Fprintf(&buf, "args[%d]: %s\n", i, b)
			}
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "", "statement parameters as JSON")
	return cmd
}

func lookupEnv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}
