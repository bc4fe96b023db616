package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/vortex-fintech/pgexec/data/postgres"
	"github.com/vortex-fintech/pgexec/data/postgres/prommetrics"
	"github.com/vortex-fintech/pgexec/foundation/logger"
	"github.com/vortex-fintech/pgexec/runtime/metrics"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(g *globalFlags) *cobra.Command {
	var (
		addr     string
		heartbeatSQL string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Hold the pool open and expose /metrics, /health and /ready",
		Long: `Hold the pool open and expose /metrics, /health and /ready.

The heartbeat statement runs through the executor every interval so the
execution histograms and pool gauges stay populated. /ready fails while
the pool cannot be pinged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			style, err := parseStyle(g.style)
			if err != nil {
				return err
			}
			log, err := logger.New("pgexec", g.env)
			if err != nil {
				return err
			}
			defer log.SafeSync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := postgres.LoadPoolConfig()
			if err != nil {
				return err
			}
			pool, err := postgres.Open(ctx, cfg, postgres.WithLogger(log))
			if err != nil {
				return err
			}
			defer pool.CloseAll()

			reg := prometheus.NewRegistry()
			pm, err := prommetrics.New(reg, "pgexec", "db", pool)
			if err != nil {
				return err
			}
			ex := postgres.NewExecutor(pool,
				postgres.WithExecutorLogger(log),
				postgres.WithStyle(style),
				postgres.WithMetrics(pm),
			)

			h, _ := metrics.New(metrics.Options{
				Registry: reg,
				Ready:    metrics.PingCheck(pool),
				Log:      log.With("component", "http"),
			})
			srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

			grp, gctx := errgroup.WithContext(ctx)
			grp.Go(func() error {
				log.Infow("metrics listener started", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			grp.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(sctx)
			})
			grp.Go(func() error {
				runHeartbeat(gctx, ex, heartbeatSQL, interval, log)
				return nil
			})

			err = grp.Wait()
			log.Infow("shutting down", "reason", context.Cause(ctx))
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", lookupEnv("METRICS_ADDR", ":9090"), "listen address for the metrics endpoint")
	cmd.Flags().StringVar(&heartbeatSQL, "heartbeat-sql", "SELECT 1", "statement run on every heartbeat tick; empty disables the heartbeat")
	cmd.Flags().DurationVar(&interval, "heartbeat-interval", 15*time.Second, "time between heartbeat statements")
	return cmd
}

func runHeartbeat(ctx context.Context, ex *postgres.Executor, q string, every time.Duration, log logger.LoggerInterface) {
	if q == "" || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c, cancel := context.WithTimeout(ctx, every)
			if _, err := ex.Query(c, q, nil); err != nil && ctx.Err() == nil {
				log.Warnw("heartbeat statement failed", "error", err)
			}
			cancel()
		}
	}
}
