// Package metrics serves the Prometheus registry next to liveness and
// readiness checks.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vortex-fintech/pgexec/foundation/logger"
)

const healthCheckConcurrencyLimit = 64

// Check reports nil when the checked component is usable. It must return
// promptly once ctx is done.
type Check func(ctx context.Context) error

// Pinger is satisfied by *postgres.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck turns a pool into a readiness check.
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) error { return p.Ping(ctx) }
}

type Options struct {
	Registry *prometheus.Registry
	Register func(reg prometheus.Registerer) error

	Health Check
	Ready  Check

	MetricsPath string
	HealthPath  string
	ReadyPath   string

	HealthTimeout time.Duration
	ReadyTimeout  time.Duration

	Log logger.LoggerInterface

	// StrictRegister makes New return a nil handler when registration fails.
	StrictRegister bool
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector, log logger.LoggerInterface, name string) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		log.Errorw("metrics registration failed", "collector", name, "error", err)
		return err
	}
	return nil
}

func normalizePath(p, def string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		p = def
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return p
}

func writeError(w http.ResponseWriter, msg string, status int, headOnly bool) {
	if headOnly {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		return
	}
	http.Error(w, msg, status)
}

func New(opts Options) (http.Handler, *prometheus.Registry) {
	metricsPath := normalizePath(opts.MetricsPath, "/metrics")
	healthPath := normalizePath(opts.HealthPath, "/health")
	readyPath := normalizePath(opts.ReadyPath, "/ready")

	healthTimeout := opts.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 500 * time.Millisecond
	}
	readyTimeout := opts.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = 2 * time.Second
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}

	for name, c := range map[string]prometheus.Collector{
		"process": collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		"go":      collectors.NewGoCollector(),
	} {
		if err := registerCollector(reg, c, log, name); err != nil && opts.StrictRegister {
			return nil, nil
		}
	}
	if opts.Register != nil {
		if err := opts.Register(reg); err != nil {
			log.Errorw("metrics registration failed", "collector", "custom", "error", err)
			if opts.StrictRegister {
				return nil, nil
			}
		}
	}

	mux := http.NewServeMux()
	sem := make(chan struct{}, healthCheckConcurrencyLimit)
	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})

	mux.Handle(metricsPath, withLog(onlyGet(metricsHandler), metricsPath, log))
	mux.Handle(healthPath, withLog(onlyGet(checkHandler(opts.Health, healthTimeout, sem)), healthPath, log))
	mux.Handle(readyPath, withLog(onlyGet(checkHandler(opts.Ready, readyTimeout, sem)), readyPath, log))

	return mux, reg
}

func onlyGet(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Allow", "GET, HEAD")
			writeError(w, "method not allowed", http.StatusMethodNotAllowed, r.Method == http.MethodHead)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		h.ServeHTTP(w, r)
	})
}

func checkHandler(check Check, timeout time.Duration, sem chan struct{}) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headOnly := r.Method == http.MethodHead
		if check == nil {
			w.WriteHeader(http.StatusOK)
			if !headOnly {
				_, _ = w.Write([]byte("OK"))
			}
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		select {
		case sem <- struct{}{}:
		default:
			w.Header().Set("Retry-After", "1")
			writeError(w, "health check busy", http.StatusServiceUnavailable, headOnly)
			return
		}

		done := make(chan error, 1)
		go func() {
			defer func() { <-sem }()
			done <- check(ctx)
		}()

		select {
		case err := <-done:
			if err != nil {
				writeError(w, err.Error(), http.StatusServiceUnavailable, headOnly)
				return
			}
			w.WriteHeader(http.StatusOK)
			if !headOnly {
				_, _ = w.Write([]byte("OK"))
			}
		case <-ctx.Done():
			w.Header().Set("Retry-After", "1")
			writeError(w, "health check timeout", http.StatusServiceUnavailable, headOnly)
		}
	})
}

func withLog(h http.Handler, path string, log logger.LoggerInterface) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w}
		h.ServeHTTP(lrw, r)
		if lrw.status == 0 {
			lrw.status = http.StatusOK
		}
		kv := []any{"path", path, "method", r.Method, "status", lrw.status, "duration", time.Since(start)}
		switch {
		case lrw.status >= 500:
			log.Errorw("http request", kv...)
		case lrw.status >= 400:
			log.Warnw("http request", kv...)
		default:
			log.Debugw("http request", kv...)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (l *statusRecorder) WriteHeader(statusCode int) {
	l.status = statusCode
	l.ResponseWriter.WriteHeader(statusCode)
}

func (l *statusRecorder) Write(p []byte) (int, error) {
	if l.status == 0 {
		l.status = http.StatusOK
	}
	return l.ResponseWriter.Write(p)
}

func (l *statusRecorder) Unwrap() http.ResponseWriter {
	return l.ResponseWriter
}
