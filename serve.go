package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/etnz/library-versions/pipeline"
	"github.com/etnz/library-versions/registry"
)

// board holds the results of the latest poll for the HTTP index.
type board struct {
	mu      sync.RWMutex
	results []registry.Result
	changed map[string]bool
	at      time.Time
}

func (b *board) set(results []registry.Result, changed map[string]bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = results
	b.changed = changed
	b.at = time.Now()
}

// ServeHTTP writes the report of the latest poll as plain text.
func (b *board) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.at.IsZero() {
		http.Error(w, "first poll in progress", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Last-Modified", b.at.UTC().Format(http.TimeFormat))
	writeReport(w, b.results, b.changed)
}

func newMux(b *board, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", b)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func runServe(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	var c commonFlags
	c.addFlags(fs)
	listen := fs.String("listen", ":8080", "Address to serve the versions and metrics on")
	interval := fs.Duration("interval", time.Hour, "Time between polls")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 {
		return fmt.Errorf("invalid interval %s", *interval)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a, err := newApp(c, pipeline.NewMetrics(reg), registry.NewMetrics(reg))
	if err != nil {
		return err
	}

	b := &board{}
	srv := &http.Server{Addr: *listen, Handler: newMux(b, reg), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		level.Info(a.logger).Log("msg", "listening", "addr", *listen)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		a.pollOnce(ctx, b, c.state)
		select {
		case <-ctx.Done():
			level.Info(a.logger).Log("msg", "shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errc:
			return err
		case <-ticker.C:
		}
	}
}

// pollOnce polls, publishes the results to b and saves the state.
func (a *app) pollOnce(ctx context.Context, b *board, statePath string) {
	results, err := a.poll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			level.Error(a.logger).Log("msg", "poll failed", "err", err)
		}
		return
	}
	changed := a.state.update(results)
	for name := range changed {
		level.Info(a.logger).Log("msg", "new version", "resolver", name)
	}
	b.set(results, changed)
	if statePath == "" {
		return
	}
	if err := a.state.save(statePath); err != nil {
		level.Warn(log.With(a.logger, "path", statePath)).Log("msg", "could not save state", "err", err)
	}
}
