// Package registry finds the latest versions of libraries and tools
// published by package registries, and polls many of them at once.
package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/etnz/library-versions/fetch"
	"github.com/etnz/library-versions/pipeline"
)

// Resolver finds the current versions of one thing. String names it in
// reports, and results are sorted by that name.
type Resolver interface {
	fmt.Stringer
	Resolve(ctx context.Context, c *fetch.Client) ([]string, error)
}

// Result is the outcome of one resolver.
type Result struct {
	Resolver string
	Versions []string
	Err      error
	Duration time.Duration
}

// DefaultConcurrency bounds the resolvers a Poller runs at once.
const DefaultConcurrency = 8

// Metrics of polls.
type Metrics struct {
	Duration  *prometheus.HistogramVec
	Failures  *prometheus.CounterVec
	LastPoll  prometheus.Gauge
	Resolvers prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "library_versions_resolve_duration_seconds",
		Help:    "Time spent by a resolver",
		Buckets: prometheus.DefBuckets,
	}, []string{"resolver"})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "library_versions_resolve_failures_total",
		Help: "Resolvers that failed, by error class",
	}, []string{"resolver", "class"})

	lastPoll := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "library_versions_last_poll_timestamp_seconds",
		Help: "Time the last poll completed",
	})

	resolvers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "library_versions_resolvers",
		Help: "Number of resolvers polled",
	})

	reg.MustRegister(duration, failures, lastPoll, resolvers)
	return &Metrics{Duration: duration, Failures: failures, LastPoll: lastPoll, Resolvers: resolvers}
}

// Poller runs resolvers concurrently.
type Poller struct {
	Client *fetch.Client
	// Logger defaults to a no-op logger.
	Logger  log.Logger
	Metrics *Metrics
	// Concurrency defaults to DefaultConcurrency.
	Concurrency int
}

// Poll runs every resolver and returns their results sorted by resolver
// name. A failing resolver does not stop the others: its error is in its
// Result. Poll itself only fails when ctx is done.
func (p *Poller) Poll(ctx context.Context, resolvers []Resolver) ([]Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	client := p.Client
	if client == nil {
		client = &fetch.Client{}
	}
	limit := p.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([]Result, len(resolvers))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, r := range resolvers {
		i, r := i, r
		g.Go(func() error {
			results[i] = p.run(ctx, logger, client, r)
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Resolver < results[j].Resolver })
	if p.Metrics != nil {
		p.Metrics.LastPoll.SetToCurrentTime()
		p.Metrics.Resolvers.Set(float64(len(resolvers)))
	}
	return results, nil
}

func (p *Poller) run(ctx context.Context, logger log.Logger, client *fetch.Client, r Resolver) Result {
	name := r.String()
	start := time.Now()
	versions, err := r.Resolve(ctx, client)
	res := Result{Resolver: name, Versions: versions, Err: err, Duration: time.Since(start)}

	if p.Metrics != nil {
		p.Metrics.Duration.WithLabelValues(name).Observe(res.Duration.Seconds())
	}
	if err != nil {
		class := pipeline.Classify(err)
		if p.Metrics != nil {
			p.Metrics.Failures.WithLabelValues(name, class).Inc()
		}
		level.Warn(logger).Log("msg", "resolver failed", "resolver", name, "class", class, "err", err)
		return res
	}
	level.Info(logger).Log("msg", "resolved", "resolver", name, "versions", len(versions), "duration", res.Duration)
	return res
}
