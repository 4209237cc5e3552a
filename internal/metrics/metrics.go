// Package metrics exposes registry activity as Prometheus metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zjrosen/arbiter/internal/registry"
)

// Config configures the collector.
type Config struct {
	// Namespace is the metrics namespace (default: "arbiter").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "arbiter",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// StatsSource is the part of the registry the resource gauge reads.
type StatsSource interface {
	Stats() registry.Stats
}

// Collector counts registry events. It implements registry.Observer and
// is meant to be passed to registry.WithObserver.
type Collector struct {
	config Config

	registrations   *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	unregistrations *prometheus.CounterVec
}

var _ registry.Observer = (*Collector)(nil)

// New creates a collector and registers its counters.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		config: config,
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "registrations_total",
			Help:        "Registration attempts by resource kind and resolved action",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "action"}),

		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "conflicts_total",
			Help:        "Ownership conflicts detected by resource kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		unregistrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "unregistrations_total",
			Help:        "Resources released by resource kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),
	}
}

// Observe implements registry.Observer.
func (c *Collector) Observe(e registry.Event) {
	kind := e.Kind.String()
	switch e.Type {
	case registry.EventConflict:
		c.conflicts.WithLabelValues(kind).Inc()
	case registry.EventUnregistered:
		c.unregistrations.WithLabelValues(kind).Inc()
	case registry.EventRegistered, registry.EventOverridden, registry.EventIgnored, registry.EventRejected:
		c.registrations.WithLabelValues(kind, string(actionOf(e))).Inc()
	}
}

// actionOf labels a registration by its MergeResult action.
func actionOf(e registry.Event) registry.Action {
	if e.Action != "" {
		return e.Action
	}
	switch e.Type {
	case registry.EventRegistered:
		return registry.ActionRegistered
	case registry.EventOverridden:
		return registry.ActionOverridden
	case registry.EventIgnored:
		return registry.ActionIgnored
	default:
		return registry.ActionError
	}
}

// Track registers a gauge of live resources per kind, read from src at
// scrape time.
func (c *Collector) Track(src StatsSource) error {
	g := &resourceGauge{
		src: src,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(c.config.Namespace, "", "resources"),
			"Live registrations by resource kind",
			[]string{"kind"}, c.config.ConstLabels,
		),
	}
	if err := c.config.Registry.Register(g); err != nil {
		return fmt.Errorf("register resource gauge: %w", err)
	}
	return nil
}

type resourceGauge struct {
	src  StatsSource
	desc *prometheus.Desc
}

func (g *resourceGauge) Describe(ch chan<- *prometheus.Desc) {
	ch <- g.desc
}

func (g *resourceGauge) Collect(ch chan<- prometheus.Metric) {
	stats := g.src.Stats()
	for _, k := range registry.Kinds() {
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, float64(stats.Kinds[k]), k.String())
	}
}
