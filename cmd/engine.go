package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zjrosen/arbiter/internal/cachemanager"
	"github.com/zjrosen/arbiter/internal/config"
	"github.com/zjrosen/arbiter/internal/flags"
	"github.com/zjrosen/arbiter/internal/journal"
	"github.com/zjrosen/arbiter/internal/log"
	"github.com/zjrosen/arbiter/internal/manifest"
	"github.com/zjrosen/arbiter/internal/metrics"
	"github.com/zjrosen/arbiter/internal/registry"
	"github.com/zjrosen/arbiter/internal/tracing"
)

// engine is a registry configured from cfg plus the optional subsystems
// the feature flags turn on.
type engine struct {
	reg     *registry.Registry
	flags   *flags.Registry
	tracer  *tracing.Provider
	journal *journal.Journal // nil unless flags.journal
	metrics *prometheus.Registry
}

type engineOptions struct {
	// withMetrics registers the prometheus collector on a private registry.
	withMetrics bool
	// eventBuffer overrides the registry's per-subscriber buffer when > 0.
	eventBuffer int
}

func newEngine(c config.Config, opts engineOptions) (*engine, error) {
	table, err := c.PolicyTable()
	if err != nil {
		return nil, fmt.Errorf("policies: %w", err)
	}

	e := &engine{flags: flags.New(c.Flags)}

	e.tracer, err = tracing.NewProvider(tracing.Config{
		Enabled:      c.Tracing.Enabled,
		Exporter:     c.Tracing.Exporter,
		FilePath:     c.Tracing.FilePath,
		OTLPEndpoint: c.Tracing.OTLPEndpoint,
		SampleRate:   c.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	regOpts := []registry.Option{
		registry.WithPolicies(table),
		registry.WithMaxHistory(c.Audit.MaxHistory),
		registry.WithTracer(e.tracer.Tracer()),
	}

	if opts.eventBuffer > 0 {
		regOpts = append(regOpts, registry.WithEventBuffer(opts.eventBuffer))
	}

	if e.flags.Enabled(flags.FlagOwnerCache) {
		cache := cachemanager.NewInMemoryCacheManager[string, map[registry.Kind][]string](
			"owner-resources", c.Cache.TTL, cachemanager.DefaultCleanupInterval)
		regOpts = append(regOpts, registry.WithOwnerCache(cache))
	}

	if e.flags.Enabled(flags.FlagJournal) {
		if c.Audit.JournalPath == "" {
			e.close()
			return nil, errors.New("flags.journal is on but audit.journal_path is empty")
		}
		e.journal, err = journal.Open(c.Audit.JournalPath)
		if err != nil {
			e.close()
			return nil, err
		}
		regOpts = append(regOpts, registry.WithObserver(e.journal))
	}

	var collector *metrics.Collector
	if opts.withMetrics {
		e.metrics = prometheus.NewRegistry()
		e.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.New(metrics.WithRegistry(e.metrics))
		regOpts = append(regOpts, registry.WithObserver(collector))
	}

	e.reg = registry.New(regOpts...)

	if collector != nil {
		if err := collector.Track(e.reg); err != nil {
			e.close()
			return nil, err
		}
	}

	return e, nil
}

// load registers each manifest in order and returns their outcomes. Only
// an unknown policy stops the run; conflicts are reported in the outcomes.
func (e *engine) load(ctx context.Context, files []manifest.File) ([]registry.Outcome, error) {
	outcomes := make([]registry.Outcome, 0, len(files))
	for _, f := range files {
		out, err := e.reg.RegisterFromManifest(ctx, f.Owner, f.Manifest())
		if err != nil {
			return outcomes, fmt.Errorf("register %s: %w", f.Path, err)
		}
		log.Debug(log.CatManifest, "Manifest registered",
			"path", f.Path, "owner", f.Owner, "success", out.Success, "results", len(out.Results))
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// close flushes traces and archives, then stops event delivery.
func (e *engine) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if e.reg != nil {
		e.reg.Close()
	}
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			log.ErrorErr(log.CatJournal, "Failed to close journal", err)
		}
	}
	if e.tracer != nil {
		if err := e.tracer.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatTrace, "Failed to flush traces", err)
		}
	}
}

// loadManifests reads every manifest named by paths, in argument order. A
// directory contributes each *.manifest.yaml beneath it in lexical order.
func loadManifests(paths []string) ([]manifest.File, error) {
	var files []manifest.File
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			f, err := manifest.LoadFile(p)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
			continue
		}

		found, err := manifest.LoadDir(os.DirFS(p), ".")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		for _, f := range found {
			f.Path = filepath.Join(p, f.Path)
			files = append(files, f)
		}
	}
	return files, nil
}
