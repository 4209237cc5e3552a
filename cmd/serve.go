package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/zjrosen/arbiter/internal/config"
	"github.com/zjrosen/arbiter/internal/flags"
	"github.com/zjrosen/arbiter/internal/log"
	"github.com/zjrosen/arbiter/internal/pubsub"
	"github.com/zjrosen/arbiter/internal/registry"
	"github.com/zjrosen/arbiter/internal/server"
	"github.com/zjrosen/arbiter/internal/watcher"
)

var serveAddr string

// serveEventBuffer sizes each subscriber's queue for SSE clients and the
// event logger.
const serveEventBuffer = 1024

var serveCmd = &cobra.Command{
	Use:   "serve <manifest|dir>...",
	Short: "Register manifests and run the diagnostics server",
	Long: `Serve registers the given manifests and exposes the registry over HTTP
until interrupted.

Endpoints:
  GET    /health                 liveness and resource count
  GET    /stats                  resource counts per kind
  GET    /policies               active merge policy per kind
  GET    /conflicts              audit log (?kind= &owner= &limit= &source=journal)
  DELETE /conflicts              clear the in-memory audit log
  GET    /owners                 owners holding resources
  GET    /owners/{owner}         resources held by one owner
  GET    /resources/{kind}       registrations of one kind
  GET    /resources/{kind}/{id}  one registration (escape "/" in route ids)
  GET    /events                 server-sent registry events
  GET    /logs                   server-sent log lines
  GET    /metrics                Prometheus metrics

With flags.policy-hot-reload on, edits to the config file's policies apply
to later registrations without a restart. Existing owners never change.

Example:
  arbiter serve ./extensions --addr 127.0.0.1:9000`,
	Args: cobra.MinimumNArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	files, err := loadManifests(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	e, err := newEngine(cfg, engineOptions{withMetrics: true, eventBuffer: serveEventBuffer})
	if err != nil {
		return err
	}
	defer e.close()

	go pubsub.Forward(ctx, e.reg, func(ev pubsub.Event[registry.Event]) {
		log.Debug(log.CatRegistry, "Registry event",
			"type", ev.Type, "kind", ev.Payload.Kind, "resource", ev.Payload.ResourceID, "owner", ev.Payload.Owner)
	})

	if _, err := e.load(ctx, files); err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	hc := server.HandlerConfig{
		Registry: e.reg,
		Metrics:  promhttp.HandlerFor(e.metrics, promhttp.HandlerOpts{}),
		Logs:     log.Subscribe,
		Tracer:   e.tracer.Tracer(),
	}
	if e.journal != nil {
		hc.Archive = e.journal
	}
	srv, err := server.New(server.Config{Addr: addr, HandlerConfig: hc})
	if err != nil {
		return fmt.Errorf("creating diagnostics server: %w", err)
	}

	if e.flags.Enabled(flags.FlagPolicyHotReload) {
		stop, err := watchPolicies(ctx, e.reg, configFileUsed(), cfg.Watch.Debounce)
		if err != nil {
			log.ErrorErr(log.CatWatcher, "Policy hot reload disabled", err)
		} else {
			defer stop()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	out := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(out, "arbiter serving %d manifests on http://%s\n", len(files), srv.Addr())
	_, _ = fmt.Fprintln(out, "Press Ctrl+C to stop")

	select {
	case sig := <-sigCh:
		_, _ = fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.ErrorErr(log.CatServer, "Error stopping diagnostics server", err)
	}
	return nil
}

// policyUpdater is the part of the registry a config reload touches.
type policyUpdater interface {
	UpdateConfig(registry.PolicyTable) error
}

// watchPolicies applies the config file's policies to reg whenever the file
// changes, until ctx is done or the returned stop is called.
func watchPolicies(ctx context.Context, reg policyUpdater, path string, debounce time.Duration) (func(), error) {
	wcfg := watcher.DefaultConfig(path)
	if debounce > 0 {
		wcfg.DebounceDur = debounce
	}
	w, err := watcher.New(wcfg)
	if err != nil {
		return nil, err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				_ = reloadPolicies(reg, path)
			}
		}
	}()

	log.Info(log.CatWatcher, "Policy hot reload enabled", "path", path)
	return func() {
		cancel()
		<-done
		_ = w.Stop()
	}, nil
}

// reloadPolicies reads path and hands its policy table to reg. An invalid
// file leaves the current table in place.
func reloadPolicies(reg policyUpdater, path string) error {
	next, err := config.Load(path)
	if err != nil {
		log.ErrorErr(log.CatConfig, "Config reload rejected, keeping current policies", err, "path", path)
		return err
	}
	table, err := next.PolicyTable()
	if err != nil {
		log.ErrorErr(log.CatConfig, "Config reload rejected, keeping current policies", err, "path", path)
		return err
	}
	if err := reg.UpdateConfig(table); err != nil {
		log.ErrorErr(log.CatConfig, "Policy update rejected", err, "path", path)
		return err
	}
	log.Info(log.CatConfig, "Policies reloaded", "path", path, "policies", table.Strings())
	return nil
}
