package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/0xmhha/fswatch/pkg/config"
	"github.com/0xmhha/fswatch/pkg/display"
	"github.com/0xmhha/fswatch/pkg/fswatcher"
	"github.com/0xmhha/fswatch/pkg/journal"
	"github.com/0xmhha/fswatch/pkg/logger"
	"github.com/0xmhha/fswatch/pkg/monitor"
)

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// runCommand runs the monitoring daemon.
type runCommand struct {
	format string
	quiet  bool
}

func newRunCommand() *cobra.Command {
	c := &runCommand{}

	command := &cobra.Command{
		Use:   "run [PATH...]",
		Short: "Run the monitoring daemon",
		Long: `Run the monitoring daemon.

The daemon watches the configured paths (or the paths given as arguments),
records every event in the journal, re-watches paths dropped after a
low-level failure and periodically prints a summary. When metrics.address
is set the engine metrics are served on /metrics.`,
		RunE: func(command *cobra.Command, args []string) error {
			return c.Execute(command.Context(), command, args)
		},
	}

	flags := command.Flags()
	flags.SortFlags = false
	flags.StringVarP(&c.format, "format", "f", "", "summary format (table, simple, json)")
	flags.BoolVarP(&c.quiet, "quiet", "q", false, "do not print periodic summaries")

	return command
}

// Execute runs the daemon until a signal is received or a component fails.
func (c *runCommand) Execute(ctx context.Context, command *cobra.Command, paths []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(paths) > 0 {
		cfg.Watch.Paths = paths
	}
	if len(cfg.Watch.Paths) == 0 {
		return monitor.ErrNoPaths
	}

	format, err := resolveFormat(c.format, cfg.Display.Format, stdoutIsTerminal())
	if err != nil {
		return err
	}

	log := logger.New(cfg.Logging)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	w, err := fswatcher.New(fswatcher.Config{
		Workers:    cfg.Engine.Workers,
		QueueSize:  cfg.Engine.QueueSize,
		Registerer: registry,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize watcher: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Error("failed to close watcher", "error", err)
		}
	}()

	var j journal.Journal
	if !cfg.Journal.Disabled {
		j, err = journal.Open(journal.Config{Path: cfg.Journal.Path}, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := j.Close(); err != nil {
				log.Error("failed to close journal", "error", err)
			}
		}()
	}

	mon, err := monitor.New(monitorConfig(cfg), w, j, log)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	out := io.Discard
	if !c.quiet {
		out = command.OutOrStdout()
	}
	formatter := display.New(display.Config{Format: format, Compact: format != display.FormatTable})

	var g run.Group

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	g.Add(func() error {
		if err := mon.Start(ctx); err != nil {
			return err
		}
		for u := range mon.Updates() {
			if err := formatter.FormatUpdate(out, u); err != nil {
				log.Warn("failed to write update", "error", err)
			}
		}
		return nil
	}, func(error) {
		if err := mon.Close(); err != nil {
			log.Error("failed to close monitor", "error", err)
		}
	})

	if cfg.Metrics.Address != "" {
		srv := newMetricsServer(cfg.Metrics.Address, registry)
		g.Add(func() error {
			log.Info("serving metrics", "address", cfg.Metrics.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("failed to shut down metrics server", "error", err)
			}
		})
	}

	err = g.Run()
	if errors.Is(err, run.ErrSignal) {
		log.Info("shutting down", "reason", err)
		return nil
	}
	return err
}

// monitorConfig maps the configuration file onto the monitor.
func monitorConfig(cfg *config.Config) monitor.Config {
	return monitor.Config{
		Paths:           cfg.Watch.Paths,
		Concurrency:     cfg.Watch.Concurrency,
		RewatchDelay:    cfg.Watch.RewatchDelay,
		RefreshInterval: cfg.Watch.UpdateFrequency,
		Retention:       cfg.Journal.Retention,
	}
}

// newMetricsServer serves the registry on /metrics.
func newMetricsServer(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
