package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/0xmhha/fswatch/pkg/display"
	"github.com/0xmhha/fswatch/pkg/fswatcher"
	"github.com/0xmhha/fswatch/pkg/logger"
)

// watchCommand streams events for the given paths until interrupted.
type watchCommand struct {
	format  string
	changes []string
	status  bool
}

func newWatchCommand() *cobra.Command {
	c := &watchCommand{}

	command := &cobra.Command{
		Use:   "watch PATH...",
		Short: "Stream change events for the given paths",
		Long: `Stream change events for the given paths until interrupted.

Paths need not exist: creating a path (including its missing parent
directories) is reported as CREATED. Output defaults to a table on a
terminal and to JSON lines otherwise.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.Execute(ctx, command, args)
		},
	}

	flags := command.Flags()
	flags.SortFlags = false
	flags.StringVarP(&c.format, "format", "f", "", "output format (table, simple, json)")
	flags.StringSliceVar(&c.changes, "changes", nil, "only report these changes (created, modified, deleted)")
	flags.BoolVar(&c.status, "status", false, "print watcher status on exit")

	return command
}

// Execute runs the watch command.
func (c *watchCommand) Execute(ctx context.Context, command *cobra.Command, paths []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	format, err := resolveFormat(c.format, cfg.Display.Format, stdoutIsTerminal())
	if err != nil {
		return err
	}
	changes, err := parseChanges(c.changes)
	if err != nil {
		return err
	}

	// Only surface problems while streaming.
	logCfg := cfg.Logging
	if logCfg.Level == "info" || logCfg.Level == "debug" {
		logCfg.Level = "warn"
	}
	log := logger.New(logCfg)

	w, err := fswatcher.New(fswatcher.Config{
		Workers:   cfg.Engine.Workers,
		QueueSize: cfg.Engine.QueueSize,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize watcher: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Error("failed to close watcher", "error", err)
		}
	}()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	sub := w.Subscribe(changes...)
	for _, path := range paths {
		if err := w.Watch(ctx, path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	formatter := display.New(display.Config{Format: format, Compact: true})
	out := command.OutOrStdout()

	for {
		select {
		case <-ctx.Done():
			if c.status {
				return formatter.FormatStatus(command.ErrOrStderr(), w.Status())
			}
			return nil

		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := formatter.FormatEvent(out, ev); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)
		}
	}
}
