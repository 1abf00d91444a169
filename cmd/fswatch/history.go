package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xmhha/fswatch/pkg/display"
	"github.com/0xmhha/fswatch/pkg/fswatcher"
	"github.com/0xmhha/fswatch/pkg/journal"
	"github.com/0xmhha/fswatch/pkg/logger"
)

// historyCommand queries the event journal.
type historyCommand struct {
	path    string
	since   time.Duration
	change  string
	limit   int
	format  string
	journal string
}

func newHistoryCommand() *cobra.Command {
	c := &historyCommand{}

	command := &cobra.Command{
		Use:   "history",
		Short: "Show journaled events",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			return c.Execute(command.Context(), command)
		},
	}

	flags := command.Flags()
	flags.SortFlags = false
	flags.StringVarP(&c.path, "path", "p", "", "only show events of this path")
	flags.DurationVar(&c.since, "since", 0, "only show events newer than this (e.g. 1h, 30m)")
	flags.StringVar(&c.change, "change", "", "only show this change (created, modified, deleted)")
	flags.IntVarP(&c.limit, "limit", "n", 50, "show at most this many of the most recent events (0 = all)")
	flags.StringVarP(&c.format, "format", "f", "", "output format (table, simple, json)")
	flags.StringVar(&c.journal, "journal", "", "journal file (default from configuration)")

	return command
}

// Execute runs the history command.
func (c *historyCommand) Execute(_ context.Context, command *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	format, err := resolveFormat(c.format, cfg.Display.Format, stdoutIsTerminal())
	if err != nil {
		return err
	}

	query, err := c.query(time.Now())
	if err != nil {
		return err
	}

	path := c.journal
	if path == "" {
		path = cfg.Journal.Path
	}

	formatter := display.New(display.Config{Format: format})
	out := command.OutOrStdout()

	if _, statErr := os.Stat(expandHome(path)); errors.Is(statErr, os.ErrNotExist) {
		return formatter.FormatHistory(out, nil)
	}

	logCfg := cfg.Logging
	logCfg.Level = "error"
	j, err := journal.Open(journal.Config{Path: path, ReadOnly: true}, logger.New(logCfg))
	if err != nil {
		return err
	}
	defer j.Close()

	records, err := j.List(query)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	return formatter.FormatHistory(out, records)
}

// query builds the journal query from the flags.
func (c *historyCommand) query(now time.Time) (journal.Query, error) {
	q := journal.Query{Limit: c.limit}

	if c.limit < 0 {
		return q, fmt.Errorf("invalid limit %d", c.limit)
	}
	if c.path != "" {
		abs, err := filepath.Abs(c.path)
		if err != nil {
			return q, err
		}
		q.Path = abs
	}
	if c.since > 0 {
		q.Since = now.Add(-c.since)
	}
	if c.change != "" {
		change, err := fswatcher.ParseChange(c.change)
		if err != nil {
			return q, err
		}
		q.Change = change
	}
	return q, nil
}

// expandHome expands a leading ~ to the home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
