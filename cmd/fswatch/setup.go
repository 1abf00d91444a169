package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/0xmhha/fswatch/pkg/config"
	"github.com/0xmhha/fswatch/pkg/display"
	"github.com/0xmhha/fswatch/pkg/fswatcher"
)

// loadConfig loads the configuration named by --config, or the default
// search path.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(rootConfiguration.configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// resolveFormat picks the output format: the flag, then the configured
// format, then table on a terminal and json otherwise.
func resolveFormat(flag, configured string, tty bool) (display.Format, error) {
	switch {
	case flag != "":
		return display.ParseFormat(flag)
	case configured != "":
		return display.ParseFormat(configured)
	case tty:
		return display.FormatTable, nil
	default:
		return display.FormatJSON, nil
	}
}

// stdoutIsTerminal reports whether stdout is attached to a terminal.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// parseChanges converts change names into changes.
func parseChanges(names []string) ([]fswatcher.Change, error) {
	changes := make([]fswatcher.Change, 0, len(names))
	for _, name := range names {
		c, err := fswatcher.ParseChange(name)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, nil
}
