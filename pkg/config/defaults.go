package config

import (
	"os"
	"path/filepath"
)

// configDir returns ~/.config/fswatch, or the current directory when the
// home directory is unknown.
func configDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(homeDir, ".config", "fswatch")
}

// defaultJournalPath returns the default journal file path.
//
// Returns: ~/.config/fswatch/journal.db.
func defaultJournalPath() string {
	return filepath.Join(configDir(), "journal.db")
}

// DefaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/fswatch/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}
