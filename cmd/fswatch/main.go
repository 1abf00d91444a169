// Package main provides the fswatch CLI application.
//
// fswatch reports creation, modification and deletion of individual
// pathnames. It can stream events for a set of paths, run as a daemon that
// journals every event and exports engine metrics, and query the journal.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set during build time.
var version = "dev"

// rootConfiguration stores the global flags.
var rootConfiguration struct {
	// configPath is the configuration file to load.
	configPath string
}

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "fswatch",
		Version:       version,
		Short:         "Watch individual pathnames for creation, modification and deletion",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, _ []string) error {
			return command.Help()
		},
	}
	root.SetVersionTemplate("fswatch {{ .Version }}\n")
	root.CompletionOptions.HiddenDefaultCmd = true

	flags := root.PersistentFlags()
	flags.SortFlags = false
	flags.StringVarP(&rootConfiguration.configPath, "config", "c", "", "path to configuration file")

	root.AddCommand(
		newWatchCommand(),
		newRunCommand(),
		newHistoryCommand(),
		newConfigCommand(),
	)
	return root
}

func main() {
	cobra.EnableCommandSorting = false
	cobra.MousetrapHelpText = ""

	root := newRootCommand()
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
