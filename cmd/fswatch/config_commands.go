package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/fswatch/pkg/config"
)

// configCommand handles configuration management subcommands.
type configCommand struct {
	format string
	force  bool
	output string
}

func newConfigCommand() *cobra.Command {
	c := &configCommand{}

	command := &cobra.Command{
		Use:   "config",
		Short: "Configuration management (show, path, init)",
		RunE: func(command *cobra.Command, _ []string) error {
			return command.Help()
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			return c.runShow(command.OutOrStdout())
		},
	}
	show.Flags().StringVarP(&c.format, "format", "f", "yaml", "output format (yaml, json)")

	path := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file paths",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			return c.runPath(command.OutOrStdout())
		},
	}

	initialize := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			return c.runInit(command.OutOrStdout())
		},
	}
	initialize.Flags().BoolVar(&c.force, "force", false, "overwrite an existing file")
	initialize.Flags().StringVarP(&c.output, "output", "o", "", "output path (default: ~/.config/fswatch/config.yaml)")

	command.AddCommand(show, path, initialize)
	return command
}

// runShow displays the current configuration.
func (c *configCommand) runShow(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	switch c.format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case "yaml", "":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = fmt.Fprintf(w, "# Source: %s\n%s", configSource(), data)
		return err

	default:
		return fmt.Errorf("unknown format %q", c.format)
	}
}

// runPath shows the configuration file search path.
func (c *configCommand) runPath(w io.Writer) error {
	paths := []string{
		"./fswatch.yaml",
		config.DefaultConfigPath(),
	}

	fmt.Fprintln(w, "Configuration file search paths (in order of precedence):")
	fmt.Fprintln(w)

	if env := os.Getenv(config.EnvConfig); env != "" {
		paths = append([]string{env}, paths...)
	}
	for i, p := range paths {
		exists := "not found"
		if _, err := os.Stat(p); err == nil {
			exists = "found"
		}
		fmt.Fprintf(w, "  %d. %s [%s]\n", i+1, p, exists)
	}

	fmt.Fprintln(w)
	_, err := fmt.Fprintln(w, "Active configuration:", configSource())
	return err
}

// runInit writes the default configuration.
func (c *configCommand) runInit(w io.Writer) error {
	outputPath := c.output
	if outputPath == "" {
		outputPath = config.DefaultConfigPath()
	}

	if _, err := os.Stat(outputPath); err == nil && !c.force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", outputPath)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", outputPath, err)
	}

	if err := config.Save(config.Default(), outputPath); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "Configuration written to %s\n", outputPath)
	return err
}

// configSource returns the path of the active configuration file.
func configSource() string {
	if rootConfiguration.configPath != "" {
		return rootConfiguration.configPath
	}
	if env := os.Getenv(config.EnvConfig); env != "" {
		return env
	}
	if p := config.FindConfigFile(); p != "" {
		return p
	}
	return "defaults (no config file found)"
}
