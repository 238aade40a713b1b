// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"streamscout/internal/config"
	"streamscout/internal/logger"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig   string
	flagProxy    string
	flagTarget   string
	flagExternal bool
	flagDisable  []string
	flagJSON     bool
	flagDebug    bool
)

// cfg holds the loaded configuration (merged: defaults < config file < env < flags).
var cfg *config.Config

// logs is the process logger, built once the config is known.
var logs = logger.Discard()

var rootCmd = &cobra.Command{
	Use:   "streamscout",
	Short: "Resolve movies and episodes to playable streams",
	Long: `streamscout walks a ranked list of source and embed providers until one
yields a playable stream, then prints it or serves it over HTTP.`,
	SilenceUsage:       true,
	PersistentPreRunE:  loadConfig,
	PersistentPostRunE: closeLogs,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/streamscout/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagProxy, "proxy", "", "Passthrough proxy URL, e.g. http://127.0.0.1:8080/api/proxy")
	rootCmd.PersistentFlags().StringVarP(&flagTarget, "target", "t", "", "Playback target: any | browser | native")
	rootCmd.PersistentFlags().BoolVar(&flagExternal, "external", false, "Include external providers in automatic runs")
	rootCmd.PersistentFlags().StringSliceVar(&flagDisable, "disable", nil, "Provider ids to disable")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < env < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagProxy != "" {
		cfg.ProxyURL = flagProxy
	}
	if flagTarget != "" {
		cfg.Target = flagTarget
	}
	if flagExternal {
		cfg.IncludeExternal = true
	}
	if len(flagDisable) > 0 {
		cfg.Disabled = append(cfg.Disabled, flagDisable...)
	}
	if flagDebug {
		cfg.Log.Level = "debug"
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logs, err = logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	return nil
}

func closeLogs(cmd *cobra.Command, args []string) error {
	return logs.Close()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "streamscout", Version)
	},
}
