// Package cmd wires the command line to the plugin pipeline: configuration
// loading, plugin discovery, pipeline parsing, and execution.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/paladinbio/paladin-plugins/internal/config"
	"github.com/paladinbio/paladin-plugins/internal/datastore"
	"github.com/paladinbio/paladin-plugins/internal/filestore"
	"github.com/paladinbio/paladin-plugins/internal/flags"
	"github.com/paladinbio/paladin-plugins/internal/log"
	"github.com/paladinbio/paladin-plugins/internal/pipeline"
	"github.com/paladinbio/paladin-plugins/internal/plugins"
	"github.com/paladinbio/paladin-plugins/internal/report"
)

var (
	version   = "dev"
	cfgFile   string
	listMode  bool
	debugMode bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "paladin-plugins [flags] @@plugin [args] [@@plugin [args] ...]",
	Short: "Pipeline plugins for post-processing PALADIN alignment reports",
	Long: `paladin-plugins executes a pipeline of processing plugins over PALADIN
alignment reports. Each pipeline step is introduced by @@ followed by the
plugin name and its arguments; steps run strictly in the order supplied.

Examples:
  # List available plugins
  paladin-plugins --list

  # Taxonomic abundance report at hierarchy level 1
  paladin-plugins @@taxonomy -i report.tsv -q 20 -l 1

  # Chain plugins, writing buffered output to a file
  paladin-plugins @@taxonomy -i report.tsv -q 20 -l 1 @@write results.tsv`,
	Version:       version,
	RunE:          runPipeline,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/paladin-plugins/config.yaml)")
	rootCmd.Flags().BoolVarP(&listMode, "list", "l", false,
		"list available plugins")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false,
		"propagate plugin load errors and enable debug logging")

	// Plugin arguments after the first @@ token must reach the pipeline
	// parser untouched.
	rootCmd.Flags().SetInterspersed(false)
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("cache_dir", defaults.CacheDir)
	viper.SetDefault("output_dir", defaults.OutputDir)
	viper.SetDefault("temp_prefix", defaults.TempPrefix)
	viper.SetDefault("expiry_days", defaults.ExpiryDays)
	viper.SetDefault("fetch_retries", defaults.FetchRetries)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .paladin-plugins/config.yaml (current directory)
		// 2. ~/.config/paladin-plugins/config.yaml (user config)
		if _, err := os.Stat(".paladin-plugins/config.yaml"); err == nil {
			viper.SetConfigFile(".paladin-plugins/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "paladin-plugins"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			home, homeErr := os.UserHomeDir()
			if homeErr == nil {
				defaultPath := filepath.Join(home, ".config", "paladin-plugins", "config.yaml")
				if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
					viper.SetConfigFile(defaultPath)
					_ = viper.ReadInConfig()
				}
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	resolved := cfg.Resolved()

	if debugMode || os.Getenv("PALADIN_DEBUG") != "" {
		logPath := filepath.Join(os.TempDir(), "paladin-plugins.log")
		if cleanup, err := log.Init(logPath); err == nil {
			defer cleanup()
		}
	} else {
		log.SetEnabled(false)
	}

	flagRegistry := flags.New(resolved.Flags)

	files, err := filestore.New(filestore.Config{
		TempPrefix:   resolved.TempPrefix,
		CacheDir:     resolved.CacheDir,
		OutputDir:    resolved.OutputDir,
		ExpiryDays:   resolved.ExpiryDays,
		FetchRetries: uint64(resolved.FetchRetries),
		KeepTemp:     flagRegistry.Enabled(flags.FlagKeepTemp),
	})
	if err != nil {
		return reportError(err)
	}
	defer func() { _ = files.Close() }()

	data := datastore.NewManager()
	defer func() { _ = data.CloseAll() }()

	out := pipeline.NewOutput()
	out.StreamStdout = flagRegistry.Enabled(flags.FlagStreamStdout)
	if flagRegistry.Enabled(flags.FlagStreamStderr) {
		out.StreamStderr = true
	}

	ctx := &pipeline.Context{
		Files:   files,
		Data:    data,
		Out:     out,
		Reports: report.NewCache(),
		Flags:   flagRegistry,
	}

	registry := pipeline.NewRegistry(ctx, debugMode)
	if err := registry.Discover(plugins.Modules()); err != nil {
		return reportError(err)
	}

	if listMode {
		for _, line := range registry.FormatListing() {
			fmt.Println(line)
		}
		return nil
	}

	steps, err := pipeline.ParsePipeline(args)
	if err != nil {
		_ = cmd.Help()
		return err
	}

	if err := registry.Execute(steps); err != nil {
		// A help request has already printed its usage text; it is a clean
		// exit, not a failed invocation.
		if errors.Is(err, pipeline.ErrUsage) {
			return nil
		}
		return reportError(err)
	}
	return nil
}

// reportError prints err to stderr unless it belongs to a path that has
// already produced its own diagnostic.
func reportError(err error) error {
	if errors.Is(err, pipeline.ErrInvalidPlugin) {
		return err
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return err
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
