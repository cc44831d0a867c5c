package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jchantrell/exilefiles/internal/config"
	"github.com/jchantrell/exilefiles/internal/session"
)

var (
	cfg     *config.Config
	cfgFile string

	patch        string
	sourceKind   string
	installDir   string
	cacheDir     string
	workers      int
	manifestPath string
	logLevel     string
	logFormat    string
	noProgress   bool
)

var rootCmd = &cobra.Command{
	Use:   "exilefiles",
	Short: "Path of Exile content archive extractor",
	Long: `exilefiles lists and extracts files from the Path of Exile content archive.

Files are read either from a local game installation or directly from the
patch CDN with HTTP range requests, so only the blocks that hold the requested
files are downloaded.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		flags := cmd.Flags()
		if flags.Changed("patch") {
			cfg.Patch = patch
		}
		if flags.Changed("source") {
			cfg.Source = sourceKind
		}
		if flags.Changed("install-dir") {
			cfg.InstallDir = installDir
			if !flags.Changed("source") {
				cfg.Source = config.SourceLocal
			}
		}
		if flags.Changed("cache-dir") {
			cfg.CacheDir = cacheDir
		}
		if flags.Changed("workers") {
			cfg.Workers = workers
		}
		if flags.Changed("manifest") {
			cfg.Manifest = manifestPath
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = logFormat
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		var level slog.Level
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var handler slog.Handler
		if cfg.LogFormat == "json" {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: level,
			})
		}

		slog.SetDefault(slog.New(handler))

		slog.Debug("Configuration",
			"patch", cfg.Patch,
			"source", cfg.Source,
			"install_dir", cfg.InstallDir,
			"cache_dir", cfg.CacheDir,
			"workers", cfg.Workers,
			"manifest", cfg.Manifest,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		return nil
	},
}

// openArchive opens the archive selected by the loaded configuration.
func openArchive(ctx context.Context) (*session.Archive, error) {
	a, err := session.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return a, nil
}

// showProgress reports whether a progress bar would not fight with log output.
func showProgress() bool {
	return !(noProgress || cfg.LogFormat == "json" || cfg.LogLevel == "debug")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is exilefiles.yaml in home or pwd)")
	rootCmd.PersistentFlags().StringVarP(&patch, "patch", "p", "", `patch to read: "1", "2" or a specific version`)
	rootCmd.PersistentFlags().StringVar(&sourceKind, "source", "", "bundle source (local, remote)")
	rootCmd.PersistentFlags().StringVar(&installDir, "install-dir", "", "game installation directory; implies --source local")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "cache directory for downloaded indexes (default ~/.exilefiles/cache)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "j", 0, "number of concurrent extraction jobs (default number of CPUs)")
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "", "SQLite file recording extraction runs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
