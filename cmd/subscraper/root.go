package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"subscraper/pkg/config"
	"subscraper/pkg/logger"
	"subscraper/pkg/ui"
)

var (
	// Version information
	version   = "0.1.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
	noColor    bool

	// Cache flags, shared by fetch and cache
	cacheBackend string
	cachePath    string
	redisAddr    string

	// cfg is loaded once per invocation by the root pre-run hook
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "subscraper",
	Short: "Download every submission to a subreddit within a time range",
	Long: `subscraper walks the Pushshift archive in bounded time windows to collect
every submission to a subreddit, then refreshes live fields such as score
from the Reddit API in batches of up to 100.

Both sources are cached: repeated runs over the same range replay archive
pages without pausing and skip live lookups that were already made.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		applyOutputFlags()

		loaded, err := config.Load(configFile, collectFlags(cmd))
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		if err := logger.Initialize(&cfg.Logging); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.subscraper.yaml or $HOME/.config/subscraper/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all status output except errors")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&cacheBackend, "cache-backend", "", "cache backend (sqlite, redis, memory)")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache-path", "", "sqlite cache file path without extension")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "redis address for the redis cache backend")

	rootCmd.SetVersionTemplate(`subscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func applyOutputFlags() {
	if quiet {
		ui.SetQuietMode(true)
	}
	if noColor {
		ui.SetNoColor(true)
	}
}

// collectFlags maps the flags set on the command line to the keys
// understood by config.MergeCommandLineFlags
func collectFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	fs := cmd.Flags()

	if fs.Changed("log-level") {
		flags["log-level"] = logLevel
	} else if quiet {
		flags["log-level"] = "error"
	}

	if fs.Changed("cache-backend") {
		flags["cache-backend"] = cacheBackend
	}
	if fs.Changed("cache-path") {
		flags["cache-path"] = cachePath
	}
	if fs.Changed("redis-addr") {
		flags["redis-addr"] = redisAddr
	}

	if fs.Lookup("window") == nil {
		return flags
	}
	if fs.Changed("window") {
		flags["window"] = fetchOpts.window
	}
	if fs.Changed("pace") {
		flags["pace"] = fetchOpts.pace
	}
	if fs.Changed("no-clamp") {
		flags["clamp-to-end"] = !fetchOpts.noClamp
	}
	if fs.Changed("attrs") {
		flags["attributes"] = fetchOpts.attributes
	}
	if fs.Changed("batch-size") {
		flags["batch-size"] = fetchOpts.batchSize
	}
	if fs.Changed("canonical-keys") {
		flags["canonical-keys"] = fetchOpts.canonicalKeys
	}
	if fs.Changed("pushshift-url") {
		flags["pushshift-url"] = fetchOpts.pushshiftURL
	}
	if fs.Changed("retry") {
		flags["retry"] = fetchOpts.retry
	}
	return flags
}
