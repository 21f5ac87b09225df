package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"subscraper/pkg/config"
	"subscraper/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage subscraper configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (SUBSCRAPER_*, REDDIT_CLIENT_ID, REDDIT_CLIENT_SECRET)
  - Configuration file
  - Default values (lowest priority)`,
	// config subcommands load the file themselves so a broken or missing
	// file can be reported instead of aborting
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		applyOutputFlags()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created as '.subscraper.yaml' in the current directory unless a
different path is given with --config.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source. The Reddit client
secret is masked.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# subscraper configuration file
#
# Environment variables prefixed with SUBSCRAPER_ override these values.
# Reddit credentials are also read from REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET.

# Bulk historical search API
pushshift:
  base_url: "https://api.pushshift.io"
  user_agent: "subscraper/1.0"
  timeout: 30s

# Live lookup API. Leave the credentials empty to use the public endpoint.
reddit:
  base_url: "https://www.reddit.com"
  oauth_url: "https://oauth.reddit.com"
  auth_url: "https://www.reddit.com"
  client_id: ""
  client_secret: ""
  user_agent: "subscraper/1.0"
  timeout: 30s
  requests_per_minute: 60

walker:
  # Time span covered by one archive request
  window: 4h
  # Pause after each request that was not served from cache
  pace: 100ms
  # Records requested per window, at most 500
  page_size: 500
  # A window returning at least this many records may be truncated
  truncation_threshold: 100
  # Stop the last window at the end of the range
  clamp_to_end: true
  # Sort each page by created_utc before appending
  sort_pages: true

enrichment:
  # Records per live lookup, at most 100
  batch_size: 100
  # Cache lookups independent of record order
  canonical_keys: false
  # Attributes copied from the live API onto each record
  attributes: ["score", "num_comments", "removed_by_category"]

cache:
  # sqlite, redis or memory
  backend: "sqlite"
  # sqlite file path without the .sqlite extension,
  # defaults to $XDG_CACHE_HOME/subscraper/cache
  # path: "./data/cache"
  redis_addr: "localhost:6379"
  redis_password: ""
  redis_db: 0
  # 0 keeps entries forever
  http_ttl: 0s
  enrichment_ttl: 0s

retry:
  enabled: false
  max_attempts: 3
  initial_delay: 1s
  max_delay: 30s
  multiplier: 2.0
  jitter_factor: 0.1

logging:
  # debug, info, warn, error, disabled
  level: "info"
  # auto, console, json
  format: "auto"
  # Leave empty to log to stderr only
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".subscraper.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	ui.PrintInfo("Next", "subscraper config validate --config "+configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configFile, collectFlags(cmd))
	if err != nil {
		return err
	}

	display := *loaded
	display.Reddit.ClientSecret = mask(display.Reddit.ClientSecret)
	display.Cache.RedisPassword = mask(display.Cache.RedisPassword)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configFile, collectFlags(cmd))
	if err != nil {
		ui.PrintError("Configuration is invalid")
		for _, line := range strings.Split(err.Error(), "\n") {
			ui.PrintError("  - " + line)
		}
		return fmt.Errorf("configuration validation failed")
	}

	if loaded.Reddit.ClientID == "" || loaded.Reddit.ClientSecret == "" {
		ui.PrintWarning("Reddit credentials not configured, the public endpoint will be used")
	}
	if loaded.Walker.Pace == 0 {
		ui.PrintWarning("walker.pace is 0, uncached archive requests will not be paced")
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("Window", loaded.Walker.Window.String())
	ui.PrintInfo("Cache backend", loaded.Cache.Backend)
	ui.PrintInfo("Log level", loaded.Logging.Level)
	return nil
}

// mask keeps the first and last four characters of long secrets
func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return "***"
}
