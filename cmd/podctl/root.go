package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/recoura/pod-engine/pkg/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "podctl",
	Short: "Proof-of-delivery acquisition engine",
	Long: `podctl drives proof-of-delivery (POD) acquisition for delivery dispute
claims: fetching POD documents from carrier APIs under per-carrier quotas,
retrying failures on an exponential backoff schedule, and ingesting carrier
tracking webhooks.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (POD_*)
3. Config file (--config, ./podctl.yaml or ~/.podctl/config.yaml)
4. Defaults`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./podctl.yaml or ~/.podctl/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable console log output")
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "redis address")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
	_ = viper.BindPFlag("redis.addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("podctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.podctl")
		}
	}

	viper.SetEnvPrefix("POD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Quota snapshot persistence: "redis" or "file".
	viper.SetDefault("snapshot.backend", "redis")
	viper.SetDefault("snapshot.path", "data/api_stats/rate_limits.json")

	viper.SetDefault("cache.ttl", 30*24*time.Hour)

	viper.SetDefault("fetch.max_attempts", 3)
	viper.SetDefault("fetch.base_delay", time.Second)
	viper.SetDefault("fetch.pace_rps", 1.0)
	viper.SetDefault("fetch.pace_burst", 1)

	viper.SetDefault("worker.batch_size", 50)
	viper.SetDefault("retry.batch_size", 30)
	viper.SetDefault("retry.max_retries", 4)
	viper.SetDefault("retry.lease_ttl", 30*time.Minute)

	viper.SetDefault("webhook.addr", ":8080")

	viper.SetDefault("gateway.base_url", "http://localhost:8100")
	viper.SetDefault("gateway.api_key", "")
	viper.SetDefault("gateway.timeout", 30*time.Second)
}

// setupLogging configures the global logger from the loaded configuration.
func setupLogging() {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(viper.GetString("log.level")),
		Pretty: viper.GetBool("log.pretty"),
		Output: os.Stderr,
	})
}
