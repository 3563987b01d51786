package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"entity-resolution-service/pkg/errors"
	"entity-resolution-service/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "resolver",
	Short: "Entity resolution across investment ledgers",
	Long: `Resolver reconciles two ledgers of investment records, deduplicates
transactions that describe the same deal, and resolves every company name
against a registry of known entities. Each run consolidates the entities it
touched into canonical records and lists anything it could not decide on its
own for human review.

Examples:
  resolver run --left crunchbase.json --right pitchbook.json --registry registry.yaml
  resolver run --left a.json --right b.json --registry registry.yaml --output-format json
  resolver run --config resolver.yaml --left a.json --right b.json --registry-out registry.next.yaml
  resolver --version`,
	Version:       getVersionString(),
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output and debug logging")
	rootCmd.PersistentFlags().String("log-level", string(logger.InfoLevel), "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", string(logger.TextFormat), "log format: json, text")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(errors.ConfigurationError(errors.CodeMissingConfig, "config", cfgFile, err).GetExitCode())
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// RESOLVER_MATCHING_DUPLICATE_THRESHOLD overrides matching.duplicate_threshold
	viper.SetEnvPrefix("RESOLVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// setupLogging installs the global logger described by config
func setupLogging(config *logger.Config) error {
	if viper.GetBool("verbose") {
		debug := logger.DebugConfig()
		debug.Format = config.Format
		debug.Output = config.Output
		debug.File = config.File
		config = debug
	}

	log, err := logger.NewLogger(config)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "logging", config, err)
	}
	logger.SetGlobalLogger(log)
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
