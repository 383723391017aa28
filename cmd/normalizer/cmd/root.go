package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang-rent-normalizer/cmd/normalizer/config"
	"golang-rent-normalizer/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "normalizer",
	Short: "Regional rent table normalizer",
	Long: `Normalizer turns the regional average-rent exports (one CSV per region,
with multi-row headers and repeated year blocks) into one clean dataset with
a fixed column layout: Agglomeration, Type_Habitat, Envergure, then one
amount and one index column per year from 2001 to 2022.

Examples:
  normalizer normalize --input-dir ./data
  normalizer normalize --input-dir ./data --xlsx loyers.xlsx --sqlite loyers.db
  normalizer combine --input-dir ./data/cleaned_data_revised
  normalizer scrape --dataset provinces --output prices.csv
  normalizer version`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, yaml/toml/json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads the .env file, the config file and ENV variables, then
// sets up the global logger.
func initConfig() {
	// reported once the logger is configured
	envErr := godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(2)
		}
	}

	// NORMALIZER_INPUT_DIR, NORMALIZER_YEARS_FIRST, ...
	viper.SetEnvPrefix("NORMALIZER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	logConfig := config.CreateLoggerConfig(viper.GetString("log-level"), viper.GetString("log-format"), viper.GetBool("verbose"))
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %s\n", err)
		os.Exit(2)
	}
	logger.SetGlobalLogger(log)

	if envErr != nil && !os.IsNotExist(envErr) {
		logger.Warnf("Ignoring .env file: %v", envErr)
	}
	if viper.ConfigFileUsed() != "" {
		logger.Debugf("Using config file %s", viper.ConfigFileUsed())
	}
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
