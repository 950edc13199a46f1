package cli

import (
	"fmt"
	"os"

	"github.com/picklr-io/reportchain/internal/config"
	"github.com/picklr-io/reportchain/internal/logging"
	"github.com/spf13/cobra"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var (
	logLevel     string
	logFormat    string
	providerName string
	outputFormat string
	metricsFile  string
	backendSpec  string
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "reportchain",
	Short: "Provision scheduled report chains on a data platform",
	Long: `Reportchain creates a chain of dependent data-platform resources in one run:

  • a namespace holding the report's data
  • a collection ingesting an external source
  • a parameterized query reading the collection
  • a scheduled automation running the query and posting results to a webhook

Resources are created in dependency order, waiting for each to become ready,
and torn down in reverse order from the recorded run.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error); overrides "+config.EnvLogLevel)
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "", "Backend to use (null, controlplane); defaults to the configured provider")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", outputText, "Report format (text, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	rootCmd.PersistentFlags().StringVar(&backendSpec, "backend", "local", "Run record backend (local, local:<path>, s3://bucket/key?region=...)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads .env, configures logging and checks the global flags.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	level := logLevel
	if !cmd.Flags().Changed("log-level") {
		if v := os.Getenv(config.EnvLogLevel); v != "" {
			level = v
		}
	}
	logging.Configure(logging.Options{Level: level, Format: logFormat})

	switch outputFormat {
	case outputText, outputJSON, outputYAML:
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
	}
	if os.Getenv("NO_COLOR") != "" {
		noColor = true
	}
	return nil
}
