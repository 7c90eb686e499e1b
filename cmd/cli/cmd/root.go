package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/benchctl/benchctl/internal/logging"
)

var (
	configFile string
	scriptFile string
	outputDir  string
	logLevel   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "benchctl",
	Short: "benchctl - submit inference benchmark jobs to a batch cluster",
	Long: `benchctl turns a declarative benchmark config into batch cluster jobs.

It expands parameter sweeps into job families, writes per-job artifact
directories (config snapshot, batch script, run metadata), and submits
each job to the scheduler. Inside the allocation, the orchestrate binary
takes over.`,
	PersistentPreRun: func(*cobra.Command, []string) {
		logging.Setup(logging.Config{Level: logLevel, Format: "text"})
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "file", "f", "", "job config file (required)")
	rootCmd.PersistentFlags().StringVar(&scriptFile, "script", getEnvOrDefault("BENCHCTL_SCRIPT", ""), "batch script template file (required)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "runs", "artifact output directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
