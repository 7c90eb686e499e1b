package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benchctl/benchctl/internal/config"
	"github.com/benchctl/benchctl/internal/submit"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Submit a benchmark job (or sweep family) to the scheduler",
	Long: `Apply expands the config's sweep section into a job family, writes each
job's artifact directory, and submits every batch script via the scheduler.`,
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadJobConfig()
	if err != nil {
		return err
	}

	manager := submit.NewManager(&fileRenderer{path: scriptFile})
	results, err := manager.Apply(cmd.Context(), cfg, outputDir)
	for _, r := range results {
		fmt.Printf("submitted %s as job %s (%d nodes) -> %s\n", r.Name, r.JobID, r.Nodes, r.Dir)
	}
	return err
}

func loadJobConfig() (*config.Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no job config given; set --file")
	}
	return config.Load(configFile)
}
