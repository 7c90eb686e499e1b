package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benchctl/benchctl/internal/submit"
)

var dryRunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Write job artifacts without submitting anything",
	Long: `Dry-run expands the config's sweep section and writes every job's artifact
directory (config snapshot, batch script, run metadata). The scheduler is
never touched; inspect the artifacts and submit later with apply.`,
	RunE: runDryRun,
}

func init() {
	rootCmd.AddCommand(dryRunCmd)
}

func runDryRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadJobConfig()
	if err != nil {
		return err
	}

	manager := submit.NewManager(&fileRenderer{path: scriptFile})
	results, err := manager.DryRun(cmd.Context(), cfg, outputDir)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("prepared %s (%d nodes) -> %s\n", r.Name, r.Nodes, r.Dir)
	}
	return nil
}
