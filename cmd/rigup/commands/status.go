package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/stores"
)

func newStatusCommand() *cobra.Command {
	var (
		jsonOut bool
		yamlOut bool
		history int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last run and a live re-probe of the requested set",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			requested, err := a.requested()
			if err != nil {
				return err
			}

			report := engine.BuildReport(cmd.Context(), a.reg, a.prober(), a.prof, requested, nil)

			switch {
			case jsonOut:
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			case yamlOut:
				return yaml.NewEncoder(os.Stdout).Encode(report)
			}

			fmt.Print(report.Render())

			// Run history is best effort: a missing database just means
			// apply has never run.
			if _, err := os.Stat(a.paths.DatabasePath()); err != nil {
				return nil
			}
			store, err := stores.NewSQLiteStore(stores.Config{Path: a.paths.DatabasePath()})
			if err != nil {
				return err
			}
			if err := store.Init(cmd.Context()); err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), history, 0)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				return nil
			}

			fmt.Println("\nRecent runs:")
			for _, run := range runs {
				completed := "running"
				if run.CompletedAt != nil {
					completed = run.CompletedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("  %s  %-12s  started %s  finished %s\n",
					run.ID, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"), completed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&yamlOut, "yaml", false, "output as YAML")
	cmd.Flags().IntVar(&history, "history", 5, "number of recent runs to show")
	return cmd
}
