package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rigup/rigup/pkg/probe"
)

func newProbeCommand() *cobra.Command {
	var (
		jsonOut bool
		yamlOut bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Classify every requested capability against the live system",
		Long: `Probe runs the read-only checks of every requested capability and
prints a Satisfied/Missing/PartiallySatisfied table. Nothing is mutated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			requested, err := a.requested()
			if err != nil {
				return err
			}

			results := a.prober().ProbeAll(cmd.Context(), a.capabilitiesByID(requested))

			ordered := make([]probe.Result, 0, len(results))
			for _, c := range a.reg.All() {
				if res, ok := results[c.ID]; ok {
					ordered = append(ordered, res)
				}
			}

			switch {
			case jsonOut:
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(ordered)
			case yamlOut:
				return yaml.NewEncoder(os.Stdout).Encode(ordered)
			default:
				printProbeTable(ordered)
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&yamlOut, "yaml", false, "output as YAML")
	return cmd
}

func printProbeTable(results []probe.Result) {
	width := len("CAPABILITY")
	for _, res := range results {
		if len(res.CapabilityID) > width {
			width = len(res.CapabilityID)
		}
	}
	fmt.Printf("%-*s  %-20s  %s\n", width, "CAPABILITY", "STATUS", "CHECKS")
	for _, res := range results {
		fmt.Printf("%-*s  %-20s  %d/%d\n", width, res.CapabilityID, string(res.Status), res.Passed, res.Total)
	}
}
