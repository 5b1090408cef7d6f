package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/policy"
)

func newPlanCommand() *cobra.Command {
	var (
		outPath string
		dotPath string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would do, without mutating anything",
		Long: `Plan probes the requested capabilities, derives the ordered plan for
the unsatisfied ones, and evaluates the built-in policies against it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			plan, result, err := buildPlan(cmd, a)
			if err != nil {
				return err
			}
			printPolicyFindings(result)
			if !result.Allowed {
				return fmt.Errorf("plan rejected by policy")
			}

			if plan.Empty() {
				fmt.Println("Nothing to do: every requested capability is satisfied.")
			} else {
				printPlan(plan)
			}

			if outPath != "" {
				if err := writePlanFile(plan, outPath); err != nil {
					return err
				}
				fmt.Printf("Plan written to %s\n", outPath)
			}
			if dotPath != "" {
				if err := os.WriteFile(dotPath, []byte(plan.DOT(a.reg)), 0o644); err != nil {
					return fmt.Errorf("failed to write DOT file: %w", err)
				}
				fmt.Printf("Dependency graph written to %s\n", dotPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "write the plan to a file (.json or .yaml)")
	cmd.Flags().StringVar(&dotPath, "dot", "", "write the dependency graph in Graphviz DOT format")
	return cmd
}

// buildPlan probes, plans, and runs policy evaluation. Shared by plan and
// apply.
func buildPlan(cmd *cobra.Command, a *app) (*engine.Plan, *policy.Result, error) {
	requested, err := a.requested()
	if err != nil {
		return nil, nil, err
	}

	prober := a.prober()
	results := prober.ProbeAll(cmd.Context(), a.capabilitiesByID(requested))

	// Dependencies outside the requested set are probed by the planner
	// itself; secrets missing from the environment are prompted for
	// unless the run is unattended.
	var prompt engine.SecretPrompt
	if !a.cfg.Unattended {
		prompt = promptSecret
	}
	planner := engine.NewPlanner(a.reg, prober, prompt, a.logger)
	plan, err := planner.Build(cmd.Context(), a.prof, requested, results)
	if err != nil {
		return nil, nil, err
	}

	polEngine, err := policy.NewEngine(a.logger)
	if err != nil {
		return nil, nil, err
	}
	input := policy.BuildInput(a.reg, plan, a.cfg.Unattended)
	result, err := polEngine.EvaluatePlan(cmd.Context(), input)
	if err != nil {
		return nil, nil, err
	}
	return plan, result, nil
}

// promptSecret asks the operator for a secret on the terminal. An empty
// answer counts as declined.
func promptSecret(name string) (string, bool) {
	fmt.Printf("Enter value for %s: ", name)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", false
	}
	value := strings.TrimSpace(line)
	return value, value != ""
}

func printPolicyFindings(result *policy.Result) {
	for _, w := range result.Warnings {
		fmt.Printf("warning: [%s] %s\n", w.Policy, w.Message)
	}
	for _, v := range result.Violations {
		fmt.Printf("denied: [%s] %s\n", v.Policy, v.Message)
	}
}

func printPlan(plan *engine.Plan) {
	fmt.Printf("Plan %s (%d steps):\n", plan.ID, len(plan.Entries))
	for _, entry := range plan.Entries {
		marker := ""
		if entry.Interactive {
			marker = "  (interactive)"
		}
		fmt.Printf("  %2d. %-28s %s%s\n", entry.Order+1, entry.CapabilityID, string(entry.Reason), marker)
	}
}

func writePlanFile(plan *engine.Plan, path string) error {
	var (
		data []byte
		err  error
	)
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(plan)
	default:
		data, err = json.MarshalIndent(plan, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	return nil
}
