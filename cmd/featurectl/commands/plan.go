package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/featurectl/featurectl/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var (
		jsonOutput bool
		target     string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change",
		Long: `Compare the spec against recorded state and show the actions an
apply would take.

Planning is read-only: it never runs agents, never mutates state, and
never takes the state lock. Resources whose dependencies are not yet
implemented are listed as blocked; blocking is advisory and does not
remove them from the plan.`,
		Example: `  # Show the full plan
  featurectl plan

  # Plan a single resource
  featurectl plan --target feature.auth_login

  # Machine-readable plan
  featurectl plan --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			file, s, err := loadSpec()
			if err != nil {
				return err
			}

			states, err := newStateManager(ctx, file)
			if err != nil {
				return err
			}
			st, err := states.Load(ctx)
			if err != nil {
				return err
			}

			plan := engine.GeneratePlan(s, st)
			if target != "" {
				filtered := plan.Actions[:0]
				for _, a := range plan.Actions {
					if a.Resource.Address() == target {
						filtered = append(filtered, a)
					}
				}
				plan.Actions = filtered
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}

			fmt.Println(engine.FormatPlan(plan, verbose))

			if blocked := engine.CheckDependencies(plan, st); len(blocked) > 0 {
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.SetStyle(table.StyleLight)
				t.AppendHeader(table.Row{"Blocked Resource", "Blocked By", "Reason"})
				for _, b := range blocked {
					t.AppendRow(table.Row{b.Resource, b.BlockedBy, b.Reason})
				}
				fmt.Println("Warning: some resources depend on work that is not implemented yet:")
				t.Render()
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output plan as JSON")
	cmd.Flags().StringVarP(&target, "target", "t", "", "limit plan to one resource address")

	return cmd
}
