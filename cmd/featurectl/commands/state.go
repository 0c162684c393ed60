package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and edit recorded state",
	}

	cmd.AddCommand(newStateListCommand())
	cmd.AddCommand(newStateShowCommand())
	cmd.AddCommand(newStateRmCommand())

	return cmd
}

func newStateListCommand() *cobra.Command {
	var typeFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			file, _, err := loadSpec()
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

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Address", "Status", "Files", "Source", "Updated"})

			for _, r := range st.List(typeFilter) {
				updated := ""
				if r.UpdatedAt != nil {
					updated = r.UpdatedAt.Format("2006-01-02 15:04")
				}
				t.AppendRow(table.Row{r.Address(), r.Status, len(r.Files), r.Source, updated})
			}
			t.Render()

			fmt.Printf("\n%d resources tracked (serial %d)\n", len(st.Resources), st.Serial)
			return nil
		},
	}

	cmd.Flags().StringVar(&typeFilter, "type", "", "only list resources of this type")

	return cmd
}

func newStateShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show ADDRESS",
		Short: "Show one resource as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			file, _, err := loadSpec()
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

			r := st.Get(args[0])
			if r == nil {
				return fmt.Errorf("resource %s is not tracked in state", args[0])
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		},
	}

	return cmd
}

func newStateRmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm ADDRESS",
		Short: "Remove a resource from state",
		Long: `Remove a resource from state without touching any code.

The next plan will show the resource as a create again unless it is
also removed from the spec.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			file, _, err := loadSpec()
			if err != nil {
				return err
			}
			states, err := newStateManager(ctx, file)
			if err != nil {
				return err
			}

			if err := states.Remove(ctx, args[0]); err != nil {
				return err
			}

			fmt.Printf("Removed %s from state.\n", args[0])
			return nil
		},
	}

	return cmd
}
