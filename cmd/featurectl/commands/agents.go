package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/featurectl/featurectl/pkg/agent"
)

func newAgentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List known agent backends",
		Long: `List the agent backends featurectl knows about and whether their
CLI is installed on this machine.

Any backend name, or a comma-separated chain of names, can be passed
to 'apply --agent'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := agent.NewRegistry()

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Agent", "Available"})

			for _, name := range registry.Names() {
				backend, err := registry.Get(name)
				if err != nil {
					return err
				}
				t.AppendRow(table.Row{name, backend.Available()})
			}
			t.Render()

			return nil
		},
	}

	return cmd
}
