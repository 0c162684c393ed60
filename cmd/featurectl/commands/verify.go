package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/featurectl/featurectl/pkg/engine"
	"github.com/featurectl/featurectl/pkg/verify"
)

func newVerifyCommand() *cobra.Command {
	var levelName string

	cmd := &cobra.Command{
		Use:   "verify [ADDRESS]",
		Short: "Verify resources against the working tree",
		Long: `Verify that tracked resources match the code actually on disk.

Levels:
  basic  declared files exist and are non-empty
  diff   files additionally appear in the git diff against HEAD
  full   adds symbol-level analysis of file contents

With no address, every resource in the spec is verified.`,
		Example: `  # Verify everything at the default level
  featurectl verify

  # Deep-verify one resource
  featurectl verify feature.auth_login --level full`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			_, s, err := loadSpec()
			if err != nil {
				return err
			}

			level, err := verify.ParseLevel(levelName)
			if err != nil {
				return err
			}

			root, err := os.Getwd()
			if err != nil {
				return err
			}
			verifier := verify.New(root)

			var targets []*engine.Resource
			if len(args) == 1 {
				r := s.Get(args[0])
				if r == nil {
					return fmt.Errorf("resource %s is not declared in the spec", args[0])
				}
				targets = []*engine.Resource{r}
			} else {
				targets = s.List("")
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Address", "Level", "Passed", "Score", "Diagnostics"})

			failed := 0
			for _, r := range targets {
				result := verifier.Verify(ctx, r, level)
				if !result.Passed {
					failed++
				}
				t.AppendRow(table.Row{
					r.Address(),
					result.Level,
					result.Passed,
					fmt.Sprintf("%.2f", result.Score),
					strings.Join(result.Diagnostics, "; "),
				})
			}
			t.Render()

			if failed > 0 {
				return fmt.Errorf("%d of %d resources failed verification", failed, len(targets))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&levelName, "level", "basic", "verification level (none, basic, diff, full)")

	return cmd
}
