package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newForceUnlockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "force-unlock LOCK_ID",
		Short: "Release a stale state lock",
		Long: `Release a state lock left behind by a crashed or killed apply.

Only use this when you are sure no apply is running: breaking a live
lock lets two applies write state concurrently.`,
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

			if err := states.ForceUnlock(ctx, args[0]); err != nil {
				return err
			}

			fmt.Printf("Lock %s released.\n", args[0])
			return nil
		},
	}

	return cmd
}
