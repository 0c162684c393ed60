package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMarkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Record resource status by hand",
		Long: `Record what you already know about a resource without running an
agent. Useful when code was written outside featurectl, or when a
deploy broke something the state still calls implemented.`,
	}

	cmd.AddCommand(newMarkDoneCommand())
	cmd.AddCommand(newMarkPartialCommand())
	cmd.AddCommand(newMarkBrokenCommand())

	return cmd
}

func newMarkDoneCommand() *cobra.Command {
	var (
		files []string
		tests []string
		lock  bool
	)

	cmd := &cobra.Command{
		Use:   "done ADDRESS",
		Short: "Mark a resource implemented",
		Example: `  # Record hand-written work
  featurectl mark done feature.auth_login --file internal/auth/login.go

  # Lock it against refresh overwrites
  featurectl mark done feature.auth_login --lock`,
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

			if err := states.MarkCreated(ctx, args[0], files, tests, lock); err != nil {
				return err
			}

			fmt.Printf("Marked %s implemented.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&files, "file", nil, "implementation files (repeatable)")
	cmd.Flags().StringSliceVar(&tests, "test", nil, "test files (repeatable)")
	cmd.Flags().BoolVar(&lock, "lock", false, "protect the entry from refresh overwrites")

	return cmd
}

func newMarkPartialCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "partial ADDRESS",
		Short: "Mark a resource partially implemented",
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

			if err := states.MarkPartial(ctx, args[0], reason); err != nil {
				return err
			}

			fmt.Printf("Marked %s partial.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "what remains to be done")

	return cmd
}

func newMarkBrokenCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "broken ADDRESS",
		Short: "Mark a resource broken",
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

			if err := states.MarkBroken(ctx, args[0], reason); err != nil {
				return err
			}

			fmt.Printf("Marked %s broken.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "what broke")

	return cmd
}
