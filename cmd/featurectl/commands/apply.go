package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/featurectl/featurectl/pkg/agent"
	"github.com/featurectl/featurectl/pkg/apply"
	"github.com/featurectl/featurectl/pkg/contexts"
	"github.com/featurectl/featurectl/pkg/market"
	"github.com/featurectl/featurectl/pkg/verify"
)

const contextsPath = ".featurectl/contexts.json"

func newApplyCommand() *cobra.Command {
	var (
		mode         string
		agentName    string
		parallel     int
		timeout      time.Duration
		dryRun       bool
		requireTests bool
		verifyLevel  string
		target       string
		bounty       float64
		marketURL    string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Execute the plan and converge state",
		Long: `Plan against recorded state and execute the resulting actions.

Modes:
  interactive  ask per resource: record it, run the agent, skip, or post it
  auto         run the configured agent on every resource
  hybrid       run the agent, review every result
  market       post every resource as a task on the execution market

Apply takes the state lock for the duration of the run and saves state
after every resource, so an interrupted run loses at most the resource
in flight.`,
		Example: `  # Walk the plan interactively
  featurectl apply

  # Let claude try everything, falling back to codex
  featurectl apply --mode auto --agent claude,codex

  # Four agents in parallel with full verification
  featurectl apply --mode auto --parallel 4 --verify full

  # Post everything to the market with a default bounty
  featurectl apply --mode market --bounty 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			file, s, err := loadSpec()
			if err != nil {
				return err
			}

			logger, err := newLogger()
			if err != nil {
				return err
			}

			states, err := newStateManager(ctx, file)
			if err != nil {
				return err
			}

			level, err := verify.ParseLevel(verifyLevel)
			if err != nil {
				return err
			}

			backend, err := agent.NewRegistry().Get(agentName)
			if err != nil {
				return err
			}

			registry, err := contexts.Load(contextsPath)
			if err != nil {
				return err
			}

			root, err := os.Getwd()
			if err != nil {
				return err
			}

			runner := &apply.Runner{
				Config: apply.Config{
					Mode:         apply.Mode(mode),
					Agent:        agentName,
					MaxWorkers:   parallel,
					Timeout:      timeout,
					RequireTests: requireTests,
					DryRun:       dryRun,
					VerifyLevel:  level,
					Target:       target,
					MarketBounty: bounty,
				},
				Spec:        s,
				States:      states,
				Backend:     backend,
				Verifier:    verify.New(root),
				Contexts:    registry,
				Market:      market.NewClient(marketURL, market.WithDryRun(marketURL == "")),
				Logger:      logger,
				ProjectRoot: root,
			}

			result, err := runner.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Println(result.Summary())
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d resources failed to converge", len(result.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(apply.ModeInteractive), "execution mode (interactive, auto, hybrid, market)")
	cmd.Flags().StringVarP(&agentName, "agent", "a", "claude", "agent backend, comma-separated for fallback chains")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "maximum concurrent agents (auto mode only, other modes run sequentially)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "per-resource agent timeout")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan and order only, execute nothing")
	cmd.Flags().BoolVar(&requireTests, "require-tests", false, "mark agent work partial unless the resource declares tests")
	cmd.Flags().StringVar(&verifyLevel, "verify", "basic", "verification level (none, basic, diff, full)")
	cmd.Flags().StringVarP(&target, "target", "t", "", "limit apply to one resource address")
	cmd.Flags().Float64Var(&bounty, "bounty", 0, "default bounty for market tasks")
	cmd.Flags().StringVar(&marketURL, "market-url", viper.GetString("market_url"), "execution market base URL (empty enables dry-run mode)")

	return cmd
}
