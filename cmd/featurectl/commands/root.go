package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/featurectl/featurectl/pkg/engine"
	"github.com/featurectl/featurectl/pkg/spec"
	"github.com/featurectl/featurectl/pkg/state"
	"github.com/featurectl/featurectl/pkg/telemetry"
)

const envPrefix = "FEATURECTL"

var (
	// Global flags
	specPath  string
	verbose   bool
	logLevel  string
	logFormat string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "featurectl",
		Short: "featurectl - declarative feature convergence for codebases",
		Long: `featurectl tracks the features a codebase should have against the
features it actually has, and converges the two.

Declare features as resources in a spec file, plan the difference
against recorded state, and apply the plan: interactively, through a
coding agent, or by posting tasks to an execution market.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&specPath, "spec", "f", "featurectl.yaml", "spec file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	_ = viper.BindPFlag("spec", rootCmd.PersistentFlags().Lookup("spec"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newStateCommand())
	rootCmd.AddCommand(newMarkCommand())
	rootCmd.AddCommand(newVerifyCommand())
	rootCmd.AddCommand(newAgentsCommand())
	rootCmd.AddCommand(newForceUnlockCommand())

	return rootCmd
}

// newLogger builds the CLI logger from the persistent flags.
func newLogger() (*telemetry.Logger, error) {
	return telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  viper.GetString("log_level"),
		Format: viper.GetString("log_format"),
		Output: "stderr",
	})
}

// loadSpec parses the spec file named by --spec.
func loadSpec() (*spec.File, *engine.Spec, error) {
	file, err := spec.ParseFile(viper.GetString("spec"))
	if err != nil {
		return nil, nil, err
	}
	s := file.ToSpec()
	if problems := spec.ValidateSpec(s); len(problems) > 0 {
		return nil, nil, engine.NewPermanentError(strings.Join(problems, "; "), nil).
			WithCode(engine.ErrCodeValidation)
	}
	return file, s, nil
}

// newStateManager opens the backend the spec file configures.
func newStateManager(ctx context.Context, file *spec.File) (*state.Manager, error) {
	backend, err := state.NewBackend(ctx, file.Backend)
	if err != nil {
		return nil, err
	}
	return state.NewManager(backend), nil
}
