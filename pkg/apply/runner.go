package apply

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/featurectl/featurectl/pkg/agent"
	"github.com/featurectl/featurectl/pkg/contexts"
	"github.com/featurectl/featurectl/pkg/engine"
	"github.com/featurectl/featurectl/pkg/market"
	"github.com/featurectl/featurectl/pkg/state"
	"github.com/featurectl/featurectl/pkg/telemetry"
	"github.com/featurectl/featurectl/pkg/verify"
)

// Mode selects how plan actions get executed.
type Mode string

const (
	// ModeInteractive prompts the user for a decision per resource.
	ModeInteractive Mode = "interactive"

	// ModeAuto runs the configured agent on every resource.
	ModeAuto Mode = "auto"

	// ModeHybrid runs the agent and asks the user to review each result.
	ModeHybrid Mode = "hybrid"

	// ModeMarket posts every resource as a market task.
	ModeMarket Mode = "market"
)

var validModes = map[Mode]bool{
	ModeInteractive: true,
	ModeAuto:        true,
	ModeHybrid:      true,
	ModeMarket:      true,
}

// InputFunc reads one line of user input for a given prompt. Injectable
// so interactive modes can be driven from tests.
type InputFunc func(prompt string) (string, error)

// StdinInput reads responses from standard input.
func StdinInput(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Config controls an apply run.
type Config struct {
	Mode         Mode
	Agent        string
	MaxWorkers   int
	Timeout      time.Duration
	RequireTests bool
	DryRun       bool
	VerifyLevel  verify.Level
	Target       string

	// MarketBounty is the default bounty for market tasks; a resource's
	// "bounty" attribute overrides it.
	MarketBounty float64
}

// Validate returns all configuration problems at once, matching the
// style of terraform's plan-time validation.
func (c *Config) Validate() []string {
	var problems []string
	if !validModes[c.Mode] {
		problems = append(problems, fmt.Sprintf("Invalid mode: %s (must be interactive, auto, hybrid, or market)", c.Mode))
	}
	if c.MaxWorkers < 1 {
		problems = append(problems, fmt.Sprintf("parallel must be >= 1, got %d", c.MaxWorkers))
	}
	if c.Timeout < 0 {
		problems = append(problems, fmt.Sprintf("timeout must not be negative, got %s", c.Timeout))
	}
	if _, err := verify.ParseLevel(string(c.VerifyLevel)); err != nil {
		problems = append(problems, err.Error())
	}
	return problems
}

// Runner wires the collaborators an apply run needs.
type Runner struct {
	Config   Config
	Spec     *engine.Spec
	States   *state.Manager
	Backend  agent.Backend
	Verifier *verify.Verifier
	Contexts *contexts.Registry
	Market   *market.Client
	Logger   *telemetry.Logger
	Metrics  *telemetry.Metrics
	Input    InputFunc

	ProjectRoot string
}

// Run plans against current state and executes the changes. Dry runs
// stop after ordering and return an empty result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if problems := r.Config.Validate(); len(problems) > 0 {
		return nil, engine.NewPermanentError(strings.Join(problems, "; "), nil).
			WithCode(engine.ErrCodeValidation).
			WithOperation("apply")
	}
	if r.Input == nil {
		r.Input = StdinInput
	}
	if r.Metrics == nil {
		r.Metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}

	st, err := r.States.Load(ctx)
	if err != nil {
		return nil, err
	}

	plan := engine.GeneratePlan(r.Spec, st)

	actions := make([]engine.PlanAction, 0, len(plan.Actions))
	for _, a := range plan.Actions {
		if a.Action == engine.ActionNoop {
			continue
		}
		if r.Config.Target != "" && a.Resource.Address() != r.Config.Target {
			continue
		}
		actions = append(actions, a)
	}

	if len(actions) == 0 {
		r.Logger.Info("nothing to apply, state is converged")
		return &Result{}, nil
	}

	ordered, err := engine.TopologicalSort(actions, st)
	if err != nil {
		return nil, err
	}

	if r.Config.DryRun {
		r.Logger.Infof("dry run: %d actions planned, nothing executed", len(ordered))
		return &Result{}, nil
	}

	if r.Config.MaxWorkers > 1 && r.Config.Mode != ModeAuto {
		r.Logger.Warnf("parallel=%d has no effect in %s mode, running sequentially", r.Config.MaxWorkers, r.Config.Mode)
	}

	lock := state.NewLockInfo("apply " + string(r.Config.Mode))
	if err := r.States.Lock(ctx, lock); err != nil {
		return nil, err
	}
	defer func() {
		if unlockErr := r.States.Unlock(ctx, lock.ID); unlockErr != nil {
			r.Logger.WithError(unlockErr).Warn("failed to release state lock")
		}
	}()

	r.Metrics.RecordApplyStarted(string(r.Config.Mode))
	start := time.Now()

	exec := &executor{runner: r, state: st}

	var result *Result
	switch r.Config.Mode {
	case ModeInteractive:
		result, err = exec.runInteractive(ctx, ordered)
	case ModeAuto:
		result, err = exec.runAuto(ctx, ordered)
	case ModeHybrid:
		result, err = exec.runHybrid(ctx, ordered)
	case ModeMarket:
		result, err = exec.runMarket(ctx, ordered)
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)

	status := "success"
	if len(result.Failed) > 0 {
		status = "partial"
	}
	r.Metrics.RecordApplyCompleted(string(r.Config.Mode), status, result.Duration)
	r.Logger.Info(result.Summary())

	return result, nil
}
