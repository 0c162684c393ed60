package apply

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/featurectl/featurectl/pkg/agent"
	"github.com/featurectl/featurectl/pkg/engine"
	"github.com/featurectl/featurectl/pkg/market"
	"github.com/featurectl/featurectl/pkg/verify"
)

// executor carries the per-run state shared by all execution modes.
// State is saved after every resource so an interrupted run loses at
// most the resource in flight.
type executor struct {
	runner *Runner
	state  *engine.State

	// stateMu serializes state mutation and save when the parallel
	// executor runs agents concurrently.
	stateMu sync.Mutex
}

func (e *executor) prompter() *PromptBuilder {
	return &PromptBuilder{
		ProjectRoot: e.runner.ProjectRoot,
		State:       e.state,
		Contexts:    e.runner.Contexts,
	}
}

// outcome of processing one resource.
type outcome string

const (
	outcomeImplemented outcome = "implemented"
	outcomePartial     outcome = "partial"
	outcomeFailed      outcome = "failed"
)

// dispatchAgent runs the configured agent for one action and verifies
// the working tree afterwards. It commits nothing: callers decide what
// the combined evidence means for state.
func (e *executor) dispatchAgent(ctx context.Context, action engine.PlanAction) (*agent.Result, *verify.Result) {
	r := action.Resource
	log := e.runner.Logger.WithResource(r.Address()).WithAgent(e.runner.Backend.Name())

	log.Infof("running agent for %s", action.Action)

	e.stateMu.Lock()
	prompt := e.prompter().Build(action)
	e.stateMu.Unlock()

	agentResult := e.runner.Backend.Execute(ctx, agent.Request{
		Prompt:      prompt,
		ProjectRoot: e.runner.ProjectRoot,
		Timeout:     e.runner.Config.Timeout,
	})
	e.runner.Metrics.RecordAgentCall(e.runner.Backend.Name(), agentResult.Success, agentResult.Duration)

	if !agentResult.Success {
		log.Errorf("agent failed: %s", agentResult.Error)
		return agentResult, nil
	}

	verifyResult := e.runner.Verifier.Verify(ctx, r, e.runner.Config.VerifyLevel)
	e.runner.Metrics.RecordVerification(string(verifyResult.Level), verifyResult.Passed, verifyResult.Score)
	return agentResult, verifyResult
}

// runAgent executes the configured agent for one action, verifies the
// result, and persists the resource's new status. An agent success that
// fails verification lands as partial: progress was made, convergence
// was not.
func (e *executor) runAgent(ctx context.Context, action engine.PlanAction) (outcome, string) {
	r := action.Resource
	log := e.runner.Logger.WithResource(r.Address()).WithAgent(e.runner.Backend.Name())
	start := time.Now()

	agentResult, verifyResult := e.dispatchAgent(ctx, action)
	if !agentResult.Success {
		e.runner.Metrics.RecordResource(string(action.Action), string(outcomeFailed), time.Since(start))
		return outcomeFailed, agentResult.Error
	}

	status := engine.StatusImplemented
	result := outcomeImplemented
	reason := ""
	switch {
	case !verifyResult.Passed:
		status = engine.StatusPartial
		result = outcomePartial
		if len(verifyResult.Diagnostics) > 0 {
			reason = verifyResult.Diagnostics[0]
		}
		log.Warnf("verification failed (score %.2f), marking partial", verifyResult.Score)
	case e.runner.Config.RequireTests && len(r.Tests) == 0:
		status = engine.StatusPartial
		result = outcomePartial
		reason = "no tests declared"
		log.Warn("tests required but none declared, marking partial")
	}

	if err := e.persistStatus(ctx, action, status, reason, verifyResult.Symbols); err != nil {
		log.WithError(err).Error("failed to save state")
		return outcomeFailed, err.Error()
	}

	e.recordContext(r.Address(), agentResult, string(status))
	e.runner.Metrics.RecordResource(string(action.Action), string(result), time.Since(start))
	log.Infof("resource is %s", status)
	return result, ""
}

// persistStatus updates one resource in state and saves immediately.
func (e *executor) persistStatus(ctx context.Context, action engine.PlanAction, status engine.ResourceStatus, reason string, symbols map[string]engine.SymbolStatus) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	r := action.Resource

	tracked := e.state.Get(r.Address())
	if tracked == nil {
		tracked = &engine.Resource{
			Type:       r.Type,
			Name:       r.Name,
			Attributes: make(map[string]any),
		}
	}
	if tracked.Attributes == nil {
		tracked.Attributes = make(map[string]any)
	}

	tracked.Status = status
	tracked.Files = r.Files
	tracked.Tests = r.Tests
	tracked.DependsOn = r.DependsOn
	for k, v := range r.Attributes {
		tracked.Attributes[k] = v
	}
	switch status {
	case engine.StatusPartial:
		if reason != "" {
			tracked.Attributes["partial_reason"] = reason
		}
	case engine.StatusBroken:
		if reason != "" {
			tracked.Attributes["broken_reason"] = reason
		}
	default:
		delete(tracked.Attributes, "partial_reason")
		delete(tracked.Attributes, "broken_reason")
	}
	if len(symbols) > 0 {
		tracked.Symbols = symbols
	}
	tracked.Source = "auto"

	e.state.Set(tracked)
	return e.runner.States.Save(ctx, e.state)
}

// markImplementedWithEvidence asks which files prove the work was done,
// then records the resource implemented.
func (e *executor) markImplementedWithEvidence(ctx context.Context, action engine.PlanAction) error {
	answer, err := e.runner.Input("evidence files (comma-separated, optional): ")
	if err != nil {
		return err
	}
	for _, f := range strings.Split(answer, ",") {
		if f = strings.TrimSpace(f); f != "" {
			action.Resource.Files = appendUnique(action.Resource.Files, f)
		}
	}
	return e.persistStatus(ctx, action, engine.StatusImplemented, "", nil)
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

// applyDelete removes a resource from state. Deletion is a bookkeeping
// operation; featurectl never deletes code on its own.
func (e *executor) applyDelete(ctx context.Context, action engine.PlanAction) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.state.Remove(action.Resource.Address())
	return e.runner.States.Save(ctx, e.state)
}

// postToMarket creates a market task for one action.
func (e *executor) postToMarket(ctx context.Context, action engine.PlanAction) (*market.Task, error) {
	r := action.Resource

	bounty := e.runner.Config.MarketBounty
	if raw, ok := r.Attributes["bounty"]; ok {
		switch v := raw.(type) {
		case float64:
			bounty = v
		case int:
			bounty = float64(v)
		}
	}

	task := &market.Task{
		Title:       "Implement " + r.Address(),
		Description: e.prompter().Build(action),
		Bounty:      bounty,
		Tags:        []string{r.Type, string(action.Action), "featurectl"},
		Metadata: map[string]any{
			"address":    r.Address(),
			"attributes": r.Attributes,
			"depends_on": r.DependsOn,
		},
	}
	return e.runner.Market.CreateTask(ctx, task)
}

// recordContext saves what the agent did for future prompts.
func (e *executor) recordContext(address string, agentResult *agent.Result, contributedStatus string) {
	if e.runner.Contexts == nil {
		return
	}
	e.runner.Contexts.Register(e.runner.Backend.Name(), address, agentResult.AllFiles(), nil, contributedStatus)
	if err := e.runner.Contexts.Save(); err != nil {
		e.runner.Logger.WithError(err).Warn("failed to save agent contexts")
	}
}

// dependenciesClean reports whether none of the action's dependencies
// failed or were skipped earlier in this run.
func dependenciesClean(action engine.PlanAction, dirty map[string]bool) (string, bool) {
	for _, dep := range action.Resource.DependsOn {
		if dirty[dep] {
			return dep, false
		}
	}
	return "", true
}
