package apply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/featurectl/featurectl/pkg/agent"
	"github.com/featurectl/featurectl/pkg/contexts"
	"github.com/featurectl/featurectl/pkg/engine"
	"github.com/featurectl/featurectl/pkg/market"
	"github.com/featurectl/featurectl/pkg/state"
	"github.com/featurectl/featurectl/pkg/telemetry"
	"github.com/featurectl/featurectl/pkg/verify"
)

func testSpec(resources ...*engine.Resource) *engine.Spec {
	spec := engine.NewSpec()
	for _, r := range resources {
		spec.Add(r)
	}
	return spec
}

func feature(name string, deps ...string) *engine.Resource {
	return &engine.Resource{
		Type:      "feature",
		Name:      name,
		Status:    engine.StatusMissing,
		DependsOn: deps,
	}
}

func succeedingBackend() agent.Backend {
	return agent.NewFuncBackend("test", func(ctx context.Context, req agent.Request) *agent.Result {
		return &agent.Result{Success: true, Output: "done"}
	})
}

func newTestRunner(t *testing.T, cfg Config, spec *engine.Spec, backend agent.Backend) *Runner {
	t.Helper()

	dir := t.TempDir()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	registry, err := contexts.Load(filepath.Join(dir, "contexts.json"))
	if err != nil {
		t.Fatalf("contexts.Load failed: %v", err)
	}

	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.VerifyLevel == "" {
		cfg.VerifyLevel = verify.LevelBasic
	}

	return &Runner{
		Config:      cfg,
		Spec:        spec,
		States:      state.NewManager(state.NewLocalBackend(filepath.Join(dir, "state.json"))),
		Backend:     backend,
		Verifier:    verify.New(dir),
		Contexts:    registry,
		Market:      market.NewClient("http://market.invalid", market.WithDryRun(true)),
		Logger:      logger,
		Metrics:     metrics,
		ProjectRoot: dir,
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Mode: "yolo", MaxWorkers: 0, Timeout: -1 * time.Second, VerifyLevel: "deep"}
	problems := cfg.Validate()
	if len(problems) != 4 {
		t.Fatalf("Expected 4 problems, got %d: %v", len(problems), problems)
	}
	if problems[0] != "Invalid mode: yolo (must be interactive, auto, hybrid, or market)" {
		t.Errorf("Unexpected mode problem: %q", problems[0])
	}
	if problems[1] != "parallel must be >= 1, got 0" {
		t.Errorf("Unexpected parallel problem: %q", problems[1])
	}

	good := Config{Mode: ModeAuto, MaxWorkers: 4, VerifyLevel: verify.LevelBasic}
	if problems := good.Validate(); len(problems) != 0 {
		t.Errorf("Expected valid config, got problems: %v", problems)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	r := newTestRunner(t, Config{Mode: "bogus", MaxWorkers: 1}, testSpec(), succeedingBackend())
	r.Config.MaxWorkers = 0

	_, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}
	var engErr *engine.Error
	if !errors.As(err, &engErr) {
		t.Fatalf("Expected *engine.Error, got %T", err)
	}
	if engErr.Code != engine.ErrCodeValidation {
		t.Errorf("Expected code %s, got %s", engine.ErrCodeValidation, engErr.Code)
	}
}

func TestAutoModeConverges(t *testing.T) {
	spec := testSpec(feature("auth"), feature("profile", "feature.auth"))
	r := newTestRunner(t, Config{Mode: ModeAuto}, spec, succeedingBackend())

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Implemented) != 2 {
		t.Fatalf("Expected 2 implemented, got %d: %v", len(result.Implemented), result.Implemented)
	}
	if result.Total() != 2 {
		t.Errorf("Expected total 2, got %d", result.Total())
	}

	st, err := r.States.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, addr := range []string{"feature.auth", "feature.profile"} {
		tracked := st.Get(addr)
		if tracked == nil {
			t.Fatalf("Expected %s in state", addr)
		}
		if tracked.Status != engine.StatusImplemented {
			t.Errorf("Expected %s implemented, got %s", addr, tracked.Status)
		}
	}

	// A second apply should find nothing to do.
	again, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if again.Total() != 0 {
		t.Errorf("Expected converged state, got %d actions", again.Total())
	}
}

func TestAutoModeVerificationGatesStatus(t *testing.T) {
	missing := feature("ghost")
	missing.Files = []string{"ghost.go"}
	r := newTestRunner(t, Config{Mode: ModeAuto}, testSpec(missing), succeedingBackend())

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Implemented) != 1 {
		t.Fatalf("Expected partial resource in implemented bag, got %v", result)
	}

	st, _ := r.States.Load(context.Background())
	tracked := st.Get("feature.ghost")
	if tracked == nil || tracked.Status != engine.StatusPartial {
		t.Fatalf("Expected partial status, got %v", tracked)
	}
	if reason, ok := tracked.Attributes["partial_reason"].(string); !ok || reason == "" {
		t.Errorf("Expected a recorded partial_reason, got %v", tracked.Attributes["partial_reason"])
	}
}

func TestAutoModeVerifiedFileCountsImplemented(t *testing.T) {
	declared := feature("real")
	declared.Files = []string{"real.go"}
	r := newTestRunner(t, Config{Mode: ModeAuto}, testSpec(declared), nil)

	r.Backend = agent.NewFuncBackend("writer", func(ctx context.Context, req agent.Request) *agent.Result {
		path := filepath.Join(r.ProjectRoot, "real.go")
		if err := os.WriteFile(path, []byte("package real\n"), 0644); err != nil {
			return &agent.Result{Error: err.Error()}
		}
		return &agent.Result{Success: true, FilesCreated: []string{"real.go"}}
	})

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Implemented) != 1 {
		t.Fatalf("Expected 1 implemented, got %v", result)
	}

	st, _ := r.States.Load(context.Background())
	if got := st.Get("feature.real").Status; got != engine.StatusImplemented {
		t.Errorf("Expected implemented, got %s", got)
	}
}

func TestRequireTestsMarksPartial(t *testing.T) {
	r := newTestRunner(t, Config{Mode: ModeAuto, RequireTests: true}, testSpec(feature("untested")), succeedingBackend())

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Implemented) != 1 {
		t.Fatalf("Expected 1 in implemented bag, got %v", result)
	}

	st, _ := r.States.Load(context.Background())
	tracked := st.Get("feature.untested")
	if tracked.Status != engine.StatusPartial {
		t.Errorf("Expected partial without declared tests, got %s", tracked.Status)
	}
	if reason := tracked.Attributes["partial_reason"]; reason != "no tests declared" {
		t.Errorf("Expected reason 'no tests declared', got %v", reason)
	}
}

func TestAutoModeFailureSkipsDependents(t *testing.T) {
	spec := testSpec(
		feature("base"),
		feature("mid", "feature.base"),
		feature("top", "feature.mid"),
	)
	backend := agent.NewFuncBackend("failing", func(ctx context.Context, req agent.Request) *agent.Result {
		return &agent.Result{Success: false, Error: "compile error"}
	})
	r := newTestRunner(t, Config{Mode: ModeAuto}, spec, backend)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Failed) != 1 || result.Failed[0] != "feature.base" {
		t.Errorf("Expected feature.base failed, got %v", result.Failed)
	}
	if len(result.Skipped) != 2 {
		t.Errorf("Expected 2 transitively skipped, got %v", result.Skipped)
	}
}

func TestInteractiveScripted(t *testing.T) {
	spec := testSpec(feature("a"), feature("b"), feature("c"), feature("d"))
	r := newTestRunner(t, Config{Mode: ModeInteractive}, spec, succeedingBackend())

	// a: implemented (no evidence files), b: partial with reason,
	// c: skip, d: agent.
	answers := []string{"i", "", "p", "done enough", "s", "a"}
	r.Input = func(prompt string) (string, error) {
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// a marked implemented, b marked partial, c skipped, d via agent.
	if len(result.Implemented) != 3 {
		t.Errorf("Expected 3 implemented, got %v", result.Implemented)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "feature.c" {
		t.Errorf("Expected feature.c skipped, got %v", result.Skipped)
	}

	st, _ := r.States.Load(context.Background())
	if got := st.Get("feature.b").Status; got != engine.StatusPartial {
		t.Errorf("Expected feature.b partial, got %s", got)
	}
	if reason := st.Get("feature.b").Attributes["partial_reason"]; reason != "done enough" {
		t.Errorf("Expected recorded reason, got %v", reason)
	}
}

func TestInteractiveQuitStopsEarly(t *testing.T) {
	spec := testSpec(feature("a"), feature("b"))
	r := newTestRunner(t, Config{Mode: ModeInteractive}, spec, succeedingBackend())
	r.Input = func(prompt string) (string, error) { return "q", nil }

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Total() != 0 {
		t.Errorf("Expected no resources touched before quit, got %v", result)
	}
}

func TestHybridReviewDecisions(t *testing.T) {
	// accepted lands implemented, edited lands partial, rejected fails,
	// anything else skips.
	spec := testSpec(feature("a"), feature("b"), feature("c"), feature("d"))
	r := newTestRunner(t, Config{Mode: ModeHybrid}, spec, succeedingBackend())

	answers := []string{"a", "e", "needs polish", "r", "x"}
	r.Input = func(prompt string) (string, error) {
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Implemented) != 2 {
		t.Errorf("Expected 2 implemented, got %v", result.Implemented)
	}
	if len(result.Failed) != 1 || result.Failed[0] != "feature.c" {
		t.Errorf("Expected feature.c rejected, got %v", result.Failed)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "feature.d" {
		t.Errorf("Expected feature.d skipped, got %v", result.Skipped)
	}

	st, _ := r.States.Load(context.Background())
	if got := st.Get("feature.a").Status; got != engine.StatusImplemented {
		t.Errorf("Expected feature.a implemented, got %s", got)
	}
	if got := st.Get("feature.b").Status; got != engine.StatusPartial {
		t.Errorf("Expected feature.b partial, got %s", got)
	}
}

func TestHybridReviewAfterAgentFailure(t *testing.T) {
	// The reviewer still decides even when the agent fails; accepting
	// records hand-done work.
	spec := testSpec(feature("tricky"))
	backend := agent.NewFuncBackend("failing", func(ctx context.Context, req agent.Request) *agent.Result {
		return &agent.Result{Success: false, Error: "agent gave up"}
	})
	r := newTestRunner(t, Config{Mode: ModeHybrid}, spec, backend)
	r.Input = func(prompt string) (string, error) { return "a", nil }

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Implemented) != 1 {
		t.Fatalf("Expected accept to land implemented, got %v", result)
	}

	st, _ := r.States.Load(context.Background())
	if got := st.Get("feature.tricky").Status; got != engine.StatusImplemented {
		t.Errorf("Expected implemented, got %s", got)
	}
}

func TestHybridManualFallbackToMarket(t *testing.T) {
	spec := testSpec(feature("outsourced"))
	backend := agent.NewFuncBackend("failing", func(ctx context.Context, req agent.Request) *agent.Result {
		return &agent.Result{Success: false, Error: "too hard"}
	})
	r := newTestRunner(t, Config{Mode: ModeHybrid}, spec, backend)

	answers := []string{"m", "m"}
	r.Input = func(prompt string) (string, error) {
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.MarketPending) != 1 || result.MarketPending[0] != "feature.outsourced" {
		t.Errorf("Expected feature.outsourced market pending, got %v", result)
	}
}

func TestMarketModeDefers(t *testing.T) {
	spec := testSpec(feature("paid"), feature("gratis"))
	r := newTestRunner(t, Config{Mode: ModeMarket, MarketBounty: 25}, spec, succeedingBackend())

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.MarketPending) != 2 {
		t.Fatalf("Expected 2 market pending, got %v", result)
	}

	// Posted resources stay unconverged until a worker delivers.
	st, _ := r.States.Load(context.Background())
	if tracked := st.Get("feature.paid"); tracked != nil {
		t.Errorf("Expected feature.paid absent from state, got %v", tracked)
	}
}

func TestNonAutoModeRunsSequentiallyWithParallelSet(t *testing.T) {
	spec := testSpec(feature("a"), feature("b"))
	r := newTestRunner(t, Config{Mode: ModeMarket, MaxWorkers: 4}, spec, succeedingBackend())

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.MarketPending) != 2 {
		t.Errorf("Expected 2 market pending, got %v", result)
	}
	if result.Total() != 2 {
		t.Errorf("Expected every action accounted for, got total %d", result.Total())
	}
}

func TestMarketTaskPayload(t *testing.T) {
	res := feature("paid", "feature.base")
	res.Attributes = map[string]any{"bounty": 100}
	r := newTestRunner(t, Config{Mode: ModeMarket, MarketBounty: 25}, testSpec(res), succeedingBackend())

	ctx := context.Background()
	st, err := r.States.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	exec := &executor{runner: r, state: st}

	task, err := exec.postToMarket(ctx, engine.PlanAction{Action: engine.ActionCreate, Resource: res})
	if err != nil {
		t.Fatalf("postToMarket failed: %v", err)
	}
	if task.Title != "Implement feature.paid" {
		t.Errorf("Unexpected title: %q", task.Title)
	}
	if task.Bounty != 100 {
		t.Errorf("Expected resource bounty to override config, got %v", task.Bounty)
	}
	if len(task.Tags) != 3 || task.Tags[0] != "feature" || task.Tags[1] != "create" || task.Tags[2] != "featurectl" {
		t.Errorf("Unexpected tags: %v", task.Tags)
	}
	if task.Metadata["address"] != "feature.paid" {
		t.Errorf("Unexpected metadata address: %v", task.Metadata["address"])
	}
	if task.ID == "" || task.Status != market.TaskStatusOpen {
		t.Errorf("Expected dry-run client to fill ID and open status, got %+v", task)
	}
	if !strings.Contains(task.Description, "## Resource: feature.paid") {
		t.Errorf("Expected full prompt as description, got %q", task.Description)
	}
}

func TestDryRunExecutesNothing(t *testing.T) {
	spec := testSpec(feature("a"))
	called := false
	backend := agent.NewFuncBackend("spy", func(ctx context.Context, req agent.Request) *agent.Result {
		called = true
		return &agent.Result{Success: true}
	})
	r := newTestRunner(t, Config{Mode: ModeAuto, DryRun: true}, spec, backend)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Total() != 0 {
		t.Errorf("Expected empty result for dry run, got %v", result)
	}
	if called {
		t.Error("Expected no agent calls during dry run")
	}
}

func TestTargetLimitsScope(t *testing.T) {
	spec := testSpec(feature("wanted"), feature("other"))
	r := newTestRunner(t, Config{Mode: ModeAuto, Target: "feature.wanted"}, spec, succeedingBackend())

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Implemented) != 1 || result.Implemented[0] != "feature.wanted" {
		t.Errorf("Expected only feature.wanted, got %v", result.Implemented)
	}
}

func TestParallelRespectsDependencies(t *testing.T) {
	// Diamond: base -> {left, right} -> join.
	spec := testSpec(
		feature("base"),
		feature("left", "feature.base"),
		feature("right", "feature.base"),
		feature("join", "feature.left", "feature.right"),
	)

	var mu sync.Mutex
	var order []string
	backend := agent.NewFuncBackend("recorder", func(ctx context.Context, req agent.Request) *agent.Result {
		// The prompt names the resource address in its header.
		mu.Lock()
		order = append(order, req.Prompt)
		mu.Unlock()
		return &agent.Result{Success: true}
	})

	r := newTestRunner(t, Config{Mode: ModeAuto, MaxWorkers: 4}, spec, backend)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Implemented) != 4 {
		t.Fatalf("Expected 4 implemented, got %v", result)
	}

	position := func(addr string) int {
		for i, prompt := range order {
			if strings.Contains(prompt, addr) {
				return i
			}
		}
		return -1
	}
	if position("feature.base") > position("feature.left") ||
		position("feature.base") > position("feature.right") {
		t.Errorf("Expected base before left and right, got order of %d prompts", len(order))
	}
	if position("feature.join") < position("feature.left") ||
		position("feature.join") < position("feature.right") {
		t.Errorf("Expected join last, got order of %d prompts", len(order))
	}
}

func TestParallelFailureSkipsDependents(t *testing.T) {
	spec := testSpec(
		feature("base"),
		feature("a", "feature.base"),
		feature("b", "feature.base"),
	)
	backend := agent.NewFuncBackend("failing", func(ctx context.Context, req agent.Request) *agent.Result {
		return &agent.Result{Success: false, Error: "boom"}
	})
	r := newTestRunner(t, Config{Mode: ModeAuto, MaxWorkers: 3}, spec, backend)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Failed) != 1 || result.Failed[0] != "feature.base" {
		t.Errorf("Expected feature.base failed, got %v", result.Failed)
	}
	if len(result.Skipped) != 2 {
		t.Errorf("Expected both dependents skipped, got %v", result.Skipped)
	}
	if result.Total() != 3 {
		t.Errorf("Expected every action accounted for, got total %d", result.Total())
	}
}

func TestParallelRecordsContextsForEveryResource(t *testing.T) {
	// Workers register context entries while prompt building reads
	// them, so the registry sees concurrent access throughout the run.
	var resources []*engine.Resource
	for i := 0; i < 12; i++ {
		resources = append(resources, feature(fmt.Sprintf("r%02d", i)))
	}
	r := newTestRunner(t, Config{Mode: ModeAuto, MaxWorkers: 8}, testSpec(resources...), succeedingBackend())

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Implemented) != 12 {
		t.Fatalf("Expected 12 implemented, got %v", result)
	}

	for _, res := range resources {
		if entries := r.Contexts.ForResource(res.Address()); len(entries) != 1 {
			t.Errorf("Expected 1 context entry for %s, got %d", res.Address(), len(entries))
		}
	}
}

func TestParallelStuckBatchTerminates(t *testing.T) {
	// The scheduler rejects cycles, so feed runParallel directly with
	// two actions that wait on each other.
	a := feature("a", "feature.b")
	b := feature("b", "feature.a")
	r := newTestRunner(t, Config{Mode: ModeAuto, MaxWorkers: 2}, testSpec(a, b), succeedingBackend())

	ctx := context.Background()
	st, err := r.States.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	exec := &executor{runner: r, state: st}

	ordered := []engine.PlanAction{
		{Action: engine.ActionCreate, Resource: a},
		{Action: engine.ActionCreate, Resource: b},
	}
	result, err := exec.runParallel(ctx, ordered)
	if err != nil {
		t.Fatalf("runParallel failed: %v", err)
	}
	if len(result.Skipped) != 2 {
		t.Errorf("Expected both actions skipped, got %v", result.Skipped)
	}
	if result.Total() != 2 {
		t.Errorf("Expected every action accounted for, got total %d", result.Total())
	}
}

func TestDeleteRemovesFromState(t *testing.T) {
	r := newTestRunner(t, Config{Mode: ModeAuto}, testSpec(), succeedingBackend())

	ctx := context.Background()
	st, _ := r.States.Load(ctx)
	stale := feature("obsolete")
	stale.Status = engine.StatusImplemented
	st.Set(stale)
	if err := r.States.Save(ctx, st); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	result, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Implemented) != 1 || result.Implemented[0] != "feature.obsolete" {
		t.Errorf("Expected delete recorded as implemented, got %v", result)
	}

	after, _ := r.States.Load(ctx)
	if after.Get("feature.obsolete") != nil {
		t.Error("Expected feature.obsolete removed from state")
	}
}
