package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSubprocessBackend_Success(t *testing.T) {
	b := NewSubprocessBackend("echo", "sh", "-c", "cat >/dev/null; echo ok")

	result := b.Execute(context.Background(), Request{
		Prompt:      "implement feature.auth",
		ProjectRoot: t.TempDir(),
	})

	if !result.Success {
		t.Fatalf("Expected success, got error %q", result.Error)
	}
	if !strings.Contains(result.Output, "ok") {
		t.Errorf("Expected output to contain ok, got %q", result.Output)
	}
	if result.Duration <= 0 {
		t.Error("Expected positive duration")
	}
}

func TestSubprocessBackend_NonzeroExit(t *testing.T) {
	b := NewSubprocessBackend("fail", "sh", "-c", "echo broken >&2; exit 3")

	result := b.Execute(context.Background(), Request{ProjectRoot: t.TempDir()})

	if result.Success {
		t.Fatal("Expected failure")
	}
	if result.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Error, "broken") {
		t.Errorf("Expected stderr in error, got %q", result.Error)
	}
}

func TestSubprocessBackend_CommandNotFound(t *testing.T) {
	b := NewSubprocessBackend("ghost", "definitely-not-a-real-command-xyz")

	if b.Available() {
		t.Error("Expected unavailable for missing command")
	}

	result := b.Execute(context.Background(), Request{ProjectRoot: t.TempDir()})
	if result.Success {
		t.Fatal("Expected failure")
	}
	if !strings.Contains(result.Error, "Agent command not found: definitely-not-a-real-command-xyz") {
		t.Errorf("Expected command-not-found error, got %q", result.Error)
	}
}

func TestSubprocessBackend_Timeout(t *testing.T) {
	b := NewSubprocessBackend("slow", "sleep", "5")

	result := b.Execute(context.Background(), Request{
		ProjectRoot: t.TempDir(),
		Timeout:     100 * time.Millisecond,
	})

	if result.Success {
		t.Fatal("Expected timeout failure")
	}
	if !strings.Contains(result.Error, "Agent timed out after") {
		t.Errorf("Expected timeout error, got %q", result.Error)
	}
}

func TestChainedBackend_FallsThroughToSecond(t *testing.T) {
	failing := NewFuncBackend("first", func(context.Context, Request) *Result {
		return &Result{Error: "no capacity"}
	})
	working := NewFuncBackend("second", func(context.Context, Request) *Result {
		return &Result{Success: true, Output: "done"}
	})

	chain := NewChainedBackend(failing, working)
	result := chain.Execute(context.Background(), Request{})

	if !result.Success {
		t.Fatalf("Expected success, got %q", result.Error)
	}
	if !strings.Contains(result.Output, "[ChainedAgent] Success with second (attempt 2/2)") {
		t.Errorf("Expected chain annotation, got %q", result.Output)
	}
	if chain.LastSuccessful() != "second" {
		t.Errorf("Expected last successful second, got %q", chain.LastSuccessful())
	}
	if chain.Attempts() != 1 {
		t.Errorf("Expected 1 attempt, got %d", chain.Attempts())
	}
}

func TestChainedBackend_ConcurrentExecutes(t *testing.T) {
	failing := NewFuncBackend("flaky", func(context.Context, Request) *Result {
		return &Result{Error: "no capacity"}
	})
	working := NewFuncBackend("steady", func(context.Context, Request) *Result {
		return &Result{Success: true, Output: "done"}
	})
	chain := NewChainedBackend(failing, working)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if result := chain.Execute(context.Background(), Request{}); !result.Success {
				t.Errorf("Expected success, got %q", result.Error)
			}
		}()
	}
	wg.Wait()

	if chain.Attempts() != 8 {
		t.Errorf("Expected 8 attempts, got %d", chain.Attempts())
	}
	if chain.LastSuccessful() != "steady" {
		t.Errorf("Expected last successful steady, got %q", chain.LastSuccessful())
	}
}

func TestChainedBackend_AllFail(t *testing.T) {
	a := NewFuncBackend("a", func(context.Context, Request) *Result {
		return &Result{Error: "rate limited"}
	})
	b := NewFuncBackend("b", func(context.Context, Request) *Result {
		return &Result{Error: "crashed"}
	})

	chain := NewChainedBackend(a, b)
	result := chain.Execute(context.Background(), Request{})

	if result.Success {
		t.Fatal("Expected failure")
	}
	if !strings.Contains(result.Error, "[ChainedAgent] All 2 agents failed:") {
		t.Errorf("Expected aggregate header, got %q", result.Error)
	}
	if !strings.Contains(result.Error, "Agent a: rate limited") ||
		!strings.Contains(result.Error, "Agent b: crashed") {
		t.Errorf("Expected per-agent failures, got %q", result.Error)
	}
}

func TestRegistry_ChainParsing(t *testing.T) {
	r := NewRegistry()
	r.Register("mock", func() Backend {
		return NewFuncBackend("mock", func(context.Context, Request) *Result {
			return &Result{Success: true}
		})
	})

	b, err := r.Get("claude,mock")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if b.Name() != "chained(claude,mock)" {
		t.Errorf("Expected chained backend, got %q", b.Name())
	}

	if _, err := r.Get("nope"); err == nil {
		t.Error("Expected error for unknown agent")
	}
}

func TestResult_AllFiles(t *testing.T) {
	r := &Result{
		FilesCreated:  []string{"a.go"},
		FilesModified: []string{"b.go", "c.go"},
	}
	if got := len(r.AllFiles()); got != 3 {
		t.Errorf("Expected 3 files, got %d", got)
	}
}
