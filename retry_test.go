package weft

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_ClampsMaxAttempts(t *testing.T) {
	if got := Retry(0).Policy().MaxAttempts; got != 1 {
		t.Fatalf("expected MaxAttempts 1, got %d", got)
	}
	if got := Retry(-5).Policy().MaxAttempts; got != 1 {
		t.Fatalf("expected MaxAttempts 1, got %d", got)
	}
	if got := Retry(4).Policy().MaxAttempts; got != 4 {
		t.Fatalf("expected MaxAttempts 4, got %d", got)
	}
}

func TestRetry_WithExponentialBackoffDefaultsMultiplier(t *testing.T) {
	p := Retry(3).WithExponentialBackoff(100*time.Millisecond, 0, 2*time.Second).Policy()
	if p.Multiplier != 2.0 {
		t.Fatalf("expected default multiplier 2.0, got %v", p.Multiplier)
	}
	if p.InitialBackoff != 100*time.Millisecond || p.MaxBackoff != 2*time.Second {
		t.Fatalf("unexpected backoff bounds: %+v", p)
	}
}

func TestRetry_WithConstantBackoff(t *testing.T) {
	p := Retry(3).WithConstantBackoff(50 * time.Millisecond).Policy()
	if p.Multiplier != 1.0 {
		t.Fatalf("expected multiplier 1.0, got %v", p.Multiplier)
	}
	if p.InitialBackoff != 50*time.Millisecond {
		t.Fatalf("expected constant 50ms backoff, got %v", p.InitialBackoff)
	}
}

func TestRetry_ImmediateClearsBackoff(t *testing.T) {
	p := Retry(3).WithConstantBackoff(time.Second).Immediate().Policy()
	if p.InitialBackoff != 0 || p.MaxBackoff != 0 {
		t.Fatalf("expected no backoff, got %+v", p)
	}
	if p.MaxAttempts != 3 {
		t.Fatalf("expected MaxAttempts preserved, got %d", p.MaxAttempts)
	}
}

func TestAddNodeWithRetry_FlakyNodeEventuallySucceeds(t *testing.T) {
	attempts := 0
	g, err := NewGraph("flaky", builderTestSchema()).
		AddNodeWithRetry("flaky", func(ctx context.Context, st State) (Update, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("transient")
			}
			return Update{"topic": "done"}, nil
		}, Retry(3).Immediate().Policy()).
		AddEdge("flaky", End).
		Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	rt := NewInMemoryRuntime()
	if err := rt.RegisterGraph(g); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}

	run, err := Run(context.Background(), rt, "flaky", "t-flaky", nil, RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %q", run.Status)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}
