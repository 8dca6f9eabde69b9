package weft

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
)

func registerCounterGraph(t *testing.T, rt Runtime) {
	t.Helper()

	g, err := NewGraph("counter", builderTestSchema()).
		AddNode("count", func(ctx context.Context, st State) (Update, error) {
			return Update{"sections": []string{"tick"}}, nil
		}).
		AddConditionalEdge("count", func(ctx context.Context, st State) Route {
			sections, _ := st["sections"].([]string)
			if len(sections) < 3 {
				return Goto("count")
			}
			return Stop()
		}).
		Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if err := rt.RegisterGraph(g); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}
}

func TestRunAndStateOfWrappers(t *testing.T) {
	rt := NewInMemoryRuntime()
	registerCounterGraph(t, rt)
	ctx := context.Background()

	run, err := Run(ctx, rt, "counter", "t-1", nil, RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Status != StatusCompleted || run.Steps != 3 {
		t.Fatalf("unexpected run info: %+v", run)
	}

	st, step, err := StateOf(ctx, rt, "t-1")
	if err != nil {
		t.Fatalf("StateOf failed: %v", err)
	}
	if step != 3 {
		t.Fatalf("expected checkpoint step 3, got %d", step)
	}
	sections, _ := st["sections"].([]string)
	if len(sections) != 3 {
		t.Fatalf("expected 3 accumulated sections, got %v", sections)
	}

	events, err := History(ctx, rt, "t-1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("expected run events in the history")
	}
}

func TestRecursionLimitSurfacesThroughWrapper(t *testing.T) {
	rt := NewInMemoryRuntime()

	g, err := NewGraph("spin", builderTestSchema()).
		AddNode("spin", func(ctx context.Context, st State) (Update, error) {
			return nil, nil
		}).
		AddConditionalEdge("spin", func(ctx context.Context, st State) Route {
			return Goto("spin")
		}).
		Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if err := rt.RegisterGraph(g); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}

	_, err = Run(context.Background(), rt, "spin", "t-spin", nil, RunOptions{RecursionLimit: 5})
	if !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("expected ErrRecursionLimit, got %v", err)
	}
}

func TestSQLiteRuntimeSurvivesReopen(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	rt, err := NewSQLiteRuntime(db)
	if err != nil {
		t.Fatalf("NewSQLiteRuntime failed: %v", err)
	}
	registerCounterGraph(t, rt)

	ctx := context.Background()
	if _, err := Run(ctx, rt, "counter", "t-sql", nil, RunOptions{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// A second runtime over the same DB sees the checkpoints and history.
	rt2, err := NewSQLiteRuntime(db)
	if err != nil {
		t.Fatalf("NewSQLiteRuntime (reopen) failed: %v", err)
	}
	st, _, err := StateOf(ctx, rt2, "t-sql")
	if err != nil {
		t.Fatalf("StateOf failed: %v", err)
	}
	sections, _ := st["sections"].([]string)
	if len(sections) != 3 {
		t.Fatalf("expected the persisted state, got %v", sections)
	}
}
