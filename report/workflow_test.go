package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jtolonen/weft/pkg/api"
	"github.com/jtolonen/weft/pkg/review"
)

// scriptWriterText implements the writer-side generation calls for a full
// run. Section text encodes the analyst index so join order is observable;
// earlier indices sleep longer, so completion order is reversed.
func scriptWriterText(ctx context.Context, instructions string, history []Turn) (string, error) {
	switch {
	case strings.Contains(instructions, "interviewing an expert"):
		return "What is the main challenge?", nil
	case strings.Contains(instructions, "expert answering"):
		return "The main challenge is scheduling.", nil
	case strings.Contains(instructions, "Write one report section"):
		idx := analystIndex(instructions)
		time.Sleep(time.Duration(3-idx) * 20 * time.Millisecond)
		return fmt.Sprintf("S%d", idx), nil
	case strings.Contains(instructions, "Write the body"):
		return "BODY\n\n## Sources\n\n[1] example", nil
	case strings.Contains(instructions, "Write the introduction"):
		return "INTRO", nil
	case strings.Contains(instructions, "Write the conclusion"):
		return "CONCLUSION", nil
	case strings.Contains(instructions, "table of contents"):
		return "INDEX", nil
	case strings.Contains(instructions, "list corrections"):
		return "ANALYSIS", nil
	case strings.Contains(instructions, "Revise this draft"):
		return "FINAL", nil
	default:
		return "", fmt.Errorf("unscripted instructions: %.60s", instructions)
	}
}

func analystIndex(instructions string) int {
	_, rest, ok := strings.Cut(instructions, "focus area ")
	if !ok || rest == "" {
		return 0
	}
	return int(rest[0] - '0')
}

// reviewerAcceptAll answers the intake questions and accepts both the brief
// summary and the first roster.
func reviewerAcceptAll(text string) string {
	switch {
	case strings.HasPrefix(text, "Here is the information"):
		return "looks good"
	case strings.HasPrefix(text, "Analysts Created"):
		return "looks good"
	default:
		return ""
	}
}

func TestWorkflow_EndToEndSectionsJoinInRosterOrder(t *testing.T) {
	model := &fakeModel{generateText: scriptWriterText}
	ch := review.NewInMemoryChannel()
	cfg := testConfig()
	w, rt := newTestWorkflow(t, cfg, model, ch, WithSearchSource(
		SearchFunc(func(ctx context.Context, q Query) ([]Fragment, error) {
			return []Fragment{{Ref: "example", Text: "some evidence"}}, nil
		}),
	))

	stop := startReviewer(t, ch, cfg.ReviewerName, reviewerAcceptAll)
	defer stop()

	run, err := w.Run(context.Background(), rt, "t-e2e", "please write a report")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Status != api.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %q", run.Status)
	}

	res, err := w.Result(context.Background(), rt, "t-e2e")
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if res.Aborted {
		t.Fatalf("unexpected abort")
	}

	want := []string{"S0", "S1", "S2"}
	if len(res.Sections) != len(want) {
		t.Fatalf("expected sections %v, got %v", want, res.Sections)
	}
	for i := range want {
		if res.Sections[i] != want[i] {
			t.Fatalf("expected sections in roster order %v, got %v", want, res.Sections)
		}
	}
	if res.FinalReport != "FINAL" {
		t.Fatalf("expected final report FINAL, got %q", res.FinalReport)
	}
	if res.Analysis != "ANALYSIS" {
		t.Fatalf("expected analysis ANALYSIS, got %q", res.Analysis)
	}
	if !strings.Contains(res.Draft, "## Sources") {
		t.Fatalf("expected draft to carry the sources section, got:\n%s", res.Draft)
	}
}

func TestWorkflow_PlainAcceptanceSkipsRegeneration(t *testing.T) {
	model := &fakeModel{generateText: scriptWriterText}
	ch := review.NewInMemoryChannel()
	cfg := testConfig()
	w, rt := newTestWorkflow(t, cfg, model, ch, WithSearchSource(
		SearchFunc(func(ctx context.Context, q Query) ([]Fragment, error) {
			return nil, nil
		}),
	))

	stop := startReviewer(t, ch, cfg.ReviewerName, reviewerAcceptAll)
	defer stop()

	if _, err := w.Run(context.Background(), rt, "t-accept", "report please"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := model.analystCallCount(); got != 1 {
		t.Fatalf("expected exactly one roster generation, got %d", got)
	}
}

func TestWorkflow_FeedbackRegeneratesRoster(t *testing.T) {
	model := &fakeModel{generateText: scriptWriterText}
	ch := review.NewInMemoryChannel()
	cfg := testConfig()
	w, rt := newTestWorkflow(t, cfg, model, ch, WithSearchSource(
		SearchFunc(func(ctx context.Context, q Query) ([]Fragment, error) {
			return nil, nil
		}),
	))

	rosterSeen := 0
	stop := startReviewer(t, ch, cfg.ReviewerName, func(text string) string {
		switch {
		case strings.HasPrefix(text, "Here is the information"):
			return "looks good"
		case strings.HasPrefix(text, "Analysts Created"):
			rosterSeen++
			if rosterSeen == 1 {
				return "add a finance perspective"
			}
			return "looks good"
		default:
			return ""
		}
	})
	defer stop()

	if _, err := w.Run(context.Background(), rt, "t-regen", "report please"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := model.analystCallCount(); got != 2 {
		t.Fatalf("expected two roster generations, got %d", got)
	}
	model.mu.Lock()
	feedback := append([]string(nil), model.analystFeedback...)
	model.mu.Unlock()
	if feedback[0] != "" {
		t.Fatalf("expected empty feedback on the first round, got %q", feedback[0])
	}
	if feedback[1] != "add a finance perspective" {
		t.Fatalf("expected reviewer feedback on the second round, got %q", feedback[1])
	}
}

func TestWorkflow_ReviewTimeoutAbortsWithoutReport(t *testing.T) {
	model := &fakeModel{generateText: scriptWriterText}
	ch := review.NewInMemoryChannel()
	cfg := testConfig()
	cfg.ReviewTimeout = 60 * time.Millisecond

	w, rt := newTestWorkflow(t, cfg, model, ch)

	// The reviewer answers intake but goes silent on the roster.
	stop := startReviewer(t, ch, cfg.ReviewerName, func(text string) string {
		if strings.HasPrefix(text, "Here is the information") {
			return "looks good"
		}
		return ""
	})
	defer stop()

	run, err := w.Run(context.Background(), rt, "t-timeout", "report please")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Timeout is a graceful outcome: the run completes at End.
	if run.Status != api.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %q", run.Status)
	}

	res, err := w.Result(context.Background(), rt, "t-timeout")
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if !res.Aborted {
		t.Fatalf("expected the abort flag in the checkpointed state")
	}
	if res.FinalReport != "" {
		t.Fatalf("expected no final report after timeout, got %q", res.FinalReport)
	}
	if len(res.Sections) != 0 {
		t.Fatalf("expected no sections after timeout, got %v", res.Sections)
	}
}

func TestWorkflow_EndlessFeedbackHitsRecursionLimit(t *testing.T) {
	model := &fakeModel{generateText: scriptWriterText}
	ch := review.NewInMemoryChannel()
	cfg := testConfig()
	cfg.RecursionLimit = 20

	w, rt := newTestWorkflow(t, cfg, model, ch)

	stop := startReviewer(t, ch, cfg.ReviewerName, func(text string) string {
		switch {
		case strings.HasPrefix(text, "Here is the information"):
			return "looks good"
		case strings.HasPrefix(text, "Analysts Created"):
			return "keep changing the roster"
		default:
			return ""
		}
	})
	defer stop()

	run, err := w.Run(context.Background(), rt, "t-endless", "report please")
	if err == nil {
		t.Fatalf("expected recursion limit error, got nil")
	}
	if !errors.Is(err, api.ErrRecursionLimit) {
		t.Fatalf("expected ErrRecursionLimit, got %v", err)
	}
	if run.Status != api.StatusFailed {
		t.Fatalf("expected FAILED, got %q", run.Status)
	}
	if run.Steps != cfg.RecursionLimit+1 {
		t.Fatalf("expected the ceiling to fire on step %d, got %d", cfg.RecursionLimit+1, run.Steps)
	}
}

func TestWorkflow_RegenerationCapAborts(t *testing.T) {
	model := &fakeModel{generateText: scriptWriterText}
	ch := review.NewInMemoryChannel()
	cfg := testConfig()
	cfg.MaxRegenerations = 2

	w, rt := newTestWorkflow(t, cfg, model, ch)

	stop := startReviewer(t, ch, cfg.ReviewerName, func(text string) string {
		switch {
		case strings.HasPrefix(text, "Here is the information"):
			return "looks good"
		case strings.HasPrefix(text, "Analysts Created"):
			return "keep changing the roster"
		default:
			return ""
		}
	})
	defer stop()

	run, err := w.Run(context.Background(), rt, "t-cap", "report please")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Status != api.StatusCompleted {
		t.Fatalf("expected graceful completion, got %q", run.Status)
	}

	res, err := w.Result(context.Background(), rt, "t-cap")
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if !res.Aborted {
		t.Fatalf("expected abort once the regeneration cap was exceeded")
	}
	// Two regenerations allowed: three rosters were generated in total.
	if got := model.analystCallCount(); got != 3 {
		t.Fatalf("expected 3 roster generations (initial + 2 regenerations), got %d", got)
	}
}
