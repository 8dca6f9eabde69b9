package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jtolonen/weft/internal/engine"
	"github.com/jtolonen/weft/pkg/api"
	"github.com/jtolonen/weft/pkg/review"
)

// fakeModel is a scriptable LanguageModel. Unset hooks fall back to small
// deterministic defaults so each test only scripts what it asserts on.
type fakeModel struct {
	mu sync.Mutex

	generateText     func(ctx context.Context, instructions string, history []Turn) (string, error)
	generateBrief    func(ctx context.Context, input string) (Brief, error)
	generateAnalysts func(ctx context.Context, brief Brief, feedback string, maxAnalysts int) ([]Analyst, error)
	generateQuery    func(ctx context.Context, instructions string) (string, error)
	interpretReview  func(ctx context.Context, reply string) (ReviewOutcome, error)

	analystCalls    int
	analystFeedback []string
}

var _ LanguageModel = (*fakeModel)(nil)

func (m *fakeModel) GenerateText(ctx context.Context, instructions string, history []Turn) (string, error) {
	if m.generateText != nil {
		return m.generateText(ctx, instructions, history)
	}
	return "text", nil
}

func (m *fakeModel) GenerateBrief(ctx context.Context, input string) (Brief, error) {
	if m.generateBrief != nil {
		return m.generateBrief(ctx, input)
	}
	return completeBrief(), nil
}

func (m *fakeModel) GenerateAnalysts(ctx context.Context, brief Brief, feedback string, maxAnalysts int) ([]Analyst, error) {
	m.mu.Lock()
	m.analystCalls++
	m.analystFeedback = append(m.analystFeedback, feedback)
	m.mu.Unlock()

	if m.generateAnalysts != nil {
		return m.generateAnalysts(ctx, brief, feedback, maxAnalysts)
	}
	analysts := make([]Analyst, maxAnalysts)
	for i := range analysts {
		analysts[i] = Analyst{
			Name:        fmt.Sprintf("A%d", i),
			Affiliation: "Lab",
			Role:        "Researcher",
			Description: fmt.Sprintf("focus area %d", i),
		}
	}
	return analysts, nil
}

func (m *fakeModel) GenerateQuery(ctx context.Context, instructions string) (string, error) {
	if m.generateQuery != nil {
		return m.generateQuery(ctx, instructions)
	}
	return "query", nil
}

func (m *fakeModel) InterpretReview(ctx context.Context, reply string) (ReviewOutcome, error) {
	if m.interpretReview != nil {
		return m.interpretReview(ctx, reply)
	}
	// Scripted reviews: "looks good" accepts, anything else is feedback.
	if strings.Contains(reply, "looks good") {
		return ReviewOutcome{Accepted: true}, nil
	}
	return ReviewOutcome{Feedback: reply}, nil
}

func (m *fakeModel) analystCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analystCalls
}

func completeBrief() Brief {
	return Brief{
		Topic:               "go workflow engines",
		Description:         "a survey of graph runtimes",
		ReportType:          "analytical",
		EvidenceMode:        ModeSearch,
		BrowseQuery:         "graph workflow runtimes",
		IncludeIndex:        AnswerYes,
		IncludeIntroduction: AnswerYes,
		IncludeConclusion:   AnswerYes,
		IncludeSources:      AnswerYes,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxTurns = 1
	cfg.ReviewTimeout = time.Second
	cfg.PollInterval = 2 * time.Millisecond
	return cfg
}

// startReviewer polls the channel and answers each new workflow message
// with whatever the script returns. A nil reply skips the message.
func startReviewer(t *testing.T, ch *review.InMemoryChannel, self string, script func(text string) string) func() {
	t.Helper()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		marker := ""
		for {
			select {
			case <-done:
				return
			case <-time.After(2 * time.Millisecond):
			}
			msgs, err := ch.NewSince(context.Background(), marker)
			if err != nil {
				return
			}
			for _, msg := range msgs {
				marker = msg.ID
				if msg.Author != self {
					continue
				}
				if reply := script(msg.Text); reply != "" {
					if m, err := ch.Post(context.Background(), "reviewer", reply); err == nil {
						marker = m.ID
					}
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// newTestWorkflow builds a workflow on an in-memory runtime with the graph
// already registered.
func newTestWorkflow(t *testing.T, cfg Config, model LanguageModel, ch *review.InMemoryChannel, opts ...Option) (*Workflow, api.Runtime) {
	t.Helper()

	w, err := New(cfg, model, ch, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	rt := engine.NewInMemoryRuntime()
	if err := w.Register(rt); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return w, rt
}
