package report

import (
	"context"
	"fmt"
)

// LanguageModel is the text-generation collaborator. The workflow owns no
// prompt content beyond short task instructions; everything about transport,
// model choice, and retry policy belongs to the implementation.
type LanguageModel interface {
	// GenerateText produces free text from instructions and an optional
	// conversation history.
	GenerateText(ctx context.Context, instructions string, history []Turn) (string, error)

	// GenerateBrief extracts a structured intake brief from accumulated
	// user input, preserving already-answered fields.
	GenerateBrief(ctx context.Context, input string) (Brief, error)

	// GenerateAnalysts produces a roster of at most maxAnalysts personas
	// for the topic, folding in reviewer feedback when present.
	GenerateAnalysts(ctx context.Context, brief Brief, feedback string, maxAnalysts int) ([]Analyst, error)

	// GenerateQuery derives a search query from interview context.
	GenerateQuery(ctx context.Context, instructions string) (string, error)

	// InterpretReview classifies a reviewer reply: plain acceptance, or
	// feedback (optionally with a revised analyst count).
	InterpretReview(ctx context.Context, reply string) (ReviewOutcome, error)
}

// ReviewOutcome is the structured interpretation of a reviewer reply.
type ReviewOutcome struct {
	Accepted    bool
	Feedback    string
	MaxAnalysts int // 0 leaves the configured count unchanged
}

// Query describes one evidence request. Exactly one of the request shapes is
// typically set: a search term, an explicit URL list, or a thread whose
// stored documents should be read.
type Query struct {
	Search   string
	URLs     []string
	ThreadID string
}

// Fragment is one piece of retrieved evidence.
type Fragment struct {
	Ref  string
	Text string
}

// EvidenceSource retrieves context fragments for an interview. Two
// interchangeable implementations exist: a search adapter and the stored
// document archive; the workflow's evidence mode selects one per run.
type EvidenceSource interface {
	Fetch(ctx context.Context, q Query) ([]Fragment, error)
}

// SearchFunc adapts a plain search function to EvidenceSource.
type SearchFunc func(ctx context.Context, q Query) ([]Fragment, error)

func (f SearchFunc) Fetch(ctx context.Context, q Query) ([]Fragment, error) {
	return f(ctx, q)
}

// Exporter converts the final report text to an artifact and delivers it.
// It is consumed once, after the workflow completes with a final report.
type Exporter interface {
	Render(ctx context.Context, text string) ([]byte, error)
	Deliver(ctx context.Context, artifact []byte) error
}

// ServiceError wraps a collaborator failure with the service and operation
// that failed. The engine does not retry these; callers attach a per-node
// retry policy when they want one.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func serviceErr(service, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Op: op, Err: err}
}
