package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jtolonen/weft/internal/engine"
	"github.com/jtolonen/weft/pkg/api"
	"github.com/jtolonen/weft/pkg/review"
)

func runInterview(t *testing.T, model LanguageModel, init api.Update, opts ...Option) api.State {
	t.Helper()

	w, err := New(testConfig(), model, review.NewInMemoryChannel(), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	rt := engine.NewInMemoryRuntime()
	if err := rt.RegisterGraph(w.interviewGraph()); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}
	if _, err := rt.Run(context.Background(), "interview", "t-interview", init, api.RunOptions{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	st, _, err := rt.StateOf(context.Background(), "t-interview")
	if err != nil {
		t.Fatalf("StateOf failed: %v", err)
	}
	return st
}

func interviewInit(maxTurns int) api.Update {
	return api.Update{
		FieldAnalyst:      Analyst{Name: "A0", Role: "Researcher", Affiliation: "Lab", Description: "focus area 0"},
		FieldTranscript:   []Turn{{Speaker: SpeakerModerator, Text: "So you said you were writing an article?"}},
		FieldMaxTurns:     maxTurns,
		FieldEvidenceMode: ModeSearch,
		FieldBrowseQuery:  "graph runtimes",
	}
}

func countSpeaker(transcript []Turn, speaker string) int {
	var n int
	for _, t := range transcript {
		if t.Speaker == speaker {
			n++
		}
	}
	return n
}

func TestInterview_TerminatesAtMaxTurns(t *testing.T) {
	model := &fakeModel{
		generateText: func(ctx context.Context, instructions string, history []Turn) (string, error) {
			switch {
			case strings.Contains(instructions, "interviewing an expert"):
				// Never utters the closing phrase; only the turn cap ends it.
				return "Tell me more.", nil
			case strings.Contains(instructions, "expert answering"):
				return "More detail.", nil
			case strings.Contains(instructions, "Write one report section"):
				return "SECTION", nil
			default:
				return "", fmt.Errorf("unscripted instructions: %.60s", instructions)
			}
		},
	}

	st := runInterview(t, model, interviewInit(3), WithSearchSource(
		SearchFunc(func(ctx context.Context, q Query) ([]Fragment, error) {
			return []Fragment{{Text: "evidence"}}, nil
		}),
	))

	transcript := api.Get[[]Turn](st, FieldTranscript)
	if got := countSpeaker(transcript, SpeakerExpert); got != 3 {
		t.Fatalf("expected exactly 3 answers, got %d", got)
	}
	if api.Get[string](st, FieldSection) != "SECTION" {
		t.Fatalf("expected one section, got %q", api.Get[string](st, FieldSection))
	}
	if api.Get[string](st, FieldInterview) == "" {
		t.Fatalf("expected the serialized interview transcript")
	}
}

func TestInterview_ClosingPhraseEndsEarly(t *testing.T) {
	questions := 0
	model := &fakeModel{
		generateText: func(ctx context.Context, instructions string, history []Turn) (string, error) {
			switch {
			case strings.Contains(instructions, "interviewing an expert"):
				questions++
				if questions >= 2 {
					return "That covers it. " + ClosingPhrase + ".", nil
				}
				return "What is the key idea?", nil
			case strings.Contains(instructions, "expert answering"):
				return "The key idea is reducers.", nil
			case strings.Contains(instructions, "Write one report section"):
				return "SECTION", nil
			default:
				return "", fmt.Errorf("unscripted instructions: %.60s", instructions)
			}
		},
	}

	st := runInterview(t, model, interviewInit(10), WithSearchSource(
		SearchFunc(func(ctx context.Context, q Query) ([]Fragment, error) {
			return nil, nil
		}),
	))

	transcript := api.Get[[]Turn](st, FieldTranscript)
	if got := countSpeaker(transcript, SpeakerExpert); got != 2 {
		t.Fatalf("expected the closing phrase to end the interview after 2 answers, got %d", got)
	}
	if api.Get[string](st, FieldSection) != "SECTION" {
		t.Fatalf("expected a section despite the early finish")
	}
}

func TestInterview_EvidenceFailureIsAbsorbed(t *testing.T) {
	model := &fakeModel{
		generateText: func(ctx context.Context, instructions string, history []Turn) (string, error) {
			switch {
			case strings.Contains(instructions, "interviewing an expert"):
				return "Anything at all?", nil
			case strings.Contains(instructions, "expert answering"):
				return "Working from memory.", nil
			case strings.Contains(instructions, "Write one report section"):
				return "SECTION", nil
			default:
				return "", fmt.Errorf("unscripted instructions: %.60s", instructions)
			}
		},
	}

	st := runInterview(t, model, interviewInit(1), WithSearchSource(
		SearchFunc(func(ctx context.Context, q Query) ([]Fragment, error) {
			return nil, errors.New("search backend down")
		}),
	))

	// The branch carried on without evidence instead of failing.
	if got := api.Get[[]string](st, FieldEvidence); len(got) != 0 {
		t.Fatalf("expected no evidence, got %v", got)
	}
	if api.Get[string](st, FieldSection) != "SECTION" {
		t.Fatalf("expected the section to be written without evidence")
	}
}

func TestInterview_DocumentsModeReadsArchive(t *testing.T) {
	model := &fakeModel{
		generateText: func(ctx context.Context, instructions string, history []Turn) (string, error) {
			switch {
			case strings.Contains(instructions, "interviewing an expert"):
				return "What do the documents say?", nil
			case strings.Contains(instructions, "expert answering"):
				if !strings.Contains(instructions, "stored fact") {
					return "", fmt.Errorf("expected archive evidence in the answer instructions")
				}
				return "The documents say plenty.", nil
			case strings.Contains(instructions, "Write one report section"):
				return "SECTION", nil
			default:
				return "", fmt.Errorf("unscripted instructions: %.60s", instructions)
			}
		},
	}

	init := interviewInit(1)
	init[FieldEvidenceMode] = ModeDocuments
	init[FieldThreadID] = "t-docs"

	st := runInterview(t, model, init, WithDocumentSource(
		SearchFunc(func(ctx context.Context, q Query) ([]Fragment, error) {
			if q.ThreadID != "t-docs" {
				return nil, fmt.Errorf("expected thread id t-docs, got %q", q.ThreadID)
			}
			return []Fragment{{Ref: "notes.md", Text: "stored fact"}}, nil
		}),
	))

	evidence := api.Get[[]string](st, FieldEvidence)
	if len(evidence) != 1 || !strings.Contains(evidence[0], "stored fact") {
		t.Fatalf("expected the archived document as evidence, got %v", evidence)
	}
}
