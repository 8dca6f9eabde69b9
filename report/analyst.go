package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jtolonen/weft/pkg/api"
)

// Analyst stage nodes.
const (
	NodeCreateAnalysts api.NodeID = "create_analysts"
	NodePostRoster     api.NodeID = "post_roster"
	NodeAwaitReview    api.NodeID = "await_review"
)

// Analyst is an immutable persona record. A roster is created wholesale by
// the creation node and only ever replaced wholesale on regeneration.
type Analyst struct {
	Name        string
	Affiliation string
	Role        string
	Description string
}

// Persona renders the analyst for use in generation instructions.
func (a Analyst) Persona() string {
	return fmt.Sprintf("Name: %s\nRole: %s\nAffiliation: %s\nDescription: %s",
		a.Name, a.Role, a.Affiliation, a.Description)
}

// FormatRoster renders a roster the way it is posted to the review channel.
func FormatRoster(analysts []Analyst) string {
	parts := make([]string, 0, len(analysts))
	for _, a := range analysts {
		parts = append(parts, fmt.Sprintf(
			"Name: %s\nAffiliation: %s\nRole: %s\nDescription: %s\n%s",
			a.Name, a.Affiliation, a.Role, a.Description,
			strings.Repeat("-", 50),
		))
	}
	return "Analysts Created:\n\n" + strings.Join(parts, "\n\n")
}

// createAnalysts replaces the roster wholesale, folding in any reviewer
// feedback from the previous round.
func (w *Workflow) createAnalysts(ctx context.Context, st api.State) (api.Update, error) {
	brief := api.Get[Brief](st, FieldBrief)
	feedback := api.Get[string](st, FieldFeedback)
	maxAnalysts := api.GetOr(st, FieldMaxAnalysts, w.cfg.MaxAnalysts)

	analysts, err := w.model.GenerateAnalysts(ctx, brief, feedback, maxAnalysts)
	if err != nil {
		return nil, serviceErr("language_model", "generate_analysts", err)
	}
	return api.Update{FieldAnalysts: analysts}, nil
}

// postRoster publishes the roster to the review channel and records the
// message marker the review wait will poll from.
func (w *Workflow) postRoster(ctx context.Context, st api.State) (api.Update, error) {
	analysts := api.Get[[]Analyst](st, FieldAnalysts)

	text := FormatRoster(analysts) +
		"\n\nPlease let me know if these analysts look alright or if you want to generate new ones."
	marker, err := w.gateway.Post(ctx, text)
	if err != nil {
		return nil, serviceErr("review_channel", "post_roster", err)
	}
	return api.Update{FieldReviewMarker: marker.ID}, nil
}

// awaitReview waits for the reviewer's verdict on the roster. Timeout sets
// the abort flag; acceptance clears any previous feedback; feedback is
// stored for the next creation round and counted against the optional
// regeneration cap.
func (w *Workflow) awaitReview(ctx context.Context, st api.State) (api.Update, error) {
	marker := api.Get[string](st, FieldReviewMarker)

	reply, found, err := w.gateway.WaitForReply(ctx, marker)
	if err != nil {
		return nil, err
	}
	if !found {
		return api.Update{FieldAborted: true}, nil
	}

	outcome, err := w.model.InterpretReview(ctx, reply.Text)
	if err != nil {
		return nil, serviceErr("language_model", "interpret_review", err)
	}
	if outcome.Accepted {
		return api.Update{FieldFeedback: ""}, nil
	}

	regenerations := api.Get[int](st, FieldRegenerations) + 1
	if w.cfg.MaxRegenerations > 0 && regenerations > w.cfg.MaxRegenerations {
		w.logger.WarnContext(ctx, "regeneration_cap_reached",
			slog.Int("regenerations", regenerations),
			slog.Int("cap", w.cfg.MaxRegenerations),
		)
		return api.Update{FieldAborted: true}, nil
	}

	upd := api.Update{
		FieldFeedback:      outcome.Feedback,
		FieldRegenerations: regenerations,
	}
	if outcome.MaxAnalysts > 0 {
		upd[FieldMaxAnalysts] = outcome.MaxAnalysts
	}
	return upd, nil
}

// routeAfterReview either loops back to analyst creation (feedback pending)
// or fans out one interview branch per analyst. The abort outcome never
// reaches this dispatcher; the runtime short-circuits it.
func (w *Workflow) routeAfterReview(ctx context.Context, st api.State) api.Route {
	if api.Get[string](st, FieldFeedback) != "" {
		return api.Goto(NodeCreateAnalysts)
	}
	return api.FanOut(w.branchSpecs(st), NodeWriteBody)
}

// branchSpecs allocates one interview branch per analyst, in roster order.
// Each branch owns an isolated copy of the shared read-only fields plus its
// analyst; sections and evidence fold back in branch-index order.
func (w *Workflow) branchSpecs(st api.State) []api.BranchSpec {
	brief := api.Get[Brief](st, FieldBrief)
	analysts := api.Get[[]Analyst](st, FieldAnalysts)
	threadID := api.Get[string](st, FieldThreadID)
	graph := w.interviewGraph()

	opening := Turn{
		Speaker: SpeakerModerator,
		Text: fmt.Sprintf("So you said you were writing an article on the topic: %s. Description: %s?",
			brief.Topic, brief.Description),
	}

	specs := make([]api.BranchSpec, 0, len(analysts))
	for _, analyst := range analysts {
		specs = append(specs, api.BranchSpec{
			Graph: graph,
			Init: api.Update{
				FieldAnalyst:      analyst,
				FieldTranscript:   []Turn{opening},
				FieldMaxTurns:     w.cfg.MaxTurns,
				FieldEvidenceMode: brief.EvidenceMode,
				FieldURLs:         brief.URLs,
				FieldBrowseQuery:  brief.BrowseQuery,
				FieldThreadID:     threadID,
			},
			Join: func(final api.State) api.Update {
				upd := api.Update{}
				if section := api.Get[string](final, FieldSection); section != "" {
					upd[FieldSections] = []string{section}
				}
				if evidence := api.Get[[]string](final, FieldEvidence); len(evidence) > 0 {
					upd[FieldEvidence] = evidence
				}
				return upd
			},
		})
	}
	return specs
}
