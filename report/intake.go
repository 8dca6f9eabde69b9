package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/jtolonen/weft/pkg/api"
)

// Intake stage nodes.
const (
	NodeExtractBrief   api.NodeID = "extract_brief"
	NodeRequestMissing api.NodeID = "request_missing"
)

// extractBrief re-extracts the structured brief from the accumulated input.
// Already-answered fields are preserved by the extraction contract; each
// reviewer answer is folded into the input before the next extraction.
func (w *Workflow) extractBrief(ctx context.Context, st api.State) (api.Update, error) {
	input := api.Get[string](st, FieldInput)

	brief, err := w.model.GenerateBrief(ctx, input)
	if err != nil {
		return nil, serviceErr("language_model", "extract_brief", err)
	}
	return api.Update{FieldBrief: brief}, nil
}

// requestMissing asks the reviewer about the first unanswered brief field,
// or, once the brief is complete, posts a summary for confirmation.
// Reviewer answers and corrections are folded back into the input so the
// next extraction pass sees them; a gateway timeout aborts the workflow.
func (w *Workflow) requestMissing(ctx context.Context, st api.State) (api.Update, error) {
	brief := api.Get[Brief](st, FieldBrief)
	input := api.Get[string](st, FieldInput)

	if missing := brief.MissingFields(); len(missing) > 0 {
		question := fmt.Sprintf("Before I start, what should the %s be?", missing[0])

		marker, err := w.gateway.Post(ctx, question)
		if err != nil {
			return nil, serviceErr("review_channel", "post_question", err)
		}
		reply, found, err := w.gateway.WaitForReply(ctx, marker.ID)
		if err != nil {
			return nil, err
		}
		if !found {
			return api.Update{FieldAborted: true}, nil
		}

		folded := fmt.Sprintf("%s\nQ: %s\nA: %s", input, question, reply.Text)
		return api.Update{FieldInput: folded}, nil
	}

	summary := formatBrief(brief) +
		"\n\nDoes everything look correct? If not, please tell me what to change."
	marker, err := w.gateway.Post(ctx, summary)
	if err != nil {
		return nil, serviceErr("review_channel", "post_summary", err)
	}
	reply, found, err := w.gateway.WaitForReply(ctx, marker.ID)
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
		return api.Update{FieldBriefConfirmed: true}, nil
	}

	folded := fmt.Sprintf("%s\nCorrection: %s", input, reply.Text)
	return api.Update{FieldInput: folded}, nil
}

// routeIntake loops the intake stage until the reviewer confirms the brief.
func (w *Workflow) routeIntake(ctx context.Context, st api.State) api.Route {
	if api.Get[bool](st, FieldBriefConfirmed) {
		return api.Goto(NodeCreateAnalysts)
	}
	return api.Goto(NodeExtractBrief)
}

func formatBrief(b Brief) string {
	var sb strings.Builder
	sb.WriteString("Here is the information I have gathered:\n\n")
	fmt.Fprintf(&sb, "- Topic: %s\n", b.Topic)
	fmt.Fprintf(&sb, "- Description: %s\n", b.Description)
	fmt.Fprintf(&sb, "- Report type: %s\n", b.ReportType)
	fmt.Fprintf(&sb, "- Evidence mode: %s\n", b.EvidenceMode)
	if len(b.URLs) > 0 {
		fmt.Fprintf(&sb, "- URLs: %s\n", strings.Join(b.URLs, ", "))
	}
	if b.BrowseQuery != "" {
		fmt.Fprintf(&sb, "- Browse query: %s\n", b.BrowseQuery)
	}
	fmt.Fprintf(&sb, "- Index: %t\n", b.IncludeIndex.Yes())
	fmt.Fprintf(&sb, "- Introduction: %t\n", b.IncludeIntroduction.Yes())
	fmt.Fprintf(&sb, "- Conclusion: %t\n", b.IncludeConclusion.Yes())
	fmt.Fprintf(&sb, "- Sources: %t", b.IncludeSources.Yes())
	return sb.String()
}
