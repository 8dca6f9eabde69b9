package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jtolonen/weft/pkg/api"
)

// Interview sub-graph nodes.
const (
	NodeAskQuestion    api.NodeID = "ask_question"
	NodeFetchSearch    api.NodeID = "fetch_search"
	NodeFetchDocuments api.NodeID = "fetch_documents"
	NodeAnswerQuestion api.NodeID = "answer_question"
	NodeSaveAndWrite   api.NodeID = "save_and_write"
)

// ClosingPhrase ends an interview early when it appears in the latest
// question. A heuristic carried over from the interview design: the analyst
// is instructed to sign off with this exact phrase when satisfied.
const ClosingPhrase = "Thank you so much for your help"

// interviewGraph builds the per-branch interview state machine:
// ask_question -> (fetch_search | fetch_documents) -> answer_question ->
// (ask_question | save_and_write). The evidence path is fixed per branch by
// the workflow's evidence mode, not re-evaluated per turn.
func (w *Workflow) interviewGraph() *api.Graph {
	return &api.Graph{
		Name:   "interview",
		Schema: InterviewSchema(),
		Entry:  NodeAskQuestion,
		Nodes: map[api.NodeID]api.NodeDefinition{
			NodeAskQuestion:    {ID: NodeAskQuestion, Fn: w.askQuestion},
			NodeFetchSearch:    {ID: NodeFetchSearch, Fn: w.fetchSearch},
			NodeFetchDocuments: {ID: NodeFetchDocuments, Fn: w.fetchDocuments},
			NodeAnswerQuestion: {ID: NodeAnswerQuestion, Fn: w.answerQuestion},
			NodeSaveAndWrite:   {ID: NodeSaveAndWrite, Fn: w.saveAndWrite},
		},
		Static: map[api.NodeID][]api.NodeID{
			NodeFetchSearch:    {NodeAnswerQuestion},
			NodeFetchDocuments: {NodeAnswerQuestion},
		},
		Conditionals: map[api.NodeID]api.Dispatcher{
			NodeAskQuestion:    w.routeEvidence,
			NodeAnswerQuestion: w.routeTurns,
		},
	}
}

func (w *Workflow) askQuestion(ctx context.Context, st api.State) (api.Update, error) {
	analyst := api.Get[Analyst](st, FieldAnalyst)
	transcript := api.Get[[]Turn](st, FieldTranscript)

	instructions := fmt.Sprintf(
		"You are interviewing an expert. Ask one focused question from this persona. "+
			"When you have no further questions, end with %q.\n\n%s",
		ClosingPhrase, analyst.Persona(),
	)
	question, err := w.model.GenerateText(ctx, instructions, transcript)
	if err != nil {
		return nil, serviceErr("language_model", "generate_question", err)
	}

	return api.Update{
		FieldTranscript: []Turn{{Speaker: SpeakerAnalyst, Text: question}},
	}, nil
}

func (w *Workflow) routeEvidence(ctx context.Context, st api.State) api.Route {
	if api.Get[EvidenceMode](st, FieldEvidenceMode) == ModeSearch {
		return api.Goto(NodeFetchSearch)
	}
	return api.Goto(NodeFetchDocuments)
}

func (w *Workflow) fetchSearch(ctx context.Context, st api.State) (api.Update, error) {
	q := Query{URLs: api.Get[[]string](st, FieldURLs)}

	if len(q.URLs) == 0 {
		transcript := api.Get[[]Turn](st, FieldTranscript)
		instructions := fmt.Sprintf(
			"Derive one web search query for this interview. Preferred query: %q.\n\n%s",
			api.Get[string](st, FieldBrowseQuery), renderTranscript(transcript),
		)
		search, err := w.model.GenerateQuery(ctx, instructions)
		if err != nil {
			return nil, serviceErr("language_model", "generate_query", err)
		}
		q.Search = search
	}

	return w.fetchEvidence(ctx, w.search, q)
}

func (w *Workflow) fetchDocuments(ctx context.Context, st api.State) (api.Update, error) {
	q := Query{ThreadID: api.Get[string](st, FieldThreadID)}
	return w.fetchEvidence(ctx, w.documents, q)
}

// fetchEvidence runs one evidence lookup. Fetch failures are absorbed: the
// branch continues on whatever evidence it already has rather than failing
// the whole fan-out.
func (w *Workflow) fetchEvidence(ctx context.Context, source EvidenceSource, q Query) (api.Update, error) {
	if source == nil {
		return nil, nil
	}
	fragments, err := source.Fetch(ctx, q)
	if err != nil {
		w.logger.WarnContext(ctx, "evidence_fetch_failed", slog.Any("error", err))
		return nil, nil
	}
	if len(fragments) == 0 {
		return nil, nil
	}

	evidence := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f.Ref != "" {
			evidence = append(evidence, fmt.Sprintf("[%s] %s", f.Ref, f.Text))
			continue
		}
		evidence = append(evidence, f.Text)
	}
	return api.Update{FieldEvidence: evidence}, nil
}

func (w *Workflow) answerQuestion(ctx context.Context, st api.State) (api.Update, error) {
	analyst := api.Get[Analyst](st, FieldAnalyst)
	transcript := api.Get[[]Turn](st, FieldTranscript)
	evidence := api.Get[[]string](st, FieldEvidence)

	instructions := fmt.Sprintf(
		"You are an expert answering the analyst's latest question using only this evidence.\n\n"+
			"Persona of the interviewer:\n%s\n\nEvidence:\n%s",
		analyst.Persona(), strings.Join(evidence, "\n"),
	)
	answer, err := w.model.GenerateText(ctx, instructions, transcript)
	if err != nil {
		return nil, serviceErr("language_model", "generate_answer", err)
	}

	return api.Update{
		FieldTranscript: []Turn{{Speaker: SpeakerExpert, Text: answer}},
	}, nil
}

// routeTurns ends the interview when the expert has answered MaxTurns times
// or when the latest question carries the closing phrase; otherwise it loops
// back for another question.
func (w *Workflow) routeTurns(ctx context.Context, st api.State) api.Route {
	transcript := api.Get[[]Turn](st, FieldTranscript)
	maxTurns := api.GetOr(st, FieldMaxTurns, w.cfg.MaxTurns)

	var answers int
	for _, t := range transcript {
		if t.Speaker == SpeakerExpert {
			answers++
		}
	}
	if answers >= maxTurns {
		return api.Goto(NodeSaveAndWrite)
	}

	if len(transcript) >= 4 {
		lastQuestion := transcript[len(transcript)-2]
		if lastQuestion.Speaker == SpeakerAnalyst &&
			strings.Contains(lastQuestion.Text, ClosingPhrase) {
			return api.Goto(NodeSaveAndWrite)
		}
	}

	return api.Goto(NodeAskQuestion)
}

// saveAndWrite serializes the transcript and produces the branch's one
// section.
func (w *Workflow) saveAndWrite(ctx context.Context, st api.State) (api.Update, error) {
	analyst := api.Get[Analyst](st, FieldAnalyst)
	transcript := api.Get[[]Turn](st, FieldTranscript)
	evidence := api.Get[[]string](st, FieldEvidence)

	interview := renderTranscript(transcript)

	instructions := fmt.Sprintf(
		"Write one report section from this interview, focused on the analyst's area.\n\n"+
			"Analyst focus: %s\n\nInterview:\n%s\n\nEvidence:\n%s",
		analyst.Description, interview, strings.Join(evidence, "\n"),
	)
	section, err := w.model.GenerateText(ctx, instructions, nil)
	if err != nil {
		return nil, serviceErr("language_model", "write_section", err)
	}

	return api.Update{
		FieldInterview: interview,
		FieldSection:   section,
	}, nil
}

func renderTranscript(transcript []Turn) string {
	lines := make([]string, 0, len(transcript))
	for _, t := range transcript {
		speaker := "Moderator"
		switch t.Speaker {
		case SpeakerAnalyst:
			speaker = "Analyst"
		case SpeakerExpert:
			speaker = "Expert"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, t.Text))
	}
	return strings.Join(lines, "\n")
}
