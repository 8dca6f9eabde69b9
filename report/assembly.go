package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/jtolonen/weft/pkg/api"
)

// Assembly stage nodes.
const (
	NodeWriteBody         api.NodeID = "write_body"
	NodeWriteIntroduction api.NodeID = "write_introduction"
	NodeWriteConclusion   api.NodeID = "write_conclusion"
	NodeWriteIndex        api.NodeID = "write_index"
	NodeComposeDraft      api.NodeID = "compose_draft"
	NodeAnalyseDraft      api.NodeID = "analyse_draft"
	NodeFinaliseReport    api.NodeID = "finalise_report"
)

// writeBody turns the joined sections into the report body. When sources
// are enabled, the body is asked to close with a "## Sources" list, which
// the index and draft nodes later split back out.
func (w *Workflow) writeBody(ctx context.Context, st api.State) (api.Update, error) {
	brief := api.Get[Brief](st, FieldBrief)
	sections := api.Get[[]string](st, FieldSections)

	instructions := fmt.Sprintf(
		"Write the body of a %s report on %q from the sections below, preserving their order.",
		brief.ReportType, brief.Topic,
	)
	if brief.IncludeSources.Yes() {
		instructions += " Close the text with a \"## Sources\" section listing every cited source."
	}
	instructions += "\n\nSections:\n\n" + strings.Join(sections, "\n\n")

	body, err := w.model.GenerateText(ctx, instructions, nil)
	if err != nil {
		return nil, serviceErr("language_model", "write_body", err)
	}
	return api.Update{FieldBody: body}, nil
}

func (w *Workflow) writeIntroduction(ctx context.Context, st api.State) (api.Update, error) {
	brief := api.Get[Brief](st, FieldBrief)
	if !brief.IncludeIntroduction.Yes() {
		return api.Update{FieldIntroduction: ""}, nil
	}

	instructions := fmt.Sprintf(
		"Write the introduction for a report described as %q.\n\nBody:\n%s",
		brief.Description, api.Get[string](st, FieldBody),
	)
	intro, err := w.model.GenerateText(ctx, instructions, nil)
	if err != nil {
		return nil, serviceErr("language_model", "write_introduction", err)
	}
	return api.Update{FieldIntroduction: intro}, nil
}

func (w *Workflow) writeConclusion(ctx context.Context, st api.State) (api.Update, error) {
	brief := api.Get[Brief](st, FieldBrief)
	if !brief.IncludeConclusion.Yes() {
		return api.Update{FieldConclusion: ""}, nil
	}

	instructions := fmt.Sprintf(
		"Write the conclusion for a report described as %q.\n\nBody:\n%s",
		brief.Description, api.Get[string](st, FieldBody),
	)
	conclusion, err := w.model.GenerateText(ctx, instructions, nil)
	if err != nil {
		return nil, serviceErr("language_model", "write_conclusion", err)
	}
	return api.Update{FieldConclusion: conclusion}, nil
}

// writeIndex builds a table of contents over the assembled report text. It
// runs behind a barrier on body, introduction, and conclusion.
func (w *Workflow) writeIndex(ctx context.Context, st api.State) (api.Update, error) {
	brief := api.Get[Brief](st, FieldBrief)
	if !brief.IncludeIndex.Yes() {
		return api.Update{FieldIndex: ""}, nil
	}

	text := assembleReportText(st, brief, "")

	instructions := "Write a table of contents for this report.\n\n" + text
	index, err := w.model.GenerateText(ctx, instructions, nil)
	if err != nil {
		return nil, serviceErr("language_model", "write_index", err)
	}
	return api.Update{FieldIndex: index}, nil
}

// composeDraft assembles the draft from the enabled parts. Pure string
// work, no collaborator calls.
func (w *Workflow) composeDraft(ctx context.Context, st api.State) (api.Update, error) {
	brief := api.Get[Brief](st, FieldBrief)

	draft := "# Draft Report\n\n" + assembleReportText(st, brief, api.Get[string](st, FieldIndex))
	return api.Update{FieldDraft: draft}, nil
}

// analyseDraft checks the draft against the gathered evidence and records
// feedback for the final revision. With no evidence at all it degrades to a
// fixed notice instead of failing.
func (w *Workflow) analyseDraft(ctx context.Context, st api.State) (api.Update, error) {
	evidence := api.Get[[]string](st, FieldEvidence)
	if len(evidence) == 0 {
		w.logger.WarnContext(ctx, "analysis_without_evidence")
		return api.Update{FieldAnalysis: "No context documents available."}, nil
	}

	instructions := fmt.Sprintf(
		"Compare each section of this draft against the evidence and list corrections.\n\n"+
			"Draft:\n%s\n\nEvidence:\n%s",
		api.Get[string](st, FieldDraft), strings.Join(evidence, "\n"),
	)
	analysis, err := w.model.GenerateText(ctx, instructions, nil)
	if err != nil {
		return nil, serviceErr("language_model", "analyse_draft", err)
	}
	return api.Update{FieldAnalysis: analysis}, nil
}

// finaliseReport revises the draft using the analysis feedback and the set
// of enabled parts.
func (w *Workflow) finaliseReport(ctx context.Context, st api.State) (api.Update, error) {
	brief := api.Get[Brief](st, FieldBrief)

	include := []string{"Report"}
	if brief.IncludeIndex.Yes() {
		include = append(include, "Index")
	}
	if brief.IncludeIntroduction.Yes() {
		include = append(include, "Introduction")
	}
	if brief.IncludeConclusion.Yes() {
		include = append(include, "Conclusion")
	}
	if brief.IncludeSources.Yes() {
		include = append(include, "Sources")
	}

	instructions := fmt.Sprintf(
		"Revise this draft into the final report, applying the feedback. Keep only these parts: %s.\n\n"+
			"Draft:\n%s\n\nFeedback:\n%s",
		strings.Join(include, ", "),
		api.Get[string](st, FieldDraft),
		api.Get[string](st, FieldAnalysis),
	)
	final, err := w.model.GenerateText(ctx, instructions, nil)
	if err != nil {
		return nil, serviceErr("language_model", "finalise_report", err)
	}
	return api.Update{FieldFinalReport: final}, nil
}

// assembleReportText lays the report parts out in their fixed order:
// index, introduction, main insights, conclusion, sources. The sources are
// split off the body so they land at the bottom of the document.
func assembleReportText(st api.State, brief Brief, index string) string {
	main, sources := splitSources(api.Get[string](st, FieldBody))

	var parts []string
	if index != "" {
		parts = append(parts, index)
	}
	if brief.IncludeIntroduction.Yes() {
		parts = append(parts, "## Introduction\n\n"+api.Get[string](st, FieldIntroduction))
	}
	parts = append(parts, "## Main Insights\n\n"+main)
	if brief.IncludeConclusion.Yes() {
		parts = append(parts, "## Conclusion\n\n"+api.Get[string](st, FieldConclusion))
	}
	if len(sources) > 0 {
		parts = append(parts, "## Sources\n\n"+strings.Join(sources, "\n\n"))
	}
	return strings.Join(parts, "\n\n")
}

// splitSources separates the body's trailing "## Sources" section(s) from
// the main content.
func splitSources(body string) (string, []string) {
	content := strings.TrimSpace(body)
	content = strings.TrimSpace(strings.TrimPrefix(content, "## Insights"))

	parts := strings.Split(content, "## Sources")
	main := strings.TrimSpace(parts[0])

	var sources []string
	for _, part := range parts[1:] {
		if s := strings.TrimSpace(part); s != "" {
			sources = append(sources, s)
		}
	}
	return main, sources
}
