package report

import (
	"testing"

	"github.com/jtolonen/weft/internal/persistence"
	"github.com/jtolonen/weft/pkg/api"
)

func TestBrief_ExplicitNoSurvivesCheckpointRoundTrip(t *testing.T) {
	brief := Brief{
		Topic:               "incident reviews",
		Description:         "what the postmortems show",
		ReportType:          "briefing",
		EvidenceMode:        ModeDocuments,
		IncludeIndex:        AnswerNo,
		IncludeIntroduction: AnswerYes,
		IncludeConclusion:   AnswerNo,
		IncludeSources:      AnswerNo,
	}
	if !brief.Complete() {
		t.Fatalf("expected a fully answered brief, missing %v", brief.MissingFields())
	}

	data, err := persistence.EncodeState(api.State{FieldBrief: brief})
	if err != nil {
		t.Fatalf("EncodeState failed: %v", err)
	}
	st, err := persistence.DecodeState(data)
	if err != nil {
		t.Fatalf("DecodeState failed: %v", err)
	}

	got := api.Get[Brief](st, FieldBrief)
	if missing := got.MissingFields(); len(missing) != 0 {
		t.Fatalf("decoded brief re-reports answered fields as missing: %v", missing)
	}
	if got.IncludeIndex != AnswerNo || got.IncludeConclusion != AnswerNo || got.IncludeSources != AnswerNo {
		t.Fatalf("explicit no answers did not survive: %+v", got)
	}
	if !got.IncludeIntroduction.Yes() {
		t.Fatalf("yes answer did not survive: %+v", got)
	}
}

func TestBrief_MissingFieldsTracksUnansweredOnly(t *testing.T) {
	b := Brief{
		Topic:        "x",
		Description:  "y",
		ReportType:   "z",
		EvidenceMode: ModeDocuments,
	}
	want := []string{"include index", "include introduction", "include conclusion", "include sources"}
	got := b.MissingFields()
	if len(got) != len(want) {
		t.Fatalf("expected missing %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected missing %v, got %v", want, got)
		}
	}

	b.IncludeIndex = AnswerNo
	b.IncludeIntroduction = AnswerNo
	b.IncludeConclusion = AnswerNo
	b.IncludeSources = AnswerNo
	if !b.Complete() {
		t.Fatalf("a brief answered entirely with no is complete, missing %v", b.MissingFields())
	}
}
