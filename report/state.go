package report

import (
	"encoding/gob"
	"strings"

	"github.com/jtolonen/weft/pkg/api"
)

// Top-level workflow state fields.
const (
	FieldInput          = "input"
	FieldBrief          = "brief"
	FieldBriefConfirmed = "brief_confirmed"
	FieldMaxAnalysts    = "max_analysts"
	FieldFeedback       = "human_analyst_feedback"
	FieldRegenerations  = "regenerations"
	FieldAnalysts       = "analysts"
	FieldReviewMarker   = "review_marker"
	FieldSections       = "sections"
	FieldEvidence       = "evidence"
	FieldBody           = "content"
	FieldIntroduction   = "introduction"
	FieldConclusion     = "conclusion"
	FieldIndex          = "index"
	FieldDraft          = "draft"
	FieldAnalysis       = "analysis_feedback"
	FieldFinalReport    = "final_report"
	FieldAborted        = "aborted"
)

// Interview branch state fields. Branches never share these with the parent;
// their results come back only through the fan-out join.
const (
	FieldAnalyst      = "analyst"
	FieldTranscript   = "transcript"
	FieldInterview    = "interview"
	FieldSection      = "section"
	FieldMaxTurns     = "max_turns"
	FieldEvidenceMode = "evidence_mode"
	FieldURLs         = "urls"
	FieldBrowseQuery  = "browse_query"
	FieldThreadID     = "thread_id"
)

func init() {
	gob.Register(Brief{})
	gob.Register(Analyst{})
	gob.Register([]Analyst{})
	gob.Register(Turn{})
	gob.Register([]Turn{})
	gob.Register(EvidenceMode(""))
}

// ResearchSchema declares the top-level workflow state. Sections and
// evidence accumulate; everything else is last-write-wins.
func ResearchSchema() *api.Schema {
	return api.NewSchema(
		api.Field{Name: FieldInput, Policy: api.Overwrite},
		api.Field{Name: FieldBrief, Policy: api.Overwrite},
		api.Field{Name: FieldBriefConfirmed, Policy: api.Overwrite},
		api.Field{Name: FieldMaxAnalysts, Policy: api.Overwrite},
		api.Field{Name: FieldFeedback, Policy: api.Overwrite},
		api.Field{Name: FieldRegenerations, Policy: api.Overwrite},
		api.Field{Name: FieldAnalysts, Policy: api.Overwrite},
		api.Field{Name: FieldReviewMarker, Policy: api.Overwrite},
		api.Field{Name: FieldSections, Policy: api.Append},
		api.Field{Name: FieldEvidence, Policy: api.Append},
		api.Field{Name: FieldBody, Policy: api.Overwrite},
		api.Field{Name: FieldIntroduction, Policy: api.Overwrite},
		api.Field{Name: FieldConclusion, Policy: api.Overwrite},
		api.Field{Name: FieldIndex, Policy: api.Overwrite},
		api.Field{Name: FieldDraft, Policy: api.Overwrite},
		api.Field{Name: FieldAnalysis, Policy: api.Overwrite},
		api.Field{Name: FieldFinalReport, Policy: api.Overwrite},
		api.Field{Name: FieldAborted, Policy: api.Overwrite},
		api.Field{Name: FieldThreadID, Policy: api.Overwrite},
	)
}

// InterviewSchema declares the isolated state of one interview branch.
func InterviewSchema() *api.Schema {
	return api.NewSchema(
		api.Field{Name: FieldAnalyst, Policy: api.Overwrite},
		api.Field{Name: FieldTranscript, Policy: api.Append},
		api.Field{Name: FieldEvidence, Policy: api.Append},
		api.Field{Name: FieldInterview, Policy: api.Overwrite},
		api.Field{Name: FieldSection, Policy: api.Overwrite},
		api.Field{Name: FieldMaxTurns, Policy: api.Overwrite},
		api.Field{Name: FieldEvidenceMode, Policy: api.Overwrite},
		api.Field{Name: FieldURLs, Policy: api.Overwrite},
		api.Field{Name: FieldBrowseQuery, Policy: api.Overwrite},
		api.Field{Name: FieldThreadID, Policy: api.Overwrite},
	)
}

// EvidenceMode selects how interview branches gather evidence. It is decided
// once during intake and never re-evaluated per turn.
type EvidenceMode string

const (
	// ModeSearch gathers evidence through the search source (web search or
	// explicit URLs).
	ModeSearch EvidenceMode = "search"

	// ModeDocuments gathers evidence from documents previously stored for
	// the thread.
	ModeDocuments EvidenceMode = "documents"
)

// Answer is a tri-state reviewer answer. The zero value means the question
// has not been asked yet; an explicit no stays distinct from unanswered
// across checkpoint round-trips.
type Answer int

const (
	AnswerUnset Answer = iota
	AnswerYes
	AnswerNo
)

// AnswerFor converts a boolean reply into an Answer.
func AnswerFor(yes bool) Answer {
	if yes {
		return AnswerYes
	}
	return AnswerNo
}

// Answered reports whether the reviewer has answered at all.
func (a Answer) Answered() bool { return a != AnswerUnset }

// Yes reports an explicit yes. Unset counts as no.
func (a Answer) Yes() bool { return a == AnswerYes }

// Brief is the structured intake record extracted from the user's
// accumulated input. Include flags are tri-state Answers so an unanswered
// question never collapses into an explicit no.
type Brief struct {
	Topic        string
	Description  string
	ReportType   string
	EvidenceMode EvidenceMode
	URLs         []string
	BrowseQuery  string

	IncludeIndex        Answer
	IncludeIntroduction Answer
	IncludeConclusion   Answer
	IncludeSources      Answer
}

// MissingFields lists the intake fields still unanswered, in the order they
// should be asked about. Fields irrelevant to the chosen evidence mode are
// not reported.
func (b Brief) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(b.Topic) == "" {
		missing = append(missing, "topic")
	}
	if strings.TrimSpace(b.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(b.ReportType) == "" {
		missing = append(missing, "report type")
	}
	switch b.EvidenceMode {
	case ModeSearch:
		if len(b.URLs) == 0 && strings.TrimSpace(b.BrowseQuery) == "" {
			missing = append(missing, "urls or browse query")
		}
	case ModeDocuments:
	default:
		missing = append(missing, "evidence mode (search or documents)")
	}
	if !b.IncludeIndex.Answered() {
		missing = append(missing, "include index")
	}
	if !b.IncludeIntroduction.Answered() {
		missing = append(missing, "include introduction")
	}
	if !b.IncludeConclusion.Answered() {
		missing = append(missing, "include conclusion")
	}
	if !b.IncludeSources.Answered() {
		missing = append(missing, "include sources")
	}
	return missing
}

// Complete reports whether every intake field has been answered.
func (b Brief) Complete() bool {
	return len(b.MissingFields()) == 0
}

// Turn is one utterance in an interview transcript.
type Turn struct {
	Speaker string
	Text    string
}

// Transcript speakers. The moderator speaks only the opening line that
// seeds each interview; it counts as neither a question nor an answer.
const (
	SpeakerAnalyst   = "analyst"
	SpeakerExpert    = "expert"
	SpeakerModerator = "moderator"
)
