// Package report implements a human-in-the-loop research-report workflow on
// top of the weft graph runtime: intake, analyst roster review, parallel
// analyst interviews, and report assembly. External collaborators (language
// model, evidence sources, review channel, exporter) are interfaces; the
// package owns only the orchestration.
package report

import (
	"context"
	"log/slog"

	"github.com/jtolonen/weft/pkg/api"
	"github.com/jtolonen/weft/pkg/review"
)

// GraphName is the registered name of the top-level workflow graph.
const GraphName = "research-report"

// Workflow wires the research-report graph to its collaborators.
type Workflow struct {
	cfg       Config
	model     LanguageModel
	search    EvidenceSource
	documents EvidenceSource
	gateway   *review.Gateway
	exporter  Exporter
	logger    *slog.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithSearchSource sets the evidence source used in search mode.
func WithSearchSource(src EvidenceSource) Option {
	return func(w *Workflow) { w.search = src }
}

// WithDocumentSource sets the evidence source used in documents mode.
func WithDocumentSource(src EvidenceSource) Option {
	return func(w *Workflow) { w.documents = src }
}

// WithExporter sets the exporter invoked after a successful run.
func WithExporter(e Exporter) Option {
	return func(w *Workflow) { w.exporter = e }
}

// WithWorkflowLogger sets the structured logger. Defaults to slog.Default().
func WithWorkflowLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a Workflow that reviews through the given channel.
func New(cfg Config, model LanguageModel, channel review.Channel, opts ...Option) (*Workflow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := &Workflow{
		cfg:    cfg,
		model:  model,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.gateway = review.NewGateway(channel, cfg.ReviewerName,
		review.WithReplyTimeout(cfg.ReviewTimeout),
		review.WithPollInterval(cfg.PollInterval),
		review.WithLogger(w.logger),
	)
	return w, nil
}

// Graph compiles the top-level workflow graph:
//
//	extract_brief -> request_missing -(loop | confirmed)-> create_analysts
//	-> post_roster -> await_review -(feedback loop | fan-out)-> write_body
//	-> {write_introduction, write_conclusion} =barrier=> write_index
//	=barrier=> compose_draft -> analyse_draft -> finalise_report
//
// The abort field short-circuits every conditional edge once a reviewer
// wait times out.
func (w *Workflow) Graph() *api.Graph {
	return &api.Graph{
		Name:   GraphName,
		Schema: ResearchSchema(),
		Entry:  NodeExtractBrief,
		Nodes: map[api.NodeID]api.NodeDefinition{
			NodeExtractBrief:      {ID: NodeExtractBrief, Fn: w.extractBrief},
			NodeRequestMissing:    {ID: NodeRequestMissing, Fn: w.requestMissing},
			NodeCreateAnalysts:    {ID: NodeCreateAnalysts, Fn: w.createAnalysts},
			NodePostRoster:        {ID: NodePostRoster, Fn: w.postRoster},
			NodeAwaitReview:       {ID: NodeAwaitReview, Fn: w.awaitReview},
			NodeWriteBody:         {ID: NodeWriteBody, Fn: w.writeBody},
			NodeWriteIntroduction: {ID: NodeWriteIntroduction, Fn: w.writeIntroduction},
			NodeWriteConclusion:   {ID: NodeWriteConclusion, Fn: w.writeConclusion},
			NodeWriteIndex:        {ID: NodeWriteIndex, Fn: w.writeIndex},
			NodeComposeDraft:      {ID: NodeComposeDraft, Fn: w.composeDraft},
			NodeAnalyseDraft:      {ID: NodeAnalyseDraft, Fn: w.analyseDraft},
			NodeFinaliseReport:    {ID: NodeFinaliseReport, Fn: w.finaliseReport},
		},
		Static: map[api.NodeID][]api.NodeID{
			NodeExtractBrief:   {NodeRequestMissing},
			NodeCreateAnalysts: {NodePostRoster},
			NodePostRoster:     {NodeAwaitReview},
			NodeWriteBody:      {NodeWriteIntroduction, NodeWriteConclusion},
			NodeComposeDraft:   {NodeAnalyseDraft},
			NodeAnalyseDraft:   {NodeFinaliseReport},
		},
		Conditionals: map[api.NodeID]api.Dispatcher{
			NodeRequestMissing: w.routeIntake,
			NodeAwaitReview:    w.routeAfterReview,
		},
		Barriers: []api.BarrierEdge{
			{
				From: []api.NodeID{NodeWriteBody, NodeWriteIntroduction, NodeWriteConclusion},
				To:   NodeWriteIndex,
			},
			{
				From: []api.NodeID{NodeWriteBody, NodeWriteIntroduction, NodeWriteConclusion, NodeWriteIndex},
				To:   NodeComposeDraft,
			},
		},
		AbortField: FieldAborted,
	}
}

// Register registers the workflow graph with a runtime.
func (w *Workflow) Register(rt api.Runtime) error {
	return rt.RegisterGraph(w.Graph())
}

// Run executes the workflow on the thread and, when it completes with a
// final report, exports the artifact. The report itself is read back with
// Result so a recovered process can fetch it the same way.
func (w *Workflow) Run(ctx context.Context, rt api.Runtime, threadID, input string) (*api.RunInfo, error) {
	initial := api.Update{
		FieldInput:       input,
		FieldMaxAnalysts: w.cfg.MaxAnalysts,
		FieldThreadID:    threadID,
	}
	run, err := rt.Run(ctx, GraphName, threadID, initial, api.RunOptions{
		RecursionLimit: w.cfg.RecursionLimit,
	})
	if err != nil {
		return run, err
	}
	return run, w.export(ctx, rt, threadID)
}

// Resume continues an interrupted run from its last checkpoint.
func (w *Workflow) Resume(ctx context.Context, rt api.Runtime, threadID string) (*api.RunInfo, error) {
	run, err := rt.Resume(ctx, GraphName, threadID, api.RunOptions{
		RecursionLimit: w.cfg.RecursionLimit,
	})
	if err != nil {
		return run, err
	}
	return run, w.export(ctx, rt, threadID)
}

// Result is the outcome of a workflow run, read from the thread's last
// checkpoint.
type Result struct {
	FinalReport string
	Draft       string
	Sections    []string
	Analysis    string
	Aborted     bool
	Steps       int
}

// Result loads the workflow outcome for a thread.
func (w *Workflow) Result(ctx context.Context, rt api.Runtime, threadID string) (Result, error) {
	st, steps, err := rt.StateOf(ctx, threadID)
	if err != nil {
		return Result{}, err
	}
	return Result{
		FinalReport: api.Get[string](st, FieldFinalReport),
		Draft:       api.Get[string](st, FieldDraft),
		Sections:    api.Get[[]string](st, FieldSections),
		Analysis:    api.Get[string](st, FieldAnalysis),
		Aborted:     api.Get[bool](st, FieldAborted),
		Steps:       steps,
	}, nil
}

// export renders and delivers the final report when one exists. An aborted
// run produces no artifact.
func (w *Workflow) export(ctx context.Context, rt api.Runtime, threadID string) error {
	if w.exporter == nil {
		return nil
	}
	res, err := w.Result(ctx, rt, threadID)
	if err != nil {
		return err
	}
	if res.Aborted || res.FinalReport == "" {
		return nil
	}

	artifact, err := w.exporter.Render(ctx, res.FinalReport)
	if err != nil {
		return serviceErr("exporter", "render", err)
	}
	if err := w.exporter.Deliver(ctx, artifact); err != nil {
		return serviceErr("exporter", "deliver", err)
	}
	w.logger.InfoContext(ctx, "report_exported", slog.String("thread", threadID))
	return nil
}
