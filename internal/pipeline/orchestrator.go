package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"askdocs/internal/agents"
	"askdocs/internal/domain"
	"askdocs/internal/logging"
	"askdocs/internal/metrics"
	"askdocs/internal/service"
	"askdocs/internal/tracing"
)

// DefaultPersona is used when a run names no persona.
const DefaultPersona = "HR"

// Agents groups the analysis steps the orchestrator sequences.
type Agents struct {
	Miner          *agents.ContextMiner
	Contradictions *agents.ContradictionHunter
	Actions        *agents.ActionPlanner
	Persona        *agents.PersonaShifter
}

// Options tunes execution.
type Options struct {
	Parallel       bool
	DefaultPersona string
}

// Orchestrator runs the analysis task graph for one question against a Session.
type Orchestrator struct {
	agents Agents
	opts   Options
}

func NewOrchestrator(a Agents, opts Options) *Orchestrator {
	if opts.DefaultPersona == "" {
		opts.DefaultPersona = DefaultPersona
	}
	return &Orchestrator{agents: a, opts: opts}
}

// Report is the result of one run together with per-stage outcomes.
type Report struct {
	RunID    string                `json:"run_id"`
	Question string                `json:"question"`
	Persona  string                `json:"persona"`
	Result   domain.PipelineResult `json:"result"`
	Stages   []StageResult         `json:"stages"`
	Started  time.Time             `json:"started"`
	Duration time.Duration         `json:"duration_ns"`
}

// RunPipeline replaces the session's document text with documentText and
// answers question. All result fields are always populated.
func (o *Orchestrator) RunPipeline(ctx context.Context, s *Session, documentText, persona, question string) (domain.PipelineResult, error) {
	s.SetText(documentText)
	rep, err := o.Ask(ctx, s, persona, question)
	return rep.Result, err
}

// Ask runs the task graph over the session's current text. The returned
// error is non-nil only when ctx was cancelled; stage failures are reported
// through placeholders and Report.Stages.
func (o *Orchestrator) Ask(ctx context.Context, s *Session, persona, question string) (Report, error) {
	if strings.TrimSpace(persona) == "" {
		persona = o.opts.DefaultPersona
	}
	rep := Report{RunID: uuid.NewString(), Question: question, Persona: persona, Started: time.Now()}
	ctx = logging.With(ctx, logging.RunIDKey, rep.RunID)
	ctx, span := tracing.Start(ctx, "pipeline.run",
		attribute.String("run_id", rep.RunID),
		attribute.String("persona", persona),
	)
	log := logging.FromContext(ctx)
	log.Info("pipeline started", "question", question, "persona", persona, "parallel", o.opts.Parallel)

	text := s.Text()
	doc := domain.Document{ID: s.DocumentID(), Name: "session", Content: text}
	run := &runState{}
	defer run.rollback()

	graph, err := NewGraph(o.nodes(run, s, doc, persona, question)...)
	if err != nil {
		tracing.End(span, err)
		return rep, err
	}
	results := graph.Execute(ctx, o.opts.Parallel, Hooks{
		OnStart: func(ctx context.Context, st Stage) context.Context {
			logging.FromContext(ctx).Debug("stage started", "stage", st)
			return logging.With(ctx, logging.StageKey, string(st))
		},
		OnFinish: func(ctx context.Context, r StageResult) {
			metrics.RecordStage(string(r.Stage), string(r.Status), r.Duration)
			ctx = logging.With(ctx, logging.StageKey, string(r.Stage))
			l := logging.FromContext(ctx).With("status", r.Status, "duration", r.Duration)
			if r.Err != nil && r.Status == StatusFailed {
				l.Warn("stage failed", "error", r.Err)
				return
			}
			l.Info("stage finished")
		},
	})
	run.rollback()

	for _, st := range graph.Order() {
		rep.Stages = append(rep.Stages, results[st])
	}
	rep.Result = domain.PipelineResult{
		Context:        textOrPlaceholder(results[StageContextMined], "context"),
		Answer:         textOrPlaceholder(results[StageAnswered], "answer"),
		Contradictions: textOrPlaceholder(results[StageContradictions], "contradictions"),
		Actions:        textOrPlaceholder(results[StageActions], "actions"),
		PersonaSummary: textOrPlaceholder(results[StagePersona], "persona summary"),
	}
	rep.Duration = time.Since(rep.Started)

	s.record(rep)
	ctxErr := ctx.Err()
	tracing.End(span, ctxErr)
	log.Info("pipeline finished", "duration", rep.Duration)
	return rep, ctxErr
}

// runState carries the index transaction between the probe and build stages.
type runState struct {
	mu sync.Mutex
	tx *service.IndexTx
}

func (r *runState) set(tx *service.IndexTx) {
	r.mu.Lock()
	r.tx = tx
	r.mu.Unlock()
}

func (r *runState) take() *service.IndexTx {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := r.tx
	r.tx = nil
	return tx
}

func (r *runState) rollback() {
	if tx := r.take(); tx != nil {
		tx.Rollback()
	}
}

func (o *Orchestrator) nodes(run *runState, s *Session, doc domain.Document, persona, question string) []Node {
	retriever := s.Retriever()
	return []Node{
		{
			Stage: StageEmbedProbe,
			Run: func(ctx context.Context, _ Inputs) (string, error) {
				tx, err := retriever.Begin(ctx, doc)
				if err != nil {
					return "", err
				}
				run.set(tx)
				if tx.UpToDate() {
					return "index up to date", nil
				}
				return fmt.Sprintf("dimension %d, %d chunks", tx.Dimension(), len(tx.Chunks())), nil
			},
		},
		{
			Stage: StageIndexBuilt,
			Needs: []Stage{StageEmbedProbe},
			Run: func(ctx context.Context, _ Inputs) (string, error) {
				tx := run.take()
				if tx == nil {
					return "", domain.ErrUnbuiltIndex
				}
				defer tx.Rollback()
				if err := tx.Commit(ctx); err != nil {
					return "", err
				}
				return fmt.Sprintf("%d chunks indexed", retriever.Len()), nil
			},
		},
		{
			Stage: StageContextMined,
			After: []Stage{StageIndexBuilt},
			Run: func(ctx context.Context, _ Inputs) (string, error) {
				return o.agents.Miner.Run(doc.Content), nil
			},
		},
		{
			Stage: StageAnswered,
			Needs: []Stage{StageIndexBuilt},
			Run: func(ctx context.Context, _ Inputs) (string, error) {
				ans, err := retriever.Query(ctx, domain.Single(question))
				if err != nil {
					return "", err
				}
				return ans.Text(), nil
			},
		},
		{
			Stage: StageContradictions,
			Needs: []Stage{StageContextMined, StageAnswered},
			Run: func(ctx context.Context, in Inputs) (string, error) {
				answer, _ := in.Output(StageAnswered)
				mined, _ := in.Output(StageContextMined)
				return o.agents.Contradictions.Run(ctx, answer, mined)
			},
		},
		{
			Stage: StageActions,
			After: []Stage{StageContradictions},
			Run: func(ctx context.Context, _ Inputs) (string, error) {
				return o.agents.Actions.Run(ctx, doc.Content)
			},
		},
		{
			Stage: StagePersona,
			After: []Stage{StageContextMined, StageContradictions, StageActions, StageAnswered},
			Run: func(ctx context.Context, in Inputs) (string, error) {
				combined := agents.CombineForPersona(domain.PipelineResult{
					Context:        inputOrPlaceholder(in, StageContextMined, "context"),
					Contradictions: inputOrPlaceholder(in, StageContradictions, "contradictions"),
					Actions:        inputOrPlaceholder(in, StageActions, "actions"),
					Answer:         inputOrPlaceholder(in, StageAnswered, "answer"),
				})
				return o.agents.Persona.Run(ctx, combined, persona)
			},
		},
	}
}

// Placeholder labels a field whose stage produced no output.
func Placeholder(label string, status Status, err error) string {
	reason := string(status)
	if err != nil {
		reason = err.Error()
	}
	return fmt.Sprintf("[%s unavailable: %s]", label, reason)
}

func textOrPlaceholder(r StageResult, label string) string {
	if r.Status == StatusOK {
		return r.Output
	}
	if r.Status == "" {
		return Placeholder(label, StatusSkipped, nil)
	}
	return Placeholder(label, r.Status, r.Err)
}

func inputOrPlaceholder(in Inputs, s Stage, label string) string {
	if out, ok := in.Output(s); ok {
		return out
	}
	r := in.results[s]
	return textOrPlaceholder(r, label)
}
