package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"askdocs/internal/agents"
	"askdocs/internal/chunker"
	"askdocs/internal/domain"
	"askdocs/internal/embedding/tfidf"
	"askdocs/internal/logging"
	"askdocs/internal/service"
	"askdocs/internal/summarizer"
	"askdocs/internal/vectorstore/memory"
)

type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   func(ctx context.Context, prompt string) (string, error)
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	return g.reply(ctx, prompt)
}

func (g *scriptedGenerator) sawPromptContaining(s string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.prompts {
		if strings.Contains(p, s) {
			return true
		}
	}
	return false
}

func okGenerator() *scriptedGenerator {
	return &scriptedGenerator{reply: func(context.Context, string) (string, error) { return "ok", nil }}
}

const (
	resumeText = "SUMMARY\nJane Doe\nAspiring LLM Engineer with a focus on retrieval systems.\nEXPERIENCE\nAcme Corp backend engineer building search services in Go."
	storyText  = "Old Tom kept the lighthouse at Crescent Bay for forty years. The storm came at dusk and the waves hit the rocks. Mary Jones watched from the harbor."
)

func newTestOrchestrator(gen domain.Generator, parallel bool) (*Orchestrator, *Session) {
	r := service.NewRetriever(
		chunker.NewSectionChunker(10000, 1000, chunker.MergeRule{}),
		tfidf.NewEmbedder(),
		memory.NewStorage(),
		gen,
		nil,
		service.Options{
			TopK:  5,
			Rules: []service.Rule{service.PhraseRule("whose resume is this", []string{"SUMMARY", "Aspiring LLM"}, "This is the resume of ")},
		},
	)
	o := NewOrchestrator(Agents{
		Miner:          agents.NewContextMiner(summarizer.NewFrequencySummarizer(), 3),
		Contradictions: agents.NewContradictionHunter(gen),
		Actions:        agents.NewActionPlanner(gen),
		Persona:        agents.NewPersonaShifter(gen),
	}, Options{Parallel: parallel})
	return o, NewSession(r)
}

func stage(rep Report, s Stage) StageResult {
	for _, r := range rep.Stages {
		if r.Stage == s {
			return r
		}
	}
	return StageResult{}
}

func isPlaceholder(s, label string) bool {
	return strings.HasPrefix(s, "["+label+" unavailable: ")
}

func TestAskWithFailingGenerator(t *testing.T) {
	gen := &scriptedGenerator{reply: func(context.Context, string) (string, error) {
		return "", errors.New("model offline")
	}}
	o, s := newTestOrchestrator(gen, false)
	s.SetText(storyText)

	rep, err := o.Ask(context.Background(), s, "", "When did the storm come?")
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	res := rep.Result
	if !strings.Contains(res.Context, "Old Tom") || isPlaceholder(res.Context, "context") {
		t.Fatalf("context not mined: %q", res.Context)
	}
	for label, v := range map[string]string{
		"answer":          res.Answer,
		"contradictions":  res.Contradictions,
		"actions":         res.Actions,
		"persona summary": res.PersonaSummary,
	} {
		if !isPlaceholder(v, label) {
			t.Fatalf("%s = %q, want placeholder", label, v)
		}
	}
	if got := stage(rep, StageContradictions).Status; got != StatusSkipped {
		t.Fatalf("contradictions status = %s, want skipped", got)
	}
	if got := stage(rep, StagePersona).Status; got != StatusFailed {
		t.Fatalf("persona status = %s, want failed", got)
	}
	if rep.Persona != DefaultPersona {
		t.Fatalf("persona = %q, want default", rep.Persona)
	}
	if len(s.History()) != 1 {
		t.Fatalf("history not recorded")
	}
}

func TestAskAnswersResumeOwner(t *testing.T) {
	gen := okGenerator()
	o, s := newTestOrchestrator(gen, false)

	res, err := o.RunPipeline(context.Background(), s, resumeText, "Recruiter", "Whose resume is this?")
	if err != nil {
		t.Fatalf("RunPipeline returned error: %v", err)
	}
	if !strings.Contains(res.Answer, "Jane Doe") {
		t.Fatalf("answer = %q", res.Answer)
	}
	if gen.sawPromptContaining("Whose resume is this?") {
		t.Fatalf("shortcut question reached the generator")
	}
	if res.Contradictions != "ok" || res.Actions != "ok" || res.PersonaSummary != "ok" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !gen.sawPromptContaining("Recruiter") {
		t.Fatalf("persona not passed to generator")
	}
}

func TestAskEmptyDocumentYieldsSentinel(t *testing.T) {
	gen := okGenerator()
	o, s := newTestOrchestrator(gen, false)
	s.SetText("")

	rep, err := o.Ask(context.Background(), s, "HR", "What is the salary?")
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if rep.Result.Answer != domain.NotAvailableAnswer {
		t.Fatalf("answer = %q", rep.Result.Answer)
	}
	if gen.sawPromptContaining("What is the salary?") {
		t.Fatalf("generator called for answer on empty document")
	}
}

func TestAskReusesUpToDateIndex(t *testing.T) {
	o, s := newTestOrchestrator(okGenerator(), false)
	s.SetText(storyText)

	first, err := o.Ask(context.Background(), s, "", "When did the storm come?")
	if err != nil {
		t.Fatalf("first Ask: %v", err)
	}
	second, err := o.Ask(context.Background(), s, "", "When did the storm come?")
	if err != nil {
		t.Fatalf("second Ask: %v", err)
	}
	if out := stage(second, StageEmbedProbe).Output; out != "index up to date" {
		t.Fatalf("embed stage output = %q", out)
	}
	if first.Result != second.Result {
		t.Fatalf("results differ:\n%+v\n%+v", first.Result, second.Result)
	}
	if first.RunID == second.RunID {
		t.Fatalf("run ids should differ")
	}
}

func TestAskCancelledMidRunReleasesIndex(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &scriptedGenerator{reply: func(ctx context.Context, _ string) (string, error) {
		cancel()
		return "", ctx.Err()
	}}
	o, s := newTestOrchestrator(gen, false)
	s.SetText(storyText)

	rep, err := o.Ask(ctx, s, "", "When did the storm come?")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := stage(rep, StageIndexBuilt).Status; got != StatusCancelled {
		t.Fatalf("index status = %s, want cancelled", got)
	}
	if !isPlaceholder(rep.Result.Answer, "answer") {
		t.Fatalf("answer = %q", rep.Result.Answer)
	}

	gen.reply = func(context.Context, string) (string, error) { return "ok", nil }
	done := make(chan error, 1)
	go func() {
		_, err := o.Ask(context.Background(), s, "", "When did the storm come?")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("follow-up Ask: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("follow-up Ask blocked; index lock leaked")
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	seq, s1 := newTestOrchestrator(okGenerator(), false)
	par, s2 := newTestOrchestrator(okGenerator(), true)

	a, err := seq.RunPipeline(context.Background(), s1, resumeText, "HR", "Whose resume is this?")
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	b, err := par.RunPipeline(context.Background(), s2, resumeText, "HR", "Whose resume is this?")
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if a != b {
		t.Fatalf("results differ:\n%+v\n%+v", a, b)
	}
}

func TestPlaceholder(t *testing.T) {
	if got := Placeholder("answer", StatusFailed, errors.New("boom")); got != "[answer unavailable: boom]" {
		t.Fatalf("got %q", got)
	}
	if got := Placeholder("actions", StatusSkipped, nil); got != "[actions unavailable: skipped]" {
		t.Fatalf("got %q", got)
	}
}

func TestAskStagesRunInDocumentedOrder(t *testing.T) {
	o, s := newTestOrchestrator(okGenerator(), false)

	rep, err := o.Ask(context.Background(), s, "HR", "Whose resume is this?")
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	want := []Stage{
		StageEmbedProbe,
		StageIndexBuilt,
		StageContextMined,
		StageAnswered,
		StageContradictions,
		StageActions,
		StagePersona,
	}
	if len(rep.Stages) != len(want) {
		t.Fatalf("got %d stages, want %d", len(rep.Stages), len(want))
	}
	for i, st := range want {
		if rep.Stages[i].Stage != st {
			t.Fatalf("stage %d = %s, want %s", i, rep.Stages[i].Stage, st)
		}
	}
}

func TestStageLogsCarryStageOnce(t *testing.T) {
	var buf bytes.Buffer
	logging.InitWithWriter(&buf, "debug", "text")
	t.Cleanup(func() { logging.InitWithWriter(io.Discard, "info", "text") })

	o, s := newTestOrchestrator(okGenerator(), false)
	if _, err := o.Ask(context.Background(), s, "HR", "Whose resume is this?"); err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	finished := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if !strings.Contains(line, "stage finished") {
			continue
		}
		finished++
		if n := strings.Count(line, "stage="); n != 1 {
			t.Fatalf("stage attribute appears %d times: %s", n, line)
		}
	}
	if finished != 7 {
		t.Fatalf("got %d stage finished lines, want 7:\n%s", finished, buf.String())
	}
}
