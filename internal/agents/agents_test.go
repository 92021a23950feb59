package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"askdocs/internal/domain"
	"askdocs/internal/summarizer"
)

type recordingGenerator struct {
	prompts []string
	reply   string
	err     error
}

func (g *recordingGenerator) Name() string { return "fake" }

func (g *recordingGenerator) Complete(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

func TestContextMinerOutput(t *testing.T) {
	text := "Old Tom kept the lighthouse at Crescent Bay. Mary Jones visited him at dawn! Storms came."
	out := NewContextMiner(summarizer.NewFrequencySummarizer(), 3).Run(text)

	for _, want := range []string{
		"📄 **Document Context Analysis**",
		"**Key Characters:** Old Tom, Crescent Bay, Mary Jones",
		"**Locations Mentioned:** Crescent Bay",
		"**Main Themes:** Lighthouse, Maritime, Time, Nature",
		"**Document Stats:** 4 sentences, approximately 16 words",
		"focusing on lighthouse with 3 main character(s) mentioned.",
		"**Key Sentences:**",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

type fixedSummarizer struct {
	summary string
	err     error
	calls   int
}

func (f *fixedSummarizer) Summarize(string, int) (string, error) {
	f.calls++
	return f.summary, f.err
}

func TestContextMinerUsesSummarizer(t *testing.T) {
	sum := &fixedSummarizer{summary: "The keeper stayed."}
	out := NewContextMiner(sum, 2).Run("Old Tom kept the lighthouse.")
	if sum.calls != 1 || !strings.Contains(out, "**Key Sentences:** The keeper stayed.") {
		t.Fatalf("calls = %d, out:\n%s", sum.calls, out)
	}

	failing := &fixedSummarizer{err: errors.New("summarizer down")}
	out = NewContextMiner(failing, 2).Run("Old Tom kept the lighthouse.")
	if strings.Contains(out, "Key Sentences") || !strings.Contains(out, "**Main Themes:** Lighthouse") {
		t.Fatalf("failing summarizer should only drop key sentences:\n%s", out)
	}
}

func TestContextMinerEmptyText(t *testing.T) {
	out := NewContextMiner(nil, 3).Run("")
	for _, want := range []string{
		"**Key Characters:** None identified",
		"**Main Themes:** General content",
		"**Document Stats:** 1 sentences, approximately 0 words",
		"focusing on general topics with 0 main character(s)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Key Sentences") {
		t.Fatalf("nil summarizer should omit key sentences")
	}
}

func TestExtractEntitiesDeduplicates(t *testing.T) {
	ents := ExtractEntities("Jane Doe met John Smith. Jane Doe left for Harbor Town.")
	if len(ents.People) != 3 {
		t.Fatalf("expected Jane Doe, John Smith, Harbor Town as people, got %v", ents.People)
	}
	if ents.People[0] != "Jane Doe" {
		t.Fatalf("expected first-seen order, got %v", ents.People)
	}
	if len(ents.Locations) != 1 || ents.Locations[0] != "Harbor Town" {
		t.Fatalf("unexpected locations: %v", ents.Locations)
	}
}

func TestGeneratorAgentsUseTemplates(t *testing.T) {
	g := &recordingGenerator{reply: "ok"}
	ctx := context.Background()

	if out, _ := NewContradictionHunter(g).Run(ctx, "the answer", "the context"); out != "ok" {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := NewActionPlanner(g).Run(ctx, "document body"); err != nil {
		t.Fatalf("planner: %v", err)
	}
	if _, err := NewPersonaShifter(g).Run(ctx, "combined", "HR"); err != nil {
		t.Fatalf("persona: %v", err)
	}

	if !strings.Contains(g.prompts[0], "the context") || !strings.HasSuffix(g.prompts[0], "List any contradictions or write 'None':") {
		t.Fatalf("unexpected contradiction prompt: %s", g.prompts[0])
	}
	if !strings.Contains(g.prompts[1], "document body") || !strings.Contains(g.prompts[1], "Plan:") {
		t.Fatalf("unexpected action prompt: %s", g.prompts[1])
	}
	if !strings.Contains(g.prompts[2], "mindset of a HR") || !strings.Contains(g.prompts[2], "Persona-style answer:") {
		t.Fatalf("unexpected persona prompt: %s", g.prompts[2])
	}
}

func TestGeneratorAgentsPropagateErrors(t *testing.T) {
	g := &recordingGenerator{err: errors.New("down")}
	if _, err := NewActionPlanner(g).Run(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestAnswerPromptJoinsChunks(t *testing.T) {
	p := AnswerPrompt([]string{"one", "two"}, "why?")
	if !strings.Contains(p, "one\n\n---\n\ntwo") || !strings.Contains(p, "Question: why?\nAnswer:") {
		t.Fatalf("unexpected prompt: %s", p)
	}
}

func TestCombineForPersona(t *testing.T) {
	got := CombineForPersona(domain.PipelineResult{Context: "c", Contradictions: "x", Actions: "a", Answer: "ans"})
	if got != "Context: c\nContradictions: x\nActions: a\nAnswer: ans" {
		t.Fatalf("unexpected combined text %q", got)
	}
}
