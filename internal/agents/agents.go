// Package agents implements the analysis steps run after retrieval: the local
// context miner and the generator-backed contradiction, action and persona agents.
package agents

import (
	"context"
	"fmt"

	"askdocs/internal/domain"
)

// ContradictionHunter checks an answer against the mined context.
type ContradictionHunter struct {
	gen domain.Generator
}

func NewContradictionHunter(gen domain.Generator) *ContradictionHunter {
	return &ContradictionHunter{gen: gen}
}

func (h *ContradictionHunter) Run(ctx context.Context, answer, docContext string) (string, error) {
	out, err := h.gen.Complete(ctx, contradictionPrompt(answer, docContext))
	if err != nil {
		return "", fmt.Errorf("contradiction hunter: %w", err)
	}
	return out, nil
}

// ActionPlanner drafts a prioritised plan. It is fed the document text, so the
// plan is document-level rather than question-level.
type ActionPlanner struct {
	gen domain.Generator
}

func NewActionPlanner(gen domain.Generator) *ActionPlanner {
	return &ActionPlanner{gen: gen}
}

func (p *ActionPlanner) Run(ctx context.Context, text string) (string, error) {
	out, err := p.gen.Complete(ctx, actionPrompt(text))
	if err != nil {
		return "", fmt.Errorf("action planner: %w", err)
	}
	return out, nil
}

// PersonaShifter rewrites combined analysis output in a persona's voice.
type PersonaShifter struct {
	gen domain.Generator
}

func NewPersonaShifter(gen domain.Generator) *PersonaShifter {
	return &PersonaShifter{gen: gen}
}

func (s *PersonaShifter) Run(ctx context.Context, combined, persona string) (string, error) {
	out, err := s.gen.Complete(ctx, personaPrompt(combined, persona))
	if err != nil {
		return "", fmt.Errorf("persona shifter: %w", err)
	}
	return out, nil
}

// CombineForPersona labels the prior stage outputs in fixed order.
func CombineForPersona(r domain.PipelineResult) string {
	return fmt.Sprintf("Context: %s\nContradictions: %s\nActions: %s\nAnswer: %s",
		r.Context, r.Contradictions, r.Actions, r.Answer)
}
