package resilience

import (
	"context"

	"askdocs/internal/domain"
)

// Embedder applies a Policy to every Embed call of the wrapped embedder.
type Embedder struct {
	inner  domain.Embedder
	policy Policy
}

func WrapEmbedder(e domain.Embedder, p Policy) *Embedder {
	return &Embedder{inner: e, policy: p}
}

func (e *Embedder) Name() string { return e.inner.Name() }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return Call(ctx, e.policy, "embedder:"+e.inner.Name(), "embed", func(ctx context.Context) ([][]float32, error) {
		return e.inner.Embed(ctx, texts)
	})
}

// Prepare forwards to the wrapped embedder when it needs corpus preparation.
func (e *Embedder) Prepare(corpus []string) error {
	if p, ok := e.inner.(domain.Preparer); ok {
		return p.Prepare(corpus)
	}
	return nil
}

// Generator applies a Policy to every Complete call of the wrapped generator.
type Generator struct {
	inner  domain.Generator
	policy Policy
}

func WrapGenerator(g domain.Generator, p Policy) *Generator {
	return &Generator{inner: g, policy: p}
}

func (g *Generator) Name() string { return g.inner.Name() }

func (g *Generator) Complete(ctx context.Context, prompt string) (string, error) {
	return Call(ctx, g.policy, "generator:"+g.inner.Name(), "complete", func(ctx context.Context) (string, error) {
		return g.inner.Complete(ctx, prompt)
	})
}
