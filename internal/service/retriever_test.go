package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"askdocs/internal/chunker"
	"askdocs/internal/domain"
	"askdocs/internal/embedding/tfidf"
	"askdocs/internal/vectorstore/memory"
)

type fakeGenerator struct {
	calls   atomic.Int32
	prompts []string
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Complete(_ context.Context, prompt string) (string, error) {
	g.calls.Add(1)
	g.prompts = append(g.prompts, prompt)
	return "generated answer", nil
}

type countingEmbedder struct {
	inner *tfidf.Embedder
	calls atomic.Int32
}

func (e *countingEmbedder) Name() string { return "counting" }

func (e *countingEmbedder) Prepare(corpus []string) error { return e.inner.Prepare(corpus) }

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	return e.inner.Embed(ctx, texts)
}

const resume = "SUMMARY\nJane Doe\nAspiring LLM Engineer with a focus on retrieval systems.\nEXPERIENCE\nAcme Corp backend engineer building search services in Go."

func newTestRetriever(t *testing.T) (*Retriever, *countingEmbedder, *fakeGenerator) {
	t.Helper()
	emb := &countingEmbedder{inner: tfidf.NewEmbedder()}
	gen := &fakeGenerator{}
	r := NewRetriever(
		chunker.NewSectionChunker(10000, 1000, chunker.MergeRule{}),
		emb,
		memory.NewStorage(),
		gen,
		nil,
		Options{TopK: 5, Rules: []Rule{PhraseRule("whose resume is this", []string{"SUMMARY", "Aspiring LLM"}, "This is the resume of ")}},
	)
	return r, emb, gen
}

func TestQueryBeforeBuildFailsFast(t *testing.T) {
	r, _, _ := newTestRetriever(t)
	if _, err := r.Query(context.Background(), domain.Single("anything")); !errors.Is(err, domain.ErrUnbuiltIndex) {
		t.Fatalf("expected ErrUnbuiltIndex, got %v", err)
	}
}

func TestShortcutAnswersResumeOwner(t *testing.T) {
	r, emb, gen := newTestRetriever(t)
	if _, err := r.BuildIndex(context.Background(), domain.Document{ID: "d", Content: resume}); err != nil {
		t.Fatalf("build: %v", err)
	}
	before := emb.calls.Load()

	ans, err := r.Query(context.Background(), domain.Single("Whose resume is this?"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.HasPrefix(ans.Text(), "This is the resume of ") || !strings.Contains(ans.Text(), "Jane Doe") {
		t.Fatalf("unexpected answer %q", ans.Text())
	}
	if emb.calls.Load() != before || gen.calls.Load() != 0 {
		t.Fatalf("shortcut must not call embedder or generator")
	}
}

func TestShortcutWithoutMatchingChunk(t *testing.T) {
	r, _, gen := newTestRetriever(t)
	_, _ = r.BuildIndex(context.Background(), domain.Document{ID: "d", Content: "NOTES\nnothing about anyone"})
	ans, _ := r.Query(context.Background(), domain.Single("whose resume is this"))
	if ans.Text() != domain.NotAvailableAnswer || gen.calls.Load() != 0 {
		t.Fatalf("expected sentinel without generation, got %q", ans.Text())
	}
}

func TestSemanticPathCallsGenerator(t *testing.T) {
	r, _, gen := newTestRetriever(t)
	_, _ = r.BuildIndex(context.Background(), domain.Document{ID: "d", Content: resume})

	ans, err := r.Query(context.Background(), domain.Single("Which backend search services?"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ans.Text() != "generated answer" || gen.calls.Load() != 1 {
		t.Fatalf("expected generator answer, got %q", ans.Text())
	}
	if !strings.Contains(gen.prompts[0], "Acme Corp") || !strings.Contains(gen.prompts[0], "Question: Which backend search services?") {
		t.Fatalf("prompt missing context: %s", gen.prompts[0])
	}
}

func TestEmptyDocumentYieldsSentinel(t *testing.T) {
	r, emb, gen := newTestRetriever(t)
	n, err := r.BuildIndex(context.Background(), domain.Document{ID: "d"})
	if err != nil || n != 0 {
		t.Fatalf("expected empty build, got %d, %v", n, err)
	}
	ans, err := r.Query(context.Background(), domain.Single("What is this about?"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ans.Text() != domain.NotAvailableAnswer {
		t.Fatalf("expected sentinel, got %q", ans.Text())
	}
	if gen.calls.Load() != 0 || emb.calls.Load() != 0 {
		t.Fatalf("empty index must not call collaborators")
	}
}

func TestBatchKeepsShapeAndOrder(t *testing.T) {
	r, _, _ := newTestRetriever(t)
	_, _ = r.BuildIndex(context.Background(), domain.Document{ID: "d", Content: resume})

	ans, err := r.Query(context.Background(), domain.Batch("whose resume is this", "what about Go services?"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !ans.IsBatch() || len(ans.Items()) != 2 {
		t.Fatalf("expected batch of 2, got %+v", ans)
	}
	if !strings.Contains(ans.Items()[0], "Jane Doe") || ans.Items()[1] != "generated answer" {
		t.Fatalf("unexpected answers: %v", ans.Items())
	}

	single, _ := r.Query(context.Background(), domain.Single("whose resume is this"))
	if single.IsBatch() {
		t.Fatalf("single question must not be wrapped")
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	r, emb, _ := newTestRetriever(t)
	ctx := context.Background()
	doc := domain.Document{ID: "d", Content: resume}

	_, _ = r.BuildIndex(ctx, doc)
	first, err := r.Search(ctx, "retrieval engineer", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	calls := emb.calls.Load()
	_, _ = r.BuildIndex(ctx, doc)
	if emb.calls.Load() != calls {
		t.Fatalf("unchanged document should not be re-embedded")
	}
	second, _ := r.Search(ctx, "retrieval engineer", 5)
	if len(first) != len(second) {
		t.Fatalf("result sizes differ")
	}
	for i := range first {
		if first[i].Distance != second[i].Distance || first[i].Chunk.ChunkID != second[i].Chunk.ChunkID {
			t.Fatalf("results differ at %d", i)
		}
	}
}

func TestBeginRollbackReleasesLock(t *testing.T) {
	r, _, _ := newTestRetriever(t)
	tx, err := r.Begin(context.Background(), domain.Document{ID: "d", Content: resume})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if tx.Dimension() == 0 || len(tx.Chunks()) != 2 {
		t.Fatalf("unexpected tx state: dim=%d chunks=%d", tx.Dimension(), len(tx.Chunks()))
	}
	tx.Rollback()
	tx.Rollback()
	if r.Built() {
		t.Fatalf("rolled back build must not mark the index built")
	}
}

func TestRollbackAfterPrepareDiscardsStaleIndex(t *testing.T) {
	r, _, _ := newTestRetriever(t)
	ctx := context.Background()
	if _, err := r.BuildIndex(ctx, domain.Document{ID: "resume", Content: resume}); err != nil {
		t.Fatalf("build: %v", err)
	}
	tx, err := r.Begin(ctx, domain.Document{ID: "garden", Content: "Tomatoes need compost and sun.\nWater the beds at dawn."})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	tx.Rollback()

	if _, err := r.Search(ctx, "retrieval engineer", 5); !errors.Is(err, domain.ErrUnbuiltIndex) {
		t.Fatalf("search after rollback: err = %v, want ErrUnbuiltIndex", err)
	}
	if _, err := r.BuildIndex(ctx, domain.Document{ID: "resume", Content: resume}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if res, err := r.Search(ctx, "retrieval engineer", 5); err != nil || len(res) == 0 {
		t.Fatalf("search after rebuild = %v, %v", res, err)
	}
}

func TestUpToDateBeginDoesNotBlockReaders(t *testing.T) {
	r, _, _ := newTestRetriever(t)
	ctx := context.Background()
	doc := domain.Document{ID: "resume", Content: resume}
	if _, err := r.BuildIndex(ctx, doc); err != nil {
		t.Fatalf("build: %v", err)
	}
	tx, err := r.Begin(ctx, doc)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if !tx.UpToDate() {
		t.Fatalf("expected up-to-date transaction")
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Search(ctx, "retrieval engineer", 5)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("search: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("search blocked behind an up-to-date transaction")
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestUnknownWordsStillReachGenerator(t *testing.T) {
	r, _, gen := newTestRetriever(t)
	ctx := context.Background()
	if _, err := r.BuildIndex(ctx, domain.Document{ID: "resume", Content: resume}); err != nil {
		t.Fatalf("build: %v", err)
	}
	ans, err := r.Query(ctx, domain.Single("Tell me about xylophones"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ans.Text() != "generated answer" || gen.calls.Load() != 1 {
		t.Fatalf("answer = %q, generator calls = %d", ans.Text(), gen.calls.Load())
	}
	if !strings.Contains(gen.prompts[0], "Jane Doe") || !strings.Contains(gen.prompts[0], "Acme Corp") {
		t.Fatalf("prompt missing top-k chunks: %q", gen.prompts[0])
	}
}

func TestInvalidateDropsIndex(t *testing.T) {
	r, _, _ := newTestRetriever(t)
	if _, err := r.BuildIndex(context.Background(), domain.Document{ID: "resume", Content: resume}); err != nil {
		t.Fatalf("build: %v", err)
	}
	r.Invalidate()
	if r.Built() || r.Len() != 0 {
		t.Fatalf("index still built after Invalidate")
	}
}

func TestNormalizeQuestion(t *testing.T) {
	cases := map[string]string{
		"  Whose Resume Is This?  ": "whose resume is this",
		"whose resume is this!!":    "whose resume is this",
		"whose resume is this now":  "whose resume is this now",
	}
	for in, want := range cases {
		if got := NormalizeQuestion(in); got != want {
			t.Fatalf("NormalizeQuestion(%q) = %q, want %q", in, got, want)
		}
	}
}
