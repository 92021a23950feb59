// Package service builds the vector index for a document and routes questions
// to either a shortcut rule or semantic retrieval plus generation.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"askdocs/internal/agents"
	"askdocs/internal/domain"
	"askdocs/internal/embedding"
	"askdocs/internal/logging"
	"askdocs/internal/metrics"
	"askdocs/internal/tokenizer"
)

// Options configures the Retriever.
type Options struct {
	TopK             int
	MaxContextTokens int
	Rules            []Rule
	// Prompt builds the generator prompt from retrieved chunks; defaults to agents.AnswerPrompt.
	Prompt func(contextChunks []string, question string) string
}

// Retriever owns the vector index of the current document. Builds and
// queries are mutually exclusive: a build holds the write lock from Begin
// until Commit or Rollback.
type Retriever struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	store     domain.VectorStore
	generator domain.Generator
	tokens    *tokenizer.Counter
	opts      Options

	mu     sync.RWMutex
	chunks []domain.Chunk
	built  bool
	hash   string
}

func NewRetriever(chunker domain.Chunker, embedder domain.Embedder, store domain.VectorStore, generator domain.Generator, tokens *tokenizer.Counter, opts Options) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Prompt == nil {
		opts.Prompt = agents.AnswerPrompt
	}
	if tokens == nil {
		tokens = tokenizer.New()
	}
	return &Retriever{chunker: chunker, embedder: embedder, store: store, generator: generator, tokens: tokens, opts: opts}
}

// ContentHash identifies document text for change detection.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IndexTx is an in-progress index build. Unless it is up to date it holds
// the Retriever's write lock.
type IndexTx struct {
	r         *Retriever
	doc       domain.Document
	hash      string
	chunks    []domain.Chunk
	dimension int
	upToDate  bool
	done      bool
}

// Begin chunks doc, prepares the embedder on the chunk corpus and probes the
// embedding dimension. When doc matches the current index the transaction is
// a no-op that takes no lock, and UpToDate reports true.
func (r *Retriever) Begin(ctx context.Context, doc domain.Document) (*IndexTx, error) {
	tx := &IndexTx{r: r, doc: doc, hash: ContentHash(doc.Content)}
	if r.current(tx.hash) {
		tx.upToDate = true
		return tx, nil
	}

	r.mu.Lock()
	if r.built && r.hash == tx.hash {
		r.mu.Unlock()
		tx.upToDate = true
		return tx, nil
	}
	chunks, err := r.chunker.Chunk(doc)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	tx.chunks = chunks
	if len(chunks) == 0 {
		return tx, nil
	}

	if p, ok := r.embedder.(domain.Preparer); ok {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
		}
		// The embedder now speaks the new corpus; vectors of the old index no
		// longer compare with its queries.
		r.invalidateLocked()
		if err := p.Prepare(texts); err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("prepare embedder: %w", err)
		}
	}
	dim, err := embedding.Probe(ctx, r.embedder)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("probe embedder: %w", err)
	}
	tx.dimension = dim
	return tx, nil
}

func (r *Retriever) current(hash string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.built && r.hash == hash
}

func (tx *IndexTx) UpToDate() bool         { return tx.upToDate }
func (tx *IndexTx) Dimension() int         { return tx.dimension }
func (tx *IndexTx) Chunks() []domain.Chunk { return tx.chunks }

// Commit embeds every chunk and replaces the index contents, then releases
// the lock. On failure the previous index is discarded and queries fail with
// ErrUnbuiltIndex until the next successful build.
func (tx *IndexTx) Commit(ctx context.Context) error {
	if tx.done || tx.upToDate {
		tx.done = true
		return nil
	}
	r := tx.r
	defer func() {
		tx.done = true
		r.mu.Unlock()
	}()
	log := logging.FromContext(logging.With(ctx, logging.DocumentIDKey, tx.doc.ID))

	r.invalidateLocked()
	if len(tx.chunks) == 0 {
		if err := r.store.Clear(); err != nil {
			return err
		}
		r.built, r.hash = true, tx.hash
		metrics.IndexChunks.Set(0)
		log.Info("index built", "chunks", 0)
		return nil
	}

	texts := make([]string, len(tx.chunks))
	for i, ch := range tx.chunks {
		texts[i] = ch.Text
	}
	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if err := embedding.CheckBatch(texts, vectors); err != nil {
		return err
	}
	if err := r.store.Init(tx.dimension); err != nil {
		return err
	}
	if err := r.store.Add(vectors, tx.chunks); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	r.chunks = tx.chunks
	r.built, r.hash = true, tx.hash
	metrics.IndexChunks.Set(float64(len(tx.chunks)))
	log.Info("index built", "chunks", len(tx.chunks), "dimension", tx.dimension)
	return nil
}

// Rollback releases the lock. The previous index survives unless the
// embedder was already re-prepared for the new document. It is safe after Commit.
func (tx *IndexTx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	if !tx.upToDate {
		tx.r.mu.Unlock()
	}
}

// Invalidate discards the current index; queries fail with ErrUnbuiltIndex
// until the next build.
func (r *Retriever) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked()
}

func (r *Retriever) invalidateLocked() {
	r.built = false
	r.hash = ""
	r.chunks = nil
	metrics.IndexChunks.Set(0)
}

// BuildIndex runs a full build of doc.
func (r *Retriever) BuildIndex(ctx context.Context, doc domain.Document) (int, error) {
	tx, err := r.Begin(ctx, doc)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return r.Len(), nil
}

// Len is the number of indexed chunks.
func (r *Retriever) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}

// Built reports whether a document has been indexed.
func (r *Retriever) Built() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.built
}

// Chunks returns a copy of the indexed chunks in insertion order.
func (r *Retriever) Chunks() []domain.Chunk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Chunk(nil), r.chunks...)
}

// Query answers each question in q and returns an Answer of the same shape.
func (r *Retriever) Query(ctx context.Context, q domain.Question) (domain.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.built {
		return domain.Answer{}, domain.ErrUnbuiltIndex
	}
	answers := make([]string, 0, len(q.Items()))
	for _, question := range q.Items() {
		if err := ctx.Err(); err != nil {
			return domain.Answer{}, err
		}
		a, err := r.answer(ctx, question)
		if err != nil {
			return domain.Answer{}, err
		}
		answers = append(answers, a)
	}
	return domain.AnswerFor(q, answers), nil
}

// Search returns the nearest chunks for question without generating an answer.
func (r *Retriever) Search(ctx context.Context, question string, topK int) ([]domain.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.built {
		return nil, domain.ErrUnbuiltIndex
	}
	if len(r.chunks) == 0 {
		return []domain.SearchResult{}, nil
	}
	vecs, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if err := embedding.CheckBatch([]string{question}, vecs); err != nil {
		return nil, err
	}
	res, err := r.store.Search(vecs, topK)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (r *Retriever) answer(ctx context.Context, question string) (string, error) {
	log := logging.FromContext(ctx)
	for _, rule := range r.opts.Rules {
		if !rule.Match(question) {
			continue
		}
		metrics.RetrievalTotal.WithLabelValues("shortcut").Inc()
		if a, ok := rule.Resolve(r.chunks); ok {
			log.Debug("question answered by shortcut", "rule", rule.Name)
			return a, nil
		}
		return domain.NotAvailableAnswer, nil
	}

	if len(r.chunks) == 0 {
		metrics.RetrievalTotal.WithLabelValues("empty").Inc()
		return domain.NotAvailableAnswer, nil
	}

	contextChunks, err := r.retrieve(ctx, question)
	if err != nil {
		return "", err
	}
	if len(contextChunks) == 0 {
		metrics.RetrievalTotal.WithLabelValues("empty").Inc()
		return domain.NotAvailableAnswer, nil
	}
	metrics.RetrievalTotal.WithLabelValues("semantic").Inc()

	contextChunks = r.tokens.Fit(contextChunks, agents.ContextSeparator, r.opts.MaxContextTokens)
	prompt := r.opts.Prompt(contextChunks, question)
	log.Debug("answer prompt built", "chunks", len(contextChunks), "tokens", r.tokens.Count(prompt))
	return r.generator.Complete(ctx, prompt)
}

func (r *Retriever) retrieve(ctx context.Context, question string) ([]string, error) {
	vecs, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if err := embedding.CheckBatch([]string{question}, vecs); err != nil {
		return nil, err
	}

	res, err := r.store.Search(vecs, r.opts.TopK)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(res[0]))
	for _, hit := range res[0] {
		texts = append(texts, hit.Chunk.Text)
	}
	return texts, nil
}
