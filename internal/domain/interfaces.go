package domain

import "context"

// Document represents a single extracted document in the current document set.
type Document struct {
	ID      string
	Name    string
	Content string
}

// Chunk is a bounded span of document text used as the unit of retrieval.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Index      int
	Text       string
	// Section is the header line that opened the structural section, if any.
	Section string
}

// SearchResult is a retrieved chunk with its L2 distance to the query (lower is closer).
type SearchResult struct {
	Chunk    Chunk
	Distance float64
}

// Embedder maps texts to fixed-dimension vectors, one per input, in input order.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Preparer is implemented by embedders that must see the corpus before embedding.
type Preparer interface {
	Prepare(corpus []string) error
}

// Generator turns a prompt into a completion. One blocking call per invocation.
type Generator interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorStore holds embeddings with their chunks and answers k-nearest-neighbour queries.
type VectorStore interface {
	Init(dimension int) error
	Add(vectors [][]float32, chunks []Chunk) error
	Search(queries [][]float32, topK int) ([][]SearchResult, error)
	Len() int
	Dimension() int
	Clear() error
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Extractor turns raw file bytes of a declared type into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, declaredType string) (string, error)
}
