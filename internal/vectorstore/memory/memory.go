package memory

import (
	"errors"
	"sort"
	"sync"

	"askdocs/internal/domain"
)

// Storage is a flat in-memory vector index using exact squared-L2 distance.
// Every query is compared with every stored vector.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	chunks    []domain.Chunk
}

func NewStorage() *Storage { return &Storage{} }

var _ domain.VectorStore = (*Storage)(nil)

func (s *Storage) Init(dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	s.chunks = nil
	return nil
}

// Add appends vectors and their chunks. The batch is validated before any
// row is stored, so a failed Add leaves the index unchanged.
func (s *Storage) Add(vectors [][]float32, chunks []domain.Chunk) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return domain.ErrUnbuiltIndex
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return &domain.DimensionError{Got: len(v), Want: s.dimension}
		}
	}
	for _, v := range vectors {
		s.vectors = append(s.vectors, append([]float32(nil), v...))
	}
	s.chunks = append(s.chunks, chunks...)
	return nil
}

// Search returns, per query, up to topK results ordered by ascending distance.
// Equal distances keep insertion order.
func (s *Storage) Search(queries [][]float32, topK int) ([][]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, errors.New("topK must be positive")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range queries {
		if len(q) != s.dimension {
			return nil, &domain.DimensionError{Got: len(q), Want: s.dimension}
		}
	}
	out := make([][]domain.SearchResult, len(queries))
	for qi, q := range queries {
		out[qi] = s.nearest(q, topK)
	}
	return out, nil
}

func (s *Storage) nearest(query []float32, topK int) []domain.SearchResult {
	if len(s.vectors) == 0 {
		return []domain.SearchResult{}
	}
	dists := make([]float64, len(s.vectors))
	for i := range s.vectors {
		dists[i] = squaredL2(s.vectors[i], query)
	}
	idxs := make([]int, len(dists))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return dists[idxs[a]] < dists[idxs[b]] })
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.SearchResult{Chunk: s.chunks[j], Distance: dists[j]})
	}
	return results
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Storage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.chunks = nil
	return nil
}

func squaredL2(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
