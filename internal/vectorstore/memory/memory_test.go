package memory

import (
	"errors"
	"testing"

	"askdocs/internal/domain"
)

func chunk(id string) domain.Chunk { return domain.Chunk{ChunkID: id, Text: id} }

func TestSearchOrdersByDistance(t *testing.T) {
	s := NewStorage()
	if err := s.Init(2); err != nil {
		t.Fatalf("init: %v", err)
	}
	err := s.Add([][]float32{{0, 0}, {1, 0}, {5, 5}}, []domain.Chunk{chunk("a"), chunk("b"), chunk("c")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	res, err := s.Search([][]float32{{0.9, 0}}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || len(res[0]) != 2 {
		t.Fatalf("unexpected result shape: %+v", res)
	}
	if res[0][0].Chunk.ChunkID != "b" || res[0][1].Chunk.ChunkID != "a" {
		t.Fatalf("unexpected order: %+v", res[0])
	}
	if res[0][0].Distance > res[0][1].Distance {
		t.Fatalf("distances not ascending: %+v", res[0])
	}
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	s := NewStorage()
	_ = s.Init(1)
	_ = s.Add([][]float32{{1}, {-1}, {1}}, []domain.Chunk{chunk("first"), chunk("second"), chunk("third")})

	res, _ := s.Search([][]float32{{0}}, 3)
	got := []string{res[0][0].Chunk.ChunkID, res[0][1].Chunk.ChunkID, res[0][2].Chunk.ChunkID}
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSearchClampsTopK(t *testing.T) {
	s := NewStorage()
	_ = s.Init(2)
	_ = s.Add([][]float32{{1, 1}}, []domain.Chunk{chunk("only")})

	res, err := s.Search([][]float32{{0, 0}, {2, 2}}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 || len(res[0]) != 1 || len(res[1]) != 1 {
		t.Fatalf("expected one result per query, got %+v", res)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	s := NewStorage()
	_ = s.Init(3)
	res, err := s.Search([][]float32{{1, 2, 3}}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || len(res[0]) != 0 {
		t.Fatalf("expected one empty list, got %+v", res)
	}
}

func TestDimensionMismatch(t *testing.T) {
	s := NewStorage()
	_ = s.Init(2)
	_ = s.Add([][]float32{{1, 1}}, []domain.Chunk{chunk("a")})

	err := s.Add([][]float32{{1, 1}, {1, 2, 3}}, []domain.Chunk{chunk("b"), chunk("c")})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("failed add must not change the index, len=%d", s.Len())
	}

	if _, err := s.Search([][]float32{{1}}, 1); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch on search, got %v", err)
	}
}

func TestAddBeforeInit(t *testing.T) {
	s := NewStorage()
	if err := s.Add([][]float32{{1}}, []domain.Chunk{chunk("a")}); !errors.Is(err, domain.ErrUnbuiltIndex) {
		t.Fatalf("expected unbuilt index error, got %v", err)
	}
}

func TestClear(t *testing.T) {
	s := NewStorage()
	_ = s.Init(1)
	_ = s.Add([][]float32{{1}}, []domain.Chunk{chunk("a")})
	_ = s.Clear()
	if s.Len() != 0 || s.Dimension() != 1 {
		t.Fatalf("clear should drop rows and keep dimension, len=%d dim=%d", s.Len(), s.Dimension())
	}
}
