package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"askdocs/internal/domain"
	"askdocs/internal/extract"
)

func TestIngestKeepsOrderAndRecordsFailures(t *testing.T) {
	s := NewSession(nil)
	files := []File{
		{Name: "a.txt", Data: []byte("first document")},
		{Name: "scan.png", Type: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		{Name: "blank.md", Data: []byte("   \n")},
		{Name: "b.txt", Type: "text/plain", Data: []byte("second document")},
	}

	rep, err := s.Ingest(context.Background(), extract.NewRouter(), files)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if len(rep.Documents) != 2 || rep.Documents[0].Name != "a.txt" || rep.Documents[1].Name != "b.txt" {
		t.Fatalf("documents = %+v", rep.Documents)
	}
	if len(rep.Failures) != 2 {
		t.Fatalf("failures = %+v", rep.Failures)
	}
	if !errors.Is(rep.Failures[0].Err, domain.ErrUnsupportedFormat) || rep.Failures[0].Name != "scan.png" {
		t.Fatalf("first failure = %+v", rep.Failures[0])
	}
	if !errors.Is(rep.Failures[1].Err, domain.ErrEmptyDocument) {
		t.Fatalf("second failure = %+v", rep.Failures[1])
	}
	if rep.UnsupportedCount() != 1 || rep.AllFailed() {
		t.Fatalf("unexpected report summary %+v", rep)
	}
	if got := s.Text(); got != "first document\nsecond document" {
		t.Fatalf("text = %q", got)
	}
	if rep.Documents[0].ID == rep.Documents[1].ID {
		t.Fatalf("document ids collide")
	}
}

func TestIngestAllUnsupported(t *testing.T) {
	s := NewSession(nil)
	rep, err := s.Ingest(context.Background(), extract.NewRouter(), []File{{Name: "photo.jpg", Data: []byte{1}}})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if !rep.AllFailed() || s.Text() != "" {
		t.Fatalf("report = %+v, text = %q", rep, s.Text())
	}
}

func TestIngestAllFailedKeepsPreviousSet(t *testing.T) {
	s := NewSession(nil)
	s.SetText("previous document")
	before := s.Documents()

	rep, err := s.Ingest(context.Background(), extract.NewRouter(), []File{{Name: "photo.jpg", Data: []byte{1}}})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if !rep.AllFailed() {
		t.Fatalf("report = %+v", rep)
	}
	if s.Text() != "previous document" {
		t.Fatalf("text = %q, want previous document", s.Text())
	}
	if after := s.Documents(); len(after) != 1 || after[0].ID != before[0].ID {
		t.Fatalf("documents = %+v, want %+v", after, before)
	}
}

func TestIngestDropsStaleIndex(t *testing.T) {
	_, s := newTestOrchestrator(okGenerator(), false)
	s.SetText(resumeText)
	if _, err := s.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}

	files := []File{{Name: "garden.txt", Data: []byte("Tomatoes need compost and full sun.")}}
	if _, err := s.Ingest(context.Background(), extract.NewRouter(), files); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if s.Retriever().Built() {
		t.Fatalf("index of the previous document set still served")
	}
	if _, err := s.Retriever().Search(context.Background(), "compost", 3); !errors.Is(err, domain.ErrUnbuiltIndex) {
		t.Fatalf("err = %v, want ErrUnbuiltIndex", err)
	}

	if _, err := s.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	hits, err := s.Retriever().Search(context.Background(), "compost", 3)
	if err != nil || len(hits) == 0 {
		t.Fatalf("hits = %+v, err = %v", hits, err)
	}
	for _, h := range hits {
		if strings.Contains(h.Chunk.Text, "Jane Doe") {
			t.Fatalf("search returned previous document: %+v", h)
		}
	}
}

func TestSetTextSameTextKeepsIndex(t *testing.T) {
	_, s := newTestOrchestrator(okGenerator(), false)
	s.SetText(storyText)
	if _, err := s.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	s.SetText(storyText)
	if !s.Retriever().Built() {
		t.Fatalf("unchanged text dropped the index")
	}
}

func TestIngestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSession(nil).Ingest(ctx, extract.NewRouter(), []File{{Name: "a.txt", Data: []byte("x")}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("é", 310)
	got := Preview(long, 300)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 303 {
		t.Fatalf("preview has %d runes", len([]rune(got)))
	}
	if Preview("  short  ", 300) != "short" {
		t.Fatalf("short text should not be truncated")
	}
}

func TestDocumentIDFollowsText(t *testing.T) {
	s := NewSession(nil)
	s.SetText("one")
	a := s.DocumentID()
	s.SetText("two")
	if a == s.DocumentID() {
		t.Fatalf("document id did not change with text")
	}
	if len(s.Documents()) != 1 {
		t.Fatalf("documents = %+v", s.Documents())
	}
}
