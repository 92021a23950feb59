// Package pipeline owns the per-user Session and the Orchestrator that runs
// the analysis task graph over it.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"askdocs/internal/domain"
	"askdocs/internal/logging"
	"askdocs/internal/service"
)

const previewChars = 300

// File is one uploaded document before extraction.
type File struct {
	Name string
	Type string
	Data []byte
}

// IngestedDocument describes a successfully extracted file.
type IngestedDocument struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Chars   int    `json:"chars"`
	Preview string `json:"preview"`
}

// IngestFailure describes a file that was skipped.
type IngestFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
	Err   error  `json:"-"`
}

// IngestReport summarises one ingestion. Failures do not abort the batch.
type IngestReport struct {
	Documents []IngestedDocument `json:"documents"`
	Failures  []IngestFailure    `json:"failures"`
	Chars     int                `json:"chars"`
}

// HistoryEntry is one answered question.
type HistoryEntry struct {
	RunID    string                `json:"run_id"`
	Question string                `json:"question"`
	Persona  string                `json:"persona"`
	Result   domain.PipelineResult `json:"result"`
	At       time.Time             `json:"at"`
}

// Session holds the current document set, its index and the question history.
// It is safe for concurrent use.
type Session struct {
	id        string
	retriever *service.Retriever

	mu      sync.RWMutex
	text    string
	docs    []IngestedDocument
	history []HistoryEntry
}

func NewSession(r *service.Retriever) *Session {
	return &Session{id: uuid.NewString(), retriever: r}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Retriever() *service.Retriever { return s.retriever }

// DocumentID identifies the current combined text; it changes with the text.
func (s *Session) DocumentID() string {
	return "doc-" + service.ContentHash(s.Text())[:12]
}

// Text is the combined text of the current document set.
func (s *Session) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// SetText replaces the document set with a single text. The index is rebuilt
// on the next run if the text changed.
func (s *Session) SetText(text string) {
	s.replace(text, []IngestedDocument{describe(uuid.NewString(), "text", text)})
}

// replace swaps the document set and drops the index when the text changed,
// so searches never serve chunks of a previous document set.
func (s *Session) replace(text string, docs []IngestedDocument) {
	s.mu.Lock()
	changed := s.text != text
	s.text = text
	s.docs = docs
	s.mu.Unlock()
	if changed && s.retriever != nil {
		s.retriever.Invalidate()
	}
}

// EnsureIndex builds the index for the current text unless it is up to date.
func (s *Session) EnsureIndex(ctx context.Context) (int, error) {
	return s.retriever.BuildIndex(ctx, domain.Document{ID: s.DocumentID(), Name: "session", Content: s.Text()})
}

func (s *Session) Documents() []IngestedDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]IngestedDocument(nil), s.docs...)
}

func (s *Session) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HistoryEntry(nil), s.history...)
}

func (s *Session) record(rep Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, HistoryEntry{
		RunID:    rep.RunID,
		Question: rep.Question,
		Persona:  rep.Persona,
		Result:   rep.Result,
		At:       rep.Started,
	})
}

// Ingest extracts files concurrently and replaces the document set with the
// successfully extracted ones, joined by newlines in upload order. When every
// file fails the previous set is kept.
func (s *Session) Ingest(ctx context.Context, ex domain.Extractor, files []File) (IngestReport, error) {
	texts := make([]string, len(files))
	errs := make([]error, len(files))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for i, f := range files {
		i, f := i, f
		eg.Go(func() error {
			text, err := ex.Extract(egCtx, f.Data, declaredType(f))
			if err == nil && strings.TrimSpace(text) == "" {
				err = domain.ErrEmptyDocument
			}
			texts[i], errs[i] = text, err
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return IngestReport{}, err
	}

	var rep IngestReport
	var parts []string
	log := logging.FromContext(ctx)
	for i, f := range files {
		if errs[i] != nil {
			log.Warn("document skipped", "name", f.Name, "error", errs[i])
			rep.Failures = append(rep.Failures, IngestFailure{Name: f.Name, Error: errs[i].Error(), Err: errs[i]})
			continue
		}
		rep.Documents = append(rep.Documents, describe(uuid.NewString(), f.Name, texts[i]))
		parts = append(parts, texts[i])
	}
	combined := strings.TrimSpace(strings.Join(parts, "\n"))
	rep.Chars = utf8.RuneCountInString(combined)

	if rep.AllFailed() {
		log.Warn("no document extracted, keeping previous set", "failed", len(rep.Failures))
		return rep, nil
	}
	s.replace(combined, rep.Documents)

	log.Info("documents ingested", "ok", len(rep.Documents), "failed", len(rep.Failures), "chars", rep.Chars)
	return rep, nil
}

// AllFailed reports whether no file could be extracted.
func (r IngestReport) AllFailed() bool { return len(r.Documents) == 0 && len(r.Failures) > 0 }

// UnsupportedCount counts failures caused by unsupported formats.
func (r IngestReport) UnsupportedCount() int {
	n := 0
	for _, f := range r.Failures {
		if errors.Is(f.Err, domain.ErrUnsupportedFormat) {
			n++
		}
	}
	return n
}

func declaredType(f File) string {
	if f.Type != "" && f.Type != "application/octet-stream" {
		return f.Type
	}
	return f.Name
}

func describe(id, name, text string) IngestedDocument {
	return IngestedDocument{ID: id, Name: name, Chars: utf8.RuneCountInString(text), Preview: Preview(text, previewChars)}
}

// Preview returns the first n characters of text, with "..." when truncated.
func Preview(text string, n int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	r := []rune(text)
	return string(r[:n]) + "..."
}
