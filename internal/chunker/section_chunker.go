package chunker

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"askdocs/internal/domain"
)

// MergeRule joins short, logically connected sections into one before length splitting.
// It applies only when the document contains Guard (or Guard is empty).
type MergeRule struct {
	Guard    string
	Triggers []string
}

// SectionChunker splits text on upper-case header lines and falls back to
// length-bounded splitting for sections larger than the maximum size.
type SectionChunker struct {
	maxSize  int
	overlap  int
	merge    MergeRule
	splitter *RecursiveSplitter
}

func NewSectionChunker(maxSize, overlap int, merge MergeRule) *SectionChunker {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize / 2
	}
	return &SectionChunker{
		maxSize:  maxSize,
		overlap:  overlap,
		merge:    merge,
		splitter: NewRecursiveSplitter(maxSize, overlap),
	}
}

// Chunk segments the document. It never fails; an empty document yields no chunks.
func (c *SectionChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for _, sec := range c.Sections(document.Content) {
		pieces := []string{sec.Text}
		if utf8.RuneCountInString(sec.Text) > c.maxSize {
			pieces = c.splitter.Split(sec.Text)
		}
		for _, p := range pieces {
			if strings.TrimSpace(p) == "" {
				continue
			}
			idx := len(chunks)
			chunks = append(chunks, domain.Chunk{
				DocumentID: document.ID,
				ChunkID:    document.ID + ":" + strconv.Itoa(idx),
				Index:      idx,
				Text:       p,
				Section:    sec.Header,
			})
		}
	}
	return chunks, nil
}

// Section is a structural unit of a document: the lines from one header up to the next.
type Section struct {
	Header string
	Text   string
}

// Sections returns the structural sections of text after the merge post-pass.
func (c *SectionChunker) Sections(text string) []Section {
	if text == "" {
		return nil
	}
	var sections []Section
	var current []string
	header := ""
	for _, line := range strings.Split(text, "\n") {
		if IsHeader(line) {
			if len(current) > 0 {
				sections = append(sections, Section{Header: header, Text: strings.Join(current, "\n")})
				current = nil
			}
			header = strings.TrimSpace(line)
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		sections = append(sections, Section{Header: header, Text: strings.Join(current, "\n")})
	}
	return c.applyMerge(text, sections)
}

// applyMerge opens a new group at every section mentioning a trigger; the
// sections that follow join the open group.
func (c *SectionChunker) applyMerge(text string, sections []Section) []Section {
	if len(c.merge.Triggers) == 0 || len(sections) < 2 {
		return sections
	}
	if c.merge.Guard != "" && !strings.Contains(text, c.merge.Guard) {
		return sections
	}
	var merged []Section
	var group []Section
	flush := func() {
		if len(group) == 0 {
			return
		}
		texts := make([]string, len(group))
		for i, s := range group {
			texts[i] = s.Text
		}
		merged = append(merged, Section{Header: group[0].Header, Text: strings.Join(texts, "\n")})
		group = nil
	}
	for _, sec := range sections {
		if c.isTrigger(sec) {
			flush()
		}
		group = append(group, sec)
	}
	flush()
	return merged
}

func (c *SectionChunker) isTrigger(sec Section) bool {
	for _, t := range c.merge.Triggers {
		if t != "" && strings.Contains(sec.Text, t) {
			return true
		}
	}
	return false
}

// IsHeader reports whether line is a section header: after trimming it is
// longer than three characters and has cased letters, all upper-case.
func IsHeader(line string) bool {
	s := strings.TrimSpace(line)
	if utf8.RuneCountInString(s) <= 3 {
		return false
	}
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}
