package chunker

import (
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveSplitter splits text into pieces of at most chunkSize characters,
// trying paragraph, line and word boundaries before single characters.
// Separators stay attached to the start of the following piece, so joining
// pieces (minus overlap) restores the input exactly.
type RecursiveSplitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewRecursiveSplitter(chunkSize, overlap int) *RecursiveSplitter {
	return &RecursiveSplitter{chunkSize: chunkSize, overlap: overlap, separators: defaultSeparators}
}

// Split returns ordered pieces; adjacent pieces share at least overlap
// characters whenever that fits inside chunkSize.
func (s *RecursiveSplitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var out, good []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if utf8.RuneCountInString(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

func (s *RecursiveSplitter) merge(splits []string) []string {
	var docs, current []string
	total := 0
	for _, piece := range splits {
		n := utf8.RuneCountInString(piece)
		if total+n > s.chunkSize && len(current) > 0 {
			docs = append(docs, strings.Join(current, ""))
			for len(current) > 0 && total-utf8.RuneCountInString(current[0]) >= s.overlap {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
			// chunkSize wins over overlap
			for len(current) > 0 && total+n > s.chunkSize {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if len(current) > 0 {
		docs = append(docs, strings.Join(current, ""))
	}
	return docs
}

func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
