package service

import (
	"strings"

	"askdocs/internal/domain"
)

// Rule answers a narrow class of questions directly from the stored chunks,
// bypassing embedding and generation. Resolve returns ok=false when no chunk
// qualifies; the caller then answers with the not-available sentinel.
type Rule struct {
	Name    string
	Match   func(question string) bool
	Resolve func(chunks []domain.Chunk) (answer string, ok bool)
}

// NormalizeQuestion trims, lower-cases and strips trailing punctuation.
func NormalizeQuestion(q string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(q)), "?!. ")
}

// PhraseRule matches questions equal to phrase after normalisation and answers
// with prefix plus the first informative line of the first chunk containing every marker.
func PhraseRule(phrase string, markers []string, prefix string) Rule {
	want := NormalizeQuestion(phrase)
	return Rule{
		Name:  want,
		Match: func(q string) bool { return NormalizeQuestion(q) == want },
		Resolve: func(chunks []domain.Chunk) (string, bool) {
			for _, ch := range chunks {
				if !containsAll(ch.Text, markers) {
					continue
				}
				if line := firstInformativeLine(ch.Text, markers); line != "" {
					return prefix + line, true
				}
			}
			return "", false
		},
	}
}

func containsAll(text string, markers []string) bool {
	for _, m := range markers {
		if !strings.Contains(text, m) {
			return false
		}
	}
	return true
}

// firstInformativeLine skips blank lines and lines that are exactly a marker,
// such as the section header that opened the chunk.
func firstInformativeLine(text string, markers []string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isMarker(line, markers) {
			continue
		}
		return line
	}
	return ""
}

func isMarker(line string, markers []string) bool {
	for _, m := range markers {
		if strings.EqualFold(line, m) {
			return true
		}
	}
	return false
}
