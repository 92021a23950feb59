package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var pageNumber = regexp.MustCompile(`(\d+)\D*$`)

// PDFText extracts page content streams with pdfcpu and decodes their text
// showing operators. Pages are separated by newlines.
func PDFText(data []byte) (string, error) {
	dir, err := os.MkdirTemp("", "askdocs-pdf-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	conf := api.LoadConfiguration()
	if err := api.ExtractContent(bytes.NewReader(data), dir, "doc", nil, conf); err != nil {
		return "", fmt.Errorf("pdf: extract content: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	type page struct {
		nr   int
		path string
	}
	var pages []page
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		nr := 0
		if m := pageNumber.FindStringSubmatch(e.Name()); m != nil {
			nr, _ = strconv.Atoi(m[1])
		}
		pages = append(pages, page{nr, filepath.Join(dir, e.Name())})
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].nr < pages[j].nr })

	var out []string
	for _, p := range pages {
		raw, err := os.ReadFile(p.path)
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(contentText(raw)); text != "" {
			out = append(out, text)
		}
	}
	return strings.Join(out, "\n"), nil
}

// contentText decodes the strings shown by Tj, TJ, ' and " in a content
// stream. Text positioning operators start a new line; large negative
// kerning inside TJ arrays becomes a space.
func contentText(stream []byte) string {
	var out, line strings.Builder
	var pending strings.Builder
	inArray := false

	flush := func() {
		if s := strings.TrimRight(line.String(), " "); s != "" {
			out.WriteString(s)
			out.WriteByte('\n')
		}
		line.Reset()
	}

	for i := 0; i < len(stream); {
		c := stream[i]
		switch {
		case isSpace(c):
			i++
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case c == '(':
			s, n := readLiteral(stream[i:])
			pending.WriteString(s)
			i += n
		case c == '<' && i+1 < len(stream) && stream[i+1] == '<':
			i += 2
		case c == '<':
			end := bytes.IndexByte(stream[i:], '>')
			if end < 0 {
				i = len(stream)
				break
			}
			pending.WriteString(decodeHex(stream[i+1 : i+end]))
			i += end + 1
		case c == '>':
			i++
		case c == '[':
			inArray = true
			i++
		case c == ']':
			inArray = false
			i++
		case c == '/':
			i++
			for i < len(stream) && !isSpace(stream[i]) && !isDelim(stream[i]) {
				i++
			}
		default:
			start := i
			for i < len(stream) && !isSpace(stream[i]) && !isDelim(stream[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			tok := string(stream[start:i])
			if v, err := strconv.ParseFloat(tok, 64); err == nil {
				if inArray && v < -200 {
					pending.WriteByte(' ')
				}
				continue
			}
			switch tok {
			case "Tj", "TJ":
				line.WriteString(pending.String())
			case "'", `"`:
				flush()
				line.WriteString(pending.String())
			case "Td", "TD", "T*", "ET":
				flush()
			}
			pending.Reset()
		}
	}
	flush()
	return out.String()
}

func readLiteral(b []byte) (string, int) {
	var s strings.Builder
	depth := 0
	i := 0
	for i < len(b) {
		c := b[i]
		switch c {
		case '(':
			if depth > 0 {
				s.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			i++
			if depth == 0 {
				return s.String(), i
			}
			s.WriteByte(c)
		case '\\':
			i++
			if i >= len(b) {
				return s.String(), i
			}
			e := b[i]
			switch e {
			case 'n':
				s.WriteByte('\n')
			case 'r':
				s.WriteByte('\r')
			case 't':
				s.WriteByte('\t')
			case 'b', 'f':
			case '\n':
			case '0', '1', '2', '3', '4', '5', '6', '7':
				j := i
				for j < len(b) && j < i+3 && b[j] >= '0' && b[j] <= '7' {
					j++
				}
				v, _ := strconv.ParseUint(string(b[i:j]), 8, 8)
				s.WriteByte(byte(v))
				i = j
				continue
			default:
				s.WriteByte(e)
			}
			i++
		default:
			s.WriteByte(c)
			i++
		}
	}
	return s.String(), i
}

func decodeHex(h []byte) string {
	clean := make([]byte, 0, len(h))
	for _, c := range h {
		if !isSpace(c) {
			clean = append(clean, c)
		}
	}
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	out := make([]byte, 0, len(clean)/2)
	for i := 0; i+1 < len(clean); i += 2 {
		v, err := strconv.ParseUint(string(clean[i:i+2]), 16, 8)
		if err != nil {
			return ""
		}
		if v != 0 {
			out = append(out, byte(v))
		}
	}
	return string(out)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
