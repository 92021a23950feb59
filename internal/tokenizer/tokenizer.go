// Package tokenizer counts prompt tokens with a BPE encoding, falling back to
// whitespace word counts when the encoding cannot be loaded.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"askdocs/internal/logging"
)

const defaultModel = "gpt-3.5-turbo"

type Counter struct {
	once sync.Once
	load func() (*tiktoken.Tiktoken, error)
	enc  *tiktoken.Tiktoken
}

func New() *Counter {
	return &Counter{load: func() (*tiktoken.Tiktoken, error) {
		return tiktoken.EncodingForModel(defaultModel)
	}}
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	c.once.Do(func() {
		enc, err := c.load()
		if err != nil {
			logging.Default().Warn("token encoding unavailable, counting words", "error", err)
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return len(strings.Fields(text))
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Fit returns the longest prefix of parts whose joined token count stays
// within budget. The first part is always kept. budget <= 0 disables the limit.
func (c *Counter) Fit(parts []string, sep string, budget int) []string {
	if budget <= 0 || len(parts) == 0 {
		return parts
	}
	sepTokens := c.Count(sep)
	total := c.Count(parts[0])
	n := 1
	for ; n < len(parts); n++ {
		next := total + sepTokens + c.Count(parts[n])
		if next > budget {
			break
		}
		total = next
	}
	return parts[:n]
}
