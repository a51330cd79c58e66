// Package tokens provides token counting for exchange usage records.
//
// Coze workflow streams carry no usage block, so counts are derived from
// the text itself: tiktoken's cl100k_base encoding when the codec is
// available, a character-based estimate otherwise.
package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// defaultCharsPerToken is the average characters per token used by the
// fallback estimate.
const defaultCharsPerToken = 4.0

// Counter counts tokens in plain text. The tiktoken codec is loaded
// lazily on first use and shared across calls; if loading fails, every
// call falls back to estimation.
type Counter struct {
	once  sync.Once
	codec tokenizer.Codec

	// CharsPerToken overrides the fallback ratio (default: 4).
	CharsPerToken float64
}

// NewCounter creates a new Counter with default settings.
func NewCounter() *Counter {
	return &Counter{
		CharsPerToken: defaultCharsPerToken,
	}
}

// Count returns the number of tokens in text. Empty text counts as zero;
// non-empty text always counts as at least one token.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}

	c.once.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			c.codec = codec
		}
	})

	if c.codec != nil {
		if ids, _, err := c.codec.Encode(text); err == nil {
			return len(ids)
		}
	}

	return c.estimate(text)
}

// estimate approximates the token count from the character count.
func (c *Counter) estimate(text string) int {
	charsPerToken := c.CharsPerToken
	if charsPerToken <= 0 {
		charsPerToken = defaultCharsPerToken
	}

	count := int(float64(len(text)) / charsPerToken)
	if count < 1 {
		count = 1
	}
	return count
}
