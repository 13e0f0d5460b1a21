package ai

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "o200k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoder() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(defaultEncoding)
	})
	return enc, encErr
}

// CountTokens returns the number of o200k tokens in text. When the encoding
// cannot be loaded it falls back to a four characters per token estimate.
func CountTokens(text string) int {
	e, err := encoder()
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(e.Encode(text, nil, nil))
}

// TruncateToTokens cuts text to at most maxTokens tokens. A non-positive
// limit returns text unchanged.
func TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return text
	}
	e, err := encoder()
	if err != nil {
		limit := maxTokens * 4
		if len(text) <= limit {
			return text
		}
		return strings.ToValidUTF8(text[:limit], "")
	}
	tokens := e.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return e.Decode(tokens[:maxTokens])
}
