package prompt

import (
	"sync"

	"github.com/weaviate/tiktoken-go"

	"github.com/Shadansa24/Inventory-app/internal/llm"
	"github.com/Shadansa24/Inventory-app/internal/logger"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func loadEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.LogWarn("Token encoding unavailable, using length estimate: %v", err)
			return
		}
		encoding = enc
	})
	return encoding
}

// CountTokens estimates how many model tokens text uses. Without the
// cl100k_base encoding it falls back to one token per four bytes.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if enc := loadEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// CountMessageTokens sums CountTokens over the message contents plus the
// per-message framing overhead chat models add.
func CountMessageTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += CountTokens(m.Content) + 4
	}
	return total
}
