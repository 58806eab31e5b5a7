package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"smart-query/internal/domain"
)

const defaultEncoding = "cl100k_base"

// Per-message protocol overhead in tokens, matching the OpenAI chat format
// accounting (role framing plus message separators).
const tokensPerMessage = 4

// TiktokenCounter implements domain.TokenCounter on a tiktoken BPE encoding.
// Counts are estimates: exact tokenization differs per provider, but the
// prompt guard only needs a consistent upper-bound signal.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding; empty name selects cl100k_base.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// CountText implements domain.TokenCounter.
func (c *TiktokenCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessages implements domain.TokenCounter.
func (c *TiktokenCounter) CountMessages(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += tokensPerMessage
		total += c.CountText(m.Content)
		total += c.CountText(m.Name)
		for _, tc := range m.ToolCalls {
			total += c.CountText(tc.Name)
			total += c.CountText(string(tc.Arguments))
		}
	}
	return total
}

var _ domain.TokenCounter = (*TiktokenCounter)(nil)
