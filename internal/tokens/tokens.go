// Package tokens counts model tokens for conversation messages. Counts are
// computed once at insertion time and paired with their items; they are
// never recomputed on read.
package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/banterworks/banter/internal/providers"
)

// Per-message framing overhead (role and separators), following the ChatML
// accounting published for the OpenAI chat models.
const messageOverhead = 4

// Counter counts tokens for text and chat messages. Counting is pure:
// identical input always yields the same count.
type Counter interface {
	CountText(s string) int
	CountMessage(m providers.Message) int
	CountMessages(msgs []providers.Message) int
}

// Codec is a Counter backed by the tiktoken encoding of one target model.
type Codec struct {
	enc *tiktoken.Tiktoken
}

// ForModel resolves the encoding for the given model. An unknown model is a
// configuration error and fatal at startup; there is no per-call fallback.
func ForModel(model string) (*Codec, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("resolve token encoding for model %q: %w", model, err)
	}
	return &Codec{enc: enc}, nil
}

func (c *Codec) CountText(s string) int {
	if s == "" {
		return 0
	}
	return len(c.enc.Encode(s, nil, nil))
}

func (c *Codec) CountMessage(m providers.Message) int {
	n := messageOverhead
	n += c.CountText(m.Role)
	n += c.CountText(m.Name)
	n += c.CountText(m.Content)
	n += c.CountText(m.ToolCallID)
	for _, tc := range m.ToolCalls {
		n += c.CountText(tc.Name)
		n += c.CountText(string(tc.Arguments))
	}
	return n
}

func (c *Codec) CountMessages(msgs []providers.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.CountMessage(m)
	}
	return total
}
