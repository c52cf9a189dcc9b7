package model

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts and truncates text by token count. One shared
// encoding is used by the chunker, the context budgeter and the history
// summarizer so their budgets compose.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

func NewTokenizer() (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding: %w", err)
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate returns a prefix of text holding at most maxTokens tokens.
// The kept prefix is decoded from the same tokens, so it round-trips.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if text == "" || maxTokens <= 0 {
		return ""
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.enc.Decode(tokens[:maxTokens])
}
