package rag

import (
	"fmt"
	"strings"

	"arx/types"
)

// BuildContext assembles the retrieved chunks into one context block,
// greedily accepting chunks in rank order and stopping at the first
// chunk that would exceed maxContextTokens. Stopping (rather than
// skipping ahead) preserves rank priority and keeps the context
// unfragmented. Each accepted chunk is rendered under its source title.
// The returned slice is the evidence set used for citations.
func BuildContext(tok TokenCounter, chunks []types.ScoredChunk, maxContextTokens int) (string, []types.Chunk) {
	var b strings.Builder
	var accepted []types.Chunk
	total := 0

	for _, c := range chunks {
		n := tok.Count(c.Text)
		if total+n > maxContextTokens {
			break
		}
		title := c.Meta.Title
		if title == "" {
			title = "Untitled document"
		}
		fmt.Fprintf(&b, "[Source: %s]\n%s\n\n", title, c.Text)
		total += n
		accepted = append(accepted, c.Chunk)
	}
	return b.String(), accepted
}

// SummarizeHistory renders the last nbMessages turns as a compact
// transcript, two lines per turn, accepting turns chronologically under
// the same greedy stop rule as the context budget. A final hard
// truncation guarantees the result never exceeds maxHistoryTokens.
func SummarizeHistory(tok TokenCounter, turns []types.ConversationTurn, nbMessages, maxHistoryTokens int) string {
	if nbMessages > 0 && len(turns) > nbMessages {
		turns = turns[len(turns)-nbMessages:]
	}

	var b strings.Builder
	total := 0
	for _, turn := range turns {
		line := fmt.Sprintf("User: %s\nAssistant: %s\n", turn.User, turn.Assistant)
		n := tok.Count(line)
		if total+n > maxHistoryTokens {
			break
		}
		b.WriteString(line)
		total += n
	}
	return tok.Truncate(b.String(), maxHistoryTokens)
}
