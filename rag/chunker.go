// Package rag implements the retrieval-augmented answering core:
// chunking, deduplicated ingestion, retrieval with optional reranking,
// token-budgeted context and history assembly, prompt composition and
// resilient answer generation.
package rag

import (
	"strings"

	"github.com/clipperhouse/uax29/v2/sentences"
)

// TokenCounter is the token accounting the core relies on. A single
// encoding must back every implementation passed in, so the chunker,
// budgeter and summarizer agree on sizes. model.Tokenizer satisfies it.
type TokenCounter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// splitSentences segments text along Unicode sentence boundaries.
func splitSentences(text string) []string {
	var out []string
	segs := sentences.FromString(text)
	for segs.Next() {
		s := strings.TrimSpace(segs.Value())
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ChunkText splits raw text into overlapping token-bounded chunks along
// sentence boundaries. Sentences accumulate until the next one would
// push the chunk over maxTokens; the chunk closes and the following one
// is seeded with trailing sentences worth at least overlapTokens.
// A single sentence longer than maxTokens still forms its own chunk;
// sentences are never split. Empty input yields no chunks.
func ChunkText(tok TokenCounter, text string, maxTokens, overlapTokens int) []string {
	sents := splitSentences(text)
	if len(sents) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, sentence := range sents {
		sentTokens := tok.Count(sentence)

		if currentLen+sentTokens > maxTokens && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			var overlap []string
			tokenSum := 0
			for i := len(current) - 1; i >= 0; i-- {
				tokenSum += tok.Count(current[i])
				overlap = append([]string{current[i]}, overlap...)
				if tokenSum >= overlapTokens {
					break
				}
			}
			current = overlap
			currentLen = 0
			for _, s := range current {
				currentLen += tok.Count(s)
			}
		}

		current = append(current, sentence)
		currentLen += sentTokens
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
