package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"arx/model"
	"arx/types"
)

// FailedAnswer is the terminal sentinel returned once generation
// retries are exhausted. Callers must not retry it further.
const FailedAnswer = "Unable to generate an answer."

// NoDocumentsAnswer is returned when retrieval finds nothing to ground
// an answer on. Distinct from a search backend failure.
const NoDocumentsAnswer = "The document index is empty or holds nothing relevant to this question."

// NoUsableContentAnswer is returned when every uploaded file fails
// extraction.
const NoUsableContentAnswer = "No usable content found in the uploaded files."

// RetryPolicy bounds the blocking retry loop around generation calls.
// The operation is assumed idempotent; the caller stays blocked until
// success or exhaustion because no cancellation signal exists upstream
// beyond ctx.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 2 * time.Second}
}

// generateWithRetry calls the generator up to policy.Attempts times
// with a fixed backoff between failures. It reports whether a real
// answer was produced; on exhaustion the sentinel comes back instead of
// an error.
func generateWithRetry(ctx context.Context, gen model.Generator, prompt string, policy RetryPolicy, logger *slog.Logger) (string, bool) {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		answer, err := gen.Generate(ctx, prompt)
		if err == nil && strings.TrimSpace(answer) != "" {
			return strings.TrimSpace(answer), true
		}
		logger.Warn("generation attempt failed", "attempt", attempt, "error", err)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return FailedAnswer, false
		case <-time.After(policy.Backoff):
		}
	}
	return FailedAnswer, false
}

// previewText returns at most maxChars characters of text, with an
// ellipsis when cut.
func previewText(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "..."
}

// formatCitations renders the human-readable listing of the evidence
// chunks: title, chunk index and a short preview each. Derived strictly
// from the evidence set decided by the context budgeter.
func formatCitations(evidence []types.Chunk, previewChars int) string {
	if len(evidence) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nChunks used:\n")
	for _, chunk := range evidence {
		title := chunk.Meta.Title
		if title == "" {
			title = "Untitled document"
		}
		fmt.Fprintf(&b, "- %s | Chunk #%d:\n%s\n\n", title, chunk.Meta.ChunkIndex, previewText(chunk.Text, previewChars))
	}
	return b.String()
}
