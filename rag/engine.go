package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"arx/index"
	"arx/model"
	"arx/types"
)

// Extractor is the text-extraction boundary. Implementations return an
// error for anything they cannot turn into text; the orchestrator
// isolates the failure to that one file.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// AnswerStatus tags the outcome of an Ask so callers branch on data,
// not on error handling. A successful-but-empty retrieval is
// distinguishable from a search backend failure.
type AnswerStatus int

const (
	AnswerOK AnswerStatus = iota
	AnswerNoDocuments
	AnswerRetrievalError
	AnswerGenerationFailed
	AnswerNoContent
)

type Options struct {
	RetrieveK        int
	RerankTopK       int
	MaxChunkTokens   int
	OverlapTokens    int
	MaxContextTokens int
	MaxHistoryTokens int
	NbMessages       int
	PreviewChars     int
	Retry            RetryPolicy
	Summarize        bool
}

func DefaultOptions() Options {
	return Options{
		RetrieveK:        6,
		RerankTopK:       4,
		MaxChunkTokens:   500,
		OverlapTokens:    100,
		MaxContextTokens: 1500,
		MaxHistoryTokens: 1000,
		NbMessages:       5,
		PreviewChars:     300,
		Retry:            DefaultRetryPolicy(),
		Summarize:        true,
	}
}

// Engine owns the shared index and runs the whole pipeline. One coarse
// mutex serializes every index read and write; that trades throughput
// for crash-consistency, which is acceptable because model calls, not
// lock-held work, dominate latency. Generation and rerank calls run
// outside the lock.
type Engine struct {
	mu        sync.Mutex
	index     index.Index
	generator model.Generator
	scorer    model.Scorer
	extractor Extractor
	tokens    TokenCounter
	opts      Options
	logger    *slog.Logger
}

func NewEngine(idx index.Index, gen model.Generator, scorer model.Scorer, extractor Extractor, tokens TokenCounter, opts Options) *Engine {
	return &Engine{
		index:     idx,
		generator: gen,
		scorer:    scorer,
		extractor: extractor,
		tokens:    tokens,
		opts:      opts,
		logger:    slog.Default(),
	}
}

type AskInput struct {
	Query        string
	History      []types.ConversationTurn
	NbMessages   int
	UseRAG       bool
	UseReranking bool
}

type AskOutput struct {
	Status   AnswerStatus
	Answer   string
	Evidence []types.Chunk
}

// Ask answers a question, grounding it on retrieved chunks when RAG is
// enabled. Expected failures come back as statuses with a user-visible
// answer, never as errors.
func (e *Engine) Ask(ctx context.Context, in AskInput) AskOutput {
	nb := in.NbMessages
	if nb <= 0 {
		nb = e.opts.NbMessages
	}
	historyText := SummarizeHistory(e.tokens, in.History, nb, e.opts.MaxHistoryTokens)

	if !in.UseRAG {
		prompt := BuildDirectPrompt(in.Query, historyText)
		answer, ok := generateWithRetry(ctx, e.generator, prompt, e.opts.Retry, e.logger)
		if !ok {
			return AskOutput{Status: AnswerGenerationFailed, Answer: answer}
		}
		return AskOutput{Status: AnswerOK, Answer: answer}
	}

	e.mu.Lock()
	candidates, err := e.index.Search(ctx, in.Query, e.opts.RetrieveK)
	e.mu.Unlock()
	if err != nil {
		e.logger.Error("document search failed", "error", err)
		return AskOutput{Status: AnswerRetrievalError, Answer: fmt.Sprintf("Document search failed: %v", err)}
	}
	if len(candidates) == 0 {
		return AskOutput{Status: AnswerNoDocuments, Answer: NoDocumentsAnswer}
	}

	ranked, err := Rerank(ctx, e.scorer, in.Query, candidates, e.opts.RerankTopK, in.UseReranking)
	if err != nil {
		e.logger.Error("reranking failed", "error", err)
		return AskOutput{Status: AnswerRetrievalError, Answer: fmt.Sprintf("Document search failed: %v", err)}
	}

	contextText, evidence := BuildContext(e.tokens, ranked, e.opts.MaxContextTokens)
	prompt := BuildPrompt(in.Query, contextText, historyText)

	answer, ok := generateWithRetry(ctx, e.generator, prompt, e.opts.Retry, e.logger)
	if !ok {
		return AskOutput{Status: AnswerGenerationFailed, Answer: answer, Evidence: evidence}
	}

	final := answer
	if e.opts.Summarize {
		if summary, ok := e.summarizeAnswer(ctx, answer); ok {
			final += "\n\nSummary: " + summary
		}
	}
	final += formatCitations(evidence, e.opts.PreviewChars)

	return AskOutput{Status: AnswerOK, Answer: final, Evidence: evidence}
}

// summarizeAnswer makes one best-effort generation call for a short
// synthesis of the answer. Failure only drops the summary.
func (e *Engine) summarizeAnswer(ctx context.Context, answer string) (string, bool) {
	summary, err := e.generator.Generate(ctx, BuildSummaryPrompt(answer))
	if err != nil || strings.TrimSpace(summary) == "" {
		e.logger.Warn("answer summary skipped", "error", err)
		return "", false
	}
	return strings.TrimSpace(summary), true
}

// AddDocument chunks text and appends it to the index unless its
// document id is already present. Re-ingesting identical content is a
// no-op: at most one ingestion per distinct content.
func (e *Engine) AddDocument(ctx context.Context, text string, meta types.ChunkMeta) (types.IngestResult, error) {
	result := types.IngestResult{Source: meta.Source}

	if strings.TrimSpace(text) == "" {
		result.Status = types.IngestEmpty
		return result, nil
	}
	if meta.DocumentID == "" {
		meta.DocumentID = ContentID([]byte(text))
	}

	// The dedup check and the append must be atomic with respect to
	// other writers, so the whole block holds the engine lock.
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.index.DocumentIDs(ctx)
	if err != nil {
		result.Status = types.IngestFailed
		return result, fmt.Errorf("failed to list indexed documents: %w", err)
	}
	if _, dup := ids[meta.DocumentID]; dup {
		e.logger.Info("document already indexed", "document_id", meta.DocumentID, "source", meta.Source)
		result.Status = types.IngestDuplicate
		return result, nil
	}

	pieces := ChunkText(e.tokens, text, e.opts.MaxChunkTokens, e.opts.OverlapTokens)
	chunks := make([]types.Chunk, len(pieces))
	for i, piece := range pieces {
		m := meta
		m.ChunkIndex = i
		m.ChunkLength = len(piece)
		chunks[i] = types.Chunk{Text: piece, Meta: m}
	}

	if err := e.index.Add(ctx, chunks); err != nil {
		result.Status = types.IngestFailed
		return result, fmt.Errorf("failed to index document %s: %w", meta.DocumentID, err)
	}

	e.logger.Info("document indexed", "document_id", meta.DocumentID, "source", meta.Source, "chunks", len(chunks))
	result.Status = types.IngestAdded
	result.Chunks = len(chunks)
	return result, nil
}

type Upload struct {
	Filename string
	Data     []byte
}

// AskWithUploads ingests the uploaded files and answers in one pass.
// Extraction failures are isolated per file; the successfully extracted
// texts are fused, each tagged with its source, into one combined
// prompt body. Without a question the combined text itself is the
// query. When every file fails extraction no generation happens.
func (e *Engine) AskWithUploads(ctx context.Context, in AskInput, uploads []Upload) (AskOutput, []types.IngestResult) {
	var combined strings.Builder
	results := make([]types.IngestResult, 0, len(uploads))

	for _, up := range uploads {
		text, err := e.extractor.Extract(ctx, up.Filename, up.Data)
		if err != nil {
			e.logger.Warn("extraction failed, skipping file", "file", up.Filename, "error", err)
			results = append(results, types.IngestResult{Source: up.Filename, Status: types.IngestExtractFailed})
			continue
		}

		meta := types.ChunkMeta{
			DocumentID: ContentID(up.Data),
			Source:     up.Filename,
			Title:      TitleFromFilename(up.Filename),
		}
		result, err := e.AddDocument(ctx, text, meta)
		if err != nil {
			e.logger.Error("ingestion failed", "file", up.Filename, "error", err)
		}
		results = append(results, result)

		fmt.Fprintf(&combined, "\n\n### File: %s ###\n%s", up.Filename, strings.TrimSpace(text))
	}

	fusedText := strings.TrimSpace(combined.String())
	if fusedText == "" {
		return AskOutput{Status: AnswerNoContent, Answer: NoUsableContentAnswer}, results
	}

	fused := in
	if question := strings.TrimSpace(in.Query); question != "" {
		fused.Query = question + "\n\nCombined file content:\n" + fusedText
	} else {
		fused.Query = fusedText
	}
	return e.Ask(ctx, fused), results
}

// ResetIndex discards every indexed chunk. The only way to shrink the
// index; there is no per-document delete.
func (e *Engine) ResetIndex(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Reset(ctx)
}

// ReloadIndex re-reads the persisted index state.
func (e *Engine) ReloadIndex(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Reload(ctx)
}

// IndexCount reports how many chunks are currently indexed.
func (e *Engine) IndexCount(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Count(ctx)
}
