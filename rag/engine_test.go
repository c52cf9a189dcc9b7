package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"arx/types"
)

type fakeIndex struct {
	entries     []types.ScoredChunk
	searchErr   error
	addErr      error
	docs        map[string]struct{}
	addCalls    int
	searchCalls int
	resets      int
	reloads     int
}

func newFakeIndex(entries ...types.ScoredChunk) *fakeIndex {
	return &fakeIndex{entries: entries, docs: make(map[string]struct{})}
}

func (f *fakeIndex) Add(ctx context.Context, chunks []types.Chunk) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.addCalls++
	for _, c := range chunks {
		f.docs[c.Meta.DocumentID] = struct{}{}
		f.entries = append(f.entries, types.ScoredChunk{Chunk: c})
	}
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, query string, k int) ([]types.ScoredChunk, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if k < len(f.entries) {
		return f.entries[:k], nil
	}
	return f.entries, nil
}

func (f *fakeIndex) Reset(ctx context.Context) error {
	f.resets++
	f.entries = nil
	f.docs = make(map[string]struct{})
	return nil
}

func (f *fakeIndex) Reload(ctx context.Context) error {
	f.reloads++
	return nil
}

func (f *fakeIndex) DocumentIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{}, len(f.docs))
	for id := range f.docs {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (f *fakeIndex) Count(ctx context.Context) (int, error) {
	return len(f.entries), nil
}

type fakeExtractor struct {
	failing map[string]bool
}

func (f fakeExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if f.failing[filename] {
		return "", fmt.Errorf("cannot extract %s", filename)
	}
	return string(data), nil
}

// recordingGenerator answers every prompt with the same output and
// keeps the prompts it saw.
type recordingGenerator struct {
	output  string
	err     error
	prompts []string
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.output, nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Retry = RetryPolicy{Attempts: 2, Backoff: 0}
	opts.Summarize = false
	return opts
}

func newTestEngine(idx *fakeIndex, gen *recordingGenerator, extractor Extractor) *Engine {
	if extractor == nil {
		extractor = fakeExtractor{}
	}
	return NewEngine(idx, gen, &stubScorer{}, extractor, wordCounter{}, testOptions())
}

func TestAskEmptyIndex(t *testing.T) {
	gen := &recordingGenerator{output: "never"}
	engine := newTestEngine(newFakeIndex(), gen, nil)

	out := engine.Ask(context.Background(), AskInput{Query: "anything", UseRAG: true})
	if out.Status != AnswerNoDocuments {
		t.Fatalf("expected AnswerNoDocuments, got %v", out.Status)
	}
	if out.Answer != NoDocumentsAnswer {
		t.Errorf("unexpected answer: %q", out.Answer)
	}
	if len(gen.prompts) != 0 {
		t.Error("no generation call should happen without documents")
	}
}

func TestAskRetrievalError(t *testing.T) {
	idx := newFakeIndex()
	idx.searchErr = errors.New("backend down")
	gen := &recordingGenerator{output: "never"}
	engine := newTestEngine(idx, gen, nil)

	out := engine.Ask(context.Background(), AskInput{Query: "anything", UseRAG: true})
	if out.Status != AnswerRetrievalError {
		t.Fatalf("expected AnswerRetrievalError, got %v", out.Status)
	}
	if !strings.Contains(out.Answer, "Document search failed") {
		t.Errorf("unexpected answer: %q", out.Answer)
	}
	if len(gen.prompts) != 0 {
		t.Error("no generation call should happen after a failed search")
	}
}

func TestAskWithEvidence(t *testing.T) {
	idx := newFakeIndex(
		scored("relevant passage one", "doc one"),
		scored("relevant passage two", "doc two"),
	)
	gen := &recordingGenerator{output: "the grounded answer"}
	engine := newTestEngine(idx, gen, nil)

	out := engine.Ask(context.Background(), AskInput{Query: "what is it", UseRAG: true})
	if out.Status != AnswerOK {
		t.Fatalf("expected AnswerOK, got %v (%q)", out.Status, out.Answer)
	}
	if len(out.Evidence) != 2 {
		t.Fatalf("expected 2 evidence chunks, got %d", len(out.Evidence))
	}
	if !strings.HasPrefix(out.Answer, "the grounded answer") {
		t.Errorf("answer missing model output: %q", out.Answer)
	}
	if !strings.Contains(out.Answer, "Chunks used:") {
		t.Errorf("answer missing citations: %q", out.Answer)
	}
	if !strings.Contains(out.Answer, "doc one") || !strings.Contains(out.Answer, "doc two") {
		t.Errorf("citations missing titles: %q", out.Answer)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected 1 generation call, got %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0], "relevant passage one") {
		t.Error("prompt missing the retrieved context")
	}
}

func TestAskDirectSkipsRetrieval(t *testing.T) {
	idx := newFakeIndex(scored("indexed", "doc"))
	gen := &recordingGenerator{output: "a direct answer"}
	engine := newTestEngine(idx, gen, nil)

	out := engine.Ask(context.Background(), AskInput{Query: "hello", UseRAG: false})
	if out.Status != AnswerOK || out.Answer != "a direct answer" {
		t.Fatalf("unexpected output: %v %q", out.Status, out.Answer)
	}
	if idx.searchCalls != 0 {
		t.Error("direct questions must not hit the index")
	}
	if len(out.Evidence) != 0 {
		t.Error("direct answers carry no evidence")
	}
}

func TestAskGenerationFailureKeepsEvidence(t *testing.T) {
	idx := newFakeIndex(scored("a passage", "doc"))
	gen := &recordingGenerator{err: errors.New("model down")}
	engine := newTestEngine(idx, gen, nil)

	out := engine.Ask(context.Background(), AskInput{Query: "q", UseRAG: true})
	if out.Status != AnswerGenerationFailed {
		t.Fatalf("expected AnswerGenerationFailed, got %v", out.Status)
	}
	if out.Answer != FailedAnswer {
		t.Errorf("expected the sentinel answer, got %q", out.Answer)
	}
	if len(out.Evidence) != 1 {
		t.Error("evidence must survive a generation failure")
	}
	if len(gen.prompts) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(gen.prompts))
	}
}

func TestAskAppendsSummary(t *testing.T) {
	idx := newFakeIndex(scored("a passage", "doc"))
	gen := &recordingGenerator{output: "main answer"}

	opts := testOptions()
	opts.Summarize = true
	engine := NewEngine(idx, gen, &stubScorer{}, fakeExtractor{}, wordCounter{}, opts)

	out := engine.Ask(context.Background(), AskInput{Query: "q", UseRAG: true})
	if out.Status != AnswerOK {
		t.Fatalf("expected AnswerOK, got %v", out.Status)
	}
	if !strings.Contains(out.Answer, "\n\nSummary: main answer") {
		t.Errorf("answer missing the summary block: %q", out.Answer)
	}
	if len(gen.prompts) != 2 {
		t.Errorf("expected answer + summary calls, got %d", len(gen.prompts))
	}
}

func TestAddDocumentDeduplicates(t *testing.T) {
	idx := newFakeIndex()
	engine := newTestEngine(idx, &recordingGenerator{output: "x"}, nil)
	ctx := context.Background()

	text := "First sentence here. Second sentence here."
	first, err := engine.AddDocument(ctx, text, types.ChunkMeta{Source: "a.txt", Title: "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Status != types.IngestAdded || first.Chunks == 0 {
		t.Fatalf("expected IngestAdded with chunks, got %v (%d)", first.Status, first.Chunks)
	}

	second, err := engine.AddDocument(ctx, text, types.ChunkMeta{Source: "copy.txt", Title: "copy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Status != types.IngestDuplicate {
		t.Fatalf("expected IngestDuplicate, got %v", second.Status)
	}
	if idx.addCalls != 1 {
		t.Errorf("index must be written exactly once, got %d writes", idx.addCalls)
	}
}

func TestAddDocumentEmptyText(t *testing.T) {
	engine := newTestEngine(newFakeIndex(), &recordingGenerator{output: "x"}, nil)

	result, err := engine.AddDocument(context.Background(), "   \n ", types.ChunkMeta{Source: "blank.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != types.IngestEmpty {
		t.Errorf("expected IngestEmpty, got %v", result.Status)
	}
}

func TestAddDocumentChunkMetadata(t *testing.T) {
	idx := newFakeIndex()
	engine := newTestEngine(idx, &recordingGenerator{output: "x"}, nil)

	text := strings.TrimSpace(strings.Repeat(sentenceOfWords(10, "w")+" ", 20))
	result, err := engine.AddDocument(context.Background(), text, types.ChunkMeta{Source: "big.txt", Title: "big"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Chunks != len(idx.entries) {
		t.Fatalf("reported %d chunks, index holds %d", result.Chunks, len(idx.entries))
	}
	for i, e := range idx.entries {
		if e.Meta.ChunkIndex != i {
			t.Errorf("entry %d carries chunk index %d", i, e.Meta.ChunkIndex)
		}
		if e.Meta.DocumentID == "" {
			t.Errorf("entry %d missing document id", i)
		}
		if e.Meta.ChunkLength != len(e.Text) {
			t.Errorf("entry %d length mismatch", i)
		}
	}
}

func TestAskWithUploadsAllExtractionFails(t *testing.T) {
	gen := &recordingGenerator{output: "never"}
	extractor := fakeExtractor{failing: map[string]bool{"a.bin": true, "b.bin": true}}
	engine := newTestEngine(newFakeIndex(), gen, extractor)

	uploads := []Upload{
		{Filename: "a.bin", Data: []byte{0xff}},
		{Filename: "b.bin", Data: []byte{0xfe}},
	}
	out, results := engine.AskWithUploads(context.Background(), AskInput{Query: "q", UseRAG: true}, uploads)

	if out.Status != AnswerNoContent {
		t.Fatalf("expected AnswerNoContent, got %v", out.Status)
	}
	if out.Answer != NoUsableContentAnswer {
		t.Errorf("unexpected answer: %q", out.Answer)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Status != types.IngestExtractFailed {
			t.Errorf("file %s: expected IngestExtractFailed, got %v", r.Source, r.Status)
		}
	}
	if len(gen.prompts) != 0 {
		t.Error("no generation call should happen when nothing was extracted")
	}
}

func TestAskWithUploadsIsolatesFailures(t *testing.T) {
	gen := &recordingGenerator{output: "answer from files"}
	extractor := fakeExtractor{failing: map[string]bool{"broken.bin": true}}
	engine := newTestEngine(newFakeIndex(), gen, extractor)

	uploads := []Upload{
		{Filename: "broken.bin", Data: []byte{0xff}},
		{Filename: "notes.txt", Data: []byte("Working file content here.")},
	}
	out, results := engine.AskWithUploads(context.Background(), AskInput{Query: "summarize", UseRAG: false}, uploads)

	if out.Status != AnswerOK {
		t.Fatalf("expected AnswerOK, got %v (%q)", out.Status, out.Answer)
	}
	if results[0].Status != types.IngestExtractFailed {
		t.Errorf("broken file should fail extraction, got %v", results[0].Status)
	}
	if results[1].Status != types.IngestAdded {
		t.Errorf("good file should be ingested, got %v", results[1].Status)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected 1 generation call, got %d", len(gen.prompts))
	}
	prompt := gen.prompts[0]
	if !strings.Contains(prompt, "### File: notes.txt ###") {
		t.Errorf("prompt missing the file marker: %q", prompt)
	}
	if !strings.Contains(prompt, "Working file content here.") {
		t.Errorf("prompt missing the file content: %q", prompt)
	}
}

func TestAskWithUploadsDuplicateStillAnswers(t *testing.T) {
	gen := &recordingGenerator{output: "answer"}
	idx := newFakeIndex()
	engine := newTestEngine(idx, gen, nil)
	ctx := context.Background()

	data := []byte("Same content both times.")
	uploads := []Upload{{Filename: "one.txt", Data: data}}

	if out, _ := engine.AskWithUploads(ctx, AskInput{UseRAG: false}, uploads); out.Status != AnswerOK {
		t.Fatalf("first upload failed: %v", out.Status)
	}
	out, results := engine.AskWithUploads(ctx, AskInput{UseRAG: false}, uploads)
	if out.Status != AnswerOK {
		t.Fatalf("duplicate upload must still answer, got %v", out.Status)
	}
	if results[0].Status != types.IngestDuplicate {
		t.Errorf("expected IngestDuplicate, got %v", results[0].Status)
	}
	if idx.addCalls != 1 {
		t.Errorf("duplicate content must not be re-indexed, got %d writes", idx.addCalls)
	}
}

func TestResetAndReload(t *testing.T) {
	idx := newFakeIndex(scored("entry", "doc"))
	engine := newTestEngine(idx, &recordingGenerator{output: "x"}, nil)
	ctx := context.Background()

	if err := engine.ResetIndex(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if count, _ := engine.IndexCount(ctx); count != 0 {
		t.Errorf("expected empty index after reset, got %d", count)
	}
	if err := engine.ReloadIndex(ctx); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if idx.resets != 1 || idx.reloads != 1 {
		t.Errorf("expected one reset and one reload, got %d/%d", idx.resets, idx.reloads)
	}
}
