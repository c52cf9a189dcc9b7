package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"arx/model"
	"arx/types"
)

// FileIndex keeps all entries in memory and persists them as one JSON
// file, searched by brute-force cosine similarity. Suits corpora that
// fit in memory; the Postgres backend covers the rest.
type FileIndex struct {
	path     string
	embedder model.Embedder
	logger   *slog.Logger

	entries []Entry
	docIDs  map[string]struct{}
}

type filePayload struct {
	Entries []Entry `json:"entries"`
}

// LoadFile opens the index at path. Missing or corrupt storage is not
// an error: the index recovers by persisting a fresh empty state.
func LoadFile(path string, embedder model.Embedder) (*FileIndex, error) {
	idx := &FileIndex{
		path:     path,
		embedder: embedder,
		logger:   slog.Default(),
		docIDs:   make(map[string]struct{}),
	}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (f *FileIndex) load() error {
	data, err := os.ReadFile(f.path)
	if err == nil {
		var payload filePayload
		if jsonErr := json.Unmarshal(data, &payload); jsonErr == nil {
			f.entries = payload.Entries
			f.docIDs = make(map[string]struct{}, len(payload.Entries))
			for _, e := range payload.Entries {
				f.docIDs[e.Chunk.Meta.DocumentID] = struct{}{}
			}
			f.logger.Info("vector index loaded", "path", f.path, "entries", len(f.entries))
			return nil
		}
		f.logger.Warn("vector index file is corrupt, starting empty", "path", f.path)
	} else if !os.IsNotExist(err) {
		f.logger.Warn("vector index file unreadable, starting empty", "path", f.path, "error", err)
	}

	f.entries = nil
	f.docIDs = make(map[string]struct{})
	if err := f.save(); err != nil {
		return fmt.Errorf("failed to bootstrap empty index: %w", err)
	}
	f.logger.Info("empty vector index created", "path", f.path)
	return nil
}

// save writes the whole index through a temp file and rename so a crash
// never leaves a half-written index behind.
func (f *FileIndex) save() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	data, err := json.Marshal(filePayload{Entries: f.entries})
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}
	return nil
}

func (f *FileIndex) Add(ctx context.Context, chunks []types.Chunk) error {
	// Embed into a staging slice first. The batch commits as a whole:
	// an embed or save failure must leave the index untouched so the
	// document can be retried without tripping the duplicate check.
	staged := make([]Entry, 0, len(chunks))
	for _, chunk := range chunks {
		embedding, err := f.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %d of %s: %w", chunk.Meta.ChunkIndex, chunk.Meta.DocumentID, err)
		}
		staged = append(staged, Entry{Chunk: chunk, Embedding: embedding})
	}

	prevLen := len(f.entries)
	f.entries = append(f.entries, staged...)
	if err := f.save(); err != nil {
		f.entries = f.entries[:prevLen]
		return err
	}
	for _, entry := range staged {
		f.docIDs[entry.Chunk.Meta.DocumentID] = struct{}{}
	}
	return nil
}

func (f *FileIndex) Search(ctx context.Context, query string, k int) ([]types.ScoredChunk, error) {
	if len(f.entries) == 0 || k <= 0 {
		return nil, nil
	}
	queryVec, err := f.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results := make([]types.ScoredChunk, len(f.entries))
	for i, e := range f.entries {
		results[i] = types.ScoredChunk{Chunk: e.Chunk, Score: cosineSimilarity(queryVec, e.Embedding)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (f *FileIndex) Reset(ctx context.Context) error {
	f.entries = nil
	f.docIDs = make(map[string]struct{})
	if err := f.save(); err != nil {
		return err
	}
	f.logger.Info("vector index reset", "path", f.path)
	return nil
}

func (f *FileIndex) Reload(ctx context.Context) error {
	return f.load()
}

func (f *FileIndex) DocumentIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{}, len(f.docIDs))
	for id := range f.docIDs {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (f *FileIndex) Count(ctx context.Context) (int, error) {
	return len(f.entries), nil
}
