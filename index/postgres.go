package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"arx/model"
	"arx/types"
)

// PostgresIndex stores entries in Postgres with pgvector similarity
// search. The composite primary key enforces that no two entries share
// the same document id and chunk index.
type PostgresIndex struct {
	pool     *pgxpool.Pool
	embedder model.Embedder
	logger   *slog.Logger
}

func NewPostgresIndex(ctx context.Context, connStr string, embedder model.Embedder) (*PostgresIndex, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	idx := &PostgresIndex{
		pool:     pool,
		embedder: embedder,
		logger:   slog.Default(),
	}
	if err := idx.createTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PostgresIndex) createTables(ctx context.Context) error {
	query := `
    CREATE EXTENSION IF NOT EXISTS vector;

    CREATE TABLE IF NOT EXISTS index_entries (
        document_id  TEXT NOT NULL,
        chunk_index  INT NOT NULL,
        source       TEXT,
        title        TEXT,
        chunk_length INT NOT NULL,
        content      TEXT NOT NULL,
        embedding    vector(768),
        PRIMARY KEY (document_id, chunk_index)
    );

    CREATE INDEX IF NOT EXISTS idx_entries_embedding ON index_entries
        USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

    CREATE INDEX IF NOT EXISTS idx_entries_document_id ON index_entries(document_id);
    `
	_, err := p.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create index tables: %w", err)
	}
	return nil
}

func (p *PostgresIndex) Add(ctx context.Context, chunks []types.Chunk) error {
	query := `
    INSERT INTO index_entries (document_id, chunk_index, source, title, chunk_length, content, embedding)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    ON CONFLICT (document_id, chunk_index) DO NOTHING
    `
	for _, chunk := range chunks {
		embedding, err := p.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %d of %s: %w", chunk.Meta.ChunkIndex, chunk.Meta.DocumentID, err)
		}
		_, err = p.pool.Exec(ctx, query,
			chunk.Meta.DocumentID,
			chunk.Meta.ChunkIndex,
			chunk.Meta.Source,
			chunk.Meta.Title,
			chunk.Meta.ChunkLength,
			chunk.Text,
			pgvector.NewVector(embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d of %s: %w", chunk.Meta.ChunkIndex, chunk.Meta.DocumentID, err)
		}
	}
	return nil
}

func (p *PostgresIndex) Search(ctx context.Context, query string, k int) ([]types.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	queryVec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sql := `
    SELECT document_id, chunk_index, source, title, chunk_length, content,
           1 - (embedding <=> $1) AS score
    FROM index_entries
    WHERE embedding IS NOT NULL
    ORDER BY embedding <=> $1
    LIMIT $2
    `
	rows, err := p.pool.Query(ctx, sql, pgvector.NewVector(queryVec), k)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var results []types.ScoredChunk
	for rows.Next() {
		var c types.ScoredChunk
		if err := rows.Scan(
			&c.Meta.DocumentID,
			&c.Meta.ChunkIndex,
			&c.Meta.Source,
			&c.Meta.Title,
			&c.Meta.ChunkLength,
			&c.Text,
			&c.Score,
		); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (p *PostgresIndex) Reset(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM index_entries"); err != nil {
		return fmt.Errorf("failed to reset index: %w", err)
	}
	p.logger.Info("vector index reset")
	return nil
}

// Reload verifies the backend is reachable; Postgres state is already
// durable.
func (p *PostgresIndex) Reload(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresIndex) DocumentIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := p.pool.Query(ctx, "SELECT DISTINCT document_id FROM index_entries")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (p *PostgresIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM index_entries").Scan(&count)
	return count, err
}

func (p *PostgresIndex) Close() {
	p.pool.Close()
}
