package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arx/types"
)

// DefaultThreadTitle is the placeholder a thread carries until the
// first question renames it.
const DefaultThreadTitle = "New conversation"

// HistoryStorer persists chat threads and their messages.
type HistoryStorer interface {
	EnsureThread(ctx context.Context, threadID, userID string) (types.Thread, error)
	CreateThread(ctx context.Context, userID string) (types.Thread, error)
	RenameThread(ctx context.Context, threadID, title string) error
	DeleteThread(ctx context.Context, threadID string) error
	ListThreads(ctx context.Context, userID string) ([]types.Thread, error)
	ListThreadPreviews(ctx context.Context, userID string) ([]types.ThreadPreview, error)
	SaveTurn(ctx context.Context, userID, sessionID, threadID, question, answer string) error
	Turns(ctx context.Context, userID, sessionID, threadID string, nbMessages int) ([]types.ConversationTurn, error)
}

type PostgresHistory struct {
	pool *pgxpool.Pool
}

func NewPostgresHistory(ctx context.Context, connStr string) (*PostgresHistory, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresHistory{pool: pool}, nil
}

func (p *PostgresHistory) Init(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_threads (
		id VARCHAR(100) PRIMARY KEY,
		user_id VARCHAR(100) NOT NULL,
		title VARCHAR(255) DEFAULT '` + DefaultThreadTitle + `',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
		last_updated TIMESTAMP WITH TIME ZONE DEFAULT now(),
		archived BOOLEAN DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_chat_threads_user_id ON chat_threads(user_id);

	CREATE TABLE IF NOT EXISTS history (
		id SERIAL PRIMARY KEY,
		user_id VARCHAR(100) NOT NULL,
		session_id VARCHAR(100) NOT NULL,
		thread_id VARCHAR(100) NOT NULL REFERENCES chat_threads(id) ON DELETE CASCADE,
		role VARCHAR(20) NOT NULL CHECK (role IN ('user','assistant')),
		message TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_history_session ON history(user_id, session_id, thread_id);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

// NewThreadID mints an identifier in the same form clients without one
// get assigned.
func NewThreadID() string {
	return "thread_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// EnsureThread loads the thread, creating it with the placeholder title
// when missing.
func (p *PostgresHistory) EnsureThread(ctx context.Context, threadID, userID string) (types.Thread, error) {
	t, err := p.getThread(ctx, threadID)
	if err == nil {
		return t, nil
	}
	if err != pgx.ErrNoRows {
		return types.Thread{}, err
	}

	now := time.Now().UTC()
	t = types.Thread{
		ID:          threadID,
		UserID:      userID,
		Title:       DefaultThreadTitle,
		CreatedAt:   now,
		LastUpdated: now,
	}
	_, err = p.pool.Exec(ctx,
		"INSERT INTO chat_threads (id, user_id, title, created_at, last_updated) VALUES ($1, $2, $3, $4, $5)",
		t.ID, t.UserID, t.Title, t.CreatedAt, t.LastUpdated,
	)
	if err != nil {
		return types.Thread{}, err
	}
	return t, nil
}

func (p *PostgresHistory) CreateThread(ctx context.Context, userID string) (types.Thread, error) {
	return p.EnsureThread(ctx, NewThreadID(), userID)
}

func (p *PostgresHistory) getThread(ctx context.Context, threadID string) (types.Thread, error) {
	var t types.Thread
	err := p.pool.QueryRow(ctx,
		"SELECT id, user_id, title, created_at, last_updated, archived FROM chat_threads WHERE id = $1",
		threadID,
	).Scan(&t.ID, &t.UserID, &t.Title, &t.CreatedAt, &t.LastUpdated, &t.Archived)
	return t, err
}

func (p *PostgresHistory) RenameThread(ctx context.Context, threadID, title string) error {
	tag, err := p.pool.Exec(ctx,
		"UPDATE chat_threads SET title = $1, last_updated = now() WHERE id = $2",
		title, threadID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s not found", threadID)
	}
	return nil
}

func (p *PostgresHistory) DeleteThread(ctx context.Context, threadID string) error {
	// Messages go with it via ON DELETE CASCADE.
	tag, err := p.pool.Exec(ctx, "DELETE FROM chat_threads WHERE id = $1", threadID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s not found", threadID)
	}
	return nil
}

func (p *PostgresHistory) ListThreads(ctx context.Context, userID string) ([]types.Thread, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT id, user_id, title, created_at, last_updated, archived FROM chat_threads WHERE user_id = $1 ORDER BY created_at DESC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []types.Thread
	for rows.Next() {
		var t types.Thread
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.CreatedAt, &t.LastUpdated, &t.Archived); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

func (p *PostgresHistory) ListThreadPreviews(ctx context.Context, userID string) ([]types.ThreadPreview, error) {
	query := `
		SELECT t.id, t.title, t.created_at, t.last_updated, t.archived,
		       COALESCE((
		           SELECT h.message FROM history h
		           WHERE h.thread_id = t.id
		           ORDER BY h.id DESC
		           LIMIT 1
		       ), '') AS last_message
		FROM chat_threads t
		WHERE t.user_id = $1
		ORDER BY t.last_updated DESC
	`
	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var previews []types.ThreadPreview
	for rows.Next() {
		var pv types.ThreadPreview
		var last string
		if err := rows.Scan(&pv.ThreadID, &pv.Title, &pv.CreatedAt, &pv.LastUpdated, &pv.Archived, &last); err != nil {
			return nil, err
		}
		pv.LastMessage = previewMessage(last, 50)
		previews = append(previews, pv)
	}
	return previews, rows.Err()
}

func previewMessage(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// SaveTurn stores one question/answer exchange and bumps the thread.
// Empty messages are skipped, not errors.
func (p *PostgresHistory) SaveTurn(ctx context.Context, userID, sessionID, threadID, question, answer string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	insert := "INSERT INTO history (user_id, session_id, thread_id, role, message) VALUES ($1, $2, $3, $4, $5)"
	if strings.TrimSpace(question) != "" {
		if _, err := tx.Exec(ctx, insert, userID, sessionID, threadID, "user", question); err != nil {
			return err
		}
	}
	if strings.TrimSpace(answer) != "" {
		if _, err := tx.Exec(ctx, insert, userID, sessionID, threadID, "assistant", answer); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, "UPDATE chat_threads SET last_updated = now() WHERE id = $1", threadID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Turns returns the last nbMessages user/assistant exchanges in
// chronological order. Only strict user-then-assistant pairs count;
// anything unpaired is dropped.
func (p *PostgresHistory) Turns(ctx context.Context, userID, sessionID, threadID string, nbMessages int) ([]types.ConversationTurn, error) {
	query := `
		SELECT role, message
		FROM history
		WHERE user_id = $1 AND session_id = $2 AND thread_id = $3
		ORDER BY id DESC
		LIMIT $4
	`
	rows, err := p.pool.Query(ctx, query, userID, sessionID, threadID, nbMessages*2)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type record struct{ role, message string }
	var records []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.role, &r.message); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Back to chronological order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	var turns []types.ConversationTurn
	for i := 0; i+1 < len(records); i += 2 {
		if records[i].role == "user" && records[i+1].role == "assistant" {
			turns = append(turns, types.ConversationTurn{
				User:      records[i].message,
				Assistant: records[i+1].message,
			})
		}
	}
	return turns, nil
}

// GenerateTitle derives a thread title from the first line of the
// question: up to six words, suffixed when truncated.
func GenerateTitle(question string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(question), "\n")
	words := strings.Fields(line)
	if len(words) == 0 {
		return DefaultThreadTitle
	}
	if len(words) <= 6 {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:6], " ") + "..."
}

func (p *PostgresHistory) Close() error {
	if p.pool != nil {
		p.pool.Close()
		slog.Info("postgres history pool closed")
	}
	return nil
}
