// Package session persists conversations and their message history in
// Postgres. History is append-only: messages are never updated or
// reordered once written, only the parent session row is touched.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/docent/internal/log"
)

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

const queryTimeout = 10 * time.Second

// DefaultHistoryLimit bounds how many messages History loads when the
// caller passes a non-positive limit.
const DefaultHistoryLimit = 100

// Store manages sessions and their messages.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a session store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Create inserts a new session titled from the first question.
func (s *Store) Create(ctx context.Context, question string) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sess := Session{
		ID:    uuid.New(),
		Title: TitleFromQuestion(question),
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, title)
		VALUES ($1, $2)
		RETURNING created_at, updated_at`,
		sess.ID, sess.Title,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	s.logger.Debug("session created", "session_id", sess.ID, "title", sess.Title)
	return sess, nil
}

// Get loads a single session by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var sess Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, created_at, updated_at
		FROM sessions
		WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// List returns all sessions, most recently active first.
func (s *Store) List(ctx context.Context) ([]Session, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session and, via the FK cascade, its messages.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// AppendMessages atomically appends messages to a session's history and
// bumps updated_at. Either every message lands or none do.
func (s *Store) AppendMessages(ctx context.Context, id uuid.UUID, msgs []*ai.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, msg := range msgs {
		content, err := encodeMessage(msg)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO session_messages (session_id, role, content)
			VALUES ($1, $2, $3)`,
			id, string(msg.Role), content,
		); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE sessions SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("messages appended", "session_id", id, "count", len(msgs))
	return nil
}

// History returns the most recent messages of a session in oldest-first
// order, ready to pass back to the model.
func (s *Store) History(ctx context.Context, id uuid.UUID, limit int) ([]*ai.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT content FROM (
			SELECT id, content
			FROM session_messages
			WHERE session_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC`,
		id, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	msgs := []*ai.Message{}
	for rows.Next() {
		var content []byte
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg, err := decodeMessage(content)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}

func encodeMessage(msg *ai.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

func decodeMessage(data []byte) (*ai.Message, error) {
	var msg ai.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}
