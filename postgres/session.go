package postgres

import (
	"context"
	"errors"
	"fmt"

	llama "github.com/gamazeps/encode-llama"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const insertSessionSQL = `INSERT INTO llama_sessions (id, backend, mode, question)
	 VALUES ($1, $2, $3, $4)
	 ON CONFLICT (id) DO NOTHING
	 RETURNING created_at`

// CreateSession archives a session. An empty ID gets a new one.
func (s *PGStore) CreateSession(ctx context.Context, session llama.Session) (*llama.Session, error) {
	return createSession(ctx, s.db, session)
}

func createSession(ctx context.Context, q querier, session llama.Session) (*llama.Session, error) {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	err := q.QueryRow(ctx, insertSessionSQL,
		session.ID, session.Backend, string(session.Mode), session.Question,
	).Scan(&session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("llama: create session: %s already archived", session.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("llama: create session: %w", err)
	}

	return &session, nil
}

// GetSession retrieves a session by ID.
func (s *PGStore) GetSession(ctx context.Context, sessionID string) (*llama.Session, error) {
	session := &llama.Session{ID: sessionID}

	var mode string
	err := s.db.QueryRow(ctx,
		`SELECT backend, mode, question, created_at
		 FROM llama_sessions WHERE id = $1`,
		sessionID,
	).Scan(&session.Backend, &mode, &session.Question, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", llama.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("llama: get session: %w", err)
	}
	session.Mode = llama.Mode(mode)

	return session, nil
}
