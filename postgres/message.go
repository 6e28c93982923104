package postgres

import (
	"context"
	"fmt"

	llama "github.com/gamazeps/encode-llama"
	"github.com/google/uuid"
)

// AddMessage appends a turn to a session with auto-incremented seq.
func (s *PGStore) AddMessage(ctx context.Context, sessionID string, label llama.Label, content string) (*llama.Message, error) {
	return addMessage(ctx, s.db, sessionID, label, content)
}

func addMessage(ctx context.Context, q querier, sessionID string, label llama.Label, content string) (*llama.Message, error) {
	msg := &llama.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Label:     label,
		Content:   content,
	}

	err := q.QueryRow(ctx,
		`INSERT INTO llama_messages (id, session_id, seq, label, content)
		 VALUES ($1, $2, COALESCE((SELECT MAX(seq) FROM llama_messages WHERE session_id = $2), 0) + 1, $3, $4)
		 RETURNING seq, created_at`,
		msg.ID, sessionID, string(label), content,
	).Scan(&msg.Seq, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("llama: add message: %w", err)
	}

	return msg, nil
}

// ListMessages returns all turns of a session ordered by seq.
func (s *PGStore) ListMessages(ctx context.Context, sessionID string) ([]llama.Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, seq, label, content, created_at
		 FROM llama_messages WHERE session_id = $1 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("llama: list messages: %w", err)
	}
	defer rows.Close()

	var messages []llama.Message
	for rows.Next() {
		var msg llama.Message
		var label string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &label, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("llama: scan message: %w", err)
		}
		msg.Label = llama.Label(label)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("llama: list messages: %w", err)
	}

	return messages, nil
}

// WriteTranscript archives a finished session and its turns in one transaction.
func (s *PGStore) WriteTranscript(ctx context.Context, session llama.Session, turns []llama.Turn) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("llama: begin transcript: %w", err)
	}
	defer tx.Rollback(ctx)

	archived, err := createSession(ctx, tx, session)
	if err != nil {
		return err
	}
	for _, t := range turns {
		if _, err := addMessage(ctx, tx, archived.ID, t.Label, t.Content); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("llama: commit transcript: %w", err)
	}
	return nil
}
