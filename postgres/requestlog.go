package postgres

import (
	"context"
	"fmt"
	"time"

	llama "github.com/gamazeps/encode-llama"
	"github.com/google/uuid"
)

// AddRequestLog inserts a new request log with pending status.
func (s *PGStore) AddRequestLog(ctx context.Context, log llama.RequestLog) (*llama.RequestLog, error) {
	id := uuid.New().String()
	now := time.Now()

	err := s.db.QueryRow(ctx, `
		INSERT INTO llama_request_logs (
			id, session_id, backend, prompt, response,
			final_status, fail_reason, error_message,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`,
		id, log.SessionID, log.Backend, log.Prompt, "",
		llama.StatusPending, "", "",
		now, now,
	).Scan(&log.CreatedAt, &log.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("llama: add request log: %w", err)
	}

	log.ID = id
	log.FinalStatus = llama.StatusPending
	return &log, nil
}

// UpdateRequestLog records the outcome of a request.
func (s *PGStore) UpdateRequestLog(ctx context.Context, id string, response string, status string, failReason string, errorMsg string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE llama_request_logs
		SET
			response = $1,
			final_status = $2,
			fail_reason = $3,
			error_message = $4,
			updated_at = NOW()
		WHERE id = $5
	`,
		response, status, failReason, errorMsg, id,
	)
	if err != nil {
		return fmt.Errorf("llama: update request log: %w", err)
	}
	return nil
}

// ListRequestLogs returns the request logs of a session, oldest first.
func (s *PGStore) ListRequestLogs(ctx context.Context, sessionID string) ([]llama.RequestLog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, backend, prompt, response, final_status, fail_reason, error_message, created_at, updated_at
		FROM llama_request_logs WHERE session_id = $1 ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("llama: list request logs: %w", err)
	}
	defer rows.Close()

	var logs []llama.RequestLog
	for rows.Next() {
		var l llama.RequestLog
		if err := rows.Scan(&l.ID, &l.SessionID, &l.Backend, &l.Prompt, &l.Response,
			&l.FinalStatus, &l.FailReason, &l.ErrorMessage, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("llama: scan request log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("llama: list request logs: %w", err)
	}
	return logs, nil
}
