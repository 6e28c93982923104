package llama

import (
	"context"
	"errors"
)

var (
	ErrSessionNotFound = errors.New("llama: session not found")
)

// TranscriptSink receives the full conversation once a session terminates.
type TranscriptSink interface {
	WriteTranscript(ctx context.Context, session Session, turns []Turn) error
}

// RequestLogger records backend calls.
type RequestLogger interface {
	AddRequestLog(ctx context.Context, log RequestLog) (*RequestLog, error)
	UpdateRequestLog(ctx context.Context, id string, response string, status string, failReason string, errorMsg string) error
}

// Store defines the contract for archiving sessions, turns and backend requests.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Sessions
	CreateSession(ctx context.Context, session Session) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// Messages
	AddMessage(ctx context.Context, sessionID string, label Label, content string) (*Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)

	// Request Logs
	RequestLogger

	TranscriptSink
}
