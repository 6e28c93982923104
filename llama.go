// Package llama holds the shared types of the encode-llama assistant: the annotation
// records it answers questions about, the conversation it keeps with the model, and the
// capability interfaces implemented by backends and archives.
package llama

import (
	"context"
	"time"
)

// Label identifies the speaker of a conversation turn.
type Label string

const (
	LabelUser      Label = "User"
	LabelAssistant Label = "Assistant"
	LabelSystem    Label = "System"
	LabelThoughts  Label = "Thoughts"
)

// Prefix is the label as it starts a protocol line, e.g. "System:".
func (l Label) Prefix() string {
	return string(l) + ":"
}

// Mode selects whether a session ends after the first answer.
type Mode string

const (
	ModeSingleShot  Mode = "single-shot"
	ModeInteractive Mode = "interactive"
)

// Session describes one run of the dispatch loop.
type Session struct {
	ID        string    `json:"id"`
	Backend   string    `json:"backend"`
	Mode      Mode      `json:"mode"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a persisted conversation turn.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Label     Label     `json:"label"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Request log statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Request log fail reasons.
const (
	FailReasonTimeout      = "timeout"
	FailReasonNetworkError = "network_error"
	FailReasonHTTPStatus   = "http_status"
	FailReasonBadResponse  = "bad_response"
	FailReasonUnknownError = "unknown_error"
)

// RequestLog tracks a single completion request.
type RequestLog struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Backend      string    `json:"backend"`
	Prompt       string    `json:"prompt"`
	Response     string    `json:"response"`
	FinalStatus  string    `json:"final_status"`
	FailReason   string    `json:"fail_reason"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MigrationRecord tracks a single applied migration.
type MigrationRecord struct {
	Name      string
	Applied   bool
	AppliedAt *time.Time
	Checksum  string
}

type sessionIDKey struct{}

// WithSessionID attaches a session id to ctx so backends can tag request logs.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFrom returns the session id attached by WithSessionID, or "".
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}
