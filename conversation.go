package llama

import (
	"slices"
	"strings"
)

// Turn is a single labeled entry in a conversation.
type Turn struct {
	Label   Label  `json:"label"`
	Content string `json:"content"`
}

// String renders the turn as a protocol line.
func (t Turn) String() string {
	return t.Label.Prefix() + " " + t.Content
}

// Conversation is the append-only state of one session. It is not safe for concurrent use;
// each session owns its own.
type Conversation struct {
	turns []Turn
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds a turn to the end of the conversation.
func (c *Conversation) Append(label Label, content string) {
	c.turns = append(c.turns, Turn{Label: label, Content: content})
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// Turns returns a copy of the turns in order.
func (c *Conversation) Turns() []Turn {
	return slices.Clone(c.turns)
}

// String renders the conversation as the text sent to the completion backend.
func (c *Conversation) String() string {
	return RenderTurns(c.turns)
}

// RenderTurns renders turns one per line.
func RenderTurns(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseTurn splits a protocol line into its label and content. ok is false when the line
// does not start with a known label.
func ParseTurn(line string) (Turn, bool) {
	for _, l := range []Label{LabelUser, LabelAssistant, LabelSystem, LabelThoughts} {
		if rest, found := strings.CutPrefix(line, l.Prefix()); found {
			return Turn{Label: l, Content: strings.TrimPrefix(rest, " ")}, true
		}
	}
	return Turn{}, false
}
