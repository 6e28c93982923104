package llama

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation(t *testing.T) {
	c := NewConversation()
	c.Append(LabelUser, "How many exons in MT-TP?")
	c.Append(LabelThoughts, "count them")
	c.Append(LabelAssistant, `{"function":"count_of_type","gene_name":"MT-TP","feature":"exon"}`)
	c.Append(LabelSystem, "1")

	assert.Equal(t, 4, c.Len())
	assert.Equal(t, "User: How many exons in MT-TP?\n"+
		"Thoughts: count them\n"+
		`Assistant: {"function":"count_of_type","gene_name":"MT-TP","feature":"exon"}`+"\n"+
		"System: 1\n", c.String())

	turns := c.Turns()
	turns[0].Content = "changed"
	assert.Equal(t, "How many exons in MT-TP?", c.Turns()[0].Content)
}

func TestParseTurn(t *testing.T) {
	tests := []struct {
		line string
		want Turn
		ok   bool
	}{
		{"User: hi", Turn{Label: LabelUser, Content: "hi"}, true},
		{"System:  two spaces", Turn{Label: LabelSystem, Content: " two spaces"}, true},
		{`Assistant:{"function":"exit"}`, Turn{Label: LabelAssistant, Content: `{"function":"exit"}`}, true},
		{"Thoughts: x", Turn{Label: LabelThoughts, Content: "x"}, true},
		{"Narrator: once upon", Turn{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseTurn(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, SessionIDFrom(ctx))
	assert.Equal(t, "s1", SessionIDFrom(WithSessionID(ctx, "s1")))
}

func TestBackendRegistry(t *testing.T) {
	var got BackendOptions
	RegisterBackend("test-registry", func(opts BackendOptions) (Backend, error) {
		got = opts
		return nil, nil
	})

	_, err := NewBackend("test-registry", BackendOptions{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, SystemPrompt, got.Prompt)
	assert.Equal(t, "m", got.Model)
	assert.Contains(t, Backends(), "test-registry")

	_, err = NewBackend("missing", BackendOptions{})
	require.ErrorIs(t, err, ErrUnknownBackend)
}
