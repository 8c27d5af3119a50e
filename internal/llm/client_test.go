package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEinoClient_Stream(t *testing.T) {
	reasoning := &schema.Message{Role: schema.Assistant, ReasoningContent: "先看表结构"}
	last := schema.AssistantMessage("SQL", nil)
	last.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13}}

	m := NewScriptedModel(append([]*schema.Message{reasoning}, append(Chunks("```sql\n", "SELECT 1\n```"), last)...))
	c := NewEinoClient(m, "fake")

	var got []Delta
	usage, err := c.Stream(context.Background(), "sys", "user", func(d Delta) error {
		got = append(got, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 13, usage.TotalTokens)
	require.Len(t, got, 4)
	assert.Equal(t, KindReasoning, got[0].Kind)
	assert.Equal(t, "SQL", got[3].Text)

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, schema.System, calls[0][0].Role)
	assert.Equal(t, "user", calls[0][1].Content)
}

func TestEinoClient_StopOnCallbackError(t *testing.T) {
	c := NewEinoClient(NewScriptedModel(Chunks("a", "b", "c")), "fake")
	stop := errors.New("client gone")
	n := 0
	_, err := c.Stream(context.Background(), "", "q", func(Delta) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestEinoClient_Cancel(t *testing.T) {
	m := NewScriptedModel(Chunks("partial"))
	m.Block = true
	c := NewEinoClient(m, "fake")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Stream(ctx, "", "q", func(Delta) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
