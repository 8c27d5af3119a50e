package sse

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/superfm831010/SQLBothp/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Framing(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	w := NewWriter(bw)

	require.NoError(t, w.Emit(context.Background(), &Event{Type: EventContent, Stage: "sql", Content: "SELECT 1\nFROM t <x>", RecordID: 3}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "event: content\ndata: {"))
	assert.True(t, strings.HasSuffix(out, "}\n\n"))
	lines := strings.Split(strings.TrimSuffix(out, "\n\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, out, `"record_id":3`)
	assert.Contains(t, out, `<x>`)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestEmitter_FailureCancelsOnce(t *testing.T) {
	cancelled := 0
	e := NewEmitter(NewWriter(failingWriter{}), func() { cancelled++ })
	e.SetRecord(9)

	ctx := context.Background()
	assert.Error(t, e.Content(ctx, "sql", "a"))
	assert.Error(t, e.Content(ctx, "sql", "b"))
	assert.Equal(t, 1, cancelled)
	assert.Error(t, e.Err())
}

func TestEmitter_StampsRecordAndOrder(t *testing.T) {
	var got []*Event
	sink := SinkFunc(func(_ context.Context, ev *Event) error {
		got = append(got, ev)
		return nil
	})
	e := NewEmitter(sink, nil)
	e.SetRecord(5)
	ctx := context.Background()

	require.NoError(t, e.Reasoning(ctx, "sql", "think"))
	require.NoError(t, e.Content(ctx, "sql", "answer"))
	require.NoError(t, e.Finish(ctx, "sql"))
	require.NoError(t, e.Error(ctx, "chart", types.StageFailure("chart", "图表生成失败", nil)))

	require.Len(t, got, 4)
	for _, ev := range got {
		assert.Equal(t, int64(5), ev.RecordID)
	}
	assert.Equal(t, EventFinish, got[2].Type)
	assert.Equal(t, "sql", got[2].Stage)
	assert.Equal(t, ErrStageFailed, got[3].Code)
}

func TestFanout_WritesAll(t *testing.T) {
	count := 0
	ok := SinkFunc(func(context.Context, *Event) error { count++; return nil })
	bad := SinkFunc(func(context.Context, *Event) error { count++; return errors.New("x") })

	err := Fanout{bad, nil, ok}.Emit(context.Background(), &Event{Type: EventFinish})
	assert.Error(t, err)
	assert.Equal(t, 2, count)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCancelled, CodeOf(context.Canceled))
	assert.Equal(t, ErrLineage, CodeOf(types.ErrLineage))
	assert.Equal(t, ErrInternalError, CodeOf(errors.New("boom")))
	assert.Equal(t, "sqlbot:record:12:events", RecordChannel(12))
}
