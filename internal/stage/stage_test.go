package stage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/internal/llm"
	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/prompt"
	"github.com/superfm831010/SQLBothp/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

type memPersister struct {
	mu     sync.Mutex
	fields map[int64]map[string]any
	logs   []*model.ChatLog
	logErr error
}

func newMemPersister() *memPersister {
	return &memPersister{fields: map[int64]map[string]any{}}
}

func (p *memPersister) SaveStage(_ context.Context, id int64, fields map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fields[id] == nil {
		p.fields[id] = map[string]any{}
	}
	for k, v := range fields {
		p.fields[id][k] = v
	}
	return nil
}

func (p *memPersister) CreateLog(_ context.Context, log *model.ChatLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.logErr != nil {
		return p.logErr
	}
	p.logs = append(p.logs, log)
	return nil
}

func collect(parts []llm.Delta) (content, reasoning string) {
	var c, r strings.Builder
	for _, d := range parts {
		if d.Kind == llm.KindReasoning {
			r.WriteString(d.Text)
		} else {
			c.WriteString(d.Text)
		}
	}
	return c.String(), r.String()
}

func TestThinkSplitter_SplitTags(t *testing.T) {
	s := &ThinkSplitter{}
	var out []llm.Delta
	for _, chunk := range []string{"<th", "ink>先分析", "表结构</t", "hink>```sql\nSELECT 1", "\n```<"} {
		out = append(out, s.Push(chunk)...)
	}
	out = append(out, s.Flush()...)

	content, reasoning := collect(out)
	assert.Equal(t, "先分析表结构", reasoning)
	assert.Equal(t, "```sql\nSELECT 1\n```<", content)
}

// 任意切分方式得到的结果与整体输入一致
func TestThinkSplitter_ChunkingInvariant_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pieces := rapid.SliceOfN(rapid.SampledFrom([]string{"<think>", "</think>", "<", "think", ">", "a", "选择", "\n", "/"}), 0, 20).Draw(t, "pieces")
		text := strings.Join(pieces, "")

		whole := &ThinkSplitter{}
		expected := append(whole.Push(text), whole.Flush()...)
		wantC, wantR := collect(expected)

		chunked := &ThinkSplitter{}
		var got []llm.Delta
		rest := text
		for rest != "" {
			n := rapid.IntRange(1, len(rest)).Draw(t, "n")
			got = append(got, chunked.Push(rest[:n])...)
			rest = rest[n:]
		}
		got = append(got, chunked.Flush()...)
		gotC, gotR := collect(got)

		if gotC != wantC || gotR != wantR {
			t.Fatalf("chunked (%q,%q) != whole (%q,%q) for %q", gotC, gotR, wantC, wantR, text)
		}
	})
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		want    string
		wantErr string
	}{
		{name: "sql代码块", answer: "说明\n```sql\nSELECT * FROM t\n```", want: "SELECT * FROM t"},
		{name: "json代码块", answer: "```json\n{\"success\":true,\"sql\":\"SELECT 1\",\"brief\":\"b\"}\n```", want: "SELECT 1"},
		{name: "裸json", answer: `好的 {"success":true,"sql":" SELECT 2 "}`, want: "SELECT 2"},
		{name: "无法生成", answer: `{"success":false,"message":"没有相关表"}`, wantErr: "没有相关表"},
		{name: "空回答", answer: "", wantErr: "未在回答中找到 SQL"},
		{name: "sql为空", answer: `{"success":true,"sql":""}`, wantErr: "生成的 SQL 为空"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractSQL(tt.answer)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	got, err := ExtractJSON("图表如下\n```json\n{\"type\":\"bar\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"bar"}`, got)

	got, err = ExtractJSON(`[{"a":1},{"a":2}] trailing`)
	require.NoError(t, err)
	assert.Equal(t, `[{"a":1},{"a":2}]`, got)

	_, err = ExtractJSON("no json here")
	assert.Error(t, err)

	got, err = ExtractJSONArray("预测如下 ```json\n[{\"m\":\"2024-02\"}]\n```")
	require.NoError(t, err)
	assert.Equal(t, `[{"m":"2024-02"}]`, got)
}

func TestExecutor_RunPersistsAndForwards(t *testing.T) {
	m := llm.NewScriptedModel(llm.Chunks("<think>看一下", "</think>```sql\n", "SELECT 1\n```"))
	p := newMemPersister()
	e := NewExecutor(llm.NewEinoClient(m, "fake-model"), p, Defaults(time.Second)...)

	var deltas []llm.Delta
	res, err := e.Run(context.Background(), &Invocation{
		Stage:    prompt.StageSQL,
		Operate:  model.OperateGenerateSQL,
		RecordID: 1,
		System:   "sys",
		User:     "user",
		Extract:  ExtractSQL,
		Columns:  Columns{Answer: "sql_answer", Reasoning: "sql_reasoning_content", Extracted: "sql"},
		OnDelta:  func(d llm.Delta) error { deltas = append(deltas, d); return nil },
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", res.Extracted)
	assert.Equal(t, "看一下", res.Reasoning)

	content, reasoning := collect(deltas)
	assert.Equal(t, res.Answer, content)
	assert.Equal(t, "看一下", reasoning)

	assert.Equal(t, "SELECT 1", p.fields[1]["sql"])
	assert.Equal(t, "看一下", p.fields[1]["sql_reasoning_content"])
	require.Len(t, p.logs, 1)
	assert.Equal(t, model.OperateGenerateSQL, p.logs[0].Operate)
	assert.Equal(t, "fake-model", p.logs[0].BaseModal)
}

func TestExecutor_LogWriteFailureIsWarned(t *testing.T) {
	core, observed := observer.New(zap.WarnLevel)
	defer logger.Replace(zap.New(core))()

	m := llm.NewScriptedModel(llm.Chunks("```sql\nSELECT 1\n```"))
	p := newMemPersister()
	p.logErr = errors.New("disk full")
	e := NewExecutor(llm.NewEinoClient(m, "fake-model"), p, Defaults(time.Second)...)

	res, err := e.Run(context.Background(), &Invocation{
		Stage:    prompt.StageSQL,
		Operate:  model.OperateGenerateSQL,
		RecordID: 7,
		Extract:  ExtractSQL,
		Columns:  Columns{Answer: "sql_answer", Extracted: "sql"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", res.Extracted)
	assert.Equal(t, "SELECT 1", p.fields[7]["sql"])

	entries := observed.FilterMessage("写入模型调用日志失败").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].ContextMap()["record_id"])
	assert.Equal(t, "disk full", entries[0].ContextMap()["error"])
}

func TestExecutor_EmptyAnswerIsStageFailure(t *testing.T) {
	p := newMemPersister()
	e := NewExecutor(llm.NewEinoClient(llm.NewScriptedModel(nil), "fake"), p, Defaults(time.Second)...)

	_, err := e.Run(context.Background(), &Invocation{
		Stage:    prompt.StageSQL,
		RecordID: 2,
		Extract:  ExtractSQL,
		Columns:  Columns{Answer: "sql_answer", Extracted: "sql"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStageFailure))
	_, written := p.fields[2]["sql"]
	assert.False(t, written)
}

func TestExecutor_Timeout(t *testing.T) {
	m := llm.NewScriptedModel(llm.Chunks("部分"))
	m.Block = true
	p := newMemPersister()
	e := NewExecutor(llm.NewEinoClient(m, "fake"), p, Defaults(30*time.Millisecond)...)

	_, err := e.Run(context.Background(), &Invocation{
		Stage:    prompt.StageChart,
		RecordID: 3,
		Columns:  Columns{Answer: "chart_answer"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStageTimeout))
	// 超时前的内容已落库
	assert.Equal(t, "部分", p.fields[3]["chart_answer"])
}

func TestExecutor_CancelIsNotFailure(t *testing.T) {
	m := llm.NewScriptedModel(llm.Chunks("x"))
	m.Block = true
	e := NewExecutor(llm.NewEinoClient(m, "fake"), newMemPersister(), Defaults(time.Minute)...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := e.Run(ctx, &Invocation{Stage: prompt.StageAnalysis, RecordID: 4})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, types.ErrStageFailure))
}

func TestRecover(t *testing.T) {
	h := Chain(func(context.Context, *Invocation) (*Result, error) {
		panic("boom")
	}, Recover())
	_, err := h(context.Background(), &Invocation{Stage: prompt.StageGuess})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStageFailure))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Interceptor {
		return func(next Handler) Handler {
			return func(ctx context.Context, inv *Invocation) (*Result, error) {
				order = append(order, name)
				return next(ctx, inv)
			}
		}
	}
	h := Chain(func(context.Context, *Invocation) (*Result, error) {
		order = append(order, "core")
		return &Result{}, nil
	}, mark("a"), mark("b"))
	_, err := h(context.Background(), &Invocation{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "core"}, order)
}
