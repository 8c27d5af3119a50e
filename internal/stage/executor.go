// Package stage 执行单个模型阶段：流式转发、拆分推理内容、提取结构化结果并落库
package stage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/common/utils"
	"github.com/superfm831010/SQLBothp/internal/llm"
	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/prompt"
	"github.com/superfm831010/SQLBothp/internal/types"

	"go.uber.org/zap"
)

// Extractor 从完整回答中提取结构化结果
type Extractor func(answer string) (string, error)

// Persister 阶段结果落库
type Persister interface {
	SaveStage(ctx context.Context, recordID int64, fields map[string]any) error
	CreateLog(ctx context.Context, log *model.ChatLog) error
}

// Columns 阶段结果写入的列，为空的列不写
type Columns struct {
	Answer    string
	Reasoning string
	Extracted string
}

// Invocation 一次阶段调用
type Invocation struct {
	Stage    prompt.Stage
	Operate  string
	RecordID int64
	System   string
	User     string
	Extract  Extractor
	Columns  Columns
	OnDelta  func(llm.Delta) error
}

// Result 阶段结果
type Result struct {
	Answer    string
	Reasoning string
	Extracted string
	Usage     *llm.Usage
	Duration  time.Duration
}

// Handler 阶段处理函数
type Handler func(ctx context.Context, inv *Invocation) (*Result, error)

// Executor 阶段执行器
type Executor struct {
	client    llm.Client
	persister Persister
	handler   Handler
}

// NewExecutor 创建阶段执行器，拦截器按顺序由外向内包裹
func NewExecutor(client llm.Client, persister Persister, interceptors ...Interceptor) *Executor {
	e := &Executor{client: client, persister: persister}
	e.handler = Chain(e.invoke, interceptors...)
	return e
}

// Run 执行阶段
func (e *Executor) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	return e.handler(ctx, inv)
}

// ModelName 当前模型名称
func (e *Executor) ModelName() string {
	return e.client.ModelName()
}

func (e *Executor) invoke(ctx context.Context, inv *Invocation) (*Result, error) {
	start := time.Now()
	var answer, reasoning strings.Builder
	splitter := &ThinkSplitter{}

	forward := func(d llm.Delta) error {
		if d.Kind == llm.KindReasoning {
			reasoning.WriteString(d.Text)
		} else {
			answer.WriteString(d.Text)
		}
		if inv.OnDelta != nil {
			return inv.OnDelta(d)
		}
		return nil
	}

	usage, err := e.client.Stream(ctx, inv.System, inv.User, func(d llm.Delta) error {
		if d.Kind == llm.KindReasoning {
			return forward(d)
		}
		for _, part := range splitter.Push(d.Text) {
			if err := forward(part); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		for _, part := range splitter.Flush() {
			if ferr := forward(part); ferr != nil {
				err = ferr
				break
			}
		}
	}

	res := &Result{
		Answer:    answer.String(),
		Reasoning: reasoning.String(),
		Usage:     usage,
		Duration:  time.Since(start),
	}

	// 断开连接后已产生的内容照常落库
	persistCtx := context.WithoutCancel(ctx)
	e.writeLog(persistCtx, inv, res, start, err)

	if err == nil && inv.Extract != nil {
		res.Extracted, err = inv.Extract(res.Answer)
		if err != nil {
			err = types.StageFailure(string(inv.Stage), err.Error(), nil)
		}
	}

	if perr := e.persister.SaveStage(persistCtx, inv.RecordID, inv.Columns.fields(res, err == nil)); perr != nil {
		return res, perr
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || types.IsAppError(err) {
			return res, err
		}
		return res, types.StageFailure(string(inv.Stage), "模型调用失败", err)
	}
	return res, nil
}

func (c Columns) fields(res *Result, ok bool) map[string]any {
	fields := map[string]any{}
	if c.Answer != "" {
		fields[c.Answer] = res.Answer
	}
	if c.Reasoning != "" {
		fields[c.Reasoning] = res.Reasoning
	}
	if ok && c.Extracted != "" {
		fields[c.Extracted] = res.Extracted
	}
	return fields
}

type logMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (e *Executor) writeLog(ctx context.Context, inv *Invocation, res *Result, start time.Time, err error) {
	finish := time.Now()
	messages := []logMessage{
		{Role: "system", Content: inv.System},
		{Role: "user", Content: inv.User},
		{Role: "assistant", Content: res.Answer},
	}
	log := &model.ChatLog{
		Type:             "chat",
		Operate:          inv.Operate,
		PID:              inv.RecordID,
		BaseModal:        e.client.ModelName(),
		Messages:         utils.ToJSON(messages),
		ReasoningContent: res.Reasoning,
		StartTime:        &start,
		FinishTime:       &finish,
		TokenUsage:       utils.ToJSON(res.Usage),
	}
	if err != nil {
		log.Error = err.Error()
	}
	// 日志写入失败不影响阶段结果
	if err := e.persister.CreateLog(ctx, log); err != nil {
		logger.Warn("写入模型调用日志失败",
			zap.Int64("record_id", inv.RecordID),
			zap.String("stage", string(inv.Stage)),
			zap.Error(err))
	}
}
