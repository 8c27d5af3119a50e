// Package orchestrator 问数编排：SQL 生成、执行、图表，以及分析、预测、推荐问题分支
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/common/utils"
	"github.com/superfm831010/SQLBothp/internal/command"
	"github.com/superfm831010/SQLBothp/internal/config"
	"github.com/superfm831010/SQLBothp/internal/ctxutil"
	"github.com/superfm831010/SQLBothp/internal/datasource"
	"github.com/superfm831010/SQLBothp/internal/dialect"
	"github.com/superfm831010/SQLBothp/internal/llm"
	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/prompt"
	"github.com/superfm831010/SQLBothp/internal/retriever"
	"github.com/superfm831010/SQLBothp/internal/sse"
	"github.com/superfm831010/SQLBothp/internal/stage"
	"github.com/superfm831010/SQLBothp/internal/store"
	"github.com/superfm831010/SQLBothp/internal/types"

	"go.uber.org/zap"
)

// 推送事件中的阶段名
const (
	stageSQL       = string(prompt.StageSQL)
	stageExec      = "sql_exec"
	stageChart     = string(prompt.StageChart)
	stageAnalysis  = string(prompt.StageAnalysis)
	stagePredict   = string(prompt.StagePredict)
	stageRecommend = string(prompt.StageGuess)
)

// errTransport 推送失败导致的取消
var errTransport = errors.New("客户端已断开")

// ChatRepository 会话与记录存储
type ChatRepository interface {
	GetChat(ctx context.Context, oid, id int64) (*model.Chat, error)
	RenameChat(ctx context.Context, oid, id int64, brief string) error
	UpdateChatRecommend(ctx context.Context, chatID int64, questions string) error
	CreateRecord(ctx context.Context, record *model.ChatRecord) error
	GetRecord(ctx context.Context, id int64) (*model.ChatRecord, error)
	ListRecords(ctx context.Context, chatID int64) ([]*model.ChatRecord, error)
	LatestRecord(ctx context.Context, chatID int64) (*model.ChatRecord, error)
	LatestChartRecord(ctx context.Context, chatID int64) (*model.ChatRecord, error)
	SaveStage(ctx context.Context, recordID int64, fields map[string]any) error
	Finish(ctx context.Context, recordID int64, errMsg string) error
	SetLineage(ctx context.Context, recordID int64, column store.Lineage, target int64) error
}

// DatasourceRepository 数据源存储
type DatasourceRepository interface {
	Get(ctx context.Context, oid, id int64) (*model.Datasource, error)
}

// KnowledgeRetriever 知识检索
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, q retriever.Query) (*retriever.Knowledge, error)
}

// Deps 引擎依赖
type Deps struct {
	Chats       ChatRepository
	Datasources DatasourceRepository
	Retriever   KnowledgeRetriever
	Assembler   *prompt.Assembler
	Stages      *stage.Executor
	Executor    datasource.Executor
	Schema      datasource.SchemaReader
	Registry    *Registry
	Config      config.SQLBotConfig
}

// Engine 问数编排引擎，一轮问答内各阶段严格串行
type Engine struct {
	Deps
}

// New 创建引擎
func New(deps Deps) *Engine {
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	return &Engine{Deps: deps}
}

// QuestionRequest 提问
type QuestionRequest struct {
	ChatID   int64
	Question string
}

// Turn 一轮问答的结果，Err 为已推送给前端的业务错误
type Turn struct {
	RecordID int64
	State    State
	Err      error
}

// turn 一条记录的运行上下文
type turn struct {
	scope   ctxutil.Scope
	record  *model.ChatRecord
	machine *machine
	emit    *sse.Emitter
	current string
}

func (t *turn) enter(state State, stageName string) error {
	t.current = stageName
	return t.machine.advance(state)
}

// begin 创建可取消的本轮上下文，推送失败时取消
func begin(ctx context.Context, sink sse.Sink) (context.Context, context.CancelCauseFunc, *sse.Emitter) {
	ctx, cancel := context.WithCancelCause(ctx)
	emit := sse.NewEmitter(sink, func() { cancel(errTransport) })
	return ctx, cancel, emit
}

// Question 处理一次提问，问题末尾的快捷指令会转为重新生成、分析或预测
func (e *Engine) Question(ctx context.Context, scope ctxutil.Scope, req QuestionRequest, sink sse.Sink) (*Turn, error) {
	ctx, cancel, emit := begin(ctx, sink)
	defer cancel(nil)

	parsed := command.Parse(req.Question)
	if err := parsed.Error(); err != nil {
		return reject(ctx, emit, stageSQL, err)
	}

	chat, err := e.Chats.GetChat(ctx, scope.WorkspaceID(), req.ChatID)
	if err != nil {
		return reject(ctx, emit, stageSQL, err)
	}

	switch parsed.Command {
	case command.Analysis, command.Predict:
		targetID := parsed.TargetID
		if targetID == nil {
			latest, err := e.Chats.LatestChartRecord(ctx, chat.ID)
			if err != nil {
				return reject(ctx, emit, string(parsed.Command), err)
			}
			targetID = &latest.ID
		}
		return e.branch(ctx, cancel, emit, scope, chat.ID, *targetID, parsed.Command)
	}

	question := strings.TrimSpace(parsed.Text)
	params := sqlParams{}
	if parsed.Command == command.Regenerate {
		var target *model.ChatRecord
		if parsed.TargetID != nil {
			target, err = e.Chats.GetRecord(ctx, *parsed.TargetID)
			if err == nil && target.ChatID != chat.ID {
				err = types.NewAppErrorWithDetails(types.ErrCodeLineage, "记录不属于当前会话", "")
			}
		} else {
			target, err = e.Chats.LatestRecord(ctx, chat.ID)
		}
		if err != nil {
			return reject(ctx, emit, stageSQL, err)
		}
		if question == "" {
			question = target.Question
		}
		params.regenerate = true
		params.regenerateID = &target.ID
		params.errorMsg = target.Error
	}
	if question == "" {
		return reject(ctx, emit, stageSQL, types.NewAppError(types.ErrCodeInvalidParameter, "问题不能为空"))
	}
	if chat.Datasource == nil {
		return reject(ctx, emit, stageSQL, types.NewAppError(types.ErrCodeInvalidParameter, "请先选择数据源"))
	}
	ds, err := e.Datasources.Get(ctx, scope.WorkspaceID(), *chat.Datasource)
	if err != nil {
		return reject(ctx, emit, stageSQL, err)
	}

	records, err := e.Chats.ListRecords(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	rec := &model.ChatRecord{
		ChatID:             chat.ID,
		CreateBy:           scope.UserID,
		FirstChat:          len(records) == 0,
		Datasource:         &ds.ID,
		EngineType:         ds.Type,
		Question:           question,
		RegenerateRecordID: params.regenerateID,
	}
	if err := e.Chats.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}
	defer e.Registry.Register(rec.ID, cancel)()
	emit.SetRecord(rec.ID)

	t := &turn{scope: scope, record: rec, machine: newMachine(), emit: emit, current: stageSQL}
	err = e.runQuestion(ctx, t, chat, ds, params)
	return e.conclude(ctx, t, err)
}

type sqlParams struct {
	regenerate   bool
	regenerateID *int64
	errorMsg     string
}

func (e *Engine) runQuestion(ctx context.Context, t *turn, chat *model.Chat, ds *model.Datasource, params sqlParams) error {
	rec := t.record
	persistCtx := context.WithoutCancel(ctx)

	// SQL 生成
	if err := t.enter(StateSQLGen, stageSQL); err != nil {
		return err
	}
	knowledge := e.retrieve(ctx, t.scope, rec.Question, rec.Datasource)
	schema, err := e.Schema.Schema(ctx, ds)
	if err != nil {
		return stageError(ctx, stageSQL, "读取表结构失败", err)
	}
	system, user, err := e.Assembler.Assemble(ctx, prompt.StageSQL, &prompt.Input{
		Dialect:          dialect.Get(ds.Type),
		Schema:           schema,
		Question:         rec.Question,
		Lang:             e.lang(t.scope),
		Terminologies:    knowledge.TerminologiesXML(),
		DataTraining:     knowledge.ExamplesXML(),
		ErrorMsg:         params.errorMsg,
		Regenerate:       params.regenerate,
		EnableQueryLimit: e.Config.EnableQueryLimit,
		CurrentTime:      time.Now().Format("2006-01-02 15:04:05"),
		ChangeTitle:      rec.FirstChat,
	})
	if err != nil {
		return stageError(ctx, stageSQL, "组装提示词失败", err)
	}
	res, err := e.runStage(ctx, t, &stage.Invocation{
		Stage:   prompt.StageSQL,
		Operate: model.OperateGenerateSQL,
		System:  system,
		User:    user,
		Extract: stage.ExtractSQL,
		Columns: stage.Columns{Answer: "sql_answer", Reasoning: "sql_reasoning_content", Extracted: "sql"},
	}, true)
	if err != nil {
		return err
	}
	answer, _ := stage.ParseSQLAnswer(res.Answer)
	if answer == nil {
		answer = &stage.SQLAnswer{SQL: res.Extracted}
	}
	if rec.FirstChat && answer.Brief != "" {
		if err := e.Chats.RenameChat(persistCtx, t.scope.WorkspaceID(), chat.ID, utils.Ellipsis(answer.Brief, 64)); err != nil {
			logger.Warn("更新会话标题失败", zap.Int64("chat_id", chat.ID), zap.Error(err))
		}
	}
	if err := t.emit.Finish(ctx, stageSQL); err != nil {
		return err
	}

	// SQL 执行
	if err := t.enter(StateSQLExec, stageExec); err != nil {
		return err
	}
	result, err := e.Executor.Execute(ctx, ds, res.Extracted)
	if err != nil {
		return stageError(ctx, stageExec, "SQL 执行失败", err)
	}
	if result.Fields == nil {
		result.Fields = []string{}
	}
	if result.Data == nil {
		result.Data = []map[string]any{}
	}
	data := utils.ToJSON(result)
	if err := e.Chats.SaveStage(persistCtx, rec.ID, map[string]any{"data": data}); err != nil {
		return err
	}
	if err := t.emit.Content(ctx, stageExec, data); err != nil {
		return err
	}
	if err := t.emit.Finish(ctx, stageExec); err != nil {
		return err
	}

	// 图表，失败时退化为表格
	if err := t.enter(StateChartGen, stageChart); err != nil {
		return err
	}
	if err := e.chart(ctx, t, answer, result); err != nil {
		return err
	}
	if err := t.emit.Finish(ctx, stageChart); err != nil {
		return err
	}
	return t.machine.advance(StateDone)
}

func (e *Engine) chart(ctx context.Context, t *turn, answer *stage.SQLAnswer, result *datasource.QueryResult) error {
	rec := t.record
	system, user, err := e.Assembler.Assemble(ctx, prompt.StageChart, &prompt.Input{
		SQL:       answer.SQL,
		Question:  rec.Question,
		Lang:      e.lang(t.scope),
		ChartType: answer.ChartType,
	})
	// 正文不逐片推送，解析成功后一次性推送图表，失败时只推送默认表格
	var res *stage.Result
	if err == nil {
		res, err = e.runStage(ctx, t, &stage.Invocation{
			Stage:   prompt.StageChart,
			Operate: model.OperateGenerateChart,
			System:  system,
			User:    user,
			Extract: stage.ExtractJSON,
			Columns: stage.Columns{Answer: "chart_answer", Reasoning: "chart_reasoning_content", Extracted: "chart"},
			OnDelta: func(d llm.Delta) error {
				if d.Kind != llm.KindReasoning {
					return nil
				}
				return t.emit.Reasoning(ctx, stageChart, d.Text)
			},
		}, false)
	}
	if err == nil {
		return t.emit.Content(ctx, stageChart, res.Extracted)
	}
	if ctx.Err() != nil {
		return err
	}

	logger.Warn("图表生成失败，使用默认表格", zap.Int64("record_id", rec.ID), zap.Error(err))
	chart := DefaultChart(rec.Question, result.Fields)
	if err := e.Chats.SaveStage(context.WithoutCancel(ctx), rec.ID, map[string]any{"chart": chart}); err != nil {
		return err
	}
	return t.emit.Content(ctx, stageChart, chart)
}

// runStage 执行模型阶段，stream 为 true 时逐片推送
func (e *Engine) runStage(ctx context.Context, t *turn, inv *stage.Invocation, stream bool) (*stage.Result, error) {
	inv.RecordID = t.record.ID
	if stream {
		name := t.current
		inv.OnDelta = func(d llm.Delta) error {
			if d.Kind == llm.KindReasoning {
				return t.emit.Reasoning(ctx, name, d.Text)
			}
			return t.emit.Content(ctx, name, d.Text)
		}
	}
	return e.Stages.Run(ctx, inv)
}

// retrieve 检索失败只记录日志
func (e *Engine) retrieve(ctx context.Context, scope ctxutil.Scope, question string, ds *int64) *retriever.Knowledge {
	if e.Retriever == nil {
		return &retriever.Knowledge{}
	}
	k, err := e.Retriever.Retrieve(ctx, retriever.Query{Text: question, OID: scope.WorkspaceID(), Datasource: ds})
	if err != nil {
		logger.Warn(types.ErrRetrievalDegraded.Message, append(scope.Fields(), zap.Error(err))...)
		return &retriever.Knowledge{}
	}
	return k
}

func (e *Engine) lang(scope ctxutil.Scope) string {
	if scope.Lang != "" {
		return scope.Lang
	}
	return e.Config.Lang
}

// conclude 结束记录：成功、取消或失败都会落库 finish
func (e *Engine) conclude(ctx context.Context, t *turn, err error) (*Turn, error) {
	persistCtx := context.WithoutCancel(ctx)
	rec := t.record
	out := &Turn{RecordID: rec.ID, State: t.machine.state}

	if err == nil {
		if ferr := e.Chats.Finish(persistCtx, rec.ID, ""); ferr != nil {
			return out, ferr
		}
		return out, nil
	}

	t.machine.fail()
	out.State = StateFailed
	if ctx.Err() != nil {
		err = context.Cause(ctx)
	}
	out.Err = err

	if ferr := e.Chats.Finish(persistCtx, rec.ID, types.Message(err)); ferr != nil {
		return out, ferr
	}
	// 连接已断开时不再推送
	gone := errors.Is(err, errTransport) || errors.Is(err, context.Canceled)
	if !gone {
		_ = t.emit.Error(persistCtx, t.current, err)
	}
	if gone || types.IsAppError(err) {
		return out, nil
	}
	return out, err
}

// reject 记录创建前的失败，只推送错误
func reject(ctx context.Context, emit *sse.Emitter, stageName string, err error) (*Turn, error) {
	_ = emit.Error(context.WithoutCancel(ctx), stageName, err)
	out := &Turn{State: StateFailed, Err: err}
	if types.IsAppError(err) {
		return out, nil
	}
	return out, err
}

// stageError 非模型调用的阶段错误，取消原样返回
func stageError(ctx context.Context, stageName, message string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return err
	}
	return types.StageFailure(stageName, message, err)
}
