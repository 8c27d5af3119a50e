package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/common/utils"
	"github.com/superfm831010/SQLBothp/internal/command"
	"github.com/superfm831010/SQLBothp/internal/ctxutil"
	"github.com/superfm831010/SQLBothp/internal/datasource"
	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/prompt"
	"github.com/superfm831010/SQLBothp/internal/sse"
	"github.com/superfm831010/SQLBothp/internal/stage"
	"github.com/superfm831010/SQLBothp/internal/store"
	"github.com/superfm831010/SQLBothp/internal/types"

	"go.uber.org/zap"
)

// branchSpec 分析与预测分支的差异
type branchSpec struct {
	state   State
	stage   prompt.Stage
	name    string
	operate string
	lineage store.Lineage
	columns stage.Columns
	extract stage.Extractor
	pointer func(r *model.ChatRecord) *int64
}

var branches = map[command.Command]branchSpec{
	command.Analysis: {
		state:   StateAnalysis,
		stage:   prompt.StageAnalysis,
		name:    stageAnalysis,
		operate: model.OperateAnalysis,
		lineage: store.LineageAnalysis,
		columns: stage.Columns{Answer: "analysis", Reasoning: "analysis_reasoning_content"},
		pointer: func(r *model.ChatRecord) *int64 { return r.AnalysisRecordID },
	},
	command.Predict: {
		state:   StatePredict,
		stage:   prompt.StagePredict,
		name:    stagePredict,
		operate: model.OperatePredictData,
		lineage: store.LineagePredict,
		columns: stage.Columns{Answer: "predict", Reasoning: "predict_reasoning_content", Extracted: "predict_data"},
		extract: stage.ExtractJSONArray,
		pointer: func(r *model.ChatRecord) *int64 { return r.PredictRecordID },
	},
}

// Branch 对已生成图表的记录做分析或预测，结果写入新记录并在原记录上设置一次关联
func (e *Engine) Branch(ctx context.Context, scope ctxutil.Scope, recordID int64, kind command.Command, sink sse.Sink) (*Turn, error) {
	ctx, cancel, emit := begin(ctx, sink)
	defer cancel(nil)
	return e.branch(ctx, cancel, emit, scope, 0, recordID, kind)
}

// branch chatID 为 0 时不校验所属会话
func (e *Engine) branch(ctx context.Context, cancel context.CancelCauseFunc, emit *sse.Emitter, scope ctxutil.Scope,
	chatID, recordID int64, kind command.Command) (*Turn, error) {
	spec, ok := branches[kind]
	if !ok {
		return reject(ctx, emit, string(kind), types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter, "不支持的操作", string(kind)))
	}

	// 前置条件在任何模型调用之前校验
	target, err := e.Chats.GetRecord(ctx, recordID)
	if err != nil {
		return reject(ctx, emit, spec.name, err)
	}
	if chatID != 0 && target.ChatID != chatID {
		return reject(ctx, emit, spec.name, types.NewAppErrorWithDetails(types.ErrCodeLineage, "记录不属于当前会话",
			fmt.Sprintf("record %d", recordID)))
	}
	if _, err := e.Chats.GetChat(ctx, scope.WorkspaceID(), target.ChatID); err != nil {
		return reject(ctx, emit, spec.name, err)
	}
	if !target.HasChart() {
		return reject(ctx, emit, spec.name, types.NewAppErrorWithDetails(types.ErrCodeLineage, "记录尚未生成图表",
			fmt.Sprintf("record %d", recordID)))
	}
	if spec.pointer(target) != nil {
		return reject(ctx, emit, spec.name, types.NewAppErrorWithDetails(types.ErrCodeLineage, "记录关联关系已存在",
			fmt.Sprintf("record %d %s already set", recordID, spec.lineage)))
	}

	rec := &model.ChatRecord{
		ChatID:     target.ChatID,
		CreateBy:   scope.UserID,
		Datasource: target.Datasource,
		EngineType: target.EngineType,
		Question:   target.Question,
		SQL:        target.SQL,
		Data:       target.Data,
		Chart:      target.Chart,
	}
	if err := e.Chats.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}
	defer e.Registry.Register(rec.ID, cancel)()
	emit.SetRecord(rec.ID)

	t := &turn{scope: scope, record: rec, machine: newMachine(), emit: emit, current: spec.name}
	// 并发的同类分支只有一个能设置成功，失败的新记录以错误结束
	if err := e.Chats.SetLineage(ctx, target.ID, spec.lineage, rec.ID); err != nil {
		return e.conclude(ctx, t, err)
	}
	return e.conclude(ctx, t, e.runBranch(ctx, t, spec))
}

func (e *Engine) runBranch(ctx context.Context, t *turn, spec branchSpec) error {
	rec := t.record
	if err := t.enter(spec.state, spec.name); err != nil {
		return err
	}

	var result datasource.QueryResult
	if rec.Data != "" {
		if err := utils.UnmarshalString(rec.Data, &result); err != nil {
			logger.Warn("记录数据格式错误", zap.Int64("record_id", rec.ID), zap.Error(err))
		}
	}
	if result.Fields == nil {
		result.Fields = []string{}
	}
	if result.Data == nil {
		result.Data = []map[string]any{}
	}

	in := &prompt.Input{
		Lang:   e.lang(t.scope),
		Fields: utils.ToJSON(result.Fields),
		Data:   utils.ToJSON(result.Data),
	}
	if spec.state == StateAnalysis {
		in.Terminologies = e.retrieve(ctx, t.scope, rec.Question, rec.Datasource).TerminologiesXML()
	}
	system, user, err := e.Assembler.Assemble(ctx, spec.stage, in)
	if err != nil {
		return stageError(ctx, spec.name, "组装提示词失败", err)
	}
	if _, err := e.runStage(ctx, t, &stage.Invocation{
		Stage:   spec.stage,
		Operate: spec.operate,
		System:  system,
		User:    user,
		Extract: spec.extract,
		Columns: spec.columns,
	}, true); err != nil {
		return err
	}
	if err := t.emit.Finish(ctx, spec.name); err != nil {
		return err
	}
	return t.machine.advance(StateDone)
}

// Recommend 根据记录的问题生成推荐问题，结果写回该记录，不设置关联
func (e *Engine) Recommend(ctx context.Context, scope ctxutil.Scope, recordID int64, sink sse.Sink) (*Turn, error) {
	ctx, cancel, emit := begin(ctx, sink)
	defer cancel(nil)

	rec, err := e.Chats.GetRecord(ctx, recordID)
	if err != nil {
		if types.GetErrorCode(err) == types.ErrCodeNotFound {
			// 记录不存在时返回空列表
			_ = emit.Recommended(ctx, "[]")
			return &Turn{State: StateDone}, nil
		}
		return nil, err
	}
	chat, err := e.Chats.GetChat(ctx, scope.WorkspaceID(), rec.ChatID)
	if err != nil {
		return reject(ctx, emit, stageRecommend, err)
	}
	if strings.TrimSpace(rec.Question) == "" {
		return reject(ctx, emit, stageRecommend, types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter, "记录问题为空",
			fmt.Sprintf("record %d", recordID)))
	}

	defer e.Registry.Register(rec.ID, cancel)()
	emit.SetRecord(rec.ID)
	t := &turn{scope: scope, record: rec, machine: newMachine(), emit: emit, current: stageRecommend}

	questions, err := e.recommend(ctx, t, chat)
	out := &Turn{RecordID: rec.ID, State: t.machine.state}
	if err != nil {
		t.machine.fail()
		out.State = StateFailed
		if ctx.Err() != nil {
			err = context.Cause(ctx)
		}
		out.Err = err
		gone := errors.Is(err, errTransport) || errors.Is(err, context.Canceled)
		if !gone {
			_ = emit.Error(context.WithoutCancel(ctx), stageRecommend, err)
		}
		if gone || types.IsAppError(err) {
			return out, nil
		}
		return out, err
	}

	if rec.FirstChat {
		if err := e.Chats.UpdateChatRecommend(context.WithoutCancel(ctx), chat.ID, questions); err != nil {
			logger.Warn("保存会话推荐问题失败", zap.Int64("chat_id", chat.ID), zap.Error(err))
		}
	}
	return out, nil
}

func (e *Engine) recommend(ctx context.Context, t *turn, chat *model.Chat) (string, error) {
	rec := t.record
	if err := t.enter(StateRecommend, stageRecommend); err != nil {
		return "", err
	}

	schema := ""
	if rec.Datasource != nil {
		ds, err := e.Datasources.Get(ctx, t.scope.WorkspaceID(), *rec.Datasource)
		if err == nil {
			schema, err = e.Schema.Schema(ctx, ds)
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			logger.Warn("读取表结构失败，推荐问题不带表结构", zap.Int64("record_id", rec.ID), zap.Error(err))
		}
	}

	records, err := e.Chats.ListRecords(ctx, chat.ID)
	if err != nil {
		return "", err
	}
	old := make([]string, 0, len(records))
	for _, r := range records {
		if q := strings.TrimSpace(r.Question); q != "" && r.ID != rec.ID {
			old = append(old, q)
		}
	}

	system, user, err := e.Assembler.Assemble(ctx, prompt.StageGuess, &prompt.Input{
		Lang:           e.lang(t.scope),
		Question:       rec.Question,
		Schema:         schema,
		OldQuestions:   utils.ToJSON(old),
		ArticlesNumber: e.Config.RecommendCount,
	})
	if err != nil {
		return "", stageError(ctx, stageRecommend, "组装提示词失败", err)
	}
	res, err := e.runStage(ctx, t, &stage.Invocation{
		Stage:   prompt.StageGuess,
		Operate: model.OperateRecommendedQuestions,
		System:  system,
		User:    user,
		Extract: stage.ExtractJSONArray,
		Columns: stage.Columns{Answer: "recommended_question_answer", Extracted: "recommended_question"},
	}, false)
	if err != nil {
		return "", err
	}
	if err := t.emit.Recommended(ctx, res.Extracted); err != nil {
		return "", err
	}
	if err := t.emit.Finish(ctx, stageRecommend); err != nil {
		return "", err
	}
	return res.Extracted, t.machine.advance(StateDone)
}
