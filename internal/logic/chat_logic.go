package logic

import (
	"context"
	"strings"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/common/utils"
	"github.com/superfm831010/SQLBothp/internal/command"
	"github.com/superfm831010/SQLBothp/internal/ctxutil"
	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/orchestrator"
	"github.com/superfm831010/SQLBothp/internal/sse"
	"github.com/superfm831010/SQLBothp/internal/svc"
	"github.com/superfm831010/SQLBothp/internal/types"

	"go.uber.org/zap"
)

// 会话标题最大长度（字符）
const briefMaxLen = 20

// ChatLogic 会话与问答
type ChatLogic struct {
	ctx   context.Context
	scope ctxutil.Scope
}

// NewChatLogic 创建会话逻辑
func NewChatLogic(ctx context.Context, scope ctxutil.Scope) *ChatLogic {
	return &ChatLogic{ctx: ctx, scope: scope}
}

// StartChatReq 创建会话请求
type StartChatReq struct {
	Datasource *int64 `json:"datasource"`
	Question   string `json:"question"`
	Origin     int32  `json:"origin"`
}

// RenameChatReq 重命名请求
type RenameChatReq struct {
	ID    int64  `json:"id"`
	Brief string `json:"brief"`
}

// QuestionReq 提问请求
type QuestionReq struct {
	ChatID   int64  `json:"chat_id"`
	Question string `json:"question"`
}

// ChatDetail 会话及全部记录
type ChatDetail struct {
	*model.Chat
	Records []*model.ChatRecord `json:"records"`
}

// Start 创建会话，指定数据源时校验其存在并记录方言
func (l *ChatLogic) Start(req *StartChatReq) (*model.Chat, error) {
	chat := &model.Chat{
		OID:      l.scope.WorkspaceID(),
		CreateBy: l.scope.UserID,
		Origin:   req.Origin,
		Brief:    brief(req.Question),
	}
	if req.Datasource != nil {
		ds, err := svc.Ctx.Datasources.Get(l.ctx, chat.OID, *req.Datasource)
		if err != nil {
			return nil, err
		}
		chat.Datasource = &ds.ID
		chat.EngineType = ds.Type
	}
	if err := svc.Ctx.Chats.CreateChat(l.ctx, chat); err != nil {
		return nil, err
	}
	logger.Info("创建会话", append(l.scope.Fields(), zap.Int64("chat_id", chat.ID))...)
	return chat, nil
}

// List 当前用户的会话列表
func (l *ChatLogic) List() ([]*model.Chat, error) {
	return svc.Ctx.Chats.ListChats(l.ctx, l.scope.WorkspaceID(), l.scope.UserID)
}

// Get 会话详情
func (l *ChatLogic) Get(id int64) (*ChatDetail, error) {
	chat, err := svc.Ctx.Chats.GetChat(l.ctx, l.scope.WorkspaceID(), id)
	if err != nil {
		return nil, err
	}
	records, err := svc.Ctx.Chats.ListRecords(l.ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	return &ChatDetail{Chat: chat, Records: records}, nil
}

// Rename 修改会话标题
func (l *ChatLogic) Rename(req *RenameChatReq) (string, error) {
	b := brief(req.Brief)
	if b == "" {
		return "", types.NewAppError(types.ErrCodeInvalidParameter, "标题不能为空")
	}
	if err := svc.Ctx.Chats.RenameChat(l.ctx, l.scope.WorkspaceID(), req.ID, b); err != nil {
		return "", err
	}
	return b, nil
}

// Delete 删除会话
func (l *ChatLogic) Delete(id int64) error {
	return svc.Ctx.Chats.DeleteChat(l.ctx, l.scope.WorkspaceID(), id)
}

// record 读取记录并校验所属工作空间
func (l *ChatLogic) record(id int64) (*model.ChatRecord, error) {
	rec, err := svc.Ctx.Chats.GetRecord(l.ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := svc.Ctx.Chats.GetChat(l.ctx, l.scope.WorkspaceID(), rec.ChatID); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordData 记录的查询结果，未执行时返回空对象
func (l *ChatLogic) RecordData(id int64) (map[string]any, error) {
	rec, err := l.record(id)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if strings.TrimSpace(rec.Data) == "" {
		return out, nil
	}
	if err := utils.UnmarshalString(rec.Data, &out); err != nil {
		return nil, types.NewAppErrorWithCause(types.ErrCodeUnknown, "记录数据格式错误", err)
	}
	return out, nil
}

// RecordPredictData 记录的预测数据，未预测时返回空数组
func (l *ChatLogic) RecordPredictData(id int64) ([]any, error) {
	rec, err := l.record(id)
	if err != nil {
		return nil, err
	}
	out := []any{}
	if strings.TrimSpace(rec.PredictData) == "" {
		return out, nil
	}
	if err := utils.UnmarshalString(rec.PredictData, &out); err != nil {
		return nil, types.NewAppErrorWithCause(types.ErrCodeUnknown, "预测数据格式错误", err)
	}
	return out, nil
}

// Question 提问并推送事件
func (l *ChatLogic) Question(req *QuestionReq, sink sse.Sink) (*orchestrator.Turn, error) {
	return svc.Ctx.Engine.Question(l.ctx, l.scope, orchestrator.QuestionRequest{
		ChatID:   req.ChatID,
		Question: req.Question,
	}, sink)
}

// Action 对记录执行分析或预测
func (l *ChatLogic) Action(recordID int64, action string, sink sse.Sink) (*orchestrator.Turn, error) {
	kind := command.Command(strings.ToLower(strings.TrimSpace(action)))
	return svc.Ctx.Engine.Branch(l.ctx, l.scope, recordID, kind, sink)
}

// Recommend 生成推荐问题
func (l *ChatLogic) Recommend(recordID int64, sink sse.Sink) (*orchestrator.Turn, error) {
	return svc.Ctx.Engine.Recommend(l.ctx, l.scope, recordID, sink)
}

// Stop 停止记录所在的问答，可能在其他实例上运行
func (l *ChatLogic) Stop(recordID int64) error {
	if _, err := l.record(recordID); err != nil {
		return err
	}
	return svc.Ctx.Registry.Stop(l.ctx, recordID)
}

func brief(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > briefMaxLen {
		return string(r[:briefMaxLen])
	}
	return s
}
