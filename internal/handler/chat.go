package handler

import (
	"context"

	"github.com/superfm831010/SQLBothp/common/response"
	"github.com/superfm831010/SQLBothp/internal/ctxutil"
	"github.com/superfm831010/SQLBothp/internal/logic"
	"github.com/superfm831010/SQLBothp/internal/middleware"
	"github.com/superfm831010/SQLBothp/internal/orchestrator"
	"github.com/superfm831010/SQLBothp/internal/sse"

	"github.com/gofiber/fiber/v2"
)

// ChatStart 创建会话
// POST /api/chat/start
func ChatStart(c *fiber.Ctx) error {
	var req logic.StartChatReq
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	chat, err := logic.NewChatLogic(c.UserContext(), middleware.Scope(c)).Start(&req)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, chat)
}

// ChatList 会话列表
// GET /api/chat/list
func ChatList(c *fiber.Ctx) error {
	list, err := logic.NewChatLogic(c.UserContext(), middleware.Scope(c)).List()
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, list)
}

// ChatGet 会话详情
// GET /api/chat/:id
func ChatGet(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "无效的会话ID")
	}
	detail, err := logic.NewChatLogic(c.UserContext(), middleware.Scope(c)).Get(id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, detail)
}

// ChatRename 重命名会话
// POST /api/chat/rename
func ChatRename(c *fiber.Ctx) error {
	var req logic.RenameChatReq
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	if req.ID <= 0 {
		return response.BadRequest(c, "无效的会话ID")
	}
	brief, err := logic.NewChatLogic(c.UserContext(), middleware.Scope(c)).Rename(&req)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, brief)
}

// ChatDelete 删除会话
// DELETE /api/chat/:id
func ChatDelete(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "无效的会话ID")
	}
	if err := logic.NewChatLogic(c.UserContext(), middleware.Scope(c)).Delete(id); err != nil {
		return fail(c, err)
	}
	return response.Success(c, nil)
}

// RecordData 记录的查询结果
// GET /api/chat/record/:id/data
func RecordData(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "无效的记录ID")
	}
	data, err := logic.NewChatLogic(c.UserContext(), middleware.Scope(c)).RecordData(id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, data)
}

// RecordPredictData 记录的预测数据
// GET /api/chat/record/:id/predict_data
func RecordPredictData(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "无效的记录ID")
	}
	data, err := logic.NewChatLogic(c.UserContext(), middleware.Scope(c)).RecordPredictData(id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, data)
}

// ChatQuestion 提问，SSE 推送各阶段结果
// POST /api/chat/question
func ChatQuestion(c *fiber.Ctx) error {
	var req logic.QuestionReq
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	if req.ChatID <= 0 {
		return response.BadRequest(c, "无效的会话ID")
	}
	return stream(c, func(ctx context.Context, scope ctxutil.Scope, sink sse.Sink) (*orchestrator.Turn, error) {
		return logic.NewChatLogic(ctx, scope).Question(&req, sink)
	})
}

// RecordAction 对记录执行分析或预测
// POST /api/chat/record/:id/:action
func RecordAction(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "无效的记录ID")
	}
	action := c.Params("action")
	return stream(c, func(ctx context.Context, scope ctxutil.Scope, sink sse.Sink) (*orchestrator.Turn, error) {
		return logic.NewChatLogic(ctx, scope).Action(id, action, sink)
	})
}

// RecommendQuestions 生成推荐问题
// POST /api/chat/recommend_questions/:id
func RecommendQuestions(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "无效的记录ID")
	}
	return stream(c, func(ctx context.Context, scope ctxutil.Scope, sink sse.Sink) (*orchestrator.Turn, error) {
		return logic.NewChatLogic(ctx, scope).Recommend(id, sink)
	})
}

// RecordStop 停止问答
// POST /api/chat/record/:id/stop
func RecordStop(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "无效的记录ID")
	}
	if err := logic.NewChatLogic(c.UserContext(), middleware.Scope(c)).Stop(id); err != nil {
		return fail(c, err)
	}
	return response.Success(c, nil)
}
