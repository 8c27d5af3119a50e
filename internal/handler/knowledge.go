package handler

import (
	"github.com/superfm831010/SQLBothp/common/response"
	"github.com/superfm831010/SQLBothp/internal/logic"
	"github.com/superfm831010/SQLBothp/internal/middleware"
	"github.com/superfm831010/SQLBothp/internal/validate"

	"github.com/gofiber/fiber/v2"
)

// IDsReq 批量ID请求
type IDsReq struct {
	IDs []int64 `json:"ids"`
}

// EnableReq 启用状态请求
type EnableReq struct {
	Enabled bool `json:"enabled"`
}

// TerminologyPage 术语分页
// GET /api/system/terminology/page
func TerminologyPage(c *fiber.Ctx) error {
	var req logic.PageReq
	if err := c.QueryParser(&req); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	list, total, err := logic.NewTerminologyLogic(c.UserContext(), middleware.Scope(c)).Page(&req)
	if err != nil {
		return fail(c, err)
	}
	return response.Page(c, list, total, req.Page, req.PageSize)
}

// TerminologyGet 术语详情
// GET /api/system/terminology/:id
func TerminologyGet(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "无效的术语ID")
	}
	info, err := logic.NewTerminologyLogic(c.UserContext(), middleware.Scope(c)).Get(id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, info)
}

// TerminologySave 创建或更新术语
// PUT /api/system/terminology
func TerminologySave(c *fiber.Ctx) error {
	var req logic.TerminologyReq
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	id, err := logic.NewTerminologyLogic(c.UserContext(), middleware.Scope(c)).Save(&req)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, id)
}

// TerminologyDelete 删除术语
// DELETE /api/system/terminology
func TerminologyDelete(c *fiber.Ctx) error {
	var req IDsReq
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	if err := logic.NewTerminologyLogic(c.UserContext(), middleware.Scope(c)).Delete(req.IDs); err != nil {
		return fail(c, err)
	}
	return response.Success(c, nil)
}

// TerminologyEnable 启用或停用术语
// POST /api/system/terminology/:id/enable
func TerminologyEnable(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "无效的术语ID")
	}
	var req EnableReq
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	if err := logic.NewTerminologyLogic(c.UserContext(), middleware.Scope(c)).Enable(id, req.Enabled); err != nil {
		return fail(c, err)
	}
	return response.Success(c, nil)
}

// TerminologyBatch 批量导入术语
// POST /api/system/terminology/batch
func TerminologyBatch(c *fiber.Ctx) error {
	var rows []*validate.Row
	if err := c.BodyParser(&rows); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	result, err := logic.NewTerminologyLogic(c.UserContext(), middleware.Scope(c)).BatchCreate(rows)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, result)
}

// DataTrainingPage SQL 示例分页
// GET /api/system/data-training/page
func DataTrainingPage(c *fiber.Ctx) error {
	var req logic.PageReq
	if err := c.QueryParser(&req); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	list, total, err := logic.NewDataTrainingLogic(c.UserContext(), middleware.Scope(c)).Page(&req)
	if err != nil {
		return fail(c, err)
	}
	return response.Page(c, list, total, req.Page, req.PageSize)
}

// DataTrainingGet SQL 示例详情
// GET /api/system/data-training/:id
func DataTrainingGet(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "无效的示例ID")
	}
	row, err := logic.NewDataTrainingLogic(c.UserContext(), middleware.Scope(c)).Get(id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, row)
}

// DataTrainingSave 创建或更新 SQL 示例
// PUT /api/system/data-training
func DataTrainingSave(c *fiber.Ctx) error {
	var req logic.DataTrainingReq
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	id, err := logic.NewDataTrainingLogic(c.UserContext(), middleware.Scope(c)).Save(&req)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, id)
}

// DataTrainingDelete 删除 SQL 示例
// DELETE /api/system/data-training
func DataTrainingDelete(c *fiber.Ctx) error {
	var req IDsReq
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	if err := logic.NewDataTrainingLogic(c.UserContext(), middleware.Scope(c)).Delete(req.IDs); err != nil {
		return fail(c, err)
	}
	return response.Success(c, nil)
}

// DataTrainingEnable 启用或停用 SQL 示例
// POST /api/system/data-training/:id/enable
func DataTrainingEnable(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "无效的示例ID")
	}
	var req EnableReq
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	if err := logic.NewDataTrainingLogic(c.UserContext(), middleware.Scope(c)).Enable(id, req.Enabled); err != nil {
		return fail(c, err)
	}
	return response.Success(c, nil)
}

// DataTrainingBatch 批量导入 SQL 示例
// POST /api/system/data-training/batch
func DataTrainingBatch(c *fiber.Ctx) error {
	var rows []*validate.Row
	if err := c.BodyParser(&rows); err != nil {
		return response.BadRequest(c, "参数解析失败")
	}
	result, err := logic.NewDataTrainingLogic(c.UserContext(), middleware.Scope(c)).BatchCreate(rows)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, result)
}
