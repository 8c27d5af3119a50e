package handler

import (
	"github.com/superfm831010/SQLBothp/common/response"
	"github.com/superfm831010/SQLBothp/internal/logic"

	"github.com/gofiber/fiber/v2"
)

// TemplateReload 重新加载提示词模板并通知其他实例
// POST /api/system/template/reload
func TemplateReload(c *fiber.Ctx) error {
	result, err := logic.NewTemplateLogic(c.UserContext()).Reload()
	if err != nil {
		return response.Error(c, "模板加载失败: "+err.Error())
	}
	return response.Success(c, result)
}

// FillEmbeddings 补齐缺失的向量
// POST /api/system/embedding/fill
func FillEmbeddings(c *fiber.Ctx) error {
	l := logic.NewEmbeddingLogic(c.UserContext())
	if !l.Enabled() {
		return response.Error(c, "未启用向量模型")
	}
	n, err := l.FillEmptyEmbeddings()
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, fiber.Map{"filled": n})
}
