package router

import (
	commonMiddleware "github.com/superfm831010/SQLBothp/common/middleware"
	"github.com/superfm831010/SQLBothp/internal/config"
	"github.com/superfm831010/SQLBothp/internal/handler"
	"github.com/superfm831010/SQLBothp/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// Setup 设置路由
func Setup(app *fiber.App, cfg *config.Config) {
	// 全局中间件
	app.Use(commonMiddleware.Recover())
	app.Use(commonMiddleware.RequestID())
	app.Use(commonMiddleware.Logger())
	app.Use(commonMiddleware.CORS(cfg.SQLBot.AllowOrigins))

	// 健康检查
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"app":     cfg.App.Name,
			"version": cfg.App.Version,
		})
	})

	api := app.Group("/api", middleware.AuthMiddleware(cfg.SQLBot.AuthEnabled))

	// 会话与问答
	chat := api.Group("/chat")
	chat.Post("/start", handler.ChatStart)
	chat.Get("/list", handler.ChatList)
	chat.Post("/rename", handler.ChatRename)
	chat.Post("/question", handler.ChatQuestion)
	chat.Post("/recommend_questions/:id", handler.RecommendQuestions)
	chat.Get("/record/:id/data", handler.RecordData)
	chat.Get("/record/:id/predict_data", handler.RecordPredictData)
	chat.Post("/record/:id/stop", handler.RecordStop)
	chat.Post("/record/:id/:action", handler.RecordAction)
	chat.Get("/:id", handler.ChatGet)
	chat.Delete("/:id", handler.ChatDelete)

	system := api.Group("/system")

	// 术语
	terminology := system.Group("/terminology")
	terminology.Get("/page", handler.TerminologyPage)
	terminology.Put("/", handler.TerminologySave)
	terminology.Delete("/", handler.TerminologyDelete)
	terminology.Post("/batch", handler.TerminologyBatch)
	terminology.Get("/:id", handler.TerminologyGet)
	terminology.Post("/:id/enable", handler.TerminologyEnable)

	// SQL 示例
	training := system.Group("/data-training")
	training.Get("/page", handler.DataTrainingPage)
	training.Put("/", handler.DataTrainingSave)
	training.Delete("/", handler.DataTrainingDelete)
	training.Post("/batch", handler.DataTrainingBatch)
	training.Get("/:id", handler.DataTrainingGet)
	training.Post("/:id/enable", handler.DataTrainingEnable)

	// 模板与向量
	system.Post("/template/reload", handler.TemplateReload)
	system.Post("/embedding/fill", handler.FillEmbeddings)
}
