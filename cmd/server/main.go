package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/superfm831010/SQLBothp/common/database"
	"github.com/superfm831010/SQLBothp/common/logger"
	commonRedis "github.com/superfm831010/SQLBothp/common/redis"
	"github.com/superfm831010/SQLBothp/internal/auth"
	"github.com/superfm831010/SQLBothp/internal/config"
	"github.com/superfm831010/SQLBothp/internal/logic"
	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/router"
	"github.com/superfm831010/SQLBothp/internal/svc"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	path := "config/config.yml"
	if p := os.Getenv("SQLBOT_CONFIG"); p != "" {
		path = p
	}

	// 加载配置
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志
	logger.Init(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	defer logger.Sync()
	logger.Info("日志初始化完成")

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()
	db := database.GetDB()

	// 自动迁移数据库表
	if err := db.AutoMigrate(model.All()...); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	// 初始化Redis，未配置时单实例运行（停止与模板广播只在本实例生效）
	if cfg.Redis.Host != "" {
		if err := commonRedis.Init(&cfg.Redis); err != nil {
			if cfg.SQLBot.AuthEnabled {
				log.Fatalf("初始化Redis失败: %v", err)
			}
			logger.Warn("Redis 不可用，以单实例模式运行", zap.Error(err))
			_ = commonRedis.Close()
			commonRedis.SetClient(nil)
		}
		defer commonRedis.Close()
	}
	rdb := commonRedis.GetClient()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化服务上下文
	if err := svc.Init(ctx, cfg, db, rdb); err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}

	// 初始化SaToken (共享 Redis 存储)
	if cfg.SQLBot.AuthEnabled {
		if err := auth.InitSaToken(&cfg.Redis, &cfg.SaToken); err != nil {
			log.Fatalf("初始化SaToken失败: %v", err)
		}
	}

	// 订阅跨实例广播，未连接 Redis 时直接返回
	svc.Ctx.Registry.Listen(ctx)
	logic.ListenTemplateReload(ctx)

	// 补齐缺失的向量
	embeddings := logic.NewEmbeddingLogic(ctx)
	if embeddings.Enabled() {
		_ = svc.Ctx.Pool.Submit("fill-embeddings", func() {
			n, err := embeddings.FillEmptyEmbeddings()
			if err != nil {
				logger.Warn("补齐向量失败", zap.Int("filled", n), zap.Error(err))
				return
			}
			logger.Info("补齐向量完成", zap.Int("filled", n))
		})
	}

	// 创建Fiber应用，流式接口不能设置读写超时
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  0,
		WriteTimeout: 0,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
	})

	// 设置路由
	router.Setup(app, cfg)

	// 启动服务器
	addr := cfg.Server.Addr()
	go func() {
		log.Printf("服务器启动在 http://%s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务器...")

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Printf("服务器关闭失败: %v", err)
	}
	cancel()
	svc.Ctx.Close()
	log.Println("服务器已关闭")
}
