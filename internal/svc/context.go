package svc

import (
	"context"
	"time"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/internal/config"
	"github.com/superfm831010/SQLBothp/internal/datasource"
	"github.com/superfm831010/SQLBothp/internal/embedding"
	"github.com/superfm831010/SQLBothp/internal/llm"
	"github.com/superfm831010/SQLBothp/internal/orchestrator"
	"github.com/superfm831010/SQLBothp/internal/prompt"
	"github.com/superfm831010/SQLBothp/internal/retriever"
	"github.com/superfm831010/SQLBothp/internal/stage"
	"github.com/superfm831010/SQLBothp/internal/store"
	"github.com/superfm831010/SQLBothp/internal/vector"
	"github.com/superfm831010/SQLBothp/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceContext 全局服务上下文
type ServiceContext struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Chats         *store.ChatStore
	Terminologies *store.TerminologyStore
	Trainings     *store.TrainingStore
	Datasources   *store.DatasourceStore

	Pool      *worker.Pool
	Connector *datasource.Connector
	Embedder  embedding.Embedder // 未启用时为 nil
	Index     vector.Index       // 未启用 Qdrant 时为 nil
	Prompts   *prompt.Store
	Registry  *orchestrator.Registry
	Engine    *orchestrator.Engine

	qdrant *vector.QdrantIndex
}

var Ctx *ServiceContext

// Init 初始化服务上下文
func Init(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) error {
	s, err := New(ctx, cfg, db, rdb)
	if err != nil {
		return err
	}
	Ctx = s
	return nil
}

// New 按配置组装全部依赖
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*ServiceContext, error) {
	s := &ServiceContext{
		Config:        cfg,
		DB:            db,
		Redis:         rdb,
		Chats:         store.NewChatStore(db),
		Terminologies: store.NewTerminologyStore(db),
		Trainings:     store.NewTrainingStore(db),
		Datasources:   store.NewDatasourceStore(db),
		Connector:     datasource.NewConnector(),
		Prompts:       prompt.NewStore(cfg.SQLBot.TemplatesDir),
		Registry:      orchestrator.NewRegistry(),
	}

	pool, err := worker.NewPool(cfg.SQLBot.WorkerPoolSize)
	if err != nil {
		return nil, err
	}
	s.Pool = pool

	if err := s.Prompts.Load(); err != nil {
		s.Close()
		return nil, err
	}

	// 接口值只在启用时赋值，避免出现带类型的 nil
	if e := embedding.NewOpenAIEmbedder(&cfg.Embedding); e != nil {
		s.Embedder = e
	}
	if cfg.Qdrant.Enabled && s.Embedder != nil {
		index, err := vector.NewQdrantIndex(&cfg.Qdrant)
		if err != nil {
			logger.Warn("Qdrant 连接失败，使用进程内向量检索", zap.Error(err))
		} else {
			s.qdrant = index
			s.Index = index
		}
	}

	client, err := llm.NewOpenAIClient(ctx, &cfg.LLM)
	if err != nil {
		s.Close()
		return nil, err
	}

	var opts []retriever.Option
	if s.Embedder != nil {
		opts = append(opts, retriever.WithEmbedder(s.Embedder))
	}
	if s.Index != nil {
		opts = append(opts, retriever.WithIndex(s.Index, cfg.Qdrant.TerminologyCollection, cfg.Qdrant.DataTrainingCollection))
	}

	s.Engine = orchestrator.New(orchestrator.Deps{
		Chats:       s.Chats,
		Datasources: s.Datasources,
		Retriever:   retriever.New(s.Terminologies, s.Trainings, cfg.Retrieval, opts...),
		Assembler:   prompt.NewAssembler(s.Prompts),
		Stages:      stage.NewExecutor(client, s.Chats, stage.Defaults(cfg.SQLBot.StageTimeoutDuration())...),
		Executor:    datasource.NewGormExecutor(s.Connector, pool),
		Schema:      datasource.NewMigratorSchemaReader(s.Connector, pool),
		Registry:    s.Registry,
		Config:      cfg.SQLBot,
	})
	return s, nil
}

// Close 释放协程池与外部连接
func (s *ServiceContext) Close() {
	if s.Pool != nil {
		if err := s.Pool.Close(10 * time.Second); err != nil {
			logger.Warn("协程池关闭超时", zap.Error(err))
		}
	}
	if s.Connector != nil {
		s.Connector.Close()
	}
	if s.qdrant != nil {
		if err := s.qdrant.Close(); err != nil {
			logger.Warn("关闭 Qdrant 连接失败", zap.Error(err))
		}
	}
}
