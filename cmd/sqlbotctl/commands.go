package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/superfm831010/SQLBothp/common/database"
	"github.com/superfm831010/SQLBothp/common/logger"
	commonRedis "github.com/superfm831010/SQLBothp/common/redis"
	"github.com/superfm831010/SQLBothp/common/utils"
	"github.com/superfm831010/SQLBothp/internal/command"
	"github.com/superfm831010/SQLBothp/internal/config"
	"github.com/superfm831010/SQLBothp/internal/logic"
	"github.com/superfm831010/SQLBothp/internal/svc"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// parseOutput parse 命令的输出
type parseOutput struct {
	Command  string   `json:"command"`
	Text     string   `json:"text"`
	TargetID *int64   `json:"target_id,omitempty"`
	Error    string   `json:"error,omitempty"`
	Tokens   []string `json:"tokens,omitempty"`
}

var parseCmd = &cobra.Command{
	Use:   "parse <text>",
	Short: "解析问题中的快捷指令",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := command.Parse(strings.Join(args, " "))
		out := parseOutput{Command: string(r.Command), Text: r.Text, TargetID: r.TargetID}
		if r.Err != nil {
			out.Error = r.Err.Message
			out.Tokens = r.Err.Tokens
		}
		fmt.Fprintln(cmd.OutOrStdout(), utils.ToJSON(out))
		return nil
	},
}

var fillEmbeddingsCmd = &cobra.Command{
	Use:   "fill-embeddings",
	Short: "补齐术语与 SQL 示例缺失的向量",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		if !cfg.Embedding.Enabled {
			return errors.New("未启用向量模型")
		}
		defer logger.Sync()

		if err := database.Init(&cfg.Database); err != nil {
			return fmt.Errorf("初始化数据库失败: %w", err)
		}
		defer database.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		if err := svc.Init(ctx, cfg, database.GetDB(), nil); err != nil {
			return fmt.Errorf("初始化服务失败: %w", err)
		}
		defer svc.Ctx.Close()

		n, err := logic.NewEmbeddingLogic(ctx).FillEmptyEmbeddings()
		fmt.Fprintf(cmd.OutOrStdout(), "已补齐 %d 条向量\n", n)
		return err
	},
}

var reloadTemplatesCmd = &cobra.Command{
	Use:   "reload-templates",
	Short: "通知所有服务实例重新加载提示词模板",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if err := commonRedis.Init(&cfg.Redis); err != nil {
			return fmt.Errorf("初始化Redis失败: %w", err)
		}
		defer commonRedis.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		if err := logic.Broadcast(ctx, "sqlbotctl-"+uuid.NewString()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "已发送模板重新加载通知")
		return nil
	},
}

// load 加载配置并初始化日志，命令行只输出到控制台
func load() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: "console",
		Output: "stdout",
	})
	return cfg, nil
}
