package auth

import (
	"fmt"

	"github.com/superfm831010/SQLBothp/common/config"
	"github.com/superfm831010/SQLBothp/common/logger"

	"github.com/click33/sa-token-go/core"
	satokenConfig "github.com/click33/sa-token-go/core/config"
	satokenRedis "github.com/click33/sa-token-go/storage/redis"
	"github.com/click33/sa-token-go/stputil"
	"go.uber.org/zap"
)

var manager *core.Manager

// InitSaToken 初始化 SaToken，Token 存储与登录服务共享 Redis
func InitSaToken(redisCfg *config.RedisConfig, cfg *config.SaTokenConfig) error {
	storage, err := satokenRedis.NewStorage(redisURL(redisCfg))
	if err != nil {
		return err
	}

	tokenStyle := parseTokenStyle(cfg.TokenStyle)
	builder := core.NewBuilder().
		Storage(storage).
		TokenName(cfg.TokenName).
		TokenStyle(tokenStyle).
		Timeout(cfg.Timeout).
		ActiveTimeout(cfg.ActiveTimeout).
		IsConcurrent(cfg.IsConcurrent).
		IsShare(cfg.IsShare).
		MaxLoginCount(cfg.MaxLoginCount).
		IsLog(cfg.IsLog)

	if tokenStyle == satokenConfig.TokenStyleJWT && cfg.JwtSecretKey != "" {
		builder = builder.JwtSecretKey(cfg.JwtSecretKey)
	}

	manager = builder.Build()
	stputil.SetManager(manager)

	logger.Info("SaToken 初始化完成", zap.String("token_name", cfg.TokenName), zap.String("style", cfg.TokenStyle))
	return nil
}

// redisURL 构建 redis://:password@host:port/db
func redisURL(cfg *config.RedisConfig) string {
	if cfg.Password != "" {
		return fmt.Sprintf("redis://:%s@%s/%d", cfg.Password, cfg.Addr(), cfg.DB)
	}
	return fmt.Sprintf("redis://%s/%d", cfg.Addr(), cfg.DB)
}

// parseTokenStyle 解析Token风格配置
func parseTokenStyle(style string) satokenConfig.TokenStyle {
	switch style {
	case "simple-uuid":
		return satokenConfig.TokenStyleSimple
	case "random-32":
		return satokenConfig.TokenStyleRandom32
	case "random-64":
		return satokenConfig.TokenStyleRandom64
	case "random-128":
		return satokenConfig.TokenStyleRandom128
	case "jwt":
		return satokenConfig.TokenStyleJWT
	default:
		return satokenConfig.TokenStyleUUID
	}
}

// Enabled 是否已初始化
func Enabled() bool {
	return manager != nil
}

// IsLogin 判断是否登录
func IsLogin(tokenValue string) bool {
	return stputil.IsLogin(tokenValue)
}

// GetLoginId 获取登录ID
func GetLoginId(tokenValue string) (string, error) {
	return stputil.GetLoginID(tokenValue)
}
