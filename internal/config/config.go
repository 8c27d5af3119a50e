package config

import (
	"os"
	"sync"
	"time"

	commonConfig "github.com/superfm831010/SQLBothp/common/config"

	"gopkg.in/yaml.v3"
)

// SQLBotConfig 问数引擎配置
type SQLBotConfig struct {
	TemplatesDir     string `yaml:"templates_dir"`      // 为空时使用内置模板
	StageTimeout     int    `yaml:"stage_timeout"`      // 单阶段超时（秒）
	WorkerPoolSize   int    `yaml:"worker_pool_size"`   // 阻塞 IO 协程池大小
	EnableQueryLimit bool   `yaml:"enable_query_limit"` // SQL 生成是否附带行数限制
	Lang             string `yaml:"lang"`               // 默认回答语言
	RecommendCount   int    `yaml:"recommend_count"`    // 推荐问题个数
	AuthEnabled      bool   `yaml:"auth_enabled"`       // 是否校验 sa-token
	AllowOrigins     string `yaml:"allow_origins"`
}

// StageTimeoutDuration 单阶段超时
func (c SQLBotConfig) StageTimeoutDuration() time.Duration {
	if c.StageTimeout <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.StageTimeout) * time.Second
}

// LLMConfig 大模型配置（OpenAI 兼容协议）
type LLMConfig struct {
	Provider    string   `yaml:"provider"` // openai, deepseek, azure, custom
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	APIVersion  string   `yaml:"api_version"`
	Model       string   `yaml:"model"`
	Temperature *float32 `yaml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens"`
}

// EmbeddingConfig 向量模型配置
type EmbeddingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	Timeout   int    `yaml:"timeout"` // 秒
}

// ChannelConfig 单个知识库的语义检索参数
type ChannelConfig struct {
	Similarity float64 `yaml:"similarity"`
	TopCount   int     `yaml:"top_count"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	Terminology  ChannelConfig `yaml:"terminology"`
	DataTraining ChannelConfig `yaml:"data_training"`
	MaxResults   int           `yaml:"max_results"`
}

// QdrantConfig Qdrant 向量库配置
type QdrantConfig struct {
	Enabled                bool   `yaml:"enabled"`
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	APIKey                 string `yaml:"api_key"`
	UseTLS                 bool   `yaml:"use_tls"`
	TerminologyCollection  string `yaml:"terminology_collection"`
	DataTrainingCollection string `yaml:"data_training_collection"`
	Dimension              int    `yaml:"dimension"`
}

// Config 应用配置
type Config struct {
	commonConfig.Config `yaml:",inline"`
	SQLBot              SQLBotConfig    `yaml:"sqlbot"`
	LLM                 LLMConfig       `yaml:"llm"`
	Embedding           EmbeddingConfig `yaml:"embedding"`
	Retrieval           RetrievalConfig `yaml:"retrieval"`
	Qdrant              QdrantConfig    `yaml:"qdrant"`
}

var (
	globalConfig *Config
	once         sync.Once
)

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	once.Do(func() {
		globalConfig = cfg
		// 同步到公共配置
		commonConfig.SetConfig(&cfg.Config)
	})

	return cfg, nil
}

// Default 默认配置，配置文件中的值会覆盖这里
func Default() *Config {
	return &Config{
		SQLBot: SQLBotConfig{
			StageTimeout:     120,
			WorkerPoolSize:   32,
			EnableQueryLimit: true,
			Lang:             "简体中文",
			RecommendCount:   4,
		},
		Embedding: EmbeddingConfig{
			BatchSize: 20,
			Timeout:   60,
		},
		Retrieval: RetrievalConfig{
			Terminology:  ChannelConfig{Similarity: 0.4, TopCount: 10},
			DataTraining: ChannelConfig{Similarity: 0.4, TopCount: 10},
			MaxResults:   20,
		},
		Qdrant: QdrantConfig{
			Host:                   "127.0.0.1",
			Port:                   6334,
			TerminologyCollection:  "sqlbot_terminology",
			DataTrainingCollection: "sqlbot_data_training",
		},
	}
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return globalConfig
}
