// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	RAG           RAGConfig           `mapstructure:"rag"`
	Upload        UploadConfig        `mapstructure:"upload"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
// 入库与查询必须使用同一模型，否则相似度会静默劣化。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RAGConfig 存储文本分块、检索与上下文组装相关的参数。
// 字段为零值时由对应的 OrDefault 方法兜底。
type RAGConfig struct {
	ChunkTokens        int     `mapstructure:"chunk_tokens"`
	OverlapTokens      int     `mapstructure:"overlap_tokens"`
	EmbedBatchSize     int     `mapstructure:"embed_batch_size"`
	MinScore           float64 `mapstructure:"min_score"`
	ContextBudget      int     `mapstructure:"context_budget"`
	SnippetRadius      int     `mapstructure:"snippet_radius"`
	HistoryTurns       int     `mapstructure:"history_turns"`
	StuckThresholdSecs int     `mapstructure:"stuck_threshold_secs"`
}

// UploadConfig 存储上传校验相关的配置。
type UploadConfig struct {
	MaxFileSizeMB int `mapstructure:"max_file_size_mb"`
}

// ChunkTokensOrDefault 返回单个分块的 token 预算，默认 1000。
func (c RAGConfig) ChunkTokensOrDefault() int {
	if c.ChunkTokens <= 0 {
		return 1000
	}
	return c.ChunkTokens
}

// OverlapTokensOrDefault 返回相邻分块的重叠 token 数，默认 100。
func (c RAGConfig) OverlapTokensOrDefault() int {
	if c.OverlapTokens <= 0 {
		return 100
	}
	return c.OverlapTokens
}

// EmbedBatchSizeOrDefault 返回单次 Embedding 调用的分块数上限，默认 64。
func (c RAGConfig) EmbedBatchSizeOrDefault() int {
	if c.EmbedBatchSize <= 0 {
		return 64
	}
	return c.EmbedBatchSize
}

// MinScoreOrDefault 返回置信度门限，默认 0.15。
func (c RAGConfig) MinScoreOrDefault() float64 {
	if c.MinScore <= 0 {
		return 0.15
	}
	return c.MinScore
}

// ContextBudgetOrDefault 返回打包上下文的字符预算，默认 2400。
func (c RAGConfig) ContextBudgetOrDefault() int {
	if c.ContextBudget <= 0 {
		return 2400
	}
	return c.ContextBudget
}

// SnippetRadiusOrDefault 返回摘要片段半径（字符），默认 200。
func (c RAGConfig) SnippetRadiusOrDefault() int {
	if c.SnippetRadius <= 0 {
		return 200
	}
	return c.SnippetRadius
}

// HistoryTurnsOrDefault 返回组装 prompt 时携带的最近对话轮数，默认 4。
func (c RAGConfig) HistoryTurnsOrDefault() int {
	if c.HistoryTurns <= 0 {
		return 4
	}
	return c.HistoryTurns
}

// StuckThresholdOrDefault 返回卡死文档清扫的时间阈值（秒），默认 120。
func (c RAGConfig) StuckThresholdOrDefault() int {
	if c.StuckThresholdSecs <= 0 {
		return 120
	}
	return c.StuckThresholdSecs
}

// MaxFileSizeOrDefault 返回单文件大小上限（字节），默认 50MB。
func (c UploadConfig) MaxFileSizeOrDefault() int64 {
	if c.MaxFileSizeMB <= 0 {
		return 50 * 1024 * 1024
	}
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}
