// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	SQL   SQLConfig   `mapstructure:"sql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// SQLConfig 存储关系型数据库的配置。Driver 可选 mysql、postgres、sqlite。
type SQLConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不启用设置缓存。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 存储校验外部认证模块签发的 JWT 所需的配置。
type AuthConfig struct {
	Secret       string   `mapstructure:"secret"`
	AllowedRoles []string `mapstructure:"allowed_roles"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发布用量事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ChatConfig 存储对话编排相关的配置。
type ChatConfig struct {
	DefaultModel           string  `mapstructure:"default_model"`
	DefaultTemperature     float64 `mapstructure:"default_temperature"`
	SystemPreamble         string  `mapstructure:"system_preamble"`
	MaxMessageLength       int     `mapstructure:"max_message_length"`
	ProviderTimeoutSeconds int     `mapstructure:"provider_timeout_seconds"`
	// DefaultDailyLimit 是未单独设置上限的用户每天可发送的消息数，0 表示不限制。
	DefaultDailyLimit int `mapstructure:"default_daily_limit"`
	// UnlimitedRoles 中的角色不受每日上限约束。
	UnlimitedRoles []string `mapstructure:"unlimited_roles"`
}

// ProviderConfig 描述一个 OpenAI 兼容或 Google 风格的模型服务。
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	// FoldSystem 为 true 时，system 消息不单独发送，而是拼接到第一条 user 消息之前。
	FoldSystem bool `mapstructure:"fold_system"`
}

// MallowConfig 描述无状态的 Mallow 服务。
type MallowConfig struct {
	URL string `mapstructure:"url"`
}

// ProvidersConfig 汇总所有模型服务的凭据，启动时读取一次，显式传入 llm.NewRegistry。
type ProvidersConfig struct {
	Gemini    ProviderConfig `mapstructure:"gemini"`
	NVIDIA    ProviderConfig `mapstructure:"nvidia"`
	Groq      ProviderConfig `mapstructure:"groq"`
	Cerebras  ProviderConfig `mapstructure:"cerebras"`
	SambaNova ProviderConfig `mapstructure:"sambanova"`
	Mallow    MallowConfig   `mapstructure:"mallow"`
}

// envBindings 允许通过环境变量覆盖密钥，只在加载时读取。
var envBindings = map[string]string{
	"providers.gemini.api_key":    "GEMINI_API_KEY",
	"providers.nvidia.api_key":    "NVIDIA_API_KEY",
	"providers.groq.api_key":      "GROQ_API_KEY",
	"providers.cerebras.api_key":  "CEREBRAS_API_KEY",
	"providers.sambanova.api_key": "SAMBANOVA_API_KEY",
	"providers.mallow.url":        "MALLOW_URL",
	"auth.secret":                 "AUTH_JWT_SECRET",
	"database.sql.dsn":            "DATABASE_DSN",
}

// setDefaults 设置未在配置文件中出现时使用的默认值。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3030")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.sql.driver", "mysql")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "chat-usage")
	v.SetDefault("kafka.group_id", "mbk-chat-usage-consumer")
	v.SetDefault("chat.default_model", "gemini/gemini-1.5-flash")
	v.SetDefault("chat.default_temperature", 1.0)
	v.SetDefault("chat.system_preamble", "You are a helpful assistant. Answer clearly and concisely.")
	v.SetDefault("chat.max_message_length", 32000)
	v.SetDefault("chat.provider_timeout_seconds", 60)
	v.SetDefault("chat.default_daily_limit", 100)
	v.SetDefault("chat.unlimited_roles", []string{"SuperAdmin"})
	v.SetDefault("providers.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("providers.nvidia.base_url", "https://integrate.api.nvidia.com/v1")
	v.SetDefault("providers.groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("providers.cerebras.base_url", "https://api.cerebras.ai/v1")
	v.SetDefault("providers.sambanova.base_url", "https://api.sambanova.ai/v1")
}

// Load 从指定路径读取 YAML 文件并返回解析后的配置，不修改全局变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
