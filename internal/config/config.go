package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/valis-ai/valis/internal/pkg/ratelimit"
)

type AppCfg struct {
	Name string
	Env  string
	Host string
	Port int
}

type RootCfg struct {
	// AdminBearerToken guards the role management endpoints. When empty a
	// random token is generated at startup.
	AdminBearerToken string
}

type LogCfg struct {
	Level string
}

type ChatCfg struct {
	RateLimits     map[string]ratelimit.Limit
	WindowSec      int
	HistoryCap     int
	RecentOnJoin   int
	DefaultChannel string
}

type AgentCfg struct {
	MaxIterations       int
	ChatHistoryWindow   int
	AdaptiveThreshold   float64
	MaxSuggestions      int
	ClassifierMaxTokens int
}

type SandboxCfg struct {
	Enabled           bool
	Image             string
	WorkspaceRoot     string
	ExecTimeoutSec    int
	InstallTimeoutSec int
	MemoryMB          int64
	CPUs              float64
	NetworkMode       string
}

type LLMCfg struct {
	BaseURL    string
	APIKey     string
	Model      string
	ImageModel string
	MaxTokens  int
	TimeoutSec int
}

type MemoryCfg struct {
	Backend   string
	Size      int
	KeyPrefix string
}

type RedisCfg struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type MQCfg struct {
	Enabled  bool
	URL      string
	Exchange string
}

type S3Cfg struct {
	Enabled          bool
	Endpoint         string
	Region           string
	AccessKey        string
	SecretKey        string
	Bucket           string
	UsePathStyle     bool
	PresignExpireSec int
	SSE              string
}

type TelemetryCfg struct {
	Enabled      bool
	OtlpEndpoint string
	SampleRatio  float64
}

type Config struct {
	App       AppCfg
	Root      RootCfg
	Log       LogCfg
	Chat      ChatCfg
	Agent     AgentCfg
	Sandbox   SandboxCfg
	LLM       LLMCfg
	Memory    MemoryCfg
	Redis     RedisCfg
	RabbitMQ  MQCfg
	S3        S3Cfg
	Telemetry TelemetryCfg
}

func Load() (*Config, error) {
	base := viper.New()
	base.SetConfigName("config")
	base.SetConfigType("yaml")
	base.AddConfigPath("./configs")
	base.AddConfigPath(".")
	base.AutomaticEnv()
	base.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	base.SetEnvPrefix("APP") // e.g. APP_LLM_APIKEY -> llm.apiKey

	setDefaults(base)

	if err := base.ReadInConfig(); err == nil {
		// expand ${ENV} references once before parsing
		raw, err := os.ReadFile(base.ConfigFileUsed())
		if err != nil {
			return nil, err
		}
		expanded := os.ExpandEnv(string(raw))

		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return nil, err
		}
		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.SetEnvPrefix("APP")
		setDefaults(v)

		return decode(v)
	}

	// env + defaults only
	return decode(base)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	// a partial rateLimits map in the file replaces the whole default table,
	// so fill missing tiers back in
	defaults := DefaultRateLimits()
	if cfg.Chat.RateLimits == nil {
		cfg.Chat.RateLimits = defaults
	}
	for tier, lim := range defaults {
		if _, ok := cfg.Chat.RateLimits[tier]; !ok {
			cfg.Chat.RateLimits[tier] = lim
		}
	}
	return cfg, nil
}

// DefaultRateLimits is the per-role allowance used when none is configured.
func DefaultRateLimits() map[string]ratelimit.Limit {
	return map[string]ratelimit.Limit{
		"guest":     {MessagesPerMinute: 5, CharactersPerMessage: 500},
		"user":      {MessagesPerMinute: 10, CharactersPerMessage: 1000},
		"creator":   {MessagesPerMinute: 20, CharactersPerMessage: 2000},
		"founder":   {MessagesPerMinute: 50, CharactersPerMessage: 5000},
		"moderator": {MessagesPerMinute: 100, CharactersPerMessage: 10000},
		"admin":     {MessagesPerMinute: 1000, CharactersPerMessage: 50000},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "valis")
	v.SetDefault("app.env", "debug")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("log.level", "info")

	v.SetDefault("chat.windowSec", 60)
	v.SetDefault("chat.historyCap", 1000)
	v.SetDefault("chat.recentOnJoin", 50)
	v.SetDefault("chat.defaultChannel", "general")

	v.SetDefault("agent.maxIterations", 3)
	v.SetDefault("agent.chatHistoryWindow", 10)
	v.SetDefault("agent.adaptiveThreshold", 0.7)
	v.SetDefault("agent.maxSuggestions", 3)
	v.SetDefault("agent.classifierMaxTokens", 500)

	v.SetDefault("sandbox.enabled", true)
	v.SetDefault("sandbox.image", "python:3.12-slim")
	v.SetDefault("sandbox.workspaceRoot", os.TempDir()+"/valis-workspaces")
	v.SetDefault("sandbox.execTimeoutSec", 300)
	v.SetDefault("sandbox.installTimeoutSec", 60)
	v.SetDefault("sandbox.memoryMB", 512)
	v.SetDefault("sandbox.cpus", 1.0)
	v.SetDefault("sandbox.networkMode", "none")

	v.SetDefault("llm.baseURL", "https://api.openai.com")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.imageModel", "dall-e-3")
	v.SetDefault("llm.maxTokens", 1000)
	v.SetDefault("llm.timeoutSec", 60)

	v.SetDefault("memory.backend", "lru")
	v.SetDefault("memory.size", 10000)
	v.SetDefault("memory.keyPrefix", "valis:memory:")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("rabbitmq.exchange", "valis.chat")
	v.SetDefault("s3.region", "auto")
	v.SetDefault("s3.usePathStyle", true)
	v.SetDefault("s3.presignExpireSec", 900)
	v.SetDefault("telemetry.sampleRatio", 1.0)
}
