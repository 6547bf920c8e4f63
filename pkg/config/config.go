package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Session   SessionConfig
	LLM       LLMConfig
	Chat      ChatConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type DatabaseConfig struct {
	// Driver is "sqlite3" for local files or "pgx" for PostgreSQL.
	Driver          string
	DSN             string
	QueryTimeoutSec int
	MaxOpenConns    int
	InitSchema      bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CacheConfig struct {
	Backend   string
	TTLSec    int
	SweepCron string
}

type SessionConfig struct {
	TTLMin    int
	SweepCron string
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
	MaxAttempts int
	BackoffMs   int
}

type ChatConfig struct {
	HistoryLimit int
	ContextTurns int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/lever-lab")

	viper.SetEnvPrefix("LEVER_LAB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 90)
	viper.SetDefault("server.bodyLimit", 1048576)
	viper.SetDefault("server.allowedOrigins", []string{"*"})
	viper.SetDefault("server.development", false)

	viper.SetDefault("database.driver", "sqlite3")
	viper.SetDefault("database.dsn", "./data/lever_lab.db")
	viper.SetDefault("database.queryTimeoutSec", 15)
	viper.SetDefault("database.maxOpenConns", 10)
	viper.SetDefault("database.initSchema", true)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.ttlSec", 300)
	viper.SetDefault("cache.sweepCron", "@every 1m")

	viper.SetDefault("session.ttlMin", 120)
	viper.SetDefault("session.sweepCron", "@every 5m")

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 1500)
	viper.SetDefault("llm.timeoutSec", 30)
	viper.SetDefault("llm.maxAttempts", 2)
	viper.SetDefault("llm.backoffMs", 1000)

	viper.SetDefault("chat.historyLimit", 20)
	viper.SetDefault("chat.contextTurns", 6)

	viper.SetDefault("rateLimit.requestsPerMinute", 60)
	viper.SetDefault("rateLimit.burst", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
