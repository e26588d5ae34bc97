package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	KV       KVConfig
	History  HistoryConfig
	Events   EventsConfig
	GitHub   GitHubConfig
	STT      STTConfig
	Catalog  CatalogConfig
	Webhook  WebhookConfig
	Audit    AuditConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KVConfig struct {
	Backend    string // "memory", "redis", "postgres" or "sqlite"
	Namespace  string // key prefix for the redis backend
	SQLitePath string
}

type HistoryConfig struct {
	Key string
}

type EventsConfig struct {
	Backend       string // "local", "redis" or "queue"
	ChannelPrefix string
	BufferSize    int
}

type GitHubConfig struct {
	BaseURL string
	Timeout time.Duration
}

type STTConfig struct {
	Backend       string // "openai" or "local"
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	LocalBaseURL  string // default: "http://localhost:8178"
	MaxUploadMB   int
}

type CatalogConfig struct {
	Path string // empty uses the embedded catalog
}

type WebhookConfig struct {
	URLs   []string
	Secret string
}

type AuditConfig struct {
	Enabled bool // requires DATABASE_URL
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 100)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	bufferSize, err := getEnvInt("EVENTS_BUFFER_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("invalid EVENTS_BUFFER_SIZE: %w", err)
	}

	githubTimeout, err := getEnvDuration("GITHUB_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid GITHUB_TIMEOUT: %w", err)
	}

	maxUpload, err := getEnvInt("STT_MAX_UPLOAD_MB", 25)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_MAX_UPLOAD_MB: %w", err)
	}

	auditEnabled, err := getEnvBool("AUDIT_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("invalid AUDIT_ENABLED: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "*")),
			RateLimitRPS:   rps,
			RateLimitBurst: burst,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		KV: KVConfig{
			Backend:    getEnv("KV_BACKEND", "memory"),
			Namespace:  getEnv("KV_NAMESPACE", "historyhub:"),
			SQLitePath: getEnv("KV_SQLITE_PATH", "historyhub.db"),
		},
		History: HistoryConfig{
			Key: getEnv("HISTORY_KEY", "history"),
		},
		Events: EventsConfig{
			Backend:       getEnv("EVENTS_BACKEND", "local"),
			ChannelPrefix: getEnv("EVENTS_CHANNEL_PREFIX", "historyhub:events:"),
			BufferSize:    bufferSize,
		},
		GitHub: GitHubConfig{
			BaseURL: strings.TrimRight(getEnv("GITHUB_API_BASE_URL", "http://localhost:5000"), "/"),
			Timeout: githubTimeout,
		},
		STT: STTConfig{
			Backend:       getEnv("STT_BACKEND", "openai"),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("STT_OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("STT_OPENAI_MODEL", ""),
			LocalBaseURL:  getEnv("STT_LOCAL_BASE_URL", "http://localhost:8178"),
			MaxUploadMB:   maxUpload,
		},
		Catalog: CatalogConfig{
			Path: getEnv("MODEL_CATALOG_PATH", ""),
		},
		Webhook: WebhookConfig{
			URLs:   splitList(getEnv("WEBHOOK_URLS", "")),
			Secret: getEnv("WEBHOOK_SECRET", ""),
		},
		Audit: AuditConfig{
			Enabled: auditEnabled,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the settings each selected backend depends on.
func (c *Config) Validate() error {
	var problems []string

	switch c.KV.Backend {
	case "memory", "redis":
	case "postgres":
		if c.Database.URL == "" {
			problems = append(problems, "DATABASE_URL is required for KV_BACKEND=postgres")
		}
	case "sqlite":
		if c.KV.SQLitePath == "" {
			problems = append(problems, "KV_SQLITE_PATH is required for KV_BACKEND=sqlite")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown KV_BACKEND %q", c.KV.Backend))
	}

	switch c.Events.Backend {
	case "local", "redis", "queue":
	default:
		problems = append(problems, fmt.Sprintf("unknown EVENTS_BACKEND %q", c.Events.Backend))
	}

	switch c.STT.Backend {
	case "openai", "local":
	default:
		problems = append(problems, fmt.Sprintf("unknown STT_BACKEND %q", c.STT.Backend))
	}

	if c.Audit.Enabled && c.Database.URL == "" {
		problems = append(problems, "DATABASE_URL is required for AUDIT_ENABLED")
	}

	if c.History.Key == "" {
		problems = append(problems, "HISTORY_KEY must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
