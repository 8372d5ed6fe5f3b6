package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Backend    BackendConfig
	Export     ExportConfig
	Generation GenerationConfig
	RateLimit  RateLimitConfig
	R2         R2Config
	Session    SessionConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// BackendConfig points at the deck generation REST API
type BackendConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           int // seconds
	GenerationTimeout int // seconds
}

type ExportConfig struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	Scheduler    string // "local" or "asynq"
	StateFile    string
}

type GenerationConfig struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
}

type RateLimitConfig struct {
	GenerationPerHour int
	ExportPerHour     int
	UploadPerHour     int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type SessionConfig struct {
	IdleTTL   time.Duration
	StateFile string
}

// Scheduler names
const (
	SchedulerLocal = "local"
	SchedulerAsynq = "asynq"
)

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("BACKEND_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.api_domain", "API_DOMAIN")
	_ = v.BindEnv("redis.enabled", "REDIS_ENABLED")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("backend.base_url", "BACKEND_BASE_URL")
	_ = v.BindEnv("backend.api_key", "BACKEND_API_KEY")
	_ = v.BindEnv("backend.timeout", "BACKEND_TIMEOUT")
	_ = v.BindEnv("backend.generation_timeout", "BACKEND_GENERATION_TIMEOUT")
	_ = v.BindEnv("export.poll_interval", "EXPORT_POLL_INTERVAL")
	_ = v.BindEnv("export.poll_timeout", "EXPORT_POLL_TIMEOUT")
	_ = v.BindEnv("export.scheduler", "EXPORT_SCHEDULER")
	_ = v.BindEnv("export.state_file", "EXPORT_STATE_FILE")
	_ = v.BindEnv("generation.poll_interval", "GENERATION_POLL_INTERVAL")
	_ = v.BindEnv("generation.poll_timeout", "GENERATION_POLL_TIMEOUT")
	_ = v.BindEnv("ratelimit.generation_per_hour", "RATELIMIT_GENERATION_PER_HOUR")
	_ = v.BindEnv("ratelimit.export_per_hour", "RATELIMIT_EXPORT_PER_HOUR")
	_ = v.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("session.idle_ttl", "SESSION_IDLE_TTL")
	_ = v.BindEnv("session.state_file", "SESSION_STATE_FILE")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Backend defaults
	v.SetDefault("backend.base_url", "http://localhost:5000")
	v.SetDefault("backend.timeout", 30)
	v.SetDefault("backend.generation_timeout", 300)

	// Export polling defaults
	v.SetDefault("export.poll_interval", 2*time.Second)
	v.SetDefault("export.poll_timeout", 10*time.Minute)
	v.SetDefault("export.scheduler", SchedulerLocal)
	v.SetDefault("export.state_file", "data/export_tasks.yaml")

	// Generation watcher defaults
	v.SetDefault("generation.poll_interval", 2*time.Second)
	v.SetDefault("generation.poll_timeout", 15*time.Minute)

	v.SetDefault("ratelimit.generation_per_hour", 120)
	v.SetDefault("ratelimit.export_per_hour", 30)
	v.SetDefault("ratelimit.upload_per_hour", 60)

	v.SetDefault("session.idle_ttl", 2*time.Hour)
	v.SetDefault("session.state_file", "data/sessions.yaml")

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			ApiDomain: v.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Backend: BackendConfig{
			BaseURL:           strings.TrimRight(v.GetString("backend.base_url"), "/"),
			APIKey:            v.GetString("backend.api_key"),
			Timeout:           v.GetInt("backend.timeout"),
			GenerationTimeout: v.GetInt("backend.generation_timeout"),
		},
		Export: ExportConfig{
			PollInterval: v.GetDuration("export.poll_interval"),
			PollTimeout:  v.GetDuration("export.poll_timeout"),
			Scheduler:    strings.ToLower(v.GetString("export.scheduler")),
			StateFile:    v.GetString("export.state_file"),
		},
		Generation: GenerationConfig{
			PollInterval: v.GetDuration("generation.poll_interval"),
			PollTimeout:  v.GetDuration("generation.poll_timeout"),
		},
		RateLimit: RateLimitConfig{
			GenerationPerHour: v.GetInt("ratelimit.generation_per_hour"),
			ExportPerHour:     v.GetInt("ratelimit.export_per_hour"),
			UploadPerHour:     v.GetInt("ratelimit.upload_per_hour"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Session: SessionConfig{
			IdleTTL:   v.GetDuration("session.idle_ttl"),
			StateFile: v.GetString("session.state_file"),
		},
	}

	return cfg, nil
}
