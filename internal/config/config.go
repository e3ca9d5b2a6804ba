package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingDatabaseDSN = errors.New("DB_DSN is required")
)

type Config struct {
	ListenAddr  string
	HealthPath  string
	MetricsPath string

	DB      DBConfig
	Redis   RedisConfig
	HTTP    HTTPConfig
	Runtime RuntimeConfig
	Events  EventsConfig
	Rate    RateConfig
	Log     LogConfig
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

// RedisConfig is optional; an empty Addr disables the rate limiter and the
// external stage-event fan-out.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	EventStream string
	EventTTL    time.Duration
}

type HTTPConfig struct {
	ClientTimeout   time.Duration
	ShutdownTimeout time.Duration
}

// RuntimeConfig carries server-side defaults for the local runtime. Per-call
// settings may override the binary path, argv template and timeout; the
// boilerplate reply patterns are configuration only.
type RuntimeConfig struct {
	BinaryName       string
	DefaultArgs      []string
	DefaultTimeout   time.Duration
	TemplateReplies  []string
	ReinforcedSuffix string
}

type EventsConfig struct {
	Buffer int
}

type RateConfig struct {
	PerHour int64
}

type LogConfig struct {
	Level string
}

// Default boilerplate self-introduction patterns the local runtime is known
// to emit instead of a task-specific answer. Matched by folded prefix; see
// codexcli.
var defaultTemplateReplies = []string{
	"I'm Codex, an AI assistant",
	"I am Codex, an AI assistant",
	"Hello! I'm Codex",
	"我是 Codex",
}

func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  mustEnv("LISTEN_ADDR", ":8787"),
		HealthPath:  mustEnv("HEALTH_PATH", "/healthz"),
		MetricsPath: mustEnv("METRICS_PATH", "/metrics"),
		DB: DBConfig{
			Driver:      strings.ToLower(mustEnv("DB_DRIVER", "sqlite")),
			DSN:         mustEnv("DB_DSN", "file:workbench.db?_pragma=busy_timeout(5000)"),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:        mustEnv("REDIS_ADDR", ""),
			Password:    mustEnv("REDIS_PASSWORD", ""),
			DB:          mustInt("REDIS_DB", 0),
			EventStream: mustEnv("EVENT_STREAM_PREFIX", "workbench:agent:events"),
			EventTTL:    mustDuration("EVENT_STREAM_TTL", 30*time.Minute),
		},
		HTTP: HTTPConfig{
			ClientTimeout:   mustDuration("HTTP_TIMEOUT", 30*time.Second),
			ShutdownTimeout: mustDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Runtime: RuntimeConfig{
			BinaryName:       mustEnv("AGENT_RUNTIME_BINARY", "codex"),
			DefaultArgs:      mustList("AGENT_RUNTIME_ARGS", []string{"exec", "--json", "--skip-git-repo-check", "--color", "never"}),
			DefaultTimeout:   mustDuration("AGENT_RUNTIME_TIMEOUT", 120*time.Second),
			TemplateReplies:  mustList("AGENT_RUNTIME_TEMPLATE_REPLIES", defaultTemplateReplies),
			ReinforcedSuffix: mustEnv("AGENT_RUNTIME_REINFORCED_SUFFIX", "Do not reply with a generic self-introduction. Answer the task above directly and output only the JSON object."),
		},
		Events: EventsConfig{
			Buffer: mustInt("EVENT_BUFFER", 256),
		},
		Rate: RateConfig{
			PerHour: int64(mustInt("RATE_LIMIT_PER_HOUR", 120)),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.DB.DSN == "" {
		return nil, ErrMissingDatabaseDSN
	}
	switch cfg.DB.Driver {
	case "sqlite", "sqlite3", "postgres", "pgx":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}
	if cfg.Events.Buffer < 1 {
		cfg.Events.Buffer = 1
	}

	return cfg, nil
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func mustList(key string, def []string) []string {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
