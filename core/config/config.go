package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// BootstrapAdmins seeds the admin roster on the very first start,
	// before any settings file or table exists.
	BootstrapAdmins []int64 `yaml:"bootstrap_admins" envconfig:"FORMGATE_ADMINS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Dir     string `yaml:"dir"`
	BotFile string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"FORMGATE_PROFILE"`
}

// StorageConfig selects the durable store backend for settings and posts.
type StorageConfig struct {
	// Driver is either "json" (whole-store files) or "postgres".
	Driver       string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	Dir          string `yaml:"dir" envconfig:"STORAGE_DIR"`
	SettingsFile string `yaml:"settings_file"`
	PostsFile    string `yaml:"posts_file"`
}

// RedisConfig holds connection settings for the Redis session backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

// SessionConfig selects where in-progress form sessions are kept.
type SessionConfig struct {
	// Driver is either "memory" or "redis".
	Driver string      `yaml:"driver" envconfig:"SESSION_DRIVER"`
	Redis  RedisConfig `yaml:"redis"`
}

// FormsConfig points at the declarative form catalog.
type FormsConfig struct {
	Path string `yaml:"path" envconfig:"FORMS_PATH"`
}

// ModerationConfig carries quorum defaults used until admins change them at runtime.
type ModerationConfig struct {
	MinApproval  int `yaml:"min_approval" envconfig:"MIN_APPROVAL"`
	MinRejection int `yaml:"min_rejection" envconfig:"MIN_REJECTION"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// StorageJSON selects the file-backed store.
	StorageJSON = "json"
	// StoragePostgres selects the sqlx/Postgres store.
	StoragePostgres = "postgres"
)

const (
	// SessionMemory keeps sessions in process memory.
	SessionMemory = "memory"
	// SessionRedis keeps sessions in Redis.
	SessionRedis = "redis"
)

// Config aggregates the whole bot configuration.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Session    SessionConfig    `yaml:"session"`
	Forms      FormsConfig      `yaml:"forms"`
	Moderation ModerationConfig `yaml:"moderation"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	sd := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if sd == "" {
		sd = StorageJSON
	}
	switch sd {
	case StorageJSON, StoragePostgres:
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: json, postgres", cfg.Storage.Driver)
	}
	cfg.Storage.Driver = sd
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data"
	}
	if cfg.Storage.SettingsFile == "" {
		cfg.Storage.SettingsFile = "settings.json"
	}
	if cfg.Storage.PostsFile == "" {
		cfg.Storage.PostsFile = "posts.json"
	}

	sess := strings.ToLower(strings.TrimSpace(cfg.Session.Driver))
	if sess == "" {
		sess = SessionMemory
	}
	switch sess {
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(cfg.Session.Redis.Addr) == "" {
			return fmt.Errorf("session.redis.addr is required when session.driver is 'redis'")
		}
	default:
		return fmt.Errorf("invalid session.driver %q; allowed: memory, redis", cfg.Session.Driver)
	}
	cfg.Session.Driver = sess

	if cfg.Forms.Path == "" {
		cfg.Forms.Path = "configs/forms.yml"
	}

	if cfg.Moderation.MinApproval < 1 {
		cfg.Moderation.MinApproval = 1
	}
	if cfg.Moderation.MinRejection < 1 {
		cfg.Moderation.MinRejection = 1
	}

	return nil
}

// Debug reports whether the configuration selects the debug profile.
// In debug mode date and one-of entry validation is bypassed and handler
// errors are returned to the framework instead of being swallowed.
func (c *Config) Debug() bool {
	if c == nil {
		return false
	}
	p := strings.ToLower(strings.TrimSpace(c.Logging.Profile))
	return p == "debug" || p == "dev"
}
