package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"RegimeSentinel/internal/logger"
	"RegimeSentinel/internal/model"
	"RegimeSentinel/internal/storage"
	"RegimeSentinel/internal/strategy"
)

// ErrConfiguration marks a configuration the process must not start with.
var ErrConfiguration = errors.New("config: invalid configuration")

// EnvDevelopment is the only environment allowed to use the local store.
const EnvDevelopment = "development"

// Config holds all application configuration.
type Config struct {
	Environment string         `yaml:"environment" default:"development" validate:"required"`
	Log         logger.Config  `yaml:"log"`
	Storage     storage.Config `yaml:"storage"`
	Replay      struct {
		SeedPath string `yaml:"seed_path"`
		// Cutover is the last replay date, inclusive.
		Cutover string `yaml:"cutover" validate:"omitempty,datetime=2006-01-02"`
	} `yaml:"replay"`
	Market struct {
		LookbackDays int           `yaml:"lookback_days" default:"400" validate:"min=30"`
		FetchTimeout time.Duration `yaml:"fetch_timeout" default:"45s"`
		MaxParallel  int           `yaml:"max_parallel" default:"4" validate:"min=1,max=32"`
		RPS          float64       `yaml:"rps" default:"4" validate:"gt=0"`
		Burst        int           `yaml:"burst" default:"2" validate:"min=1"`
		Calendar     string        `yaml:"calendar" default:"xnys"`
		RESTBaseURL  string        `yaml:"rest_base_url" validate:"omitempty,url"`
		RESTAPIKey   string        `yaml:"rest_api_key"`
	} `yaml:"market"`
	Satellite struct {
		FREDBaseURL string `yaml:"fred_base_url" validate:"omitempty,url"`
		Disabled    bool   `yaml:"disabled"`
	} `yaml:"satellite"`
	Lock struct {
		Backend       string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		RedisAddr     string        `yaml:"redis_addr"`
		RedisPassword string        `yaml:"redis_password"`
		TTL           time.Duration `yaml:"ttl" default:"2m"`
	} `yaml:"lock"`
	Recorder struct {
		SQLitePath string `yaml:"sqlite_path" default:"data/sentinel.db"`
	} `yaml:"recorder"`
	Schedule struct {
		DailyCron string `yaml:"daily_cron" default:"0 45 16 * * 1-5"`
		Timezone  string `yaml:"timezone" default:"America/New_York"`
	} `yaml:"schedule"`
	HTTP struct {
		Addr string `yaml:"addr" default:":8080"`
	} `yaml:"http"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic" default:"regime.snapshots"`
	} `yaml:"kafka"`
	Proxy  string          `yaml:"proxy"`
	Engine strategy.Params `yaml:"engine"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{Engine: strategy.DefaultParams()}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"SENTINEL_ENV", &cfg.Environment},
		{"STORAGE_BACKEND", &cfg.Storage.Backend},
		{"BLOB_READ_WRITE_TOKEN", &cfg.Storage.BlobToken},
		{"BLOB_URL", &cfg.Storage.BlobURL},
		{"LOCAL_DATA_DIR", &cfg.Storage.LocalDir},
		{"REDIS_ADDR", &cfg.Lock.RedisAddr},
		{"TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken},
		{"TELEGRAM_CHAT_ID", &cfg.Telegram.ChatID},
		{"HTTPS_PROXY", &cfg.Proxy},
		{"SQLITE_PATH", &cfg.Recorder.SQLitePath},
		{"HTTP_ADDR", &cfg.HTTP.Addr},
		{"REST_BARS_API_KEY", &cfg.Market.RESTAPIKey},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
}

// Validate checks struct rules and the cross-field rules between sections.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	switch c.Storage.Backend {
	case storage.BackendBlob:
		if c.Storage.BlobToken == "" {
			return fmt.Errorf("%w: storage.backend=blob requires a blob token", ErrConfiguration)
		}
		if c.Storage.BlobURL == "" {
			return fmt.Errorf("%w: storage.backend=blob requires storage.blob_url", ErrConfiguration)
		}
	case storage.BackendLocal:
		if c.Environment != EnvDevelopment {
			return fmt.Errorf("%w: storage.backend=local is only allowed in %s, not %s",
				ErrConfiguration, EnvDevelopment, c.Environment)
		}
	}
	if c.Lock.Backend == "redis" && c.Lock.RedisAddr == "" {
		return fmt.Errorf("%w: lock.backend=redis requires lock.redis_addr", ErrConfiguration)
	}
	if c.Replay.SeedPath != "" && c.Replay.Cutover == "" {
		return fmt.Errorf("%w: replay.seed_path requires replay.cutover", ErrConfiguration)
	}
	if len(c.Engine.Risk) == 0 || len(c.Engine.Inflation) == 0 {
		return fmt.Errorf("%w: engine needs risk and inflation signals", ErrConfiguration)
	}
	if c.Engine.MinCoverage < 0 || c.Engine.MinCoverage > len(c.Engine.Risk) || c.Engine.MinCoverage > len(c.Engine.Inflation) {
		return fmt.Errorf("%w: engine.min_coverage %d must be between 0 and the signals on each axis",
			ErrConfiguration, c.Engine.MinCoverage)
	}
	return nil
}

// Cutover parses the replay cutover; zero when no replay seed is configured.
func (c *Config) Cutover() time.Time {
	if c.Replay.Cutover == "" {
		return time.Time{}
	}
	d, err := model.ParseDate(c.Replay.Cutover)
	if err != nil {
		return time.Time{}
	}
	return d
}

// TelegramEnabled reports whether Telegram credentials are present.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
