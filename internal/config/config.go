package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"StockScreener/internal/model"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Provider struct {
		Sources     []string      `yaml:"sources"`
		Adjust      string        `yaml:"adjust"`
		RPS         float64       `yaml:"rps"`
		Burst       int           `yaml:"burst"`
		CallTimeout time.Duration `yaml:"call_timeout"`
		MaxRetries  int           `yaml:"max_retries"`
		Breaker     struct {
			Enabled          bool          `yaml:"enabled"`
			ConsecutiveFails uint32        `yaml:"consecutive_fails"`
			OpenTimeout      time.Duration `yaml:"open_timeout"`
		} `yaml:"breaker"`
	} `yaml:"provider"`
	Fetch struct {
		BatchSize    int           `yaml:"batch_size"`
		Cooldown     time.Duration `yaml:"cooldown"`
		Workers      int           `yaml:"workers"`
		LookbackDays int           `yaml:"lookback_days"`
		MinHistory   int           `yaml:"min_history"`
	} `yaml:"fetch"`
	Database struct {
		Driver           string        `yaml:"driver"`
		SQLitePath       string        `yaml:"sqlite_path"`
		Host             string        `yaml:"host"`
		Port             string        `yaml:"port"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		Name             string        `yaml:"name"`
		SSLMode          string        `yaml:"sslmode"`
		ChunkSize        int           `yaml:"chunk_size"`
		MaxOpenConns     int           `yaml:"max_open_conns"`
		MaxIdleConns     int           `yaml:"max_idle_conns"`
		QueryTimeout     time.Duration `yaml:"query_timeout"`
		BootstrapOnStart *bool         `yaml:"bootstrap_on_start"`
	} `yaml:"database"`
	Screen struct {
		Boards string `yaml:"boards"`
	} `yaml:"screen"`
	Schedule struct {
		DailyCron  string `yaml:"daily_cron"`
		RunOnStart bool   `yaml:"run_on_start"`
		StateFile  string `yaml:"state_file"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// DefaultCooldown applies when fetch.cooldown is absent.
const DefaultCooldown = 60 * time.Second

// Load reads config from a YAML file, loads an optional .env file, then
// applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// preset so an explicit zero in YAML or env disables the cooldown
	cfg.Fetch.Cooldown = DefaultCooldown

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	if v := os.Getenv("SCREENER_PROVIDERS"); v != "" {
		c.Provider.Sources = splitList(v)
	}
	setString("SCREENER_ADJUST", &c.Provider.Adjust)
	setInt("SCREENER_BATCH_SIZE", &c.Fetch.BatchSize)
	setDuration("SCREENER_COOLDOWN", &c.Fetch.Cooldown)
	setInt("SCREENER_WORKERS", &c.Fetch.Workers)
	setInt("SCREENER_LOOKBACK_DAYS", &c.Fetch.LookbackDays)

	setString("SCREENER_DB_DRIVER", &c.Database.Driver)
	setString("SQLITE_PATH", &c.Database.SQLitePath)
	setString("SCREENER_DB_HOST", &c.Database.Host)
	setString("SCREENER_DB_PORT", &c.Database.Port)
	setString("SCREENER_DB_USER", &c.Database.User)
	setString("SCREENER_DB_PASSWORD", &c.Database.Password)
	setString("SCREENER_DB_NAME", &c.Database.Name)
	setString("SCREENER_DB_SSLMODE", &c.Database.SSLMode)

	setString("SCREENER_BOARDS", &c.Screen.Boards)
	setString("CRON_DAILY", &c.Schedule.DailyCron)
	setString("SCREENER_STATE_FILE", &c.Schedule.StateFile)
	if v := os.Getenv("RUN_ON_START"); v != "" {
		c.Schedule.RunOnStart = v == "true"
	}
	setString("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	setString("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	setString("SCREENER_HTTP_ADDR", &c.HTTP.Addr)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)
	setString("HTTPS_PROXY", &c.Proxy)
}

func (c *Config) applyDefaults() {
	if len(c.Provider.Sources) == 0 {
		c.Provider.Sources = []string{"eastmoney", "tencent"}
	}
	if c.Provider.Adjust == "" {
		c.Provider.Adjust = string(model.AdjustForward)
	}
	if c.Provider.RPS == 0 {
		c.Provider.RPS = 5
	}
	if c.Provider.Burst == 0 {
		c.Provider.Burst = 5
	}
	if c.Provider.CallTimeout == 0 {
		c.Provider.CallTimeout = 30 * time.Second
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Provider.Breaker.ConsecutiveFails == 0 {
		c.Provider.Breaker.ConsecutiveFails = 5
	}
	if c.Provider.Breaker.OpenTimeout == 0 {
		c.Provider.Breaker.OpenTimeout = 30 * time.Second
	}
	if c.Fetch.BatchSize == 0 {
		c.Fetch.BatchSize = 50
	}
	if c.Fetch.Workers == 0 {
		c.Fetch.Workers = 4
	}
	if c.Fetch.LookbackDays == 0 {
		c.Fetch.LookbackDays = 60
	}
	if c.Fetch.MinHistory == 0 {
		c.Fetch.MinHistory = model.MinHistory
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/stock_screener.db"
	}
	if c.Database.Port == "" {
		switch strings.ToLower(c.Database.Driver) {
		case "mysql":
			c.Database.Port = "3306"
		default:
			c.Database.Port = "5432"
		}
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Name == "" {
		c.Database.Name = "stock"
	}
	if c.Database.ChunkSize == 0 {
		c.Database.ChunkSize = 500
	}
	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = 30 * time.Second
	}
	if c.Database.BootstrapOnStart == nil {
		on := true
		c.Database.BootstrapOnStart = &on
	}
	if c.Screen.Boards == "" {
		c.Screen.Boards = "all"
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 30 15 * * 1-5"
	}
	if c.Schedule.StateFile == "" {
		c.Schedule.StateFile = "data/latest_report.json"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks that all fields are usable.
func (c *Config) Validate() error {
	if len(c.Provider.Sources) == 0 {
		return fmt.Errorf("provider.sources is required")
	}
	for _, s := range c.Provider.Sources {
		switch s {
		case "eastmoney", "tencent", "mock":
		default:
			return fmt.Errorf("provider.sources: unknown provider %q", s)
		}
	}
	if !model.AdjustMode(c.Provider.Adjust).Valid() {
		return fmt.Errorf("provider.adjust must be qfq, hfq or none, got %q", c.Provider.Adjust)
	}
	if c.Provider.RPS < 0 {
		return fmt.Errorf("provider.rps must not be negative")
	}
	if c.Fetch.BatchSize <= 0 {
		return fmt.Errorf("fetch.batch_size must be positive")
	}
	if c.Fetch.Cooldown < 0 {
		return fmt.Errorf("fetch.cooldown must not be negative")
	}
	if c.Fetch.Workers <= 0 {
		return fmt.Errorf("fetch.workers must be positive")
	}
	if c.Fetch.MinHistory < model.MinHistory {
		return fmt.Errorf("fetch.min_history must be at least %d", model.MinHistory)
	}
	if c.Fetch.LookbackDays < c.Fetch.MinHistory {
		return fmt.Errorf("fetch.lookback_days (%d) cannot cover %d trading days", c.Fetch.LookbackDays, c.Fetch.MinHistory)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required")
		}
	case "postgres", "postgresql", "mysql":
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required for %s", c.Database.Driver)
		}
	case "none":
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres, mysql or none, got %q", c.Database.Driver)
	}
	if c.Database.ChunkSize <= 0 || c.Database.ChunkSize > 2000 {
		return fmt.Errorf("database.chunk_size must be in 1-2000")
	}
	if _, err := model.ParseBoards(c.Screen.Boards); err != nil {
		return fmt.Errorf("screen.boards: %w", err)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// TelegramEnabled reports whether Telegram push is configured.
func (c *Config) TelegramEnabled() bool { return c.Telegram.BotToken != "" }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
