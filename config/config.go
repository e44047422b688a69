package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	QuoteProviderYahoo    = "yahoo"
	QuoteProviderLongport = "longport"
	QuoteProviderChain    = "chain"
	QuoteProviderNone     = "none"
)

type Config struct {
	ProjectDir   string `json:"project_dir"`
	ResultsDir   string `json:"results_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`

	// Model policy: every expert shares the default pair unless the roster overrides it.
	ExpertPrimaryModel  string  `json:"expert_primary_model"`
	ExpertFallbackModel string  `json:"expert_fallback_model"`
	ChairPrimaryModel   string  `json:"chair_primary_model"`
	ChairFallbackModel  string  `json:"chair_fallback_model"`
	ExpertTimeoutSecs   int     `json:"expert_timeout_secs"`
	ChairTimeoutSecs    int     `json:"chair_timeout_secs"`
	MaxTokens           int     `json:"max_tokens"`
	ExpertTemperature   float32 `json:"expert_temperature"`
	ChairTemperature    float32 `json:"chair_temperature"`
	RosterPath          string  `json:"roster_path"`
	ChairQuorum         int     `json:"chair_quorum"`
	RequireApproval     bool    `json:"require_approval"`

	// Circuit breaker in front of every model id
	BreakerEnabled     bool `json:"breaker_enabled"`
	BreakerFailures    int  `json:"breaker_failures"`
	BreakerCooldownSec int  `json:"breaker_cooldown_secs"`

	// AI Model API Keys
	OpenAIAPIKey      string `json:"openai_api_key"`
	OpenAIBaseURL     string `json:"openai_base_url"`
	DeepSeekAPIKey    string `json:"deepseek_api_key"`
	OpenRouterAPIKey  string `json:"openrouter_api_key"`
	OpenRouterBaseURL string `json:"openrouter_base_url"`

	// Market data
	QuoteProvider       string `json:"quote_provider"`
	QuoteRetries        int    `json:"quote_retries"`
	CacheEnabled        bool   `json:"cache_enabled"`
	SymbolSearchURL     string `json:"symbol_search_url"`
	LongportAppKey      string `json:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token"`

	// History sinks; an empty value disables the sink.
	HistoryFile   string `json:"history_file"`
	HistoryDBPath string `json:"history_db_path"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisKey      string `json:"redis_key"`
	RedisMaxItems int    `json:"redis_max_items"`

	ServerAddr string `json:"server_addr"`
	LogLevel   string `json:"log_level"`
	LogFile    string `json:"log_file"`
	Debug      bool   `json:"debug"`
}

// DefaultConfigWithRoot returns the built-in defaults with every directory rooted at root.
// Environment variables are not consulted.
func DefaultConfigWithRoot(root string) *Config {
	return &Config{
		ProjectDir:   root,
		ResultsDir:   filepath.Join(root, "results"),
		DataDir:      filepath.Join(root, "data"),
		DataCacheDir: filepath.Join(root, "data", "cache"),

		ExpertPrimaryModel:  "anthropic/claude-sonnet-4",
		ExpertFallbackModel: "gpt-5",
		ChairPrimaryModel:   "anthropic/claude-sonnet-4",
		ChairFallbackModel:  "gpt-5",
		ExpertTimeoutSecs:   180,
		ChairTimeoutSecs:    180,
		MaxTokens:           4000,
		ExpertTemperature:   0.7,
		ChairTemperature:    0.3,
		RequireApproval:     true,
		ChairQuorum:         1,

		BreakerEnabled:     true,
		BreakerFailures:    3,
		BreakerCooldownSec: 60,

		OpenAIBaseURL:     "https://api.openai.com/v1",
		OpenRouterBaseURL: "https://openrouter.ai/api/v1",

		QuoteProvider:   QuoteProviderYahoo,
		QuoteRetries:    2,
		CacheEnabled:    true,
		SymbolSearchURL: "https://query2.finance.yahoo.com",

		HistoryFile:   filepath.Join(root, "ANALYSIS_HISTORY.md"),
		HistoryDBPath: filepath.Join(root, "data", "council.db"),
		RedisKey:      "council:reports",
		RedisMaxItems: 500,

		ServerAddr: ":8001",
		LogLevel:   "info",
	}
}

// WithEnv returns a copy of c with .env and environment overrides applied. Secrets such as API keys
// are usually supplied this way rather than stored in the config file.
func (c Config) WithEnv() Config {
	_ = godotenv.Load()
	c.loadFromEnv()
	return c
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("DATA_CACHE_DIR"); val != "" {
		c.DataCacheDir = val
	}

	if val := os.Getenv("EXPERT_PRIMARY_MODEL"); val != "" {
		c.ExpertPrimaryModel = val
	}
	if val := os.Getenv("EXPERT_FALLBACK_MODEL"); val != "" {
		c.ExpertFallbackModel = val
	}
	if val := os.Getenv("CHAIR_PRIMARY_MODEL"); val != "" {
		c.ChairPrimaryModel = val
	}
	if val := os.Getenv("CHAIR_FALLBACK_MODEL"); val != "" {
		c.ChairFallbackModel = val
	}
	if val := os.Getenv("EXPERT_TIMEOUT_SECS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.ExpertTimeoutSecs = v
		}
	}
	if val := os.Getenv("CHAIR_TIMEOUT_SECS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.ChairTimeoutSecs = v
		}
	}
	if val := os.Getenv("MAX_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxTokens = v
		}
	}
	if val := os.Getenv("COUNCIL_ROSTER"); val != "" {
		c.RosterPath = val
	}
	if val := os.Getenv("CHAIR_QUORUM"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.ChairQuorum = v
		}
	}
	if val := os.Getenv("REQUIRE_APPROVAL"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.RequireApproval = enabled
		}
	}
	if val := os.Getenv("BREAKER_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.BreakerEnabled = enabled
		}
	}

	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		c.OpenAIBaseURL = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("OPENROUTER_API_KEY"); val != "" {
		c.OpenRouterAPIKey = val
	}
	if val := os.Getenv("OPENROUTER_BASE_URL"); val != "" {
		c.OpenRouterBaseURL = val
	}

	if val := os.Getenv("QUOTE_PROVIDER"); val != "" {
		c.QuoteProvider = strings.ToLower(val)
	}
	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}
	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" {
		c.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" {
		c.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" {
		c.LongportAccessToken = val
	}

	if val := os.Getenv("HISTORY_FILE"); val != "" {
		c.HistoryFile = val
	}
	if val := os.Getenv("HISTORY_DB_PATH"); val != "" {
		c.HistoryDBPath = val
	}
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.RedisAddr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.RedisPassword = val
	}

	if val := os.Getenv("SERVER_ADDR"); val != "" {
		c.ServerAddr = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("LOG_FILE"); val != "" {
		c.LogFile = val
	}
	if val := os.Getenv("COUNCIL_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
}

func (c *Config) ExpertTimeout() time.Duration {
	return time.Duration(c.ExpertTimeoutSecs) * time.Second
}

func (c *Config) ChairTimeout() time.Duration {
	return time.Duration(c.ChairTimeoutSecs) * time.Second
}

func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSec) * time.Second
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ExpertPrimaryModel) == "" {
		errs = append(errs, errors.New("expert_primary_model is required"))
	}
	if strings.TrimSpace(c.ChairPrimaryModel) == "" {
		errs = append(errs, errors.New("chair_primary_model is required"))
	}
	if c.ExpertTimeoutSecs <= 0 {
		errs = append(errs, fmt.Errorf("expert_timeout_secs must be positive, got %d", c.ExpertTimeoutSecs))
	}
	if c.ChairTimeoutSecs <= 0 {
		errs = append(errs, fmt.Errorf("chair_timeout_secs must be positive, got %d", c.ChairTimeoutSecs))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.ChairQuorum < 1 || c.ChairQuorum > 5 {
		errs = append(errs, fmt.Errorf("chair_quorum must be between 1 and 5, got %d", c.ChairQuorum))
	}
	if c.BreakerEnabled && c.BreakerFailures <= 0 {
		errs = append(errs, fmt.Errorf("breaker_failures must be positive, got %d", c.BreakerFailures))
	}
	switch c.QuoteProvider {
	case QuoteProviderYahoo, QuoteProviderLongport, QuoteProviderChain, QuoteProviderNone:
	default:
		errs = append(errs, fmt.Errorf("unknown quote_provider %q", c.QuoteProvider))
	}
	return errors.Join(errs...)
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir, c.DataDir, c.DataCacheDir}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
