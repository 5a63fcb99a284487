package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/pulse/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Logging      LoggingConfig      `toml:"logging"`
	Storage      StorageConfig      `toml:"storage"`
	Prices       PricesConfig       `toml:"prices"`
	AlphaVantage AlphaVantageConfig `toml:"alphavantage"`
	Scraper      ScraperConfig      `toml:"scraper"`
	Gemini       GeminiConfig       `toml:"gemini"`
	Claude       ClaudeConfig       `toml:"claude"`
	LLM          LLMConfig          `toml:"llm"`
	Newsletter   NewsletterConfig   `toml:"newsletter"`
	SMTP         SMTPConfig         `toml:"smtp"`
	Scheduler    SchedulerConfig    `toml:"scheduler"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"` // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`                                       // "stdout", "file"
	TimeFormat string   `toml:"time_format"`                                  // default "15:04:05"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup
}

// PricesConfig controls price resolution: provider order, quota, caching and retries.
type PricesConfig struct {
	Providers           []string          `toml:"providers" validate:"min=1,dive,oneof=alphavantage scrape search"`
	CallsPerMinute      int               `toml:"calls_per_minute" validate:"gt=0"` // Provider quota per 60s window
	MinSpacing          string            `toml:"min_spacing"`                      // Minimum gap between provider calls (e.g. "12.5s")
	CurrentPriceTTL     string            `toml:"current_price_ttl"`                // default "5m"
	HistoricalTTL       string            `toml:"historical_ttl"`                   // default "1h"
	SeriesTTL           string            `toml:"series_ttl"`                       // default "1h"
	LookbackDays        int               `toml:"lookback_days" validate:"gt=0"`    // Nearest-date search window
	MaxRetries          int               `toml:"max_retries" validate:"gte=0"`     // Retries for the final ticker candidate
	CandidateRetries    int               `toml:"candidate_retries" validate:"gte=0"`
	RateLimitBackoff    string            `toml:"rate_limit_backoff"`     // default "30s", doubles per attempt
	RateLimitMaxBackoff string            `toml:"rate_limit_max_backoff"` // default "5m"
	ErrorBackoff        string            `toml:"error_backoff"`          // default "2s", doubles per attempt
	ErrorMaxBackoff     string            `toml:"error_max_backoff"`      // default "30s"
	EndDateFallback     bool              `toml:"end_date_fallback"`      // Use the start price when the end date cannot be resolved
	TickerAliases       map[string]string `toml:"ticker_aliases"`         // Extra normalizer entries, e.g. { FB = "META" }
}

// AlphaVantageConfig contains Alpha Vantage REST API configuration
type AlphaVantageConfig struct {
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	OutputSize string `toml:"output_size" validate:"oneof=compact full"` // "compact" (~100 days) or "full"
	Timeout    string `toml:"timeout"`
}

// ScraperConfig contains quote-page scraping configuration
type ScraperConfig struct {
	BaseURL        string   `toml:"base_url"`
	UseBrowser     bool     `toml:"use_browser"`  // Render pages with headless Chrome
	BrowserWait    string   `toml:"browser_wait"` // Time to let JavaScript settle (default "3s")
	UserAgents     []string `toml:"user_agents"`  // Rotated per request
	RequestTimeout string   `toml:"request_timeout"`
	CallsPerMinute int      `toml:"calls_per_minute" validate:"gt=0"`
	MinSpacing     string   `toml:"min_spacing"`
	LLMParse       bool     `toml:"llm_parse"` // Ask the LLM to read the page when selectors find nothing
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains provider selection for AI tasks
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=gemini claude"`
	SearchModel     string      `toml:"search_model"`     // Model used by the search price provider
	CommentaryModel string      `toml:"commentary_model"` // Model used for holding commentary and market recap
	ExtractionModel string      `toml:"extraction_model"` // Model used for holdings extraction
	// Client retries on rate limit. Price lookups retry on top of this.
	MaxRetries      int         `toml:"max_retries" validate:"gte=0"`
}

// NewsletterConfig contains newsletter composition and publishing policy
type NewsletterConfig struct {
	Subject            string   `toml:"subject"`
	Recipients         []string `toml:"recipients" validate:"dive,email"` // Extra recipients copied on every send
	MinSuccessRatePct  float64  `toml:"min_success_rate_pct" validate:"gte=0,lte=100"`
	WarnSuccessRatePct float64  `toml:"warn_success_rate_pct" validate:"gte=0,lte=100"`
	SkipBelowWeeklyPct float64  `toml:"skip_below_weekly_pct"` // Withhold when weekly change is below this; 0 disables
	MaxMovers          int      `toml:"max_movers" validate:"gt=0"`
	MoverStrategy      string   `toml:"mover_strategy" validate:"oneof=magnitude balanced"`
	AnalysisCount      int      `toml:"analysis_count" validate:"gte=0"` // Holdings that get commentary
	AttachPDF          bool     `toml:"attach_pdf"`
	AdvisorURL         string   `toml:"advisor_url"`
	DryRun             bool     `toml:"dry_run"`       // Render but do not send
	TemplatesDir       string   `toml:"templates_dir"` // Overrides for the embedded email layout
	OutputDir          string   `toml:"output_dir"`    // Also write each rendered newsletter here
}

// SMTPConfig contains outgoing mail configuration
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	FromName string `toml:"from_name"`
	UseTLS   bool   `toml:"use_tls"`
}

// SchedulerConfig contains the newsletter schedule
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Standard 5-field cron expression
	Timeout  string `toml:"timeout"`  // Maximum duration of one scheduled run
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/pulse",
			},
		},
		Prices: PricesConfig{
			Providers:           []string{"alphavantage"},
			CallsPerMinute:      5,
			MinSpacing:          "12.5s",
			CurrentPriceTTL:     "5m",
			HistoricalTTL:       "1h",
			SeriesTTL:           "1h",
			LookbackDays:        30,
			MaxRetries:          3,
			CandidateRetries:    1,
			RateLimitBackoff:    "30s",
			RateLimitMaxBackoff: "5m",
			ErrorBackoff:        "2s",
			ErrorMaxBackoff:     "30s",
			EndDateFallback:     true,
		},
		AlphaVantage: AlphaVantageConfig{
			BaseURL:    "https://www.alphavantage.co/query",
			OutputSize: "compact",
			Timeout:    "30s",
		},
		Scraper: ScraperConfig{
			BaseURL:        "https://finance.yahoo.com",
			BrowserWait:    "3s",
			RequestTimeout: "30s",
			CallsPerMinute: 30,
			MinSpacing:     "2s",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   2000,
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
			MaxRetries:      2,
		},
		Newsletter: NewsletterConfig{
			Subject:            "Weekly Market Pulse",
			MinSuccessRatePct:  50,
			WarnSuccessRatePct: 80,
			SkipBelowWeeklyPct: -5,
			MaxMovers:          2,
			MoverStrategy:      "magnitude",
			AnalysisCount:      5,
		},
		SMTP: SMTPConfig{
			Host:     "smtp.gmail.com",
			Port:     587,
			FromName: "Pulse",
			UseTLS:   false,
		},
		Scheduler: SchedulerConfig{
			Schedule: "0 7 * * 1",
			Timeout:  "2h",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies PULSE_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PULSE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Logging
	if level := os.Getenv("PULSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PULSE_LOG_OUTPUT"); output != "" {
		outputs := splitList(output)
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage
	if badgerPath := os.Getenv("PULSE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Prices
	if providers := os.Getenv("PULSE_PRICE_PROVIDERS"); providers != "" {
		if list := splitList(providers); len(list) > 0 {
			config.Prices.Providers = list
		}
	}
	if cpm := os.Getenv("PULSE_PRICES_CALLS_PER_MINUTE"); cpm != "" {
		if n, err := strconv.Atoi(cpm); err == nil {
			config.Prices.CallsPerMinute = n
		}
	}
	if spacing := os.Getenv("PULSE_PRICES_MIN_SPACING"); spacing != "" {
		config.Prices.MinSpacing = spacing
	}
	if retries := os.Getenv("PULSE_PRICES_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			config.Prices.MaxRetries = n
		}
	}
	if fallback := os.Getenv("PULSE_PRICES_END_DATE_FALLBACK"); fallback != "" {
		if b, err := strconv.ParseBool(fallback); err == nil {
			config.Prices.EndDateFallback = b
		}
	}

	// Alpha Vantage
	if outputSize := os.Getenv("PULSE_ALPHAVANTAGE_OUTPUT_SIZE"); outputSize != "" {
		config.AlphaVantage.OutputSize = outputSize
	}
	if baseURL := os.Getenv("PULSE_ALPHAVANTAGE_BASE_URL"); baseURL != "" {
		config.AlphaVantage.BaseURL = baseURL
	}

	// Scraper
	if useBrowser := os.Getenv("PULSE_SCRAPER_USE_BROWSER"); useBrowser != "" {
		if b, err := strconv.ParseBool(useBrowser); err == nil {
			config.Scraper.UseBrowser = b
		}
	}

	// LLM
	if provider := os.Getenv("PULSE_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(strings.ToLower(provider))
	}
	if model := os.Getenv("PULSE_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if model := os.Getenv("PULSE_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	// Newsletter
	if recipients := os.Getenv("PULSE_NEWSLETTER_RECIPIENTS"); recipients != "" {
		config.Newsletter.Recipients = splitList(recipients)
	}
	if skip := os.Getenv("PULSE_NEWSLETTER_SKIP_BELOW_WEEKLY_PCT"); skip != "" {
		if f, err := strconv.ParseFloat(skip, 64); err == nil {
			config.Newsletter.SkipBelowWeeklyPct = f
		}
	}
	if dryRun := os.Getenv("PULSE_NEWSLETTER_DRY_RUN"); dryRun != "" {
		if b, err := strconv.ParseBool(dryRun); err == nil {
			config.Newsletter.DryRun = b
		}
	}

	// SMTP
	if host := os.Getenv("PULSE_SMTP_HOST"); host != "" {
		config.SMTP.Host = host
	}
	if port := os.Getenv("PULSE_SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.SMTP.Port = p
		}
	}
	if username := os.Getenv("PULSE_SMTP_USERNAME"); username != "" {
		config.SMTP.Username = username
	}
	if password := os.Getenv("PULSE_SMTP_PASSWORD"); password != "" {
		config.SMTP.Password = password
	}
	if from := os.Getenv("PULSE_SMTP_FROM"); from != "" {
		config.SMTP.From = from
	}

	// Scheduler
	if schedule := os.Getenv("PULSE_SCHEDULER_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, logLevel string, dryRun bool) {
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	if dryRun {
		config.Newsletter.DryRun = true
	}
}

// Validate checks struct constraints and the scheduler cron expression.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("invalid scheduler.schedule %q: %w", c.Scheduler.Schedule, err)
		}
	}

	if c.Newsletter.SkipBelowWeeklyPct > 0 {
		return fmt.Errorf("newsletter.skip_below_weekly_pct must be negative or 0, got %.2f", c.Newsletter.SkipBelowWeeklyPct)
	}

	return nil
}

// ResolveAPIKey resolves an API key by name.
// Resolution order: environment variables → KV store → config fallback → error
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"alphavantage_api_key": {"PULSE_ALPHAVANTAGE_API_KEY", "ALPHA_VANTAGE_API_KEY"},
		"gemini_api_key":       {"PULSE_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"anthropic_api_key":    {"PULSE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"smtp_password":        {"PULSE_SMTP_PASSWORD"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		value, err := kvStorage.Get(ctx, name)
		if err == nil && value != "" {
			return value, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// GetMinSpacing returns the minimum spacing between provider calls
func (c *PricesConfig) GetMinSpacing() time.Duration {
	return parseDuration(c.MinSpacing, 12500*time.Millisecond)
}

// GetCurrentPriceTTL returns the current price cache TTL
func (c *PricesConfig) GetCurrentPriceTTL() time.Duration {
	return parseDuration(c.CurrentPriceTTL, 5*time.Minute)
}

// GetHistoricalTTL returns the historical performance cache TTL
func (c *PricesConfig) GetHistoricalTTL() time.Duration {
	return parseDuration(c.HistoricalTTL, time.Hour)
}

// GetSeriesTTL returns the daily series cache TTL
func (c *PricesConfig) GetSeriesTTL() time.Duration {
	return parseDuration(c.SeriesTTL, time.Hour)
}

// GetRateLimitBackoff returns the initial and maximum backoff for rate-limit retries
func (c *PricesConfig) GetRateLimitBackoff() (time.Duration, time.Duration) {
	return parseDuration(c.RateLimitBackoff, 30*time.Second), parseDuration(c.RateLimitMaxBackoff, 5*time.Minute)
}

// GetErrorBackoff returns the initial and maximum backoff for transport retries
func (c *PricesConfig) GetErrorBackoff() (time.Duration, time.Duration) {
	return parseDuration(c.ErrorBackoff, 2*time.Second), parseDuration(c.ErrorMaxBackoff, 30*time.Second)
}

// GetTimeout returns the Alpha Vantage HTTP timeout
func (c *AlphaVantageConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// GetRequestTimeout returns the scraper HTTP timeout
func (c *ScraperConfig) GetRequestTimeout() time.Duration {
	return parseDuration(c.RequestTimeout, 30*time.Second)
}

// GetMinSpacing returns the minimum spacing between scrape requests
func (c *ScraperConfig) GetMinSpacing() time.Duration {
	return parseDuration(c.MinSpacing, 2*time.Second)
}

// GetBrowserWait returns how long to wait for page JavaScript
func (c *ScraperConfig) GetBrowserWait() time.Duration {
	return parseDuration(c.BrowserWait, 3*time.Second)
}

// GetTimeout returns the maximum duration of a scheduled run
func (c *SchedulerConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 2*time.Hour)
}

// parseDuration parses s, returning def when s is empty or invalid
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// splitList splits a comma-separated list and drops empty entries
func splitList(s string) []string {
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
