// Package config loads service settings from defaults, an optional YAML
// file and environment variables, in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docutag/enhancer/db"
	"github.com/docutag/enhancer/extractor"
	"github.com/docutag/enhancer/ingest"
	"github.com/docutag/enhancer/llm"
	"github.com/docutag/enhancer/queue"
	"github.com/docutag/enhancer/search"
	"github.com/docutag/enhancer/storage"
	"github.com/docutag/enhancer/workflow"
)

// ConfigFileEnv names the YAML file when no --config flag is given
const ConfigFileEnv = "CONFIG_FILE"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Scraping ScrapingConfig `yaml:"scraping"`
	Queue    QueueConfig    `yaml:"queue"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type ServerConfig struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres or sqlite
	URL    string `yaml:"url"`
}

type LLMConfig struct {
	Provider  string          `yaml:"provider"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
}

type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	BaseURL     string  `yaml:"base_url"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type SearchConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	ExcludeDomain string `yaml:"exclude_domain"`
}

type ScrapingConfig struct {
	TimeoutMS          int    `yaml:"timeout_ms"`
	MaxArticles        int    `yaml:"max_articles"`
	RespectRobots      bool   `yaml:"respect_robots"`
	BeyondChatsBaseURL string `yaml:"beyondchats_base_url"`
}

type QueueConfig struct {
	Concurrency int `yaml:"concurrency"`
	Attempts    int `yaml:"attempts"`
	BackoffMS   int `yaml:"backoff_ms"`
}

type StorageConfig struct {
	Backend  string   `yaml:"backend"` // none, fs or s3
	BasePath string   `yaml:"base_path"`
	S3       S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"` // OTLP gRPC endpoint, empty disables export
	ServiceName string `yaml:"service_name"`
}

// Default returns the built-in configuration
func Default() *Config {
	llmDefaults := llm.DefaultConfig()
	queueDefaults := queue.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Port:       "3001",
			CORSOrigin: "http://localhost:5173",
		},
		Database: DatabaseConfig{
			Driver: db.DriverPostgres,
		},
		LLM: LLMConfig{
			Provider: llm.ProviderOpenAI,
			OpenAI: OpenAIConfig{
				Model:       llmDefaults.OpenAIModel,
				Temperature: llmDefaults.OpenAITemperature,
				MaxTokens:   llmDefaults.OpenAIMaxTokens,
				BaseURL:     llmDefaults.OpenAIBaseURL,
			},
			Anthropic: AnthropicConfig{
				Model: llmDefaults.AnthropicModel,
			},
		},
		Search: SearchConfig{
			BaseURL:       search.DefaultBaseURL,
			ExcludeDomain: workflow.DefaultExcludeDomain,
		},
		Scraping: ScrapingConfig{
			TimeoutMS:          int(ingest.DefaultTimeout / time.Millisecond),
			MaxArticles:        ingest.DefaultMaxArticles,
			BeyondChatsBaseURL: ingest.DefaultBeyondChatsURL,
		},
		Queue: QueueConfig{
			Concurrency: queueDefaults.Concurrency,
			Attempts:    queueDefaults.MaxAttempts,
			BackoffMS:   int(queueDefaults.Backoff / time.Millisecond),
		},
		Storage: StorageConfig{
			Backend:  storage.BackendNone,
			BasePath: storage.DefaultConfig().BasePath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName: "enhancer",
		},
	}
}

// Load builds the configuration. path overrides CONFIG_FILE; when both are
// empty only defaults and the environment apply.
func Load(path string, logger *slog.Logger) (*Config, error) {
	return load(path, os.Getenv, logger)
}

func load(path string, getenv func(string) string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()

	if path == "" {
		path = getenv(ConfigFileEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	e := envReader{getenv: getenv, logger: logger}

	e.str("PORT", &cfg.Server.Port)
	e.str("CORS_ORIGIN", &cfg.Server.CORSOrigin)

	e.str("DATABASE_DRIVER", &cfg.Database.Driver)
	e.str("DATABASE_URL", &cfg.Database.URL)

	e.str("LLM_PROVIDER", &cfg.LLM.Provider)
	e.str("OPENAI_API_KEY", &cfg.LLM.OpenAI.APIKey)
	e.str("OPENAI_MODEL", &cfg.LLM.OpenAI.Model)
	e.float("OPENAI_TEMPERATURE", &cfg.LLM.OpenAI.Temperature)
	e.int("OPENAI_MAX_TOKENS", &cfg.LLM.OpenAI.MaxTokens)
	e.str("OPENAI_BASE_URL", &cfg.LLM.OpenAI.BaseURL)
	e.str("ANTHROPIC_API_KEY", &cfg.LLM.Anthropic.APIKey)
	e.str("ANTHROPIC_MODEL", &cfg.LLM.Anthropic.Model)

	e.str("SERPAPI_KEY", &cfg.Search.APIKey)
	e.str("SERPAPI_BASE_URL", &cfg.Search.BaseURL)
	e.str("SEARCH_EXCLUDE_DOMAIN", &cfg.Search.ExcludeDomain)

	e.int("SCRAPING_TIMEOUT", &cfg.Scraping.TimeoutMS)
	e.int("MAX_ARTICLES_TO_SCRAPE", &cfg.Scraping.MaxArticles)
	e.bool("SCRAPING_RESPECT_ROBOTS", &cfg.Scraping.RespectRobots)
	e.str("BEYONDCHATS_BASE_URL", &cfg.Scraping.BeyondChatsBaseURL)

	e.int("QUEUE_CONCURRENCY", &cfg.Queue.Concurrency)
	e.int("QUEUE_ATTEMPTS", &cfg.Queue.Attempts)
	e.int("QUEUE_BACKOFF_MS", &cfg.Queue.BackoffMS)

	e.str("STORAGE_BACKEND", &cfg.Storage.Backend)
	e.str("STORAGE_BASE_PATH", &cfg.Storage.BasePath)
	e.str("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	e.str("S3_REGION", &cfg.Storage.S3.Region)
	e.str("S3_BUCKET", &cfg.Storage.S3.Bucket)
	e.str("S3_ACCESS_KEY_ID", &cfg.Storage.S3.AccessKeyID)
	e.str("S3_SECRET_ACCESS_KEY", &cfg.Storage.S3.SecretAccessKey)
	e.bool("S3_USE_PATH_STYLE", &cfg.Storage.S3.UsePathStyle)

	e.str("LOG_LEVEL", &cfg.Logging.Level)
	e.str("LOG_FORMAT", &cfg.Logging.Format)

	e.str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	e.str("OTEL_SERVICE_NAME", &cfg.Tracing.ServiceName)

	return cfg, nil
}

// envReader applies non-empty environment values. Unparseable numbers are
// logged and the current value is kept.
type envReader struct {
	getenv func(string) string
	logger *slog.Logger
}

func (e envReader) str(key string, dst *string) {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		*dst = v
	}
}

func (e envReader) int(key string, dst *int) {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		e.logger.Warn("invalid "+key+" value, using default", "provided", v, "default", *dst)
		return
	}
	*dst = n
}

func (e envReader) float(key string, dst *float64) {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.logger.Warn("invalid "+key+" value, using default", "provided", v, "default", *dst, "error", err)
		return
	}
	*dst = f
}

func (e envReader) bool(key string, dst *bool) {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.logger.Warn("invalid "+key+" value, using default", "provided", v, "default", *dst, "error", err)
		return
	}
	*dst = b
}

// Validate reports settings the service cannot start with. Missing API keys
// are not errors; the affected calls fail at first use.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderOpenAI, llm.ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
	}

	switch c.Storage.Backend {
	case "", storage.BackendNone, storage.BackendFS, storage.BackendS3:
	default:
		return fmt.Errorf("unsupported storage backend: %q", c.Storage.Backend)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	return nil
}

// Warnings lists degraded-mode conditions worth logging at startup
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Search.APIKey == "" {
		warnings = append(warnings, "SERPAPI_KEY not set, enhancement jobs will fail at the search step")
	}
	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderAnthropic:
		if c.LLM.Anthropic.APIKey == "" {
			warnings = append(warnings, "ANTHROPIC_API_KEY not set, LLM calls will fail")
		}
	default:
		if c.LLM.OpenAI.APIKey == "" {
			warnings = append(warnings, "OPENAI_API_KEY not set, LLM calls will fail")
		}
	}
	return warnings
}

func (c *Config) DB() db.Config {
	return db.Config{Driver: c.Database.Driver, DSN: c.Database.URL}
}

func (c *Config) LLMClient() llm.Config {
	cfg := llm.DefaultConfig()
	cfg.Provider = strings.ToLower(c.LLM.Provider)
	cfg.OpenAIAPIKey = c.LLM.OpenAI.APIKey
	cfg.OpenAIModel = c.LLM.OpenAI.Model
	cfg.OpenAIBaseURL = c.LLM.OpenAI.BaseURL
	cfg.OpenAITemperature = c.LLM.OpenAI.Temperature
	cfg.OpenAIMaxTokens = c.LLM.OpenAI.MaxTokens
	cfg.AnthropicAPIKey = c.LLM.Anthropic.APIKey
	cfg.AnthropicModel = c.LLM.Anthropic.Model
	return cfg
}

func (c *Config) SearchClient() search.Config {
	cfg := search.DefaultConfig()
	cfg.APIKey = c.Search.APIKey
	cfg.BaseURL = c.Search.BaseURL
	return cfg
}

func (c *Config) Extractor() extractor.Config {
	return extractor.DefaultConfig()
}

func (c *Config) Workflow() workflow.Config {
	return workflow.Config{DefaultExcludeDomain: c.Search.ExcludeDomain}
}

func (c *Config) Ingest() ingest.Config {
	return ingest.Config{
		SourceURL:   c.Scraping.BeyondChatsBaseURL,
		MaxArticles: c.Scraping.MaxArticles,
		Timeout:     time.Duration(c.Scraping.TimeoutMS) * time.Millisecond,
	}
}

func (c *Config) QueueWorkers() queue.Config {
	cfg := queue.DefaultConfig()
	cfg.Concurrency = c.Queue.Concurrency
	cfg.MaxAttempts = c.Queue.Attempts
	cfg.Backoff = time.Duration(c.Queue.BackoffMS) * time.Millisecond
	return cfg
}

func (c *Config) Archive() storage.Config {
	return storage.Config{
		Backend:  c.Storage.Backend,
		BasePath: c.Storage.BasePath,
		S3: storage.S3Config{
			Endpoint:        c.Storage.S3.Endpoint,
			Region:          c.Storage.S3.Region,
			Bucket:          c.Storage.S3.Bucket,
			AccessKeyID:     c.Storage.S3.AccessKeyID,
			SecretAccessKey: c.Storage.S3.SecretAccessKey,
			UsePathStyle:    c.Storage.S3.UsePathStyle,
		},
	}
}
