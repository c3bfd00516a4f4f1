package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Gemini    GeminiConfig
	Page      PageConfig
	Search    SearchConfig
	ResultLog ResultLogConfig
	History   HistoryConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	MaxTextLength  int
	AllowedOrigins []string
	Development    bool
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
}

type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	TimeoutSec  int
	MaxAttempts int
}

type PageConfig struct {
	Enabled      bool
	TimeoutSec   int
	MaxChars     int
	MaxSentences int
}

type SearchConfig struct {
	Enabled    bool
	SerpAPIKey string
	// DefaultResults applies when a request omits num_results; MaxResults caps it.
	DefaultResults int
	MaxResults     int
	TimeoutSec     int
}

type ResultLogConfig struct {
	Path string
}

type HistoryConfig struct {
	Enabled    bool
	SQLitePath string
}

type CacheConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads .env, config.yaml and FACTCHECK_* variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/factcheck")

	v.SetEnvPrefix("FACTCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// bindLegacyEnv also accepts the unprefixed variable names existing
// deployments already export.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.host":       {"FACTCHECK_SERVER_HOST", "HOST"},
		"server.port":       {"FACTCHECK_SERVER_PORT", "PORT"},
		"gemini.apiKey":     {"FACTCHECK_GEMINI_APIKEY", "GEMINI_API_KEY"},
		"gemini.model":      {"FACTCHECK_GEMINI_MODEL", "GEMINI_IMAGE_MODEL"},
		"llm.apiKey":        {"FACTCHECK_LLM_APIKEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"},
		"search.serpAPIKey": {"FACTCHECK_SEARCH_SERPAPIKEY", "SERPAPI_KEY"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 20*1024*1024)
	v.SetDefault("server.maxTextLength", 10000)
	v.SetDefault("server.allowedOrigins", []string{"chrome-extension://", "http://localhost:", "http://127.0.0.1:"})
	v.SetDefault("server.development", false)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 1500)
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.maxAttempts", 1)

	v.SetDefault("gemini.model", "gemini-2.5-pro")
	v.SetDefault("gemini.baseURL", "https://generativelanguage.googleapis.com/v1beta/models")
	v.SetDefault("gemini.timeoutSec", 60)
	v.SetDefault("gemini.maxAttempts", 1)

	v.SetDefault("page.enabled", true)
	v.SetDefault("page.timeoutSec", 15)
	v.SetDefault("page.maxChars", 8000)
	v.SetDefault("page.maxSentences", 60)

	v.SetDefault("search.enabled", true)
	v.SetDefault("search.defaultResults", 5)
	v.SetDefault("search.maxResults", 20)
	v.SetDefault("search.timeoutSec", 10)

	v.SetDefault("resultLog.path", "./data/results.json")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.sqlitePath", "./data/factcheck.db")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.host", "localhost")
	v.SetDefault("cache.port", 6379)
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttlSec", 3600)

	v.SetDefault("rateLimit.requestsPerMinute", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
