package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the extraction service
type Config struct {
	General  GeneralConfig  `mapstructure:"general"`
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Scraping ScrapingConfig `mapstructure:"scraping"`
	Images   ImagesConfig   `mapstructure:"images"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LLMConfig contains the language-model provider settings
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// PromptTokenBudget bounds the content handed to the model per request.
	PromptTokenBudget int `mapstructure:"prompt_token_budget"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key not configured (or OPENAI_API_KEY)")
	}
	return nil
}

// ScrapingConfig tunes the fetch cascade and auxiliary-page crawling
type ScrapingConfig struct {
	PlainTimeout     time.Duration `mapstructure:"plain_timeout"`
	RenderTimeout    time.Duration `mapstructure:"render_timeout"`
	BrowserTimeout   time.Duration `mapstructure:"browser_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	MinBodyBytes     int           `mapstructure:"min_body_bytes"`
	MaxPages         int           `mapstructure:"max_pages"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// ImagesConfig tunes image acquisition
type ImagesConfig struct {
	Dir        string        `mapstructure:"dir"`
	Pause      time.Duration `mapstructure:"pause"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	PublicBase string        `mapstructure:"public_base"` // URL prefix served to callers
}

// SessionsConfig controls session storage and expiry
type SessionsConfig struct {
	Store string        `mapstructure:"store"` // inmemory | redis
	TTL   time.Duration `mapstructure:"ttl"`
}

// StorageConfig contains backing-store connection settings
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains redis connection settings
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Pass string `mapstructure:"pass"`
	DB   int    `mapstructure:"db"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) != "" && strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when host is provided")
	}
	return nil
}

// LoadConfig loads config from file, falling back to defaults when no file exists
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("server.allowed_origins", []string{"*"})
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.0)
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.timeout", 60*time.Second)
	viper.SetDefault("llm.prompt_token_budget", 11000)
	viper.SetDefault("scraping.plain_timeout", 10*time.Second)
	viper.SetDefault("scraping.render_timeout", 20*time.Second)
	viper.SetDefault("scraping.browser_timeout", 30*time.Second)
	viper.SetDefault("scraping.max_retries", 3)
	viper.SetDefault("scraping.retry_backoff", 500*time.Millisecond)
	viper.SetDefault("scraping.min_body_bytes", 1000)
	viper.SetDefault("scraping.max_pages", 5)
	viper.SetDefault("scraping.fetch_concurrency", 4)
	viper.SetDefault("scraping.user_agent", "Mozilla/5.0 (compatible; pagesift/1.0)")
	viper.SetDefault("images.dir", "images")
	viper.SetDefault("images.pause", 400*time.Millisecond)
	viper.SetDefault("images.timeout", 10*time.Second)
	viper.SetDefault("images.max_retries", 3)
	viper.SetDefault("images.public_base", "/images")
	viper.SetDefault("sessions.store", "inmemory")
	viper.SetDefault("sessions.ttl", time.Hour)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("PAGESIFT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Defaults plus env are enough to run; only a malformed file is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	return &config
}
