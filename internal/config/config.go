// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Env         string `validate:"oneof=development production test"`
	Port        string `validate:"required,numeric"`
	LogFilePath string

	BusinessTable string
	KnowledgeDir  string

	Completion CompletionConfig
	Cache      CacheConfig
	RAG        RAGConfig
	Chat       ChatConfig
}

// CompletionConfig controls the OpenAI-compatible completion endpoint.
type CompletionConfig struct {
	APIKey             string
	ParamPrefix        string
	BaseURL            string        `validate:"required,url"`
	Model              string        `validate:"required"`
	MaxTokens          int           `validate:"gt=0"`
	Temperature        float64       `validate:"gte=0,lte=2"`
	TopP               float64       `validate:"gt=0,lte=1"`
	Timeout            time.Duration `validate:"gt=0"`
	TranslationEnabled bool
}

// CacheConfig controls the per-business knowledge base cache.
type CacheConfig struct {
	TTL     time.Duration `validate:"gt=0"`
	MaxSize int           `validate:"gt=0"`
}

// RAGConfig controls retrieval and context assembly.
type RAGConfig struct {
	TopK                int     `validate:"gt=0"`
	SimilarityThreshold float64 `validate:"gte=0,lte=1"`
	MaxContextLength    int     `validate:"gt=0"`
}

// ChatConfig controls session history and inbound message limits.
type ChatConfig struct {
	HistoryMaxTurns    int `validate:"gt=0"`
	HistoryPromptTurns int `validate:"gt=0"`
	MaxMessageLength   int `validate:"gt=0"`
}

// Load reads configuration from the environment, loading a .env file first
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:           strings.ToLower(getEnv("APP_ENV", "development")),
		Port:          getEnv("PORT", "3002"),
		LogFilePath:   getEnv("LOG_FILE_PATH", ""),
		BusinessTable: getEnv("BUSINESS_TABLE", ""),
		KnowledgeDir:  getEnv("KNOWLEDGE_DIR", ""),
		Completion: CompletionConfig{
			APIKey:             getEnv("COMPLETION_API_KEY", ""),
			ParamPrefix:        strings.TrimRight(getEnv("PARAM_PREFIX", ""), "/"),
			BaseURL:            getEnv("COMPLETION_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:              getEnv("COMPLETION_MODEL", "llama-3.1-70b-versatile"),
			MaxTokens:          getEnvInt("MAX_TOKENS", 200),
			Temperature:        getEnvFloat("TEMPERATURE", 0.8),
			TopP:               getEnvFloat("TOP_P", 0.9),
			Timeout:            getEnvDuration("COMPLETION_TIMEOUT", 15*time.Second),
			TranslationEnabled: getEnvBool("TRANSLATION_ENABLED", true),
		},
		Cache: CacheConfig{
			TTL:     getEnvDuration("CACHE_TTL", 5*time.Minute),
			MaxSize: getEnvInt("CACHE_MAX_SIZE", 100),
		},
		RAG: RAGConfig{
			TopK:                getEnvInt("RAG_TOP_K", 5),
			SimilarityThreshold: getEnvFloat("RAG_SIMILARITY_THRESHOLD", 0.2),
			MaxContextLength:    getEnvInt("RAG_MAX_CONTEXT_LENGTH", 2000),
		},
		Chat: ChatConfig{
			HistoryMaxTurns:    getEnvInt("HISTORY_MAX_TURNS", 20),
			HistoryPromptTurns: getEnvInt("HISTORY_PROMPT_TURNS", 6),
			MaxMessageLength:   getEnvInt("MAX_MESSAGE_LENGTH", 1000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Chat.HistoryPromptTurns > c.Chat.HistoryMaxTurns {
		return fmt.Errorf("HISTORY_PROMPT_TURNS (%d) must not exceed HISTORY_MAX_TURNS (%d)",
			c.Chat.HistoryPromptTurns, c.Chat.HistoryMaxTurns)
	}
	return nil
}

// IsDevelopment reports whether internal error detail may be shown to callers.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// CompletionConfigured reports whether any completion credential source is set.
func (c *Config) CompletionConfigured() bool {
	return c.Completion.APIKey != "" || c.Completion.ParamPrefix != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// getEnvDuration accepts Go duration strings ("5m") or plain milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
