package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings. It is loaded once at startup.
type Config struct {
	ListenAddr string
	LogLevel   string

	LLMProvider       string
	LLMModel          string
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OllamaHost        string
	OllamaToken       string
	MistralAPIKey     string
	GoogleAIAPIKey    string
	LLMMaxTokens      int
	LLMJSONMode       bool
	RequestsPerMinute float64
	MaxRetries        int
	TokenLimit        int

	Passcode       string
	AllowedIPs     []string
	TrustedProxies []string
	SessionTTL     time.Duration

	DBPath     string
	PromptsDir string
}

const (
	defaultAnthropicModel = "claude-3-5-sonnet-20241022"
	defaultMaxTokens      = 4000
	inMemoryDB            = "file::memory:?cache=shared"
)

// LoadConfig reads the environment (and a .env file when present).
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	provider := strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "anthropic")))

	cfg := Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:   strings.ToLower(getEnv("LOG_LEVEL", "")),

		LLMProvider:       provider,
		LLMModel:          getEnv("LLM_MODEL", defaultModel(provider)),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", os.Getenv("CLAUDE_API_KEY")),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		OllamaHost:        getEnv("OLLAMA_HOST", "http://127.0.0.1:11434"),
		OllamaToken:       getEnv("OLLAMA_API_KEY", ""),
		MistralAPIKey:     getEnv("MISTRAL_API_KEY", ""),
		GoogleAIAPIKey:    getEnv("GOOGLEAI_API_KEY", ""),
		LLMMaxTokens:      getEnvInt("LLM_MAX_TOKENS", defaultMaxTokens),
		LLMJSONMode:       getEnvBool("LLM_JSON_MODE", false),
		RequestsPerMinute: getEnvFloat("LLM_REQUESTS_PER_MINUTE", 0),
		MaxRetries:        getEnvInt("LLM_MAX_RETRIES", 0),
		TokenLimit:        getEnvInt("TOKEN_LIMIT", 0),

		Passcode:       getEnv("PDF_AI_PASSCODE", ""),
		AllowedIPs:     splitList(getEnv("ALLOWED_IPS", "127.0.0.1,::1")),
		TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),
		SessionTTL:     getEnvDuration("SESSION_TTL", 24*time.Hour),

		DBPath:     getEnv("DB_PATH", inMemoryDB),
		PromptsDir: getEnv("PROMPTS_DIR", "prompts"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o"
	case "ollama":
		return "llama3.1"
	case "mistral":
		return "mistral-large-latest"
	case "googleai":
		return "gemini-2.0-flash"
	default:
		return defaultAnthropicModel
	}
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.Passcode) == "" {
		errs = append(errs, errors.New("missing required env var: PDF_AI_PASSCODE"))
	}
	if c.LLMModel == "" {
		errs = append(errs, errors.New("missing required env var: LLM_MODEL"))
	}
	if c.LLMMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.LLMMaxTokens))
	}

	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("missing required env var: ANTHROPIC_API_KEY"))
		}
	case "openai":
		// OPENAI_API_KEY may be empty for OpenAI-compatible servers behind OPENAI_BASE_URL.
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("missing required env var: OPENAI_API_KEY"))
		}
	case "ollama":
	case "mistral":
		if c.MistralAPIKey == "" {
			errs = append(errs, errors.New("missing required env var: MISTRAL_API_KEY"))
		}
	case "googleai":
		if c.GoogleAIAPIKey == "" {
			errs = append(errs, errors.New("missing required env var: GOOGLEAI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider))
	}

	return errors.Join(errs...)
}

// structuredOutputEnabled reports whether JSON mode is requested and the
// provider honors it.
func (c Config) structuredOutputEnabled() bool {
	return c.LLMJSONMode && (c.LLMProvider == "ollama" || c.LLMProvider == "openai")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Warnf("Invalid %s value '%s', using default %d", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warnf("Invalid %s value '%s', using default %v", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		log.Warnf("Invalid %s value '%s', using default %v", key, value, fallback)
		return fallback
	}
	return parsed
}
