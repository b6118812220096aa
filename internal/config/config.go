package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	PublicBaseURL      string // Base URL served asset links are built from

	// Redis
	RedisURL string

	// Gemini (planning, image, speech, and video generation)
	GeminiKey   string
	PlanModel   string
	ImageModel  string
	TTSModel    string
	VeoModel    string
	VeoPollMax  time.Duration

	// Planning provider: "gemini" (default) or "openai"
	PlanProvider string
	OpenAIKey    string
	OpenAIModel  string

	// ElevenLabs (preferred voice-over provider when a key is set)
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// Narrative structure catalog overlay (empty = built-in only)
	StructuresPath string

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		PlanModel:          getEnv("PLAN_MODEL", ""),
		ImageModel:         getEnv("IMAGE_MODEL", ""),
		TTSModel:           getEnv("TTS_MODEL", ""),
		VeoModel:           getEnv("VEO_MODEL", ""),
		VeoPollMax:         getEnvDuration("VEO_MAX_POLL_DURATION", 10*time.Minute),
		PlanProvider:       getEnv("PLAN_PROVIDER", "gemini"),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", ""),
		ElevenLabsKey:      getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:  getEnv("ELEVENLABS_VOICE_ID", ""),
		StructuresPath:     getEnv("STRUCTURES_PATH", ""),
		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 5),
	}

	switch cfg.PlanProvider {
	case "gemini":
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when PLAN_PROVIDER=openai")
		}
	default:
		return nil, fmt.Errorf("unknown PLAN_PROVIDER %q (expected gemini or openai)", cfg.PlanProvider)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
