package setup

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"dialogeval/internal/config"
	"dialogeval/internal/conversation"
	"dialogeval/internal/dialogflow"
	"dialogeval/internal/judge"
	"dialogeval/internal/llm"
	"dialogeval/internal/llm/bedrock"
	"dialogeval/internal/llm/gemini"
	"dialogeval/internal/redis"
	"dialogeval/internal/run"
	"dialogeval/internal/store"
)

type Config struct {
	DB store.Config

	RedisAddr     string
	RedisPassword string
	ModelCacheTTL time.Duration

	JudgeProvider string
	GeminiAPIKey  string
	AWSRegion     string
	ClaudeModelID string

	DialogflowToken string

	JudgeMaxTokens   int
	JudgeTemperature float64
	InterTurnDelay   time.Duration
	InterChunkDelay  time.Duration
	SequentialDelay  time.Duration
}

type Dependencies struct {
	Store      *store.Store
	Directory  *llm.Directory
	Controller *run.Controller
	Logger     *zerolog.Logger
}

func LoadConfig() *Config {
	return &Config{
		DB: store.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "dialogeval"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		ModelCacheTTL:    getEnvDuration("MODEL_CACHE_TTL", 10*time.Minute),
		JudgeProvider:    getEnv("JUDGE_PROVIDER", "gemini"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		ClaudeModelID:    getEnv("CLAUDE_MODEL_ID", ""),
		DialogflowToken:  getEnv("DIALOGFLOW_ACCESS_TOKEN", ""),
		JudgeMaxTokens:   getEnvInt("JUDGE_MAX_TOKENS", 512),
		JudgeTemperature: getEnvFloat("JUDGE_TEMPERATURE", 0.0),
		InterTurnDelay:   getEnvDuration("INTER_TURN_DELAY", 150*time.Millisecond),
		InterChunkDelay:  getEnvDuration("INTER_CHUNK_DELAY", time.Second),
		SequentialDelay:  getEnvDuration("SEQUENTIAL_CALL_DELAY", 200*time.Millisecond),
	}
}

func Wire(ctx context.Context, cfg *Config, logger *zerolog.Logger) (*Dependencies, error) {
	db, err := store.New(ctx, cfg.DB, logger)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	seed, err := config.LoadParameterSeed()
	if err != nil {
		return nil, fmt.Errorf("failed to load parameter seed: %w", err)
	}
	if err := db.SeedDefaultParameters(ctx, seed); err != nil {
		return nil, err
	}

	directory, err := buildDirectory(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	dfClient := dialogflow.NewClient(dialogflow.StaticToken(cfg.DialogflowToken), logger)
	runner := conversation.NewRunner(dfClient, conversation.Options{
		InterTurnDelay: cfg.InterTurnDelay,
	}, logger)

	controller := run.NewController(db, runner, directory,
		judge.Options{MaxTokens: cfg.JudgeMaxTokens, Temperature: cfg.JudgeTemperature},
		run.CoordinatorOptions{
			InterChunkDelay: cfg.InterChunkDelay,
			SequentialDelay: cfg.SequentialDelay,
		}, logger)

	return &Dependencies{
		Store:      db,
		Directory:  directory,
		Controller: controller,
		Logger:     logger,
	}, nil
}

// buildDirectory wires the judge model directory for the configured
// provider. Gemini gets catalog checking backed by the Redis cache when one
// is configured; Bedrock has no list API here, so resolution builds the
// client directly.
func buildDirectory(ctx context.Context, cfg *Config, logger *zerolog.Logger) (*llm.Directory, error) {
	switch cfg.JudgeProvider {
	case "bedrock":
		builder := func(modelID string) (llm.LLMClient, error) {
			return bedrock.NewClient(ctx, cfg.AWSRegion, cfg.ClaudeModelID)
		}
		return llm.NewDirectory(builder, nil, nil, logger), nil

	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini judge provider")
		}

		lister, err := gemini.NewClient(cfg.GeminiAPIKey, llm.DefaultModelID)
		if err != nil {
			return nil, err
		}

		var cache llm.ModelListCache
		if cfg.RedisAddr != "" {
			redisClient, err := redis.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, 3, logger)
			if err != nil {
				return nil, err
			}
			cache = llm.NewRedisModelListCache(redisClient, cfg.ModelCacheTTL, logger)
		}

		builder := func(modelID string) (llm.LLMClient, error) {
			return gemini.NewClient(cfg.GeminiAPIKey, modelID)
		}
		return llm.NewDirectory(builder, lister, cache, logger), nil

	default:
		return nil, fmt.Errorf("unknown judge provider %q", cfg.JudgeProvider)
	}
}

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}

	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		value = defaultValue
	}

	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		value = defaultValue
	}

	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		value = defaultValue
	}

	return value
}
