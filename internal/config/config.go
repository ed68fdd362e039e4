package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port              string
	Env               string
	LogLevel          string
	LogFormat         string
	UseMemoryQueue    bool
	WorkerCount       int
	WorkerMetricsAddr string
	DatabaseURL       string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	ConversationQueueURL string
	RunAuditTable        string
	TranscriptBucket     string

	// LLM providers
	OpenAIAPIKey            string
	OpenAIModel             string
	OpenAIEmbeddingModel    string
	BedrockModelID          string
	BedrockEmbeddingModelID string
	GeminiAPIKey            string
	GeminiModel             string

	// Run loop and conversation state
	RunMaxCycles          int
	RunPollInterval       time.Duration
	RunTimeout            time.Duration
	HistoryWindow         int
	StateIdleTTL          time.Duration
	StateSweepSchedule    string
	FollowUpDispatchSched string
	DedupeRetention       time.Duration
	DedupePruneSchedule   string
	TranscriptSchedule    string

	// Chat gateway transport
	GatewayBaseURL       string
	GatewayAPIKey        string
	GatewayWebhookSecret string
	GatewaySessionMap    string

	AdminJWTSecret       string
	WebhookRatePerSecond float64
	WebhookBurst         int

	// Operator email notifications
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		UseMemoryQueue:    getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:       getEnvAsInt("WORKER_COUNT", 4),
		WorkerMetricsAddr: getEnv("WORKER_METRICS_ADDR", ""),
		DatabaseURL:       getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),
		RunAuditTable:        getEnv("RUN_AUDIT_TABLE", ""),
		TranscriptBucket:     getEnv("TRANSCRIPT_ARCHIVE_BUCKET", ""),

		OpenAIAPIKey:            getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingModel:    getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		BedrockModelID:          getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", ""),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiModel:             getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		RunMaxCycles:          getEnvAsInt("RUN_MAX_CYCLES", 10),
		RunPollInterval:       getEnvAsDuration("RUN_POLL_INTERVAL", 500*time.Millisecond),
		RunTimeout:            getEnvAsDuration("RUN_TIMEOUT", 90*time.Second),
		HistoryWindow:         getEnvAsInt("HISTORY_WINDOW", 12),
		StateIdleTTL:          getEnvAsDuration("STATE_IDLE_TTL", 60*time.Minute),
		StateSweepSchedule:    getEnv("STATE_SWEEP_SCHEDULE", "@every 1m"),
		FollowUpDispatchSched: getEnv("FOLLOWUP_DISPATCH_SCHEDULE", "@every 1m"),
		DedupeRetention:       getEnvAsDuration("DEDUPE_RETENTION", 72*time.Hour),
		DedupePruneSchedule:   getEnv("DEDUPE_PRUNE_SCHEDULE", "@every 1h"),
		TranscriptSchedule:    getEnv("TRANSCRIPT_ARCHIVE_SCHEDULE", "30 0 * * *"),

		GatewayBaseURL:       strings.TrimRight(getEnv("GATEWAY_BASE_URL", ""), "/"),
		GatewayAPIKey:        getEnv("GATEWAY_API_KEY", ""),
		GatewayWebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		GatewaySessionMap:    getEnv("GATEWAY_SESSION_MAP_JSON", ""),

		AdminJWTSecret:       getEnv("ADMIN_JWT_SECRET", ""),
		WebhookRatePerSecond: getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 20),
		WebhookBurst:         getEnvAsInt("WEBHOOK_BURST", 40),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Storefront AI"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
