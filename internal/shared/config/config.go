package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"intake-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string
	DatabaseURL     string
	AutoMigrate     bool

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	BlobTimeout     time.Duration

	QueueBackend      string
	SQSQueueURLs      map[string]string
	NATSURL           string
	NATSStream        string
	WorkerQueue       string
	WorkerMaxInFlight int

	// APIKeys maps static API keys to tenant ids. Used when no database is configured.
	APIKeys        map[string]string
	WebhookSecrets map[string]string

	QualityMinPassScore int

	// RateLimits maps a route group to "rate:burst".
	RateLimits map[string]string

	SweepInterval   time.Duration
	SweepStaleAfter time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		telemetry.Warn("config.database_url.missing", map[string]any{"env": env})
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,
		DatabaseURL:     dbURL,
		AutoMigrate:     getBool("AUTO_MIGRATE", env == "dev"),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		BlobTimeout:     getDuration("BLOB_TIMEOUT", 30*time.Second),

		QueueBackend:      normalizeQueueBackend(getEnv("QUEUE_BACKEND", "memory")),
		SQSQueueURLs:      parsePairs(getEnv("SQS_QUEUE_URLS", ""), "="),
		NATSURL:           getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		NATSStream:        getEnv("NATS_STREAM", "INTAKE_JOBS"),
		WorkerQueue:       getEnv("WORKER_QUEUE", "results"),
		WorkerMaxInFlight: getInt("WORKER_MAX_IN_FLIGHT", 4),

		APIKeys:        parsePairs(getEnv("API_KEYS", ""), ":"),
		WebhookSecrets: parsePairs(getEnv("WEBHOOK_SECRETS", ""), "="),

		QualityMinPassScore: getInt("QUALITY_MIN_PASS_SCORE", 70),

		RateLimits: parsePairs(getEnv("RATE_LIMITS", "read=10:40,ingest=25:100"), "="),

		SweepInterval:   getDuration("SWEEP_INTERVAL", time.Minute),
		SweepStaleAfter: getDuration("SWEEP_STALE_AFTER", 30*time.Minute),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		telemetry.Warn("config.int.invalid", map[string]any{"key": key, "value": raw})
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		telemetry.Warn("config.env.invalid_bool", map[string]any{"key": key, "value": raw})
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		telemetry.Warn("config.duration.invalid", map[string]any{"key": key, "value": raw})
		return def
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parsePairs reads "a=b,c=d" style lists.
func parsePairs(raw, sep string) map[string]string {
	out := map[string]string{}
	for _, item := range splitAndTrim(raw) {
		k, v, ok := strings.Cut(item, sep)
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "memory":
		return "memory"
	default:
		return "local"
	}
}

func normalizeQueueBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "nats", "jetstream":
		return "nats"
	default:
		return "memory"
	}
}
