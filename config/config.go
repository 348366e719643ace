package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Queue backend selectors. The in-process queue is the default; the
// Redis list queue exists for deployments that already run a broker.
const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

type Config struct {
	ListenAddr string

	OutputDir string
	YtDlpPath string

	WorkerCount int

	JobTTL     time.Duration
	SessionTTL time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration
	RateLimitStale  time.Duration

	CleanupInterval time.Duration
	CleanupToken    string

	QueueBackend  string
	QueueCapacity int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PendingQueue  string
}

func Load() *Config {
	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		OutputDir: getEnv("OUTPUT_DIR", "./downloads"),
		YtDlpPath: getEnv("YTDLP_PATH", "yt-dlp"),

		WorkerCount: getEnvInt("WORKER_COUNT", 1),

		JobTTL:     getEnvMinutes("JOB_TTL_MINUTES", 30),
		SessionTTL: getEnvMinutes("SESSION_TTL_MINUTES", 120),

		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 5),
		RateLimitWindow: getEnvMinutes("RATE_LIMIT_WINDOW_MINUTES", 15),
		RateLimitStale:  getEnvMinutes("RATE_LIMIT_STALE_MINUTES", 15),

		CleanupInterval: getEnvMinutes("CLEANUP_INTERVAL_MINUTES", 5),
		CleanupToken:    getEnv("CLEANUP_TOKEN", "default-cleanup-token"),

		QueueBackend:  strings.ToLower(getEnv("QUEUE_BACKEND", QueueBackendMemory)),
		QueueCapacity: getEnvInt("QUEUE_CAPACITY", 1024),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		PendingQueue:  getEnv("PENDING_QUEUE", "download:pending"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvMinutes(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Minute
}
