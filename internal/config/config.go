package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr       string
	SQLitePath string
	CORSOrigin string
	// Redis — empty disables cross-session save notifications
	RedisURL string
	// Optional webhook invoked on every manual save — empty disables it
	RemoteSaveURL string
	// Draft session behaviour
	AutosaveInterval  time.Duration
	RemoteSaveTimeout time.Duration
}

func Load() Config {
	// .env is optional; real environment always wins
	_ = godotenv.Load()

	return Config{
		Addr:              getenv("QUILL_API_ADDR", ":8788"),
		SQLitePath:        getenv("QUILL_SQLITE_PATH", "./data/quill.db"),
		CORSOrigin:        getenv("QUILL_CORS_ORIGIN", "*"),
		RedisURL:          getenv("QUILL_REDIS_URL", "redis://localhost:6379/0"),
		RemoteSaveURL:     getenv("QUILL_REMOTE_SAVE_URL", ""),
		AutosaveInterval:  time.Duration(getenvInt("QUILL_AUTOSAVE_SECONDS", 300)) * time.Second,
		RemoteSaveTimeout: time.Duration(getenvInt("QUILL_REMOTE_SAVE_TIMEOUT_SECONDS", 10)) * time.Second,
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
