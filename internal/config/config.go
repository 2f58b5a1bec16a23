package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	DatabaseURL string
	RedisURL    string

	MeiliSearchHost string
	MeiliMasterKey  string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	SessionCreateLimit time.Duration

	ReminderInterval   time.Duration
	SweepInterval      time.Duration
	InvitationInterval time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		MeiliSearchHost: getEnv("MEILISEARCH_HOST", "http://localhost:7700"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),
	}

	var err error
	cfg.SessionCreateLimit, err = parseDuration(getEnv("RATE_LIMIT_SESSION_CREATE", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SESSION_CREATE: %w", err)
	}
	cfg.ReminderInterval, err = parseDuration(getEnv("REMINDER_INTERVAL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_INTERVAL: %w", err)
	}
	cfg.SweepInterval, err = parseDuration(getEnv("ORPHAN_SWEEP_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid ORPHAN_SWEEP_INTERVAL: %w", err)
	}
	cfg.InvitationInterval, err = parseDuration(getEnv("INVITATION_EXPIRY_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid INVITATION_EXPIRY_INTERVAL: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
