package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func Config(key string) string {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}

	return os.Getenv(key)
}

func ConfigInt(key string, fallback int) int {
	raw := Config(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using default %d", key, raw, fallback)
		return fallback
	}
	return n
}

func ConfigHours(key string, fallback time.Duration) time.Duration {
	raw := Config(key)
	if raw == "" {
		return fallback
	}
	h, err := strconv.Atoi(raw)
	if err != nil || h <= 0 {
		log.Printf("Warning: %s=%q is not a positive hour count, using default %s", key, raw, fallback)
		return fallback
	}
	return time.Duration(h) * time.Hour
}
