package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Missing .env is fine, process env takes over.
	godotenv.Load(".env")
}

// Config returns the value of an environment variable.
func Config(key string) string {
	return os.Getenv(key)
}

// Int returns an integer environment variable or the fallback when unset or malformed.
func Int(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}

// Duration reads an integer environment variable and scales it by unit.
func Duration(key string, fallback int, unit time.Duration) time.Duration {
	return time.Duration(Int(key, fallback)) * unit
}
