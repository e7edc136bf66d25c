package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile      string
	Addr        string
	UploadsPath string
}

func Load() (*Config, error) {
	// .env is optional; the real environment wins either way
	_ = godotenv.Load()

	cfg := &Config{
		DBFile:      getEnv("TALKROOM_DB", "talkroom.db"),
		Addr:        getEnv("ADDR", ":8080"),
		UploadsPath: getEnv("UPLOADS_PATH", "uploads"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBFile == "" {
		return fmt.Errorf("TALKROOM_DB must not be empty")
	}
	if c.Addr == "" {
		return fmt.Errorf("ADDR must not be empty")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
