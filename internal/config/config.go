package config

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// Config is the process configuration, sourced from environment variables.
// With no DATABASE_URL the server runs on the in-memory store, which is the
// expected mode for local single-user use.
type Config struct {
	Port             string
	DBURL            string
	UseInMemoryStore bool
	Environment      string
}

// Load reads the environment, after loading a .env file when one is found
// next to the binary or in the working directory.
func Load() Config {
	loadDotEnv()

	cfg := Config{
		Port:        envOr("PORT", "8080"),
		DBURL:       os.Getenv("DATABASE_URL"),
		Environment: envOr("ENVIRONMENT", "local"),
	}
	cfg.UseInMemoryStore = cfg.DBURL == ""
	return cfg
}

// GinMode maps the environment to a gin mode: release everywhere except
// local and dev.
func (c Config) GinMode() string {
	switch c.Environment {
	case "local", "dev":
		return gin.DebugMode
	default:
		return gin.ReleaseMode
	}
}

func loadDotEnv() {
	candidates := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		candidates = append([]string{filepath.Join(filepath.Dir(exe), ".env")}, candidates...)
	}
	for _, path := range candidates {
		if godotenv.Load(path) == nil {
			return
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
