package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads KEY=value pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped; secrets can always come from the real environment.
func LoadEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			slog.Debug("config: no env file, reading from environment", "path", p)
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("config: env file could not be loaded", "path", p, "err", err)
			continue
		}
		slog.Info("config: env file loaded", "path", p)
	}
}
