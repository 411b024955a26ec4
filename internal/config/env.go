package config

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; variables already set in the process win.
var envFiles = []string{".env", ".env.local"}

// loadEnvFiles loads every present .env file. godotenv.Load never overrides
// existing variables, so the process environment always takes precedence.
func loadEnvFiles(paths ...string) error {
	for _, p := range paths {
		err := godotenv.Load(p)
		if err == nil {
			slog.Debug("Loaded environment file", slog.String("path", p))
			continue
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return err
	}
	return nil
}
