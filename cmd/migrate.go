package cmd

import (
	"fmt"
	"log/slog"

	"github.com/chalssak/chalssak/db"
	"github.com/chalssak/chalssak/internal/config"
)

// runMigrate applies pending database migrations and exits.
// Useful for applying schema changes without starting the server.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("migrations applied")
	return nil
}
