package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/config"
	"github.com/aristath/tender/internal/database"
)

// InitializeDatabases opens the tender store and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileStandard,
		Name:    "tender",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tender database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate tender database: %w", err)
	}

	log.Info().Str("path", db.Path()).Msg("Database initialized")

	return &Container{DB: db}, nil
}
