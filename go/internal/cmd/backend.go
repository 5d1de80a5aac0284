package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pitdev14/workgp/go/internal/remote"
)

// setupBackend connects the hosted backend when DB_HOST is configured.
// Without it the app runs fully offline against the local store.
func setupBackend(ctx context.Context) (remote.Backend, error) {
	host := getEnv("DB_HOST", "")
	if host == "" {
		log.Info().Msg("no DB_HOST configured, running offline")
		return remote.Noop{}, nil
	}

	dbConfig := DatabaseConfig{
		Host:     host,
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "workgp"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	backend, err := remote.NewPostgresBackend(ctx, dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect backend: %w", err)
	}

	log.Info().
		Str("user", dbConfig.User).
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("connected to hosted backend")
	return backend, nil
}
