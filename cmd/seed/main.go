package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clarezadiaria/api/internal/auth"
	"github.com/clarezadiaria/api/internal/config"
	"github.com/clarezadiaria/api/internal/db"
	"github.com/clarezadiaria/api/internal/domain"
	"github.com/clarezadiaria/api/internal/user"
)

const adminEmail = "admin@gmail.com"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("seed encerrado com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	senha := os.Getenv("SEED_ADMIN_PASSWORD")
	if senha == "" {
		return errors.New("SEED_ADMIN_PASSWORD é obrigatória")
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	repo := user.NewRepository(pool)

	if existente, err := repo.GetByEmail(ctx, adminEmail); err == nil {
		log.Info().Int64("id", existente.ID).Msg("admin já existe, nada a fazer")
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("consulta admin: %w", err)
	}

	hash, err := auth.Hash(senha)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}

	criado, err := repo.Create(ctx, user.Usuario{
		Email:     adminEmail,
		SenhaHash: hash,
		Role:      "admin",
		Nome:      "Administrador",
		PerfilRaw: "Administrador",
	})
	if err != nil {
		return fmt.Errorf("criar admin: %w", err)
	}

	log.Info().Int64("id", criado.ID).Str("email", criado.Email).Msg("admin criado")
	return nil
}
