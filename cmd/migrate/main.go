package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	cfgPkg "github.com/carljohntruya-art/taskflow-auth/app/config"
	"github.com/carljohntruya-art/taskflow-auth/app/logger"
	"github.com/carljohntruya-art/taskflow-auth/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Applies the embedded goose migrations. Usage: migrate [up|down|status|version]
func main() {
	logger.Init()
	cfgPkg.Load()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	dbAddr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfgPkg.GetString("POSTGRES_USER", "postgres"),
		cfgPkg.GetString("POSTGRES_PASSWORD", "postgres"),
		cfgPkg.GetString("POSTGRES_HOST", "localhost"),
		cfgPkg.GetString("POSTGRES_PORT", "5432"),
		cfgPkg.GetString("POSTGRES_DB", "taskflow"),
		cfgPkg.GetString("POSTGRES_SSLMODE", "disable"),
	)

	db, err := sql.Open("pgx", dbAddr)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to ping database")
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to set goose dialect")
	}

	switch command {
	case "up":
		err = goose.UpContext(ctx, db, ".")
	case "down":
		err = goose.DownContext(ctx, db, ".")
	case "status":
		err = goose.StatusContext(ctx, db, ".")
	case "version":
		var version int64
		version, err = goose.GetDBVersionContext(ctx, db)
		if err == nil {
			logger.Logger.Info().Int64("version", version).Msg("current migration version")
		}
	default:
		logger.Logger.Fatal().Str("command", command).Msg("unknown command, expected up, down, status or version")
	}

	if err != nil {
		logger.Logger.Fatal().Err(err).Str("command", command).Msg("migration failed")
	}

	logger.Logger.Info().Str("command", command).Msg("migration complete")
}
