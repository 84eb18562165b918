package main

import (
	"fmt"
	"os"

	cfgPkg "github.com/carljohntruya-art/taskflow-auth/app/config"
	"github.com/carljohntruya-art/taskflow-auth/app/logger"
	"github.com/carljohntruya-art/taskflow-auth/app/ratelimit"
	"github.com/carljohntruya-art/taskflow-auth/app/services"
	"github.com/carljohntruya-art/taskflow-auth/app/store"
)

func main() {
	logger.Init()
	cfgPkg.Load()

	if err := validateRequiredEnv(); err != nil {
		logger.Logger.Fatal().Err(err).Msg("required environment variables missing")
	}

	dbUser := cfgPkg.GetString("POSTGRES_USER", "postgres")
	dbPassword := cfgPkg.GetString("POSTGRES_PASSWORD", "postgres")
	dbHost := cfgPkg.GetString("POSTGRES_HOST", "localhost")
	dbPort := cfgPkg.GetString("POSTGRES_PORT", "5432")
	dbName := cfgPkg.GetString("POSTGRES_DB", "taskflow")
	dbSSLMode := cfgPkg.GetString("POSTGRES_SSLMODE", "disable")

	dbAddr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbUser, dbPassword, dbHost, dbPort, dbName, dbSSLMode)

	cfg := config{
		addr: cfgPkg.GetString("ADDR", ":8080"),
		db: dbConfig{
			addr:         dbAddr,
			maxOpenConns: cfgPkg.GetInt("DB_MAX_OPEN_CONNS", 30),
			maxIdleConns: cfgPkg.GetInt("DB_MAX_IDLE_CONNS", 30),
			maxIdleTime:  cfgPkg.GetString("DB_MAX_IDLE_TIME", "15m"),
		},
	}

	logger.Logger.Info().
		Str("host", dbHost).
		Str("database", dbName).
		Msg("connecting to postgres")

	db, err := cfgPkg.NewDB(cfg.db.addr, cfg.db.maxOpenConns, cfg.db.maxIdleConns, cfg.db.maxIdleTime)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer db.Close()

	redisClient, err := cfgPkg.NewRedisClient()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	rabbitConn, rabbitCh, err := cfgPkg.NewRabbitMQConnection()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rabbitConn.Close()
	defer rabbitCh.Close()

	logger.Logger.Info().Msg("postgres, redis and RabbitMQ connections established")

	storage := store.NewStorage(db)
	limiter := ratelimit.New(redisClient)
	publisher := services.NewRabbitMQPublisher(rabbitCh)
	authService := services.NewAuthService(storage, limiter, redisClient, publisher)

	app := &application{
		config:      cfg,
		authService: authService,
		limiter:     limiter,
		redisClient: redisClient,
		db:          db,
		rabbitConn:  rabbitConn,
		rabbitCh:    rabbitCh,
	}

	if err := app.runWithGracefulShutdown(app.mount()); err != nil {
		logger.Logger.Fatal().Err(err).Msg("server error")
	}
}

func validateRequiredEnv() error {
	if os.Getenv("JWT_SECRET") == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}
