package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carljohntruya-art/taskflow-auth/app/dto"
	"github.com/carljohntruya-art/taskflow-auth/app/errors"
	"github.com/carljohntruya-art/taskflow-auth/app/logger"
	"github.com/carljohntruya-art/taskflow-auth/app/metrics"
	authmw "github.com/carljohntruya-art/taskflow-auth/app/middleware"
	"github.com/carljohntruya-art/taskflow-auth/app/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// authenticator is the surface of the auth service the handlers depend on.
// Declared here so handler tests can substitute a mock.
type authenticator interface {
	Register(ctx context.Context, req dto.RegisterRequest, actor string) (*dto.RegisterResponse, *errors.AppError)
	Login(ctx context.Context, req dto.LoginRequest, actor string) (*dto.AuthResponse, *errors.AppError)
	VerifyEmail(ctx context.Context, req dto.VerifyEmailRequest) (*dto.VerifyEmailResponse, *errors.AppError)
	Logout(ctx context.Context, accessToken string) *errors.AppError
	Me(ctx context.Context, userID int64) (*dto.UserResponse, *errors.AppError)
	SecurityStats(ctx context.Context) (*ratelimit.Stats, *errors.AppError)
}

type application struct {
	config      config
	authService authenticator
	limiter     *ratelimit.Limiter
	redisClient *redis.Client
	db          interface {
		PingContext(ctx context.Context) error
		Close() error
	}
	rabbitConn interface {
		IsClosed() bool
		Close() error
	}
	rabbitCh interface {
		IsClosed() bool
		Close() error
	}
}

type dbConfig struct {
	addr         string
	maxOpenConns int
	maxIdleConns int
	maxIdleTime  string
}

type config struct {
	addr string
	db   dbConfig
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(authmw.RequestIDTracing()) // Propagate request ID to logger and context
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Metrics middleware - record HTTP metrics
	r.Use(authmw.Metrics())

	// Security headers - must be early to protect all responses
	r.Use(authmw.SecurityHeaders())

	// CORS middleware - must be early in the chain to handle preflight requests
	r.Use(authmw.CORS())

	// Set a timeout value on the request context (ctx), that will signal
	// through ctx.Done() that the request has timed out and further
	// processing should be stopped.
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", app.healthCheckHandler)

	// Prometheus metrics endpoint
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/api/auth", func(r chi.Router) {
		// Registration and login consult the rate limiter inside the service
		// layer so a blocked attempt is recorded in the security log.
		r.Post("/register", app.registerHandler)
		r.Post("/login", app.loginHandler)
		r.Post("/verify-email", app.verifyEmailHandler)
		r.Post("/logout", app.logoutHandler)

		// Protected endpoints share the general API budget.
		r.Group(func(pr chi.Router) {
			pr.Use(authmw.JWTAuth(app.redisClient))
			pr.Use(authmw.RateLimit(app.limiter, ratelimit.ActionAPI, authmw.PrincipalUserOrIP()))
			pr.Get("/me", app.meHandler)
			pr.With(authmw.RequireRole("admin")).Get("/security/stats", app.securityStatsHandler)
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	srv := http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  time.Minute,
	}
	logger.Logger.Info().Str("addr", app.config.addr).Msg("Starting server")
	return srv.ListenAndServe()
}

// runWithGracefulShutdown starts the server and handles SIGTERM/SIGINT,
// allowing in-flight requests to complete before closing connections.
func (app *application) runWithGracefulShutdown(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  time.Minute,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Logger.Info().Str("addr", app.config.addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Logger.Info().Str("signal", sig.String()).Msg("Received signal, starting graceful shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stops accepting new connections and waits for in-flight requests.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("Server forced to shutdown")
		return err
	}

	logger.Logger.Info().Msg("Server gracefully stopped")

	if err := app.db.Close(); err != nil {
		logger.Logger.Error().Err(err).Msg("Error closing database")
	}
	if err := app.redisClient.Close(); err != nil {
		logger.Logger.Error().Err(err).Msg("Error closing Redis")
	}
	if err := app.rabbitCh.Close(); err != nil {
		logger.Logger.Error().Err(err).Msg("Error closing RabbitMQ channel")
	}
	if err := app.rabbitConn.Close(); err != nil {
		logger.Logger.Error().Err(err).Msg("Error closing RabbitMQ connection")
	}

	logger.Logger.Info().Msg("Graceful shutdown completed")
	return nil
}

// writeErrorResponse writes an error response in a consistent format
func writeErrorResponse(w http.ResponseWriter, appErr *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)

	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error: appErr.Message,
		Code:  string(appErr.Code),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
