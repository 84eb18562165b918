package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	applogger "github.com/carljohntruya-art/taskflow-auth/app/logger"
)

// RequestIDTracing propagates the chi request id into the response header,
// the request-scoped logger and the context.
func RequestIDTracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetReqID(r.Context())
			if requestID == "" {
				requestID = strconv.FormatUint(middleware.NextRequestID(), 10)
			}

			w.Header().Set("X-Request-ID", requestID)

			log := applogger.Logger.With().Str("request_id", requestID).Logger()
			ctx := log.WithContext(r.Context())
			ctx = context.WithValue(ctx, "request_id", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestIDFromContext retrieves the request id stored by RequestIDTracing.
func GetRequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value("request_id").(string); ok {
		return requestID
	}
	return ""
}

// GetLoggerFromContext retrieves the request-scoped logger, falling back to
// the global one.
func GetLoggerFromContext(ctx context.Context) zerolog.Logger {
	log := zerolog.Ctx(ctx)
	if log.GetLevel() == zerolog.Disabled {
		return applogger.Logger
	}
	return *log
}
