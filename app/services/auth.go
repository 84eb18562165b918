package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carljohntruya-art/taskflow-auth/app/dto"
	appErrors "github.com/carljohntruya-art/taskflow-auth/app/errors"
	"github.com/carljohntruya-art/taskflow-auth/app/logger"
	"github.com/carljohntruya-art/taskflow-auth/app/metrics"
	"github.com/carljohntruya-art/taskflow-auth/app/models"
	"github.com/carljohntruya-art/taskflow-auth/app/ratelimit"
	"github.com/carljohntruya-art/taskflow-auth/app/security"
	"github.com/carljohntruya-art/taskflow-auth/app/store"
)

const (
	// Three wrong passwords lock the account for five minutes.
	lockoutThreshold = 3
	lockoutDuration  = 5 * time.Minute
)

// AuthService orchestrates registration, login and email verification over
// the credential store, the rate limiter and the notification publisher.
type AuthService struct {
	store     store.Storage
	limiter   *ratelimit.Limiter
	rdb       *redis.Client
	publisher EventPublisher
}

func NewAuthService(st store.Storage, limiter *ratelimit.Limiter, rdb *redis.Client, publisher EventPublisher) *AuthService {
	return &AuthService{
		store:     st,
		limiter:   limiter,
		rdb:       rdb,
		publisher: publisher,
	}
}

// redact projects a full credential record down to the fields that may cross
// the service boundary.
func redact(user *models.User) dto.UserResponse {
	return dto.UserResponse{
		ID:     user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Avatar: user.Avatar,
		Role:   user.Role,
	}
}

func avatarURL(name string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random"
}

// Register creates an unverified account. The actor identifies the caller for
// rate limiting (client IP at the HTTP layer). The very first account in an
// empty store becomes the admin.
func (s *AuthService) Register(ctx context.Context, req dto.RegisterRequest, actor string) (*dto.RegisterResponse, *appErrors.AppError) {
	if d := s.limiter.Allow(ctx, ratelimit.ActionRegister, actor); !d.Allowed {
		waitMinutes := int(math.Ceil(float64(d.RetryAfter) / 60))
		return nil, appErrors.NewRateLimited(
			fmt.Sprintf("Too many registration attempts. Please wait %d minutes.", waitMinutes))
	}

	_, err := s.store.Users.GetByEmail(ctx, req.Email)
	if err == nil {
		return nil, appErrors.NewDuplicateEmail()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewInternal("database error while checking email")
	}

	count, err := s.store.Users.Count(ctx)
	if err != nil {
		return nil, appErrors.NewInternal("database error while counting users")
	}
	role := models.RoleUser
	if count == 0 {
		role = models.RoleAdmin
	}

	salt, err := security.GenerateSalt()
	if err != nil {
		return nil, appErrors.NewInternal("error generating salt")
	}
	code, err := security.GenerateVerificationCode()
	if err != nil {
		return nil, appErrors.NewInternal("error generating verification code")
	}

	user := &models.User{
		Name:             req.Name,
		Email:            req.Email,
		Avatar:           avatarURL(req.Name),
		Role:             role,
		Salt:             salt,
		PasswordHash:     security.HashPassword(req.Password, salt),
		IsVerified:       false,
		VerificationCode: code,
	}
	if err := s.store.Users.Create(ctx, user); err != nil {
		return nil, appErrors.NewInternal("error creating user")
	}

	metrics.RecordRegistration()

	// Code delivery is best-effort: the mailer is a separate service, and a
	// broker hiccup must not undo a registration that already persisted.
	if s.publisher != nil {
		if err := s.publisher.PublishVerificationCode(ctx, user.Email, user.Name, code); err != nil {
			s.log(ctx).Error().
				Err(err).
				Int64("user_id", user.ID).
				Msg("failed to publish verification code")
		}
	}

	return &dto.RegisterResponse{
		Message:              "Registration successful. Check your email for the verification code.",
		RequiresVerification: true,
		User:                 redact(user),
	}, nil
}

// Login authenticates a user. Unknown emails and wrong passwords produce the
// same generic failure so callers cannot enumerate accounts; the lockout
// check runs before the password comparison so a locked account reveals
// nothing about the credential supplied.
func (s *AuthService) Login(ctx context.Context, req dto.LoginRequest, actor string) (*dto.AuthResponse, *appErrors.AppError) {
	if d := s.limiter.Allow(ctx, ratelimit.ActionLogin, actor); !d.Allowed {
		return nil, appErrors.NewRateLimited(
			fmt.Sprintf("Too many login attempts. Please wait %d seconds.", d.RetryAfter))
	}

	user, err := s.store.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.limiter.LogSecurityEvent(ctx, ratelimit.KindFailedLogin,
				fmt.Sprintf("Failed login for unknown email (%s)", actor))
			metrics.RecordLoginFailure()
			return nil, appErrors.NewInvalidCredentials()
		}
		return nil, appErrors.NewInternal("error getting user by email")
	}

	now := time.Now()
	if user.Locked(now) {
		return nil, appErrors.NewAccountLocked(remainingMinutes(*user.LockUntil, now))
	}

	if !security.VerifyPassword(req.Password, user.Salt, user.PasswordHash) {
		return nil, s.recordFailedAttempt(ctx, user, now)
	}

	if user.FailedAttempts > 0 || user.LockUntil != nil {
		user.FailedAttempts = 0
		user.LockUntil = nil
		if err := s.store.Users.Update(ctx, user); err != nil {
			s.log(ctx).Error().Err(err).Int64("user_id", user.ID).Msg("failed to reset login attempts")
		}
	}

	if !user.IsVerified {
		return nil, appErrors.NewEmailNotVerified()
	}

	token, err := GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, appErrors.NewInternal("error generating access token")
	}

	metrics.RecordLogin()
	return &dto.AuthResponse{
		AccessToken: token,
		User:        redact(user),
	}, nil
}

// recordFailedAttempt bumps the failure counter, locking the account once the
// threshold is hit.
func (s *AuthService) recordFailedAttempt(ctx context.Context, user *models.User, now time.Time) *appErrors.AppError {
	user.FailedAttempts++
	s.limiter.LogSecurityEvent(ctx, ratelimit.KindFailedLogin,
		fmt.Sprintf("Failed login attempt %d for user %d", user.FailedAttempts, user.ID))
	metrics.RecordLoginFailure()

	var result *appErrors.AppError
	if user.FailedAttempts >= lockoutThreshold {
		lockUntil := now.Add(lockoutDuration)
		user.LockUntil = &lockUntil
		s.limiter.LogSecurityEvent(ctx, ratelimit.KindSuspiciousActivity,
			fmt.Sprintf("Account %d locked after %d failed logins", user.ID, user.FailedAttempts))
		result = appErrors.NewAccountLocked(remainingMinutes(lockUntil, now))
	} else {
		result = appErrors.NewInvalidCredentials()
	}

	if err := s.store.Users.Update(ctx, user); err != nil {
		s.log(ctx).Error().Err(err).Int64("user_id", user.ID).Msg("failed to update login attempts")
	}
	return result
}

// VerifyEmail confirms a pending 6-digit code. A confirmed code is cleared,
// so it cannot be replayed.
func (s *AuthService) VerifyEmail(ctx context.Context, req dto.VerifyEmailRequest) (*dto.VerifyEmailResponse, *appErrors.AppError) {
	user, err := s.store.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("user")
		}
		return nil, appErrors.NewInternal("error getting user by email")
	}

	if user.VerificationCode == "" || user.VerificationCode != req.Code {
		return nil, appErrors.NewInvalidCode()
	}

	user.IsVerified = true
	user.VerificationCode = ""
	if err := s.store.Users.Update(ctx, user); err != nil {
		return nil, appErrors.NewInternal("error updating verification status")
	}

	metrics.RecordVerification()
	return &dto.VerifyEmailResponse{
		Message: "Email verified successfully",
		User:    redact(user),
	}, nil
}

// Logout revokes an access token for the remainder of its lifetime.
func (s *AuthService) Logout(ctx context.Context, accessToken string) *appErrors.AppError {
	if accessToken == "" {
		return appErrors.NewUnauthorized("missing access token")
	}
	if _, err := ValidateAccessToken(ctx, s.rdb, accessToken); err != nil {
		return appErrors.NewUnauthorized("invalid or expired token")
	}
	if err := BlacklistAccessToken(ctx, s.rdb, accessToken); err != nil {
		return appErrors.NewInternal("failed to revoke token")
	}
	return nil
}

// Me returns the redacted projection of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID int64) (*dto.UserResponse, *appErrors.AppError) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("user")
		}
		return nil, appErrors.NewInternal("error getting user")
	}
	resp := redact(user)
	return &resp, nil
}

// SecurityStats exposes limiter state for the admin dashboard.
func (s *AuthService) SecurityStats(ctx context.Context) (*ratelimit.Stats, *appErrors.AppError) {
	stats, err := s.limiter.GetStats(ctx)
	if err != nil {
		return nil, appErrors.NewInternal("failed to read security stats")
	}
	return stats, nil
}

func remainingMinutes(lockUntil, now time.Time) int {
	return int(math.Ceil(lockUntil.Sub(now).Minutes()))
}

// log returns the request-scoped logger if the tracing middleware attached
// one, else the global logger.
func (s *AuthService) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &logger.Logger
}
