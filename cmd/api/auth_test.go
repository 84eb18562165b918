package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carljohntruya-art/taskflow-auth/app/dto"
	"github.com/carljohntruya-art/taskflow-auth/app/errors"
	"github.com/carljohntruya-art/taskflow-auth/app/models"
	"github.com/carljohntruya-art/taskflow-auth/app/ratelimit"
	"github.com/carljohntruya-art/taskflow-auth/app/services"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret-key-for-handlers")
	os.Exit(m.Run())
}

// mockAuthService is a mock implementation of the authenticator interface
type mockAuthService struct {
	registerFunc      func(ctx context.Context, req dto.RegisterRequest, actor string) (*dto.RegisterResponse, *errors.AppError)
	loginFunc         func(ctx context.Context, req dto.LoginRequest, actor string) (*dto.AuthResponse, *errors.AppError)
	verifyFunc        func(ctx context.Context, req dto.VerifyEmailRequest) (*dto.VerifyEmailResponse, *errors.AppError)
	logoutFunc        func(ctx context.Context, accessToken string) *errors.AppError
	meFunc            func(ctx context.Context, userID int64) (*dto.UserResponse, *errors.AppError)
	securityStatsFunc func(ctx context.Context) (*ratelimit.Stats, *errors.AppError)
}

func (m *mockAuthService) Register(ctx context.Context, req dto.RegisterRequest, actor string) (*dto.RegisterResponse, *errors.AppError) {
	if m.registerFunc != nil {
		return m.registerFunc(ctx, req, actor)
	}
	return &dto.RegisterResponse{Message: "ok", RequiresVerification: true}, nil
}

func (m *mockAuthService) Login(ctx context.Context, req dto.LoginRequest, actor string) (*dto.AuthResponse, *errors.AppError) {
	if m.loginFunc != nil {
		return m.loginFunc(ctx, req, actor)
	}
	return &dto.AuthResponse{AccessToken: "token"}, nil
}

func (m *mockAuthService) VerifyEmail(ctx context.Context, req dto.VerifyEmailRequest) (*dto.VerifyEmailResponse, *errors.AppError) {
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, req)
	}
	return &dto.VerifyEmailResponse{Message: "Email verified successfully"}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, accessToken string) *errors.AppError {
	if m.logoutFunc != nil {
		return m.logoutFunc(ctx, accessToken)
	}
	return nil
}

func (m *mockAuthService) Me(ctx context.Context, userID int64) (*dto.UserResponse, *errors.AppError) {
	if m.meFunc != nil {
		return m.meFunc(ctx, userID)
	}
	return &dto.UserResponse{ID: userID}, nil
}

func (m *mockAuthService) SecurityStats(ctx context.Context) (*ratelimit.Stats, *errors.AppError) {
	if m.securityStatsFunc != nil {
		return m.securityStatsFunc(ctx)
	}
	return &ratelimit.Stats{}, nil
}

func newTestApp(t *testing.T, svc authenticator) *application {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &application{
		config:      config{addr: ":0"},
		authService: svc,
		limiter:     ratelimit.New(rdb),
		redisClient: rdb,
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

func TestRegisterHandler_Success(t *testing.T) {
	var gotReq dto.RegisterRequest
	svc := &mockAuthService{
		registerFunc: func(ctx context.Context, req dto.RegisterRequest, actor string) (*dto.RegisterResponse, *errors.AppError) {
			gotReq = req
			return &dto.RegisterResponse{
				Message:              "Registration successful. Check your email for the verification code.",
				RequiresVerification: true,
				User:                 dto.UserResponse{ID: 1, Email: req.Email},
			}, nil
		},
	}
	app := newTestApp(t, svc)

	rr := postJSON(t, app.registerHandler, "/api/auth/register", map[string]string{
		"name":     "Alice Smith",
		"email":    "Alice@Example.com",
		"password": "Password123",
	})

	assert.Equal(t, http.StatusCreated, rr.Code)
	// Email is normalized before the service sees it.
	assert.Equal(t, "alice@example.com", gotReq.Email)

	var resp dto.RegisterResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.RequiresVerification)
}

func TestRegisterHandler_InvalidJSON(t *testing.T) {
	app := newTestApp(t, &mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	app.registerHandler(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rr).Code)
}

func TestRegisterHandler_ValidationFailures(t *testing.T) {
	app := newTestApp(t, &mockAuthService{})

	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing fields", map[string]string{}},
		{"bad email", map[string]string{"name": "Alice", "email": "not-an-email", "password": "Password123"}},
		{"short password", map[string]string{"name": "Alice", "email": "a@b.com", "password": "Pw1"}},
		{"weak password", map[string]string{"name": "Alice", "email": "a@b.com", "password": "alllowercase1"}},
		{"short name", map[string]string{"name": "A", "email": "a@b.com", "password": "Password123"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postJSON(t, app.registerHandler, "/api/auth/register", tc.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "INVALID_INPUT", decodeError(t, rr).Code)
		})
	}
}

func TestRegisterHandler_ServiceErrorsPassThrough(t *testing.T) {
	svc := &mockAuthService{
		registerFunc: func(ctx context.Context, req dto.RegisterRequest, actor string) (*dto.RegisterResponse, *errors.AppError) {
			return nil, errors.NewDuplicateEmail()
		},
	}
	app := newTestApp(t, svc)

	rr := postJSON(t, app.registerHandler, "/api/auth/register", map[string]string{
		"name": "Alice", "email": "taken@example.com", "password": "Password123",
	})

	assert.Equal(t, http.StatusConflict, rr.Code)
	resp := decodeError(t, rr)
	assert.Equal(t, "DUPLICATE_EMAIL", resp.Code)
	assert.Equal(t, "Email already registered", resp.Error)
}

func TestRegisterHandler_RateLimitedPassThrough(t *testing.T) {
	svc := &mockAuthService{
		registerFunc: func(ctx context.Context, req dto.RegisterRequest, actor string) (*dto.RegisterResponse, *errors.AppError) {
			return nil, errors.NewRateLimited("Too many registration attempts. Please wait 60 minutes.")
		},
	}
	app := newTestApp(t, svc)

	rr := postJSON(t, app.registerHandler, "/api/auth/register", map[string]string{
		"name": "Alice", "email": "a@b.com", "password": "Password123",
	})

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "Too many registration attempts. Please wait 60 minutes.", decodeError(t, rr).Error)
}

func TestLoginHandler_Success(t *testing.T) {
	svc := &mockAuthService{
		loginFunc: func(ctx context.Context, req dto.LoginRequest, actor string) (*dto.AuthResponse, *errors.AppError) {
			return &dto.AuthResponse{
				AccessToken: "signed-token",
				User:        dto.UserResponse{ID: 1, Email: req.Email},
			}, nil
		},
	}
	app := newTestApp(t, svc)

	rr := postJSON(t, app.loginHandler, "/api/auth/login", map[string]string{
		"email": "alice@example.com", "password": "Password123",
	})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Bearer signed-token", rr.Header().Get("Authorization"))

	var resp dto.AuthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "signed-token", resp.AccessToken)
}

func TestLoginHandler_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFunc: func(ctx context.Context, req dto.LoginRequest, actor string) (*dto.AuthResponse, *errors.AppError) {
			return nil, errors.NewInvalidCredentials()
		},
	}
	app := newTestApp(t, svc)

	rr := postJSON(t, app.loginHandler, "/api/auth/login", map[string]string{
		"email": "alice@example.com", "password": "WrongPassword1",
	})

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid email or password", decodeError(t, rr).Error)
}

func TestLoginHandler_AccountLocked(t *testing.T) {
	svc := &mockAuthService{
		loginFunc: func(ctx context.Context, req dto.LoginRequest, actor string) (*dto.AuthResponse, *errors.AppError) {
			return nil, errors.NewAccountLocked(5)
		},
	}
	app := newTestApp(t, svc)

	rr := postJSON(t, app.loginHandler, "/api/auth/login", map[string]string{
		"email": "alice@example.com", "password": "Password123",
	})

	assert.Equal(t, http.StatusLocked, rr.Code)
	assert.Equal(t, "Account locked due to too many failed attempts. Try again in 5 minutes.", decodeError(t, rr).Error)
}

func TestVerifyEmailHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		app := newTestApp(t, &mockAuthService{})
		rr := postJSON(t, app.verifyEmailHandler, "/api/auth/verify-email", map[string]string{
			"email": "alice@example.com", "code": "123456",
		})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("malformed code rejected before the service", func(t *testing.T) {
		called := false
		svc := &mockAuthService{
			verifyFunc: func(ctx context.Context, req dto.VerifyEmailRequest) (*dto.VerifyEmailResponse, *errors.AppError) {
				called = true
				return nil, nil
			},
		}
		app := newTestApp(t, svc)
		rr := postJSON(t, app.verifyEmailHandler, "/api/auth/verify-email", map[string]string{
			"email": "alice@example.com", "code": "12ab56",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.False(t, called)
	})

	t.Run("wrong code", func(t *testing.T) {
		svc := &mockAuthService{
			verifyFunc: func(ctx context.Context, req dto.VerifyEmailRequest) (*dto.VerifyEmailResponse, *errors.AppError) {
				return nil, errors.NewInvalidCode()
			},
		}
		app := newTestApp(t, svc)
		rr := postJSON(t, app.verifyEmailHandler, "/api/auth/verify-email", map[string]string{
			"email": "alice@example.com", "code": "654321",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "INVALID_CODE", decodeError(t, rr).Code)
	})
}

func TestLogoutHandler(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		app := newTestApp(t, &mockAuthService{})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
		rr := httptest.NewRecorder()
		app.logoutHandler(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("success", func(t *testing.T) {
		var gotToken string
		svc := &mockAuthService{
			logoutFunc: func(ctx context.Context, accessToken string) *errors.AppError {
				gotToken = accessToken
				return nil
			},
		}
		app := newTestApp(t, svc)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer some-token")
		rr := httptest.NewRecorder()
		app.logoutHandler(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "some-token", gotToken)
	})
}

// Router-level tests exercise the full middleware chain.

func TestRouter_MeRequiresValidToken(t *testing.T) {
	app := newTestApp(t, &mockAuthService{})
	srv := httptest.NewServer(app.mount())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/me", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := services.GenerateAccessToken(7, models.RoleUser)
	require.NoError(t, err)

	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var me dto.UserResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, int64(7), me.ID)
}

func TestRouter_SecurityStatsRequiresAdmin(t *testing.T) {
	svc := &mockAuthService{
		securityStatsFunc: func(ctx context.Context) (*ratelimit.Stats, *errors.AppError) {
			return &ratelimit.Stats{TotalBlocked: 2, ActiveWindows: 1}, nil
		},
	}
	app := newTestApp(t, svc)
	srv := httptest.NewServer(app.mount())
	defer srv.Close()

	userToken, err := services.GenerateAccessToken(7, models.RoleUser)
	require.NoError(t, err)
	adminToken, err := services.GenerateAccessToken(1, models.RoleAdmin)
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/security/stats", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats dto.SecurityStatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 2, stats.TotalBlocked)
}

func TestRouter_GeneralAPIBudget(t *testing.T) {
	app := newTestApp(t, &mockAuthService{})
	srv := httptest.NewServer(app.mount())
	defer srv.Close()

	token, err := services.GenerateAccessToken(9, models.RoleUser)
	require.NoError(t, err)

	// The general API window allows 100 calls per minute per principal.
	var lastCode int
	for i := 0; i < 101; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		lastCode = resp.StatusCode
	}

	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}
