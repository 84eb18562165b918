package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/carljohntruya-art/taskflow-auth/app/dto"
	"github.com/carljohntruya-art/taskflow-auth/app/errors"
	authmw "github.com/carljohntruya-art/taskflow-auth/app/middleware"
)

// registerHandler handles user registration
func (app *application) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, errors.NewInvalidInput("invalid request body"))
		return
	}

	// Sanitize before validation. Password is never sanitized beyond
	// trimming, special characters count toward its strength.
	req.Email = sanitizeEmail(req.Email, 255)
	req.Name = sanitizeName(req.Name, 50)
	req.Password = sanitizeInput(req.Password, 128, true)

	if err := validateRequest(&req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	actor := authmw.PrincipalIP()(r)
	resp, appErr := app.authService.Register(r.Context(), req, actor)
	if appErr != nil {
		writeErrorResponse(w, appErr)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// loginHandler handles user login
func (app *application) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, errors.NewInvalidInput("invalid request body"))
		return
	}

	req.Email = sanitizeEmail(req.Email, 255)
	req.Password = sanitizeInput(req.Password, 128, true)

	if err := validateRequest(&req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	actor := authmw.PrincipalIP()(r)
	resp, appErr := app.authService.Login(r.Context(), req, actor)
	if appErr != nil {
		writeErrorResponse(w, appErr)
		return
	}

	// Expose the access token in the Authorization header as well so
	// clients that ignore the body still pick it up.
	w.Header().Set("Authorization", "Bearer "+resp.AccessToken)
	writeJSON(w, http.StatusOK, resp)
}

// verifyEmailHandler confirms a pending registration with the emailed code.
func (app *application) verifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyEmailRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, errors.NewInvalidInput("invalid request body"))
		return
	}

	req.Email = sanitizeEmail(req.Email, 255)
	req.Code = strings.TrimSpace(req.Code)

	if err := validateRequest(&req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	resp, appErr := app.authService.VerifyEmail(r.Context(), req)
	if appErr != nil {
		writeErrorResponse(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// logoutHandler blacklists the presented access token.
func (app *application) logoutHandler(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		writeErrorResponse(w, errors.NewUnauthorized("missing or invalid authorization header"))
		return
	}
	accessToken := strings.TrimPrefix(authHeader, "Bearer ")

	if appErr := app.authService.Logout(r.Context(), accessToken); appErr != nil {
		writeErrorResponse(w, appErr)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// meHandler returns the authenticated user's profile.
func (app *application) meHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := authmw.UserIDFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, errors.NewUnauthorized("user not found in context"))
		return
	}

	resp, appErr := app.authService.Me(r.Context(), userID)
	if appErr != nil {
		writeErrorResponse(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// securityStatsHandler exposes the security log to administrators.
func (app *application) securityStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, appErr := app.authService.SecurityStats(r.Context())
	if appErr != nil {
		writeErrorResponse(w, appErr)
		return
	}

	resp := dto.SecurityStatsResponse{
		TotalBlocked:  stats.TotalBlocked,
		ActiveWindows: stats.ActiveWindows,
		Logs:          make([]dto.SecurityLogEntry, 0, len(stats.Logs)),
	}
	for _, e := range stats.Logs {
		resp.Logs = append(resp.Logs, dto.SecurityLogEntry{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Kind:      string(e.Kind),
			Message:   e.Message,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
