package dto

// UserResponse is the redacted projection safe for the outside world. Salt,
// password hash, verification code and lockout counters never appear here.
type UserResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
	Role   string `json:"role"`
}

// RegisterResponse is returned on successful registration. The account stays
// unusable until the emailed code is confirmed.
type RegisterResponse struct {
	Message              string       `json:"message"`
	RequiresVerification bool         `json:"requires_verification"`
	User                 UserResponse `json:"user"`
}

// AuthResponse is returned on successful login.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// VerifyEmailResponse is returned once a pending code is confirmed.
type VerifyEmailResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SecurityStatsResponse mirrors ratelimit.Stats for the admin dashboard.
type SecurityStatsResponse struct {
	TotalBlocked  int                `json:"total_blocked"`
	ActiveWindows int                `json:"active_windows"`
	Logs          []SecurityLogEntry `json:"logs"`
}

// SecurityLogEntry is one row of the capped security event log, newest first.
type SecurityLogEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}
