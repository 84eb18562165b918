package models

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is the full credential record. Only the auth service sees it; anything
// leaving the service boundary goes through dto.UserResponse, which carries
// none of the credential or lockout fields.
type User struct {
	ID               int64
	Name             string
	Email            string
	Avatar           string
	Role             string
	Salt             string
	PasswordHash     string
	IsVerified       bool
	VerificationCode string // empty once the email is confirmed
	FailedAttempts   int
	LockUntil        *time.Time
	CreatedAt        time.Time
}

// Locked reports whether the account is still in its lockout window.
func (u *User) Locked(now time.Time) bool {
	return u.LockUntil != nil && now.Before(*u.LockUntil)
}
