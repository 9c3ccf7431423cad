package domain

import "time"

const (
	ActionLogin         = "login_attempt"
	ActionPasswordReset = "password_reset_request"
)

// RateLimit is the attempt counter for one (ip, action) pair.
type RateLimit struct {
	IPAddress     string
	Action        string
	Attempts      int
	LastAttemptAt time.Time
	LockedUntil   *time.Time
}

// LockedAt reports whether the lock is still in force at now.
func (r RateLimit) LockedAt(now time.Time) bool {
	return r.LockedUntil != nil && r.LockedUntil.After(now)
}

// LockExpiredAt reports whether a lock was set and has already lapsed.
func (r RateLimit) LockExpiredAt(now time.Time) bool {
	return r.LockedUntil != nil && !r.LockedUntil.After(now)
}
