package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
)

const (
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 15 * time.Minute
)

// RateLimitService counts failed attempts per (ip, action) and locks the pair
// once MaxAttempts is reached. Expired locks are reset lazily by the next
// attempt.
type RateLimitService struct {
	Store           store.Store
	MaxAttempts     int
	LockoutDuration time.Duration
	Now             func() time.Time
}

func (s *RateLimitService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *RateLimitService) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (s *RateLimitService) lockout() time.Duration {
	if s.LockoutDuration > 0 {
		return s.LockoutDuration
	}
	return DefaultLockoutDuration
}

// IsBlocked reports whether the pair is locked strictly past now.
func (s *RateLimitService) IsBlocked(ctx context.Context, ip, action string) (bool, error) {
	rl, err := s.Store.RateLimits().GetRateLimit(ctx, ip, action)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load rate limit: %w", err)
	}
	return rl.LockedAt(s.now()), nil
}

// RecordAttempt counts one failed attempt and returns the new count.
func (s *RateLimitService) RecordAttempt(ctx context.Context, ip, action string) (int, error) {
	now := s.now()
	var attempts int

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		repo := tx.RateLimits()

		rl, err := repo.GetRateLimit(ctx, ip, action)
		if errors.Is(err, store.ErrNotFound) {
			attempts = 1
			return repo.CreateRateLimit(ctx, domain.RateLimit{
				IPAddress:     ip,
				Action:        action,
				Attempts:      1,
				LastAttemptAt: now,
			})
		}
		if err != nil {
			return err
		}

		if rl.LockExpiredAt(now) {
			if err := repo.ResetRateLimit(ctx, ip, action); err != nil {
				return err
			}
		}

		rl, err = repo.IncrementAttempts(ctx, ip, action, now)
		if err != nil {
			return err
		}
		attempts = rl.Attempts

		if attempts >= s.maxAttempts() && !rl.LockedAt(now) {
			return repo.LockUntil(ctx, ip, action, now.Add(s.lockout()))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record attempt: %w", err)
	}
	return attempts, nil
}

// ResetAttempts zeroes the counter and clears the lock.
func (s *RateLimitService) ResetAttempts(ctx context.Context, ip, action string) error {
	err := s.Store.RateLimits().ResetRateLimit(ctx, ip, action)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	return nil
}

// LockoutRemaining returns how long the lock still holds, zero when unlocked.
func (s *RateLimitService) LockoutRemaining(ctx context.Context, ip, action string) (time.Duration, error) {
	rl, err := s.Store.RateLimits().GetRateLimit(ctx, ip, action)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load rate limit: %w", err)
	}

	now := s.now()
	if !rl.LockedAt(now) {
		return 0, nil
	}
	return rl.LockedUntil.Sub(now), nil
}

// RemainingAttempts returns how many failures are left before a lock.
func (s *RateLimitService) RemainingAttempts(ctx context.Context, ip, action string) (int, error) {
	rl, err := s.Store.RateLimits().GetRateLimit(ctx, ip, action)
	if errors.Is(err, store.ErrNotFound) {
		return s.maxAttempts(), nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load rate limit: %w", err)
	}
	if rl.LockExpiredAt(s.now()) {
		return s.maxAttempts(), nil
	}
	return max(s.maxAttempts()-rl.Attempts, 0), nil
}

// UnlockIP clears every counter and lock of ip.
func (s *RateLimitService) UnlockIP(ctx context.Context, ip string) error {
	if err := s.Store.RateLimits().ClearIP(ctx, ip); err != nil {
		return fmt.Errorf("failed to unlock ip: %w", err)
	}
	return nil
}

// BlockedIPs lists the locks in force.
func (s *RateLimitService) BlockedIPs(ctx context.Context) ([]domain.RateLimit, error) {
	return s.Store.RateLimits().ListLocked(ctx, s.now())
}
