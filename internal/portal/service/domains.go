package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/idx"
)

// DomainService manages the email domains allowed to register.
type DomainService struct {
	Store store.Store
	Now   func() time.Time
}

// IsAllowed reports whether the domain is registered and active.
func (s *DomainService) IsAllowed(ctx context.Context, host string) (bool, error) {
	ok, err := s.Store.AllowedDomains().IsAllowed(ctx, strings.ToLower(strings.TrimSpace(host)))
	if err != nil {
		return false, fmt.Errorf("failed to check domain: %w", err)
	}
	return ok, nil
}

func (s *DomainService) ListActive(ctx context.Context) ([]domain.AllowedDomain, error) {
	return s.Store.AllowedDomains().ListActive(ctx)
}

// Add registers an active domain. Adding a known domain is not an error.
func (s *DomainService) Add(ctx context.Context, host string) error {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || strings.ContainsAny(host, "@ /") || !strings.Contains(host, ".") {
		return &ValidationError{Fields: map[string]string{"domain": "is not a valid domain name"}}
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	err := s.Store.AllowedDomains().AddDomain(ctx, domain.AllowedDomain{
		ID:        idx.New().String(),
		Domain:    host,
		IsActive:  true,
		CreatedAt: now,
	})
	if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return fmt.Errorf("failed to add domain: %w", err)
	}
	return nil
}

func (s *DomainService) Activate(ctx context.Context, id string) error {
	return s.setActive(ctx, id, true)
}

func (s *DomainService) Deactivate(ctx context.Context, id string) error {
	return s.setActive(ctx, id, false)
}

func (s *DomainService) setActive(ctx context.Context, id string, active bool) error {
	err := s.Store.AllowedDomains().SetDomainActive(ctx, id, active)
	if errors.Is(err, store.ErrNotFound) {
		return ErrDomainNotFound
	}
	return err
}
