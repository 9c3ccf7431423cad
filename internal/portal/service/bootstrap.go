package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

var (
	ErrBootstrapAlready      = errors.New("system already bootstrapped")
	ErrBootstrapUnauthorized = errors.New("unauthorized bootstrap attempt")
)

type BootstrapInput struct {
	Fullname string
	Username string
	Email    string
	Password string
}

// BootstrapService creates the first root account. It is disabled while
// Token is empty and refuses to run once a live root exists.
type BootstrapService struct {
	Users    *UserService
	Activity *ActivityService
	Token    string
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	n, err := s.Users.Store.Users().CountBySystemRole(ctx, domain.RoleRoot)
	if err != nil {
		return false, fmt.Errorf("failed to count root users: %w", err)
	}
	return n > 0, nil
}

// Bootstrap stores a verified root user. The email domain allow-list does
// not apply.
func (s *BootstrapService) Bootstrap(ctx context.Context, token string, in BootstrapInput, client ClientInfo) (domain.User, error) {
	log := slogx.FromContext(ctx)

	if s.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		log.Warn("unauthorized bootstrap attempt", "ip", client.IP)
		return domain.User{}, ErrBootstrapUnauthorized
	}

	done, err := s.IsBootstrapped(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if done {
		log.Warn("attempted bootstrap on already-bootstrapped system")
		return domain.User{}, ErrBootstrapAlready
	}

	verr := &ValidationError{}
	if in.Fullname == "" {
		verr.add("fullname", "is required")
	}
	if in.Username == "" {
		verr.add("username", "is required")
	}
	if _, ok := emailDomain(NormalizeEmail(in.Email)); !ok {
		verr.add("email", "is not a valid email address")
	}
	if err := validatePassword(in.Password, in.Password); err != nil {
		var pv *ValidationError
		if errors.As(err, &pv) {
			for k, v := range pv.Fields {
				verr.add(k, v)
			}
		}
	}
	if err := verr.orNil(); err != nil {
		return domain.User{}, err
	}

	u, _, err := s.Users.Create(ctx, domain.NewUser{
		Fullname: in.Fullname,
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
		Role:     domain.RoleRoot,
	})
	if err != nil {
		return domain.User{}, err
	}

	now := s.Users.now()
	if err := s.Users.Store.Users().MarkEmailVerified(ctx, u.ID, now); err != nil {
		return domain.User{}, fmt.Errorf("failed to verify root email: %w", err)
	}
	u.EmailVerified = true
	u.VerificationToken = nil

	log.Info("successfully bootstrapped system", "root_user_id", u.ID)
	s.Activity.LogUser(ctx, u.ID, domain.ActivityRegistration, "Root account bootstrapped", client.IP, nil)
	return u, nil
}
