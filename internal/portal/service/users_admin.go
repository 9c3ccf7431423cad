package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
)

// AdminCreateInput is an account created by an administrator. RoleID, when
// set, must reference a custom role and leaves the role tag at user.
type AdminCreateInput struct {
	Fullname string
	Username string
	Alias    string
	Email    string
	Password string
	Role     domain.SystemRole
	RoleID   *string
}

// UserUpdate lists the fields an administrator may change. Nil leaves a
// field untouched.
type UserUpdate struct {
	Fullname *string
	Username *string
	Alias    *string
	Email    *string
	IsActive *bool
}

func (u UserUpdate) empty() bool {
	return u.Fullname == nil && u.Username == nil && u.Alias == nil && u.Email == nil && u.IsActive == nil
}

// AdminCreate stores a user with a verified email. Neither the allowed
// domain list nor captcha apply. Only root may create another root.
func (s *UserService) AdminCreate(ctx context.Context, actor domain.AuthContext, in AdminCreateInput) (domain.User, error) {
	if in.Role == "" {
		in.Role = domain.RoleUser
	}
	if in.Role == domain.RoleRoot && actor.Role != domain.RoleRoot {
		return domain.User{}, ErrRootRequired
	}
	if in.RoleID != nil && *in.RoleID == "" {
		in.RoleID = nil
	}

	in.Email = NormalizeEmail(in.Email)
	in.Alias = strings.TrimSpace(in.Alias)

	verr := &ValidationError{}
	if strings.TrimSpace(in.Fullname) == "" {
		verr.add("fullname", "is required")
	}
	if strings.TrimSpace(in.Username) == "" {
		verr.add("username", "is required")
	}
	if in.Alias != "" && !aliasPattern.MatchString(in.Alias) {
		verr.add("alias", aliasReason)
	}
	if _, ok := emailDomain(in.Email); !ok {
		verr.add("email", "is not a valid email address")
	}
	if len(in.Password) < MinPasswordLength {
		verr.add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if !in.Role.Valid() {
		verr.add("role", "unknown system role")
	}
	if in.RoleID != nil {
		r, err := s.Store.Roles().GetRoleByID(ctx, *in.RoleID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			verr.add("role_id", "does not exist")
		case err != nil:
			return domain.User{}, fmt.Errorf("failed to load role: %w", err)
		case r.IsSystemRole:
			verr.add("role_id", "must reference a custom role")
		}
		in.Role = domain.RoleUser
	}
	if err := verr.orNil(); err != nil {
		return domain.User{}, err
	}

	u, _, err := s.create(ctx, domain.NewUser{
		Fullname: in.Fullname,
		Username: in.Username,
		Alias:    in.Alias,
		Email:    in.Email,
		Password: in.Password,
		Role:     in.Role,
	}, in.RoleID, true)
	if err != nil {
		return domain.User{}, err
	}

	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityUserCreated, "Created user "+u.Email, actor.IPAddress,
		map[string]any{"target_user_id": u.ID, "role": string(u.Role)})
	return u, nil
}

// Update changes profile fields and the active flag of a live user. Root
// accounts are only editable by root and nobody may deactivate themselves.
func (s *UserService) Update(ctx context.Context, actor domain.AuthContext, userID string, in UserUpdate) (domain.User, error) {
	if in.empty() {
		return domain.User{}, &ValidationError{Fields: map[string]string{"user": "nothing to update"}}
	}

	u, err := s.target(ctx, actor, userID)
	if err != nil {
		return domain.User{}, err
	}
	if u.IsDeleted() {
		return domain.User{}, ErrUserNotFound
	}

	toggle := in.IsActive != nil && *in.IsActive != u.IsActive
	if toggle && userID == actor.UserID {
		return domain.User{}, ErrSelfAction
	}

	var fields []string
	verr := &ValidationError{}
	if in.Fullname != nil {
		u.Fullname = strings.TrimSpace(*in.Fullname)
		if u.Fullname == "" {
			verr.add("fullname", "is required")
		}
		fields = append(fields, "fullname")
	}
	if in.Username != nil {
		u.Username = strings.TrimSpace(*in.Username)
		if u.Username == "" {
			verr.add("username", "is required")
		}
		fields = append(fields, "username")
	}
	if in.Alias != nil {
		u.Alias = strings.TrimSpace(*in.Alias)
		if !aliasPattern.MatchString(u.Alias) {
			verr.add("alias", aliasReason)
		}
		fields = append(fields, "alias")
	}
	if in.Email != nil {
		u.Email = NormalizeEmail(*in.Email)
		if _, ok := emailDomain(u.Email); !ok {
			verr.add("email", "is not a valid email address")
		}
		fields = append(fields, "email")
	}
	if err := verr.orNil(); err != nil {
		return domain.User{}, err
	}

	if len(fields) > 0 {
		if err := s.checkConflicts(ctx, u.Email, u.Username, u.Alias, u.ID); err != nil {
			return domain.User{}, err
		}
		if err := s.Store.Users().UpdateProfile(ctx, u, s.now()); err != nil {
			switch {
			case errors.Is(err, store.ErrAlreadyExists):
				return domain.User{}, s.conflictError(ctx, u.Email, u.Username, u.Alias, u.ID)
			case errors.Is(err, store.ErrNotFound):
				return domain.User{}, ErrUserNotFound
			}
			return domain.User{}, fmt.Errorf("failed to update user: %w", err)
		}
	}

	if toggle {
		if err := s.SetActive(ctx, actor, userID, *in.IsActive); err != nil {
			return domain.User{}, err
		}
	}

	if len(fields) > 0 {
		s.Activity.LogUser(ctx, actor.UserID, domain.ActivityUserUpdated, "Updated user", actor.IPAddress,
			map[string]any{"target_user_id": userID, "fields": fields})
	}
	return s.Get(ctx, userID)
}

// Stats counts the live users for the admin dashboard.
func (s *UserService) Stats(ctx context.Context) (domain.UserStats, error) {
	st, err := s.Store.Users().Stats(ctx)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("failed to count users: %w", err)
	}
	return st, nil
}
