package domain

import "time"

// User is the credential record. Role is the legacy system-role tag and
// RoleID an optional custom role; see Authority for how the two combine.
type User struct {
	ID           string
	Fullname     string
	Username     string
	Alias        string
	Email        string
	PasswordHash string

	Role   SystemRole
	RoleID *string

	EmailVerified     bool
	VerificationToken *string // fingerprint of the emailed token
	IsActive          bool
	TwoFactorEnabled  bool

	ResetToken          *string // fingerprint of the emailed token
	ResetTokenExpiresAt *time.Time

	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// IsDeleted reports whether the user has been soft deleted.
func (u User) IsDeleted() bool { return u.DeletedAt != nil }

// Authority collapses Role and RoleID into the single source used for
// permission resolution. A custom role id always wins over the role tag.
func (u User) Authority() Authority {
	if u.RoleID != nil && *u.RoleID != "" {
		return CustomAuthority(*u.RoleID)
	}
	return SystemAuthority(u.Role)
}

// NewUser carries the fields required to create a user.
type NewUser struct {
	Fullname string
	Username string
	Alias    string
	Email    string
	Password string
	Role     SystemRole
}

// UserStats summarises the live users for the admin dashboard.
type UserStats struct {
	Total     int
	Active    int
	Verified  int
	TwoFactor int
	ByRole    map[SystemRole]int
}
