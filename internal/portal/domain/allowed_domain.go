package domain

import "time"

// AllowedDomain is an email domain that may register.
type AllowedDomain struct {
	ID        string
	Domain    string
	IsActive  bool
	CreatedAt time.Time
}
