package domain

import "time"

type FactorType string

const (
	FactorTOTP  FactorType = "totp"
	FactorSMS   FactorType = "sms"
	FactorEmail FactorType = "email"
)

func (f FactorType) Valid() bool {
	switch f {
	case FactorTOTP, FactorSMS, FactorEmail:
		return true
	}
	return false
}

// MFAFactor is a persisted second factor. Secret is encrypted at rest; the
// store hands it back sealed and the MFA service opens it.
type MFAFactor struct {
	ID         string
	UserID     string
	Type       FactorType
	Secret     []byte
	IsVerified bool
	CreatedAt  time.Time
}

// PendingSetup holds a freshly generated TOTP secret between setup and
// confirmation. It is single use and expires.
type PendingSetup struct {
	ID        string
	UserID    string
	Secret    []byte // sealed
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PendingLogin marks a user who passed the password step and still owes a
// second factor. TokenHash is the fingerprint of the token given to the client.
type PendingLogin struct {
	ID        string
	TokenHash string
	UserID    string
	IPAddress string
	UserAgent string
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// TOTPEnrollment is returned when a setup starts.
type TOTPEnrollment struct {
	Secret          string
	ProvisioningURI string
	Issuer          string
	Account         string
	ExpiresAt       time.Time
}
