package jwtx

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretSize is the shortest HMAC secret accepted.
const MinSecretSize = 32

// Signer signs session claims.
type Signer interface {
	Sign(Claims) (string, error)
}

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// HS256 signs and verifies session tokens with a shared secret. The portal
// is the only party reading its own cookies, so no key publication is needed.
type HS256 struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

var (
	_ Signer   = (*HS256)(nil)
	_ Verifier = (*HS256)(nil)
)

// NewHS256 builds a signer/verifier. An empty secret generates a random one,
// which invalidates every cookie on restart.
func NewHS256(secret []byte, issuer string) (*HS256, error) {
	if len(secret) == 0 {
		secret = make([]byte, MinSecretSize)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("jwtx: generate secret: %w", err)
		}
	}
	if len(secret) < MinSecretSize {
		return nil, fmt.Errorf("jwtx: secret must be at least %d bytes", MinSecretSize)
	}
	return &HS256{secret: secret, issuer: issuer, leeway: 30 * time.Second, now: time.Now}, nil
}

// WithClock overrides the time source used for exp/nbf checks.
func (h *HS256) WithClock(now func() time.Time) *HS256 {
	h.now = now
	return h
}

func (h *HS256) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

func (h *HS256) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	token, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return h.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		}
		return Claims{}, fmt.Errorf("jwtx: parse or verify: %w", err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidClaim
	}

	if err := claims.ValidateIssuer(h.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiryAt(h.now(), h.leeway); err != nil {
		return Claims{}, err
	}
	if claims.Subject == "" || claims.SID == "" {
		return Claims{}, ErrInvalidClaim
	}
	return claims, nil
}
