package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
)

// InitKeys builds the session signer and the box sealing TOTP secrets.
//
// Without PORTAL_SESSION_SECRET the signing key is random per boot, so every
// session cookie is invalidated by a restart. Without a master key the TOTP
// box is ephemeral too and enrolled authenticators stop verifying after a
// restart; that mode is only meant for development.
func InitKeys(cfg Config, logger *slog.Logger) (*jwtx.HS256, *cryptox.SecretBox, error) {
	if cfg.SessionSecret == "" {
		logger.Warn("no session secret configured, session cookies will not survive a restart")
	}
	signer, err := jwtx.NewHS256([]byte(cfg.SessionSecret), cfg.Issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session signer: %w", err)
	}

	var box *cryptox.SecretBox
	switch {
	case cfg.MasterKey != "":
		box, err = cryptox.NewSecretBox([]byte(cfg.MasterKey))
	default:
		if cfg.MasterKeyPath != "" {
			logger.Info("master key path configured", "path", cfg.MasterKeyPath)
		}
		box, err = cryptox.LoadSecretBox(cfg.MasterKeyPath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load master key: %w", err)
	}

	return signer, box, nil
}
