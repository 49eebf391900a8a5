package app

import (
	"errors"
	"fmt"
	"log/slog"

	"huddle/cmd/internal/auth/token"
	sectoken "huddle/cmd/security/token"
)

// minHMACKeyBytes is the shortest accepted HMAC-SHA256 secret.
const minHMACKeyBytes = 32

// newTokenHasher enforces the token hashing policy at startup. With
// RequireTokenHMAC set, a missing or short key is fatal.
func newTokenHasher(cfg Config) (sectoken.Hasher, error) {
	h, err := sectoken.HasherFromEnv(cfg.RequireTokenHMAC, minHMACKeyBytes)
	switch {
	case errors.Is(err, sectoken.ErrHMACKeyMissing):
		return sectoken.Hasher{}, fmt.Errorf("security policy: HUDDLE_REQUIRE_TOKEN_HMAC=true but %s is missing", sectoken.HMACEnvKey)
	case errors.Is(err, sectoken.ErrHMACKeyTooShort):
		return sectoken.Hasher{}, fmt.Errorf("security policy: %s is too short (min %d bytes)", sectoken.HMACEnvKey, minHMACKeyBytes)
	case err != nil:
		return sectoken.Hasher{}, err
	}
	if cfg.RequireTokenHMAC && !h.Keyed() {
		return sectoken.Hasher{}, errors.New("security policy: token hasher is not in HMAC mode")
	}
	return h, nil
}

// ephemeralKeyBits sizes the throwaway signing key used when none is configured.
const ephemeralKeyBits = 2048

// newIssuer builds the credential issuer from HUDDLE_JWT_* settings. Without
// configured keys it generates an in-memory pair: credentials then stop
// verifying after a restart, so this is logged loudly.
func newIssuer(log *slog.Logger, opts ...token.Option) (*token.Issuer, error) {
	cfg, err := token.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("token config: %w", err)
	}
	if !cfg.HasKeys() {
		priv, pub, err := token.GenerateRSA(ephemeralKeyBits)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		cfg.PrivateKey, cfg.PublicKey = string(priv), string(pub)
		log.Warn("token.keys.ephemeral",
			"reason", "HUDDLE_JWT_PRIVATE_KEY and HUDDLE_JWT_PUBLIC_KEY unset",
			"effect", "credentials do not survive a restart",
		)
	}
	return token.NewIssuerFromConfig(cfg, opts...)
}
