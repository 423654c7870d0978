package authcore

import (
	"errors"
	"time"
)

// Config tunes every engine subsystem. Zero-value sections are filled from
// [defaultConfig]; pass a full Config through [Builder.WithConfig] to
// override.
type Config struct {
	JWT          JWTConfig
	Refresh      RefreshConfig
	RateLimit    RateLimitConfig
	Verification VerificationConfig
	Password     PasswordConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

// JWTConfig controls access token issuance and verification.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	Issuer        string
	Leeway        time.Duration

	// Key material. When all fields are empty, Build generates fresh keys
	// for the configured method; generated keys live only in process memory,
	// so restarts invalidate outstanding tokens.
	HMACSecret []byte
	PrivateKey []byte
	PublicKey  []byte

	// AllowLegacyUnsigned accepts alg=none tokens during verification only,
	// for draining a pre-signing token fleet. Never affects issuance.
	AllowLegacyUnsigned bool
}

// RefreshConfig controls the rotating refresh token store.
type RefreshConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

// RateLimitConfig controls the fixed-window login attempt limiter.
type RateLimitConfig struct {
	MaxAttempts      int
	Window           time.Duration
	EnableIPThrottle bool
}

// VerificationConfig controls single-use email verification tokens.
type VerificationConfig struct {
	Enabled     bool
	TTL         time.Duration
	RedisPrefix string
}

// PasswordConfig holds the argon2id cost parameters.
type PasswordConfig struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// RehashOnLogin upgrades outdated hashes after a successful login when
	// the credential store implements [CredentialRehasher].
	RehashOnLogin bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
		},
		Refresh: RefreshConfig{
			TTL:         15 * 24 * time.Hour,
			RedisPrefix: "rt",
		},
		RateLimit: RateLimitConfig{
			MaxAttempts:      10,
			Window:           60 * time.Second,
			EnableIPThrottle: false,
		},
		Verification: VerificationConfig{
			Enabled:     true,
			TTL:         30 * time.Minute,
			RedisPrefix: "ev",
		},
		Password: PasswordConfig{
			MemoryKB:      64 * 1024,
			Iterations:    3,
			Parallelism:   2,
			SaltLength:    16,
			KeyLength:     32,
			RehashOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.HMACSecret = cloneBytes(cfg.JWT.HMACSecret)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks cross-field consistency. Build calls it; exposed for
// callers that assemble configs from external sources.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}
	if len(c.JWT.PrivateKey) > 0 && len(c.JWT.PublicKey) == 0 && c.JWT.SigningMethod == "ed25519" {
		return errors.New("ed25519 static keys require both PrivateKey and PublicKey")
	}

	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}

	if c.RateLimit.MaxAttempts <= 0 {
		return errors.New("RateLimit MaxAttempts must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be > 0")
	}

	if c.Verification.Enabled && c.Verification.TTL <= 0 {
		return errors.New("Verification TTL must be > 0 when verification is enabled")
	}

	if c.Password.MemoryKB < 8*1024 {
		return errors.New("Password MemoryKB must be >= 8192")
	}
	if c.Password.Iterations < 1 {
		return errors.New("Password Iterations must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
