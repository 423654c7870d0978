package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a symmetric secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrMalformed is returned when a token cannot be parsed at all.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired is returned when a structurally valid token is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrSignature is returned when the signature check fails.
	ErrSignature = errors.New("token signature invalid")
)

// Config holds the immutable settings of a [Manager].
type Config struct {
	Method     SigningMethod
	HMACSecret []byte
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	Issuer     string
	Leeway     time.Duration

	// AllowLegacyUnsigned accepts alg=none tokens during verification.
	// Issuance always signs regardless of this flag. Off by default;
	// enable only while a pre-signing token fleet is still in the wild.
	AllowLegacyUnsigned bool

	// Now overrides the clock for expiry checks. Defaults to time.Now.
	Now func() time.Time
}

// Claims carries the authenticated identity encoded in an access token.
type Claims struct {
	UID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Manager issues and parses access tokens. Safe for concurrent use.
type Manager struct {
	cfg Config
}

// NewManager validates the configuration and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.Method {
	case MethodHS256:
		if len(cfg.HMACSecret) == 0 {
			return nil, errors.New("hs256 requires a secret")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) != ed25519.PrivateKeySize {
			return nil, errors.New("ed25519 requires a private key")
		}
		if len(cfg.PublicKey) != ed25519.PublicKeySize {
			return nil, errors.New("ed25519 requires a public key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{cfg: cfg}, nil
}

// Issue creates a signed token for the given subject and uid, valid for the
// supplied lifetime from the injected clock's now.
func (m *Manager) Issue(subject string, uid int64, lifetime time.Duration) (string, error) {
	if lifetime <= 0 {
		return "", errors.New("token lifetime must be positive")
	}

	now := m.cfg.Now()
	claims := Claims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}

	tok := jwt.NewWithClaims(m.signingMethod(), claims)
	return tok.SignedString(m.signKey())
}

// Parse verifies a token string and returns its claims. Failures are reported
// as [ErrMalformed], [ErrExpired], or [ErrSignature].
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	methods := []string{m.signingMethod().Alg()}
	if m.cfg.AllowLegacyUnsigned {
		methods = append(methods, jwt.SigningMethodNone.Alg())
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithTimeFunc(m.cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if m.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.cfg.Leeway))
	}
	if m.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.cfg.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() == jwt.SigningMethodNone.Alg() {
			if !m.cfg.AllowLegacyUnsigned {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
			}
			return jwt.UnsafeAllowNoneSignatureType, nil
		}
		if t.Method.Alg() != m.signingMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey(), nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}

	return claims, nil
}

func (m *Manager) signingMethod() jwt.SigningMethod {
	switch m.cfg.Method {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() interface{} {
	switch m.cfg.Method {
	case MethodHS256:
		return m.cfg.HMACSecret
	default:
		return m.cfg.PrivateKey
	}
}

func (m *Manager) verifyKey() interface{} {
	switch m.cfg.Method {
	case MethodHS256:
		return m.cfg.HMACSecret
	default:
		return m.cfg.PublicKey
	}
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrMalformed
	}
}
