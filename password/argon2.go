package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params are the argon2id cost parameters. Zero values are rejected; use
// [DefaultParams] as a starting point.
type Params struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams is a 64 MiB / 3-pass argon2id configuration.
func DefaultParams() Params {
	return Params{
		MemoryKB:    64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

const (
	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
)

var errInvalidHash = errors.New("invalid password hash encoding")

// Hasher derives and checks argon2id hashes. Safe for concurrent use.
type Hasher struct {
	params Params
}

// NewHasher validates the parameters and returns a [Hasher].
func NewHasher(p Params) (*Hasher, error) {
	switch {
	case p.MemoryKB < minMemoryKB:
		return nil, errors.New("argon2 memory must be >= 8192 KB")
	case p.Iterations < 1:
		return nil, errors.New("argon2 iterations must be >= 1")
	case p.Parallelism < 1:
		return nil, errors.New("argon2 parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return nil, errors.New("argon2 salt length must be >= 16")
	case p.KeyLength < minKeyLength:
		return nil, errors.New("argon2 key length must be >= 16")
	}
	return &Hasher{params: p}, nil
}

// Hash derives a PHC-encoded argon2id hash with a fresh random salt.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(secret),
		salt,
		h.params.Iterations,
		h.params.MemoryKB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKB,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches the PHC-encoded hash. The derived
// key comparison is constant-time.
func (h *Hasher) Verify(secret, encoded string) (bool, error) {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(secret), salt, p.Iterations, p.MemoryKB, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// NeedsRehash reports whether a stored hash was derived with weaker
// parameters than the hasher is configured for.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, _, key, err := decode(encoded)
	if err != nil {
		return false, err
	}

	if p.MemoryKB < h.params.MemoryKB || p.Iterations < h.params.Iterations {
		return true, nil
	}
	if p.Parallelism < h.params.Parallelism {
		return true, nil
	}
	if uint32(len(key)) != h.params.KeyLength {
		return true, nil
	}
	return false, nil
}

func decode(encoded string) (Params, []byte, []byte, error) {
	var p Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, errInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, errInvalidHash
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKB, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, errInvalidHash
	}
	if p.MemoryKB == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return p, nil, nil, errInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return p, nil, nil, errInvalidHash
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, errInvalidHash
	}

	return p, salt, key, nil
}
