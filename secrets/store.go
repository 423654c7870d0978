package secrets

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
)

// Method selects the kind of key material a [Store] holds.
type Method string

const (
	// MethodHMAC generates a 32-byte symmetric secret for HS256 signing.
	MethodHMAC Method = "hmac"
	// MethodEd25519 generates an Ed25519 keypair for EdDSA signing.
	MethodEd25519 Method = "ed25519"
)

const hmacSecretSize = 32

// Store is immutable after Generate; reads are safe from any goroutine
// without locking.
type Store struct {
	method  Method
	secret  []byte
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// Generate creates fresh key material for the given method from the supplied
// randomness source. Pass nil to use crypto/rand.
func Generate(method Method, random io.Reader) (*Store, error) {
	if random == nil {
		random = rand.Reader
	}

	switch method {
	case MethodHMAC:
		secret := make([]byte, hmacSecretSize)
		if _, err := io.ReadFull(random, secret); err != nil {
			return nil, err
		}
		return &Store{method: MethodHMAC, secret: secret}, nil
	case MethodEd25519:
		pub, priv, err := ed25519.GenerateKey(random)
		if err != nil {
			return nil, err
		}
		return &Store{method: MethodEd25519, private: priv, public: pub}, nil
	default:
		return nil, errors.New("unsupported secret method")
	}
}

// FromStatic wraps caller-supplied key material, for deployments that manage
// keys outside the process (e.g. shared across replicas).
func FromStatic(method Method, private, public []byte) (*Store, error) {
	switch method {
	case MethodHMAC:
		if len(private) < 16 {
			return nil, errors.New("hmac secret must be at least 16 bytes")
		}
		return &Store{method: MethodHMAC, secret: private}, nil
	case MethodEd25519:
		if len(private) != ed25519.PrivateKeySize {
			return nil, errors.New("invalid ed25519 private key size")
		}
		if len(public) != ed25519.PublicKeySize {
			return nil, errors.New("invalid ed25519 public key size")
		}
		return &Store{
			method:  MethodEd25519,
			private: ed25519.PrivateKey(private),
			public:  ed25519.PublicKey(public),
		}, nil
	default:
		return nil, errors.New("unsupported secret method")
	}
}

// Method returns the key kind held by the store.
func (s *Store) Method() Method { return s.method }

// HMACSecret returns the symmetric secret, or nil for asymmetric stores.
func (s *Store) HMACSecret() []byte { return s.secret }

// SigningKey returns the private signing key for asymmetric stores.
func (s *Store) SigningKey() ed25519.PrivateKey { return s.private }

// VerifyKey returns the public verification key for asymmetric stores.
func (s *Store) VerifyKey() ed25519.PublicKey { return s.public }
