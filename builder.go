package authcore

import (
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wagerline/authcore/internal/audit"
	"github.com/wagerline/authcore/internal/rate"
	"github.com/wagerline/authcore/internal/stores"
	"github.com/wagerline/authcore/password"
	"github.com/wagerline/authcore/refresh"
	"github.com/wagerline/authcore/secrets"
	"github.com/wagerline/authcore/token"
)

// Builder assembles an [Engine]. Single-use: Build consumes it.
type Builder struct {
	config Config
	redis  *redis.Client

	credentials CredentialStore
	auditSink   AuditSink
	logger      *slog.Logger
	now         func() time.Time
	rand        io.Reader

	built bool
}

// New returns a Builder preloaded with [defaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing refresh tokens, rate limiting, and
// verification records. Required.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the account lookup backend. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithClock overrides the engine clock, mainly for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRand overrides the randomness source feeding key generation and token
// secrets. Defaults to crypto/rand; override only in tests.
func (b *Builder) WithRand(random io.Reader) *Builder {
	b.rand = random
	return b
}

// WithLogger sets the structured logger. Defaults to a discard logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every subsystem, and returns a
// ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	random := b.rand
	if random == nil {
		random = rand.Reader
	}

	keys, err := buildSecretStore(cfg.JWT, random)
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		Method:              token.SigningMethod(cfg.JWT.SigningMethod),
		HMACSecret:          keys.HMACSecret(),
		PrivateKey:          keys.SigningKey(),
		PublicKey:           keys.VerifyKey(),
		Issuer:              cfg.JWT.Issuer,
		Leeway:              cfg.JWT.Leeway,
		AllowLegacyUnsigned: cfg.JWT.AllowLegacyUnsigned,
		Now:                 now,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Params{
		MemoryKB:    cfg.Password.MemoryKB,
		Iterations:  cfg.Password.Iterations,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	// The dummy hash absorbs argon2 work for unknown emails so login timing
	// does not reveal whether an account exists.
	dummyHash, err := hasher.Hash("authcore.dummy.credential")
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		now:         now,
		logger:      logger,
		rand:        random,
		credentials: b.credentials,
		keys:        keys,
		tokens:      tokens,
		hasher:      hasher,
		dummyHash:   dummyHash,
		refresh: refresh.NewManager(b.redis, refresh.Config{
			Prefix: cfg.Refresh.RedisPrefix,
			TTL:    cfg.Refresh.TTL,
			Now:    now,
			Rand:   random,
		}),
		limiter: rate.New(b.redis, rate.Config{
			MaxAttempts:      cfg.RateLimit.MaxAttempts,
			Window:           cfg.RateLimit.Window,
			EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
		}),
		verifications: stores.NewVerificationStore(b.redis, cfg.Verification.RedisPrefix),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}

func buildSecretStore(cfg JWTConfig, random io.Reader) (*secrets.Store, error) {
	method := secrets.MethodEd25519
	if cfg.SigningMethod == "hs256" {
		method = secrets.MethodHMAC
	}

	if len(cfg.HMACSecret) > 0 && method == secrets.MethodHMAC {
		return secrets.FromStatic(method, cfg.HMACSecret, nil)
	}
	if len(cfg.PrivateKey) > 0 && method == secrets.MethodEd25519 {
		return secrets.FromStatic(method, cfg.PrivateKey, cfg.PublicKey)
	}

	return secrets.Generate(method, random)
}
