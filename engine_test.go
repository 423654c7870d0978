package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wagerline/authcore/password"
	"github.com/wagerline/authcore/policy"
)

// fastPasswordConfig keeps argon2 cheap so the suite stays quick.
func fastPasswordConfig() PasswordConfig {
	return PasswordConfig{
		MemoryKB:      8 * 1024,
		Iterations:    1,
		Parallelism:   1,
		SaltLength:    16,
		KeyLength:     16,
		RehashOnLogin: true,
	}
}

type memCredentialStore struct {
	mu       sync.Mutex
	byEmail  map[string]Credential
	rehashed map[int64]string
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{
		byEmail:  make(map[string]Credential),
		rehashed: make(map[int64]string),
	}
}

func (s *memCredentialStore) GetCredential(_ context.Context, email string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byEmail[email]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return cred, nil
}

func (s *memCredentialStore) UpdatePasswordHash(_ context.Context, uid int64, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rehashed[uid] = newHash
	return nil
}

type testEnv struct {
	engine *Engine
	store  *memCredentialStore
	redis  *miniredis.Miniredis
	now    *time.Time
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := defaultConfig()
	cfg.Password = fastPasswordConfig()
	cfg.JWT.SigningMethod = "hs256"
	if mutate != nil {
		mutate(&cfg)
	}

	now := time.Now()
	store := newMemCredentialStore()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithClock(func() time.Time { return now }).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, redis: mr, now: &now}
}

func (env *testEnv) addUser(t *testing.T, uid int64, email, pass string) {
	t.Helper()

	hash, err := env.engine.hasher.Hash(pass)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	env.store.mu.Lock()
	env.store.byEmail[email] = Credential{UID: uid, Email: email, PasswordHash: hash}
	env.store.mu.Unlock()
}

func TestLoginSuccessIssuesTokenPair(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, 7, "alice@example.com", "Secret1!")

	res, err := env.engine.Login(ctx, "alice@example.com", "Secret1!")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected both tokens to be set")
	}

	claims, err := env.engine.VerifyAccess(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("verify access failed: %v", err)
	}
	if claims.UID != 7 {
		t.Fatalf("uid = %d, want 7", claims.UID)
	}

	if got := env.engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("login success counter = %d, want 1", got)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, 1, "alice@example.com", "Secret1!")

	if _, err := env.engine.Login(ctx, "alice@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "nobody@example.com", "Secret1!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}

	// Both kinds of credential failure count against the limiter.
	n, err := env.engine.LoginAttempts(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("attempts failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("attempts = %d, want 1", n)
	}
}

func TestLoginShapeFailuresAreTypedAndUncounted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, 1, "alice@example.com", "Secret1!")

	var fieldErr *policy.FieldError

	_, err := env.engine.Login(ctx, "alice@example.com", "")
	if !errors.As(err, &fieldErr) {
		t.Fatalf("empty password: expected *policy.FieldError, got %v", err)
	}
	if fieldErr.Field != policy.FieldPassword {
		t.Fatalf("field = %v, want password", fieldErr.Field)
	}

	_, err = env.engine.Login(ctx, "not-an-email", "Secret1!")
	if !errors.As(err, &fieldErr) {
		t.Fatalf("malformed email: expected *policy.FieldError, got %v", err)
	}
	if fieldErr.Field != policy.FieldEmail {
		t.Fatalf("field = %v, want email", fieldErr.Field)
	}

	// Shape failures never reach the limiter.
	for _, identity := range []string{"alice@example.com", "not-an-email"} {
		n, err := env.engine.LoginAttempts(ctx, identity)
		if err != nil {
			t.Fatalf("attempts failed: %v", err)
		}
		if n != 0 {
			t.Fatalf("attempts for %q = %d, want 0", identity, n)
		}
	}
}

func TestLoginShapeCheckPrecedesRateLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, 1, "alice@example.com", "Secret1!")

	for i := 0; i < 10; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "wrong")
	}

	// A blocked identity still gets the typed shape error, not the
	// rate-limit one.
	var fieldErr *policy.FieldError
	if _, err := env.engine.Login(ctx, "alice@example.com", ""); !errors.As(err, &fieldErr) {
		t.Fatalf("expected *policy.FieldError, got %v", err)
	}
}

func TestLoginRateLimitBlocksAndExpires(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, 1, "alice@example.com", "Secret1!")

	for i := 0; i < 10; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	// Threshold reached: even the correct password is refused.
	if _, err := env.engine.Login(ctx, "alice@example.com", "Secret1!"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}

	env.redis.FastForward(61 * time.Second)

	if _, err := env.engine.Login(ctx, "alice@example.com", "Secret1!"); err != nil {
		t.Fatalf("login after window elapsed failed: %v", err)
	}
}

func TestLoginSuccessResetsCounter(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, 1, "alice@example.com", "Secret1!")

	for i := 0; i < 5; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "wrong")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "Secret1!"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	n, err := env.engine.LoginAttempts(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("attempts failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("attempts after success = %d, want 0", n)
	}
}

func TestRefreshRotationAndReuse(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, 42, "alice@example.com", "Secret1!")

	login, err := env.engine.Login(ctx, "alice@example.com", "Secret1!")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	rotated, err := env.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if rotated.RefreshToken == login.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}

	claims, err := env.engine.VerifyAccess(ctx, rotated.AccessToken)
	if err != nil {
		t.Fatalf("verify rotated access failed: %v", err)
	}
	if claims.UID != 42 {
		t.Fatalf("uid = %d, want 42", claims.UID)
	}

	// Replaying the pre-rotation token is reuse and burns the token line.
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after burn, got %v", err)
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.engine.Refresh(context.Background(), "not-a-token"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
}

func TestLogoutRevokesSingleDevice(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, 1, "alice@example.com", "Secret1!")

	phone, err := env.engine.Login(ctx, "alice@example.com", "Secret1!")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	laptop, err := env.engine.Login(ctx, "alice@example.com", "Secret1!")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := env.engine.Logout(ctx, phone.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if err := env.engine.Logout(ctx, phone.RefreshToken); err != nil {
		t.Fatalf("repeated logout should be a no-op, got %v", err)
	}

	if _, err := env.engine.Refresh(ctx, phone.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for revoked token, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, laptop.RefreshToken); err != nil {
		t.Fatalf("other device refresh failed: %v", err)
	}
}

func TestLogoutAllRevokesEverything(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, 1, "alice@example.com", "Secret1!")

	first, _ := env.engine.Login(ctx, "alice@example.com", "Secret1!")
	second, _ := env.engine.Login(ctx, "alice@example.com", "Secret1!")

	n, err := env.engine.ActiveSessions(ctx, 1)
	if err != nil {
		t.Fatalf("active sessions failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("active sessions = %d, want 2", n)
	}

	if err := env.engine.LogoutAll(ctx, 1); err != nil {
		t.Fatalf("logout all failed: %v", err)
	}

	for _, tok := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := env.engine.Refresh(ctx, tok); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("expected ErrRefreshInvalid after logout all, got %v", err)
		}
	}
}

func TestVerificationSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tok, err := env.engine.RequestVerification(ctx, 99)
	if err != nil {
		t.Fatalf("request verification failed: %v", err)
	}

	uid, err := env.engine.ConfirmVerification(ctx, tok)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if uid != 99 {
		t.Fatalf("uid = %d, want 99", uid)
	}

	if _, err := env.engine.ConfirmVerification(ctx, tok); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid on second confirm, got %v", err)
	}
}

func TestVerificationExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tok, err := env.engine.RequestVerification(ctx, 5)
	if err != nil {
		t.Fatalf("request verification failed: %v", err)
	}

	*env.now = env.now.Add(31 * time.Minute)

	if _, err := env.engine.ConfirmVerification(ctx, tok); !errors.Is(err, ErrVerificationExpired) {
		t.Fatalf("expected ErrVerificationExpired, got %v", err)
	}
	// The expired record is gone; retries look like unknown tokens.
	if _, err := env.engine.ConfirmVerification(ctx, tok); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid after expiry delete, got %v", err)
	}
}

func TestVerificationGarbageToken(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.engine.ConfirmVerification(context.Background(), "@@@"); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid, got %v", err)
	}
}

// newWeakHash derives a hash at the parameter floor, below what the rehash
// test configures its engine with.
func newWeakHash(secret string) (string, error) {
	h, err := password.NewHasher(password.Params{
		MemoryKB:    8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		return "", err
	}
	return h.Hash(secret)
}

func TestRehashOnLoginUpgradesWeakHash(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Password.Iterations = 2
	})
	ctx := context.Background()

	// Store a hash derived with weaker parameters than the engine's.
	weak, err := newWeakHash("Secret1!")
	if err != nil {
		t.Fatalf("weak hash failed: %v", err)
	}
	env.store.mu.Lock()
	env.store.byEmail["old@example.com"] = Credential{UID: 3, Email: "old@example.com", PasswordHash: weak}
	env.store.mu.Unlock()

	if _, err := env.engine.Login(ctx, "old@example.com", "Secret1!"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	env.store.mu.Lock()
	upgraded := env.store.rehashed[3]
	env.store.mu.Unlock()
	if upgraded == "" {
		t.Fatal("expected an upgraded hash write-back")
	}
	if upgraded == weak {
		t.Fatal("upgraded hash equals the weak hash")
	}

	ok, err := env.engine.hasher.Verify("Secret1!", upgraded)
	if err != nil || !ok {
		t.Fatalf("upgraded hash does not verify: ok=%v err=%v", ok, err)
	}
}

func TestLoginLatencyUsesInjectedClock(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Metrics.EnableLatencyHistograms = true
	})
	ctx := context.Background()
	env.addUser(t, 1, "alice@example.com", "Secret1!")

	// Pin the clock far in the past: a wall-clock measurement would land
	// every sample in the overflow bucket.
	*env.now = time.Unix(1000, 0)

	if _, err := env.engine.Login(ctx, "alice@example.com", "Secret1!"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	buckets := env.engine.MetricsSnapshot().Histograms[MetricLoginLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("bucket count = %d, want %d", len(buckets), histBucketCount)
	}
	if buckets[0] != 1 {
		t.Fatalf("bucket[0] = %d, want 1", buckets[0])
	}
	if buckets[histBucketCount-1] != 0 {
		t.Fatalf("overflow bucket = %d, want 0", buckets[histBucketCount-1])
	}
}

// patternReader yields a deterministic byte sequence; two fresh instances
// produce identical streams.
type patternReader struct {
	next byte
}

func (r *patternReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.next
		r.next++
	}
	return len(p), nil
}

func TestVerificationTokensUseInjectedRand(t *testing.T) {
	ctx := context.Background()

	issue := func(t *testing.T) string {
		t.Helper()

		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("miniredis run failed: %v", err)
		}
		t.Cleanup(mr.Close)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		cfg := defaultConfig()
		cfg.Password = fastPasswordConfig()
		cfg.JWT.SigningMethod = "hs256"

		engine, err := New().
			WithConfig(cfg).
			WithRedis(rdb).
			WithCredentialStore(newMemCredentialStore()).
			WithRand(&patternReader{}).
			Build()
		if err != nil {
			t.Fatalf("build failed: %v", err)
		}
		t.Cleanup(engine.Close)

		tok, err := engine.RequestVerification(ctx, 1)
		if err != nil {
			t.Fatalf("request verification failed: %v", err)
		}
		return tok
	}

	if first, second := issue(t), issue(t); first != second {
		t.Fatalf("identical rand streams produced different tokens:\n%s\n%s", first, second)
	}
}

func TestAuditEventsReachSink(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := defaultConfig()
	cfg.Password = fastPasswordConfig()
	cfg.JWT.SigningMethod = "hs256"

	sink := NewChannelSink(16)
	store := newMemCredentialStore()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	hash, err := engine.hasher.Hash("Secret1!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	store.byEmail["alice@example.com"] = Credential{UID: 4, Email: "alice@example.com", PasswordHash: hash}

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	if _, err := engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "Secret1!"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Close flushes the dispatcher before we drain the sink.
	engine.Close()

	var events []AuditEvent
	for {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
			continue
		default:
		}
		break
	}

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].EventType != "login_failure" || events[0].Success {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[0].Error != "invalid_credentials" {
		t.Fatalf("error code = %q, want invalid_credentials", events[0].Error)
	}
	if events[1].EventType != "login_success" || !events[1].Success || events[1].UID != 4 {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	if events[1].IP != "203.0.113.9" {
		t.Fatalf("ip = %q, want 203.0.113.9", events[1].IP)
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := defaultConfig()
	cfg.Password = fastPasswordConfig()

	b := New().WithConfig(cfg).WithRedis(rdb).WithCredentialStore(newMemCredentialStore())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildRequiresDependencies(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected build without redis to fail")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if _, err := New().WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected build without credential store to fail")
	}
}
