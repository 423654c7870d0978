package authcore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBenchmarkEngine(b *testing.B) (*Engine, *memCredentialStore) {
	b.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis run failed: %v", err)
	}
	b.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b.Cleanup(func() { _ = rdb.Close() })

	cfg := defaultConfig()
	cfg.Password = fastPasswordConfig()
	cfg.JWT.SigningMethod = "hs256"

	store := newMemCredentialStore()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		Build()
	if err != nil {
		b.Fatalf("build failed: %v", err)
	}
	b.Cleanup(engine.Close)

	hash, err := engine.hasher.Hash("Secret1!")
	if err != nil {
		b.Fatalf("hash failed: %v", err)
	}
	store.byEmail["alice@example.com"] = Credential{UID: 1, Email: "alice@example.com", PasswordHash: hash}

	return engine, store
}

func BenchmarkVerifyAccess(b *testing.B) {
	engine, _ := newBenchmarkEngine(b)

	res, err := engine.Login(context.Background(), "alice@example.com", "Secret1!")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.VerifyAccess(context.Background(), res.AccessToken); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	engine, _ := newBenchmarkEngine(b)

	res, err := engine.Login(context.Background(), "alice@example.com", "Secret1!")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	token := res.RefreshToken
	for i := 0; i < b.N; i++ {
		rotated, err := engine.Refresh(context.Background(), token)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		token = rotated.RefreshToken
	}
}

func BenchmarkLogin(b *testing.B) {
	engine, _ := newBenchmarkEngine(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := engine.Login(context.Background(), "alice@example.com", "Secret1!")
		if err != nil {
			b.Fatalf("login failed: %v", err)
		}
		// Keep the per-uid session set from growing unbounded.
		b.StopTimer()
		_ = engine.Logout(context.Background(), res.RefreshToken)
		b.StartTimer()
	}
}
