package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wagerline/authcore/internal/audit"
	"github.com/wagerline/authcore/internal/rate"
	"github.com/wagerline/authcore/policy"
)

// Login verifies an email/password pair and returns a fresh token pair.
//
// Input shape is checked first: an empty password or malformed email returns
// a [*policy.FieldError] without touching the limiter, so callers can map it
// to a 400-class response. Past that gate, unknown emails and wrong passwords
// are indistinguishable: both return [ErrInvalidCredentials], both count
// against the attempt limiter, and the unknown-email path runs an argon2
// verification against a throwaway hash so response timing does not betray
// account existence.
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	if e == nil || e.hasher == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := e.now()
		defer func() { e.metrics.Observe(MetricLoginLatency, e.now().Sub(start)) }()
	}

	identity := normalizeEmail(email)
	ip := clientIPFromContext(ctx)

	// Bad-shape input can never name an account; reject it before the
	// limiter so it neither burns nor is blocked by attempt counters.
	if err := checkLoginShape(identity, pass); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, audit.EventLoginFailure, false, 0, identity, err, func() map[string]string {
			return map[string]string{"reason": "malformed_input"}
		})
		return nil, err
	}

	if err := e.limiter.Check(ctx, identity, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, audit.EventLoginRateLimited, false, 0, identity, ErrLoginRateLimited, nil)
			return nil, ErrLoginRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	cred, err := e.credentials.GetCredential(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			// Burn the same argon2 work a real verification would cost.
			_, _ = e.hasher.Verify(pass, e.dummyHash)
			return nil, e.failLogin(ctx, identity, ip, "unknown_email")
		}
		e.logger.WarnContext(ctx, "credential store lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(pass, cred.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, identity, ip, "password_mismatch")
	}

	e.maybeRehash(ctx, cred, pass)
	pass = ""

	subject := strconv.FormatInt(cred.UID, 10)
	access, err := e.issueAccessToken(subject, cred.UID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, audit.EventLoginFailure, false, cred.UID, identity, err, nil)
		return nil, err
	}

	refreshRaw, err := e.refresh.Issue(ctx, cred.UID, subject)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, audit.EventLoginFailure, false, cred.UID, identity, err, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.limiter.Reset(ctx, identity, ip); err != nil {
		// Stale counters only shorten the caller's window; do not fail the
		// login over it.
		e.logger.WarnContext(ctx, "login limiter reset failed", "error", err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, audit.EventLoginSuccess, true, cred.UID, identity, nil, nil)

	return &LoginResult{AccessToken: access, RefreshToken: refreshRaw}, nil
}

// failLogin records a failed attempt and returns the uniform credentials
// error.
func (e *Engine) failLogin(ctx context.Context, identity, ip, reason string) error {
	if _, err := e.limiter.RecordFailure(ctx, identity, ip); err != nil {
		e.logger.WarnContext(ctx, "login attempt recording failed", "error", err)
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, audit.EventLoginFailure, false, 0, identity, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrInvalidCredentials
}

// maybeRehash upgrades an outdated stored hash after a successful login.
// Best-effort: failures are logged and never surface to the caller.
func (e *Engine) maybeRehash(ctx context.Context, cred Credential, pass string) {
	if !e.config.Password.RehashOnLogin {
		return
	}
	rehasher, ok := e.credentials.(CredentialRehasher)
	if !ok {
		return
	}

	stale, err := e.hasher.NeedsRehash(cred.PasswordHash)
	if err != nil || !stale {
		return
	}

	upgraded, err := e.hasher.Hash(pass)
	if err != nil {
		e.logger.WarnContext(ctx, "password rehash generation failed", "error", err)
		return
	}
	if err := rehasher.UpdatePasswordHash(ctx, cred.UID, upgraded); err != nil {
		e.logger.WarnContext(ctx, "password rehash update failed", "error", err)
	}
}

// LoginAttempts reports the identity's current failed-attempt count.
func (e *Engine) LoginAttempts(ctx context.Context, email string) (int64, error) {
	if e == nil || e.limiter == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.limiter.Attempts(ctx, normalizeEmail(email))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// checkLoginShape validates input shape only. Password policy is not applied
// here: stored passwords may predate the current policy.
func checkLoginShape(identity, pass string) error {
	if pass == "" {
		return &policy.FieldError{Field: policy.FieldPassword, Reason: "must not be empty"}
	}
	return policy.CheckEmail(identity)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
