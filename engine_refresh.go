package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/wagerline/authcore/internal/audit"
	"github.com/wagerline/authcore/refresh"
)

// Refresh rotates a refresh token and mints a new access token for its
// owner. The old refresh token is dead on return; replaying it destroys the
// whole token line and yields [ErrRefreshReuse].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.refresh == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.refresh.Peek(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, refresh.ErrRedisUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, audit.EventRefreshFailure, false, 0, "", ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	}

	newRaw, rotated, err := e.refresh.Rotate(ctx, rec.UID, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrReuseDetected):
			e.metricInc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, audit.EventRefreshReuse, false, rec.UID, "", ErrRefreshReuse, nil)
			return nil, ErrRefreshReuse
		case errors.Is(err, refresh.ErrTokenExpired):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, audit.EventRefreshFailure, false, rec.UID, "", ErrRefreshExpired, nil)
			return nil, ErrRefreshExpired
		case errors.Is(err, refresh.ErrRedisUnavailable):
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		default:
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, audit.EventRefreshFailure, false, rec.UID, "", ErrRefreshInvalid, nil)
			return nil, ErrRefreshInvalid
		}
	}

	access, err := e.issueAccessToken(rotated.Subject, rotated.UID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, audit.EventRefreshFailure, false, rotated.UID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, audit.EventRefreshSuccess, true, rotated.UID, "", nil, nil)

	return &LoginResult{AccessToken: access, RefreshToken: newRaw}, nil
}

// Logout revokes a single refresh token. Unknown tokens are a no-op so
// logout is idempotent.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.refresh == nil {
		return ErrEngineNotReady
	}

	rec, err := e.refresh.Peek(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, refresh.ErrRedisUnavailable) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}

	if err := e.refresh.Revoke(ctx, rec.UID, refreshToken); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, audit.EventLogout, true, rec.UID, "", nil, nil)
	return nil
}

// LogoutAll revokes every refresh token belonging to uid (logout
// everywhere, account compromise response).
func (e *Engine) LogoutAll(ctx context.Context, uid int64) error {
	if e == nil || e.refresh == nil {
		return ErrEngineNotReady
	}

	if err := e.refresh.RevokeAll(ctx, uid); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, audit.EventLogoutAll, true, uid, "", nil, nil)
	return nil
}

// ActiveSessions reports the number of live refresh tokens for uid.
func (e *Engine) ActiveSessions(ctx context.Context, uid int64) (int64, error) {
	if e == nil || e.refresh == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.refresh.ActiveCount(ctx, uid)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}
