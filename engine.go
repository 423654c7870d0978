package authcore

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/wagerline/authcore/internal/audit"
	"github.com/wagerline/authcore/internal/rate"
	"github.com/wagerline/authcore/internal/stores"
	"github.com/wagerline/authcore/password"
	"github.com/wagerline/authcore/refresh"
	"github.com/wagerline/authcore/secrets"
	"github.com/wagerline/authcore/token"
)

// Engine is the account-session backend. Construct via [Builder.Build]; all
// methods are safe for concurrent use afterwards.
type Engine struct {
	config        Config
	now           func() time.Time
	logger        *slog.Logger
	rand          io.Reader
	credentials   CredentialStore
	keys          *secrets.Store
	tokens        *token.Manager
	hasher        *password.Hasher
	dummyHash     string
	refresh       *refresh.Manager
	limiter       *rate.Limiter
	verifications *stores.VerificationStore
	audit         *audit.Dispatcher
	metrics       *Metrics
}

// Close flushes and stops the audit dispatcher. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// VerifyAccess parses and validates an access token, returning its claims.
// Every failure collapses into [ErrUnauthorized].
func (e *Engine) VerifyAccess(_ context.Context, tokenStr string) (*AccessClaims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) issueAccessToken(subject string, uid int64) (string, error) {
	return e.tokens.Issue(subject, uid, e.config.JWT.AccessTTL)
}
