package authcore

import (
	"context"
	"errors"

	"github.com/wagerline/authcore/internal/audit"
	"github.com/wagerline/authcore/policy"
)

// AuditErrorCode is the stable error label carried in audit events, decoupled
// from Go error messages.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation_failure"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRefreshInvalid     AuditErrorCode = "refresh_invalid"
	auditErrRefreshExpired     AuditErrorCode = "refresh_expired"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrVerificationBad    AuditErrorCode = "verification_invalid"
	auditErrVerificationStale  AuditErrorCode = "verification_expired"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	uid int64,
	identity string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UID:       uid,
		Identity:  identity,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var fieldErr *policy.FieldError
	if errors.As(err, &fieldErr) {
		return auditErrValidation
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshExpired):
		return auditErrRefreshExpired
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrVerificationInvalid):
		return auditErrVerificationBad
	case errors.Is(err, ErrVerificationExpired):
		return auditErrVerificationStale
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
