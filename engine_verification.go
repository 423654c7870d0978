package authcore

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/wagerline/authcore/internal/audit"
	"github.com/wagerline/authcore/internal/stores"
)

const verificationSecretSize = 24

var errVerificationDisabled = errors.New("email verification disabled")

// RequestVerification issues a single-use email verification token for uid.
// The raw token is returned exactly once; only its hash is stored.
func (e *Engine) RequestVerification(ctx context.Context, uid int64) (string, error) {
	if e == nil || e.verifications == nil {
		return "", ErrEngineNotReady
	}
	if !e.config.Verification.Enabled {
		return "", errVerificationDisabled
	}

	raw, id, hash, err := newVerificationToken(e.rand)
	if err != nil {
		return "", err
	}

	now := e.now()
	rec := &stores.VerificationRecord{
		UID:        uid,
		SecretHash: hash,
		ExpiresAt:  now.Add(e.config.Verification.TTL).Unix(),
	}
	if err := e.verifications.Save(ctx, id, rec, e.config.Verification.TTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricVerificationIssued)
	e.emitAudit(ctx, audit.EventVerificationIssued, true, uid, "", nil, nil)

	return raw, nil
}

// ConfirmVerification consumes a verification token and returns the uid it
// was issued for. A token confirms at most once: the record is deleted
// atomically with the check, so a second confirm of the same token fails
// with [ErrVerificationInvalid].
func (e *Engine) ConfirmVerification(ctx context.Context, rawToken string) (int64, error) {
	if e == nil || e.verifications == nil {
		return 0, ErrEngineNotReady
	}
	if !e.config.Verification.Enabled {
		return 0, errVerificationDisabled
	}

	id, hash, err := splitVerificationToken(rawToken)
	if err != nil {
		e.metricInc(MetricVerificationFailure)
		e.emitAudit(ctx, audit.EventVerificationFailed, false, 0, "", ErrVerificationInvalid, nil)
		return 0, ErrVerificationInvalid
	}

	rec, err := e.verifications.Consume(ctx, id, hash, e.now())
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrVerificationExpired):
			e.metricInc(MetricVerificationExpired)
			e.emitAudit(ctx, audit.EventVerificationFailed, false, 0, "", ErrVerificationExpired, nil)
			return 0, ErrVerificationExpired
		case errors.Is(err, stores.ErrVerificationNotFound):
			e.metricInc(MetricVerificationFailure)
			e.emitAudit(ctx, audit.EventVerificationFailed, false, 0, "", ErrVerificationInvalid, nil)
			return 0, ErrVerificationInvalid
		default:
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	e.metricInc(MetricVerificationConsumed)
	e.emitAudit(ctx, audit.EventVerificationConsumed, true, rec.UID, "", nil, nil)

	return rec.UID, nil
}

// newVerificationToken draws a record id and secret, returning the encoded
// raw token, the record id string, and the secret's hash.
func newVerificationToken(random io.Reader) (string, string, [32]byte, error) {
	var hash [32]byte

	id, err := uuid.NewRandomFromReader(random)
	if err != nil {
		return "", "", hash, err
	}

	var secret [verificationSecretSize]byte
	if _, err := io.ReadFull(random, secret[:]); err != nil {
		return "", "", hash, err
	}

	buf := make([]byte, 0, len(id)+verificationSecretSize)
	buf = append(buf, id[:]...)
	buf = append(buf, secret[:]...)

	return base64.RawURLEncoding.EncodeToString(buf), id.String(), sha256.Sum256(secret[:]), nil
}

func splitVerificationToken(raw string) (string, [32]byte, error) {
	var hash [32]byte

	buf, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", hash, errors.New("invalid verification token encoding")
	}
	if len(buf) != 16+verificationSecretSize {
		return "", hash, errors.New("invalid verification token size")
	}

	id, err := uuid.FromBytes(buf[:16])
	if err != nil {
		return "", hash, err
	}

	return id.String(), sha256.Sum256(buf[16:]), nil
}
