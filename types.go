package authcore

import (
	"context"
	"io"

	internalaudit "github.com/wagerline/authcore/internal/audit"
	"github.com/wagerline/authcore/token"
)

// Credential is the stored login material for one account, as returned by a
// [CredentialStore]. Only the argon2id hash crosses this boundary, never a
// plaintext password.
type Credential struct {
	UID          int64
	Email        string
	PasswordHash string
}

// CredentialStore is the interface callers implement to connect the engine
// to their account database.
//
// GetCredential must return [ErrCredentialNotFound] (possibly wrapped) for
// unknown emails so the engine can collapse that case into
// [ErrInvalidCredentials] without leaking account existence.
type CredentialStore interface {
	GetCredential(ctx context.Context, email string) (Credential, error)
}

// CredentialRehasher is optionally implemented by a [CredentialStore]. When
// present and [PasswordConfig.RehashOnLogin] is set, the engine writes back
// an upgraded hash after a successful login with an outdated one. The write
// is best-effort and never blocks the login.
type CredentialRehasher interface {
	UpdatePasswordHash(ctx context.Context, uid int64, newHash string) error
}

// LoginResult carries the token pair returned by [Engine.Login] and
// [Engine.Refresh].
type LoginResult struct {
	AccessToken  string
	RefreshToken string
}

// AccessClaims is the decoded payload of a verified access token.
type AccessClaims = token.Claims

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
