package authcore

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method runs before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike;
	// callers must not be able to distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned when the identity or source IP has
	// exhausted its attempt window.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrUnauthorized is returned by VerifyAccess for any unusable token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRefreshInvalid is returned for unknown or malformed refresh tokens.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshExpired is returned when a refresh token is past its expiry.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrRefreshReuse is returned when an already-rotated refresh token is
	// replayed; the whole token record is destroyed as a side effect.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrVerificationInvalid is returned for unknown, malformed, or already
	// consumed email verification tokens.
	ErrVerificationInvalid = errors.New("email verification token invalid")
	// ErrVerificationExpired is returned when a verification token is past
	// its deadline; the record is deleted as a side effect.
	ErrVerificationExpired = errors.New("email verification token expired")
	// ErrCredentialNotFound is the contract error a [CredentialStore] returns
	// for unknown emails. The engine maps it to [ErrInvalidCredentials].
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrStoreUnavailable wraps backend failures (Redis, credential store).
	ErrStoreUnavailable = errors.New("backend store unavailable")
)
