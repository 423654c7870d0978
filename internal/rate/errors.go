package rate

import "errors"

var (
	// ErrRateLimited is returned once an identity has exhausted its
	// failed attempts for the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport failures talking to Redis.
	ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
)
