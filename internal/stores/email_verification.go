package stores

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrVerificationNotFound covers absent records and secret mismatches:
	// callers must not be able to distinguish the two.
	ErrVerificationNotFound = errors.New("verification record not found")
	// ErrVerificationExpired is returned when the record exists but its
	// expiry has passed; the record is deleted as a side effect.
	ErrVerificationExpired = errors.New("verification record expired")
	// ErrVerificationRedisUnavailable wraps transport failures.
	ErrVerificationRedisUnavailable = errors.New("verification redis unavailable")
)

const (
	verificationVersionV1 = 1

	// Fixed layout: version(1) uid(8) expiresAt(8) secretHash(32).
	// consumeLua depends on these offsets.
	verificationRecordSize = 1 + 8 + 8 + 32
)

// consumeLua performs GET → expiry check → DEL atomically.
//
// KEYS[1] record key. ARGV[1] provided secret hash (32 raw bytes),
// ARGV[2] now unix.
//
// Returns the record bytes on success, or an error string:
// "not_found", "expired", "mismatch".
var consumeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

if string.byte(data, 1) ~= 1 or #data ~= 49 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local expires_at = 0
for off = 10, 17 do
  expires_at = expires_at * 256 + string.byte(data, off)
end

if tonumber(ARGV[2]) > expires_at then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if string.sub(data, 18, 49) ~= ARGV[1] then
  return {err='mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// VerificationRecord is the stored shape of one email-verification challenge.
type VerificationRecord struct {
	UID        int64
	SecretHash [32]byte
	ExpiresAt  int64
}

// VerificationStore persists single-use email-verification records.
type VerificationStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewVerificationStore creates a store namespaced under prefix
// (default "ev").
func NewVerificationStore(client redis.UniversalClient, prefix string) *VerificationStore {
	if prefix == "" {
		prefix = "ev"
	}
	return &VerificationStore{redis: client, prefix: prefix}
}

func (s *VerificationStore) key(id string) string {
	return s.prefix + ":" + id
}

// Save persists a record under id with the given TTL.
func (s *VerificationStore) Save(ctx context.Context, id string, rec *VerificationRecord, ttl time.Duration) error {
	data := encodeVerificationRecord(rec)
	if err := s.redis.Set(ctx, s.key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}
	return nil
}

// Consume atomically validates and deletes the record under id. On success
// the record is gone: a second Consume of the same id fails with
// [ErrVerificationNotFound]. An expired record is deleted and reported via
// [ErrVerificationExpired] even if Redis has not collected it yet.
func (s *VerificationStore) Consume(ctx context.Context, id string, providedHash [32]byte, now time.Time) (*VerificationRecord, error) {
	res, err := consumeLua.Run(ctx, s.redis,
		[]string{s.key(id)},
		string(providedHash[:]),
		now.Unix(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found", "mismatch":
			return nil, ErrVerificationNotFound
		case "expired":
			return nil, ErrVerificationExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
		}
	}

	data, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrVerificationRedisUnavailable)
	}

	rec, err := decodeVerificationRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}

	// Defense in depth: Lua string comparison is not constant-time.
	if subtle.ConstantTimeCompare(rec.SecretHash[:], providedHash[:]) != 1 {
		return nil, ErrVerificationNotFound
	}

	return rec, nil
}

// Delete removes a record without consuming it.
func (s *VerificationStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}
	return nil
}

func encodeVerificationRecord(rec *VerificationRecord) []byte {
	buf := make([]byte, verificationRecordSize)
	buf[0] = verificationVersionV1
	binary.BigEndian.PutUint64(buf[1:], uint64(rec.UID))
	binary.BigEndian.PutUint64(buf[9:], uint64(rec.ExpiresAt))
	copy(buf[17:], rec.SecretHash[:])
	return buf
}

func decodeVerificationRecord(data []byte) (*VerificationRecord, error) {
	if len(data) != verificationRecordSize || data[0] != verificationVersionV1 {
		return nil, errors.New("invalid verification record")
	}

	rec := &VerificationRecord{
		UID:       int64(binary.BigEndian.Uint64(data[1:])),
		ExpiresAt: int64(binary.BigEndian.Uint64(data[9:])),
	}
	copy(rec.SecretHash[:], data[17:])
	return rec, nil
}
