package refresh

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrTokenNotFound is returned when no record exists for the token id.
	ErrTokenNotFound = errors.New("refresh token not found")
	// ErrTokenExpired is returned when the record exists but is past expiry.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrReuseDetected is returned when a token's secret does not match the
	// stored hash — the signature of replaying an already-rotated token.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrRedisUnavailable wraps transport failures talking to Redis.
	ErrRedisUnavailable = errors.New("refresh redis unavailable")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusReuse    int64 = 2
	rotateStatusRotated  int64 = 3
)

// rotateLua atomically swaps the stored secret hash for a refresh record.
// The record layout is fixed-offset (see record.go), so the script splices
// the new hash and issued-at bytes without a full decode. Expiry is absolute:
// rotation preserves the record's remaining TTL.
//
// KEYS[1] record key, KEYS[2] per-uid index set.
// ARGV[1] provided hash (32 raw bytes), ARGV[2] next hash (32 raw bytes),
// ARGV[3] expected uid, ARGV[4] now unix, ARGV[5] next issued-at
// (8 raw big-endian bytes), ARGV[6] record id (index member).
var rotateLua = redis.NewScript(`
local function read_be64(s, i)
  local v = 0
  for off = 0, 7 do
    local b = string.byte(s, i + off)
    if not b then return nil end
    v = v * 256 + b
  end
  return v
end

local function burn()
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], ARGV[6])
end

local data = redis.call('GET', KEYS[1])
if not data then
  return {0}
end

local uid = read_be64(data, 34)
local expires_at = read_be64(data, 50)
if not uid or not expires_at then
  burn()
  return {0}
end

if uid ~= tonumber(ARGV[3]) then
  return {0}
end

if expires_at <= tonumber(ARGV[4]) then
  burn()
  return {1}
end

if string.sub(data, 2, 33) ~= ARGV[1] then
  burn()
  return {2}
end

local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  burn()
  return {1}
end

local updated = string.sub(data, 1, 1) .. ARGV[2] .. string.sub(data, 34, 41) .. ARGV[5] .. string.sub(data, 50)
redis.call('SET', KEYS[1], updated, 'PX', ttl)
return {3, updated}
`)

// Config tunes a [Manager].
type Config struct {
	// Prefix namespaces all Redis keys. Defaults to "rt".
	Prefix string
	// TTL is the refresh token lifetime from issuance. Defaults to 15 days.
	TTL time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
	// Rand is the randomness source for token material. Defaults to
	// crypto/rand.
	Rand io.Reader
}

// Manager owns refresh token persistence: issue, verify, rotate, revoke.
// All operations are safe for concurrent use.
type Manager struct {
	redis redis.UniversalClient
	cfg   Config
}

// NewManager creates a [Manager] backed by the given Redis client.
func NewManager(client redis.UniversalClient, cfg Config) *Manager {
	if cfg.Prefix == "" {
		cfg.Prefix = "rt"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{redis: client, cfg: cfg}
}

func (m *Manager) recordKey(id uuid.UUID) string {
	return m.cfg.Prefix + ":" + id.String()
}

func (m *Manager) indexKey(uid int64) string {
	return fmt.Sprintf("%s:u:%d", m.cfg.Prefix, uid)
}

// Generate draws a fresh raw token without persisting anything. Pair with
// [Manager.Store].
func (m *Manager) Generate() (string, error) {
	raw, _, _, err := NewToken(m.cfg.Rand)
	return raw, err
}

// Store persists the hash of a previously generated raw token for uid.
// The raw value itself is never written.
func (m *Manager) Store(ctx context.Context, uid int64, subject, raw string) error {
	id, hash, err := SplitToken(raw)
	if err != nil {
		return err
	}

	now := m.cfg.Now()
	rec := &Record{
		UID:        uid,
		Subject:    subject,
		SecretHash: hash,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(m.cfg.TTL).Unix(),
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, m.recordKey(id), data, m.cfg.TTL)
		pipe.SAdd(ctx, m.indexKey(uid), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Issue is Generate followed by Store; it returns the raw token exactly once.
func (m *Manager) Issue(ctx context.Context, uid int64, subject string) (string, error) {
	raw, err := m.Generate()
	if err != nil {
		return "", err
	}
	if err := m.Store(ctx, uid, subject, raw); err != nil {
		return "", err
	}
	return raw, nil
}

// Verify reports whether raw is a live refresh token for uid. The stored
// hash comparison is constant-time. An expired record is deleted and treated
// as absent.
func (m *Manager) Verify(ctx context.Context, uid int64, raw string) (bool, error) {
	id, hash, err := SplitToken(raw)
	if err != nil {
		return false, nil
	}

	data, err := m.redis.Get(ctx, m.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return false, err
	}
	if rec.UID != uid {
		return false, nil
	}
	if rec.ExpiresAt <= m.cfg.Now().Unix() {
		_ = m.remove(ctx, uid, id)
		return false, nil
	}

	return subtle.ConstantTimeCompare(rec.SecretHash[:], hash[:]) == 1, nil
}

// Peek decodes the record a raw token points at without consuming or
// validating the secret. Callers use it to learn the owning uid before
// [Manager.Rotate]; the rotation script revalidates everything atomically.
func (m *Manager) Peek(ctx context.Context, raw string) (*Record, error) {
	id, _, err := SplitToken(raw)
	if err != nil {
		return nil, ErrTokenNotFound
	}

	data, err := m.redis.Get(ctx, m.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return decodeRecord(data)
}

// Rotate atomically invalidates the old token and issues a replacement bound
// to the same record, preserving the absolute expiry. Exactly one of any set
// of concurrent rotations of the same token succeeds; the rest get
// [ErrReuseDetected] and the record is destroyed.
func (m *Manager) Rotate(ctx context.Context, uid int64, oldRaw string) (string, *Record, error) {
	id, oldHash, err := SplitToken(oldRaw)
	if err != nil {
		return "", nil, ErrTokenNotFound
	}

	// Rotation swaps the secret, not the record: the new token keeps the
	// old record id.
	newRaw, newHash, err := newSecretToken(id, m.cfg.Rand)
	if err != nil {
		return "", nil, err
	}

	var issued [8]byte
	binary.BigEndian.PutUint64(issued[:], uint64(m.cfg.Now().Unix()))

	res, err := rotateLua.Run(ctx, m.redis,
		[]string{m.recordKey(id), m.indexKey(uid)},
		string(oldHash[:]),
		string(newHash[:]),
		uid,
		m.cfg.Now().Unix(),
		string(issued[:]),
		id.String(),
	).Slice()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) == 0 {
		return "", nil, fmt.Errorf("%w: empty rotate reply", ErrRedisUnavailable)
	}

	status, _ := res[0].(int64)
	switch status {
	case rotateStatusRotated:
		blob, _ := res[1].(string)
		rec, decErr := decodeRecord([]byte(blob))
		if decErr != nil {
			return "", nil, decErr
		}
		return newRaw, rec, nil
	case rotateStatusExpired:
		return "", nil, ErrTokenExpired
	case rotateStatusReuse:
		return "", nil, ErrReuseDetected
	default:
		return "", nil, ErrTokenNotFound
	}
}

// Revoke deletes a single refresh token for uid. Unknown tokens are a no-op.
func (m *Manager) Revoke(ctx context.Context, uid int64, raw string) error {
	id, _, err := SplitToken(raw)
	if err != nil {
		return nil
	}
	return m.remove(ctx, uid, id)
}

// RevokeAll deletes every refresh token for uid (logout-everywhere, password
// change). Not atomic with respect to concurrent Store calls: a token stored
// between the index read and the deletes survives.
func (m *Manager) RevokeAll(ctx context.Context, uid int64) error {
	index := m.indexKey(uid)

	ids, err := m.redis.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, idStr := range ids {
			if id, parseErr := uuid.Parse(idStr); parseErr == nil {
				pipe.Del(ctx, m.recordKey(id))
			}
		}
		pipe.Del(ctx, index)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveCount returns the number of indexed refresh tokens for uid.
func (m *Manager) ActiveCount(ctx context.Context, uid int64) (int64, error) {
	n, err := m.redis.SCard(ctx, m.indexKey(uid)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

func (m *Manager) remove(ctx context.Context, uid int64, id uuid.UUID) error {
	_, err := m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, m.recordKey(id))
		pipe.SRem(ctx, m.indexKey(uid), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
