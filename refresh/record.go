package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"

	"github.com/google/uuid"
)

const (
	recordVersionV1 = 1

	idSize     = 16
	secretSize = 24
	rawSize    = idSize + secretSize

	// Fixed layout: version(1) hash(32) uid(8) issuedAt(8) expiresAt(8)
	// subjectLen(2) subject. The rotate script depends on these offsets.
	hashOffset    = 1
	uidOffset     = hashOffset + 32
	issuedOffset  = uidOffset + 8
	expiresOffset = issuedOffset + 8
	subjectOffset = expiresOffset + 8
	minRecordSize = subjectOffset + 2
)

var errCorruptRecord = errors.New("corrupt refresh record")

// Record is the stored shape of one refresh token. The raw secret never
// appears here.
type Record struct {
	UID        int64
	Subject    string
	SecretHash [32]byte
	IssuedAt   int64
	ExpiresAt  int64
}

// NewToken draws a fresh token id and secret from random and returns the
// encoded raw token alongside its parts.
func NewToken(random io.Reader) (raw string, id uuid.UUID, secretHash [32]byte, err error) {
	if random == nil {
		random = rand.Reader
	}

	id, err = uuid.NewRandomFromReader(random)
	if err != nil {
		return "", uuid.Nil, secretHash, err
	}

	raw, secretHash, err = newSecretToken(id, random)
	return raw, id, secretHash, err
}

// newSecretToken draws a fresh secret for an existing record id. Used by
// rotation, which swaps the secret but keeps the record.
func newSecretToken(id uuid.UUID, random io.Reader) (string, [32]byte, error) {
	var hash [32]byte
	if random == nil {
		random = rand.Reader
	}

	var secret [secretSize]byte
	if _, err := io.ReadFull(random, secret[:]); err != nil {
		return "", hash, err
	}

	var buf [rawSize]byte
	copy(buf[:idSize], id[:])
	copy(buf[idSize:], secret[:])

	return base64.RawURLEncoding.EncodeToString(buf[:]), sha256.Sum256(secret[:]), nil
}

// SplitToken decodes a raw token into its record id and secret hash.
func SplitToken(raw string) (uuid.UUID, [32]byte, error) {
	var hash [32]byte

	buf, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return uuid.Nil, hash, errors.New("invalid refresh token encoding")
	}
	if len(buf) != rawSize {
		return uuid.Nil, hash, errors.New("invalid refresh token size")
	}

	id, err := uuid.FromBytes(buf[:idSize])
	if err != nil {
		return uuid.Nil, hash, err
	}

	return id, sha256.Sum256(buf[idSize:]), nil
}

func encodeRecord(r *Record) ([]byte, error) {
	if len(r.Subject) > 0xffff {
		return nil, errors.New("refresh record subject too long")
	}

	buf := make([]byte, minRecordSize+len(r.Subject))
	buf[0] = recordVersionV1
	copy(buf[hashOffset:], r.SecretHash[:])
	binary.BigEndian.PutUint64(buf[uidOffset:], uint64(r.UID))
	binary.BigEndian.PutUint64(buf[issuedOffset:], uint64(r.IssuedAt))
	binary.BigEndian.PutUint64(buf[expiresOffset:], uint64(r.ExpiresAt))
	binary.BigEndian.PutUint16(buf[subjectOffset:], uint16(len(r.Subject)))
	copy(buf[subjectOffset+2:], r.Subject)

	return buf, nil
}

func decodeRecord(data []byte) (*Record, error) {
	if len(data) < minRecordSize || data[0] != recordVersionV1 {
		return nil, errCorruptRecord
	}

	r := &Record{
		UID:       int64(binary.BigEndian.Uint64(data[uidOffset:])),
		IssuedAt:  int64(binary.BigEndian.Uint64(data[issuedOffset:])),
		ExpiresAt: int64(binary.BigEndian.Uint64(data[expiresOffset:])),
	}
	copy(r.SecretHash[:], data[hashOffset:uidOffset])

	subjLen := int(binary.BigEndian.Uint16(data[subjectOffset:]))
	if len(data) != minRecordSize+subjLen {
		return nil, errCorruptRecord
	}
	r.Subject = string(data[subjectOffset+2:])

	return r, nil
}
