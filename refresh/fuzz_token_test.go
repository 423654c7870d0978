package refresh

import (
	"testing"
)

// FuzzSplitToken exercises raw-token decoding with arbitrary strings.
// Goal: no panics; invalid inputs return errors cleanly.
func FuzzSplitToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	if raw, _, _, err := NewToken(nil); err == nil {
		f.Add(raw)
	}

	// Malformed base64 and wrong lengths.
	f.Add("!!!not-base64!!!")
	f.Add("aGVsbG8=")
	f.Add("dG9vLXNob3J0")

	f.Fuzz(func(t *testing.T, raw string) {
		id, hash, err := SplitToken(raw)
		if err != nil {
			return
		}
		// A successful split must round out to real parts.
		if id.String() == "" {
			t.Fatal("valid split returned empty id")
		}
		var zero [32]byte
		if hash == zero {
			t.Fatal("valid split returned zero hash")
		}
	})
}

// FuzzDecodeRecord exercises the stored-record codec with arbitrary bytes.
func FuzzDecodeRecord(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{1})
	f.Add(make([]byte, minRecordSize))

	if data, err := encodeRecord(&Record{UID: 7, Subject: "7", ExpiresAt: 1}); err == nil {
		f.Add(data)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		rec, err := decodeRecord(data)
		if err != nil {
			return
		}
		reencoded, err := encodeRecord(rec)
		if err != nil {
			t.Fatalf("re-encode of decoded record failed: %v", err)
		}
		if len(reencoded) != len(data) {
			t.Fatalf("codec not stable: %d bytes in, %d out", len(data), len(reencoded))
		}
	})
}
