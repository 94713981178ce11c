package cas

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	hmerrors "hivemind/hivemind/errors"
)

type sampleRecord struct {
	Zebra   string `json:"zebra"`
	Alpha   int    `json:"alpha"`
	derived string
}

func TestMemoryPutGetRoundTrip(t *testing.T) {
	store := NewMemory()
	rec := sampleRecord{Zebra: "z", Alpha: 1, derived: "cache-only"}
	hash, err := store.Put(rec)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	var got sampleRecord
	if err := store.Get(hash, &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Zebra != rec.Zebra || got.Alpha != rec.Alpha {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, rec)
	}
	if got.derived != "" {
		t.Fatalf("expected unexported field to be elided from serialization")
	}
}

func TestMemoryGetUnknownHash(t *testing.T) {
	store := NewMemory()
	var out sampleRecord
	err := store.Get(Multihash("bafy-does-not-exist"), &out)
	if !hmerrors.Is(err, hmerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutIsContentAddressedAndIdempotent(t *testing.T) {
	store := NewMemory()
	rec := sampleRecord{Zebra: "same", Alpha: 42}
	h1, err := store.Put(rec)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	h2, err := store.Put(rec)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical records to hash identically: %s != %s", h1, h2)
	}
}

func TestDiskPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDisk(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	rec := sampleRecord{Zebra: "disk", Alpha: 7}
	hash, err := store.Put(rec)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	var got sampleRecord
	if err := store.Get(hash, &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != (sampleRecord{Zebra: "disk", Alpha: 7}) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

// TestCanonicalizePreservesNumberLiterals guards against Canonicalize
// collapsing numeric literals through float64: a trailing-zero decimal or
// an integer past float64's exact-integer range must come back unchanged.
func TestCanonicalizePreservesNumberLiterals(t *testing.T) {
	raw := []byte(`{"decimal":1.50,"big_int":9007199254740993}`)
	canonical, err := Canonicalize(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	var decoded map[string]json.Number
	dec := json.NewDecoder(bytes.NewReader(canonical))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		t.Fatalf("decode canonical form: %v", err)
	}
	if decoded["decimal"].String() != "1.50" {
		t.Fatalf("expected the trailing zero to survive canonicalization, got %q", decoded["decimal"])
	}
	if decoded["big_int"].String() != "9007199254740993" {
		t.Fatalf("expected the large integer to survive canonicalization, got %q", decoded["big_int"])
	}
}

func TestDiskGetUnknownHash(t *testing.T) {
	store, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	var out sampleRecord
	err = store.Get(Multihash("bafy-missing"), &out)
	if !hmerrors.Is(err, hmerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
