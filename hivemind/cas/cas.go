// Package cas implements the content-addressed store interface of
// spec.md 4.1/6: records are serialized as canonical UTF-8 JSON with
// sorted keys and hashed with the store's native multihash scheme, which
// the engine treats as opaque.
//
// The Multihash/CID machinery is grounded on the only repo in the
// retrieval pack that imports it for the same purpose (orbas1-Synnergy's
// core/storage.go IPFS gateway wrapper); the store's put/get contract and
// error taxonomy follow spec.md directly.
package cas

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	hmerrors "hivemind/hivemind/errors"
)

// Multihash is the opaque content-derived identifier produced by the store.
// It is rendered as a CIDv1 string (raw codec, SHA2-256 multihash) so it is
// safe to embed directly in JSON records and log lines.
type Multihash string

func (m Multihash) String() string { return string(m) }

// Store exposes the put/get contract of spec.md 4.1. Implementations must
// elide any Go struct field that is unexported (the Go analogue of the
// spec's "fields whose name starts with a sentinel underscore prefix are
// excluded from serialization" — unexported fields are never visited by
// encoding/json, so that exclusion falls out of ordinary Go idiom rather
// than needing a bespoke filter).
type Store interface {
	// Put canonicalizes record and persists it, returning its multihash.
	Put(record any) (Multihash, error)
	// Get loads the record addressed by hash into out, a pointer to the
	// expected concrete type. Returns ErrNotFound if hash is unknown and
	// ErrCorrupt if the stored bytes fail to deserialize into out.
	Get(hash Multihash, out any) error
}

// Canonicalize serializes v as UTF-8 JSON with lexicographically sorted
// object keys. encoding/json already sorts map[string]any keys; round
// tripping a marshaled struct through a generic interface{} gives the same
// guarantee for nested struct fields without hand-rolling a canonical JSON
// walker. The intermediate decode uses UseNumber so integers beyond
// float64's exact range and floats with significant trailing zeros (e.g.
// a Float option value with decimals=2) survive the round trip as the
// same literal, rather than collapsing through float64.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cas: marshal record: %w", err)
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("cas: canonicalize record: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("cas: marshal canonical record: %w", err)
	}
	return canonical, nil
}

// Hash computes the Multihash of a record's canonical serialization.
func Hash(record any) (Multihash, []byte, error) {
	canonical, err := Canonicalize(record)
	if err != nil {
		return "", nil, err
	}
	sum, err := mh.Sum(canonical, mh.SHA2_256, -1)
	if err != nil {
		return "", nil, fmt.Errorf("cas: compute multihash: %w", err)
	}
	id := cid.NewCidV1(cid.Raw, sum)
	return Multihash(id.String()), canonical, nil
}

// ParseMultihash validates that s is a well-formed Multihash string.
func ParseMultihash(s string) (Multihash, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a valid multihash: %v", hmerrors.ErrInvalidInput, s, err)
	}
	return Multihash(id.String()), nil
}

// Equal reports whether two canonical JSON encodings are byte-identical,
// the comparison behind the CAS round-trip invariant (spec.md 8:
// "get(put(x)) == x modulo elided underscore-prefixed fields").
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}
