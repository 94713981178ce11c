// Package taghash computes a deterministic hash of an unordered, duplicate
// insensitive set of tag strings, used to derive Issue.hivemind_id
// (spec.md 4.4). There is no teacher analogue for this exact algorithm; the
// hashing primitive itself (Keccak256) is grounded on the teacher's
// core/state/manager.go convention of hashing composite keys with
// ethcrypto.Keccak256([]byte(...)).
package taghash

import (
	"encoding/hex"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// TagHash accumulates tags and produces a deterministic digest of the set
// they form. Insertion order and duplicate insertions do not affect the
// result.
type TagHash struct {
	tags map[string]struct{}
}

// New starts a TagHash seeded with an initial tag.
func New(initialTag string) *TagHash {
	th := &TagHash{tags: make(map[string]struct{})}
	th.Add(initialTag)
	return th
}

// Add inserts a tag into the set. Re-adding an existing tag is a no-op.
func (th *TagHash) Add(tag string) *TagHash {
	th.tags[tag] = struct{}{}
	return th
}

// Get returns the deterministic hex-encoded hash of the accumulated tag set.
func (th *TagHash) Get() string {
	sorted := make([]string, 0, len(th.tags))
	for tag := range th.tags {
		sorted = append(sorted, tag)
	}
	sort.Strings(sorted)
	digest := ethcrypto.Keccak256([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(digest)
}
