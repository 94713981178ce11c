// Package oracle defines the external list-oracle interfaces spec.md 4.3/6
// calls SIL and LAL: opaque, externally maintained value lists that gate
// permitted option values for Address-typed issues. The concrete oracle
// (a block-explorer client, a wallet derivation service) is explicitly out
// of scope per spec.md 1; this package only defines the boundary Option
// validation calls through, in the style of the teacher's small leaf
// interfaces (native/common.Store, native/common.PauseView).
package oracle

// SILEntry is one tuple returned by an SIL oracle: the permitted value
// followed by oracle-specific metadata the engine does not interpret.
type SILEntry struct {
	Value string
	Meta  []string
}

// LALEntry is one tuple returned by an LAL oracle: oracle-specific leading
// metadata, then the permitted value, then trailing metadata.
type LALEntry struct {
	Lead  string
	Value string
	Meta  []string
}

// SIL resolves a Signed Influence List: the list of values an address is
// permitted to select for an Address-typed answer with a SIL constraint.
// An absent block height defaults to 0 (latest), per spec.md 6.
type SIL interface {
	SIL(address string, blockHeight uint64) ([]SILEntry, error)
}

// LAL resolves a Linked Account List, gated by an extended public key in
// addition to the constraint's address.
type LAL interface {
	LAL(address, xpub string, blockHeight uint64) ([]LALEntry, error)
}

// SILFunc adapts a plain function to the SIL interface.
type SILFunc func(address string, blockHeight uint64) ([]SILEntry, error)

func (f SILFunc) SIL(address string, blockHeight uint64) ([]SILEntry, error) {
	return f(address, blockHeight)
}

// LALFunc adapts a plain function to the LAL interface.
type LALFunc func(address, xpub string, blockHeight uint64) ([]LALEntry, error)

func (f LALFunc) LAL(address, xpub string, blockHeight uint64) ([]LALEntry, error) {
	return f(address, xpub, blockHeight)
}
