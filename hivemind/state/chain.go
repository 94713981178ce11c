package state

import "hivemind/hivemind/cas"

// WalkChain follows Previous links backward from head, returning up to
// limit snapshots starting with the most recent. A supplemental feature
// beyond spec.md's explicit State operations: the CAS already makes every
// snapshot content-addressed and hash-linked, so walking the chain is a
// cheap way to audit how a State evolved across mutations.
func WalkChain(store cas.Store, head cas.Multihash, limit int, deps Deps) ([]*State, error) {
	if deps.Store == nil {
		deps.Store = store
	}
	chain := make([]*State, 0, limit)
	cur := head
	for i := 0; i < limit && cur != ""; i++ {
		st, err := Load(store, cur, deps)
		if err != nil {
			return chain, err
		}
		chain = append(chain, st)
		cur = st.Previous
	}
	return chain, nil
}
