package state

import (
	"testing"

	"hivemind/crypto"
	"hivemind/hivemind/cas"
	hmerrors "hivemind/hivemind/errors"
	"hivemind/hivemind/issue"
	"hivemind/hivemind/opinion"
	"hivemind/hivemind/option"
)

type actor struct {
	key  *crypto.PrivateKey
	addr string
}

func newActor(t *testing.T) actor {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address(crypto.DefaultHRP).String()
	return actor{key: key, addr: addr}
}

func (a actor) sign(t *testing.T, msg string) []byte {
	t.Helper()
	sig, err := crypto.Sign(a.key, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func newTestState(t *testing.T, at issue.AnswerType, ct issue.ConsensusType, on issue.OnSelection) (*State, *issue.Issue, cas.Store) {
	t.Helper()
	store := cas.NewMemory()
	iss := &issue.Issue{
		Questions:     []string{"pick one"},
		AnswerType:    at,
		ConsensusType: ct,
		OnSelection:   on,
	}
	issueHash, err := iss.Save(store)
	if err != nil {
		t.Fatalf("save issue: %v", err)
	}
	s, err := New(iss, issueHash, Deps{Store: store, IssueCache: issue.NewCache(store)})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	return s, iss, store
}

func addTestOption(t *testing.T, s *State, store cas.Store, iss *issue.Issue, issueHash cas.Multihash, value any, proposer actor) cas.Multihash {
	t.Helper()
	opt, err := option.New(iss, issueHash, value, option.Deps{})
	if err != nil {
		t.Fatalf("new option: %v", err)
	}
	optHash, err := opt.Save(store)
	if err != nil {
		t.Fatalf("save option: %v", err)
	}
	sig := proposer.sign(t, crypto.IPFSMessage(string(optHash)))
	if err := s.AddOption(optHash, proposer.addr, sig); err != nil {
		t.Fatalf("add option: %v", err)
	}
	return optHash
}

func addTestOpinion(t *testing.T, s *State, store cas.Store, voter actor, rankedChoice []cas.Multihash, auto *opinion.AutoComplete) {
	t.Helper()
	op, err := opinion.New(voter.addr, "", 0, rankedChoice, auto, s.OptionHashes())
	if err != nil {
		t.Fatalf("new opinion: %v", err)
	}
	opHash, err := op.Save(store)
	if err != nil {
		t.Fatalf("save opinion: %v", err)
	}
	sig := voter.sign(t, crypto.IPFSMessage(string(opHash)))
	if err := s.AddOpinion(opHash, sig, nil, 0); err != nil {
		t.Fatalf("add opinion: %v", err)
	}
}

// TestBasicSingleConsensus covers spec.md 8's scenario 1: an option ranked
// first by every opinion wins outright.
func TestBasicSingleConsensus(t *testing.T) {
	s, iss, store := newTestState(t, issue.AnswerString, issue.ConsensusSingle, issue.OnSelectionNone)
	proposer := newActor(t)
	a := addTestOption(t, s, store, iss, s.HivemindIssueHash, "a", proposer)
	b := addTestOption(t, s, store, iss, s.HivemindIssueHash, "b", proposer)
	c := addTestOption(t, s, store, iss, s.HivemindIssueHash, "c", proposer)

	addTestOpinion(t, s, store, newActor(t), []cas.Multihash{a, b, c}, nil)
	addTestOpinion(t, s, store, newActor(t), []cas.Multihash{a, c, b}, nil)

	if err := s.CalculateResults(0); err != nil {
		t.Fatalf("calculate results: %v", err)
	}
	cr, err := s.Consensus(0)
	if err != nil {
		t.Fatalf("consensus: %v", err)
	}
	if cr == nil || cr.OptionHash != a {
		t.Fatalf("expected option %s to win, got %+v", a, cr)
	}
}

// TestTieReturnsNoConsensus covers spec.md 8's scenario 2: a perfect split
// between two options yields no consensus.
func TestTieReturnsNoConsensus(t *testing.T) {
	s, iss, store := newTestState(t, issue.AnswerString, issue.ConsensusSingle, issue.OnSelectionNone)
	proposer := newActor(t)
	a := addTestOption(t, s, store, iss, s.HivemindIssueHash, "a", proposer)
	b := addTestOption(t, s, store, iss, s.HivemindIssueHash, "b", proposer)

	addTestOpinion(t, s, store, newActor(t), []cas.Multihash{a, b}, nil)
	addTestOpinion(t, s, store, newActor(t), []cas.Multihash{b, a}, nil)

	if err := s.CalculateResults(0); err != nil {
		t.Fatalf("calculate results: %v", err)
	}
	cr, err := s.Consensus(0)
	if err != nil {
		t.Fatalf("consensus: %v", err)
	}
	if cr != nil {
		t.Fatalf("expected a tie to yield no consensus, got %+v", cr)
	}
}

// TestFinalizeFreezesState covers spec.md 8's scenario 3: on_selection
// Finalize locks the State after SelectConsensus.
func TestFinalizeFreezesState(t *testing.T) {
	s, iss, store := newTestState(t, issue.AnswerString, issue.ConsensusSingle, issue.OnSelectionFinalize)
	proposer := newActor(t)
	a := addTestOption(t, s, store, iss, s.HivemindIssueHash, "a", proposer)
	addTestOpinion(t, s, store, newActor(t), []cas.Multihash{a}, nil)

	if err := s.CalculateResults(0); err != nil {
		t.Fatalf("calculate results: %v", err)
	}
	if _, err := s.SelectConsensus(); err != nil {
		t.Fatalf("select consensus: %v", err)
	}
	if !s.IsFinal() {
		t.Fatalf("expected state to be final after a Finalize selection")
	}

	b := addTestOption(t, s, store, iss, s.HivemindIssueHash, "b", proposer)
	for _, h := range s.OptionHashes() {
		if h == b {
			t.Fatalf("expected AddOption to no-op once the state is final")
		}
	}
}

// TestExcludeShrinksAvailableOptions covers spec.md 8's scenario 4:
// on_selection Exclude removes a selected option from the set considered
// by the next round.
func TestExcludeShrinksAvailableOptions(t *testing.T) {
	s, iss, store := newTestState(t, issue.AnswerString, issue.ConsensusSingle, issue.OnSelectionExclude)
	proposer := newActor(t)
	a := addTestOption(t, s, store, iss, s.HivemindIssueHash, "a", proposer)
	b := addTestOption(t, s, store, iss, s.HivemindIssueHash, "b", proposer)

	addTestOpinion(t, s, store, newActor(t), []cas.Multihash{a, b}, nil)

	if err := s.CalculateResults(0); err != nil {
		t.Fatalf("calculate results: %v", err)
	}
	sel, err := s.SelectConsensus()
	if err != nil {
		t.Fatalf("select consensus: %v", err)
	}
	if sel.Questions[0].OptionHash != a {
		t.Fatalf("expected a to win the first round, got %s", sel.Questions[0].OptionHash)
	}

	avail := s.availableOptions(0)
	if len(avail) != 1 || avail[0] != b {
		t.Fatalf("expected only b to remain available, got %v", avail)
	}
}

// TestResetClearsOpinions covers spec.md 8's scenario 5: on_selection Reset
// empties the question's opinion set after a selection.
func TestResetClearsOpinions(t *testing.T) {
	s, iss, store := newTestState(t, issue.AnswerString, issue.ConsensusSingle, issue.OnSelectionReset)
	proposer := newActor(t)
	a := addTestOption(t, s, store, iss, s.HivemindIssueHash, "a", proposer)
	addTestOpinion(t, s, store, newActor(t), []cas.Multihash{a}, nil)

	if err := s.CalculateResults(0); err != nil {
		t.Fatalf("calculate results: %v", err)
	}
	if _, err := s.SelectConsensus(); err != nil {
		t.Fatalf("select consensus: %v", err)
	}
	if len(s.Opinions[0]) != 0 {
		t.Fatalf("expected opinions to be cleared after a Reset selection, got %d", len(s.Opinions[0]))
	}
}

// TestAutoCompleteMaxExpandsRanking covers spec.md 8's scenario 6: a
// numeric opinion with a single pick and auto_complete Max ranks every
// option at or below the pick, closest first.
func TestAutoCompleteMaxExpandsRanking(t *testing.T) {
	s, iss, store := newTestState(t, issue.AnswerInteger, issue.ConsensusRanked, issue.OnSelectionNone)
	proposer := newActor(t)
	var hashes []cas.Multihash
	for _, v := range []int{1, 2, 3, 4, 5} {
		hashes = append(hashes, addTestOption(t, s, store, iss, s.HivemindIssueHash, v, proposer))
	}

	auto := opinion.AutoCompleteMax
	addTestOpinion(t, s, store, newActor(t), []cas.Multihash{hashes[2]}, &auto)

	if err := s.CalculateResults(0); err != nil {
		t.Fatalf("calculate results: %v", err)
	}
	ranked, err := s.RankedConsensus(0)
	if err != nil {
		t.Fatalf("ranked consensus: %v", err)
	}
	if len(ranked) == 0 || ranked[0].OptionHash != hashes[2] {
		t.Fatalf("expected the picked option (3) to rank first, got %+v", ranked)
	}
}

// TestRestrictionEnforcement covers spec.md 8's scenario 7: an Issue that
// restricts proposers rejects options from addresses outside the allow
// list.
func TestRestrictionEnforcement(t *testing.T) {
	store := cas.NewMemory()
	allowed := newActor(t)
	disallowed := newActor(t)
	iss := &issue.Issue{
		Questions:     []string{"pick one"},
		AnswerType:    issue.AnswerString,
		ConsensusType: issue.ConsensusSingle,
		Restrictions:  &issue.Restrictions{Addresses: []string{allowed.addr}},
	}
	issueHash, err := iss.Save(store)
	if err != nil {
		t.Fatalf("save issue: %v", err)
	}
	s, err := New(iss, issueHash, Deps{Store: store, IssueCache: issue.NewCache(store)})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	opt, err := option.New(iss, issueHash, "a", option.Deps{})
	if err != nil {
		t.Fatalf("new option: %v", err)
	}
	optHash, err := opt.Save(store)
	if err != nil {
		t.Fatalf("save option: %v", err)
	}
	sig := disallowed.sign(t, crypto.IPFSMessage(string(optHash)))
	err = s.AddOption(optHash, disallowed.addr, sig)
	if !hmerrors.Is(err, hmerrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a disallowed proposer, got %v", err)
	}
}

// TestAddOptionRejectsAnonymousOnRestrictedIssue guards against a
// restriction bypass: an Issue that restricts proposers must reject an
// anonymous AddOption call outright, not silently accept it for lack of an
// address to check against the allow-list.
func TestAddOptionRejectsAnonymousOnRestrictedIssue(t *testing.T) {
	store := cas.NewMemory()
	allowed := newActor(t)
	iss := &issue.Issue{
		Questions:     []string{"pick one"},
		AnswerType:    issue.AnswerString,
		ConsensusType: issue.ConsensusSingle,
		Restrictions:  &issue.Restrictions{Addresses: []string{allowed.addr}},
	}
	issueHash, err := iss.Save(store)
	if err != nil {
		t.Fatalf("save issue: %v", err)
	}
	s, err := New(iss, issueHash, Deps{Store: store, IssueCache: issue.NewCache(store)})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	opt, err := option.New(iss, issueHash, "a", option.Deps{})
	if err != nil {
		t.Fatalf("new option: %v", err)
	}
	optHash, err := opt.Save(store)
	if err != nil {
		t.Fatalf("save option: %v", err)
	}
	err = s.AddOption(optHash, "", nil)
	if !hmerrors.Is(err, hmerrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for an anonymous proposal on a restricted issue, got %v", err)
	}
	if len(s.Options) != 0 {
		t.Fatalf("expected the anonymous option to be rejected, not appended")
	}
}

// TestSignatureBinding covers spec.md 8's scenario 8: a signature that does
// not recover to the claimed address is rejected.
func TestSignatureBinding(t *testing.T) {
	s, iss, store := newTestState(t, issue.AnswerString, issue.ConsensusSingle, issue.OnSelectionNone)
	claimed := newActor(t)
	actual := newActor(t)

	opt, err := option.New(iss, s.HivemindIssueHash, "a", option.Deps{})
	if err != nil {
		t.Fatalf("new option: %v", err)
	}
	optHash, err := opt.Save(store)
	if err != nil {
		t.Fatalf("save option: %v", err)
	}
	sig := actual.sign(t, crypto.IPFSMessage(string(optHash)))
	err = s.AddOption(optHash, claimed.addr, sig)
	if !hmerrors.Is(err, hmerrors.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for a mismatched signer, got %v", err)
	}
}

// TestAddOptionIsIdempotent checks that re-adding an already-present option
// hash is a silent no-op rather than a duplicate entry.
func TestAddOptionIsIdempotent(t *testing.T) {
	s, iss, store := newTestState(t, issue.AnswerString, issue.ConsensusSingle, issue.OnSelectionNone)
	proposer := newActor(t)
	a := addTestOption(t, s, store, iss, s.HivemindIssueHash, "a", proposer)

	sig := proposer.sign(t, crypto.IPFSMessage(string(a)))
	if err := s.AddOption(a, proposer.addr, sig); err != nil {
		t.Fatalf("unexpected error re-adding an existing option: %v", err)
	}
	if len(s.Options) != 1 {
		t.Fatalf("expected the option set to remain deduplicated, got %d entries", len(s.Options))
	}
}

// TestOptionsPerAddressCap covers spec.md 4.8's options_per_address limit:
// once a proposer has as many supported options as the cap allows, further
// proposals from that address are rejected.
func TestOptionsPerAddressCap(t *testing.T) {
	store := cas.NewMemory()
	proposer := newActor(t)
	cap := 1
	iss := &issue.Issue{
		Questions:     []string{"pick one"},
		AnswerType:    issue.AnswerString,
		ConsensusType: issue.ConsensusSingle,
		Restrictions:  &issue.Restrictions{OptionsPerAddress: &cap},
	}
	issueHash, err := iss.Save(store)
	if err != nil {
		t.Fatalf("save issue: %v", err)
	}
	s, err := New(iss, issueHash, Deps{Store: store, IssueCache: issue.NewCache(store)})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	addTestOption(t, s, store, iss, issueHash, "a", proposer)

	opt, err := option.New(iss, issueHash, "b", option.Deps{})
	if err != nil {
		t.Fatalf("new option: %v", err)
	}
	optHash, err := opt.Save(store)
	if err != nil {
		t.Fatalf("save option: %v", err)
	}
	sig := proposer.sign(t, crypto.IPFSMessage(string(optHash)))
	err = s.AddOption(optHash, proposer.addr, sig)
	if !hmerrors.Is(err, hmerrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden once the proposer's options_per_address cap is reached, got %v", err)
	}
}

// TestSaveChainsToPrevious checks that successive Save calls link each
// snapshot to the one before it.
func TestSaveChainsToPrevious(t *testing.T) {
	s, iss, store := newTestState(t, issue.AnswerString, issue.ConsensusSingle, issue.OnSelectionNone)
	proposer := newActor(t)

	first, err := s.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	addTestOption(t, s, store, iss, s.HivemindIssueHash, "a", proposer)
	second, err := s.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if second == first {
		t.Fatalf("expected a mutated state to hash differently on second save")
	}
	if s.Previous != second {
		t.Fatalf("expected Previous to track the most recent save")
	}

	chain, err := WalkChain(store, second, 10, Deps{Store: store, IssueCache: issue.NewCache(store)})
	if err != nil {
		t.Fatalf("walk chain: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected a 2-snapshot chain, got %d", len(chain))
	}
}
