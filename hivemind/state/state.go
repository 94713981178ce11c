// Package state implements the Hivemind State aggregate: the mutable,
// hash-chained tally of options, supporters, opinions, and selections for
// one Issue. The design mirrors the teacher's native/governance Engine —
// an injectable clock and emitter, Set* configuration methods, and
// synchronous single-writer mutators that validate, mutate, then emit.
package state

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"hivemind/crypto"
	"hivemind/hivemind/cas"
	hmerrors "hivemind/hivemind/errors"
	"hivemind/hivemind/issue"
	"hivemind/hivemind/option"
	"hivemind/hivemind/opinion"
	"hivemind/native/events"
	"hivemind/observability/logging"
	"hivemind/observability/metrics"
)

// State is the persisted, hash-linked snapshot described by spec.md 3.
// Exported fields round-trip through the CAS; the unexported fields are
// runtime collaborators rehydrated by Load/New and never serialized.
type State struct {
	HivemindIssueHash cas.Multihash            `json:"hivemind_issue_hash"`
	Previous          cas.Multihash            `json:"previous,omitempty"`
	Options           []cas.Multihash          `json:"options"`
	Supporters        []Supporter              `json:"supporters"`
	Opinions          []map[string]OpinionRecord `json:"opinions"`
	Weights           map[string]float64       `json:"weights"`
	Results           []map[cas.Multihash]*Result `json:"results"`
	Contributions     []map[string]float64     `json:"contributions"`
	Selected          []Selection              `json:"selected"`
	Final             bool                     `json:"final"`

	iss          *issue.Issue
	store        cas.Store
	issueCache   *issue.Cache
	signer       crypto.Signer
	emitter      events.Emitter
	nowFn        func() time.Time
	optionDeps   option.Deps
	weightSource WeightSource
	logger       *slog.Logger
	optionCache  map[cas.Multihash]*option.Option
	opinionCache map[cas.Multihash]*opinion.Opinion
}

// New creates a genesis State for iss, persisted at issueHash.
func New(iss *issue.Issue, issueHash cas.Multihash, deps Deps) (*State, error) {
	if iss == nil {
		return nil, fmt.Errorf("%w: state requires an issue", hmerrors.ErrInvalidInput)
	}
	n := len(iss.Questions)
	s := &State{
		HivemindIssueHash: issueHash,
		Options:           []cas.Multihash{},
		Supporters:        []Supporter{},
		Opinions:          make([]map[string]OpinionRecord, n),
		Weights:           make(map[string]float64),
		Results:           make([]map[cas.Multihash]*Result, n),
		Contributions:     make([]map[string]float64, n),
		Selected:          []Selection{},
	}
	for q := 0; q < n; q++ {
		s.Opinions[q] = make(map[string]OpinionRecord)
		s.Results[q] = make(map[cas.Multihash]*Result)
		s.Contributions[q] = make(map[string]float64)
	}
	s.applyDeps(iss, deps)
	return s, nil
}

// Load fetches the State snapshot at hash and rehydrates its runtime
// collaborators using deps. deps.IssueCache must be set so the Issue the
// snapshot references can be resolved.
func Load(store cas.Store, hash cas.Multihash, deps Deps) (*State, error) {
	var s State
	if err := store.Get(hash, &s); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		deps.Store = store
	}
	if deps.IssueCache == nil {
		if deps.Store == nil {
			return nil, fmt.Errorf("%w: state load requires an issue cache or store", hmerrors.ErrInvalidInput)
		}
		deps.IssueCache = issue.NewCache(deps.Store)
	}
	iss, err := deps.IssueCache.Load(s.HivemindIssueHash)
	if err != nil {
		return nil, err
	}
	s.applyDeps(iss, deps)
	return &s, nil
}

func (s *State) applyDeps(iss *issue.Issue, deps Deps) {
	s.iss = iss
	s.store = deps.Store
	s.issueCache = deps.IssueCache
	if s.issueCache == nil && s.store != nil {
		s.issueCache = issue.NewCache(s.store)
	}
	s.signer = deps.Signer
	if s.signer == nil {
		s.signer = crypto.NewECDSASigner(crypto.DefaultHRP)
	}
	s.emitter = deps.Emitter
	if s.emitter == nil {
		s.emitter = events.NoopEmitter{}
	}
	s.nowFn = deps.Now
	if s.nowFn == nil {
		s.nowFn = func() time.Time { return time.Now().UTC() }
	}
	s.optionDeps = deps.OptionDeps
	if s.optionDeps.Cache == nil {
		s.optionDeps.Cache = s.issueCache
	}
	s.weightSource = deps.WeightSource
	s.logger = deps.Logger
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.optionCache == nil {
		s.optionCache = make(map[cas.Multihash]*option.Option)
	}
	if s.opinionCache == nil {
		s.opinionCache = make(map[cas.Multihash]*opinion.Opinion)
	}
}

// SetEmitter overrides the event emitter after construction.
func (s *State) SetEmitter(e events.Emitter) {
	if e == nil {
		e = events.NoopEmitter{}
	}
	s.emitter = e
}

// SetNowFunc overrides the clock used for opinion timestamps, for tests.
func (s *State) SetNowFunc(now func() time.Time) {
	if now == nil {
		return
	}
	s.nowFn = now
}

// SetLogger overrides the logger used for the debug lines AddOption,
// SupportOption, and AddOpinion emit after mutating.
func (s *State) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	s.logger = l
}

func (s *State) now() time.Time {
	return s.nowFn()
}

func (s *State) emit(e events.Event) {
	s.emitter.Emit(e)
}

// Issue returns the Issue this State tracks.
func (s *State) Issue() *issue.Issue { return s.iss }

// IsFinal reports whether the State has reached a terminal selection.
func (s *State) IsFinal() bool { return s.Final }

// OptionHashes returns a defensive copy of the current option set.
func (s *State) OptionHashes() []cas.Multihash {
	return append([]cas.Multihash(nil), s.Options...)
}

// Weight returns the recorded opinion weight for address, or 0 if unset.
func (s *State) Weight(address string) float64 { return s.Weights[address] }

// AddOption appends a newly-signed option hash to the State, per
// spec.md 4.8. A signature from address over "IPFS=<option_hash>" proves
// the caller controls address; the option itself is validated against
// its Issue's constraints and restrictions. Supplying address/signature
// also registers support for the option, and counts against the Issue's
// options_per_address cap, if any. AddOption is a silent no-op once the
// State is Final.
func (s *State) AddOption(optionHash cas.Multihash, address string, signature []byte) error {
	if s.Final {
		return nil
	}
	if s.hasOption(optionHash) {
		return nil
	}
	restricted := s.iss.Restrictions != nil && (len(s.iss.Restrictions.Addresses) > 0 || s.iss.Restrictions.OptionsPerAddress != nil)
	if address == "" {
		if restricted {
			return fmt.Errorf("%w: this issue requires a signed address to propose options", hmerrors.ErrForbidden)
		}
	} else {
		if !s.signer.Verify(address, crypto.IPFSMessage(string(optionHash)), signature) {
			return fmt.Errorf("%w: option signature does not bind %s to %s", hmerrors.ErrSignatureInvalid, address, optionHash)
		}
		if !s.iss.Restrictions.Allows(address) {
			return fmt.Errorf("%w: %s may not propose options for this issue", hmerrors.ErrForbidden, address)
		}
		if r := s.iss.Restrictions; r != nil && r.OptionsPerAddress != nil && s.supportCount(address) >= *r.OptionsPerAddress {
			return fmt.Errorf("%w: %s has reached its options_per_address cap", hmerrors.ErrForbidden, address)
		}
	}
	opt, err := s.loadOption(optionHash)
	if err != nil {
		return err
	}
	if err := opt.Validate(); err != nil {
		return err
	}
	s.Options = append(s.Options, optionHash)
	metrics.State().RecordOptionAdded(string(s.HivemindIssueHash))
	s.emit(events.OptionAdded{IssueHash: string(s.HivemindIssueHash), OptionHash: string(optionHash), Address: address})
	s.logger.Debug("option added",
		"option_hash", optionHash.String(),
		logging.MaskField("address", address),
		logging.MaskField("signature", hex.EncodeToString(signature)),
	)
	if address != "" {
		s.registerSupport(optionHash, address, signature)
	}
	return nil
}

// SupportOption records address's endorsement of an existing option, per
// spec.md 4.8. A silent no-op once the State is Final.
func (s *State) SupportOption(optionHash cas.Multihash, address string, signature []byte) error {
	if s.Final {
		return nil
	}
	if !s.hasOption(optionHash) {
		return fmt.Errorf("%w: option %s is not part of this state", hmerrors.ErrInvalidInput, optionHash)
	}
	if !s.signer.Verify(address, crypto.IPFSMessage(string(optionHash)), signature) {
		return fmt.Errorf("%w: support signature does not bind %s to %s", hmerrors.ErrSignatureInvalid, address, optionHash)
	}
	s.registerSupport(optionHash, address, signature)
	s.logger.Debug("option supported",
		"option_hash", optionHash.String(),
		logging.MaskField("address", address),
		logging.MaskField("signature", hex.EncodeToString(signature)),
	)
	return nil
}

// registerSupport appends (optionHash, address) to Supporters if not
// already present, emitting OptionSupported on the first registration.
func (s *State) registerSupport(optionHash cas.Multihash, address string, signature []byte) {
	for _, sup := range s.Supporters {
		if sup.OptionHash == optionHash && sup.Address == address {
			return
		}
	}
	s.Supporters = append(s.Supporters, Supporter{
		OptionHash: optionHash,
		Address:    address,
		Signature:  append([]byte(nil), signature...),
	})
	s.emit(events.OptionSupported{OptionHash: string(optionHash), Address: address})
}

// supportCount reports how many distinct options address has registered
// support for, used to enforce the Issue's options_per_address cap.
func (s *State) supportCount(address string) int {
	n := 0
	for _, sup := range s.Supporters {
		if sup.Address == address {
			n++
		}
	}
	return n
}

// AddOpinion records or replaces opinionator's ranking at questionIndex,
// per spec.md 4.8. weight overrides the opinion's default vote weight of
// 1.0 (falling back to the configured WeightSource, if any, when nil); a
// silent no-op once the State is Final.
func (s *State) AddOpinion(opinionHash cas.Multihash, signature []byte, weight *float64, questionIndex int) error {
	if s.Final {
		return nil
	}
	if questionIndex < 0 || questionIndex >= len(s.Opinions) {
		return fmt.Errorf("%w: question_index %d out of range", hmerrors.ErrInvalidInput, questionIndex)
	}
	op, err := s.loadOpinion(opinionHash)
	if err != nil {
		return err
	}
	if !s.signer.Verify(op.Opinionator, crypto.IPFSMessage(string(opinionHash)), signature) {
		return fmt.Errorf("%w: opinion signature does not bind %s to %s", hmerrors.ErrSignatureInvalid, op.Opinionator, opinionHash)
	}
	if op.QuestionIndex != questionIndex {
		return fmt.Errorf("%w: opinion targets question %d, not %d", hmerrors.ErrInvalidInput, op.QuestionIndex, questionIndex)
	}
	if err := op.Validate(s.Options); err != nil {
		return err
	}

	w := 1.0
	if weight != nil {
		w = *weight
	} else if s.weightSource != nil {
		if sw, ok := s.weightSource.Weight(op.Opinionator); ok {
			w = sw
		}
	}

	s.Opinions[questionIndex][op.Opinionator] = OpinionRecord{
		OpinionHash: opinionHash,
		Signature:   append([]byte(nil), signature...),
		Timestamp:   s.now().Unix(),
	}
	s.Weights[op.Opinionator] = w
	metrics.State().RecordOpinionSubmitted(questionIndex)
	s.emit(events.OpinionAdded{Opinionator: op.Opinionator, QuestionIndex: questionIndex, OpinionHash: string(opinionHash)})
	s.logger.Debug("opinion added",
		"question_index", questionIndex,
		logging.MaskField("opinionator", op.Opinionator),
		logging.MaskField("signature", hex.EncodeToString(signature)),
	)
	return nil
}

// Save persists the current snapshot and chains it to whatever snapshot
// this State was last loaded from or saved as, returning the new hash.
func (s *State) Save() (cas.Multihash, error) {
	hash, err := s.store.Put(s)
	if err != nil {
		return "", err
	}
	s.Previous = hash
	return hash, nil
}

func (s *State) hasOption(h cas.Multihash) bool {
	for _, o := range s.Options {
		if o == h {
			return true
		}
	}
	return false
}

func (s *State) loadOption(h cas.Multihash) (*option.Option, error) {
	if opt, ok := s.optionCache[h]; ok {
		return opt, nil
	}
	opt, err := option.Load(s.store, s.issueCache, h, s.optionDeps)
	if err != nil {
		return nil, err
	}
	s.optionCache[h] = opt
	return opt, nil
}

func (s *State) loadOpinion(h cas.Multihash) (*opinion.Opinion, error) {
	if op, ok := s.opinionCache[h]; ok {
		return op, nil
	}
	op, err := opinion.Load(s.store, h)
	if err != nil {
		return nil, err
	}
	s.opinionCache[h] = op
	return op, nil
}

func (s *State) allRankedOptions() ([]opinion.RankedOption, error) {
	out := make([]opinion.RankedOption, 0, len(s.Options))
	for _, h := range s.Options {
		opt, err := s.loadOption(h)
		if err != nil {
			return nil, err
		}
		out = append(out, opinion.RankedOption{Hash: h, Opt: opt})
	}
	return out, nil
}
