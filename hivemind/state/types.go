package state

import (
	"log/slog"
	"time"

	"hivemind/crypto"
	"hivemind/hivemind/cas"
	"hivemind/hivemind/issue"
	"hivemind/hivemind/option"
	"hivemind/native/events"
)

// Result is the per-option pairwise tally of spec.md 3/4.8.
type Result struct {
	Win     float64 `json:"win"`
	Loss    float64 `json:"loss"`
	Unknown float64 `json:"unknown"`
	Score   float64 `json:"score"`
}

// Supporter is one entry of spec.md 3's `supporters`: an address that
// signed to endorse an option.
type Supporter struct {
	OptionHash cas.Multihash `json:"option_hash"`
	Address    string        `json:"address"`
	Signature  []byte        `json:"signature"`
}

// OpinionRecord is the per-opinionator entry of spec.md 3's `opinions[q]`.
type OpinionRecord struct {
	OpinionHash cas.Multihash `json:"opinion_hash"`
	Signature   []byte        `json:"signature"`
	Timestamp   int64         `json:"timestamp"`
}

// QuestionSelection is one question's winning option within a Selection.
type QuestionSelection struct {
	OptionHash cas.Multihash `json:"option_hash"`
	Value      any           `json:"value"`
}

// Selection is one entry of spec.md 3's `selected`: the per-question
// winning values recorded by SelectConsensus. Alongside the value itself
// we keep the option hash that produced it, since an Exclude-lifecycle
// Issue needs it to shrink the available option set on the next
// CalculateResults (spec.md 4.8/4.10) — see DESIGN.md's Open Question
// decision on this point.
type Selection struct {
	Questions []QuestionSelection `json:"questions"`
}

// ConsensusResult pairs a winning option's hash with its resolved value,
// returned by Consensus and RankedConsensus.
type ConsensusResult struct {
	OptionHash cas.Multihash `json:"option_hash"`
	Value      any           `json:"value"`
}

// WeightSource resolves a default opinion weight for an address when
// AddOpinion is not given an explicit override. Supplemental to spec.md
// 4.8 ("default 1.0, caller-supplied value overrides") — see SPEC_FULL.md
// 5's note on the original's token-weighted voting.
type WeightSource interface {
	Weight(address string) (float64, bool)
}

// Deps bundles State's external collaborators, mirroring option.Deps'
// shape. New needs Store (Load falls back to its own store argument); every
// other field is optional and falls back to a default.
type Deps struct {
	Store        cas.Store
	IssueCache   *issue.Cache
	Signer       crypto.Signer
	Emitter      events.Emitter
	OptionDeps   option.Deps
	WeightSource WeightSource
	Now          func() time.Time
	Logger       *slog.Logger
}
