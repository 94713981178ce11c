// Package opinion implements the Opinion type of spec.md sections 3/4.7:
// an immutable ranked list over option hashes, optionally expanded by an
// auto-complete rule for numeric issues. To avoid the cyclic object graph
// spec.md 9 warns against, Opinion never imports the state package — the
// "hivemind_state pre-bound" requirement of 4.7 is satisfied by passing the
// State's current option set into New/Validate/Ranking as a plain slice,
// not a live reference.
package opinion

import (
	"fmt"
	"sort"

	"hivemind/hivemind/cas"
	hmerrors "hivemind/hivemind/errors"
	"hivemind/hivemind/option"
)

// AutoComplete enumerates the numeric-ranking expansion rules of spec.md 3.
type AutoComplete string

const (
	AutoCompleteNone        AutoComplete = "None"
	AutoCompleteMax         AutoComplete = "Max"
	AutoCompleteMin         AutoComplete = "Min"
	AutoCompleteClosest     AutoComplete = "Closest"
	AutoCompleteClosestHigh AutoComplete = "ClosestHigh"
	AutoCompleteClosestLow  AutoComplete = "ClosestLow"
)

func (a AutoComplete) Valid() bool {
	switch a {
	case AutoCompleteNone, AutoCompleteMax, AutoCompleteMin, AutoCompleteClosest, AutoCompleteClosestHigh, AutoCompleteClosestLow:
		return true
	default:
		return false
	}
}

// Opinion is the immutable ranked list of spec.md 3/4.7.
type Opinion struct {
	Opinionator       string          `json:"opinionator"`
	HivemindStateHash cas.Multihash   `json:"hivemind_state_hash"`
	QuestionIndex     int             `json:"question_index"`
	RankedChoice      []cas.Multihash `json:"ranked_choice"`
	AutoComplete      *AutoComplete   `json:"auto_complete,omitempty"`
}

// New constructs and validates an Opinion. validOptions is the State's
// current option set at the snapshot referenced by stateHash — the
// "hivemind_state pre-bound" dependency of spec.md 4.7, passed by value
// rather than by reference.
func New(opinionator string, stateHash cas.Multihash, questionIndex int, rankedChoice []cas.Multihash, auto *AutoComplete, validOptions []cas.Multihash) (*Opinion, error) {
	if auto != nil && !auto.Valid() {
		return nil, fmt.Errorf("%w: unsupported auto_complete %q", hmerrors.ErrUnimplemented, *auto)
	}
	if err := validateRankedChoice(rankedChoice, validOptions); err != nil {
		return nil, err
	}
	return &Opinion{
		Opinionator:       opinionator,
		HivemindStateHash: stateHash,
		QuestionIndex:     questionIndex,
		RankedChoice:      append([]cas.Multihash(nil), rankedChoice...),
		AutoComplete:      auto,
	}, nil
}

// Validate re-checks the no-duplicates / subset-of-options invariant
// against a (possibly updated) option set.
func (o *Opinion) Validate(validOptions []cas.Multihash) error {
	return validateRankedChoice(o.RankedChoice, validOptions)
}

func validateRankedChoice(rankedChoice []cas.Multihash, validOptions []cas.Multihash) error {
	valid := make(map[cas.Multihash]struct{}, len(validOptions))
	for _, h := range validOptions {
		valid[h] = struct{}{}
	}
	seen := make(map[cas.Multihash]struct{}, len(rankedChoice))
	for _, h := range rankedChoice {
		if _, dup := seen[h]; dup {
			return fmt.Errorf("%w: ranked_choice contains duplicate option %s", hmerrors.ErrInvalidInput, h)
		}
		seen[h] = struct{}{}
		if _, ok := valid[h]; !ok {
			return fmt.Errorf("%w: ranked_choice references option %s not in the state's option set", hmerrors.ErrInvalidInput, h)
		}
	}
	return nil
}

// Save persists the Opinion to store.
func (o *Opinion) Save(store cas.Store) (cas.Multihash, error) {
	return store.Put(o)
}

// Load fetches an Opinion from the store.
func Load(store cas.Store, hash cas.Multihash) (*Opinion, error) {
	var op Opinion
	if err := store.Get(hash, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// RankedOption pairs an option hash with its resolved Option record, the
// shape Ranking needs to expand an auto-complete rule across every option
// currently in the State.
type RankedOption struct {
	Hash cas.Multihash
	Opt  *option.Option
}

// Ranking returns the effective ranked list of spec.md 4.7: for
// non-numeric answer types, or when auto-complete does not apply, this is
// simply RankedChoice. For Integer/Float with exactly one ranked choice and
// an auto_complete rule set, the full ranking is derived by sorting all
// options in the current State numerically per the rule.
func (o *Opinion) Ranking(all []RankedOption) ([]cas.Multihash, error) {
	if len(o.RankedChoice) != 1 || o.AutoComplete == nil || *o.AutoComplete == AutoCompleteNone {
		return append([]cas.Multihash(nil), o.RankedChoice...), nil
	}
	if len(all) == 0 {
		return append([]cas.Multihash(nil), o.RankedChoice...), nil
	}
	if !all[0].Opt.AnswerType.Numeric() {
		return append([]cas.Multihash(nil), o.RankedChoice...), nil
	}

	pick := o.RankedChoice[0]
	pickValue, ok := numericValueOf(all, pick)
	if !ok {
		return nil, fmt.Errorf("%w: auto_complete pick %s is not among the state's options", hmerrors.ErrInvalidInput, pick)
	}

	type scored struct {
		hash  cas.Multihash
		value float64
		diff  float64
	}
	candidates := make([]scored, 0, len(all))
	for _, ro := range all {
		v, err := numericValue(ro.Opt.Value)
		if err != nil {
			return nil, err
		}
		switch *o.AutoComplete {
		case AutoCompleteMax:
			if v > pickValue {
				continue
			}
		case AutoCompleteMin:
			if v < pickValue {
				continue
			}
		}
		diff := v - pickValue
		if diff < 0 {
			diff = -diff
		}
		candidates = append(candidates, scored{hash: ro.Hash, value: v, diff: diff})
	}

	switch *o.AutoComplete {
	case AutoCompleteMax, AutoCompleteMin, AutoCompleteClosest:
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].diff < candidates[j].diff
		})
	case AutoCompleteClosestHigh:
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].diff != candidates[j].diff {
				return candidates[i].diff < candidates[j].diff
			}
			return candidates[i].value > candidates[j].value
		})
	case AutoCompleteClosestLow:
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].diff != candidates[j].diff {
				return candidates[i].diff < candidates[j].diff
			}
			return candidates[i].value < candidates[j].value
		})
	default:
		return nil, fmt.Errorf("%w: auto_complete %q", hmerrors.ErrUnimplemented, *o.AutoComplete)
	}

	ranking := make([]cas.Multihash, 0, len(candidates))
	for _, c := range candidates {
		ranking = append(ranking, c.hash)
	}
	return ranking, nil
}

func numericValueOf(all []RankedOption, hash cas.Multihash) (float64, bool) {
	for _, ro := range all {
		if ro.Hash == hash {
			v, err := numericValue(ro.Opt.Value)
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}

func numericValue(v any) (float64, error) {
	n, ok := v.(interface{ Float64() (float64, error) })
	if !ok {
		return 0, fmt.Errorf("%w: option value is not numeric", hmerrors.ErrInvalidInput)
	}
	return n.Float64()
}
