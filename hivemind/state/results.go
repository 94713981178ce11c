package state

import (
	"fmt"
	"math"
	"sort"

	"hivemind/hivemind/cas"
	hmerrors "hivemind/hivemind/errors"
	"hivemind/hivemind/issue"
	"hivemind/hivemind/opinion"
	"hivemind/native/events"
	"hivemind/observability/metrics"
)

// CalculateResults recomputes the pairwise win/loss/unknown tally and the
// contribution weights for question q, per spec.md 4.8/4.9. Every pair of
// available options is compared once per opinion: an opinion that ranks
// both options decides a winner; an opinion that ranks neither leaves the
// pair Unknown for that opinion's weight.
func (s *State) CalculateResults(q int) error {
	if q < 0 || q >= len(s.Results) {
		return fmt.Errorf("%w: question_index %d out of range", hmerrors.ErrInvalidInput, q)
	}
	s.Results[q] = make(map[cas.Multihash]*Result, len(s.Options))
	for _, h := range s.Options {
		s.Results[q][h] = &Result{}
	}

	avail := s.availableOptions(q)
	allRanked, err := s.allRankedOptions()
	if err != nil {
		return err
	}

	type loadedOpinion struct {
		address string
		weight  float64
		ranking []cas.Multihash
	}
	loaded := make([]loadedOpinion, 0, len(s.Opinions[q]))
	for addr, rec := range s.Opinions[q] {
		w := s.Weights[addr]
		if w <= 0 {
			continue
		}
		op, err := s.loadOpinion(rec.OpinionHash)
		if err != nil {
			return err
		}
		ranking, err := op.Ranking(allRanked)
		if err != nil {
			return err
		}
		loaded = append(loaded, loadedOpinion{address: addr, weight: w, ranking: ranking})
	}

	for i := 0; i < len(avail); i++ {
		for j := i + 1; j < len(avail); j++ {
			a, b := avail[i], avail[j]
			for _, lo := range loaded {
				winner, decided := compare(a, b, lo.ranking)
				if !decided {
					s.Results[q][a].Unknown += lo.weight
					s.Results[q][b].Unknown += lo.weight
					continue
				}
				loser := a
				if winner == a {
					loser = b
				}
				s.Results[q][winner].Win += lo.weight
				s.Results[q][loser].Loss += lo.weight
			}
		}
	}

	for _, h := range s.Options {
		r := s.Results[q][h]
		if denom := r.Win + r.Loss + r.Unknown; denom > 0 {
			r.Score = r.Win / denom
		}
	}

	if err := s.computeContributions(q, avail, allRanked); err != nil {
		return err
	}
	metrics.State().RecordResultsCalculated(q)
	s.emit(events.ResultsCalculated{QuestionIndex: q, OptionCount: len(avail)})
	return nil
}

// compare decides which of a, b a voter's effective ranking prefers: the
// option appearing earlier in ranking wins. If only one of the pair
// appears in ranking, that option wins by default. If neither appears,
// the comparison is undecided (spec.md 4.8's "Unknown").
func compare(a, b cas.Multihash, ranking []cas.Multihash) (winner cas.Multihash, decided bool) {
	idxA, idxB := indexOfPos(ranking, a), indexOfPos(ranking, b)
	switch {
	case idxA >= 0 && idxB >= 0:
		if idxA < idxB {
			return a, true
		}
		return b, true
	case idxA >= 0:
		return a, true
	case idxB >= 0:
		return b, true
	default:
		return "", false
	}
}

func indexOfPos(ranking []cas.Multihash, h cas.Multihash) int {
	for i, v := range ranking {
		if v == h {
			return i
		}
	}
	return -1
}

// availableOptions returns the option set CalculateResults/Consensus should
// consider for question q: the full option set, unless the Issue's
// on_selection is Exclude, in which case options already selected for q in
// a prior SelectConsensus are removed (spec.md 4.8/4.10).
func (s *State) availableOptions(q int) []cas.Multihash {
	if s.iss.OnSelection != issue.OnSelectionExclude {
		return append([]cas.Multihash(nil), s.Options...)
	}
	excluded := make(map[cas.Multihash]struct{})
	for _, sel := range s.Selected {
		if q < len(sel.Questions) {
			excluded[sel.Questions[q].OptionHash] = struct{}{}
		}
	}
	avail := make([]cas.Multihash, 0, len(s.Options))
	for _, h := range s.Options {
		if _, excludedHash := excluded[h]; !excludedHash {
			avail = append(avail, h)
		}
	}
	return avail
}

type scoredOption struct {
	hash  cas.Multihash
	score float64
}

// rankedAvailable sorts avail by descending Score, stable on insertion
// order so tied scores keep the order options were added in.
func (s *State) rankedAvailable(q int, avail []cas.Multihash) []scoredOption {
	out := make([]scoredOption, 0, len(avail))
	for _, h := range avail {
		score := 0.0
		if r, ok := s.Results[q][h]; ok {
			score = r.Score
		}
		out = append(out, scoredOption{hash: h, score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].score > out[j].score
	})
	return out
}

// Consensus returns question q's single winning option, per spec.md
// 4.8/8: nil when there are no available options, or when the top two
// scores tie (no consensus).
func (s *State) Consensus(q int) (*ConsensusResult, error) {
	avail := s.availableOptions(q)
	if len(avail) == 0 {
		return nil, nil
	}
	ranked := s.rankedAvailable(q, avail)
	if len(ranked) > 1 && ranked[0].score == ranked[1].score {
		return nil, nil
	}
	opt, err := s.loadOption(ranked[0].hash)
	if err != nil {
		return nil, err
	}
	return &ConsensusResult{OptionHash: ranked[0].hash, Value: opt.Value}, nil
}

// RankedConsensus returns every available option for question q ordered by
// descending Score, per spec.md 4.8 (ConsensusType Ranked).
func (s *State) RankedConsensus(q int) ([]ConsensusResult, error) {
	avail := s.availableOptions(q)
	ranked := s.rankedAvailable(q, avail)
	out := make([]ConsensusResult, 0, len(ranked))
	for _, r := range ranked {
		opt, err := s.loadOption(r.hash)
		if err != nil {
			return nil, err
		}
		out = append(out, ConsensusResult{OptionHash: r.hash, Value: opt.Value})
	}
	return out, nil
}

// GetConsensus dispatches to Consensus or RankedConsensus per the Issue's
// consensus_type, per spec.md 4.8.
func (s *State) GetConsensus(q int) (any, error) {
	switch s.iss.ConsensusType {
	case issue.ConsensusSingle:
		return s.Consensus(q)
	case issue.ConsensusRanked:
		return s.RankedConsensus(q)
	default:
		return nil, fmt.Errorf("%w: consensus_type %q", hmerrors.ErrUnimplemented, s.iss.ConsensusType)
	}
}

// SelectConsensus resolves every question's Consensus, records the result
// as a new Selection, applies the Issue's on_selection lifecycle effect,
// persists the resulting snapshot, and returns the Selection. Only defined
// for ConsensusType Single (spec.md 4.8); returns nil, nil otherwise.
//
// Once the State is Final, SelectConsensus is a silent no-op: it records no
// Selection, saves no snapshot, and returns nil, nil.
func (s *State) SelectConsensus() (*Selection, error) {
	if s.Final {
		return nil, nil
	}
	if s.iss.ConsensusType != issue.ConsensusSingle {
		return nil, nil
	}
	sel := Selection{Questions: make([]QuestionSelection, len(s.iss.Questions))}
	for q := range s.iss.Questions {
		cr, err := s.Consensus(q)
		if err != nil {
			return nil, err
		}
		if cr == nil {
			return nil, fmt.Errorf("%w: question %d has no consensus to select", hmerrors.ErrInvalidInput, q)
		}
		sel.Questions[q] = QuestionSelection{OptionHash: cr.OptionHash, Value: cr.Value}
	}
	s.Selected = append(s.Selected, sel)

	switch s.iss.OnSelection {
	case issue.OnSelectionFinalize:
		s.Final = true
	case issue.OnSelectionExclude:
		// availableOptions already consults s.Selected; nothing further to do.
	case issue.OnSelectionReset:
		for q := range s.Opinions {
			s.Opinions[q] = make(map[string]OpinionRecord)
		}
	case issue.OnSelectionNone:
	default:
		return nil, fmt.Errorf("%w: on_selection %q", hmerrors.ErrUnimplemented, s.iss.OnSelection)
	}

	metrics.State().RecordSelection(string(s.iss.OnSelection))
	s.emit(events.ConsensusSelected{OnSelection: string(s.iss.OnSelection), Final: s.Final})
	if _, err := s.Save(); err != nil {
		return nil, err
	}
	return &sel, nil
}

// computeContributions implements spec.md 4.9's per-opinionator
// contribution weight: an early-bird multiplier (earlier submissions among
// n voters score higher) combined with a deviance-based agreement score
// (opinions whose effective ranking diverges less from the final ranked
// order of available options score higher), each voter sorted by
// (timestamp, address) to make the early-bird ordering deterministic.
func (s *State) computeContributions(q int, avail []cas.Multihash, allRanked []opinion.RankedOption) error {
	rankedOptions := append([]cas.Multihash(nil), avail...)
	sort.SliceStable(rankedOptions, func(i, j int) bool {
		return s.Results[q][rankedOptions[i]].Score > s.Results[q][rankedOptions[j]].Score
	})

	type voterInfo struct {
		address string
		rec     OpinionRecord
	}
	voters := make([]voterInfo, 0, len(s.Opinions[q]))
	for addr, rec := range s.Opinions[q] {
		if s.Weights[addr] <= 0 {
			continue
		}
		voters = append(voters, voterInfo{address: addr, rec: rec})
	}
	sort.SliceStable(voters, func(i, j int) bool {
		if voters[i].rec.Timestamp != voters[j].rec.Timestamp {
			return voters[i].rec.Timestamp < voters[j].rec.Timestamp
		}
		// Open question (spec.md 9): tie-break by ascending address
		// lexicographic order for determinism.
		return voters[i].address < voters[j].address
	})

	n := len(voters)
	contributions := make(map[string]float64, n)
	if n == 0 {
		s.Contributions[q] = contributions
		return nil
	}

	earlyBird := make([]float64, n)
	deviance := make([]float64, n)
	for i, v := range voters {
		op, err := s.loadOpinion(v.rec.OpinionHash)
		if err != nil {
			return err
		}
		ranking, err := op.Ranking(allRanked)
		if err != nil {
			return err
		}
		if len(op.RankedChoice) > 0 {
			earlyBird[i] = 1 - float64(i)/float64(n)
		}
		var d float64
		for j, optHash := range rankedOptions {
			if pos := indexOfPos(ranking, optHash); pos >= 0 {
				d += math.Abs(float64(j - pos))
			} else {
				d += float64(len(rankedOptions) - j)
			}
		}
		deviance[i] = d
	}

	var total float64
	for _, d := range deviance {
		total += d
	}
	for i, v := range voters {
		if total > 0 {
			contributions[v.address] = (1 - deviance[i]/total) * earlyBird[i]
		} else {
			contributions[v.address] = earlyBird[i]
		}
	}
	s.Contributions[q] = contributions
	return nil
}
