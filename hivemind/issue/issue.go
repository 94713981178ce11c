// Package issue implements the Issue type of spec.md section 4.5: an
// immutable question specification with constraints and restrictions,
// content-addressed in the store. Struct shape and doc-comment density
// follow the teacher's native/governance/types.go (small, thoroughly
// documented data types with a handful of validating methods).
package issue

import (
	"fmt"
	"sync"

	"hivemind/hivemind/cas"
	hmerrors "hivemind/hivemind/errors"
	"hivemind/hivemind/taghash"
)

// AnswerType enumerates the tagged variant of option values an Issue may
// request (spec.md 3).
type AnswerType string

const (
	AnswerString   AnswerType = "String"
	AnswerBool     AnswerType = "Bool"
	AnswerInteger  AnswerType = "Integer"
	AnswerFloat    AnswerType = "Float"
	AnswerHivemind AnswerType = "Hivemind"
	AnswerImage    AnswerType = "Image"
	AnswerVideo    AnswerType = "Video"
	AnswerComplex  AnswerType = "Complex"
	AnswerAddress  AnswerType = "Address"
)

// Valid reports whether t is one of the enumerated answer types.
func (t AnswerType) Valid() bool {
	switch t {
	case AnswerString, AnswerBool, AnswerInteger, AnswerFloat, AnswerHivemind,
		AnswerImage, AnswerVideo, AnswerComplex, AnswerAddress:
		return true
	default:
		return false
	}
}

// Numeric reports whether t supports numeric auto-complete (spec.md 4.7).
func (t AnswerType) Numeric() bool {
	return t == AnswerInteger || t == AnswerFloat
}

// ConsensusType selects whether getConsensus yields a single value or a
// full ranking.
type ConsensusType string

const (
	ConsensusSingle ConsensusType = "Single"
	ConsensusRanked ConsensusType = "Ranked"
)

func (c ConsensusType) Valid() bool {
	return c == ConsensusSingle || c == ConsensusRanked
}

// OnSelection enumerates the lifecycle side effect selectConsensus applies.
type OnSelection string

const (
	OnSelectionNone     OnSelection = "None"
	OnSelectionFinalize OnSelection = "Finalize"
	OnSelectionExclude  OnSelection = "Exclude"
	OnSelectionReset    OnSelection = "Reset"
)

func (o OnSelection) Valid() bool {
	switch o {
	case OnSelectionNone, OnSelectionFinalize, OnSelectionExclude, OnSelectionReset:
		return true
	default:
		return false
	}
}

// SpecType restricts Complex constraint field types to the three scalar
// answer types spec.md 3 allows for a "specs" entry.
type SpecType string

const (
	SpecString  SpecType = "String"
	SpecInteger SpecType = "Integer"
	SpecFloat   SpecType = "Float"
)

func (s SpecType) Valid() bool {
	switch s {
	case SpecString, SpecInteger, SpecFloat:
		return true
	default:
		return false
	}
}

// Constraints is a closed, enumerated record of the optional checks an
// Option's value must satisfy, per spec.md 3. Constraints are immutable
// once an Issue is stored. Unlike the source's open map, every accepted
// key is a concrete field here — there is no way to "set an unknown key"
// in Go, which gives the "reject unknown keys" requirement for free at
// compile time; Constraints.Validate still checks cross-field invariants that
// can't be expressed in the type alone (e.g. LAL requiring XPub).
type Constraints struct {
	MinLength       *int      `json:"min_length,omitempty"`
	MaxLength       *int      `json:"max_length,omitempty"`
	MinValue        *float64  `json:"min_value,omitempty"`
	MaxValue        *float64  `json:"max_value,omitempty"`
	Decimals        *int      `json:"decimals,omitempty"`
	Regex           *string   `json:"regex,omitempty"`
	Choices         []string  `json:"choices,omitempty"`
	Specs           map[string]SpecType `json:"specs,omitempty"`
	SIL             *string   `json:"SIL,omitempty"`
	LAL             *string   `json:"LAL,omitempty"`
	XPub            *string   `json:"xpub,omitempty"`
	BlockHeight     *uint64   `json:"block_height,omitempty"`
}

// Validate checks the cross-field invariants on Constraints that the type
// system alone cannot express.
func (c *Constraints) Validate() error {
	if c == nil {
		return nil
	}
	if c.MinLength != nil && *c.MinLength < 0 {
		return fmt.Errorf("%w: min_length must be non-negative", hmerrors.ErrInvalidInput)
	}
	if c.MaxLength != nil && c.MinLength != nil && *c.MaxLength < *c.MinLength {
		return fmt.Errorf("%w: max_length must be >= min_length", hmerrors.ErrInvalidInput)
	}
	if c.MaxValue != nil && c.MinValue != nil && *c.MaxValue < *c.MinValue {
		return fmt.Errorf("%w: max_value must be >= min_value", hmerrors.ErrInvalidInput)
	}
	if c.Decimals != nil && *c.Decimals < 0 {
		return fmt.Errorf("%w: decimals must be non-negative", hmerrors.ErrInvalidInput)
	}
	for field, spec := range c.Specs {
		if !spec.Valid() {
			return fmt.Errorf("%w: specs field %q has unsupported type %q", hmerrors.ErrInvalidInput, field, spec)
		}
	}
	if c.LAL != nil && c.XPub == nil {
		return fmt.Errorf("%w: constraints set LAL without xpub", hmerrors.ErrInvalidInput)
	}
	return nil
}

// Restrictions limits which addresses may propose options for an Issue.
type Restrictions struct {
	Addresses         []string `json:"addresses,omitempty"`
	OptionsPerAddress *int     `json:"options_per_address,omitempty"`
}

func (r *Restrictions) Validate() error {
	if r == nil {
		return nil
	}
	if r.OptionsPerAddress != nil && *r.OptionsPerAddress <= 0 {
		return fmt.Errorf("%w: options_per_address must be positive", hmerrors.ErrInvalidInput)
	}
	return nil
}

// Allows reports whether addr may propose options under r.
func (r *Restrictions) Allows(addr string) bool {
	if r == nil || len(r.Addresses) == 0 {
		return true
	}
	for _, a := range r.Addresses {
		if a == addr {
			return true
		}
	}
	return false
}

// Issue is the immutable question specification of spec.md 3/4.5.
type Issue struct {
	HivemindID    string        `json:"hivemind_id"`
	Questions     []string      `json:"questions"`
	Description   string        `json:"description"`
	Tags          []string      `json:"tags,omitempty"`
	AnswerType    AnswerType    `json:"answer_type"`
	ConsensusType ConsensusType `json:"consensus_type"`
	Constraints   *Constraints  `json:"constraints,omitempty"`
	Restrictions  *Restrictions `json:"restrictions,omitempty"`
	OnSelection   OnSelection   `json:"on_selection"`
}

// Validate enforces spec.md 3's Issue invariant: at least one question;
// answer_type and consensus_type from the allowed sets; LAL implies xpub.
func (i *Issue) Validate() error {
	if len(i.Questions) == 0 {
		return fmt.Errorf("%w: issue requires at least one question", hmerrors.ErrInvalidInput)
	}
	for idx, q := range i.Questions {
		if q == "" {
			return fmt.Errorf("%w: question %d is empty", hmerrors.ErrInvalidInput, idx)
		}
	}
	if !i.AnswerType.Valid() {
		return fmt.Errorf("%w: unsupported answer_type %q", hmerrors.ErrInvalidInput, i.AnswerType)
	}
	if !i.ConsensusType.Valid() {
		return fmt.Errorf("%w: unsupported consensus_type %q", hmerrors.ErrInvalidInput, i.ConsensusType)
	}
	if i.OnSelection != "" && !i.OnSelection.Valid() {
		return fmt.Errorf("%w: unsupported on_selection %q", hmerrors.ErrInvalidInput, i.OnSelection)
	}
	if err := i.Constraints.Validate(); err != nil {
		return err
	}
	if err := i.Restrictions.Validate(); err != nil {
		return err
	}
	return nil
}

// PrimaryQuestion returns the first, primary question.
func (i *Issue) PrimaryQuestion() string {
	if len(i.Questions) == 0 {
		return ""
	}
	return i.Questions[0]
}

// Summary renders a short, human-readable description (the primary
// question followed by the answer type in parentheses), grounded on the
// teacher's ProposalStatus.StatusString() pattern
// of small descriptive stringer helpers (native/governance/types.go).
func (i *Issue) Summary() string {
	return fmt.Sprintf("%s (%s)", i.PrimaryQuestion(), i.AnswerType)
}

// deriveID computes the canonical hivemind_id: a tag-hash of the primary
// question, the answer type, and any tags.
func (i *Issue) deriveID() string {
	th := taghash.New(i.PrimaryQuestion()).Add(string(i.AnswerType))
	for _, tag := range i.Tags {
		th.Add(tag)
	}
	return th.Get()
}

// Save validates the Issue, derives its hivemind_id, and persists it.
func (i *Issue) Save(store cas.Store) (cas.Multihash, error) {
	if err := i.Validate(); err != nil {
		return "", err
	}
	i.HivemindID = i.deriveID()
	return store.Put(i)
}

// Load fetches and decodes an Issue from the store.
func Load(store cas.Store, hash cas.Multihash) (*Issue, error) {
	var iss Issue
	if err := store.Get(hash, &iss); err != nil {
		return nil, err
	}
	return &iss, nil
}

// Cache memoizes Issues by hash so that Option/Opinion loaders can resolve
// their owning Issue without re-fetching it from the store on every access
// (spec.md 9: "Cache loaded Issues keyed by hash").
type Cache struct {
	store cas.Store
	mu    sync.Mutex
	byID  map[cas.Multihash]*Issue
}

// NewCache constructs an Issue cache backed by store.
func NewCache(store cas.Store) *Cache {
	return &Cache{store: store, byID: make(map[cas.Multihash]*Issue)}
}

// Load returns the cached Issue for hash, fetching and caching it on a
// cache miss.
func (c *Cache) Load(hash cas.Multihash) (*Issue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if iss, ok := c.byID[hash]; ok {
		return iss, nil
	}
	iss, err := Load(c.store, hash)
	if err != nil {
		return nil, err
	}
	c.byID[hash] = iss
	return iss, nil
}
