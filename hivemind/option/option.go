// Package option implements the Option type of spec.md sections 3/4.3/4.6:
// an immutable proposed answer that self-validates against its owning
// Issue's constraints. The tagged-variant value representation follows the
// design note in spec.md 9 ("OptionValue { String | Bool | Integer | Float
// | Multihash | Address | Complex }"); validation is a pattern match
// against the Issue's answer_type and constraints, grounded on the
// teacher's habit of small validating methods on plain data types
// (native/governance/types.go VoteChoice.Valid()).
package option

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"hivemind/crypto"
	"hivemind/hivemind/cas"
	hmerrors "hivemind/hivemind/errors"
	"hivemind/hivemind/issue"
	"hivemind/hivemind/oracle"
)

// Deps bundles the optional external collaborators Validate needs to check
// Hivemind- and Address-typed values: an Issue cache for resolving a
// referenced Issue, and the SIL/LAL oracles spec.md 4.3/6 names. Cache is
// needed only for Hivemind-typed values, which fail validation without it.
// The oracles are needed only when the owning Issue constrains Address
// values with SIL/LAL; without such a constraint, Option falls back to
// crypto.IsValidAddress.
type Deps struct {
	Cache *issue.Cache
	SIL   oracle.SIL
	LAL   oracle.LAL
}

// Option is the immutable proposed answer of spec.md 3/4.6.
type Option struct {
	HivemindIssueHash cas.Multihash    `json:"hivemind_issue_hash"`
	Value             any              `json:"value"`
	AnswerType        issue.AnswerType `json:"answer_type"`

	iss  *issue.Issue
	deps Deps
}

// New constructs and validates an Option against iss. value may be a plain
// Go literal (string, bool, int/int64/float64, or map[string]any for
// Complex); it is normalized into the canonical internal representation
// before validation.
func New(iss *issue.Issue, issueHash cas.Multihash, value any, deps Deps) (*Option, error) {
	if iss == nil {
		return nil, fmt.Errorf("%w: option requires an issue", hmerrors.ErrInvalidInput)
	}
	normalized, err := normalizeValue(iss.AnswerType, value)
	if err != nil {
		return nil, err
	}
	o := &Option{
		HivemindIssueHash: issueHash,
		Value:             normalized,
		AnswerType:        iss.AnswerType,
		iss:               iss,
		deps:              deps,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Load fetches an Option from the store and resolves its owning Issue via
// cache, following the on-demand loader pattern of spec.md 9 instead of
// building a cyclic object graph.
func Load(store cas.Store, cache *issue.Cache, hash cas.Multihash, deps Deps) (*Option, error) {
	var o Option
	if err := store.Get(hash, &o); err != nil {
		return nil, err
	}
	iss, err := cache.Load(o.HivemindIssueHash)
	if err != nil {
		return nil, err
	}
	o.iss = iss
	o.deps = deps
	if deps.Cache == nil {
		o.deps.Cache = cache
	}
	return &o, nil
}

// Issue returns the owning Issue, if resolved.
func (o *Option) Issue() *issue.Issue { return o.iss }

// Valid reports whether the option validates without error.
func (o *Option) Valid() bool { return o.Validate() == nil }

// Save validates the option and persists it.
func (o *Option) Save(store cas.Store) (cas.Multihash, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	return store.Put(o)
}

// Validate checks Value against the owning Issue's answer_type and
// constraints, per spec.md 4.3.
func (o *Option) Validate() error {
	if o.iss == nil {
		return fmt.Errorf("%w: option has no resolved issue", hmerrors.ErrInvalidInput)
	}
	if o.AnswerType != o.iss.AnswerType {
		return fmt.Errorf("%w: option answer_type %q does not match issue %q", hmerrors.ErrInvalidInput, o.AnswerType, o.iss.AnswerType)
	}
	c := o.iss.Constraints
	switch o.AnswerType {
	case issue.AnswerString:
		return o.validateString(c)
	case issue.AnswerBool:
		return o.validateBool()
	case issue.AnswerInteger:
		return o.validateInteger(c)
	case issue.AnswerFloat:
		return o.validateFloat(c)
	case issue.AnswerHivemind:
		return o.validateHivemind()
	case issue.AnswerImage, issue.AnswerVideo:
		return o.validateTextual()
	case issue.AnswerComplex:
		return o.validateComplex(c)
	case issue.AnswerAddress:
		return o.validateAddress(c)
	default:
		return fmt.Errorf("%w: answer_type %q", hmerrors.ErrUnimplemented, o.AnswerType)
	}
}

func (o *Option) validateString(c *issue.Constraints) error {
	s, ok := o.Value.(string)
	if !ok {
		return fmt.Errorf("%w: String option value must be textual", hmerrors.ErrInvalidInput)
	}
	if c == nil {
		return nil
	}
	if c.MinLength != nil && len(s) < *c.MinLength {
		return fmt.Errorf("%w: value shorter than min_length %d", hmerrors.ErrInvalidInput, *c.MinLength)
	}
	if c.MaxLength != nil && len(s) > *c.MaxLength {
		return fmt.Errorf("%w: value longer than max_length %d", hmerrors.ErrInvalidInput, *c.MaxLength)
	}
	if c.Regex != nil {
		re, err := regexp.Compile(*c.Regex)
		if err != nil {
			return fmt.Errorf("%w: invalid regex constraint: %v", hmerrors.ErrInvalidInput, err)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("%w: value does not match regex constraint", hmerrors.ErrInvalidInput)
		}
	}
	if len(c.Choices) > 0 && !contains(c.Choices, s) {
		return fmt.Errorf("%w: value not in choices", hmerrors.ErrInvalidInput)
	}
	return nil
}

func (o *Option) validateBool() error {
	if _, ok := o.Value.(bool); !ok {
		return fmt.Errorf("%w: Bool option value must be a boolean", hmerrors.ErrInvalidInput)
	}
	return nil
}

func (o *Option) validateInteger(c *issue.Constraints) error {
	n, ok := o.Value.(json.Number)
	if !ok {
		return fmt.Errorf("%w: Integer option value must be numeric", hmerrors.ErrInvalidInput)
	}
	text := n.String()
	if strings.ContainsAny(text, ".eE") {
		return fmt.Errorf("%w: Integer option value %q is not integral", hmerrors.ErrInvalidInput, text)
	}
	iv, err := n.Int64()
	if err != nil {
		return fmt.Errorf("%w: Integer option value %q is not a valid integer: %v", hmerrors.ErrInvalidInput, text, err)
	}
	if c == nil {
		return nil
	}
	f := float64(iv)
	if c.MinValue != nil && f < *c.MinValue {
		return fmt.Errorf("%w: value below min_value", hmerrors.ErrInvalidInput)
	}
	if c.MaxValue != nil && f > *c.MaxValue {
		return fmt.Errorf("%w: value above max_value", hmerrors.ErrInvalidInput)
	}
	if len(c.Choices) > 0 && !contains(c.Choices, text) {
		return fmt.Errorf("%w: value not in choices", hmerrors.ErrInvalidInput)
	}
	return nil
}

func (o *Option) validateFloat(c *issue.Constraints) error {
	n, ok := o.Value.(json.Number)
	if !ok {
		return fmt.Errorf("%w: Float option value must be numeric", hmerrors.ErrInvalidInput)
	}
	text := n.String()
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("%w: Float option value %q is not a valid real number: %v", hmerrors.ErrInvalidInput, text, err)
	}
	if c == nil {
		return nil
	}
	if c.MinValue != nil && f < *c.MinValue {
		return fmt.Errorf("%w: value below min_value", hmerrors.ErrInvalidInput)
	}
	if c.MaxValue != nil && f > *c.MaxValue {
		return fmt.Errorf("%w: value above max_value", hmerrors.ErrInvalidInput)
	}
	if c.Decimals != nil && *c.Decimals > 0 {
		if got := fractionalDigits(text); got != *c.Decimals {
			return fmt.Errorf("%w: value has %d fractional digits, want %d", hmerrors.ErrInvalidInput, got, *c.Decimals)
		}
	}
	return nil
}

func (o *Option) validateHivemind() error {
	s, ok := o.Value.(string)
	if !ok {
		return fmt.Errorf("%w: Hivemind option value must be a multihash string", hmerrors.ErrInvalidInput)
	}
	if o.deps.Cache == nil {
		return fmt.Errorf("%w: Hivemind option requires an issue cache to resolve", hmerrors.ErrInvalidInput)
	}
	hash, err := cas.ParseMultihash(s)
	if err != nil {
		return fmt.Errorf("%w: Hivemind option value is not a multihash: %v", hmerrors.ErrInvalidInput, err)
	}
	resolved, err := o.deps.Cache.Load(hash)
	if err != nil {
		return fmt.Errorf("%w: Hivemind option references an unresolvable issue: %v", hmerrors.ErrInvalidInput, err)
	}
	if err := resolved.Validate(); err != nil {
		return fmt.Errorf("%w: Hivemind option references an invalid issue: %v", hmerrors.ErrInvalidInput, err)
	}
	return nil
}

// validateTextual backs Image/Video: only a textual check. Deeper
// validation (resolving the multihash and sniffing its type) is the
// explicit future refinement named in spec.md 9 — intentionally not
// implemented here.
func (o *Option) validateTextual() error {
	if _, ok := o.Value.(string); !ok {
		return fmt.Errorf("%w: Image/Video option value must be textual", hmerrors.ErrInvalidInput)
	}
	return nil
}

func (o *Option) validateComplex(c *issue.Constraints) error {
	if c == nil || len(c.Specs) == 0 {
		return fmt.Errorf("%w: Complex answer_type requires a specs constraint", hmerrors.ErrInvalidInput)
	}
	m, ok := o.Value.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: Complex option value must be a mapping", hmerrors.ErrInvalidInput)
	}
	if len(m) != len(c.Specs) {
		return fmt.Errorf("%w: Complex option value keys do not match specs exactly", hmerrors.ErrInvalidInput)
	}
	for field, specType := range c.Specs {
		val, present := m[field]
		if !present {
			return fmt.Errorf("%w: Complex option value missing field %q", hmerrors.ErrInvalidInput, field)
		}
		if err := validateSpecField(field, specType, val); err != nil {
			return err
		}
	}
	return nil
}

func validateSpecField(field string, specType issue.SpecType, val any) error {
	switch specType {
	case issue.SpecString:
		if _, ok := val.(string); !ok {
			return fmt.Errorf("%w: field %q must be a string", hmerrors.ErrInvalidInput, field)
		}
	case issue.SpecInteger:
		n, ok := val.(json.Number)
		if !ok || strings.ContainsAny(n.String(), ".eE") {
			return fmt.Errorf("%w: field %q must be an integer", hmerrors.ErrInvalidInput, field)
		}
		if _, err := n.Int64(); err != nil {
			return fmt.Errorf("%w: field %q is not a valid integer: %v", hmerrors.ErrInvalidInput, field, err)
		}
	case issue.SpecFloat:
		n, ok := val.(json.Number)
		if !ok {
			return fmt.Errorf("%w: field %q must be numeric", hmerrors.ErrInvalidInput, field)
		}
		if _, err := n.Float64(); err != nil {
			return fmt.Errorf("%w: field %q is not a valid real number: %v", hmerrors.ErrInvalidInput, field, err)
		}
	default:
		return fmt.Errorf("%w: field %q has unsupported spec type %q", hmerrors.ErrInvalidInput, field, specType)
	}
	return nil
}

func (o *Option) validateAddress(c *issue.Constraints) error {
	s, ok := o.Value.(string)
	if !ok {
		return fmt.Errorf("%w: Address option value must be a string", hmerrors.ErrInvalidInput)
	}
	blockHeight := uint64(0)
	if c != nil && c.BlockHeight != nil {
		blockHeight = *c.BlockHeight
	}
	switch {
	case c != nil && c.SIL != nil:
		if o.deps.SIL == nil {
			return fmt.Errorf("%w: issue constrains Address by SIL but no SIL oracle is configured", hmerrors.ErrOracleUnavailable)
		}
		entries, err := o.deps.SIL.SIL(*c.SIL, blockHeight)
		if err != nil {
			return fmt.Errorf("%w: %v", hmerrors.ErrOracleUnavailable, err)
		}
		for _, e := range entries {
			if e.Value == s {
				return nil
			}
		}
		return fmt.Errorf("%w: address not present in SIL", hmerrors.ErrInvalidInput)
	case c != nil && c.LAL != nil:
		if o.deps.LAL == nil {
			return fmt.Errorf("%w: issue constrains Address by LAL but no LAL oracle is configured", hmerrors.ErrOracleUnavailable)
		}
		xpub := ""
		if c.XPub != nil {
			xpub = *c.XPub
		}
		entries, err := o.deps.LAL.LAL(*c.LAL, xpub, blockHeight)
		if err != nil {
			return fmt.Errorf("%w: %v", hmerrors.ErrOracleUnavailable, err)
		}
		for _, e := range entries {
			if e.Value == s {
				return nil
			}
		}
		return fmt.Errorf("%w: address not present in LAL", hmerrors.ErrInvalidInput)
	default:
		// Open question (spec.md 9): no SIL/LAL constraint means accept
		// any well-formed address.
		if !crypto.IsValidAddress(s) {
			return fmt.Errorf("%w: value is not a well-formed address", hmerrors.ErrInvalidInput)
		}
		return nil
	}
}

func contains(choices []string, v string) bool {
	for _, c := range choices {
		if c == v {
			return true
		}
	}
	return false
}

func fractionalDigits(text string) int {
	idx := strings.IndexByte(text, '.')
	if idx < 0 {
		return 0
	}
	return len(text) - idx - 1
}

// normalizeValue converts a convenience Go literal into the canonical
// internal representation Validate expects. Numeric values are kept as
// json.Number so "decimals" checks operate on the decimal textual
// representation rather than a float64 bit pattern (spec.md 9).
func normalizeValue(at issue.AnswerType, value any) (any, error) {
	switch at {
	case issue.AnswerString, issue.AnswerHivemind, issue.AnswerImage, issue.AnswerVideo, issue.AnswerAddress:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("%w: expected a string value for answer_type %q", hmerrors.ErrInvalidInput, at)
	case issue.AnswerBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("%w: expected a boolean value for answer_type %q", hmerrors.ErrInvalidInput, at)
	case issue.AnswerInteger, issue.AnswerFloat:
		return normalizeNumber(value)
	case issue.AnswerComplex:
		m, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected a mapping value for answer_type Complex", hmerrors.ErrInvalidInput)
		}
		out := make(map[string]any, len(m))
		for k, v := range m {
			switch v.(type) {
			case string:
				out[k] = v
			default:
				n, err := normalizeNumber(v)
				if err != nil {
					return nil, err
				}
				out[k] = n
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: answer_type %q", hmerrors.ErrUnimplemented, at)
	}
}

func normalizeNumber(value any) (json.Number, error) {
	switch v := value.(type) {
	case json.Number:
		return v, nil
	case string:
		return json.Number(v), nil
	case int:
		return json.Number(strconv.Itoa(v)), nil
	case int64:
		return json.Number(strconv.FormatInt(v, 10)), nil
	case float64:
		return json.Number(strconv.FormatFloat(v, 'f', -1, 64)), nil
	default:
		return "", fmt.Errorf("%w: cannot interpret %T as a number", hmerrors.ErrInvalidInput, value)
	}
}

// UnmarshalJSON decodes the wire form, reading AnswerType first so Value
// can be decoded into the correct Go representation.
func (o *Option) UnmarshalJSON(data []byte) error {
	var shadow struct {
		HivemindIssueHash cas.Multihash    `json:"hivemind_issue_hash"`
		Value             json.RawMessage  `json:"value"`
		AnswerType        issue.AnswerType `json:"answer_type"`
	}
	if err := json.Unmarshal(data, &shadow); err != nil {
		return err
	}
	value, err := decodeValue(shadow.AnswerType, shadow.Value)
	if err != nil {
		return err
	}
	o.HivemindIssueHash = shadow.HivemindIssueHash
	o.AnswerType = shadow.AnswerType
	o.Value = value
	return nil
}

func decodeValue(at issue.AnswerType, raw json.RawMessage) (any, error) {
	switch at {
	case issue.AnswerString, issue.AnswerHivemind, issue.AnswerImage, issue.AnswerVideo, issue.AnswerAddress:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case issue.AnswerBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case issue.AnswerInteger, issue.AnswerFloat:
		return decodeNumber(raw)
	case issue.AnswerComplex:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		out := make(map[string]any, len(fields))
		for k, v := range fields {
			dec := json.NewDecoder(bytes.NewReader(v))
			dec.UseNumber()
			var val any
			if err := dec.Decode(&val); err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil
	default:
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, err
		}
		return generic, nil
	}
}

func decodeNumber(raw json.RawMessage) (json.Number, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return "", err
	}
	return n, nil
}
