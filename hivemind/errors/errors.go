// Package errors defines the sentinel error kinds of spec.md section 7,
// in the style of the teacher's core/errors package: a flat var block of
// errors.New-constructed sentinels rather than custom error types.
package errors

import "errors"

var (
	// ErrInvalidInput marks a mutator receiving a value violating a
	// declared constraint or enum.
	ErrInvalidInput = errors.New("hivemind: invalid input")
	// ErrSignatureInvalid marks verify() returning false where a
	// signature was required.
	ErrSignatureInvalid = errors.New("hivemind: signature invalid")
	// ErrNotFound marks a CAS lookup failing to resolve a hash.
	ErrNotFound = errors.New("hivemind: not found")
	// ErrCorrupt marks a CAS record that fails to deserialize.
	ErrCorrupt = errors.New("hivemind: corrupt record")
	// ErrForbidden marks a restriction violation (address not in
	// allow-list, options-per-address cap reached).
	ErrForbidden = errors.New("hivemind: forbidden")
	// ErrStateFinal marks a mutation attempted on a finalized State.
	ErrStateFinal = errors.New("hivemind: state is final")
	// ErrOracleUnavailable marks a SIL/LAL oracle returning an error
	// envelope.
	ErrOracleUnavailable = errors.New("hivemind: oracle unavailable")
	// ErrUnimplemented marks an on_selection or auto_complete value
	// outside the enumerated set. Defensive; not reachable under
	// validated input.
	ErrUnimplemented = errors.New("hivemind: unimplemented")
)

// Is reports whether err is (or wraps) the given sentinel kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

// kinds lists every sentinel Kind checks against, in the same order as the
// var block above.
var kinds = []error{
	ErrInvalidInput,
	ErrSignatureInvalid,
	ErrNotFound,
	ErrCorrupt,
	ErrForbidden,
	ErrStateFinal,
	ErrOracleUnavailable,
	ErrUnimplemented,
}

// Kind resolves err to the sentinel it wraps, so callers can branch on a
// single comparable value instead of chaining errors.Is calls themselves.
// Returns nil if err does not wrap any of this package's sentinels.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
