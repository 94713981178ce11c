package crypto

import (
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/btcsuite/btcutil/bech32"
)

// Address represents a 20-byte participant address rendered in Bech32 form.
// Hivemind addresses are not chain-scoped the way the teacher's NHB/ZNHB
// prefixes were, so the human-readable part (HRP) is caller-supplied instead
// of a fixed constant.
type Address struct {
	hrp   string
	bytes []byte
}

func NewBech32Address(hrp string, b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("crypto: address must be 20 bytes, got %d", len(b))
	}
	cloned := append([]byte(nil), b...)
	return Address{hrp: hrp, bytes: cloned}, nil
}

// MustNewBech32Address constructs an address and panics if the input is invalid.
func MustNewBech32Address(hrp string, b []byte) Address {
	addr, err := NewBech32Address(hrp, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(a.hrp, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

func (a Address) HRP() string {
	return a.hrp
}

func DecodeBech32Address(addrStr string) (Address, error) {
	hrp, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: error converting bits: %w", err)
	}
	return NewBech32Address(hrp, conv)
}

// AddressFormat enumerates the two address encodings spec.md 3/6 accepts.
type AddressFormat int

const (
	// AddressFormatUnknown is returned when neither format validates.
	AddressFormatUnknown AddressFormat = iota
	AddressFormatBech32
	AddressFormatBase58Check
)

// legacyPayloadLen is the expected decoded hash length of a legacy
// Base58Check address once the version byte is stripped.
const legacyPayloadLen = 20

// ValidateAddress decides whether s is a well-formed participant address in
// either legacy Base58Check form or Bech32 form, per spec.md 3 ("Address —
// a Base58-encoded public-key-hash string in either legacy or Bech32 form").
// Both formats are normalized as plain strings and compared byte-exact by
// callers; ValidateAddress does not itself reconcile the two encodings to a
// single canonical form.
func ValidateAddress(s string) AddressFormat {
	if s == "" {
		return AddressFormatUnknown
	}
	if _, _, err := bech32.Decode(s); err == nil {
		return AddressFormatBech32
	}
	if payload, _, err := base58.CheckDecode(s); err == nil && len(payload) == legacyPayloadLen {
		return AddressFormatBase58Check
	}
	return AddressFormatUnknown
}

// IsValidAddress reports whether s validates under either accepted format.
func IsValidAddress(s string) bool {
	return ValidateAddress(s) != AddressFormatUnknown
}
