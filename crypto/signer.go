package crypto

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Signer verifies that a signature binds a participant address to a message.
// The concrete cryptosystem is external to the engine (spec.md 4.2); this
// implementation recovers a secp256k1 public key the same way the teacher's
// core/types/transaction.go recovers a transaction sender, then compares the
// derived address against the claimed one.
type Signer interface {
	Verify(address, message string, signature []byte) bool
}

// ECDSASigner verifies signatures produced over a Bech32 address derived
// from the recovered public key under hrp.
type ECDSASigner struct {
	hrp string
}

// NewECDSASigner returns a Signer that derives Bech32 addresses under hrp
// when checking a recovered public key against a claimed address.
func NewECDSASigner(hrp string) *ECDSASigner {
	if hrp == "" {
		hrp = DefaultHRP
	}
	return &ECDSASigner{hrp: hrp}
}

// Sign produces a 65-byte recoverable signature over message using key. It
// exists so tests (and the CLI) can produce signatures Verify will accept;
// signing key management itself lives outside the core.
func Sign(key *PrivateKey, message string) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("crypto: nil private key")
	}
	hash := messageHash(message)
	return crypto.Sign(hash, key.PrivateKey)
}

// Verify implements Signer.
func (s *ECDSASigner) Verify(address, message string, signature []byte) bool {
	if len(signature) != 65 {
		return false
	}
	hash := messageHash(message)
	pub, err := crypto.SigToPub(hash, signature)
	if err != nil {
		return false
	}
	recovered := (&PublicKey{pub}).Address(s.hrp)
	want, err := normalizeAddress(address, s.hrp)
	if err != nil {
		return false
	}
	return bytes.Equal(recovered.Bytes(), want.Bytes()) && recovered.HRP() == want.HRP()
}

// normalizeAddress decodes a Bech32 address string into its byte form and
// checks its human-readable part matches hrp, so a mismatched prefix is
// rejected here rather than relying solely on the byte comparison in
// Verify.
func normalizeAddress(address, hrp string) (Address, error) {
	decoded, err := DecodeBech32Address(address)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: address %q is not a recoverable bech32 address: %w", address, err)
	}
	if decoded.HRP() != hrp {
		return Address{}, fmt.Errorf("crypto: address %q has hrp %q, want %q", address, decoded.HRP(), hrp)
	}
	return decoded, nil
}

func messageHash(message string) []byte {
	sum := sha256.Sum256([]byte(message))
	return sum[:]
}

// IPFSMessage builds the canonical message the engine signs over: spec.md
// 4.2's "IPFS=<multihash>" form, used for both option support and opinion
// submission.
func IPFSMessage(multihash string) string {
	return "IPFS=" + multihash
}
