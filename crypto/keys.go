package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"

	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultHRP is the human-readable prefix used when an address is derived
// from a key and no other prefix has been configured by the caller.
const DefaultHRP = "hive"

// PrivateKey wraps an ECDSA private key used to sign the canonical
// "IPFS=<multihash>" messages the engine binds sensitive actions to. Key
// management (generation, storage, rotation) lives outside the core per
// spec.md 4.2 — this type exists only so tests and the CLI entrypoint can
// produce signatures the Signer can verify.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey wraps an ECDSA public key.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a new secp256k1 private key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the raw byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the Bech32 address for this key under the given HRP.
func (k *PublicKey) Address(hrp string) Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return MustNewBech32Address(hrp, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
