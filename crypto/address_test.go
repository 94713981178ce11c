package crypto

import "testing"

func TestBech32AddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address("hive")
	decoded, err := DecodeBech32Address(addr.String())
	if err != nil {
		t.Fatalf("decode bech32 address: %v", err)
	}
	if decoded.String() != addr.String() {
		t.Fatalf("round trip mismatch: got %s want %s", decoded.String(), addr.String())
	}
	if ValidateAddress(addr.String()) != AddressFormatBech32 {
		t.Fatalf("expected bech32 address to validate as bech32")
	}
}

func TestValidateAddressRejectsGarbage(t *testing.T) {
	cases := []string{"", "not-an-address", "1", "hive1invalidchecksum"}
	for _, c := range cases {
		if IsValidAddress(c) {
			t.Fatalf("expected %q to be invalid", c)
		}
	}
}

func TestValidateAddressLegacyBase58Check(t *testing.T) {
	// A well-known legacy Base58Check Bitcoin address (20-byte payload).
	const legacy = "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"
	if got := ValidateAddress(legacy); got != AddressFormatBase58Check {
		t.Fatalf("expected legacy address to validate as base58check, got %v", got)
	}
}
