package gossip

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
)

func TestParseTrustedPeersDecodesValidKeys(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	encoded := map[string]string{"peer-a": base64.StdEncoding.EncodeToString(pub)}

	peers, err := ParseTrustedPeers(encoded)
	if err != nil {
		t.Fatalf("ParseTrustedPeers: %v", err)
	}
	if !peers["peer-a"].Equal(pub) {
		t.Errorf("decoded public key does not match original")
	}
}

func TestParseTrustedPeersRejectsInvalidBase64(t *testing.T) {
	_, err := ParseTrustedPeers(map[string]string{"peer-a": "not-valid-base64!!"})
	if err == nil {
		t.Fatal("expected an error for invalid base64")
	}
}

func TestParseTrustedPeersRejectsWrongKeySize(t *testing.T) {
	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	_, err := ParseTrustedPeers(map[string]string{"peer-a": short})
	if err == nil {
		t.Fatal("expected an error for a key of the wrong size")
	}
}
