// Package key holds the gateway's signing identity and the KeyedUri type
// used to address upstream services. It mirrors the Private/Identity split
// drand's key package uses for its group keys, adapted from the pairing-based
// bn256 scheme to the gateway's single-signer ed25519 identity.
package key

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
)

// Keypair is the gateway's signing identity. It is logically immutable once
// loaded and is shared read-only by every task that signs outbound messages;
// callers pass around the *Keypair pointer rather than copying key material.
type Keypair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// PublicTOML is the TOML-marshalable form of a public key, kept for parity
// with the on-disk key file format.
type PublicTOML struct {
	Key string
}

// NewKeypair generates a fresh keypair. Used by tests and by key-provisioning
// tooling external to this agent; the running agent loads a keypair from
// disk via LoadKeypair.
func NewKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{Private: priv, Public: pub}, nil
}

// LoadKeypair reads a hex-encoded ed25519 private key seed from path. Key generation
// and storage are external to this agent (spec Non-goals); this is the one
// load path the agent itself performs at startup.
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair %q: %w", path, err)
	}
	seed := make([]byte, ed25519.SeedSize)
	n, err := hex.Decode(seed, raw)
	if err != nil || n != ed25519.SeedSize {
		return nil, fmt.Errorf("decode keypair %q: invalid seed", path)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Keypair{Private: priv, Public: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign produces a raw ed25519 signature over data.
func (k *Keypair) Sign(data []byte) []byte {
	return ed25519.Sign(k.Private, data)
}

// PublicBase64 is the gateway's public key, standard base64 encoded — the
// form used in logs and the status API.
func (k *Keypair) PublicBase64() string {
	return base64.StdEncoding.EncodeToString(k.Public)
}

// TOML returns the TOML-encodable form of the public half of k.
func (k *Keypair) TOML() *PublicTOML {
	return &PublicTOML{Key: hex.EncodeToString(k.Public)}
}

// KeyedUri identifies an upstream service by URI plus the public key it is
// expected to present, so the agent can refuse to talk to an impostor at the
// same address. Equality is by both fields.
type KeyedUri struct {
	URI       string
	PublicKey ed25519.PublicKey
}

// Equal reports whether u and o name the same service.
func (u KeyedUri) Equal(o KeyedUri) bool {
	if u.URI != o.URI {
		return false
	}
	return len(u.PublicKey) == len(o.PublicKey) && string(u.PublicKey) == string(o.PublicKey)
}

// ParseKeyedUri builds a KeyedUri from a URI and a hex-encoded ed25519
// public key, the two separate fields of the config encoding.
func ParseKeyedUri(uri, hexKey string) (KeyedUri, error) {
	if uri == "" {
		return KeyedUri{}, errors.New("keyeduri: empty uri")
	}
	pub, err := hex.DecodeString(hexKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return KeyedUri{}, fmt.Errorf("keyeduri: invalid public key for %q", uri)
	}
	return KeyedUri{URI: uri, PublicKey: pub}, nil
}
