package key

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewKeypairSignVerify(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	msg := []byte("hello gateway")
	sig := kp.Sign(msg)
	require.True(t, ed25519.Verify(kp.Public, msg, sig))
}

func TestLoadKeypairRoundTrip(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	priv := ed25519.NewKeyFromSeed(seed)

	path := filepath.Join(t.TempDir(), "gateway.key")
	require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0o600))

	kp, err := LoadKeypair(path)
	require.NoError(t, err)
	require.Equal(t, priv.Public(), kp.Public)
}

func TestLoadKeypairBadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.key")
	require.NoError(t, os.WriteFile(path, []byte("not-hex"), 0o600))

	_, err := LoadKeypair(path)
	require.Error(t, err)
}

func TestKeyedUriEqual(t *testing.T) {
	a, err := ParseKeyedUri("router.example:443", hex.EncodeToString(make([]byte, ed25519.PublicKeySize)))
	require.NoError(t, err)
	b, err := ParseKeyedUri("router.example:443", hex.EncodeToString(make([]byte, ed25519.PublicKeySize)))
	require.NoError(t, err)
	require.True(t, a.Equal(b))

	c, err := ParseKeyedUri("other.example:443", hex.EncodeToString(make([]byte, ed25519.PublicKeySize)))
	require.NoError(t, err)
	require.False(t, a.Equal(c))
}

func TestParseKeyedUriRejectsBadKey(t *testing.T) {
	_, err := ParseKeyedUri("router.example:443", "zz")
	require.Error(t, err)
}
