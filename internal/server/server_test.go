package server

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loragw/gateway-agent/internal/config"
	"github.com/loragw/gateway-agent/internal/gateway"
	"github.com/loragw/gateway-agent/key"
	"github.com/loragw/gateway-agent/proto"
)

type nopForwarder struct {
	uplinks chan gateway.UplinkFrame
}

func newNopForwarder() *nopForwarder {
	return &nopForwarder{uplinks: make(chan gateway.UplinkFrame)}
}

func (f *nopForwarder) Uplinks() <-chan gateway.UplinkFrame { return f.uplinks }

func (f *nopForwarder) SendDownlink(ctx context.Context, pkt *proto.PacketRouterPacketDownV1) error {
	return nil
}

func (f *nopForwarder) SendBeacon(ctx context.Context, data []byte, frequency uint32, datarate string) error {
	return nil
}

// testConfig builds a Config that resolves cleanly but never needs to
// actually reach a router, config service, or validator peer: every address
// is local and unreachable, which is fine because Run must still shut down
// promptly once shutdown is closed, regardless of fetch/dial outcomes.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	hexPub := hex.EncodeToString(pub)

	body := `
region = "US915"
keypair = "unused"
listen = "127.0.0.1:0"
api = "127.0.0.1:0"

[[gateways]]
uri = "127.0.0.1:1"
public_key = "` + hexPub + `"

[router]
uri = "127.0.0.1:1"
public_key = "` + hexPub + `"
`
	path := filepath.Join(t.TempDir(), "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestRunStopsPromptlyOnShutdown(t *testing.T) {
	kp, err := key.NewKeypair()
	require.NoError(t, err)

	s := Settings{
		Config:    testConfig(t),
		Keypair:   kp,
		Forwarder: newNopForwarder(),
	}

	shutdown := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- Run(context.Background(), shutdown, s) }()

	// Give every task a moment to start and begin their initial backoff/listen
	// waits before asking them all to stop.
	time.Sleep(20 * time.Millisecond)
	close(shutdown)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down promptly")
	}
}
