package beacon

import (
	"context"
	"sync"
	"testing"
	"time"

	clock "github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/loragw/gateway-agent/internal/broadcast"
	"github.com/loragw/gateway-agent/internal/entropy"
	"github.com/loragw/gateway-agent/internal/region"
	"github.com/loragw/gateway-agent/internal/signer"
	"github.com/loragw/gateway-agent/key"
	"github.com/loragw/gateway-agent/proto"
)

type fakeEntropySource struct {
	remote entropy.Entropy
	local  entropy.Entropy
	err    error
}

func (f *fakeEntropySource) RemoteEntropy(ctx context.Context, kp *key.Keypair) (entropy.Entropy, error) {
	return f.remote, f.err
}

func (f *fakeEntropySource) LocalEntropy() entropy.Entropy {
	return f.local
}

type fakeReporter struct {
	mu        sync.Mutex
	beacons   []*proto.LoraBeaconReportReqV1
	witnesses []*proto.LoraWitnessReportReqV1
}

func (f *fakeReporter) SubmitBeaconReport(ctx context.Context, r *proto.LoraBeaconReportReqV1) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beacons = append(f.beacons, r)
	return nil
}

func (f *fakeReporter) SubmitWitnessReport(ctx context.Context, r *proto.LoraWitnessReportReqV1) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.witnesses = append(f.witnesses, r)
	return nil
}

func (f *fakeReporter) beaconCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.beacons)
}

func (f *fakeReporter) witnessCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.witnesses)
}

type fakeTransmitter struct {
	mu   sync.Mutex
	sent int
}

func (f *fakeTransmitter) TransmitBeacon(ctx context.Context, data []byte, frequency uint32, datarate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return nil
}

func (f *fakeTransmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func newTestBeaconer(t *testing.T, fc clock.Clock, entropySrc *fakeEntropySource, reporter *fakeReporter, tx *fakeTransmitter, interval time.Duration) *Beaconer {
	t.Helper()
	kp, err := key.NewKeypair()
	require.NoError(t, err)
	s := signer.New(kp, 2)
	t.Cleanup(s.Close)

	return New(Settings{
		Keypair:     kp,
		Signer:      s,
		RegionRx:    broadcast.NewLatest(region.NewDefaultForRegion("US915")),
		Entropy:     entropySrc,
		Reporter:    reporter,
		Transmitter: tx,
		Clock:       fc,
		Interval:    interval,
	})
}

func TestBeaconerEmitsOnTicker(t *testing.T) {
	fc := clock.NewFakeClock()
	entropySrc := &fakeEntropySource{
		remote: entropy.Entropy{Version: entropy.Version1, Data: []byte("remote")},
		local:  entropy.Entropy{Version: entropy.Version1, Data: []byte("local")},
	}
	reporter := &fakeReporter{}
	tx := &fakeTransmitter{}
	bc := newTestBeaconer(t, fc, entropySrc, reporter, tx, time.Minute)

	shutdown := make(chan struct{})
	events := make(chan Event)
	done := make(chan error, 1)
	go func() { done <- bc.Run(context.Background(), shutdown, events) }()

	fc.BlockUntil(1)
	fc.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return tx.count() == 1 && reporter.beaconCount() == 1
	}, time.Second, 5*time.Millisecond)

	close(shutdown)
	require.NoError(t, <-done)
}

func TestBeaconerSkipsWhenRegionInactive(t *testing.T) {
	fc := clock.NewFakeClock()
	entropySrc := &fakeEntropySource{
		remote: entropy.Entropy{Version: entropy.Version1, Data: []byte("remote")},
		local:  entropy.Entropy{Version: entropy.Version1, Data: []byte("local")},
	}
	reporter := &fakeReporter{}
	tx := &fakeTransmitter{}
	bc := newTestBeaconer(t, fc, entropySrc, reporter, tx, time.Minute)
	bc.s.RegionRx.Publish(region.Params{}) // inactive: no channels

	shutdown := make(chan struct{})
	events := make(chan Event)
	done := make(chan error, 1)
	go func() { done <- bc.Run(context.Background(), shutdown, events) }()

	fc.BlockUntil(1)
	fc.Advance(time.Minute)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, tx.count())

	close(shutdown)
	require.NoError(t, <-done)
}

func TestBeaconerWitnessesObservedBeaconOnce(t *testing.T) {
	fc := clock.NewFakeClock()
	entropySrc := &fakeEntropySource{}
	reporter := &fakeReporter{}
	tx := &fakeTransmitter{}
	bc := newTestBeaconer(t, fc, entropySrc, reporter, tx, time.Hour)

	shutdown := make(chan struct{})
	events := make(chan Event, 4)
	done := make(chan error, 1)
	go func() { done <- bc.Run(context.Background(), shutdown, events) }()

	obs := Observed{Data: []byte("some-beacon-payload"), Frequency: 903100000, Datarate: region.Datarate{SpreadingFactor: 9}}
	events <- Event{Kind: EventObservedBeacon, Observed: obs}
	events <- Event{Kind: EventObservedBeacon, Observed: obs} // duplicate, must not double-submit

	require.Eventually(t, func() bool {
		return reporter.witnessCount() == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, reporter.witnessCount())

	close(shutdown)
	require.NoError(t, <-done)
}

func TestBeaconerBeaconRequestEvent(t *testing.T) {
	fc := clock.NewFakeClock()
	entropySrc := &fakeEntropySource{
		remote: entropy.Entropy{Version: entropy.Version1, Data: []byte("remote")},
		local:  entropy.Entropy{Version: entropy.Version1, Data: []byte("local")},
	}
	reporter := &fakeReporter{}
	tx := &fakeTransmitter{}
	bc := newTestBeaconer(t, fc, entropySrc, reporter, tx, time.Hour)

	shutdown := make(chan struct{})
	events := make(chan Event, 1)
	done := make(chan error, 1)
	go func() { done <- bc.Run(context.Background(), shutdown, events) }()

	events <- Event{Kind: EventBeaconRequest}

	require.Eventually(t, func() bool {
		return tx.count() == 1
	}, time.Second, 5*time.Millisecond)

	close(shutdown)
	require.NoError(t, <-done)
}
