package beacon

import (
	"context"
	"time"

	clock "github.com/jonboulle/clockwork"
	lru "github.com/hashicorp/golang-lru"

	"github.com/loragw/gateway-agent/internal/broadcast"
	"github.com/loragw/gateway-agent/internal/entropy"
	"github.com/loragw/gateway-agent/internal/log"
	"github.com/loragw/gateway-agent/internal/region"
	"github.com/loragw/gateway-agent/internal/signer"
	"github.com/loragw/gateway-agent/key"
	"github.com/loragw/gateway-agent/proto"
)

// witnessCacheSize bounds how many recently-witnessed beacon IDs the
// Beaconer remembers, so a gateway does not double-submit a witness report
// for a beacon it has already reported while that beacon's ID is still in
// the cache; an ID evicted by newer entries is no longer recognised.
const witnessCacheSize = 1024

// EventKind distinguishes the two things the Beaconer reacts to.
type EventKind int

const (
	EventBeaconRequest EventKind = iota
	EventObservedBeacon
)

// Observed describes a beacon frame this gateway received over the radio
// from another gateway, passed up by the Gateway task for witnessing.
type Observed struct {
	Data      []byte
	Frequency uint32
	Datarate  region.Datarate
	RSSI      int32
	SNR       float32
}

// Event is one inbound item on the Beaconer's command channel.
type Event struct {
	Kind     EventKind
	Observed Observed
}

// EntropySource supplies the two entropies a beacon is derived from.
type EntropySource interface {
	RemoteEntropy(ctx context.Context, kp *key.Keypair) (entropy.Entropy, error)
	LocalEntropy() entropy.Entropy
}

// Reporter submits signed beacon and witness reports to the cloud.
type Reporter interface {
	SubmitBeaconReport(ctx context.Context, r *proto.LoraBeaconReportReqV1) error
	SubmitWitnessReport(ctx context.Context, r *proto.LoraWitnessReportReqV1) error
}

// Transmitter hands a synthesized beacon frame to the Gateway task so it
// reaches the packet forwarder.
type Transmitter interface {
	TransmitBeacon(ctx context.Context, data []byte, frequency uint32, datarate string) error
}

// Settings configures a Beaconer.
type Settings struct {
	Keypair     *key.Keypair
	Signer      *signer.Signer
	RegionRx    *broadcast.Latest[region.Params]
	Entropy     EntropySource
	Reporter    Reporter
	Transmitter Transmitter
	Clock       clock.Clock
	Interval    time.Duration
}

// Beaconer is the Beaconer task: it schedules beacon emissions, builds
// Beacon frames, and submits beacon and witness reports.
type Beaconer struct {
	s       Settings
	log     log.Logger
	witness *lru.Cache
}

// New builds a Beaconer from s.
func New(s Settings) *Beaconer {
	if s.Clock == nil {
		s.Clock = clock.NewRealClock()
	}
	cache, _ := lru.New(witnessCacheSize)
	return &Beaconer{s: s, log: log.DefaultLogger().Named("beaconer"), witness: cache}
}

// Run drives the scheduling loop until shutdown fires. Beacon generation
// and submission are handled inline in the select loop: because only one
// goroutine ever executes this loop, a new beacon generation can never
// start while a previous submission is still in flight — the single
// beacon-in-flight invariant holds structurally rather than needing its own
// lock.
func (bc *Beaconer) Run(ctx context.Context, shutdown <-chan struct{}, events <-chan Event) error {
	ticker := bc.s.Clock.NewTicker(bc.s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdown:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			bc.emit(ctx)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case EventBeaconRequest:
				bc.emit(ctx)
			case EventObservedBeacon:
				bc.witnessBeacon(ctx, ev.Observed)
			}
		}
	}
}

func (bc *Beaconer) emit(ctx context.Context) {
	params := bc.s.RegionRx.Current()
	if !params.Active() {
		bc.log.Warnw("skipping beacon cycle: no active region params")
		return
	}

	remote, err := bc.s.Entropy.RemoteEntropy(ctx, bc.s.Keypair)
	if err != nil {
		bc.log.Warnw("skipping beacon cycle: remote entropy unavailable", "error", err)
		return
	}
	local := bc.s.Entropy.LocalEntropy()

	b, err := New(remote, local, params)
	if err != nil {
		bc.log.Warnw("skipping beacon cycle", "error", err)
		return
	}

	if err := bc.s.Transmitter.TransmitBeacon(ctx, b.Data[:], b.Frequency, DatarateString(b.Datarate)); err != nil {
		bc.log.Warnw("beacon transmit failed", "error", err)
		return
	}

	report := b.Report()
	if err := bc.s.Signer.Sign(ctx, report); err != nil {
		bc.log.Warnw("beacon report signing failed", "error", err)
		return
	}
	if err := bc.s.Reporter.SubmitBeaconReport(ctx, report); err != nil {
		bc.log.Warnw("beacon report submission failed", "error", err)
		return
	}
	bc.witness.Add(b.ID(), struct{}{})
}

func (bc *Beaconer) witnessBeacon(ctx context.Context, obs Observed) {
	id := idEncoding.EncodeToString(obs.Data)
	if bc.witness.Contains(id) {
		return
	}
	bc.witness.Add(id, struct{}{})

	report := WitnessReport(obs.Data, obs.Frequency, obs.Datarate, obs.RSSI, obs.SNR, bc.s.Keypair.Public)
	if err := bc.s.Signer.Sign(ctx, report); err != nil {
		bc.log.Warnw("witness report signing failed", "error", err)
		return
	}
	if err := bc.s.Reporter.SubmitWitnessReport(ctx, report); err != nil {
		bc.log.Warnw("witness report submission failed", "error", err)
	}
}
