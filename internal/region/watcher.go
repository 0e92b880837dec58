package region

import (
	"context"
	"math/rand"

	clock "github.com/jonboulle/clockwork"

	"github.com/loragw/gateway-agent/internal/broadcast"
	"github.com/loragw/gateway-agent/internal/log"
	"github.com/loragw/gateway-agent/key"
)

// ParamsClient is the RPC capability the watcher needs from either the
// config service (config-service mode) or a validator peer (validator
// mode): fetch the current region parameters for a region, signed as the
// given gateway.
type ParamsClient interface {
	RegionParams(ctx context.Context, uri key.KeyedUri, region string, kp *key.Keypair) (Params, error)
}

// PeerClient lets validator mode ask a seed gateway for a random peer to
// query, used only when Mode is ModeValidator.
type PeerClient interface {
	RandomPeer(ctx context.Context, seed key.KeyedUri, kp *key.Keypair) (key.KeyedUri, error)
}

// Mode selects one of the two compile-time fetch strategies.
type Mode int

const (
	ModeConfigService Mode = iota
	ModeValidator
)

// peerPickAttempts bounds validator-mode peer selection: up to 5 picks
// within the shutdown-bounded interval, per spec. No backoff is specified
// between attempts.
const peerPickAttempts = 5

// Settings configures a Watcher.
type Settings struct {
	Mode      Mode
	Region    string
	ConfigURI key.KeyedUri   // ModeConfigService
	Seeds     []key.KeyedUri // ModeValidator
	Keypair   *key.Keypair
	Params    ParamsClient
	Peers     PeerClient // required in ModeValidator
	Clock     clock.Clock
}

// Watcher is the Region Watcher task: it periodically fetches RegionParams
// and publishes the freshest value to a broadcast-latest channel.
type Watcher struct {
	s       Settings
	publish *broadcast.Latest[Params]
	log     log.Logger
}

// New builds a Watcher seeded with def, the always-valid default Params for
// the configured region.
func New(s Settings, def Params) *Watcher {
	if s.Clock == nil {
		s.Clock = clock.NewRealClock()
	}
	return &Watcher{
		s:       s,
		publish: broadcast.NewLatest(def),
		log:     log.DefaultLogger().Named("region-watcher"),
	}
}

// Subscribe returns the broadcast-latest channel the watcher publishes to.
// The returned value also exposes Publish; subscribers are expected to call
// only Current.
func (w *Watcher) Subscribe() *broadcast.Latest[Params] {
	return w.publish
}

// Run executes the control loop until shutdown fires. It never returns a
// non-nil error for transient fetch failures — only shutdown produces a
// clean return.
func (w *Watcher) Run(ctx context.Context, shutdown <-chan struct{}) error {
	r := 1 // r=1 is the initial state: the first fetch waits exactly Backoff(1); no jitter is applied
	current := w.publish.Current()

	for {
		delay := Backoff(r)
		timer := w.s.Clock.NewTimer(delay)
		select {
		case <-shutdown:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.Chan():
		}

		fetched, err := w.fetchOnce(ctx)
		if err != nil {
			w.log.Warnw("region fetch failed", "error", err, "retry", r)
			if r > Retries {
				r = 1
			} else {
				r = min(r+1, Retries)
			}
			continue
		}

		if !fetched.Equal(current) {
			w.publish.Publish(fetched)
			current = fetched
			w.log.Infow("region params updated", "region", fetched.Region)
		}
		r = Retries + 1 // steady state: next wakeup uses Backoff(Retries+1) == MaxWait
	}
}

func (w *Watcher) fetchOnce(ctx context.Context) (Params, error) {
	switch w.s.Mode {
	case ModeValidator:
		return w.fetchValidator(ctx)
	default:
		return w.s.Params.RegionParams(ctx, w.s.ConfigURI, w.s.Region, w.s.Keypair)
	}
}

func (w *Watcher) fetchValidator(ctx context.Context) (Params, error) {
	var lastErr error
	for attempt := 0; attempt < peerPickAttempts; attempt++ {
		seed := w.s.Seeds[rand.Intn(len(w.s.Seeds))]
		peer, err := w.s.Peers.RandomPeer(ctx, seed, w.s.Keypair)
		if err != nil {
			lastErr = err
			continue
		}
		params, err := w.s.Params.RegionParams(ctx, peer, w.s.Region, w.s.Keypair)
		if err != nil {
			lastErr = err
			continue
		}
		return params, nil
	}
	return Params{}, lastErr
}
