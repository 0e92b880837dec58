// Package server composes the five long-running tasks — Gateway, Router,
// Region Watcher, Beaconer, and the status API — into one process, wiring
// the channels and broadcast-latest views between them and running them
// under a fail-fast join: the first task error stops every other task, and
// a clean shutdown only succeeds once all five have returned.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/loragw/gateway-agent/internal/api"
	"github.com/loragw/gateway-agent/internal/beacon"
	"github.com/loragw/gateway-agent/internal/config"
	"github.com/loragw/gateway-agent/internal/entropy"
	"github.com/loragw/gateway-agent/internal/gateway"
	"github.com/loragw/gateway-agent/internal/log"
	"github.com/loragw/gateway-agent/internal/metrics"
	"github.com/loragw/gateway-agent/internal/region"
	"github.com/loragw/gateway-agent/internal/router"
	"github.com/loragw/gateway-agent/internal/signer"
	"github.com/loragw/gateway-agent/key"
	netpkg "github.com/loragw/gateway-agent/net"
	"github.com/loragw/gateway-agent/proto"
)

// uplinkCapacity and beaconEventCapacity bound the inter-task channels the
// same way the Router Conduit bounds its own upstream channel: backpressure
// over unbounded growth.
const (
	uplinkCapacity      = 50
	beaconEventCapacity = 16
	gatewayCmdCapacity  = 50
)

// Settings gathers everything server.Run needs to construct and wire the
// agent's tasks.
type Settings struct {
	Config    *config.Config
	Keypair   *key.Keypair
	Forwarder gateway.Forwarder
}

// Run builds and runs every task until shutdown fires, or any task returns
// an error. It returns nil only on a clean shutdown (shutdown closed and
// every task returned nil).
func Run(ctx context.Context, shutdown <-chan struct{}, s Settings) error {
	l := log.DefaultLogger().Named("server")
	cfg := s.Config

	client := netpkg.NewClient()
	defer client.Close()

	routerURI, err := cfg.ResolveRouterURI()
	if err != nil {
		return err
	}
	counters := metrics.NewCounters(metrics.Registry)
	metrics.BindProcessMetrics(metrics.Registry, l)
	pocClient := &countingReporter{inner: netpkg.NewPoCClient(client, routerURI, s.Keypair), counters: counters}

	sign := signer.New(s.Keypair, 0)
	defer sign.Close()

	watcher, err := buildWatcher(cfg, s.Keypair, client)
	if err != nil {
		return err
	}

	conduit := router.New(&countingDialer{inner: client, counters: counters}, routerURI, s.Keypair, sign)
	rtr := router.NewRouter(conduit)

	gatewayRx := make(chan gateway.Command, gatewayCmdCapacity)
	sink := gateway.Sink(gatewayRx)

	uplinkTx := make(chan *proto.PacketRouterPacketUpV1, uplinkCapacity)
	beaconEvents := make(chan beacon.Event, beaconEventCapacity)

	gw := gateway.New(gateway.Settings{
		Forwarder: s.Forwarder,
		UplinkTx:  uplinkTx,
		BeaconTx:  beaconEvents,
	})

	bc := beacon.New(beacon.Settings{
		Keypair:     s.Keypair,
		Signer:      sign,
		RegionRx:    watcher.Subscribe(),
		Entropy:     pocClient,
		Reporter:    pocClient,
		Transmitter: sink,
		Interval:    time.Duration(cfg.BeaconPeriodSeconds) * time.Second,
	})

	apiSrv := api.New(api.Settings{
		Addr:     cfg.API,
		RegionRx: watcher.Subscribe(),
		Keypair:  s.Keypair,
		Counters: counters,
	})

	// runCtx and taskStop give every task a uniform stop signal that fires on
	// either the caller's shutdown or the first task error, so one failing
	// task brings every other task down instead of leaking goroutines.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	taskStop := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { cancel(); close(taskStop) }) }

	go func() {
		select {
		case <-shutdown:
			stop()
		case <-runCtx.Done():
		}
	}()

	tasks := []func() error{
		func() error { return watcher.Run(runCtx, taskStop) },
		func() error { return rtr.Run(runCtx, taskStop, uplinkTx, sink) },
		func() error { return gw.Run(runCtx, taskStop, gatewayRx) },
		func() error { return bc.Run(runCtx, taskStop, beaconEvents) },
		func() error { return apiSrv.Run(taskStop) },
	}

	var wg multierror.Group
	for _, t := range tasks {
		t := t
		wg.Go(func() error {
			err := t()
			if err != nil {
				stop()
			}
			return err
		})
	}

	go logCountersPeriodically(taskStop, counters, l)

	l.Infow("gateway agent started", "region", cfg.Region, "gateway", s.Keypair.PublicBase64())

	return wg.Wait().ErrorOrNil()
}

func logCountersPeriodically(stop <-chan struct{}, counters *metrics.Counters, l log.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			metrics.LogPeriodically(counters, l)
		}
	}
}

// countingReporter wraps a beacon/witness reporter and the entropy source,
// incrementing the status API's operational counters on every successful
// submission.
type countingReporter struct {
	inner    *netpkg.PoCClient
	counters *metrics.Counters
}

func (c *countingReporter) RemoteEntropy(ctx context.Context, kp *key.Keypair) (entropy.Entropy, error) {
	return c.inner.RemoteEntropy(ctx, kp)
}

func (c *countingReporter) LocalEntropy() entropy.Entropy {
	return c.inner.LocalEntropy()
}

func (c *countingReporter) SubmitBeaconReport(ctx context.Context, r *proto.LoraBeaconReportReqV1) error {
	if err := c.inner.SubmitBeaconReport(ctx, r); err != nil {
		return err
	}
	c.counters.IncBeaconsSent()
	return nil
}

func (c *countingReporter) SubmitWitnessReport(ctx context.Context, r *proto.LoraWitnessReportReqV1) error {
	if err := c.inner.SubmitWitnessReport(ctx, r); err != nil {
		return err
	}
	c.counters.IncWitnessesSent()
	return nil
}

// countingDialer wraps the gRPC client's Dial, incrementing the conduit
// reconnect counter every time the Router Conduit opens a fresh stream.
type countingDialer struct {
	inner    *netpkg.Client
	counters *metrics.Counters
}

func (d *countingDialer) Dial(ctx context.Context, uri key.KeyedUri) (router.Stream, error) {
	stream, err := d.inner.Dial(ctx, uri)
	if err == nil {
		d.counters.IncConduitReconnects()
	}
	return stream, err
}

func buildWatcher(cfg *config.Config, kp *key.Keypair, client *netpkg.Client) (*region.Watcher, error) {
	def := region.NewDefaultForRegion(cfg.Region)

	settings := region.Settings{
		Region:  cfg.Region,
		Keypair: kp,
		Params:  client,
	}

	switch cfg.Mode() {
	case config.ModeConfigService:
		uri, err := cfg.ResolveConfigURI()
		if err != nil {
			return nil, err
		}
		settings.Mode = region.ModeConfigService
		settings.ConfigURI = uri
	default:
		seeds, err := cfg.ResolveGateways()
		if err != nil {
			return nil, err
		}
		settings.Mode = region.ModeValidator
		settings.Seeds = seeds
		settings.Peers = client
	}

	return region.New(settings, def), nil
}
