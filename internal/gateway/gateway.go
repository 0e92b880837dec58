// Package gateway owns the link to the local Semtech UDP packet forwarder
// and routes frames between it, the Router task, and the Beaconer task. The
// forwarder protocol itself, and LoRaWAN frame parsing, are external to
// this repo (spec §1); this package only names the interfaces it consumes
// from them.
package gateway

import (
	"context"

	"github.com/loragw/gateway-agent/internal/beacon"
	"github.com/loragw/gateway-agent/internal/log"
	"github.com/loragw/gateway-agent/internal/region"
	"github.com/loragw/gateway-agent/proto"
)

// UplinkFrame is one radio frame read from the packet forwarder, carrying
// the metadata the rest of the agent needs.
type UplinkFrame struct {
	Payload   []byte
	Frequency uint32
	Datarate  region.Datarate
	RSSI      int32
	SNR       float32
	Timestamp int64
}

// Forwarder is the external Semtech UDP packet-forwarder link: a stream of
// received uplinks, and the ability to push a downlink or a beacon frame
// out over the radio.
type Forwarder interface {
	Uplinks() <-chan UplinkFrame
	SendDownlink(ctx context.Context, pkt *proto.PacketRouterPacketDownV1) error
	SendBeacon(ctx context.Context, data []byte, frequency uint32, datarate string) error
}

// beaconPayloadSize is used to tell an uplink carrying normal LoRaWAN
// traffic apart from one that looks like a PoC beacon frame, worth handing
// to the Beaconer for witnessing. The real classification (LoRaWAN MHDR
// inspection) lives in the external frame-parsing layer; this length check
// is the one signal this package is allowed to use on its own.
const beaconPayloadSize = beacon.PayloadSize

// Command is the point-to-point instruction other tasks send to the
// Gateway task on its gateway_tx channel: either a downlink the Router
// received, or a beacon frame the Beaconer built.
type Command struct {
	Downlink *proto.PacketRouterPacketDownV1
	Beacon   *BeaconCommand
}

// BeaconCommand carries a synthesized beacon frame out to the forwarder.
type BeaconCommand struct {
	Data      []byte
	Frequency uint32
	Datarate  string
}

// Sink is the Gateway task's inbound command channel, handed to the Router
// and Beaconer tasks so they can request a downlink or a beacon be
// transmitted without knowing anything about the forwarder itself. It
// implements both router.Downlink and beacon.Transmitter.
type Sink chan<- Command

// DeliverDownlink implements router.Downlink by enqueueing a Command on the
// gateway_tx channel.
func (s Sink) DeliverDownlink(ctx context.Context, pkt *proto.PacketRouterPacketDownV1) error {
	select {
	case s <- Command{Downlink: pkt}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TransmitBeacon implements beacon.Transmitter by enqueueing a Command on
// the gateway_tx channel.
func (s Sink) TransmitBeacon(ctx context.Context, data []byte, frequency uint32, datarate string) error {
	cmd := Command{Beacon: &BeaconCommand{Data: append([]byte(nil), data...), Frequency: frequency, Datarate: datarate}}
	select {
	case s <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Gateway is the Gateway task: it owns the forwarder link, routes uplinks
// to the Router and Beaconer tasks, and executes commands the other tasks
// send it on gatewayRx.
type Gateway struct {
	fwd      Forwarder
	uplinkTx chan<- *proto.PacketRouterPacketUpV1
	beaconTx chan<- beacon.Event
	log      log.Logger
}

// Settings configures a Gateway task.
type Settings struct {
	Forwarder Forwarder
	UplinkTx  chan<- *proto.PacketRouterPacketUpV1 // to Router task
	BeaconTx  chan<- beacon.Event                  // to Beaconer task (observed beacons)
}

// New builds a Gateway task.
func New(s Settings) *Gateway {
	return &Gateway{
		fwd:      s.Forwarder,
		uplinkTx: s.UplinkTx,
		beaconTx: s.BeaconTx,
		log:      log.DefaultLogger().Named("gateway"),
	}
}

// Run is the Gateway task's event loop: it reads uplinks off the forwarder,
// routing each to the Router task (and to the Beaconer task when it looks
// like a beacon frame), and executes Commands arriving on gatewayRx.
// Downlinks returned by the Router arrive here in the same FIFO order the
// Router's conduit delivered them, since the Router task is the only
// producer of downlink Commands on gatewayRx (the Beaconer sends only beacon
// Commands on it).
func (g *Gateway) Run(ctx context.Context, shutdown <-chan struct{}, gatewayRx <-chan Command) error {
	uplinks := g.fwd.Uplinks()
	for {
		select {
		case <-shutdown:
			return nil
		case <-ctx.Done():
			return nil
		case frame, ok := <-uplinks:
			if !ok {
				return nil
			}
			g.route(ctx, frame)
		case cmd, ok := <-gatewayRx:
			if !ok {
				return nil
			}
			g.execute(ctx, cmd)
		}
	}
}

func (g *Gateway) execute(ctx context.Context, cmd Command) {
	switch {
	case cmd.Downlink != nil:
		if err := g.fwd.SendDownlink(ctx, cmd.Downlink); err != nil {
			g.log.Warnw("downlink send failed", "error", err)
		}
	case cmd.Beacon != nil:
		b := cmd.Beacon
		if err := g.fwd.SendBeacon(ctx, b.Data, b.Frequency, b.Datarate); err != nil {
			g.log.Warnw("beacon send failed", "error", err)
		}
	}
}

func (g *Gateway) route(ctx context.Context, frame UplinkFrame) {
	pkt := &proto.PacketRouterPacketUpV1{
		Payload:   frame.Payload,
		Timestamp: frame.Timestamp,
		Rssi:      frame.RSSI,
		Snr:       frame.SNR,
		Frequency: frame.Frequency,
		Datarate:  beacon.DatarateString(frame.Datarate),
	}
	select {
	case g.uplinkTx <- pkt:
	case <-ctx.Done():
		return
	}

	if len(frame.Payload) == beaconPayloadSize {
		ev := beacon.Event{
			Kind: beacon.EventObservedBeacon,
			Observed: beacon.Observed{
				Data:      frame.Payload,
				Frequency: frame.Frequency,
				Datarate:  frame.Datarate,
				RSSI:      frame.RSSI,
				SNR:       frame.SNR,
			},
		}
		select {
		case g.beaconTx <- ev:
		default:
			g.log.Warnw("beacon event channel full, dropping witness candidate")
		}
	}
}
