package router

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/loragw/gateway-agent/internal/log"
	"github.com/loragw/gateway-agent/proto"
)

// Downlink is the Gateway task's capability to deliver a downlink packet
// received from the router out to the packet forwarder.
type Downlink interface {
	DeliverDownlink(ctx context.Context, pkt *proto.PacketRouterPacketDownV1) error
}

// Router is the Router task: it maintains the conduit to the cloud router,
// forwarding uplinks up and downlinks down.
type Router struct {
	conduit *Conduit
	log     log.Logger
}

// NewRouter builds a Router task over an already-constructed Conduit.
func NewRouter(conduit *Conduit) *Router {
	return &Router{conduit: conduit, log: log.DefaultLogger().Named("router")}
}

// Run forwards uplinks from uplinkRx to the conduit and downlinks from the
// conduit to gw, until shutdown fires or a structural error escapes both
// loops' own retry handling.
func (r *Router) Run(ctx context.Context, shutdown <-chan struct{}, uplinkRx <-chan *proto.PacketRouterPacketUpV1, gw Downlink) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-shutdown:
			cancel()
		case <-runCtx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return r.forwardUplinks(gctx, uplinkRx)
	})
	g.Go(func() error {
		return r.receiveDownlinks(gctx, gw)
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

func (r *Router) forwardUplinks(ctx context.Context, uplinkRx <-chan *proto.PacketRouterPacketUpV1) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt, ok := <-uplinkRx:
			if !ok {
				return nil
			}
			if err := r.conduit.Send(ctx, pkt); err != nil {
				r.log.Warnw("uplink send failed, will reconnect on next send", "error", err)
			}
		}
	}
}

func (r *Router) receiveDownlinks(ctx context.Context, gw Downlink) error {
	for {
		pkt, err := r.conduit.Recv(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			r.log.Warnw("downlink recv failed", "error", err)
			continue
		}
		if pkt == nil {
			continue // conduit disconnected or stream ended cleanly; Send will reconnect
		}
		if err := gw.DeliverDownlink(ctx, pkt); err != nil {
			r.log.Warnw("downlink delivery failed", "error", err)
		}
	}
}
