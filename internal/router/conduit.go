// Package router maintains the self-healing bidirectional RPC conduit to
// the cloud packet-router service: lazy connect, implicit registration, and
// reconnect-on-error driven by the next send rather than a busy retry loop.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loragw/gateway-agent/internal/log"
	"github.com/loragw/gateway-agent/internal/signer"
	"github.com/loragw/gateway-agent/internal/xerr"
	"github.com/loragw/gateway-agent/key"
	"github.com/loragw/gateway-agent/proto"
)

// upstreamCapacity is the conduit's bounded upstream sender capacity.
const upstreamCapacity = 50

// Timeouts per spec §5.
const (
	ConnectTimeout = 10 * time.Second
	RPCTimeout     = 30 * time.Second
)

// Stream is a single bidirectional RPC stream to the router, opened by a
// Dialer. Implementations own the underlying transport (gRPC in net/).
type Stream interface {
	Send(ctx context.Context, env *proto.EnvelopeUp) error
	Recv(ctx context.Context) (*proto.EnvelopeDown, error)
	Close() error
}

// Dialer opens a fresh Stream to uri.
type Dialer interface {
	Dial(ctx context.Context, uri key.KeyedUri) (Stream, error)
}

type connection struct {
	stream Stream
	upTx   chan *proto.EnvelopeUp
	failed chan struct{}
	failMu sync.Once
	err    error
}

func (c *connection) fail(err error) {
	c.failMu.Do(func() {
		c.err = err
		close(c.failed)
	})
}

// Conduit implements the Router Conduit state machine of spec §4.3: either
// Disconnected or Connected{tx, rx}.
type Conduit struct {
	dialer Dialer
	uri    key.KeyedUri
	kp     *key.Keypair
	signer *signer.Signer
	log    log.Logger

	mu   sync.Mutex
	conn *connection
	wake chan struct{} // closed and replaced each time connectLocked installs a fresh connection
}

// New constructs a Conduit that lazily opens its stream; nothing is dialed
// until the first Send or an explicit Connect. Recv never dials.
func New(dialer Dialer, uri key.KeyedUri, kp *key.Keypair, s *signer.Signer) *Conduit {
	return &Conduit{
		dialer: dialer,
		uri:    uri,
		kp:     kp,
		signer: s,
		log:    log.DefaultLogger().Named("router-conduit"),
		wake:   make(chan struct{}),
	}
}

// Connect opens a fresh stream and registers, if not already connected.
func (c *Conduit) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Conduit) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	connID := uuid.NewString()
	clog := c.log.With("connection_id", connID)

	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	stream, err := c.dialer.Dial(dialCtx, c.uri)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", xerr.ErrNoService, err)
	}
	clog.Debugw("dialed router conduit")

	reg := &proto.PacketRouterRegisterV1{
		TimestampMS: time.Now().UnixMilli(),
		Gateway:     c.kp.Public,
	}
	if err := c.signer.Sign(ctx, reg); err != nil {
		stream.Close()
		return err
	}
	regCtx, regCancel := context.WithTimeout(ctx, RPCTimeout)
	defer regCancel()
	if err := stream.Send(regCtx, &proto.EnvelopeUp{Register: reg}); err != nil {
		stream.Close()
		return fmt.Errorf("%w: register: %v", xerr.ErrStreamClosed, err)
	}
	clog.Infow("registered with router")

	conn := &connection{
		stream: stream,
		upTx:   make(chan *proto.EnvelopeUp, upstreamCapacity),
		failed: make(chan struct{}),
	}
	go c.forward(conn)
	c.conn = conn
	close(c.wake)
	c.wake = make(chan struct{})
	return nil
}

// forward drains conn.upTx onto the stream until it errors or upTx closes.
// Its only job is to apply backpressure and to flag the connection failed
// so the next Send reconnects, per spec: reconnection is driven by send
// attempts, never by this goroutine retrying on its own.
func (c *Conduit) forward(conn *connection) {
	for env := range conn.upTx {
		ctx, cancel := context.WithTimeout(context.Background(), RPCTimeout)
		err := conn.stream.Send(ctx, env)
		cancel()
		if err != nil {
			conn.fail(fmt.Errorf("%w: %v", xerr.ErrStreamClosed, err))
			return
		}
	}
}

// Send wraps packet in an Uplink envelope and pushes it through the
// conduit, connecting first if disconnected. Any error disconnects; the
// next Send attempts a fresh connect and register.
func (c *Conduit) Send(ctx context.Context, packet *proto.PacketRouterPacketUpV1) error {
	c.mu.Lock()
	if c.conn == nil {
		if err := c.connectLocked(ctx); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	conn := c.conn
	c.mu.Unlock()

	select {
	case conn.upTx <- &proto.EnvelopeUp{Packet: packet}:
		return nil
	case <-conn.failed:
		c.disconnect(conn)
		return conn.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv reads one downstream envelope. While disconnected it waits on the
// conduit's wake channel instead of parking on ctx alone, so a reconnect
// driven by a concurrent Send (connectLocked closes and replaces wake on
// every successful connect) unblocks it immediately instead of leaving the
// downlink path dead until shutdown.
func (c *Conduit) Recv(ctx context.Context) (*proto.PacketRouterPacketDownV1, error) {
	for {
		c.mu.Lock()
		conn := c.conn
		wake := c.wake
		c.mu.Unlock()

		if conn == nil {
			select {
			case <-wake:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		env, err := conn.stream.Recv(ctx)
		if err != nil {
			c.disconnect(conn)
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: %v", xerr.ErrStreamClosed, err)
		}
		if env.Packet == nil {
			return nil, xerr.ErrInvalidEnvelope
		}
		return env.Packet, nil
	}
}

// Disconnect drops the current conduit, if any. Calling it twice is a
// no-op.
func (c *Conduit) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.disconnect(conn)
	}
}

func (c *Conduit) disconnect(stale *connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != stale {
		return // already replaced or cleared by a concurrent caller
	}
	close(c.conn.upTx)
	c.conn.stream.Close()
	c.conn = nil
}

// Reconnect disconnects then connects, producing a fresh stream.
func (c *Conduit) Reconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Connect(ctx)
}
