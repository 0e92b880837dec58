// Package forwarder implements the gateway.Forwarder interface over the
// local UDP socket the Semtech packet forwarder binds to. The forwarder
// wire protocol (PUSH_DATA/PULL_DATA framing, JSON payload shape, LoRaWAN
// frame parsing) is external to this agent; this package only owns the
// socket and the datagram-to-UplinkFrame boundary the Gateway task consumes.
package forwarder

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/loragw/gateway-agent/internal/gateway"
	"github.com/loragw/gateway-agent/internal/log"
	"github.com/loragw/gateway-agent/proto"
)

// UDP is a minimal stand-in for the Semtech forwarder protocol, framing each
// datagram as an 8-byte big-endian timestamp header followed by the payload: real deployments run the actual forwarder daemon against this
// socket, which is out of scope here (spec: packet-forwarder transport is
// external).
type UDP struct {
	conn     *net.UDPConn
	peer     *net.UDPAddr
	uplinkRx chan gateway.UplinkFrame
	log      log.Logger
}

var _ gateway.Forwarder = (*UDP)(nil)

// Listen binds addr and starts the read loop, delivering decoded uplinks on
// the channel returned by Uplinks.
func Listen(addr string) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("forwarder: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("forwarder: listen %q: %w", addr, err)
	}
	u := &UDP{
		conn:     conn,
		uplinkRx: make(chan gateway.UplinkFrame, 64),
		log:      log.DefaultLogger().Named("forwarder"),
	}
	go u.readLoop()
	return u, nil
}

// Uplinks implements gateway.Forwarder.
func (u *UDP) Uplinks() <-chan gateway.UplinkFrame {
	return u.uplinkRx
}

func (u *UDP) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, addr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			close(u.uplinkRx)
			return
		}
		u.peer = addr
		frame, ok := decodeUplink(buf[:n])
		if !ok {
			u.log.Debugw("dropping malformed forwarder datagram", "bytes", n)
			continue
		}
		select {
		case u.uplinkRx <- frame:
		default:
			u.log.Warnw("uplink queue full, dropping frame")
		}
	}
}

// decodeUplink extracts the fields the core needs from a raw datagram. The
// header this package speaks — an 8-byte big-endian timestamp followed by
// the radio payload — is a placeholder for the real Semtech frame, which
// carries datarate/rssi/snr in a JSON PUSH_DATA body external callers parse
// before this boundary.
func decodeUplink(b []byte) (gateway.UplinkFrame, bool) {
	if len(b) < 8 {
		return gateway.UplinkFrame{}, false
	}
	ts := int64(binary.BigEndian.Uint64(b[:8]))
	return gateway.UplinkFrame{
		Payload:   append([]byte(nil), b[8:]...),
		Timestamp: ts,
	}, true
}

// SendDownlink implements gateway.Forwarder by writing the downlink payload
// back to the last peer the forwarder datagram arrived from.
func (u *UDP) SendDownlink(ctx context.Context, pkt *proto.PacketRouterPacketDownV1) error {
	return u.write(pkt.Payload, pkt.Timestamp)
}

// SendBeacon implements gateway.Forwarder.
func (u *UDP) SendBeacon(ctx context.Context, data []byte, frequency uint32, datarate string) error {
	return u.write(data, 0)
}

func (u *UDP) write(payload []byte, ts int64) error {
	if u.peer == nil {
		return fmt.Errorf("forwarder: no peer has contacted the socket yet")
	}
	hdr := make([]byte, 8)
	binary.BigEndian.PutUint64(hdr, uint64(ts))
	_, err := u.conn.WriteToUDP(append(hdr, payload...), u.peer)
	return err
}

// Close releases the socket.
func (u *UDP) Close() error {
	return u.conn.Close()
}
