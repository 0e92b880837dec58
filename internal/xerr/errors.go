// Package xerr groups the agent's error taxonomy: config, encode/decode,
// service, region, beacon, system, and crypto failures, so callers can branch
// on category rather than string-matching messages.
package xerr

import "errors"

// Config errors are fatal at process startup.
var (
	ErrBadConfig       = errors.New("config: invalid configuration")
	ErrUnresolvableURI = errors.New("config: unresolvable uri")
	ErrMissingKey      = errors.New("config: missing gateway key")
)

// Decode errors drop a single frame or message; never fatal.
var (
	ErrInvalidEnvelope = errors.New("decode: invalid envelope variant")
	ErrDecode          = errors.New("decode: malformed payload")
)

// Service errors cause conduit disconnects; the Router retries on next send.
var (
	ErrStreamClosed       = errors.New("service: rpc stream closed")
	ErrChannelClosed      = errors.New("service: channel closed")
	ErrNoService          = errors.New("service: no service available")
	ErrClientDisconnected = errors.New("service: local client disconnected")
)

// Region errors are surfaced to the beacon-construction caller.
var (
	ErrNoRegionTxPower = errors.New("region: no tx power configured for region")
	ErrNoDataRate      = errors.New("region: no datarate for payload size")
)

// Beacon errors cause the Beaconer to log and skip the current cycle.
var (
	ErrInvalidVersion        = errors.New("beacon: invalid entropy version")
	ErrInvalidBeaconDataRate = errors.New("beacon: invalid datarate for beacon payload")
)

// System errors are rare and logged, never fatal.
var ErrClock = errors.New("system: clock error")

// Crypto errors drop the outgoing message being signed.
var ErrSigningFailed = errors.New("crypto: signing failed")
