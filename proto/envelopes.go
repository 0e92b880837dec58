// Package proto holds the wire message shapes the gateway agent exchanges
// with the cloud router and configuration services. The actual protobuf
// service/message definitions are generated and owned outside this repo
// (spec §1 treats them as external); these are the plain Go types the core
// consumes from that generated layer, carrying the same fields and oneof
// shape so the core's logic is unaffected by the concrete wire encoding.
package proto

import "time"

// EnvelopeUp is the oneof{Packet, Register} sent upstream to the router.
// Exactly one of Packet/Register is non-nil.
type EnvelopeUp struct {
	Packet   *PacketRouterPacketUpV1
	Register *PacketRouterRegisterV1
}

// EnvelopeDown is the oneof{Packet, ...} received from the router. Unknown
// variants (every field nil) must be rejected by the caller as
// xerr.ErrInvalidEnvelope.
type EnvelopeDown struct {
	Packet *PacketRouterPacketDownV1
}

// PacketRouterRegisterV1 announces this gateway to the router conduit. It
// must be the first envelope sent on a freshly opened stream.
type PacketRouterRegisterV1 struct {
	TimestampMS int64
	Gateway     []byte // public key
	Signature   []byte
}

// PacketRouterPacketUpV1 is a single LoRa uplink frame forwarded to the
// router.
type PacketRouterPacketUpV1 struct {
	Payload   []byte
	Timestamp int64
	Rssi      int32
	Snr       float32
	Frequency uint32
	Datarate  string
	Signature []byte
}

// PacketRouterPacketDownV1 is a single downlink frame the router wants
// transmitted by this gateway.
type PacketRouterPacketDownV1 struct {
	Payload   []byte
	Frequency uint32
	Datarate  string
	Timestamp int64
}

// GatewayRegionParamsReqV1 requests the current parameters for region from
// either the config service or a validator peer.
type GatewayRegionParamsReqV1 struct {
	Region    string
	Gateway   []byte
	Signature []byte
}

// GatewayRegionParamsResV1 carries the channel plan, datarates, and
// conducted power for the requested region.
type GatewayRegionParamsResV1 struct {
	Region     string
	Channels   []ChannelParamV1
	Datarates  []DatarateV1
	ConductedW int32
}

type ChannelParamV1 struct {
	ChannelFrequency uint32
	Bandwidth        uint32
	MaxEIRP          int32
}

type DatarateV1 struct {
	SpreadingFactor uint32
	Bandwidth       uint32
	MaxPayloadSize  uint32
}

// RandomPeerReqV1 / RandomPeerResV1 implement validator-mode peer selection:
// ask a seed gateway for one other service to query for region params.
type RandomPeerReqV1 struct {
	Gateway   []byte
	Signature []byte
}

type RandomPeerResV1 struct {
	URI       string
	PublicKey []byte
}

// PoCEntropyReqV1 / PoCEntropyResV1 fetch the server-contributed half of a
// beacon seed from the router.
type PoCEntropyReqV1 struct {
	Gateway   []byte
	Signature []byte
}

type PoCEntropyResV1 struct {
	Version   uint32
	Data      []byte
	Timestamp int64 // unix nanoseconds
}

// LoraBeaconReportReqV1 is the signed report submitted by the gateway that
// transmitted a beacon.
type LoraBeaconReportReqV1 struct {
	Data           []byte
	Frequency      uint32
	Datarate       string
	ConductedPower int32
	RemoteEntropy  []byte
	LocalEntropy   []byte
	Timestamp      int64 // ns, stamped at report construction
	Signature      []byte
}

// LoraWitnessReportReqV1 is the signed report submitted by a gateway that
// received (witnessed) another gateway's beacon.
type LoraWitnessReportReqV1 struct {
	Data      []byte // the beacon payload observed
	Timestamp int64  // ns
	Rssi      int32
	Snr       float32
	Frequency uint32
	Datarate  string
	Gateway   []byte
	Signature []byte
}

// Now returns the current time truncated to nanoseconds, matching the
// timestamp resolution used across the wire messages above.
func Now() int64 {
	return time.Now().UnixNano()
}
