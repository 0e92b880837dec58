package proto

import "encoding/json"

// Signable is a capability over any outbound message type: after blanking
// its designated signature field(s), it can be canonically encoded and
// signed with the gateway keypair. The signature fields to blank are
// message-specific — most messages carry one, gateway-add-style
// transactions would carry several — so each implementation decides for
// itself which fields that is.
type Signable interface {
	// CanonicalBytes returns the deterministic encoding of the message with
	// every signature field treated as empty, regardless of its current
	// value.
	CanonicalBytes() ([]byte, error)
	// SetSignature writes sig into the message's primary signature field.
	SetSignature(sig []byte)
}

func (m *PacketRouterRegisterV1) CanonicalBytes() ([]byte, error) {
	blanked := *m
	blanked.Signature = nil
	return json.Marshal(blanked)
}

func (m *PacketRouterRegisterV1) SetSignature(sig []byte) { m.Signature = sig }

func (m *PacketRouterPacketUpV1) CanonicalBytes() ([]byte, error) {
	blanked := *m
	blanked.Signature = nil
	return json.Marshal(blanked)
}

func (m *PacketRouterPacketUpV1) SetSignature(sig []byte) { m.Signature = sig }

func (m *GatewayRegionParamsReqV1) CanonicalBytes() ([]byte, error) {
	blanked := *m
	blanked.Signature = nil
	return json.Marshal(blanked)
}

func (m *GatewayRegionParamsReqV1) SetSignature(sig []byte) { m.Signature = sig }

func (m *RandomPeerReqV1) CanonicalBytes() ([]byte, error) {
	blanked := *m
	blanked.Signature = nil
	return json.Marshal(blanked)
}

func (m *RandomPeerReqV1) SetSignature(sig []byte) { m.Signature = sig }

func (m *PoCEntropyReqV1) CanonicalBytes() ([]byte, error) {
	blanked := *m
	blanked.Signature = nil
	return json.Marshal(blanked)
}

func (m *PoCEntropyReqV1) SetSignature(sig []byte) { m.Signature = sig }

func (m *LoraBeaconReportReqV1) CanonicalBytes() ([]byte, error) {
	blanked := *m
	blanked.Signature = nil
	return json.Marshal(blanked)
}

func (m *LoraBeaconReportReqV1) SetSignature(sig []byte) { m.Signature = sig }

func (m *LoraWitnessReportReqV1) CanonicalBytes() ([]byte, error) {
	blanked := *m
	blanked.Signature = nil
	return json.Marshal(blanked)
}

func (m *LoraWitnessReportReqV1) SetSignature(sig []byte) { m.Signature = sig }
