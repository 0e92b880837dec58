package beacon

import (
	"github.com/loragw/gateway-agent/internal/region"
	"github.com/loragw/gateway-agent/proto"
)

// Report copies b's fields into a LoraBeaconReportReqV1 and stamps the
// report's timestamp at construction time. The signature field is left
// empty for the signing step to fill.
func (b Beacon) Report() *proto.LoraBeaconReportReqV1 {
	return &proto.LoraBeaconReportReqV1{
		Data:           append([]byte(nil), b.Data[:]...),
		Frequency:      b.Frequency,
		Datarate:       DatarateString(b.Datarate),
		ConductedPower: b.ConductedPower,
		RemoteEntropy:  append([]byte(nil), b.RemoteEntropy.Data...),
		LocalEntropy:   append([]byte(nil), b.LocalEntropy.Data...),
		Timestamp:      proto.Now(),
	}
}

// WitnessReport builds the report a gateway submits after observing another
// gateway's beacon over the radio. gatewayPub identifies the witnessing
// gateway; the beacon's own signature is not required to witness it.
func WitnessReport(data []byte, frequency uint32, datarate region.Datarate, rssi int32, snr float32, gatewayPub []byte) *proto.LoraWitnessReportReqV1 {
	return &proto.LoraWitnessReportReqV1{
		Data:      append([]byte(nil), data...),
		Timestamp: proto.Now(),
		Rssi:      rssi,
		Snr:       snr,
		Frequency: frequency,
		Datarate:  DatarateString(datarate),
		Gateway:   append([]byte(nil), gatewayPub...),
	}
}
