// Package region models a region's radio rules — its channel plan,
// selectable datarates, and maximum conducted transmit power — and the
// background task that keeps those rules fresh from the cloud configuration
// service.
package region

import (
	"fmt"

	"github.com/loragw/gateway-agent/internal/xerr"
)

// ChannelParam describes one channel in a region's frequency plan.
type ChannelParam struct {
	ChannelFrequency uint32 // Hz
	Bandwidth        uint32 // Hz
	MaxEIRP          int32  // dBm
}

// Datarate names one selectable spreading-factor/bandwidth combination and
// the largest payload, in bytes, it can carry.
type Datarate struct {
	SpreadingFactor uint32
	Bandwidth       uint32
	MaxPayloadSize  uint32
}

// Params is an ordered sequence of per-channel parameter records plus the
// selectable datarates and tx power for one region. The zero value is never
// "active"; Params is non-empty whenever the record is considered active,
// and the default instance built by NewDefault for a configured region is
// always valid.
type Params struct {
	Region     string
	Channels   []ChannelParam
	Datarates  []Datarate // ascending by MaxPayloadSize
	ConductedW int32       // dBm; <0 means "not configured"
}

// NewDefault returns the always-valid default Params for region, used to
// seed the broadcast-latest channel before the first successful fetch.
func NewDefault(region string, channels []ChannelParam, datarates []Datarate, conductedW int32) Params {
	return Params{
		Region:     region,
		Channels:   channels,
		Datarates:  datarates,
		ConductedW: conductedW,
	}
}

// Active reports whether p has a non-empty channel plan.
func (p Params) Active() bool {
	return len(p.Channels) > 0
}

// Equal reports value equality between p and o, used by the Region Watcher
// to decide whether a freshly fetched value is worth publishing.
func (p Params) Equal(o Params) bool {
	if p.Region != o.Region || p.ConductedW != o.ConductedW {
		return false
	}
	if len(p.Channels) != len(o.Channels) || len(p.Datarates) != len(o.Datarates) {
		return false
	}
	for i := range p.Channels {
		if p.Channels[i] != o.Channels[i] {
			return false
		}
	}
	for i := range p.Datarates {
		if p.Datarates[i] != o.Datarates[i] {
			return false
		}
	}
	return true
}

// SelectDatarate maps a payload size to a datarate using the region's
// spreading-factor/bandwidth table: the narrowest datarate whose
// MaxPayloadSize can carry size bytes.
func (p Params) SelectDatarate(size uint32) (Datarate, error) {
	if len(p.Datarates) == 0 {
		return Datarate{}, xerr.ErrNoDataRate
	}
	for _, dr := range p.Datarates {
		if dr.MaxPayloadSize >= size {
			return dr, nil
		}
	}
	return Datarate{}, fmt.Errorf("%w: no datarate carries %d bytes", xerr.ErrNoDataRate, size)
}

// MaxConductedPower returns the region's configured maximum conducted
// transmit power, or ErrNoRegionTxPower if none is configured.
func (p Params) MaxConductedPower() (int32, error) {
	if p.ConductedW < 0 {
		return 0, xerr.ErrNoRegionTxPower
	}
	return p.ConductedW, nil
}

// ChannelFor resolves the channel a beacon's frequency index selects: the
// channel at index (idx mod len(Channels)).
func (p Params) ChannelFor(idx uint16) (ChannelParam, error) {
	if len(p.Channels) == 0 {
		return ChannelParam{}, fmt.Errorf("region: empty channel plan")
	}
	return p.Channels[int(idx)%len(p.Channels)], nil
}
