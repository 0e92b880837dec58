// Package beacon implements the PoC beacon generator: deterministically
// deriving a 51-byte radio frame from server and local entropy, constrained
// by the active region's channel plan, datarates, and tx power.
package beacon

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/loragw/gateway-agent/internal/entropy"
	"github.com/loragw/gateway-agent/internal/region"
	"github.com/loragw/gateway-agent/internal/xerr"
)

// PayloadSize is the fixed length of a beacon's derived payload.
const PayloadSize = 51

var idEncoding = base64.StdEncoding

// Beacon is the derived frame transmitted by a gateway as part of the PoC
// protocol, plus the parameters it was constructed under.
type Beacon struct {
	Data           [PayloadSize]byte
	Frequency      uint32
	Datarate       region.Datarate
	ConductedPower int32
	RemoteEntropy  entropy.Entropy
	LocalEntropy   entropy.Entropy
}

// New derives a Beacon from remote and local entropy under params. Given
// fixed inputs it is deterministic: two invocations produce byte-identical
// output.
func New(remote, local entropy.Entropy, params region.Params) (Beacon, error) {
	if remote.Version != local.Version || !remote.ValidVersion() {
		return Beacon{}, fmt.Errorf("%w: remote=%d local=%d", xerr.ErrInvalidVersion, remote.Version, local.Version)
	}

	seed, err := deriveSeed(remote, local)
	if err != nil {
		return Beacon{}, err
	}

	rng := newChaCha12(seed)
	raw := rng.Bytes(PayloadSize)
	var data [PayloadSize]byte
	copy(data[:], raw)

	freqIdx := binary.LittleEndian.Uint16(data[0:2])
	channel, err := params.ChannelFor(freqIdx)
	if err != nil {
		return Beacon{}, fmt.Errorf("%w: %v", xerr.ErrNoDataRate, err)
	}

	dr, err := params.SelectDatarate(PayloadSize)
	if err != nil {
		return Beacon{}, fmt.Errorf("%w", err)
	}

	power, err := params.MaxConductedPower()
	if err != nil {
		return Beacon{}, err
	}

	return Beacon{
		Data:           data,
		Frequency:      channel.ChannelFrequency,
		Datarate:       dr,
		ConductedPower: power,
		RemoteEntropy:  remote,
		LocalEntropy:   local,
	}, nil
}

// deriveSeed computes SHA-256(remote.digest || local.digest), each digest
// feeding the hasher data then timestamp in a stable little-endian encoding.
func deriveSeed(remote, local entropy.Entropy) ([32]byte, error) {
	h := sha256.New()
	if err := remote.Digest(h); err != nil {
		return [32]byte{}, fmt.Errorf("beacon: remote entropy: %w", err)
	}
	if err := local.Digest(h); err != nil {
		return [32]byte{}, fmt.Errorf("beacon: local entropy: %w", err)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// DatarateString renders a Datarate the way downstream wire messages expect
// it: "SFxBWy", with no separator (e.g. "SF7BW500000").
func DatarateString(dr region.Datarate) string {
	return fmt.Sprintf("SF%dBW%d", dr.SpreadingFactor, dr.Bandwidth)
}

// ID is the standard base64 encoding of the beacon's payload, used to
// correlate beacon and witness reports and to de-duplicate witness
// submissions.
func (b Beacon) ID() string {
	return idEncoding.EncodeToString(b.Data[:])
}
