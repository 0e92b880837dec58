// Package entropy defines the versioned, timestamped byte strings that seed
// beacon generation: one contributed by the upstream router (remote) and one
// drawn locally by the gateway.
package entropy

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Supported entropy versions. Any other value is rejected by the beacon
// generator.
const (
	Version0 = uint32(0)
	Version1 = uint32(1)
)

// Entropy is an opaque byte string with a version tag and a timestamp. Two
// Entropy values compose into a beacon seed only when their Version fields
// match.
type Entropy struct {
	Version   uint32
	Data      []byte
	Timestamp time.Time
}

// ValidVersion reports whether e carries a version the beacon generator
// knows how to consume.
func (e Entropy) ValidVersion() bool {
	return e.Version == Version0 || e.Version == Version1
}

// Digest feeds e's data then its timestamp, in a stable little-endian
// encoding, into the running hash h. Two Entropy values digested this way
// and concatenated form the beacon seed input (see beacon.New).
func (e Entropy) Digest(h interface{ Write([]byte) (int, error) }) error {
	if _, err := h.Write(e.Data); err != nil {
		return fmt.Errorf("entropy: digest data: %w", err)
	}
	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], uint64(e.Timestamp.UnixNano()))
	if _, err := h.Write(tsBuf[:]); err != nil {
		return fmt.Errorf("entropy: digest timestamp: %w", err)
	}
	return nil
}
