package beacon

import "encoding/binary"

// chacha12 implements the reduced-round ChaCha12 stream cipher as a
// deterministic CSPRNG: seeded once from a 256-bit key (the beacon seed)
// with a zero nonce, Bytes() draws an arbitrary number of uniform bytes by
// running the block function over successive counters. golang.org/x/crypto
// only ships the full 20-round ChaCha20 construction, not the 12-round
// variant the beacon protocol specifies, so the permutation core is
// reproduced here rather than pulled in as a dependency that doesn't exist
// in the Go ecosystem under an importable module path.
type chacha12 struct {
	key     [8]uint32
	counter uint32
	block   [64]byte
	pos     int
}

var chachaConstants = [4]uint32{0x61707865, 0x3320646e, 0x79622d32, 0x6b206574}

func newChaCha12(seed [32]byte) *chacha12 {
	c := &chacha12{pos: 64}
	for i := 0; i < 8; i++ {
		c.key[i] = binary.LittleEndian.Uint32(seed[i*4 : i*4+4])
	}
	return c
}

func quarterRound(a, b, c, d *uint32) {
	*a += *b
	*d ^= *a
	*d = (*d << 16) | (*d >> 16)
	*c += *d
	*b ^= *c
	*b = (*b << 12) | (*b >> 20)
	*a += *b
	*d ^= *a
	*d = (*d << 8) | (*d >> 24)
	*c += *d
	*b ^= *c
	*b = (*b << 7) | (*b >> 25)
}

func (c *chacha12) generateBlock() {
	var state [16]uint32
	copy(state[0:4], chachaConstants[:])
	copy(state[4:12], c.key[:])
	state[12] = c.counter
	// nonce is zero: the beacon seed alone determines the stream.
	state[13], state[14], state[15] = 0, 0, 0

	working := state
	for i := 0; i < 6; i++ { // 6 double-rounds == 12 rounds
		quarterRound(&working[0], &working[4], &working[8], &working[12])
		quarterRound(&working[1], &working[5], &working[9], &working[13])
		quarterRound(&working[2], &working[6], &working[10], &working[14])
		quarterRound(&working[3], &working[7], &working[11], &working[15])
		quarterRound(&working[0], &working[5], &working[10], &working[15])
		quarterRound(&working[1], &working[6], &working[11], &working[12])
		quarterRound(&working[2], &working[7], &working[8], &working[13])
		quarterRound(&working[3], &working[4], &working[9], &working[14])
	}
	for i := range working {
		working[i] += state[i]
	}
	for i, w := range working {
		binary.LittleEndian.PutUint32(c.block[i*4:i*4+4], w)
	}
	c.counter++
	c.pos = 0
}

// Bytes draws n uniformly distributed bytes from the keystream.
func (c *chacha12) Bytes(n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		if c.pos == 64 {
			c.generateBlock()
		}
		out[i] = c.block[c.pos]
		c.pos++
	}
	return out
}
