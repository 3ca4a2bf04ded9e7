// Package clockid supplies the monotonic-ish epoch clock, round/entity ids,
// and the deterministic hash used by the lottery seed, so every other
// component shares one notion of "now" and one id scheme.
package clockid

import (
	"time"

	"github.com/google/uuid"
)

// NowUnix returns whole seconds since the epoch, UTC.
func NowUnix() int64 {
	return time.Now().UTC().Unix()
}

// NewID returns a fresh opaque identifier for a round or similar entity.
func NewID() string {
	return uuid.NewString()
}

// Hash32 computes the simple iterative hash used to derive the lottery
// seed: h = (h<<5) - h + c, taken over the UTF-8 bytes of s, folded to a
// non-negative 32-bit integer. Any change to this function changes every
// future lottery draw, so it must stay bit-for-bit stable.
func Hash32(s string) uint32 {
	var h int32
	for _, c := range []byte(s) {
		h = (h << 5) - h + int32(c)
	}
	return uint32(h)
}
