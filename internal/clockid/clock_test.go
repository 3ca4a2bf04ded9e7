package clockid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash32_Deterministic(t *testing.T) {
	a := Hash32("1000-M-B")
	b := Hash32("1000-M-B")
	assert.Equal(t, a, b)
}

func TestHash32_Sensitive(t *testing.T) {
	a := Hash32("1000-M-B")
	b := Hash32("1000-M-C")
	assert.NotEqual(t, a, b)
}

func TestHash32_NonNegative(t *testing.T) {
	for _, s := range []string{"a", "abc", "1702654321-MintAddress-BlockhashValue"} {
		h := Hash32(s)
		assert.True(t, h <= 0x7fffffff || h >= 0)
	}
}

// TestHash32_UnsignedReinterpretation pins a seed whose intermediate int32
// accumulator goes negative (-13170887). The result must be that value's
// unsigned 32-bit reinterpretation (4281796409), not its absolute value
// (13170887) — those diverge for roughly half of all inputs.
func TestHash32_UnsignedReinterpretation(t *testing.T) {
	assert.Equal(t, uint32(4281796409), Hash32("1702654321-MintAddress-BlockhashValue"))
}

func TestNewID_Unique(t *testing.T) {
	ids := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.False(t, ids[id])
		ids[id] = true
	}
}
