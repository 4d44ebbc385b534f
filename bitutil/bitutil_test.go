package bitutil

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

func TestSignExtend(t *testing.T) {
	assert.Equal(t, SignExtend8(0x7F), int16(127))
	assert.Equal(t, SignExtend8(0x80), int16(-128))
	assert.Equal(t, SignExtend8(0xFF), int16(-1))

	assert.Equal(t, SignExtend16(0x7FFF), int32(32767))
	assert.Equal(t, SignExtend16(0x8000), int32(-32768))
}

func TestDecomposeComposeRoundtrip(t *testing.T) {
	f := func(v uint32, k uint8) bool {
		kk := int(k%4) + 1
		got := Compose(Decompose(uint64(v), kk))
		want := uint64(v) % (uint64(1) << uint(8*kk))
		return got == want
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

// TestComposeMatchesDRegisterLayout checks the byte order cpu.Registers.D
// relies on: Compose([low, high]) == high<<8 | low.
func TestComposeMatchesDRegisterLayout(t *testing.T) {
	assert.Equal(t, uint64(0xAB12), Compose([]byte{0x12, 0xAB}))
	assert.Equal(t, []byte{0x12, 0xAB}, Decompose(0xAB12, 2))
}
