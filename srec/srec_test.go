package srec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRejectsBadChecksum(t *testing.T) {
	var got []struct {
		addr uint16
		data []byte
	}
	err := Load("S1 03 1000 12 34 DA", func(addr uint16, data []byte) {
		got = append(got, struct {
			addr uint16
			data []byte
		}{addr, data})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
	assert.Empty(t, got, "a rejected record must not reach the sink")
}

func TestLoadValidRecordCallsSink(t *testing.T) {
	var gotAddr uint16
	var gotData []byte
	err := Load("S1 04 2000 AA 31", func(addr uint16, data []byte) {
		gotAddr = addr
		gotData = data
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2000), gotAddr)
	assert.Equal(t, []byte{0xAA}, gotData)
}

func TestLoadRejectsByteCountBelowThree(t *testing.T) {
	err := Load("S1 02 2000 31", func(addr uint16, data []byte) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte count")
}

func TestLoadSkipsS0AndS9WithoutCallingSink(t *testing.T) {
	var called bool
	// Header (S0) and end-of-record (S9) with matching checksums, no data.
	err := Load("S0 03 0000 FC\nS9 03 0000 FC", func(addr uint16, data []byte) {
		called = true
	})
	require.NoError(t, err)
	assert.False(t, called, "only S1 may call the sink")
}

func TestLoadMultipleRecordsInOrder(t *testing.T) {
	var addrs []uint16
	err := Load("S1 04 2000 AA 31\nS1 03 1000 12 34 A6", func(addr uint16, data []byte) {
		addrs = append(addrs, addr)
	})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x2000, 0x1000}, addrs)
}

func TestLoadSkipsBlankLines(t *testing.T) {
	err := Load("\nS1 04 2000 AA 31\n\n", func(addr uint16, data []byte) {})
	require.NoError(t, err)
}
