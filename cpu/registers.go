package cpu

// Package cpu implements the Motorola 6809 microprocessor core: the
// register file, condition codes, indexed/direct/extended/relative
// addressing, the interrupt sequences, and the two-phase (start/end)
// cycle-accurate state machine that drives it all one bus cycle at a time.

import "m6809sim/bitutil"

// Registers is the full 6809 register file (spec.md §3, §4.7). D is not
// stored separately — it is always read/written as the A:B concatenation.
type Registers struct {
	A, B       byte
	X, Y, U, S uint16
	DP         byte
	PC         uint16
	CC         byte
}

// D returns the 16-bit concatenation of A (high) and B (low).
func (r Registers) D() uint16 { return uint16(bitutil.Compose([]byte{r.B, r.A})) }

// SetD writes both halves of D at once.
func (r *Registers) SetD(v uint16) {
	b := bitutil.Decompose(uint64(v), 2)
	r.B, r.A = b[0], b[1]
}

// Condition code bits, MSB to LSB (spec.md §3, §4.7).
const (
	ccE byte = 1 << 7 // Entire: full register frame was stacked
	ccF byte = 1 << 6 // FIRQ mask
	ccH byte = 1 << 5 // Half-carry (nibble 3 -> 4 carry out of ADDA/ADCA)
	ccI byte = 1 << 4 // IRQ mask
	ccN byte = 1 << 3 // Negative
	ccZ byte = 1 << 2 // Zero
	ccV byte = 1 << 1 // Overflow
	ccC byte = 1 << 0 // Carry
)

func (r Registers) flag(bit byte) bool { return r.CC&bit != 0 }

func (r *Registers) setFlag(bit byte, v bool) {
	if v {
		r.CC |= bit
	} else {
		r.CC &^= bit
	}
}

// setNZ8 sets N and Z from an 8-bit result.
func (r *Registers) setNZ8(v byte) {
	r.setFlag(ccN, v&0x80 != 0)
	r.setFlag(ccZ, v == 0)
}

// setNZ16 sets N and Z from a 16-bit result.
func (r *Registers) setNZ16(v uint16) {
	r.setFlag(ccN, v&0x8000 != 0)
	r.setFlag(ccZ, v == 0)
}
