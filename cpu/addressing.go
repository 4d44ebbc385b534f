package cpu

import "m6809sim/bitutil"

// AddressingMode names the six shapes of AddressingData (spec.md §3, §4.8).
type AddressingMode int

const (
	ModeInherent AddressingMode = iota
	ModeImmediate
	ModeDirect
	ModeExtended
	ModeRelative
	ModeIndexed
)

// indexedRegister names the four registers selectable by an indexed
// postbyte's bits 6-5 (spec.md §4.8).
type indexedRegister int

const (
	idxX indexedRegister = iota
	idxY
	idxU
	idxS
)

func (c *Cpu) indexedBaseRegister(sel indexedRegister) uint16 {
	switch sel {
	case idxX:
		return c.regs.X
	case idxY:
		return c.regs.Y
	case idxU:
		return c.regs.U
	default:
		return c.regs.S
	}
}

func (c *Cpu) setIndexedBaseRegister(sel indexedRegister, v uint16) {
	switch sel {
	case idxX:
		c.regs.X = v
	case idxY:
		c.regs.Y = v
	case idxU:
		c.regs.U = v
	default:
		c.regs.S = v
	}
}

// indexedPostbyte is the decoded shape of one postbyte (spec.md §3
// "AddressingData: indexed{address, parsedPostbyte}").
type indexedPostbyte struct {
	raw        byte
	register   indexedRegister
	indirect   bool
	extraBytes int // additional address bytes the decode must still fetch
	pcRelative bool
	// action identifies which of the §4.8 table rows this postbyte selects;
	// -1 marks the "5-bit signed offset, never indirect" shape.
	action int
}

const (
	actionIncr1  = 0x0
	actionIncr2  = 0x1
	actionDecr1  = 0x2
	actionDecr2  = 0x3
	actionZero   = 0x4
	actionB      = 0x5
	actionA      = 0x6
	actionOff8   = 0x8
	actionOff16  = 0x9
	actionD      = 0xB
	actionPCR8   = 0xC
	actionPCR16  = 0xD
	actionExtInd = 0xF
)

// decodeIndexedPostbyte implements the spec.md §4.8 table. ok is false for
// an action code the table marks invalid.
func decodeIndexedPostbyte(raw byte) (indexedPostbyte, bool) {
	reg := indexedRegister((raw >> 5) & 0x3)

	if raw&0x80 == 0 {
		// 5-bit signed offset, bits 6-5 register, bits 4-0 offset.
		return indexedPostbyte{raw: raw, register: reg, action: -1}, true
	}

	indirect := raw&0x10 != 0
	action := int(raw & 0x0F)

	switch action {
	case actionIncr1, actionIncr2, actionDecr1, actionDecr2, actionZero, actionB, actionA, actionD:
		return indexedPostbyte{raw: raw, register: reg, indirect: indirect, action: action}, true
	case actionOff8, actionPCR8:
		return indexedPostbyte{raw: raw, register: reg, indirect: indirect, action: action, extraBytes: 1, pcRelative: action == actionPCR8}, true
	case actionOff16, actionPCR16, actionExtInd:
		return indexedPostbyte{raw: raw, register: reg, indirect: indirect, action: action, extraBytes: 2, pcRelative: action == actionPCR16}, true
	default:
		return indexedPostbyte{}, false
	}
}

// resolveIndexedAddress computes the (pre-indirection) effective address
// once any extra bytes the postbyte demanded have been fetched. extra holds
// those bytes, most-significant first, or is empty/one byte as per
// extraBytes. Auto increment/decrement mutate the selected register.
func (c *Cpu) resolveIndexedAddress(pb indexedPostbyte, extra []byte) uint16 {
	if pb.action == -1 {
		offset := int32(pb.raw & 0x1F)
		if offset >= 0x10 {
			offset -= 0x20
		}
		base := c.indexedBaseRegister(pb.register)
		return uint16(int32(base) + int32(offset))
	}

	switch pb.action {
	case actionIncr1:
		base := c.indexedBaseRegister(pb.register)
		c.setIndexedBaseRegister(pb.register, base+1)
		return base
	case actionIncr2:
		base := c.indexedBaseRegister(pb.register)
		c.setIndexedBaseRegister(pb.register, base+2)
		return base
	case actionDecr1:
		base := c.indexedBaseRegister(pb.register) - 1
		c.setIndexedBaseRegister(pb.register, base)
		return base
	case actionDecr2:
		base := c.indexedBaseRegister(pb.register) - 2
		c.setIndexedBaseRegister(pb.register, base)
		return base
	case actionZero:
		return c.indexedBaseRegister(pb.register)
	case actionB:
		return c.indexedBaseRegister(pb.register) + uint16(int32(bitutil.SignExtend8(c.regs.B)))
	case actionA:
		return c.indexedBaseRegister(pb.register) + uint16(int32(bitutil.SignExtend8(c.regs.A)))
	case actionD:
		return c.indexedBaseRegister(pb.register) + c.regs.D()
	case actionOff8:
		return c.indexedBaseRegister(pb.register) + uint16(int32(bitutil.SignExtend8(extra[0])))
	case actionOff16:
		off := int32(bitutil.SignExtend16(uint16(extra[0])<<8 | uint16(extra[1])))
		return c.indexedBaseRegister(pb.register) + uint16(off)
	case actionPCR8:
		return c.regs.PC + uint16(int32(bitutil.SignExtend8(extra[0])))
	case actionPCR16:
		off := int32(bitutil.SignExtend16(uint16(extra[0])<<8 | uint16(extra[1])))
		return c.regs.PC + uint16(off)
	case actionExtInd:
		return uint16(extra[0])<<8 | uint16(extra[1])
	default:
		return 0
	}
}
