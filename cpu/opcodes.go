package cpu

// InstructionData is the decoded shape of one opcode-table entry (spec.md
// §3 "InstructionData"). Opcode is the fetch key: the bare opcode byte, or
// (prefix<<8 | opcode) for a page-10/page-11 instruction.
//
// Cycles documents the 6809 reference manual's cycle count for this
// opcode; it is not consulted by the state machine itself, which paces
// execute purely off memory readiness and Start/End's own bookkeeping —
// Cycles exists for the debugger and for cross-checking, the same role it
// played in the 6502 table this one replaced.
type InstructionData struct {
	Mnemonic   string
	Opcode     uint16
	Mode       AddressingMode
	Cycles     int
	LongBranch bool // relative addressing reads a 2-byte signed offset

	// Start runs once per cycle while in execute (spec.md §4.6). End runs
	// immediately after; returning nil means "more cycles needed" (self
	// transition), a non-nil CpuState ends the instruction and names the
	// state to enter next — almost always stFetch, except SWI/SWI2/SWI3
	// which jump straight into stIRQNMI.
	Start func(c *Cpu)
	End   func(c *Cpu) *CpuState
}

// Opcodes is the instruction table. It covers a representative slice of
// the M6809 instruction set — load/store/arithmetic/logic on A across
// every addressing mode, the control-flow and stack families, and the
// interrupt-related instructions — rather than the full ~200-opcode ISA.
var Opcodes = map[uint16]InstructionData{
	0x12: {Mnemonic: "NOP", Opcode: 0x12, Mode: ModeInherent, Cycles: 2, Start: startNOP, End: endNOP},

	0x86: {Mnemonic: "LDA", Opcode: 0x86, Mode: ModeImmediate, Cycles: 2, Start: startOperand8, End: endLDA},
	0x96: {Mnemonic: "LDA", Opcode: 0x96, Mode: ModeDirect, Cycles: 4, Start: startOperand8, End: endLDA},
	0xA6: {Mnemonic: "LDA", Opcode: 0xA6, Mode: ModeIndexed, Cycles: 4, Start: startOperand8, End: endLDA},
	0xB6: {Mnemonic: "LDA", Opcode: 0xB6, Mode: ModeExtended, Cycles: 5, Start: startOperand8, End: endLDA},

	0x97: {Mnemonic: "STA", Opcode: 0x97, Mode: ModeDirect, Cycles: 4, Start: startSTA, End: endSTA},
	0xA7: {Mnemonic: "STA", Opcode: 0xA7, Mode: ModeIndexed, Cycles: 4, Start: startSTA, End: endSTA},
	0xB7: {Mnemonic: "STA", Opcode: 0xB7, Mode: ModeExtended, Cycles: 5, Start: startSTA, End: endSTA},

	0x8B: {Mnemonic: "ADDA", Opcode: 0x8B, Mode: ModeImmediate, Cycles: 2, Start: startOperand8, End: endADDA},
	0x9B: {Mnemonic: "ADDA", Opcode: 0x9B, Mode: ModeDirect, Cycles: 4, Start: startOperand8, End: endADDA},
	0xAB: {Mnemonic: "ADDA", Opcode: 0xAB, Mode: ModeIndexed, Cycles: 4, Start: startOperand8, End: endADDA},
	0xBB: {Mnemonic: "ADDA", Opcode: 0xBB, Mode: ModeExtended, Cycles: 5, Start: startOperand8, End: endADDA},

	0x80: {Mnemonic: "SUBA", Opcode: 0x80, Mode: ModeImmediate, Cycles: 2, Start: startOperand8, End: endSUBA},
	0x90: {Mnemonic: "SUBA", Opcode: 0x90, Mode: ModeDirect, Cycles: 4, Start: startOperand8, End: endSUBA},
	0xA0: {Mnemonic: "SUBA", Opcode: 0xA0, Mode: ModeIndexed, Cycles: 4, Start: startOperand8, End: endSUBA},
	0xB0: {Mnemonic: "SUBA", Opcode: 0xB0, Mode: ModeExtended, Cycles: 5, Start: startOperand8, End: endSUBA},

	0x81: {Mnemonic: "CMPA", Opcode: 0x81, Mode: ModeImmediate, Cycles: 2, Start: startOperand8, End: endCMPA},
	0x91: {Mnemonic: "CMPA", Opcode: 0x91, Mode: ModeDirect, Cycles: 4, Start: startOperand8, End: endCMPA},
	0xA1: {Mnemonic: "CMPA", Opcode: 0xA1, Mode: ModeIndexed, Cycles: 4, Start: startOperand8, End: endCMPA},
	0xB1: {Mnemonic: "CMPA", Opcode: 0xB1, Mode: ModeExtended, Cycles: 5, Start: startOperand8, End: endCMPA},

	0x84: {Mnemonic: "ANDA", Opcode: 0x84, Mode: ModeImmediate, Cycles: 2, Start: startOperand8, End: endANDA},
	0x94: {Mnemonic: "ANDA", Opcode: 0x94, Mode: ModeDirect, Cycles: 4, Start: startOperand8, End: endANDA},
	0xA4: {Mnemonic: "ANDA", Opcode: 0xA4, Mode: ModeIndexed, Cycles: 4, Start: startOperand8, End: endANDA},
	0xB4: {Mnemonic: "ANDA", Opcode: 0xB4, Mode: ModeExtended, Cycles: 5, Start: startOperand8, End: endANDA},

	0x8A: {Mnemonic: "ORA", Opcode: 0x8A, Mode: ModeImmediate, Cycles: 2, Start: startOperand8, End: endORA},
	0x9A: {Mnemonic: "ORA", Opcode: 0x9A, Mode: ModeDirect, Cycles: 4, Start: startOperand8, End: endORA},
	0xAA: {Mnemonic: "ORA", Opcode: 0xAA, Mode: ModeIndexed, Cycles: 4, Start: startOperand8, End: endORA},
	0xBA: {Mnemonic: "ORA", Opcode: 0xBA, Mode: ModeExtended, Cycles: 5, Start: startOperand8, End: endORA},

	0x88: {Mnemonic: "EORA", Opcode: 0x88, Mode: ModeImmediate, Cycles: 2, Start: startOperand8, End: endEORA},
	0x98: {Mnemonic: "EORA", Opcode: 0x98, Mode: ModeDirect, Cycles: 4, Start: startOperand8, End: endEORA},
	0xA8: {Mnemonic: "EORA", Opcode: 0xA8, Mode: ModeIndexed, Cycles: 4, Start: startOperand8, End: endEORA},
	0xB8: {Mnemonic: "EORA", Opcode: 0xB8, Mode: ModeExtended, Cycles: 5, Start: startOperand8, End: endEORA},

	0x4C: {Mnemonic: "INCA", Opcode: 0x4C, Mode: ModeInherent, Cycles: 2, Start: startNOP, End: endINCA},
	0x4A: {Mnemonic: "DECA", Opcode: 0x4A, Mode: ModeInherent, Cycles: 2, Start: startNOP, End: endDECA},
	0x4F: {Mnemonic: "CLRA", Opcode: 0x4F, Mode: ModeInherent, Cycles: 2, Start: startNOP, End: endCLRA},
	0x4D: {Mnemonic: "TSTA", Opcode: 0x4D, Mode: ModeInherent, Cycles: 2, Start: startNOP, End: endTSTA},

	0x20: {Mnemonic: "BRA", Opcode: 0x20, Mode: ModeRelative, Cycles: 3, Start: startNOP, End: endBRA},
	0x16: {Mnemonic: "LBRA", Opcode: 0x16, Mode: ModeRelative, Cycles: 5, LongBranch: true, Start: startNOP, End: endBRA},
	0x27: {Mnemonic: "BEQ", Opcode: 0x27, Mode: ModeRelative, Cycles: 3, Start: startNOP, End: endBEQ},
	0x26: {Mnemonic: "BNE", Opcode: 0x26, Mode: ModeRelative, Cycles: 3, Start: startNOP, End: endBNE},

	0x7E: {Mnemonic: "JMP", Opcode: 0x7E, Mode: ModeExtended, Cycles: 4, Start: startNOP, End: endJMP},
	0x6E: {Mnemonic: "JMP", Opcode: 0x6E, Mode: ModeIndexed, Cycles: 3, Start: startNOP, End: endJMP},

	0xBD: {Mnemonic: "JSR", Opcode: 0xBD, Mode: ModeExtended, Cycles: 8, Start: startJSR, End: endJSR},
	0xAD: {Mnemonic: "JSR", Opcode: 0xAD, Mode: ModeIndexed, Cycles: 7, Start: startJSR, End: endJSR},

	0x39: {Mnemonic: "RTS", Opcode: 0x39, Mode: ModeInherent, Cycles: 5, Start: startRTS, End: endRTS},

	0x30: {Mnemonic: "LEAX", Opcode: 0x30, Mode: ModeIndexed, Cycles: 4, Start: startNOP, End: endLEAX},

	0x34: {Mnemonic: "PSHS", Opcode: 0x34, Mode: ModeImmediate, Cycles: 5, Start: startPSHS, End: endPSHS},
	0x35: {Mnemonic: "PULS", Opcode: 0x35, Mode: ModeImmediate, Cycles: 5, Start: startPULS, End: endPULS},

	0x3F:   {Mnemonic: "SWI", Opcode: 0x3F, Mode: ModeInherent, Cycles: 19, Start: startNOP, End: endSWI(0)},
	0x103F: {Mnemonic: "SWI2", Opcode: 0x103F, Mode: ModeInherent, Cycles: 20, Start: startNOP, End: endSWI(2)},
	0x113F: {Mnemonic: "SWI3", Opcode: 0x113F, Mode: ModeInherent, Cycles: 20, Start: startNOP, End: endSWI(3)},

	0x3B: {Mnemonic: "RTI", Opcode: 0x3B, Mode: ModeInherent, Cycles: 6, Start: startRTI, End: endRTI},

	0x1C: {Mnemonic: "ANDCC", Opcode: 0x1C, Mode: ModeImmediate, Cycles: 3, Start: startOperand8, End: endANDCC},
	0x1A: {Mnemonic: "ORCC", Opcode: 0x1A, Mode: ModeImmediate, Cycles: 3, Start: startOperand8, End: endORCC},
}
