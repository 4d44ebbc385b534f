package cpu

import (
	"log"

	"m6809sim/bitutil"
	"m6809sim/kernel"
)

// CpuState is the state-machine tag (spec.md §3, §4.6).
type CpuState int

const (
	stFail CpuState = iota
	stResetting
	stFetch
	stDirect
	stIndexedPostbyte
	stIndexedMain
	stIndexedIndirect
	stRelative
	stExtended
	stIRQNMI
	stFIRQ
	stExecute
	stCustomFn
)

func (s CpuState) String() string {
	switch s {
	case stFail:
		return "fail"
	case stResetting:
		return "resetting"
	case stFetch:
		return "fetch"
	case stDirect:
		return "direct"
	case stIndexedPostbyte:
		return "indexed_postbyte"
	case stIndexedMain:
		return "indexed_main"
	case stIndexedIndirect:
		return "indexed_indirect"
	case stRelative:
		return "relative"
	case stExtended:
		return "extended"
	case stIRQNMI:
		return "irqnmi"
	case stFIRQ:
		return "firq"
	case stExecute:
		return "execute"
	case stCustomFn:
		return "customfn"
	default:
		return "unknown"
	}
}

// Addressing is the resolved AddressingData carried from an addressing
// state into execute (spec.md §3 "AddressingData").
type Addressing struct {
	Mode    AddressingMode
	Address uint16 // meaningful for Direct/Extended/Indexed/Relative
}

// indexedCtx is the indexed_postbyte/_main/_indirect states' shared scratch.
type indexedCtx struct {
	pb      indexedPostbyte
	extra   []byte
	address uint16
}

// irqCtx is the irqnmi/firq states' scratch.
type irqCtx struct {
	kind   string // "nmi", "irq", "firq", "swi", "swi2", "swi3"
	steps  []pushStep
	vector uint16
}

// cycleStart is the subcycle-0 entry point (spec.md §4.6 "start").
func (c *Cpu) cycleStart(cycle, subcycle int) kernel.Awaitable {
	switch c.state {
	case stResetting:
		c.startResetting()
	case stFetch:
		c.startFetch()
	case stDirect:
		c.startDirect()
	case stExtended:
		c.startExtended()
	case stRelative:
		c.startRelative()
	case stIndexedPostbyte:
		c.startIndexedPostbyte()
	case stIndexedMain:
		c.startIndexedMain()
	case stIndexedIndirect:
		c.startIndexedIndirect()
	case stExecute:
		c.startExecute()
	case stIRQNMI:
		c.startIRQNMI()
	case stFIRQ:
		c.startFIRQ()
	case stCustomFn:
		c.startCustomFn()
	}
	return nil
}

// cycleEnd is the subcycle-100 entry point (spec.md §4.6 "end").
func (c *Cpu) cycleEnd(cycle, subcycle int) kernel.Awaitable {
	var next *CpuState
	switch c.state {
	case stResetting:
		next = c.endResetting()
	case stFetch:
		next = c.endFetch()
	case stDirect:
		next = c.endDirect()
	case stExtended:
		next = c.endExtended()
	case stRelative:
		next = c.endRelative()
	case stIndexedPostbyte:
		next = c.endIndexedPostbyte()
	case stIndexedMain:
		next = c.endIndexedMain()
	case stIndexedIndirect:
		next = c.endIndexedIndirect()
	case stExecute:
		next = c.endExecute()
	case stIRQNMI:
		next = c.endIRQNMI()
	case stFIRQ:
		next = c.endFIRQ()
	case stCustomFn:
		next = c.endCustomFn()
	}
	if next != nil {
		c.state = *next
		c.ticksOnState = 0
		c.ctx = nil
	} else {
		c.ticksOnState++
	}
	return nil
}

func stateRef(s CpuState) *CpuState { return &s }

// --- resetting ---

func (c *Cpu) startResetting() {
	if c.ticksOnState == 0 {
		c.queryMemoryReadAt(c.cfg.ResetVector, 2)
	}
}

func (c *Cpu) endResetting() *CpuState {
	// Holds for a full 7 ticks regardless of how soon the vector read
	// resolves (spec.md §4.6/S2: "after signal:reset, after 7 cycles the
	// CPU emits cpu:reset_finish").
	if !c.memReady() || c.ticksOnState < 6 {
		return nil
	}
	c.regs = Registers{PC: c.memWord()}
	c.committed = c.regs
	c.facade.Emit(kernel.EvCPUResetFinish)
	c.commitRegisters()
	return stateRef(stFetch)
}

// --- fetch ---

type fetchCtx struct {
	prefix         byte // 0, 0x10, or 0x11
	opcode         byte
	dispatched     bool
	dispatchTarget CpuState
}

func (c *Cpu) startFetch() {
	if c.ticksOnState == 0 {
		c.ctx = &fetchCtx{}
		if target, ok := c.pendingDispatchTarget(); ok {
			c.ctx.(*fetchCtx).dispatched = true
			c.ctx.(*fetchCtx).dispatchTarget = target
			return
		}
		c.queryMemoryReadPC(1)
	} else {
		// ticksOnState == 1: the first byte was a page prefix; fetch the
		// real opcode byte that follows it.
		c.queryMemoryReadPC(1)
	}
}

// pendingDispatchTarget checks pending signals in priority order (spec.md
// §4.6 "Interrupt dispatch at fetch") without mutating any CPU state —
// the transition itself still flows through endFetch's ordinary return
// value, like every other state.
func (c *Cpu) pendingDispatchTarget() (CpuState, bool) {
	if c.pendingNMI {
		return stIRQNMI, true
	}
	if c.pendingFIRQ && !c.regs.flag(ccF) {
		return stFIRQ, true
	}
	if c.pendingIRQ && !c.regs.flag(ccI) {
		return stIRQNMI, true
	}
	return stFail, false
}

func (c *Cpu) endFetch() *CpuState {
	fc, _ := c.ctx.(*fetchCtx)
	if fc != nil && fc.dispatched {
		return stateRef(fc.dispatchTarget)
	}
	if !c.memReady() {
		return nil
	}
	b := c.memByte()

	if c.ticksOnState == 0 && (b == 0x10 || b == 0x11) && fc.prefix == 0 {
		fc.prefix = b
		return nil // self-transition: fetch the real opcode next tick
	}
	fc.opcode = b

	key := uint16(fc.opcode)
	if fc.prefix != 0 {
		key = uint16(fc.prefix)<<8 | uint16(fc.opcode)
	}
	instr, ok := Opcodes[key]
	if !ok {
		log.Printf("cpu %q: decode failure: unknown opcode 0x%04X, entering fail state", c.id, key)
		return stateRef(stFail)
	}
	c.instr = &instr
	c.facade.Emit(kernel.EvCPUInstructionBegin, key)

	switch instr.Mode {
	case ModeInherent, ModeImmediate:
		c.addressing = Addressing{Mode: instr.Mode}
		return stateRef(stExecute)
	case ModeDirect:
		return stateRef(stDirect)
	case ModeExtended:
		return stateRef(stExtended)
	case ModeRelative:
		return stateRef(stRelative)
	case ModeIndexed:
		return stateRef(stIndexedPostbyte)
	default:
		log.Printf("cpu %q: decode failure: opcode 0x%04X has unhandled addressing mode %v, entering fail state", c.id, key, instr.Mode)
		return stateRef(stFail)
	}
}

// --- direct ---

func (c *Cpu) startDirect() {
	if c.ticksOnState == 0 {
		c.queryMemoryReadPC(1)
	}
}

func (c *Cpu) endDirect() *CpuState {
	if !c.memReady() {
		return nil
	}
	c.addressing = Addressing{Mode: ModeDirect, Address: uint16(c.regs.DP)<<8 | uint16(c.memByte())}
	return stateRef(stExecute)
}

// --- extended ---

func (c *Cpu) startExtended() {
	if c.ticksOnState == 0 {
		c.queryMemoryReadPC(2)
	}
}

func (c *Cpu) endExtended() *CpuState {
	if !c.memReady() {
		return nil
	}
	c.addressing = Addressing{Mode: ModeExtended, Address: c.memWord()}
	return stateRef(stExecute)
}

// --- relative ---

func (c *Cpu) startRelative() {
	if c.ticksOnState == 0 {
		n := 1
		if c.instr.LongBranch {
			n = 2
		}
		c.queryMemoryReadPC(n)
	}
}

func (c *Cpu) endRelative() *CpuState {
	if !c.memReady() {
		return nil
	}
	var offset int32
	if c.instr.LongBranch {
		offset = bitutil.SignExtend16(c.memWord())
	} else {
		offset = int32(bitutil.SignExtend8(c.memByte()))
	}
	c.addressing = Addressing{Mode: ModeRelative, Address: uint16(int32(c.regs.PC) + offset)}
	return stateRef(stExecute)
}

// --- indexed ---

func (c *Cpu) startIndexedPostbyte() {
	if c.ticksOnState == 0 {
		c.queryMemoryReadPC(1)
	}
}

func (c *Cpu) endIndexedPostbyte() *CpuState {
	if !c.memReady() {
		return nil
	}
	pb, ok := decodeIndexedPostbyte(c.memByte())
	if !ok {
		log.Printf("cpu %q: decode failure: invalid indexed postbyte 0x%02X, entering fail state", c.id, c.memByte())
		return stateRef(stFail)
	}
	c.ctx = &indexedCtx{pb: pb}
	return stateRef(stIndexedMain)
}

func (c *Cpu) startIndexedMain() {
	ic := c.ctx.(*indexedCtx)
	if c.ticksOnState == 0 && ic.pb.extraBytes > 0 {
		c.queryMemoryReadPC(ic.pb.extraBytes)
	}
}

func (c *Cpu) endIndexedMain() *CpuState {
	if !c.memReady() {
		return nil
	}
	ic := c.ctx.(*indexedCtx)
	if ic.pb.extraBytes > 0 {
		ic.extra = c.memBytes()
	}
	ic.address = c.resolveIndexedAddress(ic.pb, ic.extra)
	if ic.pb.indirect {
		c.ctx = ic
		return stateRef(stIndexedIndirect)
	}
	c.addressing = Addressing{Mode: ModeIndexed, Address: ic.address}
	return stateRef(stExecute)
}

func (c *Cpu) startIndexedIndirect() {
	if c.ticksOnState == 0 {
		ic := c.ctx.(*indexedCtx)
		c.queryMemoryReadAt(ic.address, 2)
	}
}

func (c *Cpu) endIndexedIndirect() *CpuState {
	if !c.memReady() {
		return nil
	}
	c.addressing = Addressing{Mode: ModeIndexed, Address: c.memWord()}
	return stateRef(stExecute)
}

// --- execute ---

func (c *Cpu) startExecute() {
	c.instr.Start(c)
}

func (c *Cpu) endExecute() *CpuState {
	next := c.instr.End(c)
	if next == nil {
		return nil
	}
	c.commitRegisters()
	c.facade.Emit(kernel.EvCPUInstructionFinish, c.instr.Opcode)
	return next
}

// --- irqnmi (IRQ/NMI/SWI/SWI2/SWI3), 18 cycles ---

func (c *Cpu) startIRQNMI() {
	ic, _ := c.ctx.(*irqCtx)
	if ic == nil {
		ic = c.newIRQContext()
		c.ctx = ic
	}
	switch {
	case c.ticksOnState >= 2 && c.ticksOnState <= 13:
		step := c.ticksOnState - 2
		if step < len(ic.steps) {
			c.regs.S--
			c.queryMemoryWrite(c.regs.S, c.pushByteValue(ic.steps[step], c.regs.U))
		}
	case c.ticksOnState == 15:
		c.queryMemoryReadAt(ic.vector, 2)
	}
}

// newIRQContext picks the dispatch kind: a host-asserted signal if one is
// pending, otherwise a software trap requested by SWI/SWI2/SWI3 (spec.md
// §4.6 "Interrupt dispatch at fetch").
func (c *Cpu) newIRQContext() *irqCtx {
	ic := &irqCtx{steps: flattenPush(interruptFrame)}
	switch {
	case c.pendingNMI:
		ic.kind, ic.vector = "nmi", c.cfg.NMIVector
		c.pendingNMI = false
	case c.pendingIRQ:
		ic.kind, ic.vector = "irq", c.cfg.IRQVector
		c.pendingIRQ = false
	case c.forcedSWI == 2:
		ic.kind, ic.vector = "swi2", c.cfg.SWI2Vector
		c.forcedSWI = 0
	case c.forcedSWI == 3:
		ic.kind, ic.vector = "swi3", c.cfg.SWI3Vector
		c.forcedSWI = 0
	default:
		ic.kind, ic.vector = "swi", c.cfg.SWIVector
		c.forcedSWI = 0
	}
	c.regs.setFlag(ccE, true)
	return ic
}

func (c *Cpu) endIRQNMI() *CpuState {
	ic := c.ctx.(*irqCtx)
	switch {
	case c.ticksOnState >= 2 && c.ticksOnState <= 13:
		if !c.memReady() {
			return nil
		}
	case c.ticksOnState == 15:
		if !c.memReady() {
			return nil
		}
		if ic.kind != "irq" {
			c.regs.setFlag(ccF, true)
		}
		c.regs.setFlag(ccI, true)
	case c.ticksOnState == 16:
		c.regs.PC = c.memWord()
	case c.ticksOnState == 17:
		c.commitRegisters()
		return stateRef(stFetch)
	}
	return nil
}

// --- firq, 9 cycles ---

func (c *Cpu) startFIRQ() {
	ic, _ := c.ctx.(*irqCtx)
	if ic == nil {
		ic = &irqCtx{kind: "firq", vector: c.cfg.FIRQVector, steps: flattenPush(firqFrame)}
		c.pendingFIRQ = false
		c.regs.setFlag(ccE, false)
		c.ctx = ic
	}
	switch {
	case c.ticksOnState >= 2 && c.ticksOnState <= 4:
		step := c.ticksOnState - 2
		if step < len(ic.steps) {
			c.regs.S--
			c.queryMemoryWrite(c.regs.S, c.pushByteValue(ic.steps[step], c.regs.U))
		}
	case c.ticksOnState == 6:
		c.queryMemoryReadAt(ic.vector, 2)
	}
}

func (c *Cpu) endFIRQ() *CpuState {
	switch {
	case c.ticksOnState >= 2 && c.ticksOnState <= 4:
		if !c.memReady() {
			return nil
		}
	case c.ticksOnState == 6:
		if !c.memReady() {
			return nil
		}
		c.regs.setFlag(ccF, true)
		c.regs.setFlag(ccI, true)
	case c.ticksOnState == 7:
		c.regs.PC = c.memWord()
	case c.ticksOnState == 8:
		c.commitRegisters()
		return stateRef(stFetch)
	}
	return nil
}

// --- customfn: exit sync to host for a host-implemented function ---

type customFnCtx struct {
	announced bool
	done      bool
	regs      Registers
}

func (c *Cpu) startCustomFn() {
	cc, _ := c.ctx.(*customFnCtx)
	if cc == nil {
		cc = &customFnCtx{}
		c.ctx = cc
		c.facade.On(kernel.EvCPUFunction, c.hostFunctionReply(cc))
		c.facade.Emit(kernel.EvCPUFunction, c.regs)
		cc.announced = true
	}
}

// hostFunctionReply installs once per customfn entry; the host answers by
// re-emitting cpu:function with the replacement register set.
func (c *Cpu) hostFunctionReply(cc *customFnCtx) kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if ctx.Emitter == c.id {
			return nil // ignore our own announcement
		}
		if len(args) == 1 {
			if regs, ok := args[0].(Registers); ok {
				cc.regs = regs
				cc.done = true
			}
		}
		return nil
	}
}

func (c *Cpu) endCustomFn() *CpuState {
	cc := c.ctx.(*customFnCtx)
	if !cc.done {
		return nil
	}
	c.regs = cc.regs
	c.commitRegisters()
	return stateRef(stFetch)
}
