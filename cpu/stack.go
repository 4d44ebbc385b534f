package cpu

// stackReg names one entry in a PSHS/PSHU/PULS/PULU bitmap, or an interrupt
// frame (spec.md §4.9). width is 1 for CC/A/B/DP, 2 for the rest.
type stackReg int

const (
	stkCC stackReg = iota
	stkA
	stkB
	stkDP
	stkX
	stkY
	stkUorS // U for PSHS/PULS, S for PSHU/PULU
	stkPC
)

// pushPullBitmap is the postbyte bit order (LSB to MSB), per spec.md §4.9.
var pushPullBitmap = []stackReg{stkCC, stkA, stkB, stkDP, stkX, stkY, stkUorS, stkPC}

func (r stackReg) width() int {
	if r == stkCC || r == stkA || r == stkB || r == stkDP {
		return 1
	}
	return 2
}

func (r stackReg) read(c *Cpu, partner uint16) uint16 {
	switch r {
	case stkCC:
		return uint16(c.regs.CC)
	case stkA:
		return uint16(c.regs.A)
	case stkB:
		return uint16(c.regs.B)
	case stkDP:
		return uint16(c.regs.DP)
	case stkX:
		return c.regs.X
	case stkY:
		return c.regs.Y
	case stkUorS:
		return partner
	default:
		return c.regs.PC
	}
}

func (r stackReg) write(c *Cpu, v uint16, setPartner func(uint16)) {
	switch r {
	case stkCC:
		c.regs.CC = byte(v)
	case stkA:
		c.regs.A = byte(v)
	case stkB:
		c.regs.B = byte(v)
	case stkDP:
		c.regs.DP = byte(v)
	case stkX:
		c.regs.X = v
	case stkY:
		c.regs.Y = v
	case stkUorS:
		setPartner(v)
	case stkPC:
		c.regs.PC = v
	}
}

// registersFromBitmap returns, in push order (PC first ... CC last), the
// registers selected by a PSHS/PSHU/PULS/PULU postbyte's set bits.
func registersFromBitmap(postbyte byte) []stackReg {
	var sel []stackReg
	for i, r := range pushPullBitmap {
		if postbyte&(1<<uint(i)) != 0 {
			sel = append(sel, r)
		}
	}
	out := make([]stackReg, len(sel))
	for i, r := range sel {
		out[len(sel)-1-i] = r
	}
	return out
}

// interruptFrame is the fixed push/pull set for a full-frame interrupt
// entry/exit (spec.md §4.9), already in push order.
var interruptFrame = []stackReg{stkPC, stkUorS, stkY, stkX, stkDP, stkB, stkA, stkCC}

// firqFrame is FIRQ's reduced push/pull set, in push order.
var firqFrame = []stackReg{stkPC, stkCC}

// pushStep is one byte-granular unit of a multi-register push/pull
// sequence (spec.md §4.9: "one byte per memory cycle, 2 for 16-bit
// registers").
type pushStep struct {
	reg  stackReg
	high bool // meaningful only when reg.width() == 2
}

// flattenPush expands a register list (in push order) into its byte-level
// push sequence, most-significant byte of each 16-bit register first.
func flattenPush(frame []stackReg) []pushStep {
	var out []pushStep
	for _, r := range frame {
		if r.width() == 2 {
			out = append(out, pushStep{reg: r, high: true}, pushStep{reg: r, high: false})
		} else {
			out = append(out, pushStep{reg: r})
		}
	}
	return out
}

// flattenPull is the mirror-image byte sequence a pull performs: the exact
// reverse of flattenPush, since the stack pointer walks back up through the
// same bytes it walked down through.
func flattenPull(frame []stackReg) []pushStep {
	push := flattenPush(frame)
	out := make([]pushStep, len(push))
	for i, s := range push {
		out[len(push)-1-i] = s
	}
	return out
}

// pushByteValue extracts the byte a pushStep contributes. partner supplies
// U's value when reg is stkUorS (interrupt frames and PSHS push U, so
// every caller passes U).
func (c *Cpu) pushByteValue(s pushStep, partner uint16) byte {
	v := s.reg.read(c, partner)
	if s.reg.width() == 1 {
		return byte(v)
	}
	if s.high {
		return byte(v >> 8)
	}
	return byte(v)
}

// multiByteCtx is shared execute-phase scratch for any instruction that
// pushes or pulls a byte-granular step sequence (JSR/RTS/PSHS/PULS/RTI),
// one byte per tick, mirroring irqnmi/firq's own push loop.
type multiByteCtx struct {
	steps   []pushStep
	idx     int
	lowByte byte // holds a pulled low byte until its high-byte step arrives
}

// setPartnerU always names U as the stkUorS partner register, since the
// instructions this engine serves (PSHS/PULS/JSR/RTS/RTI) all operate
// through S.
func setPartnerU(c *Cpu) func(uint16) {
	return func(v uint16) { c.regs.U = v }
}

// startPushStep issues the write for the current step, or does nothing if
// the sequence is already exhausted.
func (c *Cpu) startPushStep(ctx *multiByteCtx) {
	if ctx.idx >= len(ctx.steps) {
		return
	}
	c.regs.S--
	c.queryMemoryWrite(c.regs.S, c.pushByteValue(ctx.steps[ctx.idx], c.regs.U))
}

// endPushStep advances past the current step once its write resolves.
// Reports whether the whole sequence is now complete.
func (c *Cpu) endPushStep(ctx *multiByteCtx) bool {
	if ctx.idx >= len(ctx.steps) {
		return true
	}
	if !c.memReady() {
		return false
	}
	ctx.idx++
	return ctx.idx >= len(ctx.steps)
}

// startPullStep issues the read for the current step.
func (c *Cpu) startPullStep(ctx *multiByteCtx) {
	if ctx.idx >= len(ctx.steps) {
		return
	}
	addr := c.regs.S
	c.regs.S++
	c.queryMemoryReadAt(addr, 1)
}

// endPullStep consumes the resolved byte, assembling 16-bit registers from
// their low byte (pulled first) and high byte (pulled second) — the exact
// mirror of flattenPush's high-then-low write order. Reports whether the
// whole sequence is now complete.
func (c *Cpu) endPullStep(ctx *multiByteCtx) bool {
	if ctx.idx >= len(ctx.steps) {
		return true
	}
	if !c.memReady() {
		return false
	}
	step := ctx.steps[ctx.idx]
	v := c.memByte()
	switch {
	case step.reg.width() == 1:
		step.reg.write(c, uint16(v), setPartnerU(c))
	case !step.high:
		ctx.lowByte = v
	default:
		step.reg.write(c, uint16(v)<<8|uint16(ctx.lowByte), setPartnerU(c))
	}
	ctx.idx++
	return ctx.idx >= len(ctx.steps)
}
