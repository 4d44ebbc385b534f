package cpu

import "m6809sim/kernel"

// memDirection distinguishes a pending read from a pending write.
type memDirection int

const (
	memRead memDirection = iota
	memWrite
)

// memoryAction is the CPU's single in-flight bus request (spec.md §3
// "MemoryAction"). Multi-byte requests (e.g. a 2-byte extended-address
// fetch) are modeled as several single-byte memory:read emissions issued
// together in the same start(); since the bus schedules every :result at
// subcycle 99 of the issuing cycle, all of them land together in the
// following end() at subcycle 100 — satisfying the "resolved exactly one
// cycle after the request" contract for the whole group at once.
type memoryAction struct {
	pending  bool
	dir      memDirection
	base     uint16
	size     int
	bytes    []byte // filled in as read results arrive
	received int
	writeAt  uint16 // for a pending write, the address awaiting its ack
	wrote    bool
}

// installMemoryListeners wires the two required :result listeners. Called
// once from the constructor.
func (c *Cpu) installMemoryListeners() {
	c.facade.On(kernel.EvMemoryReadResult, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if c.mem == nil || !c.mem.pending || c.mem.dir != memRead {
			return nil
		}
		addr, val, ok := readResultArgs(args)
		if !ok || addr < c.mem.base || addr >= c.mem.base+uint16(c.mem.size) {
			return nil
		}
		idx := int(addr - c.mem.base)
		c.mem.bytes[idx] = val
		c.mem.received++
		if c.mem.received == c.mem.size {
			c.mem.pending = false
		}
		return nil
	})
	c.facade.On(kernel.EvMemoryWriteResult, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if c.mem == nil || !c.mem.pending || c.mem.dir != memWrite {
			return nil
		}
		addr, _, ok := readResultArgs(args)
		if !ok || addr != c.mem.writeAt {
			return nil
		}
		c.mem.wrote = true
		c.mem.pending = false
		return nil
	})
}

func readResultArgs(args []any) (addr uint16, value byte, ok bool) {
	if len(args) < 2 {
		return 0, 0, false
	}
	a, ok1 := toU16(args[0])
	v, ok2 := toByte(args[1])
	return a, v, ok1 && ok2
}

func toU16(v any) (uint16, bool) {
	switch n := v.(type) {
	case uint32:
		return uint16(n), true
	case uint16:
		return n, true
	case int:
		return uint16(n), true
	default:
		return 0, false
	}
}

func toByte(v any) (byte, bool) {
	switch n := v.(type) {
	case byte:
		return n, true
	case uint32:
		return byte(n), true
	case int:
		return byte(n), true
	default:
		return 0, false
	}
}

// queryMemoryReadAt arms a pending n-byte read starting at addr.
func (c *Cpu) queryMemoryReadAt(addr uint16, n int) {
	c.mem = &memoryAction{pending: true, dir: memRead, base: addr, size: n, bytes: make([]byte, n)}
	for i := 0; i < n; i++ {
		c.facade.Emit(kernel.EvMemoryRead, uint32(addr+uint16(i)))
	}
}

// queryMemoryReadPC arms a read at the current PC, post-incrementing PC by
// n immediately (spec.md §4.6).
func (c *Cpu) queryMemoryReadPC(n int) {
	addr := c.regs.PC
	c.regs.PC += uint16(n)
	c.queryMemoryReadAt(addr, n)
}

// queryMemoryWrite arms a single-byte pending write.
func (c *Cpu) queryMemoryWrite(addr uint16, value byte) {
	c.mem = &memoryAction{pending: true, dir: memWrite, writeAt: addr}
	c.facade.Emit(kernel.EvMemoryWrite, uint32(addr), uint32(value))
}

// memReady reports whether the in-flight request (if any) has resolved.
func (c *Cpu) memReady() bool { return c.mem == nil || !c.mem.pending }

// memBytes returns the resolved bytes of a completed read, most-significant
// byte first as fetched (i.e. bytes[0] is the byte at base address).
func (c *Cpu) memBytes() []byte {
	if c.mem == nil {
		return nil
	}
	return c.mem.bytes
}

// memWord interprets a completed 2-byte read as a big-endian word.
func (c *Cpu) memWord() uint16 {
	b := c.memBytes()
	if len(b) != 2 {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

// memByte interprets a completed 1-byte read.
func (c *Cpu) memByte() byte {
	b := c.memBytes()
	if len(b) != 1 {
		return 0
	}
	return b[0]
}
