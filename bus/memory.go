package bus

import (
	"log"

	"m6809sim/kernel"
)

// Kind distinguishes writable memory from read-only memory (spec.md §4.5).
type Kind int

const (
	RAM Kind = iota
	ROM
)

// cpuFacingBases are the two bases whose :result is delayed to subcycle 99
// of the current cycle, matching the CPU's two-phase access contract
// (spec.md §4.5, §4.6).
var cpuFacingBases = []kernel.EventName{kernel.EvMemoryRead, kernel.EvMemoryWrite}

// immediateBases are the ui: introspection bases that resolve synchronously,
// with no cycle delay, since they model a debugger/host panel rather than a
// bus-timed CPU access.
var immediateBases = []kernel.EventName{kernel.EvUIMemoryRead, kernel.EvUIMemoryWrite, kernel.EvUIMemoryBulkWrite}

// resultSubcycle is where a CPU-facing memory access resolves within its
// request cycle (spec.md §4.5).
const resultSubcycle = 99

// MemoryConfig is the config schema named in spec.md §6.
type MemoryConfig struct {
	Size        uint32
	Kind        Kind
	Image       []byte        // optional initial contents (e.g. a ROM image)
	Multiplexer kernel.ModuleId // "" means this memory is wired directly, bypassing a multiplexer
}

// Memory is a flat byte array addressed relative to its own base, reached
// either directly or through a Multiplexer (spec.md §4.5).
type Memory struct {
	id     kernel.ModuleId
	facade *kernel.Facade
	kind   Kind
	muxID  kernel.ModuleId
	data   []byte
}

// NewMemory is a kernel.Constructor for a Memory device.
func NewMemory(id kernel.ModuleId, cfg any, facade *kernel.Facade) (kernel.Module, error) {
	mcfg, ok := cfg.(MemoryConfig)
	if !ok {
		return nil, &kernel.ConfigError{Reason: "memory: expected MemoryConfig"}
	}
	if mcfg.Size == 0 {
		return nil, &kernel.ConfigError{Reason: "memory: size must be non-zero"}
	}

	data := make([]byte, mcfg.Size)
	copy(data, mcfg.Image)

	m := &Memory{id: id, facade: facade, kind: mcfg.Kind, muxID: mcfg.Multiplexer, data: data}

	facade.On(kernel.EvMemoryRead.WithGroup(string(id)), m.handleRead(kernel.EvMemoryRead, true))
	facade.On(kernel.EvMemoryWrite.WithGroup(string(id)), m.handleWrite(kernel.EvMemoryWrite, true))
	facade.On(kernel.EvUIMemoryRead.WithGroup(string(id)), m.handleRead(kernel.EvUIMemoryRead, false))
	facade.On(kernel.EvUIMemoryWrite.WithGroup(string(id)), m.handleWrite(kernel.EvUIMemoryWrite, false))
	facade.On(kernel.EvUIMemoryBulkWrite.WithGroup(string(id)), m.handleBulkWrite())
	facade.On(kernel.EvUIMemoryClear.WithGroup(string(id)), m.handleClear())

	return m, nil
}

// Declaration implements kernel.Module.
func (m *Memory) Declaration() kernel.ModuleDeclaration {
	required := []kernel.Listener{
		{Name: kernel.EvMemoryRead.WithGroup(string(m.id)), Callback: noop},
		{Name: kernel.EvMemoryWrite.WithGroup(string(m.id)), Callback: noop},
	}
	// The ui: introspection paths are optional: a multiplexer never routes
	// ui:memory:clear, and a host need not issue any of them.
	optional := []kernel.Listener{
		{Name: kernel.EvUIMemoryRead.WithGroup(string(m.id)), Callback: noop},
		{Name: kernel.EvUIMemoryWrite.WithGroup(string(m.id)), Callback: noop},
		{Name: kernel.EvUIMemoryBulkWrite.WithGroup(string(m.id)), Callback: noop},
		{Name: kernel.EvUIMemoryClear.WithGroup(string(m.id)), Callback: noop},
	}

	group := string(m.muxID)
	provided := []kernel.EventName{
		kernel.EvMemoryReadResult.WithGroup(group),
		kernel.EvMemoryWriteResult.WithGroup(group),
		kernel.EvUIMemoryReadResult.WithGroup(group),
		kernel.EvUIMemoryWriteResult.WithGroup(group),
		kernel.EvUIMemoryBulkResult.WithGroup(group),
	}

	return kernel.ModuleDeclaration{Provided: provided, Required: required, Optional: optional}
}

func (m *Memory) inRange(addr uint32) bool {
	if addr < uint32(len(m.data)) {
		return true
	}
	log.Printf("bus: memory %q: address 0x%04X out of range (size %d)", m.id, addr, len(m.data))
	return false
}

func (m *Memory) resultBase(base kernel.EventName) kernel.EventName {
	return resultOf(base).WithGroup(string(m.muxID))
}

func resultOf(base kernel.EventName) kernel.EventName {
	switch base {
	case kernel.EvMemoryRead:
		return kernel.EvMemoryReadResult
	case kernel.EvMemoryWrite:
		return kernel.EvMemoryWriteResult
	case kernel.EvUIMemoryRead:
		return kernel.EvUIMemoryReadResult
	case kernel.EvUIMemoryWrite:
		return kernel.EvUIMemoryWriteResult
	default:
		return kernel.EvUIMemoryBulkResult
	}
}

func (m *Memory) handleRead(base kernel.EventName, delayed bool) kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if len(args) == 0 {
			return nil
		}
		addr, ok := toUint32(args[0])
		if !ok || !m.inRange(addr) {
			return nil
		}
		value := m.data[addr]

		emit := func() {
			if err := m.facade.Emit(m.resultBase(base), addr, value); err != nil {
				log.Printf("bus: memory %q: emit result: %v", m.id, err)
			}
		}
		if !delayed {
			emit()
			return nil
		}
		now := m.facade.Now()
		if err := m.facade.OnceCycle(func(cycle, subcycle int) kernel.Awaitable {
			emit()
			return nil
		}, kernel.CycleOpts{Cycle: now.Cycle, Subcycle: resultSubcycle}); err != nil {
			log.Printf("bus: memory %q: schedule result: %v", m.id, err)
		}
		return nil
	}
}

func (m *Memory) handleWrite(base kernel.EventName, delayed bool) kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if len(args) < 2 {
			return nil
		}
		addr, ok := toUint32(args[0])
		if !ok || !m.inRange(addr) {
			return nil
		}
		value, ok := toUint32(args[1])
		if !ok {
			return nil
		}

		if m.kind == ROM {
			panic(&kernel.BusViolationError{Caller: m.id, Name: base, Verb: "write to ROM"})
		}
		m.data[addr] = byte(value)

		emit := func() {
			if err := m.facade.Emit(m.resultBase(base), addr, value); err != nil {
				log.Printf("bus: memory %q: emit result: %v", m.id, err)
			}
		}
		if !delayed {
			emit()
			return nil
		}
		now := m.facade.Now()
		if err := m.facade.OnceCycle(func(cycle, subcycle int) kernel.Awaitable {
			emit()
			return nil
		}, kernel.CycleOpts{Cycle: now.Cycle, Subcycle: resultSubcycle}); err != nil {
			log.Printf("bus: memory %q: schedule result: %v", m.id, err)
		}
		return nil
	}
}

func (m *Memory) handleBulkWrite() kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if len(args) < 2 {
			return nil
		}
		addr, ok := toUint32(args[0])
		if !ok {
			return nil
		}
		bytes, ok := args[1].([]byte)
		if !ok {
			return nil
		}

		if m.kind == ROM {
			panic(&kernel.BusViolationError{Caller: m.id, Name: kernel.EvUIMemoryBulkWrite, Verb: "bulk write to ROM"})
		}

		size := uint32(len(m.data))
		if addr > size || uint32(len(bytes)) > size-addr {
			panic(&kernel.BusViolationError{Caller: m.id, Name: kernel.EvUIMemoryBulkWrite, Verb: "bulk write past end of memory"})
		}

		for i, b := range bytes {
			m.data[addr+uint32(i)] = b
		}

		if err := m.facade.Emit(m.resultBase(kernel.EvUIMemoryBulkWrite), addr, len(bytes)); err != nil {
			log.Printf("bus: memory %q: emit bulk result: %v", m.id, err)
		}
		return nil
	}
}

func (m *Memory) handleClear() kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		for i := range m.data {
			m.data[i] = 0
		}
		return nil
	}
}
