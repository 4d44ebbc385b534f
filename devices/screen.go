package devices

import (
	"log"

	"m6809sim/kernel"
)

// ScreenConfig is the config schema named in spec.md §6.
type ScreenConfig struct {
	Size        uint32
	Multiplexer kernel.ModuleId
}

// Screen is a write-only (from the CPU's side) memory-mapped byte buffer
// (spec.md §4.12; ground: the teacher's mem.Bus.FakeRam pattern, here
// scoped to a device's own backing array rather than the whole address
// space). A host or debugger reads its contents back out through the
// ui: introspection events the way bus.Memory exposes them, never
// through the CPU-facing memory:read base — there is deliberately no
// listener for it.
type Screen struct {
	id     kernel.ModuleId
	facade *kernel.Facade
	muxID  kernel.ModuleId
	data   []byte
}

// NewScreen is a kernel.Constructor for a Screen device.
func NewScreen(id kernel.ModuleId, cfg any, facade *kernel.Facade) (kernel.Module, error) {
	scfg, ok := cfg.(ScreenConfig)
	if !ok {
		return nil, &kernel.ConfigError{Reason: "screen: expected ScreenConfig"}
	}
	if scfg.Size == 0 {
		return nil, &kernel.ConfigError{Reason: "screen: size must be non-zero"}
	}
	s := &Screen{id: id, facade: facade, muxID: scfg.Multiplexer, data: make([]byte, scfg.Size)}

	facade.On(kernel.EvMemoryWrite.WithGroup(string(id)), s.handleWrite())
	facade.On(kernel.EvUIMemoryRead.WithGroup(string(id)), s.handleUIRead())
	facade.On(kernel.EvUIMemoryBulkWrite.WithGroup(string(id)), s.handleBulkWrite())
	facade.On(kernel.EvUIMemoryClear.WithGroup(string(id)), s.handleClear())

	return s, nil
}

// Declaration implements kernel.Module.
func (s *Screen) Declaration() kernel.ModuleDeclaration {
	group := string(s.muxID)
	return kernel.ModuleDeclaration{
		Required: []kernel.Listener{
			{Name: kernel.EvMemoryWrite.WithGroup(string(s.id)), Callback: noop},
			{Name: kernel.EvUIMemoryRead.WithGroup(string(s.id)), Callback: noop},
			{Name: kernel.EvUIMemoryBulkWrite.WithGroup(string(s.id)), Callback: noop},
			{Name: kernel.EvUIMemoryClear.WithGroup(string(s.id)), Callback: noop},
		},
		Provided: []kernel.EventName{
			kernel.EvMemoryWriteResult.WithGroup(group),
			kernel.EvUIMemoryReadResult.WithGroup(group),
			kernel.EvUIMemoryBulkResult.WithGroup(group),
		},
	}
}

func (s *Screen) inRange(addr uint32) bool {
	if addr < uint32(len(s.data)) {
		return true
	}
	log.Printf("devices: screen %q: address 0x%04X out of range (size %d)", s.id, addr, len(s.data))
	return false
}

func (s *Screen) handleWrite() kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if len(args) < 2 {
			return nil
		}
		addr, ok := toUint32(args[0])
		if !ok || !s.inRange(addr) {
			return nil
		}
		value, ok := toByte(args[1])
		if !ok {
			return nil
		}
		s.data[addr] = value

		now := s.facade.Now()
		if err := s.facade.OnceCycle(func(cycle, subcycle int) kernel.Awaitable {
			if err := s.facade.Emit(kernel.EvMemoryWriteResult.WithGroup(string(s.muxID)), addr, value); err != nil {
				log.Printf("devices: screen %q: emit write result: %v", s.id, err)
			}
			return nil
		}, kernel.CycleOpts{Cycle: now.Cycle, Subcycle: 99}); err != nil {
			log.Printf("devices: screen %q: schedule write result: %v", s.id, err)
		}
		return nil
	}
}

func (s *Screen) handleUIRead() kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if len(args) == 0 {
			return nil
		}
		addr, ok := toUint32(args[0])
		if !ok || !s.inRange(addr) {
			return nil
		}
		if err := s.facade.Emit(kernel.EvUIMemoryReadResult.WithGroup(string(s.muxID)), addr, s.data[addr]); err != nil {
			log.Printf("devices: screen %q: emit ui read result: %v", s.id, err)
		}
		return nil
	}
}

func (s *Screen) handleBulkWrite() kernel.EventCallback {
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
		size := uint32(len(s.data))
		if addr > size || uint32(len(bytes)) > size-addr {
			panic(&kernel.BusViolationError{Caller: s.id, Name: kernel.EvUIMemoryBulkWrite, Verb: "bulk write past end of memory"})
		}

		for i, b := range bytes {
			s.data[addr+uint32(i)] = b
		}
		if err := s.facade.Emit(kernel.EvUIMemoryBulkResult.WithGroup(string(s.muxID)), addr, len(bytes)); err != nil {
			log.Printf("devices: screen %q: emit bulk result: %v", s.id, err)
		}
		return nil
	}
}

func (s *Screen) handleClear() kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		for i := range s.data {
			s.data[i] = 0
		}
		return nil
	}
}

// Contents returns a copy of the screen's backing buffer, for a host-side
// renderer that would rather read it directly than round-trip through
// ui:memory:read one byte at a time.
func (s *Screen) Contents() []byte {
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}
