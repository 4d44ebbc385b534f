package devices

import (
	"log"

	"m6809sim/kernel"
)

// SignalType selects which of the three interrupt lines a programmable
// interrupter drives (spec.md §4.11).
type SignalType int

const (
	SigNMI SignalType = iota
	SigIRQ
	SigFIRQ
)

func (t SignalType) event() kernel.EventName {
	switch t {
	case SigIRQ:
		return kernel.EvSignalIRQ
	case SigFIRQ:
		return kernel.EvSignalFIRQ
	default:
		return kernel.EvSignalNMI
	}
}

// InterrupterConfig is the config schema named in spec.md §6. Multiplexer
// is only consulted when Device is true.
type InterrupterConfig struct {
	Each        uint16
	Type        SignalType
	Device      bool
	Multiplexer kernel.ModuleId
}

// Interrupter emits signal:<type> every Each cycles (spec.md §4.11). In
// device mode it additionally maps 3 bytes (each_high, each_low, type)
// through a multiplexer the way bus.Memory does, so the running program
// can reprogram its own period and target line.
type Interrupter struct {
	id     kernel.ModuleId
	facade *kernel.Facade
	muxID  kernel.ModuleId
	device bool

	each    uint16
	sigType SignalType
	counter uint16
}

// NewInterrupter is a kernel.Constructor for an Interrupter.
func NewInterrupter(id kernel.ModuleId, cfg any, facade *kernel.Facade) (kernel.Module, error) {
	icfg, ok := cfg.(InterrupterConfig)
	if !ok {
		return nil, &kernel.ConfigError{Reason: "interrupter: expected InterrupterConfig"}
	}
	if icfg.Each == 0 {
		return nil, &kernel.ConfigError{Reason: "interrupter: each must be non-zero"}
	}
	it := &Interrupter{
		id:      id,
		facade:  facade,
		muxID:   icfg.Multiplexer,
		device:  icfg.Device,
		each:    icfg.Each,
		sigType: icfg.Type,
	}

	facade.OnCycle(it.tick, 0)

	if it.device {
		facade.On(kernel.EvMemoryRead.WithGroup(string(id)), it.handleRead())
		facade.On(kernel.EvMemoryWrite.WithGroup(string(id)), it.handleWrite())
	}

	return it, nil
}

// Declaration implements kernel.Module.
func (it *Interrupter) Declaration() kernel.ModuleDeclaration {
	// Type is mutable at runtime in device mode, so every line it could
	// ever target must be declared up front rather than just the initial
	// one.
	provided := []kernel.EventName{kernel.EvSignalNMI, kernel.EvSignalIRQ, kernel.EvSignalFIRQ}
	var required []kernel.Listener
	if it.device {
		group := string(it.muxID)
		required = []kernel.Listener{
			{Name: kernel.EvMemoryRead.WithGroup(string(it.id)), Callback: noop},
			{Name: kernel.EvMemoryWrite.WithGroup(string(it.id)), Callback: noop},
		}
		provided = append(provided,
			kernel.EvMemoryReadResult.WithGroup(group),
			kernel.EvMemoryWriteResult.WithGroup(group),
		)
	}
	return kernel.ModuleDeclaration{Provided: provided, Required: required}
}

// tick is the interrupter's OnCycle callback, fired at subcycle 0 of every
// cycle.
func (it *Interrupter) tick(cycle, subcycle int) kernel.Awaitable {
	it.counter++
	if it.counter < it.each {
		return nil
	}
	it.counter = 0
	if err := it.facade.Emit(it.sigType.event()); err != nil {
		log.Printf("devices: interrupter %q: emit signal: %v", it.id, err)
	}
	return nil
}

// register offsets: 0 = each_high, 1 = each_low, 2 = type.
func (it *Interrupter) handleRead() kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if len(args) == 0 {
			return nil
		}
		addr, ok := toUint32(args[0])
		if !ok {
			return nil
		}
		value, ok := it.readRegister(addr)
		if !ok {
			log.Printf("devices: interrupter %q: address 0x%X out of range", it.id, addr)
			return nil
		}
		now := it.facade.Now()
		if err := it.facade.OnceCycle(func(cycle, subcycle int) kernel.Awaitable {
			if err := it.facade.Emit(kernel.EvMemoryReadResult.WithGroup(string(it.muxID)), addr, value); err != nil {
				log.Printf("devices: interrupter %q: emit read result: %v", it.id, err)
			}
			return nil
		}, kernel.CycleOpts{Cycle: now.Cycle, Subcycle: 99}); err != nil {
			log.Printf("devices: interrupter %q: schedule read result: %v", it.id, err)
		}
		return nil
	}
}

func (it *Interrupter) readRegister(addr uint32) (byte, bool) {
	switch addr {
	case 0:
		return byte(it.each >> 8), true
	case 1:
		return byte(it.each), true
	case 2:
		return byte(it.sigType), true
	default:
		return 0, false
	}
}

func (it *Interrupter) handleWrite() kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if len(args) < 2 {
			return nil
		}
		addr, ok := toUint32(args[0])
		if !ok {
			return nil
		}
		value, ok := toUint32(args[1])
		if !ok {
			return nil
		}
		if !it.writeRegister(addr, byte(value)) {
			log.Printf("devices: interrupter %q: address 0x%X out of range", it.id, addr)
			return nil
		}
		now := it.facade.Now()
		if err := it.facade.OnceCycle(func(cycle, subcycle int) kernel.Awaitable {
			if err := it.facade.Emit(kernel.EvMemoryWriteResult.WithGroup(string(it.muxID)), addr, value); err != nil {
				log.Printf("devices: interrupter %q: emit write result: %v", it.id, err)
			}
			return nil
		}, kernel.CycleOpts{Cycle: now.Cycle, Subcycle: 99}); err != nil {
			log.Printf("devices: interrupter %q: schedule write result: %v", it.id, err)
		}
		return nil
	}
}

func (it *Interrupter) writeRegister(addr uint32, value byte) bool {
	switch addr {
	case 0:
		it.each = uint16(value)<<8 | it.each&0x00FF
	case 1:
		it.each = it.each&0xFF00 | uint16(value)
	case 2:
		if value > byte(SigFIRQ) {
			return false
		}
		it.sigType = SignalType(value)
	default:
		return false
	}
	return true
}
