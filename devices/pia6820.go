// Package devices implements the peripheral modules that sit behind a
// bus.Multiplexer alongside bus.Memory: the PIA6820, the programmable
// interrupter, the screen buffer, and the stop register (spec.md §4.10
// through §4.13).
package devices

import (
	"log"

	"m6809sim/kernel"
)

// piaResultSubcycle is where a PIA access resolves within its request
// cycle — 90, not memory's 99 (spec.md §9 open question, device-declared
// timing).
const piaResultSubcycle = 90

// PIAConfig is the config schema named in spec.md §6.
type PIAConfig struct {
	Multiplexer kernel.ModuleId
}

// Pia is a flat 4-register 6820 PIA: control A, data A, control B, data B,
// mapped at relative offsets 0-3 through a Multiplexer exactly the way
// bus.Memory is (spec.md §4.10). Every register write is echoed out on its
// matching pia6820:{ca,cb,data_a,data_b} event so a host or peripheral
// stub can observe port/control-line activity distinct from the plain
// memory bus.
type Pia struct {
	id     kernel.ModuleId
	facade *kernel.Facade
	muxID  kernel.ModuleId

	ctrlA, dataA, ctrlB, dataB byte
}

// NewPia is a kernel.Constructor for a Pia device.
func NewPia(id kernel.ModuleId, cfg any, facade *kernel.Facade) (kernel.Module, error) {
	pcfg, ok := cfg.(PIAConfig)
	if !ok {
		return nil, &kernel.ConfigError{Reason: "pia6820: expected PIAConfig"}
	}
	p := &Pia{id: id, facade: facade, muxID: pcfg.Multiplexer}

	facade.On(kernel.EvMemoryRead.WithGroup(string(id)), p.handleRead())
	facade.On(kernel.EvMemoryWrite.WithGroup(string(id)), p.handleWrite())

	return p, nil
}

// Declaration implements kernel.Module.
func (p *Pia) Declaration() kernel.ModuleDeclaration {
	group := string(p.muxID)
	return kernel.ModuleDeclaration{
		Required: []kernel.Listener{
			{Name: kernel.EvMemoryRead.WithGroup(string(p.id)), Callback: noop},
			{Name: kernel.EvMemoryWrite.WithGroup(string(p.id)), Callback: noop},
		},
		Provided: []kernel.EventName{
			kernel.EvMemoryReadResult.WithGroup(group),
			kernel.EvMemoryWriteResult.WithGroup(group),
			kernel.EvPIACA.WithGroup(string(p.id)),
			kernel.EvPIACB.WithGroup(string(p.id)),
			kernel.EvPIADataA.WithGroup(string(p.id)),
			kernel.EvPIADataB.WithGroup(string(p.id)),
		},
	}
}

func noop(ctx kernel.EventContext, args ...any) kernel.Awaitable { return nil }

func (p *Pia) register(offset uint32) (*byte, kernel.EventName) {
	switch offset {
	case 0:
		return &p.ctrlA, kernel.EvPIACA
	case 1:
		return &p.dataA, kernel.EvPIADataA
	case 2:
		return &p.ctrlB, kernel.EvPIACB
	case 3:
		return &p.dataB, kernel.EvPIADataB
	default:
		return nil, ""
	}
}

func (p *Pia) handleRead() kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if len(args) == 0 {
			return nil
		}
		addr, ok := toUint32(args[0])
		if !ok {
			return nil
		}
		reg, _ := p.register(addr)
		if reg == nil {
			log.Printf("devices: pia6820 %q: address 0x%X out of range", p.id, addr)
			return nil
		}
		value := *reg

		now := p.facade.Now()
		if err := p.facade.OnceCycle(func(cycle, subcycle int) kernel.Awaitable {
			if err := p.facade.Emit(kernel.EvMemoryReadResult.WithGroup(string(p.muxID)), addr, value); err != nil {
				log.Printf("devices: pia6820 %q: emit read result: %v", p.id, err)
			}
			return nil
		}, kernel.CycleOpts{Cycle: now.Cycle, Subcycle: piaResultSubcycle}); err != nil {
			log.Printf("devices: pia6820 %q: schedule read result: %v", p.id, err)
		}
		return nil
	}
}

func (p *Pia) handleWrite() kernel.EventCallback {
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
		reg, event := p.register(addr)
		if reg == nil {
			log.Printf("devices: pia6820 %q: address 0x%X out of range", p.id, addr)
			return nil
		}
		*reg = byte(value)

		now := p.facade.Now()
		if err := p.facade.OnceCycle(func(cycle, subcycle int) kernel.Awaitable {
			if err := p.facade.Emit(event.WithGroup(string(p.id)), byte(value)); err != nil {
				log.Printf("devices: pia6820 %q: emit %s: %v", p.id, event, err)
			}
			if err := p.facade.Emit(kernel.EvMemoryWriteResult.WithGroup(string(p.muxID)), addr, value); err != nil {
				log.Printf("devices: pia6820 %q: emit write result: %v", p.id, err)
			}
			return nil
		}, kernel.CycleOpts{Cycle: now.Cycle, Subcycle: piaResultSubcycle}); err != nil {
			log.Printf("devices: pia6820 %q: schedule write result: %v", p.id, err)
		}
		return nil
	}
}

func toUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case uint32:
		return n, true
	case uint16:
		return uint32(n), true
	case int:
		return uint32(n), true
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
