package devices

import (
	"log"

	"m6809sim/kernel"
)

// StopConfig is the config schema named in spec.md §6.
type StopConfig struct {
	Multiplexer kernel.ModuleId
}

// Stop is a single memory-mapped register: any CPU write to it emits
// stop:finished (spec.md §4.13), the signal the headless CLI front end
// uses to end a performCycle loop without a fixed cycle count.
type Stop struct {
	id     kernel.ModuleId
	facade *kernel.Facade
	muxID  kernel.ModuleId
}

// NewStop is a kernel.Constructor for a Stop device.
func NewStop(id kernel.ModuleId, cfg any, facade *kernel.Facade) (kernel.Module, error) {
	scfg, ok := cfg.(StopConfig)
	if !ok {
		return nil, &kernel.ConfigError{Reason: "stop: expected StopConfig"}
	}
	s := &Stop{id: id, facade: facade, muxID: scfg.Multiplexer}

	facade.On(kernel.EvMemoryWrite.WithGroup(string(id)), s.handleWrite())

	return s, nil
}

// Declaration implements kernel.Module.
func (s *Stop) Declaration() kernel.ModuleDeclaration {
	return kernel.ModuleDeclaration{
		Required: []kernel.Listener{
			{Name: kernel.EvMemoryWrite.WithGroup(string(s.id)), Callback: noop},
		},
		Provided: []kernel.EventName{
			kernel.EvMemoryWriteResult.WithGroup(string(s.muxID)),
			kernel.EvStopFinished,
		},
	}
}

func (s *Stop) handleWrite() kernel.EventCallback {
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

		now := s.facade.Now()
		if err := s.facade.OnceCycle(func(cycle, subcycle int) kernel.Awaitable {
			if err := s.facade.Emit(kernel.EvMemoryWriteResult.WithGroup(string(s.muxID)), addr, value); err != nil {
				log.Printf("devices: stop %q: emit write result: %v", s.id, err)
			}
			if err := s.facade.Emit(kernel.EvStopFinished); err != nil {
				log.Printf("devices: stop %q: emit stop:finished: %v", s.id, err)
			}
			return nil
		}, kernel.CycleOpts{Cycle: now.Cycle, Subcycle: 99}); err != nil {
			log.Printf("devices: stop %q: schedule write result: %v", s.id, err)
		}
		return nil
	}
}
