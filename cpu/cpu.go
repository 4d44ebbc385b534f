// Package cpu implements the Motorola 6809 microprocessor core: the
// register file, condition codes, indexed/direct/extended/relative
// addressing, the interrupt sequences, and the two-phase (start/end)
// cycle-accurate state machine that drives it all one bus cycle at a time.
package cpu

import "m6809sim/kernel"

// CPUConfig is the config schema named in spec.md §6.
type CPUConfig struct {
	ResetVector uint16
	NMIVector   uint16
	IRQVector   uint16
	FIRQVector  uint16
	SWIVector   uint16
	SWI2Vector  uint16
	SWI3Vector  uint16
}

// Cpu is a kernel.Module implementing the full M6809 state machine
// (spec.md §4.6).
type Cpu struct {
	id     kernel.ModuleId
	facade *kernel.Facade
	cfg    CPUConfig

	regs      Registers // staged: mutated freely during a cycle
	committed Registers // last published snapshot

	state        CpuState
	ticksOnState int
	ctx          any

	mem *memoryAction

	pendingIRQ, pendingFIRQ, pendingNMI bool
	// forcedSWI selects the vector an execute-phase SWI/SWI2/SWI3
	// dispatches to once irqnmi is entered: 0 means plain SWI.
	forcedSWI int

	instr      *InstructionData
	addressing Addressing
}

// NewCpu is a kernel.Constructor for a Cpu.
func NewCpu(id kernel.ModuleId, cfg any, facade *kernel.Facade) (kernel.Module, error) {
	ccfg, ok := cfg.(CPUConfig)
	if !ok {
		return nil, &kernel.ConfigError{Reason: "cpu: expected CPUConfig"}
	}
	c := &Cpu{id: id, facade: facade, cfg: ccfg, state: stResetting}
	c.installMemoryListeners()

	facade.On(kernel.EvSignalReset, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		c.state, c.ticksOnState, c.ctx = stResetting, 0, nil
		return nil
	})
	facade.On(kernel.EvSignalIRQ, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		c.pendingIRQ = true
		return nil
	})
	facade.On(kernel.EvSignalFIRQ, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		c.pendingFIRQ = true
		return nil
	})
	facade.On(kernel.EvSignalNMI, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		c.pendingNMI = true
		return nil
	})
	facade.On(kernel.EvDbgRegisterUpdate, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		c.applyDebugRegisterUpdate(args)
		return nil
	})

	facade.OnCycle(c.cycleStart, 0)
	facade.OnCycle(c.cycleEnd, 100)

	return c, nil
}

// Declaration implements kernel.Module.
func (c *Cpu) Declaration() kernel.ModuleDeclaration {
	return kernel.ModuleDeclaration{
		Provided: []kernel.EventName{
			kernel.EvCPURegistersUpdate,
			kernel.EvCPURegisterUpdate,
			kernel.EvCPUInstructionBegin,
			kernel.EvCPUInstructionFinish,
			kernel.EvCPUResetFinish,
			kernel.EvCPUFunction,
			kernel.EvMemoryRead,
			kernel.EvMemoryWrite,
		},
		Required: []kernel.Listener{
			{Name: kernel.EvSignalReset, Callback: noopCPU},
			{Name: kernel.EvSignalIRQ, Callback: noopCPU},
			{Name: kernel.EvSignalFIRQ, Callback: noopCPU},
			{Name: kernel.EvSignalNMI, Callback: noopCPU},
			{Name: kernel.EvMemoryReadResult, Callback: noopCPU},
			{Name: kernel.EvMemoryWriteResult, Callback: noopCPU},
			{Name: kernel.EvDbgRegisterUpdate, Callback: noopCPU},
		},
		// customfn listens for the host's cpu:function reply.
		Optional: []kernel.Listener{
			{Name: kernel.EvCPUFunction, Callback: noopCPU},
		},
	}
}

func noopCPU(ctx kernel.EventContext, args ...any) kernel.Awaitable { return nil }

// commitRegisters diffs regs against the last published snapshot and
// publishes the difference atomically (spec.md §4.7): one
// cpu:register_update per changed field, then cpu:registers_update with
// the whole new snapshot.
func (c *Cpu) commitRegisters() {
	old := c.committed
	new := c.regs

	emit := func(name string, changed bool, value any) {
		if changed {
			c.facade.Emit(kernel.EvCPURegisterUpdate, name, value)
		}
	}
	emit("A", old.A != new.A, new.A)
	emit("B", old.B != new.B, new.B)
	emit("X", old.X != new.X, new.X)
	emit("Y", old.Y != new.Y, new.Y)
	emit("U", old.U != new.U, new.U)
	emit("S", old.S != new.S, new.S)
	emit("DP", old.DP != new.DP, new.DP)
	emit("PC", old.PC != new.PC, new.PC)
	emit("CC", old.CC != new.CC, new.CC)

	c.committed = new
	c.facade.Emit(kernel.EvCPURegistersUpdate, new)
}

// applyDebugRegisterUpdate lets a host debugger force a register value
// outside of normal instruction execution (e.g. to set a breakpoint's
// initial state); payload is (name string, value uint16).
func (c *Cpu) applyDebugRegisterUpdate(args []any) {
	if len(args) < 2 {
		return
	}
	name, ok := args[0].(string)
	if !ok {
		return
	}
	v, ok := toU16(args[1])
	if !ok {
		return
	}
	switch name {
	case "A":
		c.regs.A = byte(v)
	case "B":
		c.regs.B = byte(v)
	case "X":
		c.regs.X = v
	case "Y":
		c.regs.Y = v
	case "U":
		c.regs.U = v
	case "S":
		c.regs.S = v
	case "DP":
		c.regs.DP = byte(v)
	case "PC":
		c.regs.PC = v
	case "CC":
		c.regs.CC = byte(v)
	default:
		return
	}
	c.commitRegisters()
}

// Registers returns the last-committed register snapshot, for tests and
// host introspection.
func (c *Cpu) Registers() Registers { return c.committed }

// State reports the current CpuState, for tests and host introspection.
func (c *Cpu) State() CpuState { return c.state }
