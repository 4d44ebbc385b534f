// Package bus implements the address-based bus fabric described in
// spec.md §4.4 (multiplexer) and §4.5 (memory module): the router that
// turns absolute-address bus events into per-device address-relative
// events and back, plus the memory device that sits behind it.
package bus

import (
	"log"
	"sort"

	"m6809sim/kernel"
)

// incomingBases are the address-carrying event bases the multiplexer
// decodes (spec.md §4.1, §4.4).
var incomingBases = []kernel.EventName{
	kernel.EvMemoryRead,
	kernel.EvMemoryWrite,
	kernel.EvUIMemoryRead,
	kernel.EvUIMemoryWrite,
	kernel.EvUIMemoryBulkWrite,
}

// outgoingBases are the five bases re-emitted bare once a device's
// response has been translated back to an absolute address.
var outgoingBases = []kernel.EventName{
	kernel.EvMemoryReadResult,
	kernel.EvMemoryWriteResult,
	kernel.EvUIMemoryReadResult,
	kernel.EvUIMemoryWriteResult,
	kernel.EvUIMemoryBulkResult,
}

// Entry is one configured (module, start, size, priority) range
// (spec.md §3 MultiplexerEntry).
type Entry struct {
	Module   kernel.ModuleId
	Start    uint32
	Size     uint32
	Priority int // lower wins on overlap; ties are unspecified (spec.md §9)
}

func (e Entry) contains(addr uint32) bool {
	return addr >= e.Start && addr < e.Start+e.Size
}

// MultiplexerConfig is the config schema named in spec.md §6.
type MultiplexerConfig struct {
	Entries []Entry
}

// Multiplexer routes bus events to the configured entry covering an
// address and routes device responses back to absolute addresses
// (spec.md §4.4).
type Multiplexer struct {
	id      kernel.ModuleId
	facade  *kernel.Facade
	entries []Entry
}

// NewMultiplexer is a kernel.Constructor for a Multiplexer.
func NewMultiplexer(id kernel.ModuleId, cfg any, facade *kernel.Facade) (kernel.Module, error) {
	mcfg, ok := cfg.(MultiplexerConfig)
	if !ok {
		return nil, &kernel.ConfigError{Reason: "multiplexer: expected MultiplexerConfig"}
	}
	m := &Multiplexer{id: id, facade: facade, entries: mcfg.Entries}

	for _, base := range incomingBases {
		base := base
		facade.On(base, m.handleIncoming(base))
	}
	for _, base := range outgoingBases {
		base := base
		facade.On(base.WithGroup(string(id)), m.handleOutgoing(base))
	}

	return m, nil
}

// Declaration implements kernel.Module.
func (m *Multiplexer) Declaration() kernel.ModuleDeclaration {
	var provided []kernel.EventName
	for _, base := range incomingBases {
		for _, e := range m.entries {
			provided = append(provided, base.WithGroup(string(e.Module)))
		}
	}
	provided = append(provided, outgoingBases...)

	// Only the CPU-facing memory:read/memory:write paths are required; the
	// ui: introspection paths are optional, since no module need issue them.
	var required, optional []kernel.Listener
	for _, base := range incomingBases {
		l := kernel.Listener{Name: base, Callback: noop}
		if base == kernel.EvMemoryRead || base == kernel.EvMemoryWrite {
			required = append(required, l)
		} else {
			optional = append(optional, l)
		}
	}
	for _, base := range outgoingBases {
		required = append(required, kernel.Listener{Name: base.WithGroup(string(m.id)), Callback: noop})
	}

	return kernel.ModuleDeclaration{Provided: provided, Required: required, Optional: optional}
}

func noop(ctx kernel.EventContext, args ...any) kernel.Awaitable { return nil }

// selectEntry picks the matching entry with the lowest priority value.
// Ties are resolved by configuration order (spec.md §9).
func (m *Multiplexer) selectEntry(addr uint32) (Entry, bool) {
	candidates := make([]Entry, 0, 1)
	for _, e := range m.entries {
		if e.contains(addr) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return Entry{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Priority < candidates[j].Priority })
	return candidates[0], true
}

func (m *Multiplexer) handleIncoming(base kernel.EventName) kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if len(args) == 0 {
			return nil
		}
		addr, ok := toUint32(args[0])
		if !ok {
			return nil
		}
		entry, found := m.selectEntry(addr)
		if !found {
			log.Printf("bus: multiplexer %q: no entry matches address 0x%04X on %q", m.id, addr, base)
			return nil
		}
		relative := addr - entry.Start
		newArgs := append([]any{relative}, args[1:]...)
		m.facade.Emit(base.WithGroup(string(entry.Module)), newArgs...)
		return nil
	}
}

func (m *Multiplexer) handleOutgoing(base kernel.EventName) kernel.EventCallback {
	return func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		if len(args) == 0 {
			return nil
		}
		relative, ok := toUint32(args[0])
		if !ok {
			return nil
		}
		var entry Entry
		found := false
		for _, e := range m.entries {
			if e.Module == ctx.Emitter {
				entry = e
				found = true
				break
			}
		}
		if !found {
			log.Printf("bus: multiplexer %q: no entry registered for emitter %q", m.id, ctx.Emitter)
			return nil
		}
		abs := entry.Start + relative
		newArgs := append([]any{abs}, args[1:]...)
		m.facade.Emit(base, newArgs...)
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
