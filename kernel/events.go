package kernel

import "strings"

// EventName is either a bare base name ("memory:read") or a base name plus
// a "/"-separated group ("memory:read/ram0"). Grouping is the only
// mechanism by which otherwise-identical events from different devices are
// disambiguated on the bus (spec.md §4.1); the base name alone defines
// payload shape.
type EventName string

// Split breaks a name into its base and group. group is "" if there was no
// "/" suffix.
func (n EventName) Split() (base EventName, group string) {
	s := string(n)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return EventName(s[:i]), s[i+1:]
	}
	return n, ""
}

// Base returns the name without any group suffix.
func (n EventName) Base() EventName {
	base, _ := n.Split()
	return base
}

// Group returns the group suffix, or "" if n is a bare base name.
func (n EventName) Group() string {
	_, group := n.Split()
	return group
}

// WithGroup joins a base name with a group, producing "base/group".
func (n EventName) WithGroup(group string) EventName {
	if group == "" {
		return n.Base()
	}
	return n.Base() + "/" + EventName(group)
}

// HasGroup reports whether n carries a "/group" suffix.
func (n EventName) HasGroup() bool {
	return strings.IndexByte(string(n), '/') >= 0
}

// System-provided event base names (spec.md §4.1): the kernel itself
// provides every "system:" name, so a module may list them as required
// without any module providing them.
const (
	EvSystemLoadFinish EventName = "system:load_finish"
)

// The closed set of base names the bus fabric must recognise, per
// spec.md §4.1.
const (
	EvMemoryRead           EventName = "memory:read"
	EvMemoryWrite          EventName = "memory:write"
	EvMemoryReadResult     EventName = "memory:read:result"
	EvMemoryWriteResult    EventName = "memory:write:result"
	EvUIMemoryRead         EventName = "ui:memory:read"
	EvUIMemoryWrite        EventName = "ui:memory:write"
	EvUIMemoryBulkWrite    EventName = "ui:memory:bulk:write"
	EvUIMemoryReadResult   EventName = "ui:memory:read:result"
	EvUIMemoryWriteResult  EventName = "ui:memory:write:result"
	EvUIMemoryBulkResult   EventName = "ui:memory:bulk:write:result"
	EvUIMemoryClear        EventName = "ui:memory:clear"
	EvSignalReset          EventName = "signal:reset"
	EvSignalIRQ            EventName = "signal:irq"
	EvSignalFIRQ           EventName = "signal:firq"
	EvSignalNMI            EventName = "signal:nmi"
	EvCPUResetFinish       EventName = "cpu:reset_finish"
	EvCPURegistersUpdate   EventName = "cpu:registers_update"
	EvCPURegisterUpdate    EventName = "cpu:register_update"
	EvCPUInstructionBegin  EventName = "cpu:instruction_begin"
	EvCPUInstructionFinish EventName = "cpu:instruction_finish"
	EvCPUFunction          EventName = "cpu:function"
	EvGUIPanelCreated      EventName = "gui:panel_created"
	EvPIACA                EventName = "pia6820:ca"
	EvPIACB                EventName = "pia6820:cb"
	EvPIADataA             EventName = "pia6820:data_a"
	EvPIADataB             EventName = "pia6820:data_b"
	EvDbgProgramLoad       EventName = "dbg:program:load"
	EvDbgSymbolsLoad       EventName = "dbg:symbols:load"
	EvDbgSymbolAdd         EventName = "dbg:symbol:add"
	EvDbgRegisterUpdate    EventName = "dbg:register_update"
	EvUIClockPause         EventName = "ui:clock:pause"
	EvUIMessageStatus      EventName = "ui:message:status"
	EvStopFinished         EventName = "stop:finished"
)

// EventContext carries the emitter id and the (cycle, subcycle) pair in
// effect at emission time (spec.md §3). It is implicitly delivered as the
// last argument to every listener.
type EventContext struct {
	Emitter  ModuleId
	Cycle    int
	Subcycle int
}
