package kernel

import "fmt"

// ConfigError covers the "Configuration" taxonomy row of spec.md §7: bad
// field type, out-of-range, unknown enum, missing required, duplicated
// module id, unprovided required event, multiple or missing initiators.
// It is fatal at construction.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "kernel: configuration error: " + e.Reason }

// BusViolationError is raised when a module emits or listens to an event
// name outside its declaration (spec.md §7 "Bus violation"); memory-like
// modules also panic with it on a write to ROM or a bulk write past their
// end.
type BusViolationError struct {
	Caller ModuleId
	Name   EventName
	Verb   string // "emit" or "listen", or the memory-like modules' "write to ROM", "bulk write to ROM", "bulk write past end of memory"
}

func (e *BusViolationError) Error() string {
	return fmt.Sprintf("kernel: module %q may not %s %q", e.Caller, e.Verb, e.Name)
}

// TimingViolationError is raised when a callback is scheduled at a
// (cycle, subcycle) that does not strictly dominate the scheduler's
// current position (spec.md §7 "Timing violation").
type TimingViolationError struct {
	Current  CycleTime
	Proposed CycleTime
}

func (e *TimingViolationError) Error() string {
	return fmt.Sprintf("kernel: cannot schedule %v at or before current position %v", e.Proposed, e.Current)
}
