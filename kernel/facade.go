package kernel

import "fmt"

// Facade is the per-module-id view of the kernel (spec.md §4.3, Glossary
// "Facade"): it auto-tags every call with the owning module's id and
// enforces the declaration-based permission policy before touching the
// kernel's shared tables.
type Facade struct {
	kernel *Kernel
	id     ModuleId
}

// Id returns the module id this facade was issued for.
func (f *Facade) Id() ModuleId { return f.id }

// Now reports the scheduler's current (cycle, subcycle) position. Modules
// that need to schedule a same-cycle callback (e.g. a memory device
// delaying its :result to subcycle 99) read this first so they can build
// an explicit CycleOpts.Cycle rather than rely on the Offset default.
func (f *Facade) Now() CycleTime { return f.kernel.now }

// Emit fans name out synchronously to every current subscriber, in
// subscription order (spec.md §4.3).
func (f *Facade) Emit(name EventName, args ...any) error {
	if !f.kernel.canEmit(f.id, name) {
		return &BusViolationError{Caller: f.id, Name: name, Verb: "emit"}
	}
	f.kernel.emit(f.id, name, args...)
	return nil
}

// On installs a permanent, append-only subscription for the caller's
// lifetime.
func (f *Facade) On(name EventName, cb EventCallback) error {
	if !f.kernel.canListen(f.id, name) {
		return &BusViolationError{Caller: f.id, Name: name, Verb: "listen"}
	}
	f.kernel.on(f.id, name, cb)
	return nil
}

// Once installs a one-shot subscription. when, if non-nil, gates firing;
// a rejected predicate leaves the listener installed for the next
// emission of name.
func (f *Facade) Once(name EventName, cb EventCallback, when ...func(args []any) bool) error {
	if !f.kernel.canListen(f.id, name) {
		return &BusViolationError{Caller: f.id, Name: name, Verb: "listen"}
	}
	var pred func([]any) bool
	if len(when) > 0 {
		pred = when[0]
	}
	f.kernel.once(f.id, name, pred, cb)
	return nil
}

// waitResult is what a Wait/EmitAndWait promise resolves to.
type waitResult struct {
	ctx  EventContext
	args []any
}

// waitAwaitable implements Awaitable by blocking on a channel that the
// matching Once wrapper fills. Per spec.md §5/§9, resolution must happen
// synchronously within the same emission that produced it; a cross-cycle
// wait has nothing left to unblock it and will hang, exactly mirroring
// the spec's own caution about this suspension contract.
type waitAwaitable struct {
	ch  chan waitResult
	out *waitResult
}

func (w *waitAwaitable) Await() error {
	r := <-w.ch
	w.out = &r
	return nil
}

// Result returns the resolved context/args after Await has returned.
func (w *waitAwaitable) Result() (EventContext, []any) {
	if w.out == nil {
		return EventContext{}, nil
	}
	return w.out.ctx, w.out.args
}

// Wait is promise-shaped sugar around Once: it returns an Awaitable that
// resolves the first time name fires (subject to when).
func (f *Facade) Wait(name EventName, when ...func(args []any) bool) (*waitAwaitable, error) {
	w := &waitAwaitable{ch: make(chan waitResult, 1)}
	err := f.Once(name, func(ctx EventContext, args ...any) Awaitable {
		w.ch <- waitResult{ctx: ctx, args: args}
		return nil
	}, when...)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// EmitAndWait installs a Once(listened, when) before emitting emitted, so
// that if the emit synchronously triggers listened, the wait resolves
// (spec.md §4.3 ordering invariant).
func (f *Facade) EmitAndWait(listened EventName, when func(args []any) bool, emitted EventName, args ...any) (*waitAwaitable, error) {
	w, err := f.Wait(listened, when)
	if err != nil {
		return nil, err
	}
	if err := f.Emit(emitted, args...); err != nil {
		return nil, err
	}
	return w, nil
}

// CycleOpts configures a cycle-scheduling call.
type CycleOpts struct {
	// Cycle, if non-zero, is an absolute target cycle. Zero means
	// "current + Offset".
	Cycle    int
	Offset   int // default 1 when Cycle == 0
	Subcycle int // default 0
}

func (f *Facade) resolveWhen(opts CycleOpts) CycleTime {
	cur := f.kernel.now
	cycle := opts.Cycle
	if cycle == 0 {
		offset := opts.Offset
		if offset == 0 {
			offset = 1
		}
		cycle = cur.Cycle + offset
	}
	return CycleTime{Cycle: cycle, Subcycle: opts.Subcycle}
}

// OnceCycle schedules cb at the priority described by opts (spec.md
// §4.3): {cycle = current + Offset (default +1) OR the explicit Cycle,
// subcycle = 0 by default}. Scheduling in the past fails.
func (f *Facade) OnceCycle(cb CycleCallback, opts ...CycleOpts) error {
	var o CycleOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	when := f.resolveWhen(o)
	return f.kernel.scheduleCycle(f.id, cb, when, false)
}

// OnCycle is the re-arming variant: after each firing it reinstalls
// itself for the next cycle at the same subcycle.
func (f *Facade) OnCycle(cb CycleCallback, subcycle int) error {
	when := CycleTime{Cycle: f.kernel.now.Cycle + 1, Subcycle: subcycle}
	return f.kernel.scheduleCycle(f.id, cb, when, true)
}

// AwaitCycle is promise-shaped sugar around OnceCycle.
func (f *Facade) AwaitCycle(opts ...CycleOpts) (*cycleAwaitable, error) {
	a := &cycleAwaitable{ch: make(chan CycleTime, 1)}
	err := f.OnceCycle(func(cycle, subcycle int) Awaitable {
		a.ch <- CycleTime{Cycle: cycle, Subcycle: subcycle}
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type cycleAwaitable struct {
	ch  chan CycleTime
	out *CycleTime
}

func (a *cycleAwaitable) Await() error {
	t := <-a.ch
	a.out = &t
	return nil
}

// PerformCycle advances the scheduler by one cycle. Only the initiator's
// facade may call it (spec.md §4.3); every other caller gets an error.
func (f *Facade) PerformCycle() error {
	if f.id != f.kernel.initiatorID {
		return fmt.Errorf("kernel: only the initiator module may call PerformCycle, got %q", f.id)
	}
	return f.kernel.performCycle()
}
