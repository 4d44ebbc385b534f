// Package kernel implements the simulation kernel (spec.md §4.3): module
// registry, typed publish/subscribe event bus with emitter-scoped
// permission checks, and the priority-ordered per-cycle scheduler that
// drives every other subsystem one bus cycle at a time.
package kernel

import (
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ModuleId is an opaque, process-wide-unique module identifier.
type ModuleId string

// starCaller is reserved for kernel-internal or test emissions; it bypasses
// all permission checks (spec.md §4.3, §9). It is never handed to modules.
const starCaller ModuleId = "*"

// Awaitable is the suspension contract described in spec.md §5: a value a
// callback may return so the kernel collects and drains it before the
// cycle continues. drainPending calls each collected Await on its own
// errgroup goroutine and blocks until all of them return, so an Awaitable
// that nothing left in the current cycle can resolve blocks performCycle.
type Awaitable interface {
	Await() error
}

// AwaitableFunc adapts a plain function to Awaitable.
type AwaitableFunc func() error

func (f AwaitableFunc) Await() error { return f() }

// EventCallback is the signature of an event listener. ctx is delivered as
// the implicit last argument described in spec.md §4.3.
type EventCallback func(ctx EventContext, args ...any) Awaitable

// CycleCallback is the signature of a cycle-queue entry.
type CycleCallback func(cycle, subcycle int) Awaitable

// CycleTime is a (cycle, subcycle) pair; the scheduler's sole notion of
// virtual time (spec.md §2, Glossary).
type CycleTime struct {
	Cycle    int
	Subcycle int
}

func (t CycleTime) String() string { return fmt.Sprintf("(cycle=%d, subcycle=%d)", t.Cycle, t.Subcycle) }

// Less reports whether t strictly precedes o.
func (t CycleTime) Less(o CycleTime) bool {
	if t.Cycle != o.Cycle {
		return t.Cycle < o.Cycle
	}
	return t.Subcycle < o.Subcycle
}

// Listener pairs an event name with the callback a module wants installed
// for it (spec.md §3 ModuleDeclaration: required/optional listener maps).
type Listener struct {
	Name     EventName
	Callback EventCallback
}

// CycleListener is a permanent cycle listener installed at construction
// time (spec.md §3).
type CycleListener struct {
	Callback CycleCallback
	Subcycle int
}

// ModuleDeclaration is the immutable-after-construction contract a module
// publishes to the kernel (spec.md §3).
type ModuleDeclaration struct {
	Provided       []EventName
	Required       []Listener
	Optional       []Listener
	CycleListeners []CycleListener
	Initiator      bool
}

// Module is the minimal capability every kernel-managed module exposes
// (spec.md §9 "Dynamic dispatch over heterogeneous modules").
type Module interface {
	Declaration() ModuleDeclaration
}

// Constructor builds a Module given its assigned id, its raw
// configuration blob (module-specific; typically produced by the config
// package), and the facade it must use for all bus/cycle interaction.
type Constructor func(id ModuleId, cfg any, facade *Facade) (Module, error)

// ModuleSpec names one entry in the ordered module list passed to New.
type ModuleSpec struct {
	Id          ModuleId
	Config      any
	Constructor Constructor
}

type subscription struct {
	seq      int64
	once     bool
	when     func(args []any) bool
	callback EventCallback
	owner    ModuleId
}

type cycleEntry struct {
	owner    ModuleId
	callback CycleCallback
	when     CycleTime
	rearm    bool // onCycle: reinstall at (cycle+1, same subcycle) after firing
	seq      int64
}

// Kernel owns the module graph, the subscriber table, and the cycle queue.
// It is the sole mutator of all three, always from a single goroutine.
type Kernel struct {
	modules      map[ModuleId]Module
	declarations map[ModuleId]ModuleDeclaration
	facades      map[ModuleId]*Facade
	providedSet  map[EventName]bool

	subscribers map[EventName][]*subscription
	subSeq      int64

	cycleQueue *PriorityQueue[cycleEntry]
	cycleSeq   int64
	now        CycleTime

	initiatorID ModuleId

	pending []Awaitable
}

// New constructs the kernel per spec.md §4.3: validates id uniqueness,
// instantiates every module in order, verifies the required/provided
// contract and the single-initiator invariant, installs every declared
// listener, and finally emits system:load_finish.
func New(specs []ModuleSpec) (*Kernel, error) {
	k := &Kernel{
		modules:      make(map[ModuleId]Module),
		declarations: make(map[ModuleId]ModuleDeclaration),
		facades:      make(map[ModuleId]*Facade),
		providedSet:  make(map[EventName]bool),
		subscribers:  make(map[EventName][]*subscription),
		now:          CycleTime{Cycle: 0, Subcycle: 0},
	}
	k.cycleQueue = NewPriorityQueue(func(a, b cycleEntry) bool {
		if a.when != b.when {
			return a.when.Less(b.when)
		}
		return a.seq < b.seq
	})

	seen := make(map[ModuleId]bool, len(specs))
	order := make([]ModuleId, 0, len(specs))

	for _, spec := range specs {
		if spec.Id == "" {
			return nil, &ConfigError{Reason: "module id must not be empty"}
		}
		if seen[spec.Id] {
			return nil, &ConfigError{Reason: fmt.Sprintf("duplicate module id %q", spec.Id)}
		}
		seen[spec.Id] = true

		facade := &Facade{kernel: k, id: spec.Id}
		mod, err := spec.Constructor(spec.Id, spec.Config, facade)
		if err != nil {
			return nil, err
		}

		decl := mod.Declaration()
		k.modules[spec.Id] = mod
		k.declarations[spec.Id] = decl
		k.facades[spec.Id] = facade
		order = append(order, spec.Id)

		for _, name := range decl.Provided {
			k.providedSet[name] = true
		}
		if decl.Initiator {
			if k.initiatorID != "" {
				return nil, &ConfigError{Reason: "multiple initiator modules declared"}
			}
			k.initiatorID = spec.Id
		}
	}

	if k.initiatorID == "" {
		return nil, &ConfigError{Reason: "no initiator module declared"}
	}

	for _, id := range order {
		decl := k.declarations[id]
		for _, l := range decl.Required {
			base := l.Name.Base()
			if hasSystemPrefix(base) {
				continue
			}
			if !k.providedSet[l.Name] && !k.providedSet[base] {
				return nil, &ConfigError{Reason: fmt.Sprintf("module %q requires %q, which no module provides", id, l.Name)}
			}
		}
	}

	for _, id := range order {
		decl := k.declarations[id]
		facade := k.facades[id]
		for _, l := range decl.Required {
			facade.On(l.Name, l.Callback)
		}
		for _, l := range decl.Optional {
			facade.On(l.Name, l.Callback)
		}
		for _, cl := range decl.CycleListeners {
			facade.OnCycle(cl.Callback, cl.Subcycle)
		}
	}

	k.emit(starCaller, EvSystemLoadFinish)

	return k, nil
}

func hasSystemPrefix(name EventName) bool {
	s := string(name)
	return len(s) >= 7 && s[:7] == "system:"
}

// canEmit / canListen implement the permission policy of spec.md §4.3.
//
// A caller whose own declaration isn't registered yet is still mid-
// construction (New stores it only after the constructor returns, see
// below): the facade it holds is its own and cannot have reached any
// other module yet, so a module bootstrapping its own subscriptions or
// emissions from inside its constructor is trusted unconditionally.
// Once New finishes, every caller has a declaration and the checks
// below are the only thing deciding permission.
func (k *Kernel) canEmit(caller ModuleId, name EventName) bool {
	if caller == starCaller {
		return true
	}
	decl, ok := k.declarations[caller]
	if !ok {
		return true
	}
	for _, p := range decl.Provided {
		if p == name {
			return true
		}
	}
	return false
}

func (k *Kernel) canListen(caller ModuleId, name EventName) bool {
	if caller == starCaller {
		return true
	}
	decl, ok := k.declarations[caller]
	if !ok {
		return true
	}
	for _, l := range decl.Required {
		if l.Name == name {
			return true
		}
	}
	for _, l := range decl.Optional {
		if l.Name == name {
			return true
		}
	}
	return false
}

// emit performs synchronous fan-out to subscribers in subscription order.
// Listeners installed during this emission (including by "once" wrappers
// removing themselves) are not visible to it: the list is snapshotted.
func (k *Kernel) emit(caller ModuleId, name EventName, args ...any) {
	ctx := EventContext{Emitter: caller, Cycle: k.now.Cycle, Subcycle: k.now.Subcycle}

	subs := k.subscribers[name]
	snapshot := make([]*subscription, len(subs))
	copy(snapshot, subs)

	for _, sub := range snapshot {
		if sub.once {
			k.removeSubscription(name, sub)
		}
		if sub.when != nil && !sub.when(args) {
			if sub.once {
				// predicate rejected; re-install since removal above was
				// unconditional for once-listeners.
				k.reinstallOnce(name, sub)
			}
			continue
		}
		aw := sub.callback(ctx, args...)
		if aw != nil {
			k.pending = append(k.pending, aw)
		}
	}
}

func (k *Kernel) removeSubscription(name EventName, target *subscription) {
	subs := k.subscribers[name]
	out := subs[:0]
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	k.subscribers[name] = out
}

func (k *Kernel) reinstallOnce(name EventName, sub *subscription) {
	k.subscribers[name] = append([]*subscription{sub}, k.subscribers[name]...)
}

// on installs a permanent, append-only subscription.
func (k *Kernel) on(owner ModuleId, name EventName, cb EventCallback) {
	k.subSeq++
	sub := &subscription{seq: k.subSeq, callback: cb, owner: owner}
	k.subscribers[name] = append(k.subscribers[name], sub)
}

// once installs a one-shot subscription, prepended so it fires before
// permanent listeners installed earlier (spec.md §4.3).
func (k *Kernel) once(owner ModuleId, name EventName, when func(args []any) bool, cb EventCallback) {
	k.subSeq++
	sub := &subscription{seq: k.subSeq, once: true, when: when, callback: cb, owner: owner}
	k.subscribers[name] = append([]*subscription{sub}, k.subscribers[name]...)
}

// scheduleCycle enqueues cb at the given absolute time, erroring if that
// time does not strictly dominate the scheduler's current position
// (spec.md §3, §7 "Timing violation").
func (k *Kernel) scheduleCycle(owner ModuleId, cb CycleCallback, when CycleTime, rearm bool) error {
	if !k.now.Less(when) {
		return &TimingViolationError{Current: k.now, Proposed: when}
	}
	k.cycleSeq++
	k.cycleQueue.Enqueue(cycleEntry{owner: owner, callback: cb, when: when, rearm: rearm, seq: k.cycleSeq})
	return nil
}

// performCycle is the kernel's only caller-restricted operation: only the
// initiator's facade may invoke it (spec.md §4.3).
const (
	subcycleNegInf = -1 << 30
	subcyclePosInf = 1 << 30
)

func (k *Kernel) performCycle() error {
	k.now.Cycle++
	k.now.Subcycle = subcycleNegInf // reset the subcycle low-water mark to -inf

	for {
		top, ok := k.cycleQueue.Peek()
		if !ok || top.when.Cycle != k.now.Cycle {
			break
		}
		entry, _ := k.cycleQueue.Dequeue()
		k.now.Subcycle = entry.when.Subcycle

		k.pending = k.pending[:0]
		aw := entry.callback(entry.when.Cycle, entry.when.Subcycle)
		if aw != nil {
			k.pending = append(k.pending, aw)
		}
		if err := k.drainPending(); err != nil {
			return err
		}

		if entry.rearm {
			next := CycleTime{Cycle: entry.when.Cycle + 1, Subcycle: entry.when.Subcycle}
			k.cycleSeq++
			k.cycleQueue.Enqueue(cycleEntry{owner: entry.owner, callback: entry.callback, when: next, rearm: true, seq: k.cycleSeq})
		}
	}

	// The cycle is now fully closed: no further scheduling at this cycle
	// number is permitted, even though the subcycle floor may never have
	// advanced past -inf if the queue held nothing for this cycle.
	k.now.Subcycle = subcyclePosInf
	return nil
}

func (k *Kernel) drainPending() error {
	if len(k.pending) == 0 {
		return nil
	}
	var g errgroup.Group
	for _, aw := range k.pending {
		aw := aw
		g.Go(func() error { return aw.Await() })
	}
	k.pending = k.pending[:0]
	return g.Wait()
}

// ModuleIds returns every registered module id, sorted by id.
func (k *Kernel) ModuleIds() []ModuleId {
	ids := make([]ModuleId, 0, len(k.modules))
	for id := range k.modules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Module looks up a registered module by id.
func (k *Kernel) Module(id ModuleId) (Module, bool) {
	m, ok := k.modules[id]
	return m, ok
}

// Now reports the scheduler's current (cycle, subcycle) position.
func (k *Kernel) Now() CycleTime { return k.now }

// Facade returns the per-module facade for id, or nil if unregistered.
// Exposed for tests that need to drive a module without the full
// constructor pipeline's privilege boundary.
func (k *Kernel) Facade(id ModuleId) *Facade { return k.facades[id] }
