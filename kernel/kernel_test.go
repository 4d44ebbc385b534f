package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModule is a minimal Module used across kernel tests.
type fakeModule struct {
	decl ModuleDeclaration
}

func (m *fakeModule) Declaration() ModuleDeclaration { return m.decl }

func initiatorSpec(id ModuleId) ModuleSpec {
	return ModuleSpec{
		Id: id,
		Constructor: func(id ModuleId, cfg any, facade *Facade) (Module, error) {
			return &fakeModule{decl: ModuleDeclaration{Initiator: true}}, nil
		},
	}
}

func TestNewRequiresExactlyOneInitiator(t *testing.T) {
	_, err := New([]ModuleSpec{
		{Id: "a", Constructor: func(id ModuleId, cfg any, f *Facade) (Module, error) {
			return &fakeModule{}, nil
		}},
	})
	require.Error(t, err)
	assert.IsType(t, &ConfigError{}, err)
}

func TestNewRejectsDuplicateIds(t *testing.T) {
	spec := initiatorSpec("dup")
	_, err := New([]ModuleSpec{spec, initiatorSpec("dup")})
	require.Error(t, err)
}

func TestNewRejectsUnsatisfiedRequired(t *testing.T) {
	producer := ModuleSpec{
		Id: "init",
		Constructor: func(id ModuleId, cfg any, f *Facade) (Module, error) {
			return &fakeModule{decl: ModuleDeclaration{
				Initiator: true,
				Required:  []Listener{{Name: "thing:missing", Callback: noop}},
			}}, nil
		},
	}
	_, err := New([]ModuleSpec{producer})
	require.Error(t, err)
	assert.IsType(t, &ConfigError{}, err)
}

func noop(ctx EventContext, args ...any) Awaitable { return nil }

func TestEmitPermissionDenied(t *testing.T) {
	var facade *Facade
	k, err := New([]ModuleSpec{
		{
			Id: "init",
			Constructor: func(id ModuleId, cfg any, f *Facade) (Module, error) {
				facade = f
				return &fakeModule{decl: ModuleDeclaration{Initiator: true}}, nil
			},
		},
	})
	require.NoError(t, err)
	_ = k

	err = facade.Emit("not:provided")
	require.Error(t, err)
	assert.IsType(t, &BusViolationError{}, err)
}

func TestOnceFiresBeforePermanentListenersAndOnlyOnce(t *testing.T) {
	var order []string
	var facade *Facade
	k, err := New([]ModuleSpec{
		{
			Id: "init",
			Constructor: func(id ModuleId, cfg any, f *Facade) (Module, error) {
				facade = f
				return &fakeModule{decl: ModuleDeclaration{
					Initiator: true,
					Provided:  []EventName{"ping"},
					Required:  []Listener{{Name: "ping", Callback: func(ctx EventContext, args ...any) Awaitable { order = append(order, "permanent"); return nil }}},
				}}, nil
			},
		},
	})
	require.NoError(t, err)
	_ = k

	require.NoError(t, facade.Once("ping", func(ctx EventContext, args ...any) Awaitable {
		order = append(order, "once")
		return nil
	}))

	require.NoError(t, facade.Emit("ping"))
	require.NoError(t, facade.Emit("ping"))

	assert.Equal(t, []string{"once", "permanent", "permanent"}, order)
}

func TestSubscriberSnapshotExcludesListenersAddedDuringEmission(t *testing.T) {
	var fired int
	var facade *Facade
	_, err := New([]ModuleSpec{
		{
			Id: "init",
			Constructor: func(id ModuleId, cfg any, f *Facade) (Module, error) {
				facade = f
				return &fakeModule{decl: ModuleDeclaration{
					Initiator: true,
					Provided:  []EventName{"ev"},
					Required: []Listener{{Name: "ev", Callback: func(ctx EventContext, args ...any) Awaitable {
						// Installing a new listener mid-emission must not
						// affect this emission's snapshot.
						facade.On("ev", func(ctx EventContext, args ...any) Awaitable {
							fired++
							return nil
						})
						return nil
					}}},
				}}, nil
			},
		},
	})
	require.NoError(t, err)

	require.NoError(t, facade.Emit("ev"))
	assert.Equal(t, 0, fired, "listener added during emission must not see that same emission")

	require.NoError(t, facade.Emit("ev"))
	assert.Equal(t, 1, fired, "but it should fire on the next emission")
}

func TestPerformCycleOnlyInitiator(t *testing.T) {
	var other *Facade
	_, err := New([]ModuleSpec{
		initiatorSpec("init"),
		{
			Id: "other",
			Constructor: func(id ModuleId, cfg any, f *Facade) (Module, error) {
				other = f
				return &fakeModule{}, nil
			},
		},
	})
	require.NoError(t, err)

	err = other.PerformCycle()
	require.Error(t, err)
}

func TestPerformCycleOrdersCallbacksBySubcycle(t *testing.T) {
	var order []int
	var facade *Facade
	_, err := New([]ModuleSpec{
		{
			Id: "init",
			Constructor: func(id ModuleId, cfg any, f *Facade) (Module, error) {
				facade = f
				return &fakeModule{decl: ModuleDeclaration{Initiator: true}}, nil
			},
		},
	})
	require.NoError(t, err)

	require.NoError(t, facade.OnceCycle(func(cycle, subcycle int) Awaitable {
		order = append(order, 100)
		return nil
	}, CycleOpts{Cycle: 1, Subcycle: 100}))
	require.NoError(t, facade.OnceCycle(func(cycle, subcycle int) Awaitable {
		order = append(order, 0)
		return nil
	}, CycleOpts{Cycle: 1, Subcycle: 0}))
	require.NoError(t, facade.OnceCycle(func(cycle, subcycle int) Awaitable {
		order = append(order, 99)
		return nil
	}, CycleOpts{Cycle: 1, Subcycle: 99}))

	require.NoError(t, facade.PerformCycle())
	assert.Equal(t, []int{0, 99, 100}, order)
}

func TestOnCycleRearms(t *testing.T) {
	var count int
	var facade *Facade
	_, err := New([]ModuleSpec{
		{
			Id: "init",
			Constructor: func(id ModuleId, cfg any, f *Facade) (Module, error) {
				facade = f
				return &fakeModule{decl: ModuleDeclaration{Initiator: true}}, nil
			},
		},
	})
	require.NoError(t, err)

	require.NoError(t, facade.OnCycle(func(cycle, subcycle int) Awaitable {
		count++
		return nil
	}, 0))

	require.NoError(t, facade.PerformCycle())
	require.NoError(t, facade.PerformCycle())
	require.NoError(t, facade.PerformCycle())
	assert.Equal(t, 3, count)
}

func TestSchedulingInThePastFails(t *testing.T) {
	var facade *Facade
	_, err := New([]ModuleSpec{
		{
			Id: "init",
			Constructor: func(id ModuleId, cfg any, f *Facade) (Module, error) {
				facade = f
				return &fakeModule{decl: ModuleDeclaration{Initiator: true}}, nil
			},
		},
	})
	require.NoError(t, err)

	require.NoError(t, facade.PerformCycle()) // now at cycle 1
	err = facade.OnceCycle(func(cycle, subcycle int) Awaitable { return nil }, CycleOpts{Cycle: 1, Subcycle: 0})
	require.Error(t, err)
	assert.IsType(t, &TimingViolationError{}, err)
}

func TestEmitAndWaitResolvesSynchronously(t *testing.T) {
	var facade *Facade
	_, err := New([]ModuleSpec{
		{
			Id: "init",
			Constructor: func(id ModuleId, cfg any, f *Facade) (Module, error) {
				facade = f
				return &fakeModule{decl: ModuleDeclaration{
					Initiator: true,
					Provided:  []EventName{"request", "response"},
					Required: []Listener{{Name: "request", Callback: func(ctx EventContext, args ...any) Awaitable {
						facade.Emit("response", 42)
						return nil
					}}},
					Optional: []Listener{{Name: "response", Callback: func(ctx EventContext, args ...any) Awaitable { return nil }}},
				}}, nil
			},
		},
	})
	require.NoError(t, err)

	w, err := facade.EmitAndWait("response", nil, "request")
	require.NoError(t, err)
	require.NoError(t, w.Await())
	_, args := w.Result()
	require.Len(t, args, 1)
	assert.Equal(t, 42, args[0])
}
