package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m6809sim/kernel"
)

type driver struct {
	decl kernel.ModuleDeclaration
}

func (d *driver) Declaration() kernel.ModuleDeclaration { return d.decl }

// issue schedules a bus-facing emission to happen from inside the next
// performed cycle, mirroring how a CPU always drives memory:read/write
// from within its own cycle callback (see bus/multiplexer_test.go).
func issue(t *testing.T, f *kernel.Facade, emit func()) {
	t.Helper()
	require.NoError(t, f.OnceCycle(func(cycle, subcycle int) kernel.Awaitable {
		emit()
		return nil
	}, kernel.CycleOpts{Subcycle: 10}))
}

// --- PIA6820 ---

func standalonePia(t *testing.T) (*kernel.Kernel, *kernel.Facade) {
	t.Helper()
	var initFacade *kernel.Facade
	k, err := kernel.New([]kernel.ModuleSpec{
		{
			Id: "init",
			Constructor: func(id kernel.ModuleId, cfg any, f *kernel.Facade) (kernel.Module, error) {
				initFacade = f
				return &driver{decl: kernel.ModuleDeclaration{
					Initiator: true,
					Provided: []kernel.EventName{
						kernel.EvMemoryRead.WithGroup("pia0"),
						kernel.EvMemoryWrite.WithGroup("pia0"),
					},
					Required: []kernel.Listener{
						{Name: kernel.EvMemoryReadResult, Callback: noop},
						{Name: kernel.EvMemoryWriteResult, Callback: noop},
						{Name: kernel.EvPIACA.WithGroup("pia0"), Callback: noop},
						{Name: kernel.EvPIACB.WithGroup("pia0"), Callback: noop},
						{Name: kernel.EvPIADataA.WithGroup("pia0"), Callback: noop},
						{Name: kernel.EvPIADataB.WithGroup("pia0"), Callback: noop},
					},
				}}, nil
			},
		},
		{Id: "pia0", Config: PIAConfig{}, Constructor: NewPia},
	})
	require.NoError(t, err)
	return k, initFacade
}

func TestPiaWriteEchoesRegisterEventAndAcksAtSubcycle90(t *testing.T) {
	_, init := standalonePia(t)

	var echoed any
	var writeResultSubcycle int
	require.NoError(t, init.On(kernel.EvPIADataA.WithGroup("pia0"), func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		echoed = args[0]
		return nil
	}))
	require.NoError(t, init.On(kernel.EvMemoryWriteResult, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		writeResultSubcycle = ctx.Subcycle
		return nil
	}))

	issue(t, init, func() {
		require.NoError(t, init.Emit(kernel.EvMemoryWrite.WithGroup("pia0"), uint32(1), uint32(0x7A)))
	})
	require.NoError(t, init.PerformCycle())

	assert.Equal(t, byte(0x7A), echoed)
	assert.Equal(t, piaResultSubcycle, writeResultSubcycle)
}

func TestPiaReadBackLastWrittenValue(t *testing.T) {
	_, init := standalonePia(t)

	issue(t, init, func() {
		require.NoError(t, init.Emit(kernel.EvMemoryWrite.WithGroup("pia0"), uint32(3), uint32(0x11)))
	})
	require.NoError(t, init.PerformCycle())

	var readBack []any
	require.NoError(t, init.On(kernel.EvMemoryReadResult, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		readBack = args
		return nil
	}))
	issue(t, init, func() { require.NoError(t, init.Emit(kernel.EvMemoryRead.WithGroup("pia0"), uint32(3))) })
	require.NoError(t, init.PerformCycle())

	assert.Equal(t, []any{uint32(3), byte(0x11)}, readBack)
}

// --- Interrupter ---

func standaloneInterrupter(t *testing.T, cfg InterrupterConfig) (*kernel.Kernel, *kernel.Facade) {
	t.Helper()
	var initFacade *kernel.Facade
	required := []kernel.Listener{
		{Name: kernel.EvSignalNMI, Callback: noop},
		{Name: kernel.EvSignalIRQ, Callback: noop},
		{Name: kernel.EvSignalFIRQ, Callback: noop},
	}
	var provided []kernel.EventName
	if cfg.Device {
		provided = []kernel.EventName{
			kernel.EvMemoryRead.WithGroup("int0"),
			kernel.EvMemoryWrite.WithGroup("int0"),
		}
		required = append(required,
			kernel.Listener{Name: kernel.EvMemoryReadResult, Callback: noop},
			kernel.Listener{Name: kernel.EvMemoryWriteResult, Callback: noop},
		)
	}
	k, err := kernel.New([]kernel.ModuleSpec{
		{
			Id: "init",
			Constructor: func(id kernel.ModuleId, cfgAny any, f *kernel.Facade) (kernel.Module, error) {
				initFacade = f
				return &driver{decl: kernel.ModuleDeclaration{Initiator: true, Provided: provided, Required: required}}, nil
			},
		},
		{Id: "int0", Config: cfg, Constructor: NewInterrupter},
	})
	require.NoError(t, err)
	return k, initFacade
}

func TestInterrupterFiresEveryEachCycles(t *testing.T) {
	_, init := standaloneInterrupter(t, InterrupterConfig{Each: 3, Type: SigIRQ})

	var fires int
	require.NoError(t, init.On(kernel.EvSignalIRQ, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		fires++
		return nil
	}))

	for i := 0; i < 9; i++ {
		require.NoError(t, init.PerformCycle())
	}
	assert.Equal(t, 3, fires)
}

func TestInterrupterDeviceModeReprogramsPeriodAndType(t *testing.T) {
	_, init := standaloneInterrupter(t, InterrupterConfig{Each: 100, Type: SigIRQ, Device: true})

	var nmiFired, irqFired bool
	require.NoError(t, init.On(kernel.EvSignalNMI, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		nmiFired = true
		return nil
	}))
	require.NoError(t, init.On(kernel.EvSignalIRQ, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		irqFired = true
		return nil
	}))

	// Reprogram type -> NMI first, each_low -> 2 second: the tick fires at
	// subcycle 0, before either same-cycle write lands at subcycle 10, so
	// reprogramming type after each would let one stale-type firing slip
	// through on the cycle each's new threshold is first met.
	issue(t, init, func() {
		require.NoError(t, init.Emit(kernel.EvMemoryWrite.WithGroup("int0"), uint32(2), uint32(byte(SigNMI))))
	})
	require.NoError(t, init.PerformCycle())
	issue(t, init, func() {
		require.NoError(t, init.Emit(kernel.EvMemoryWrite.WithGroup("int0"), uint32(1), uint32(2)))
	})
	require.NoError(t, init.PerformCycle())

	require.NoError(t, init.PerformCycle())

	assert.True(t, nmiFired, "reprogrammed type must take effect")
	assert.False(t, irqFired, "original type must no longer fire")
}

// --- Screen ---

func standaloneScreen(t *testing.T, size uint32) (*kernel.Kernel, *kernel.Facade, *Screen) {
	t.Helper()
	var initFacade *kernel.Facade
	var screen *Screen
	k, err := kernel.New([]kernel.ModuleSpec{
		{
			Id: "init",
			Constructor: func(id kernel.ModuleId, cfg any, f *kernel.Facade) (kernel.Module, error) {
				initFacade = f
				return &driver{decl: kernel.ModuleDeclaration{
					Initiator: true,
					Provided: []kernel.EventName{
						kernel.EvMemoryWrite.WithGroup("scr0"),
						kernel.EvUIMemoryRead.WithGroup("scr0"),
						kernel.EvUIMemoryBulkWrite.WithGroup("scr0"),
						kernel.EvUIMemoryClear.WithGroup("scr0"),
					},
					Required: []kernel.Listener{
						{Name: kernel.EvMemoryWriteResult, Callback: noop},
						{Name: kernel.EvUIMemoryReadResult, Callback: noop},
						{Name: kernel.EvUIMemoryBulkResult, Callback: noop},
					},
				}}, nil
			},
		},
		{
			Id:     "scr0",
			Config: ScreenConfig{Size: size},
			Constructor: func(id kernel.ModuleId, cfg any, f *kernel.Facade) (kernel.Module, error) {
				m, err := NewScreen(id, cfg, f)
				screen, _ = m.(*Screen)
				return m, err
			},
		},
	})
	require.NoError(t, err)
	return k, initFacade, screen
}

func TestScreenCPUWriteThenUIReadRoundTrips(t *testing.T) {
	_, init, screen := standaloneScreen(t, 32)

	issue(t, init, func() {
		require.NoError(t, init.Emit(kernel.EvMemoryWrite.WithGroup("scr0"), uint32(4), uint32('A')))
	})
	require.NoError(t, init.PerformCycle())

	assert.Equal(t, byte('A'), screen.Contents()[4])

	var readBack []any
	require.NoError(t, init.On(kernel.EvUIMemoryReadResult, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		readBack = args
		return nil
	}))
	require.NoError(t, init.Emit(kernel.EvUIMemoryRead.WithGroup("scr0"), uint32(4)))
	assert.Equal(t, []any{uint32(4), byte('A')}, readBack)
}

func TestScreenBulkWriteAndClear(t *testing.T) {
	_, init, screen := standaloneScreen(t, 4)

	require.NoError(t, init.Emit(kernel.EvUIMemoryBulkWrite.WithGroup("scr0"), uint32(0), []byte("helo")))
	assert.Equal(t, []byte("helo"), screen.Contents())

	require.NoError(t, init.Emit(kernel.EvUIMemoryClear.WithGroup("scr0")))
	assert.Equal(t, []byte{0, 0, 0, 0}, screen.Contents())
}

func TestScreenBulkWriteOversizedPanics(t *testing.T) {
	_, init, _ := standaloneScreen(t, 4)

	assert.Panics(t, func() {
		_ = init.Emit(kernel.EvUIMemoryBulkWrite.WithGroup("scr0"), uint32(0), []byte("hello"))
	})
}

func TestScreenBulkWriteOversizedAtOffsetPanics(t *testing.T) {
	_, init, _ := standaloneScreen(t, 4)

	assert.Panics(t, func() {
		_ = init.Emit(kernel.EvUIMemoryBulkWrite.WithGroup("scr0"), uint32(2), []byte("abc"))
	})
}

// --- Stop ---

func standaloneStop(t *testing.T) (*kernel.Kernel, *kernel.Facade) {
	t.Helper()
	var initFacade *kernel.Facade
	k, err := kernel.New([]kernel.ModuleSpec{
		{
			Id: "init",
			Constructor: func(id kernel.ModuleId, cfg any, f *kernel.Facade) (kernel.Module, error) {
				initFacade = f
				return &driver{decl: kernel.ModuleDeclaration{
					Initiator: true,
					Provided:  []kernel.EventName{kernel.EvMemoryWrite.WithGroup("stop0")},
					Required: []kernel.Listener{
						{Name: kernel.EvMemoryWriteResult, Callback: noop},
						{Name: kernel.EvStopFinished, Callback: noop},
					},
				}}, nil
			},
		},
		{Id: "stop0", Config: StopConfig{}, Constructor: NewStop},
	})
	require.NoError(t, err)
	return k, initFacade
}

func TestStopWriteEmitsStopFinished(t *testing.T) {
	_, init := standaloneStop(t)

	var finished bool
	require.NoError(t, init.On(kernel.EvStopFinished, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		finished = true
		return nil
	}))

	issue(t, init, func() {
		require.NoError(t, init.Emit(kernel.EvMemoryWrite.WithGroup("stop0"), uint32(0), uint32(1)))
	})
	require.NoError(t, init.PerformCycle())

	assert.True(t, finished)
}
