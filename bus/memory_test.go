package bus

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

// standaloneMemory builds a kernel with a single bare (no multiplexer)
// memory device and an initiator that can emit directly to it, addressing
// it by its own module id group as the bus fabric requires.
func standaloneMemory(t *testing.T, kind Kind, size uint32) (*kernel.Kernel, *kernel.Facade, *kernel.Facade) {
	t.Helper()
	var memFacade *kernel.Facade
	var initFacade *kernel.Facade

	k, err := kernel.New([]kernel.ModuleSpec{
		{
			Id: "init",
			Constructor: func(id kernel.ModuleId, cfg any, f *kernel.Facade) (kernel.Module, error) {
				initFacade = f
				return &driver{decl: kernel.ModuleDeclaration{
					Initiator: true,
					Provided: []kernel.EventName{
						kernel.EvMemoryRead.WithGroup("mem0"),
						kernel.EvMemoryWrite.WithGroup("mem0"),
						kernel.EvUIMemoryRead.WithGroup("mem0"),
						kernel.EvUIMemoryWrite.WithGroup("mem0"),
						kernel.EvUIMemoryBulkWrite.WithGroup("mem0"),
						kernel.EvUIMemoryClear.WithGroup("mem0"),
					},
					Required: []kernel.Listener{
						{Name: kernel.EvMemoryReadResult, Callback: noop},
						{Name: kernel.EvMemoryWriteResult, Callback: noop},
						{Name: kernel.EvUIMemoryReadResult, Callback: noop},
						{Name: kernel.EvUIMemoryWriteResult, Callback: noop},
						{Name: kernel.EvUIMemoryBulkResult, Callback: noop},
					},
				}}, nil
			},
		},
		{
			Id:     "mem0",
			Config: MemoryConfig{Size: size, Kind: kind},
			Constructor: func(id kernel.ModuleId, cfg any, f *kernel.Facade) (kernel.Module, error) {
				memFacade = f
				return NewMemory(id, cfg, f)
			},
		},
	})
	require.NoError(t, err)
	return k, initFacade, memFacade
}

func TestMemoryUIReadWriteImmediate(t *testing.T) {
	_, init, _ := standaloneMemory(t, RAM, 16)

	var got []any
	require.NoError(t, init.On(kernel.EvUIMemoryWriteResult, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		got = args
		return nil
	}))
	require.NoError(t, init.Emit(kernel.EvUIMemoryWrite.WithGroup("mem0"), uint32(3), uint32(0xAB)))
	require.Equal(t, []any{uint32(3), uint32(0xAB)}, got)

	var readBack []any
	require.NoError(t, init.On(kernel.EvUIMemoryReadResult, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		readBack = args
		return nil
	}))
	require.NoError(t, init.Emit(kernel.EvUIMemoryRead.WithGroup("mem0"), uint32(3)))
	require.Equal(t, []any{uint32(3), byte(0xAB)}, readBack)
}

func TestMemoryCPUReadDelayedToSubcycle99(t *testing.T) {
	_, init, _ := standaloneMemory(t, RAM, 16)

	require.NoError(t, init.Emit(kernel.EvUIMemoryWrite.WithGroup("mem0"), uint32(5), uint32(0x42)))

	var fired bool
	var subcycleAt int
	require.NoError(t, init.On(kernel.EvMemoryReadResult, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		fired = true
		subcycleAt = ctx.Subcycle
		return nil
	}))

	// The read request must be issued from inside the cycle it expects its
	// delayed result within, exactly as the CPU drives memory:read from its
	// own cycle callback.
	issue(t, init, func() { require.NoError(t, init.Emit(kernel.EvMemoryRead.WithGroup("mem0"), uint32(5))) })
	require.NoError(t, init.PerformCycle())

	assert.True(t, fired)
	assert.Equal(t, resultSubcycle, subcycleAt)
}

func TestMemoryROMWritePanics(t *testing.T) {
	_, init, _ := standaloneMemory(t, ROM, 16)

	assert.Panics(t, func() {
		_ = init.Emit(kernel.EvUIMemoryWrite.WithGroup("mem0"), uint32(0), uint32(0xFF))
	})
}

func TestMemoryBulkWriteAndClear(t *testing.T) {
	_, init, _ := standaloneMemory(t, RAM, 8)

	var n any
	require.NoError(t, init.On(kernel.EvUIMemoryBulkResult, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		n = args[1]
		return nil
	}))
	require.NoError(t, init.Emit(kernel.EvUIMemoryBulkWrite.WithGroup("mem0"), uint32(0), []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	assert.Equal(t, 8, n)

	require.NoError(t, init.Emit(kernel.EvUIMemoryClear.WithGroup("mem0")))

	var readBack []any
	require.NoError(t, init.On(kernel.EvUIMemoryReadResult, func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
		readBack = args
		return nil
	}))
	require.NoError(t, init.Emit(kernel.EvUIMemoryRead.WithGroup("mem0"), uint32(2)))
	assert.Equal(t, []any{uint32(2), byte(0)}, readBack)
}

func TestMemoryBulkWriteOversizedPanics(t *testing.T) {
	_, init, _ := standaloneMemory(t, RAM, 8)

	assert.Panics(t, func() {
		_ = init.Emit(kernel.EvUIMemoryBulkWrite.WithGroup("mem0"), uint32(0), []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	})
}

func TestMemoryBulkWriteOversizedAtOffsetPanics(t *testing.T) {
	_, init, _ := standaloneMemory(t, RAM, 8)

	assert.Panics(t, func() {
		_ = init.Emit(kernel.EvUIMemoryBulkWrite.WithGroup("mem0"), uint32(4), []byte{1, 2, 3, 4, 5})
	})
}
