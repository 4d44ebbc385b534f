package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m6809sim/bus"
	"m6809sim/cpu"
	"m6809sim/devices"
	"m6809sim/kernel"
)

func TestParseBuildsModuleSpecsInOrder(t *testing.T) {
	doc := `{
		// a line comment, since this is JSONC
		"simulator": {
			"url": "file://program.s19",
			"modules": [
				{"id": "cpu0", "type": "cpu", "config": {"resetVector": "0xFFFE", "irqVector": 65522}},
				{"id": "mux0", "type": "multiplexer", "config": {"entries": [
					{"module": "ram0", "start": "0x0000", "size": 4096, "priority": 1}
				]}},
				{"id": "ram0", "type": "memory", "config": {"size": 4096, "type": "ram", "multiplexer": "mux0"}},
				{"id": "int0", "type": "interrupter", "config": {"each": 100, "type": "irq"}}
			]
		}
	}`

	specs, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, specs, 4)

	assert.Equal(t, kernel.ModuleId("cpu0"), specs[0].Id)
	cpuCfg, ok := specs[0].Config.(cpu.CPUConfig)
	require.True(t, ok)
	assert.Equal(t, uint16(0xFFFE), cpuCfg.ResetVector)
	assert.Equal(t, uint16(65522), cpuCfg.IRQVector)

	muxCfg, ok := specs[1].Config.(bus.MultiplexerConfig)
	require.True(t, ok)
	require.Len(t, muxCfg.Entries, 1)
	assert.Equal(t, kernel.ModuleId("ram0"), muxCfg.Entries[0].Module)
	assert.Equal(t, uint32(0), muxCfg.Entries[0].Start)

	memCfg, ok := specs[2].Config.(bus.MemoryConfig)
	require.True(t, ok)
	assert.Equal(t, uint32(4096), memCfg.Size)
	assert.Equal(t, bus.RAM, memCfg.Kind)
	assert.Equal(t, kernel.ModuleId("mux0"), memCfg.Multiplexer)

	intCfg, ok := specs[3].Config.(devices.InterrupterConfig)
	require.True(t, ok)
	assert.Equal(t, uint16(100), intCfg.Each)
	assert.Equal(t, devices.SigIRQ, intCfg.Type)
}

func TestParseRejectsDuplicateModuleId(t *testing.T) {
	doc := `{"simulator": {"modules": [
		{"id": "ram0", "type": "memory", "config": {"size": 16}},
		{"id": "ram0", "type": "memory", "config": {"size": 16}}
	]}}`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate module id")
}

func TestParseRejectsUnknownModuleType(t *testing.T) {
	doc := `{"simulator": {"modules": [{"id": "x", "type": "tape_deck", "config": {}}]}}`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown module type")
}

func TestParseRejectsBadIntLiteral(t *testing.T) {
	doc := `{"simulator": {"modules": [
		{"id": "cpu0", "type": "cpu", "config": {"resetVector": "not-a-number"}}
	]}}`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad config")
}

func TestParseRejectsMemoryMissingSize(t *testing.T) {
	doc := `{"simulator": {"modules": [{"id": "ram0", "type": "memory", "config": {}}]}}`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size")
}

func TestParseRejectsUnknownInterrupterType(t *testing.T) {
	doc := `{"simulator": {"modules": [
		{"id": "int0", "type": "interrupter", "config": {"each": 10, "type": "maskable-ish"}}
	]}}`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown interrupter")
}

func TestParseRejectsModuleMissingId(t *testing.T) {
	doc := `{"simulator": {"modules": [{"type": "memory", "config": {"size": 16}}]}}`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "\"id\"")
}

func TestParseAcceptsHexOctalAndBinaryIntLiterals(t *testing.T) {
	doc := `{"simulator": {"modules": [
		{"id": "mux0", "type": "multiplexer", "config": {"entries": [
			{"module": "ram0", "start": "0b100000000", "size": "0o10", "priority": 0}
		]}}
	]}}`
	specs, err := Parse([]byte(doc))
	require.NoError(t, err)
	muxCfg := specs[0].Config.(bus.MultiplexerConfig)
	assert.Equal(t, uint32(0x100), muxCfg.Entries[0].Start)
	assert.Equal(t, uint32(8), muxCfg.Entries[0].Size)
}
