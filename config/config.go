// Package config loads the JSON-with-comments document described in
// spec.md §6 and turns it into the ordered kernel.ModuleSpec list
// kernel.New takes (spec.md §4.3 "Construction"), validating each
// module's config against the field shapes spec.md §6/§9 name. Modeled
// on the load/validate/typed-error shape of a plain config loader,
// adapted from JSON to JSON-with-comments and from a single fixed
// struct to a per-module-type schema.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"m6809sim/bus"
	"m6809sim/cpu"
	"m6809sim/devices"
	"m6809sim/kernel"
)

// Error reports a malformed configuration document (spec.md §7
// "Configuration": fatal at construction — bad field type,
// out-of-range, unknown enum, missing required, duplicate module id).
type Error struct {
	ModuleId kernel.ModuleId // empty when the error isn't module-specific
	Reason   string
}

func (e *Error) Error() string {
	if e.ModuleId == "" {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config: module %q: %s", e.ModuleId, e.Reason)
}

// IntValue accepts spec.md §6's decimal/0x/0o/0b integer literal forms,
// whether the document spells them as a JSON number or a JSON string
// (hex/octal/binary addresses read far more naturally quoted). Go's
// base-0 parsing already understands all three prefixes, so there is
// nothing to hand-roll per form.
type IntValue uint64

func (v *IntValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = str
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return fmt.Errorf("not an integer literal: %q", s)
	}
	*v = IntValue(n)
	return nil
}

// Document is the top-level `{simulator: {url, modules: []ModuleSpec}}`
// shape named in SPEC_FULL.md's data model.
type Document struct {
	Simulator struct {
		URL     string       `json:"url"`
		Modules []moduleSpec `json:"modules"`
	} `json:"simulator"`
}

type moduleSpec struct {
	Id     string          `json:"id"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// Load reads path, strips JSONC comments, and builds the ordered
// kernel.ModuleSpec list ready for kernel.New. The document's own
// module order becomes the construction order (spec.md §4.3: modules
// are constructed in the order named).
func Load(path string) ([]kernel.ModuleSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Reason: fmt.Sprintf("reading %s: %v", path, err)}
	}
	return Parse(raw)
}

// Parse builds the ordered kernel.ModuleSpec list from a JSONC document
// already in memory (Load's counterpart for embedded/test documents).
func Parse(raw []byte) ([]kernel.ModuleSpec, error) {
	var doc Document
	if err := json.Unmarshal(jsonc.ToJSON(raw), &doc); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("parsing document: %v", err)}
	}

	seen := make(map[kernel.ModuleId]bool, len(doc.Simulator.Modules))
	specs := make([]kernel.ModuleSpec, 0, len(doc.Simulator.Modules))
	for _, m := range doc.Simulator.Modules {
		if m.Id == "" {
			return nil, &Error{Reason: "module missing required field \"id\""}
		}
		id := kernel.ModuleId(m.Id)
		if seen[id] {
			return nil, &Error{ModuleId: id, Reason: "duplicate module id"}
		}
		seen[id] = true

		cfg, ctor, err := buildModule(id, m.Type, m.Config)
		if err != nil {
			return nil, err
		}
		specs = append(specs, kernel.ModuleSpec{Id: id, Config: cfg, Constructor: ctor})
	}
	return specs, nil
}

// buildModule validates one module entry's config against the field
// shapes spec.md §6/§9 name for its type and returns the concrete
// config value plus the matching kernel.Constructor.
func buildModule(id kernel.ModuleId, typ string, raw json.RawMessage) (any, kernel.Constructor, error) {
	switch typ {
	case "cpu":
		var c cpuConfig
		if err := unmarshalConfig(id, raw, &c); err != nil {
			return nil, nil, err
		}
		for name, v := range map[string]IntValue{
			"resetVector": c.ResetVector, "nmiVector": c.NMIVector, "irqVector": c.IRQVector,
			"firqVector": c.FIRQVector, "swiVector": c.SWIVector, "swi2Vector": c.SWI2Vector, "swi3Vector": c.SWI3Vector,
		} {
			if v > 0xFFFF {
				return nil, nil, &Error{ModuleId: id, Reason: "cpu \"" + name + "\" out of range (0..0xFFFF)"}
			}
		}
		return cpu.CPUConfig{
			ResetVector: uint16(c.ResetVector),
			NMIVector:   uint16(c.NMIVector),
			IRQVector:   uint16(c.IRQVector),
			FIRQVector:  uint16(c.FIRQVector),
			SWIVector:   uint16(c.SWIVector),
			SWI2Vector:  uint16(c.SWI2Vector),
			SWI3Vector:  uint16(c.SWI3Vector),
		}, cpu.NewCpu, nil

	case "multiplexer":
		var m multiplexerConfig
		if err := unmarshalConfig(id, raw, &m); err != nil {
			return nil, nil, err
		}
		entries := make([]bus.Entry, 0, len(m.Entries))
		for _, e := range m.Entries {
			if e.Module == "" {
				return nil, nil, &Error{ModuleId: id, Reason: "multiplexer entry missing \"module\""}
			}
			entries = append(entries, bus.Entry{
				Module:   kernel.ModuleId(e.Module),
				Start:    uint32(e.Start),
				Size:     uint32(e.Size),
				Priority: e.Priority,
			})
		}
		return bus.MultiplexerConfig{Entries: entries}, bus.NewMultiplexer, nil

	case "memory":
		var m memoryConfig
		if err := unmarshalConfig(id, raw, &m); err != nil {
			return nil, nil, err
		}
		kind, err := parseMemoryKind(id, m.Kind)
		if err != nil {
			return nil, nil, err
		}
		if m.Size == 0 {
			return nil, nil, &Error{ModuleId: id, Reason: "memory \"size\" must be non-zero"}
		}
		return bus.MemoryConfig{
			Size:        uint32(m.Size),
			Kind:        kind,
			Multiplexer: kernel.ModuleId(m.Multiplexer),
		}, bus.NewMemory, nil

	case "pia6820":
		var p piaConfig
		if err := unmarshalConfig(id, raw, &p); err != nil {
			return nil, nil, err
		}
		return devices.PIAConfig{Multiplexer: kernel.ModuleId(p.Multiplexer)}, devices.NewPia, nil

	case "interrupter":
		var it interrupterConfig
		if err := unmarshalConfig(id, raw, &it); err != nil {
			return nil, nil, err
		}
		sigType, err := parseSignalType(id, it.Type)
		if err != nil {
			return nil, nil, err
		}
		if it.Each == 0 {
			return nil, nil, &Error{ModuleId: id, Reason: "interrupter \"each\" must be non-zero"}
		}
		if it.Each > 0xFFFF {
			return nil, nil, &Error{ModuleId: id, Reason: "interrupter \"each\" out of range (0..0xFFFF)"}
		}
		return devices.InterrupterConfig{
			Each:        uint16(it.Each),
			Type:        sigType,
			Device:      it.Device,
			Multiplexer: kernel.ModuleId(it.Multiplexer),
		}, devices.NewInterrupter, nil

	case "screen":
		var s screenConfig
		if err := unmarshalConfig(id, raw, &s); err != nil {
			return nil, nil, err
		}
		if s.Size == 0 {
			return nil, nil, &Error{ModuleId: id, Reason: "screen \"size\" must be non-zero"}
		}
		return devices.ScreenConfig{Size: uint32(s.Size), Multiplexer: kernel.ModuleId(s.Multiplexer)}, devices.NewScreen, nil

	case "stop":
		var s stopConfig
		if err := unmarshalConfig(id, raw, &s); err != nil {
			return nil, nil, err
		}
		return devices.StopConfig{Multiplexer: kernel.ModuleId(s.Multiplexer)}, devices.NewStop, nil

	case "":
		return nil, nil, &Error{ModuleId: id, Reason: "missing required field \"type\""}
	default:
		return nil, nil, &Error{ModuleId: id, Reason: fmt.Sprintf("unknown module type %q", typ)}
	}
}

func unmarshalConfig(id kernel.ModuleId, raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &Error{ModuleId: id, Reason: fmt.Sprintf("bad config: %v", err)}
	}
	return nil
}

// cpuConfig is spec.md §6's CPU schema: resetVector..swi3Vector.
type cpuConfig struct {
	ResetVector IntValue `json:"resetVector"`
	NMIVector   IntValue `json:"nmiVector"`
	IRQVector   IntValue `json:"irqVector"`
	FIRQVector  IntValue `json:"firqVector"`
	SWIVector   IntValue `json:"swiVector"`
	SWI2Vector  IntValue `json:"swi2Vector"`
	SWI3Vector  IntValue `json:"swi3Vector"`
}

// multiplexerConfig is spec.md §6's multiplexer schema: entries.
type multiplexerConfig struct {
	Entries []struct {
		Module   string   `json:"module"`
		Start    IntValue `json:"start"`
		Size     IntValue `json:"size"`
		Priority int      `json:"priority"`
	} `json:"entries"`
}

// memoryConfig is spec.md §6's memory schema: size/type/multiplexer.
type memoryConfig struct {
	Size        IntValue `json:"size"`
	Kind        string   `json:"type"`
	Multiplexer string   `json:"multiplexer"`
}

func parseMemoryKind(id kernel.ModuleId, s string) (bus.Kind, error) {
	switch s {
	case "ram", "":
		return bus.RAM, nil
	case "rom":
		return bus.ROM, nil
	default:
		return 0, &Error{ModuleId: id, Reason: fmt.Sprintf("unknown memory \"type\" %q", s)}
	}
}

type piaConfig struct {
	Multiplexer string `json:"multiplexer"`
}

// interrupterConfig is spec.md §6's interrupter schema: each/type/device.
type interrupterConfig struct {
	Each        IntValue `json:"each"`
	Type        string   `json:"type"`
	Device      bool     `json:"device"`
	Multiplexer string   `json:"multiplexer"`
}

func parseSignalType(id kernel.ModuleId, s string) (devices.SignalType, error) {
	switch s {
	case "nmi", "":
		return devices.SigNMI, nil
	case "irq":
		return devices.SigIRQ, nil
	case "firq":
		return devices.SigFIRQ, nil
	default:
		return 0, &Error{ModuleId: id, Reason: fmt.Sprintf("unknown interrupter \"type\" %q", s)}
	}
}

type screenConfig struct {
	Size        IntValue `json:"size"`
	Multiplexer string   `json:"multiplexer"`
}

type stopConfig struct {
	Multiplexer string `json:"multiplexer"`
}
