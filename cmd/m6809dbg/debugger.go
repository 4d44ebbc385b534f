// Command m6809dbg is the interactive terminal step-debugger
// (SPEC_FULL.md §2): it wires a kernel from a JSONC config document,
// optionally loads an S-record program, and drives the kernel one
// performCycle at a time from a bubbletea TUI, reading all state
// through the kernel's public facade rather than any module's
// concrete struct.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"
	cliv2 "gopkg.in/urfave/cli.v2"

	"m6809sim/config"
	"m6809sim/cpu"
	"m6809sim/kernel"
	"m6809sim/srec"
)

func main() {
	app := &cliv2.App{
		Name:    "m6809dbg",
		Usage:   "interactively step a 6809 simulator core",
		Version: "v0.1.0",
		Flags: []cliv2.Flag{
			&cliv2.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to the simulator's JSONC config document", Required: true},
			&cliv2.StringFlag{Name: "program", Aliases: []string{"p"}, Usage: "path to an S-record program image to load before running"},
			&cliv2.StringFlag{Name: "load-target", Usage: "module id of the memory the S-record image is loaded into (required with --program)"},
			&cliv2.StringFlag{Name: "view-target", Usage: "module id of the memory the page table reads from (defaults to --load-target)"},
		},
		Action: run,
	}
	sort.Sort(cliv2.FlagsByName(app.Flags))
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cliv2.Context) error {
	specs, err := config.Load(c.String("config"))
	if err != nil {
		return cliv2.Exit(err.Error(), 1)
	}

	loadTarget := kernel.ModuleId(c.String("load-target"))
	viewTarget := kernel.ModuleId(c.String("view-target"))
	if viewTarget == "" {
		viewTarget = loadTarget
	}

	// Besides the memory view, the host stands in for the reset/interrupt
	// lines and the register debugger that a cpu module requires.
	provided := []kernel.EventName{
		kernel.EvUIMemoryRead.WithGroup(string(viewTarget)),
		kernel.EvSignalReset, kernel.EvSignalIRQ, kernel.EvSignalFIRQ, kernel.EvSignalNMI,
		kernel.EvDbgRegisterUpdate,
	}
	if loadTarget != "" {
		provided = append(provided, kernel.EvUIMemoryBulkWrite.WithGroup(string(loadTarget)))
	}

	m := &model{}
	var dbgFacade *kernel.Facade
	specs = append(specs, kernel.ModuleSpec{
		Id: "dbg",
		Constructor: func(id kernel.ModuleId, cfg any, f *kernel.Facade) (kernel.Module, error) {
			dbgFacade = f
			return &hostDriver{
				decl: kernel.ModuleDeclaration{
					Initiator: true,
					Provided: provided,
					// Optional, not Required: a config document need not
					// include a cpu or stop module for the kernel to be
					// valid, so the host must not hard-require them.
					Optional: []kernel.Listener{
						{Name: kernel.EvCPURegistersUpdate, Callback: func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
							if len(args) > 0 {
								if r, ok := args[0].(cpu.Registers); ok {
									m.prevPC = m.regs.PC
									m.regs = r
								}
							}
							return nil
						}},
						{Name: kernel.EvStopFinished, Callback: func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
							m.stopped = true
							return nil
						}},
						{Name: kernel.EvUIMemoryReadResult, Callback: func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
							if len(args) == 2 {
								if v, ok := args[1].(byte); ok {
									m.lastRead = v
								}
							}
							return nil
						}},
					},
				},
			}, nil
		},
	})

	k, err := kernel.New(specs)
	if err != nil {
		return cliv2.Exit(fmt.Sprintf("config: %v", err), 1)
	}

	if program := c.String("program"); program != "" {
		if loadTarget == "" {
			return cliv2.Exit("--load-target is required with --program", 1)
		}
		raw, err := os.ReadFile(program)
		if err != nil {
			return cliv2.Exit(err.Error(), 1)
		}
		if err := srec.Load(string(raw), func(addr uint16, data []byte) {
			dbgFacade.Emit(kernel.EvUIMemoryBulkWrite.WithGroup(string(loadTarget)), uint32(addr), data)
		}); err != nil {
			return cliv2.Exit(err.Error(), 1)
		}
	}

	m.kernel = k
	m.facade = dbgFacade
	m.viewTarget = viewTarget

	if _, err := tea.NewProgram(m).Run(); err != nil {
		return err
	}
	return nil
}

// hostDriver is the debugger's own kernel.Module: its only purpose is to
// be the declared initiator so the bubbletea model can drive the kernel
// from outside any module's constructor.
type hostDriver struct {
	decl kernel.ModuleDeclaration
}

func (d *hostDriver) Declaration() kernel.ModuleDeclaration { return d.decl }

type model struct {
	kernel     *kernel.Kernel
	facade     *kernel.Facade
	viewTarget kernel.ModuleId

	regs     cpu.Registers
	prevPC   uint16
	lastRead byte
	stopped  bool
	err      error
}

func (m *model) Init() tea.Cmd { return nil }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ", "j":
			if m.stopped {
				return m, nil
			}
			if err := m.facade.PerformCycle(); err != nil {
				m.err = err
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

// readByte performs a synchronous ui:memory:read against viewTarget —
// the ui: family resolves immediately (no OnceCycle delay), so lastRead
// is populated by the time Emit returns.
func (m *model) readByte(addr uint16) byte {
	if m.viewTarget == "" {
		return 0
	}
	if err := m.facade.Emit(kernel.EvUIMemoryRead.WithGroup(string(m.viewTarget)), uint32(addr)); err != nil {
		return 0
	}
	return m.lastRead
}

func (m *model) renderPage(start uint16) string {
	s := fmt.Sprintf("%04x | ", start)
	for i := 0; i < 16; i++ {
		addr := start + uint16(i)
		b := m.readByte(addr)
		if addr == m.regs.PC {
			s += fmt.Sprintf("[%02x] ", b)
		} else {
			s += fmt.Sprintf(" %02x  ", b)
		}
	}
	return s
}

func (m *model) pageTable() string {
	header := "page | "
	for b := 0; b < 16; b++ {
		header += fmt.Sprintf("  %01x  ", b)
	}
	lines := []string{header}
	base := m.regs.PC &^ 0x0F
	for row := -2; row <= 2; row++ {
		start := base + uint16(row*16)
		lines = append(lines, m.renderPage(start))
	}
	return strings.Join(lines, "\n")
}

func (m *model) status() string {
	bits := []struct {
		name string
		set  bool
	}{
		{"E", m.regs.CC&0x80 != 0},
		{"F", m.regs.CC&0x40 != 0},
		{"H", m.regs.CC&0x20 != 0},
		{"I", m.regs.CC&0x10 != 0},
		{"N", m.regs.CC&0x08 != 0},
		{"Z", m.regs.CC&0x04 != 0},
		{"V", m.regs.CC&0x02 != 0},
		{"C", m.regs.CC&0x01 != 0},
	}
	var flagLine, symLine string
	for _, b := range bits {
		symLine += b.name + " "
		if b.set {
			flagLine += "/ "
		} else {
			flagLine += "  "
		}
	}
	stop := ""
	if m.stopped {
		stop = " [STOPPED]"
	}
	return fmt.Sprintf(`
PC: %04x (%04x)%s
 A: %02x  B: %02x  D: %04x
 X: %04x  Y: %04x
 U: %04x  S: %04x
DP: %02x  CC: %02x
%s
%s
`,
		m.regs.PC, m.prevPC, stop,
		m.regs.A, m.regs.B, m.regs.D(),
		m.regs.X, m.regs.Y,
		m.regs.U, m.regs.S,
		m.regs.DP, m.regs.CC,
		symLine, flagLine,
	)
}

func (m *model) View() string {
	op := uint16(m.readByte(m.regs.PC))
	inst, known := cpu.Opcodes[op]
	dump := spew.Sdump(inst)
	if !known {
		dump = fmt.Sprintf("(opcode 0x%02X not in the decoded table)\n", op)
	}
	errLine := ""
	if m.err != nil {
		errLine = "error: " + m.err.Error()
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, m.pageTable(), m.status()),
		"",
		dump,
		errLine,
		"SPACE/j = step one cycle    q = quit",
	)
}
