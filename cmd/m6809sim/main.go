// Command m6809sim is the headless CLI front end (SPEC_FULL.md §2): it
// builds a kernel from a JSONC config document, optionally loads an
// S-record program into a named memory module, drives performCycle
// either a fixed number of times or until the stop device's
// stop:finished fires, and reports the final register state.
package main

import (
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/davecgh/go-spew/spew"
	cliv2 "gopkg.in/urfave/cli.v2"

	"m6809sim/config"
	"m6809sim/cpu"
	"m6809sim/kernel"
	"m6809sim/srec"
)

func main() {
	app := &cliv2.App{
		Name:    "m6809sim",
		Usage:   "run a 6809 simulator core from a JSONC config document",
		Version: "v0.1.0",
		Flags: []cliv2.Flag{
			&cliv2.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to the simulator's JSONC config document",
				Required: true,
			},
			&cliv2.StringFlag{
				Name:    "program",
				Aliases: []string{"p"},
				Usage:   "path to an S-record program image to load before running",
			},
			&cliv2.StringFlag{
				Name:  "load-target",
				Usage: "module id of the memory the S-record image is loaded into (required with --program)",
			},
			&cliv2.IntFlag{
				Name:  "max-cycles",
				Usage: "stop after this many cycles even if the stop device never fires (0 = unbounded)",
			},
			&cliv2.BoolFlag{
				Name:  "dump",
				Usage: "dump the full final register snapshot with go-spew instead of a one-line summary",
			},
		},
		Action: run,
	}

	sort.Sort(cliv2.FlagsByName(app.Flags))
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cliv2.Context) error {
	specs, err := config.Load(c.String("config"))
	if err != nil {
		return cliv2.Exit(err.Error(), 1)
	}

	var regs cpu.Registers
	var haveRegs bool
	var stopped bool

	loadTarget := kernel.ModuleId(c.String("load-target"))
	// The host stands in for the reset/interrupt lines and the register
	// debugger that a cpu module requires; no config module type provides
	// signal:reset or dbg:register_update.
	provided := []kernel.EventName{
		kernel.EvSignalReset, kernel.EvSignalIRQ, kernel.EvSignalFIRQ, kernel.EvSignalNMI,
		kernel.EvDbgRegisterUpdate,
	}
	if loadTarget != "" {
		provided = append(provided, kernel.EvUIMemoryBulkWrite.WithGroup(string(loadTarget)))
	}

	var cliFacade *kernel.Facade
	specs = append(specs, kernel.ModuleSpec{
		Id: "cli",
		Constructor: func(id kernel.ModuleId, cfg any, f *kernel.Facade) (kernel.Module, error) {
			cliFacade = f
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
									regs, haveRegs = r, true
								}
							}
							return nil
						}},
						{Name: kernel.EvStopFinished, Callback: func(ctx kernel.EventContext, args ...any) kernel.Awaitable {
							stopped = true
							return nil
						}},
					},
				},
			}, nil
		},
	})

	_, err = kernel.New(specs)
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
			if err := cliFacade.Emit(kernel.EvUIMemoryBulkWrite.WithGroup(string(loadTarget)), uint32(addr), data); err != nil {
				log.Printf("m6809sim: loading %s at 0x%04X: %v", program, addr, err)
			}
		}); err != nil {
			return cliv2.Exit(err.Error(), 1)
		}
	}

	maxCycles := c.Int("max-cycles")
	for n := 0; maxCycles == 0 || n < maxCycles; n++ {
		if stopped {
			break
		}
		if err := cliFacade.PerformCycle(); err != nil {
			return cliv2.Exit(err.Error(), 1)
		}
	}

	if !haveRegs {
		fmt.Println("m6809sim: no register state observed (did the config include a cpu module?)")
		return nil
	}
	if c.Bool("dump") {
		spew.Dump(regs)
		return nil
	}
	fmt.Printf("PC=%04X A=%02X B=%02X X=%04X Y=%04X U=%04X S=%04X DP=%02X CC=%02X stopped=%v\n",
		regs.PC, regs.A, regs.B, regs.X, regs.Y, regs.U, regs.S, regs.DP, regs.CC, stopped)
	return nil
}

// hostDriver is the CLI's own kernel.Module: it exists only to be the
// declared initiator and to collect the listeners run drives above.
type hostDriver struct {
	decl kernel.ModuleDeclaration
}

func (d *hostDriver) Declaration() kernel.ModuleDeclaration { return d.decl }
