// Command procmem reads, writes, and scans the memory of a live process or
// of a dump saved by its dump command.
package main

import (
	"errors"
	"fmt"
	"os"

	"procmem/process"
	"procmem/process_blob"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/pkg/profile"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

const usage = `process memory inspection tool

Select the target with --pid, --name, --self or --dump, then run a command:

   procmem --pid 1234 get --type int32 0x7ffd1000
   procmem --name game scan "48 8B ?? ?? 05"
   procmem --dump ./snap dump --size 64 0x400000`

var errNoTarget = errors.New("no target selected, use --pid, --name, --self or --dump")

// target is everything a command may need from the selected process.
type target interface {
	process.AddressSpace
	process.RegionLister
	process.ModuleLocator
	Close() error
}

// liveOptions selects a running process.
type liveOptions struct {
	pid         int
	name        string
	self        bool
	pointerSize int
	log         *logger.Logger
}

type dumpTarget struct {
	*process_blob.ProcessDump
}

func (dumpTarget) Close() error { return nil }

var log = logger.NewLogger(coloransi.Color(coloransi.ColorTeal, coloransi.ColorWhite, "procmem"))

func openTarget(ctx *cli.Context) (target, error) {
	pointerSize := ctx.GlobalInt("pointer-size")
	if pointerSize != 0 && pointerSize != 4 && pointerSize != 8 {
		return nil, fmt.Errorf("pointer size must be 4 or 8, got %d", pointerSize)
	}

	if dir := ctx.GlobalString("dump"); dir != "" {
		dump := process_blob.NewProcessDump()
		if err := dump.Load(afero.NewOsFs(), dir); err != nil {
			return nil, err
		}
		if pointerSize != 0 {
			dump.SetPointerSize(pointerSize)
		}
		log.Infoln("loaded dump", dir, "with", len(dump.MemoryMap), "regions")
		return dumpTarget{dump}, nil
	}

	return openLive(liveOptions{
		pid:         ctx.GlobalInt("pid"),
		name:        ctx.GlobalString("name"),
		self:        ctx.GlobalBool("self"),
		pointerSize: pointerSize,
		log:         log,
	})
}

// withTarget opens the target around a command action.
func withTarget(action func(ctx *cli.Context, t target) error) func(*cli.Context) error {
	return func(ctx *cli.Context) error {
		t, err := openTarget(ctx)
		if err != nil {
			return err
		}
		defer t.Close()
		return action(ctx, t)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "procmem"
	app.Usage = usage
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:   "pid, p",
			Usage:  "process id to attach to",
			EnvVar: "PROCMEM_PID",
		},
		cli.StringFlag{
			Name:   "name, n",
			Usage:  "process name to attach to, the lowest pid wins",
			EnvVar: "PROCMEM_NAME",
		},
		cli.BoolFlag{
			Name:  "self",
			Usage: "operate on procmem's own memory",
		},
		cli.StringFlag{
			Name:   "dump, d",
			Usage:  "directory of a saved dump to operate on",
			EnvVar: "PROCMEM_DUMP",
		},
		cli.IntFlag{
			Name:  "pointer-size",
			Usage: "override the target pointer size (4 or 8)",
		},
		cli.StringFlag{
			Name:  "cpuprofile",
			Usage: "write a cpu profile into this directory",
		},
	}

	app.Commands = commands()

	var prof interface{ Stop() }
	app.Before = func(ctx *cli.Context) error {
		if dir := ctx.GlobalString("cpuprofile"); dir != "" {
			prof = profile.Start(profile.CPUProfile, profile.ProfilePath(dir), profile.NoShutdownHook, profile.Quiet)
			log.Debugln("cpu profile enabled in", dir)
		}
		return nil
	}
	app.After = func(ctx *cli.Context) error {
		if prof != nil {
			prof.Stop()
		}
		return nil
	}

	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
