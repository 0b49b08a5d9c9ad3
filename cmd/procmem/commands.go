package main

import (
	"fmt"
	"strings"

	"procmem/hexdump"
	"procmem/memory"
	"procmem/process"
	"procmem/process_blob"
	"procmem/process_finder"
	"procmem/scan"
	"procmem/search"

	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

var (
	typeFlag = cli.StringFlag{
		Name:  "type, t",
		Value: "int32",
		Usage: "value type: " + strings.Join(typeNames(), ", "),
	}
	indirectFlag = cli.BoolFlag{
		Name:  "indirect, i",
		Usage: "treat the address as a pointer to the value",
	}
)

func commands() []cli.Command {
	return []cli.Command{
		{
			Name:           "get",
			Usage:          "read a value",
			ArgsUsage:      "ADDRESS [OFFSET...]",
			Flags:          []cli.Flag{typeFlag, indirectFlag},
			SkipArgReorder: true,
			Action:         withTarget(getAction),
		},
		{
			Name:           "set",
			Usage:          "write a value",
			ArgsUsage:      "ADDRESS VALUE [OFFSET...]",
			Flags:          []cli.Flag{typeFlag, indirectFlag},
			SkipArgReorder: true,
			Action:         withTarget(setAction),
		},
		{
			Name:           "patch",
			Usage:          "write a value only if the current one matches",
			ArgsUsage:      "ADDRESS FROM TO [OFFSET...]",
			Flags:          []cli.Flag{typeFlag, indirectFlag},
			SkipArgReorder: true,
			Action:         withTarget(patchAction),
		},
		{
			Name:      "string",
			Usage:     "read or write a terminated string",
			ArgsUsage: "ADDRESS [OFFSET...]",
			Flags: []cli.Flag{
				indirectFlag,
				cli.BoolFlag{Name: "wide, w", Usage: "16-bit code units"},
				cli.IntFlag{Name: "max, m", Value: -1, Usage: "maximum number of code units, negative for no limit"},
				cli.StringFlag{Name: "write", Usage: "write this value instead of reading"},
			},
			SkipArgReorder: true,
			Action:         withTarget(stringAction),
		},
		{
			Name:           "chain",
			Usage:          "follow a pointer chain and print every step",
			ArgsUsage:      "ADDRESS OFFSET...",
			SkipArgReorder: true,
			Action:         withTarget(chainAction),
		},
		{
			Name:      "scan",
			Usage:     "search for a byte pattern such as \"48 8B ?? ?? 05\"",
			ArgsUsage: "PATTERN",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "all, a", Usage: "scan every readable region instead of the main module"},
				cli.UintFlag{Name: "parallel", Value: 4, Usage: "regions scanned concurrently with --all"},
				cli.Uint64Flag{Name: "limit", Usage: "with --all, skip regions starting above this address, 0 for no limit"},
			},
			Action: withTarget(scanAction),
		},
		{
			Name:      "dump",
			Usage:     "hexdump memory, or save it with --out",
			ArgsUsage: "[ADDRESS]",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "size, s", Value: 256, Usage: "number of bytes"},
				cli.StringFlag{Name: "highlight", Usage: "pattern to highlight"},
				cli.BoolFlag{Name: "no-color", Usage: "disable ANSI colors"},
				cli.StringFlag{Name: "out, o", Usage: "save a dump into this directory instead of printing"},
				cli.BoolFlag{Name: "all, a", Usage: "with --out, save every readable region"},
				cli.UintFlag{Name: "max-region", Value: 256 << 20, Usage: "with --all, skip regions larger than this"},
			},
			Action: withTarget(dumpAction),
		},
		{
			Name:      "search",
			Usage:     "find pointer paths from a base address to a value",
			ArgsUsage: "BASE",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "value", Usage: "value to look for, parsed with --type"},
				typeFlag,
				cli.StringFlag{Name: "pattern", Usage: "byte pattern to look for instead of a value"},
				cli.IntFlag{Name: "depth", Value: 3, Usage: "maximum number of dereferences"},
				cli.UintFlag{Name: "struct-size", Value: 0x1000, Usage: "bytes examined behind every pointer"},
			},
			Action: withTarget(searchAction),
		},
		{
			Name:   "module",
			Usage:  "print the main module",
			Action: withTarget(moduleAction),
		},
		{
			Name:      "ps",
			Usage:     "list processes, optionally filtered by name",
			ArgsUsage: "[NAME]",
			Action:    psAction,
		},
	}
}

func mode(ctx *cli.Context) memory.Mode {
	if ctx.Bool("indirect") {
		return memory.Indirect
	}
	return memory.Direct
}

// location parses ADDRESS followed by n fixed arguments and an optional
// pointer chain, returning the resolved address and the fixed arguments.
func location(ctx *cli.Context, t target, n int) (process.ProcessMemoryAddress, []string, error) {
	args := ctx.Args()
	if len(args) < n+1 {
		return 0, nil, fmt.Errorf("%s: expected %s", ctx.Command.Name, ctx.Command.ArgsUsage)
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return 0, nil, err
	}
	offsets, err := parseOffsets(args[n+1:])
	if err != nil {
		return 0, nil, err
	}
	if len(offsets) > 0 {
		addr, err = memory.ResolveChain(t, addr, offsets...)
		if err != nil {
			return 0, nil, err
		}
	}
	return addr, args[1 : n+1], nil
}

func getAction(ctx *cli.Context, t target) error {
	ops, err := lookupType(ctx.String("type"))
	if err != nil {
		return err
	}
	addr, _, err := location(ctx, t, 0)
	if err != nil {
		return err
	}
	value, err := ops.get(t, mode(ctx), addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "%s = %s\n", addr.ToString(), value)
	return nil
}

func setAction(ctx *cli.Context, t target) error {
	ops, err := lookupType(ctx.String("type"))
	if err != nil {
		return err
	}
	addr, values, err := location(ctx, t, 1)
	if err != nil {
		return err
	}
	if err := ops.set(t, mode(ctx), addr, values[0]); err != nil {
		return err
	}
	log.Infoln("wrote", values[0], "to", addr.ToString())
	return nil
}

func patchAction(ctx *cli.Context, t target) error {
	ops, err := lookupType(ctx.String("type"))
	if err != nil {
		return err
	}
	addr, values, err := location(ctx, t, 2)
	if err != nil {
		return err
	}
	if err := ops.patch(t, mode(ctx), addr, values[0], values[1]); err != nil {
		return err
	}
	log.Infoln("patched", addr.ToString(), values[0], "->", values[1])
	return nil
}

func stringAction(ctx *cli.Context, t target) error {
	addr, _, err := location(ctx, t, 0)
	if err != nil {
		return err
	}

	var read func(process.ProcessMemoryAddress, int) (string, error)
	var write func(process.ProcessMemoryAddress, string) error
	if ctx.Bool("wide") {
		s := memory.WideStrings(t, mode(ctx))
		read, write = s.ReadN, s.Write
	} else {
		s := memory.NarrowStrings(t, mode(ctx))
		read, write = s.ReadN, s.Write
	}

	if ctx.IsSet("write") {
		return write(addr, ctx.String("write"))
	}
	value, err := read(addr, ctx.Int("max"))
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "%s = %q\n", addr.ToString(), value)
	return nil
}

func chainAction(ctx *cli.Context, t target) error {
	args := ctx.Args()
	if len(args) < 2 {
		return fmt.Errorf("chain: expected %s", ctx.Command.ArgsUsage)
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	offsets, err := parseOffsets(args[1:])
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.App.Writer, "%s\n", addr.ToString())
	for i, offset := range offsets {
		ptr, err := memory.Deref(t, addr)
		if err != nil {
			return fmt.Errorf("chain step %d: %w", i, err)
		}
		next := ptr.Add(offset)
		fmt.Fprintf(ctx.App.Writer, "[%s] = %s %+#x -> %s\n", addr.ToString(), ptr.ToString(), offset, next.ToString())
		addr = next
	}
	return nil
}

func scanAction(ctx *cli.Context, t target) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("scan: expected %s", ctx.Command.ArgsUsage)
	}
	aob, err := process.ParseAOB(ctx.Args().First())
	if err != nil {
		return err
	}

	if !ctx.Bool("all") {
		addr, err := scan.MainModule(t, t, aob)
		if err != nil {
			return err
		}
		fmt.Fprintln(ctx.App.Writer, addr.ToString())
		return nil
	}

	scanner := scan.NewScanner(t, t,
		scan.WithParallelism(ctx.Uint("parallel")),
		scan.WithUpperLimit(ctx.Uint64("limit")),
		scan.WithLogger(log),
	)
	matches, err := scanner.All(aob)
	if err != nil {
		return err
	}
	for _, addr := range matches {
		fmt.Fprintln(ctx.App.Writer, addr.ToString())
	}
	log.Infoln("found", len(matches), "matches")
	return nil
}

func dumpAction(ctx *cli.Context, t target) error {
	if ctx.Int("size") <= 0 {
		return fmt.Errorf("dump: --size must be positive, got %d", ctx.Int("size"))
	}
	if out := ctx.String("out"); out != "" {
		return saveDump(ctx, t, out)
	}

	if ctx.NArg() != 1 {
		return fmt.Errorf("dump: expected ADDRESS")
	}
	addr, err := parseAddress(ctx.Args().First())
	if err != nil {
		return err
	}

	options := hexdump.DefaultOptions()
	options.Color = !ctx.Bool("no-color")
	options.Pointers = t
	if pattern := ctx.String("highlight"); pattern != "" {
		if options.Highlight, err = process.ParseAOB(pattern); err != nil {
			return err
		}
	}
	return hexdump.DumpSpace(ctx.App.Writer, t, addr, ctx.Int("size"), options)
}

func saveDump(ctx *cli.Context, t target, out string) error {
	var dump *process_blob.ProcessDump
	var err error
	if ctx.Bool("all") {
		dump, err = process_blob.SnapshotAll(t, t, ctx.Uint("max-region"))
	} else {
		if ctx.NArg() != 1 {
			return fmt.Errorf("dump: expected ADDRESS or --all")
		}
		var addr process.ProcessMemoryAddress
		if addr, err = parseAddress(ctx.Args().First()); err != nil {
			return err
		}
		dump, err = process_blob.Snapshot(t, addr, process.ProcessMemorySize(ctx.Int("size")))
	}
	if err != nil {
		return err
	}

	if m, err := t.MainModule(); err == nil {
		dump.Name = m.Name
	}
	if err := dump.Save(afero.NewOsFs(), out); err != nil {
		return err
	}
	log.Infoln("saved", len(dump.MemoryMap), "regions to", out)
	return nil
}

func searchAction(ctx *cli.Context, t target) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("search: expected %s", ctx.Command.ArgsUsage)
	}
	base, err := parseAddress(ctx.Args().First())
	if err != nil {
		return err
	}

	options := []search.Option{
		search.WithMaxDepth(ctx.Int("depth")),
		search.WithMaxStructSize(ctx.Uint("struct-size")),
	}
	switch {
	case ctx.String("pattern") != "":
		aob, err := process.ParseAOB(ctx.String("pattern"))
		if err != nil {
			return err
		}
		options = append(options, search.WithPattern(aob))
	case ctx.IsSet("value"):
		ops, err := lookupType(ctx.String("type"))
		if err != nil {
			return err
		}
		aob, err := ops.pattern(ctx.String("value"))
		if err != nil {
			return err
		}
		options = append(options, search.WithPattern(aob))
	default:
		return fmt.Errorf("search: --value or --pattern is required")
	}

	results, err := search.Search(t, base, options...)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(ctx.App.Writer, "%s %s\n", r.Address.ToString(), formatPath(r.Path))
	}
	return nil
}

func formatPath(path []int64) string {
	parts := make([]string, len(path))
	for i, offset := range path {
		parts[i] = fmt.Sprintf("%+#x", offset)
	}
	return "[" + strings.Join(parts, " -> ") + "]"
}

func moduleAction(ctx *cli.Context, t target) error {
	m, err := t.MainModule()
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, m.String())
	return nil
}

func psAction(ctx *cli.Context) error {
	finder := process_finder.New()

	var procs []process.ProcessInfo
	var err error
	if ctx.NArg() > 0 {
		procs, err = finder.FindProcessByName(ctx.Args().First())
	} else {
		procs, err = finder.FindAllProcesses()
	}
	if err != nil {
		return err
	}
	for _, p := range procs {
		fmt.Fprintf(ctx.App.Writer, "%7d %s\n", p.PID, p.Name)
	}
	return nil
}
