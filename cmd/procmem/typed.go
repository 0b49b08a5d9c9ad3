package main

import (
	"fmt"
	"sort"
	"strconv"

	"procmem/memory"
	"procmem/process"
	"procmem/scan"
)

// typedOps binds the generic accessor to one primitive type, converting
// values from and to their command line form.
type typedOps struct {
	get   func(space process.AddressSpace, mode memory.Mode, addr process.ProcessMemoryAddress) (string, error)
	set   func(space process.AddressSpace, mode memory.Mode, addr process.ProcessMemoryAddress, value string) error
	patch func(space process.AddressSpace, mode memory.Mode, addr process.ProcessMemoryAddress, from, to string) error
	// pattern is the exact in-memory form of a value
	pattern func(value string) (process.AOB, error)
}

func opsFor[T memory.Primitive](parse func(string) (T, error)) typedOps {
	return typedOps{
		get: func(space process.AddressSpace, mode memory.Mode, addr process.ProcessMemoryAddress) (string, error) {
			v, err := memory.New[T](space, mode).Read(addr)
			if err != nil {
				return "", err
			}
			return fmt.Sprint(v), nil
		},
		set: func(space process.AddressSpace, mode memory.Mode, addr process.ProcessMemoryAddress, value string) error {
			v, err := parse(value)
			if err != nil {
				return err
			}
			return memory.New[T](space, mode).Write(addr, v)
		},
		patch: func(space process.AddressSpace, mode memory.Mode, addr process.ProcessMemoryAddress, from, to string) error {
			f, err := parse(from)
			if err != nil {
				return err
			}
			t, err := parse(to)
			if err != nil {
				return err
			}
			return memory.New[T](space, mode).CompareAndWrite(addr, f, t)
		},
		pattern: func(value string) (process.AOB, error) {
			v, err := parse(value)
			if err != nil {
				return process.AOB{}, err
			}
			return scan.ValuePattern(v), nil
		},
	}
}

func parseInt[T ~int8 | ~int16 | ~int32 | ~int64](bits int) func(string) (T, error) {
	return func(s string) (T, error) {
		v, err := strconv.ParseInt(s, 0, bits)
		return T(v), err
	}
}

func parseFloat[T ~float32 | ~float64](bits int) func(string) (T, error) {
	return func(s string) (T, error) {
		v, err := strconv.ParseFloat(s, bits)
		return T(v), err
	}
}

var typeTable = map[string]typedOps{
	"bool":    opsFor(strconv.ParseBool),
	"int8":    opsFor(parseInt[int8](8)),
	"int16":   opsFor(parseInt[int16](16)),
	"int32":   opsFor(parseInt[int32](32)),
	"int64":   opsFor(parseInt[int64](64)),
	"float32": opsFor(parseFloat[float32](32)),
	"float64": opsFor(parseFloat[float64](64)),
}

func typeNames() []string {
	names := make([]string, 0, len(typeTable))
	for name := range typeTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupType(name string) (typedOps, error) {
	ops, ok := typeTable[name]
	if !ok {
		return typedOps{}, fmt.Errorf("unknown type %q, expected one of %v", name, typeNames())
	}
	return ops, nil
}

// parseAddress accepts decimal, 0x-prefixed hex and other strconv bases.
func parseAddress(s string) (process.ProcessMemoryAddress, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return process.ProcessMemoryAddress(v), nil
}

// parseOffsets accepts signed offsets such as 0x10 or -8.
func parseOffsets(args []string) ([]int64, error) {
	offsets := make([]int64, 0, len(args))
	for _, s := range args {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid offset %q: %w", s, err)
		}
		offsets = append(offsets, v)
	}
	return offsets, nil
}
