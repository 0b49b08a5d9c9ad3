package scan

import (
	"fmt"

	"procmem/process"
	"procmem/process/memory_map"
)

// Region returns the address of the first match of aob in [start, start+size).
// The whole range must be readable. A miss, including a range shorter than
// the pattern, returns an error wrapping process.ErrPatternNotFound.
func Region(space process.AddressSpace, start process.ProcessMemoryAddress, size process.ProcessMemorySize, aob process.AOB) (process.ProcessMemoryAddress, error) {
	if !aob.IsValid() {
		return 0, fmt.Errorf("%w: %w", process.ErrPatternNotFound, process.ErrMalformedPattern)
	}
	if uint64(size) < uint64(aob.Len()) {
		return 0, fmt.Errorf("%s+%#x shorter than pattern: %w", start.ToString(), uint64(size), process.ErrPatternNotFound)
	}
	if !space.IsValidAddress(start) {
		return 0, fmt.Errorf("%s: %w", start.ToString(), process.ErrInvalidAddress)
	}

	data, err := space.ReadMemory(start, size)
	if err != nil {
		return 0, fmt.Errorf("scan %s+%#x: %w", start.ToString(), uint64(size), err)
	}

	offset := FindFirst(data, aob)
	if offset < 0 {
		return 0, fmt.Errorf("%s in %s+%#x: %w", aob.String(), start.ToString(), uint64(size), process.ErrPatternNotFound)
	}
	return start.Add(int64(offset)), nil
}

// FindPattern compiles pattern and scans [start, start+size). Any failure,
// a malformed pattern included, returns 0.
func FindPattern(space process.AddressSpace, start process.ProcessMemoryAddress, size process.ProcessMemorySize, pattern string) process.ProcessMemoryAddress {
	aob, err := process.ParseAOB(pattern)
	if err != nil {
		return 0
	}
	addr, err := Region(space, start, size, aob)
	if err != nil {
		return 0
	}
	return addr
}

// Module scans the image of module. When space can list its regions, only
// the readable runs of the image are read so holes between segments do not
// abort the scan; a match never spans a hole.
func Module(space process.AddressSpace, module process.ModuleInfo, aob process.AOB) (process.ProcessMemoryAddress, error) {
	lister, ok := space.(process.RegionLister)
	if !ok {
		return Region(space, module.Base, module.Size, aob)
	}

	mm, err := lister.GetMemoryMap()
	if err != nil {
		return 0, fmt.Errorf("memory map for %s: %w", module.Name, err)
	}

	for _, run := range readableRuns(uint64(module.Base), uint64(module.Size), mm) {
		addr, err := Region(space, process.ProcessMemoryAddress(run[0]), process.ProcessMemorySize(run[1]), aob)
		if err == nil {
			return addr, nil
		}
	}
	return 0, fmt.Errorf("%s in %s: %w", aob.String(), module.Name, process.ErrPatternNotFound)
}

// MainModule resolves the main module through locator and scans its image.
func MainModule(space process.AddressSpace, locator process.ModuleLocator, aob process.AOB) (process.ProcessMemoryAddress, error) {
	module, err := locator.MainModule()
	if err != nil {
		return 0, fmt.Errorf("main module: %w", err)
	}
	return Module(space, module, aob)
}

// FindPatternInMainModule is MainModule with a textual pattern, returning 0
// on any failure.
func FindPatternInMainModule(space process.AddressSpace, locator process.ModuleLocator, pattern string) process.ProcessMemoryAddress {
	aob, err := process.ParseAOB(pattern)
	if err != nil {
		return 0
	}
	addr, err := MainModule(space, locator, aob)
	if err != nil {
		return 0
	}
	return addr
}

// readableRuns splits [addr, addr+size) into maximal readable runs as
// {start, length} pairs.
func readableRuns(addr, size uint64, mm []memory_map.MemoryMapItem) [][2]uint64 {
	var runs [][2]uint64
	end := addr + size
	for _, item := range mm {
		if !item.IsReadable() || item.End() <= addr || item.Address >= end {
			continue
		}
		start := max(item.Address, addr)
		stop := min(item.End(), end)
		if n := len(runs); n > 0 && runs[n-1][0]+runs[n-1][1] == start {
			runs[n-1][1] += stop - start
			continue
		}
		runs = append(runs, [2]uint64{start, stop - start})
	}
	return runs
}
