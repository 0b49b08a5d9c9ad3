//go:build linux

package process_linux

import (
	"debug/elf"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/spf13/afero"
)

// moduleFromMaps builds the module image of path from every mapping of that
// file: base is the lowest mapping, size runs to the end of the highest.
func moduleFromMaps(mm []memory_map.MemoryMapItem, path string) (process.ModuleInfo, error) {
	var base, end uint64
	found := false
	for _, item := range mm {
		if item.Path != path {
			continue
		}
		if !found || item.Address < base {
			base = item.Address
		}
		end = max(end, item.End())
		found = true
	}
	if !found {
		return process.ModuleInfo{}, fmt.Errorf("%s is not mapped", path)
	}

	return process.ModuleInfo{
		Name: filepath.Base(path),
		Path: path,
		Base: process.ProcessMemoryAddress(base),
		Size: process.ProcessMemorySize(end - base),
	}, nil
}

type elfInfo struct {
	entry       uint64
	pointerSize int
}

// readELFInfo returns the runtime entry point of an image loaded at base and
// its pointer size. Position independent images are relocated by the
// difference between base and their first PT_LOAD segment.
func readELFInfo(r io.ReaderAt, base uint64) (elfInfo, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return elfInfo{}, err
	}
	defer f.Close()

	info := elfInfo{entry: f.Entry, pointerSize: 8}
	if f.Class == elf.ELFCLASS32 {
		info.pointerSize = 4
	}

	if f.Type == elf.ET_DYN {
		first := ^uint64(0)
		for _, prog := range f.Progs {
			if prog.Type == elf.PT_LOAD && prog.Vaddr < first {
				first = prog.Vaddr
			}
		}
		if first == ^uint64(0) {
			first = 0
		}
		info.entry += base - first&^0xfff
	}
	return info, nil
}

func readlink(fs afero.Fs, name string) (string, error) {
	lr, ok := fs.(afero.LinkReader)
	if !ok {
		return "", &os.PathError{Op: "readlink", Path: name, Err: afero.ErrNoReadlink}
	}
	return lr.ReadlinkIfPossible(name)
}

// mainModule resolves the main executable of proc ("self" or a PID) from its
// memory map and ELF headers. A missing entry point is not an error.
func mainModule(fs afero.Fs, mm []memory_map.MemoryMapItem, proc string) (process.ModuleInfo, int, error) {
	exe, err := readlink(fs, filepath.Join("/proc", proc, "exe"))
	if err != nil {
		return process.ModuleInfo{}, 0, fmt.Errorf("resolve executable: %w", err)
	}

	module, err := moduleFromMaps(mm, exe)
	if err != nil {
		return process.ModuleInfo{}, 0, err
	}

	f, err := fs.Open(exe)
	if err != nil {
		return module, 0, nil
	}
	defer f.Close()

	info, err := readELFInfo(f, uint64(module.Base))
	if err != nil {
		return module, 0, nil
	}
	module.EntryPoint = process.ProcessMemoryAddress(info.entry)
	return module, info.pointerSize, nil
}
