package memory

import (
	"encoding/binary"
	"fmt"

	"procmem/process"
)

// validPointer reports whether a full pointer sized read at addr is safe.
func validPointer(space process.AddressSpace, addr process.ProcessMemoryAddress) bool {
	last := addr.Add(int64(space.PointerSize() - 1))
	return last >= addr && space.IsValidAddress(addr) && space.IsValidAddress(last)
}

// Deref reads the pointer stored at addr. Every byte of the pointer must be
// valid before anything is read.
func Deref(space process.AddressSpace, addr process.ProcessMemoryAddress) (process.ProcessMemoryAddress, error) {
	if !validPointer(space, addr) {
		return 0, fmt.Errorf("pointer at %s: %w", addr.ToString(), process.ErrInvalidAddress)
	}

	size := space.PointerSize()
	data, err := space.ReadMemory(addr, process.ProcessMemorySize(size))
	if err != nil {
		return 0, fmt.Errorf("pointer at %s: %w", addr.ToString(), err)
	}

	if size == 4 {
		return process.ProcessMemoryAddress(binary.NativeEndian.Uint32(data)), nil
	}
	return process.ProcessMemoryAddress(binary.NativeEndian.Uint64(data)), nil
}

// ResolveOffset returns addr+offset if a full pointer can be read there.
func ResolveOffset(space process.AddressSpace, addr process.ProcessMemoryAddress, offset int64) (process.ProcessMemoryAddress, error) {
	result := addr.Add(offset)
	if !validPointer(space, result) {
		return 0, fmt.Errorf("%s%+d: %w", addr.ToString(), offset, process.ErrInvalidAddress)
	}
	return result, nil
}

// AddOffset is ResolveOffset returning 0 on failure.
func AddOffset(space process.AddressSpace, addr process.ProcessMemoryAddress, offset int64) process.ProcessMemoryAddress {
	result, err := ResolveOffset(space, addr, offset)
	if err != nil {
		return 0
	}
	return result
}

// ResolveChain walks a pointer chain. For each offset the current address is
// dereferenced and the offset added:
//
//	addr = *addr + offsets[0]
//	addr = *addr + offsets[1]
//	...
//
// An empty chain returns addr unchanged without touching memory.
func ResolveChain(space process.AddressSpace, addr process.ProcessMemoryAddress, offsets ...int64) (process.ProcessMemoryAddress, error) {
	cur := addr
	for i, offset := range offsets {
		next, err := Deref(space, cur)
		if err != nil {
			return 0, fmt.Errorf("chain step %d: %w", i, err)
		}
		cur = next.Add(offset)
	}
	return cur, nil
}

// FollowChain is ResolveChain returning 0 on failure.
func FollowChain(space process.AddressSpace, addr process.ProcessMemoryAddress, offsets ...int64) process.ProcessMemoryAddress {
	result, err := ResolveChain(space, addr, offsets...)
	if err != nil {
		return 0
	}
	return result
}
