// Package memory implements validated typed access, string access and
// pointer navigation on top of any process.AddressSpace.
//
// Every operation validates before it touches memory. The Read, Write and
// CompareAndWrite methods report failures as errors wrapping the process
// package sentinels; Get, Set and Patch collapse them into sentinel values.
//
// Set and Patch are not atomic. Another writer can change the value between
// the compare, the protection change and the write; callers that need
// atomicity must serialize on their own.
package memory

import (
	"errors"
	"fmt"

	"procmem/process"
)

// Mode selects how the address passed to an accessor is interpreted.
type Mode int

const (
	// Direct addresses hold the value itself.
	Direct Mode = iota
	// Indirect addresses hold a pointer to the value.
	Indirect
)

func (m Mode) String() string {
	if m == Indirect {
		return "indirect"
	}
	return "direct"
}

// Accessor reads and writes values of type T in an address space.
type Accessor[T Primitive] struct {
	Space process.AddressSpace
	Mode  Mode
}

// New returns an accessor for T using the given addressing mode.
func New[T Primitive](space process.AddressSpace, mode Mode) Accessor[T] {
	return Accessor[T]{Space: space, Mode: mode}
}

// Read returns the value at addr.
func (a Accessor[T]) Read(addr process.ProcessMemoryAddress) (T, error) {
	var zero T

	target, err := resolve(a.Space, a.Mode, addr)
	if err != nil {
		return zero, err
	}

	data, err := a.Space.ReadMemory(target, process.ProcessMemorySize(sizeOf[T]()))
	if err != nil {
		return zero, fmt.Errorf("read %T at %s: %w", zero, target.ToString(), err)
	}
	return decode[T](data), nil
}

// Get is Read returning Sentinel on failure.
func (a Accessor[T]) Get(addr process.ProcessMemoryAddress) T {
	v, err := a.Read(addr)
	if err != nil {
		return Sentinel[T]()
	}
	return v
}

// Write stores v at addr, temporarily making the region writable.
func (a Accessor[T]) Write(addr process.ProcessMemoryAddress, v T) error {
	target, err := resolve(a.Space, a.Mode, addr)
	if err != nil {
		return err
	}
	return writeProtected(a.Space, target, encode(v))
}

// Set is Write reporting success as a bool.
func (a Accessor[T]) Set(addr process.ProcessMemoryAddress, v T) bool {
	return a.Write(addr, v) == nil
}

// CompareAndWrite stores to at addr only if the current value equals from.
// A mismatch returns an error wrapping process.ErrCompareMismatch and
// writes nothing.
func (a Accessor[T]) CompareAndWrite(addr process.ProcessMemoryAddress, from, to T) error {
	target, err := resolve(a.Space, a.Mode, addr)
	if err != nil {
		return err
	}

	data, err := a.Space.ReadMemory(target, process.ProcessMemorySize(sizeOf[T]()))
	if err != nil {
		return fmt.Errorf("read %T at %s: %w", from, target.ToString(), err)
	}
	if cur := decode[T](data); cur != from {
		return fmt.Errorf("%s holds %v, expected %v: %w", target.ToString(), cur, from, process.ErrCompareMismatch)
	}

	return writeProtected(a.Space, target, encode(to))
}

// Patch is CompareAndWrite reporting success as a bool. A false result does
// not say whether the address was bad or the value differed.
func (a Accessor[T]) Patch(addr process.ProcessMemoryAddress, from, to T) bool {
	return a.CompareAndWrite(addr, from, to) == nil
}

// resolve validates addr and, for indirect access, follows the pointer
// stored there and validates the result.
func resolve(space process.AddressSpace, mode Mode, addr process.ProcessMemoryAddress) (process.ProcessMemoryAddress, error) {
	if !space.IsValidAddress(addr) {
		return 0, fmt.Errorf("%s: %w", addr.ToString(), process.ErrInvalidAddress)
	}
	if mode == Direct {
		return addr, nil
	}

	target, err := Deref(space, addr)
	if err != nil {
		return 0, err
	}
	if !space.IsValidAddress(target) {
		return 0, fmt.Errorf("%s (through %s): %w", target.ToString(), addr.ToString(), process.ErrInvalidAddress)
	}
	return target, nil
}

// writeProtected makes the target writable, writes data and restores the
// saved protection. The restore runs even when the write fails; its own
// failure is dropped.
func writeProtected(space process.AddressSpace, addr process.ProcessMemoryAddress, data []byte) error {
	size := process.ProcessMemorySize(len(data))

	saved, err := space.MakeWritable(addr, size)
	if err != nil {
		if !errors.Is(err, process.ErrProtectionChange) {
			err = fmt.Errorf("%w: %v", process.ErrProtectionChange, err)
		}
		return err
	}

	werr := space.WriteMemory(addr, data)
	_ = space.RestoreProtection(addr, size, saved)

	if werr != nil {
		return fmt.Errorf("write %d bytes at %s: %w", len(data), addr.ToString(), werr)
	}
	return nil
}
