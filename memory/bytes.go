package memory

import (
	"bytes"
	"fmt"

	"procmem/process"
)

// Bytes reads and writes raw byte buffers.
type Bytes struct {
	Space process.AddressSpace
	Mode  Mode
}

// NewBytes returns a byte accessor using the given addressing mode.
func NewBytes(space process.AddressSpace, mode Mode) Bytes {
	return Bytes{Space: space, Mode: mode}
}

// Read returns exactly n bytes at addr.
func (b Bytes) Read(addr process.ProcessMemoryAddress, n int) ([]byte, error) {
	target, err := resolve(b.Space, b.Mode, addr)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []byte{}, nil
	}

	data, err := b.Space.ReadMemory(target, process.ProcessMemorySize(n))
	if err != nil {
		return nil, fmt.Errorf("read %d bytes at %s: %w", n, target.ToString(), err)
	}
	return data, nil
}

// Get is Read returning nil on failure.
func (b Bytes) Get(addr process.ProcessMemoryAddress, n int) []byte {
	data, err := b.Read(addr, n)
	if err != nil {
		return nil
	}
	return data
}

// Write stores data at addr. An empty buffer is an error.
func (b Bytes) Write(addr process.ProcessMemoryAddress, data []byte) error {
	if len(data) == 0 {
		return process.ErrEmptyBuffer
	}

	target, err := resolve(b.Space, b.Mode, addr)
	if err != nil {
		return err
	}
	return writeProtected(b.Space, target, data)
}

// Set is Write reporting success as a bool.
func (b Bytes) Set(addr process.ProcessMemoryAddress, data []byte) bool {
	return b.Write(addr, data) == nil
}

// CompareAndWrite replaces from with to at addr. Both buffers must have the
// same length; two empty buffers succeed without touching memory.
func (b Bytes) CompareAndWrite(addr process.ProcessMemoryAddress, from, to []byte) error {
	if len(from) != len(to) {
		return fmt.Errorf("%d != %d: %w", len(from), len(to), process.ErrLengthMismatch)
	}
	if len(from) == 0 {
		return nil
	}

	target, err := resolve(b.Space, b.Mode, addr)
	if err != nil {
		return err
	}

	cur, err := b.Space.ReadMemory(target, process.ProcessMemorySize(len(from)))
	if err != nil {
		return fmt.Errorf("read %d bytes at %s: %w", len(from), target.ToString(), err)
	}
	if !bytes.Equal(cur, from) {
		return fmt.Errorf("%s: %w", target.ToString(), process.ErrCompareMismatch)
	}

	return writeProtected(b.Space, target, to)
}

// Patch is CompareAndWrite reporting success as a bool.
func (b Bytes) Patch(addr process.ProcessMemoryAddress, from, to []byte) bool {
	return b.CompareAndWrite(addr, from, to) == nil
}
