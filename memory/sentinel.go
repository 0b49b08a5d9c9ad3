package memory

import "procmem/process"

// Read reads a T at addr directly.
func Read[T Primitive](space process.AddressSpace, addr process.ProcessMemoryAddress) (T, error) {
	return Accessor[T]{Space: space}.Read(addr)
}

// Write stores v at addr directly, making the region writable for the write.
func Write[T Primitive](space process.AddressSpace, addr process.ProcessMemoryAddress, v T) error {
	return Accessor[T]{Space: space}.Write(addr, v)
}

// CompareAndWrite stores to at addr if it currently holds from.
func CompareAndWrite[T Primitive](space process.AddressSpace, addr process.ProcessMemoryAddress, from, to T) error {
	return Accessor[T]{Space: space}.CompareAndWrite(addr, from, to)
}

// Get is Read returning the failure sentinel of T on error.
func Get[T Primitive](space process.AddressSpace, addr process.ProcessMemoryAddress) T {
	return Accessor[T]{Space: space}.Get(addr)
}

// Set is Write reporting success.
func Set[T Primitive](space process.AddressSpace, addr process.ProcessMemoryAddress, v T) bool {
	return Accessor[T]{Space: space}.Set(addr, v)
}

// Patch is CompareAndWrite reporting success.
func Patch[T Primitive](space process.AddressSpace, addr process.ProcessMemoryAddress, from, to T) bool {
	return Accessor[T]{Space: space}.Patch(addr, from, to)
}
