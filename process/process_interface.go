package process

import (
	"procmem/process/memory_map"
)

// SavedProtection lists the ranges MakeWritable changed together with their
// previous protection. It is handed back unchanged to RestoreProtection.
// Ranges that were already writable are not listed, so restoring never
// touches them.
type SavedProtection struct {
	Regions []SavedRegion
}

// SavedRegion is one changed range. Protection is backend specific: a
// memory_map.Protection on Linux and for snapshots, a PAGE_* value on Windows.
type SavedRegion struct {
	Address    ProcessMemoryAddress
	Size       ProcessMemorySize
	Protection uint32
}

// Changed reports whether MakeWritable changed anything.
func (s SavedProtection) Changed() bool {
	return len(s.Regions) > 0
}

// AddressSpace is the interface implemented by every readable and writable
// address space: the current process, a remote process reached through a
// handle, or an in-memory snapshot.
//
// Implementations never panic on wild addresses. Validation failures are
// reported as false or as errors wrapping ErrInvalidAddress.
type AddressSpace interface {
	// IsValidAddress reports whether addr lies in a committed, readable region.
	// Remote implementations also check the process handle.
	IsValidAddress(addr ProcessMemoryAddress) bool

	// ReadMemory reads size bytes at addr. On a short transfer it returns the
	// bytes that were read together with an error wrapping ErrTransferMismatch.
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// WriteMemory writes data at addr. The region must already be writable,
	// see MakeWritable. Anything but a full transfer is an error.
	WriteMemory(addr ProcessMemoryAddress, data []byte) error

	// MakeWritable makes [addr, addr+size) writable and returns the
	// protections to restore afterwards. Only ranges lacking write access are
	// changed.
	MakeWritable(addr ProcessMemoryAddress, size ProcessMemorySize) (SavedProtection, error)

	// RestoreProtection puts back every range listed in saved, each with its
	// own previous protection.
	RestoreProtection(addr ProcessMemoryAddress, size ProcessMemorySize, saved SavedProtection) error

	// PointerSize is the size in bytes of a pointer in this address space.
	PointerSize() int
}

// RegionLister is implemented by address spaces that can enumerate their
// memory regions.
type RegionLister interface {
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)
}

// ModuleLocator is the module information collaborator: it resolves the main
// module of an address space.
type ModuleLocator interface {
	MainModule() (ModuleInfo, error)
}
