// Package process provides the shared types and interfaces for reading and
// patching memory of the current process or of another process.
package process

import "errors"

// Types live in separate files:
// - types.go: ProcessID, ProcessInfo, ModuleInfo
// - memory_types.go: ProcessMemoryAddress, ProcessMemorySize, AOB
// - process_interface.go: AddressSpace, ModuleLocator
// - process_finder.go: ProcessFinder

var (
	// ErrInvalidAddress is returned when an address, or the address read
	// through an indirect pointer, is not committed and readable.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrTransferMismatch is returned when a read or write moved fewer bytes
	// than requested. Callers treat it like ErrInvalidAddress.
	ErrTransferMismatch = errors.New("transfer size mismatch")

	// ErrCompareMismatch is returned by patch operations when the current
	// value differs from the expected one. Nothing is written.
	ErrCompareMismatch = errors.New("current value does not match")

	// ErrMalformedPattern is returned when a byte pattern cannot be compiled.
	ErrMalformedPattern = errors.New("malformed pattern")

	// ErrProtectionChange is returned when a region could not be made
	// writable. The write is not attempted.
	ErrProtectionChange = errors.New("protection change failed")

	// ErrInvalidHandle is returned when a remote process handle is null,
	// closed, or refers to a process that has exited.
	ErrInvalidHandle = errors.New("invalid process handle")

	ErrEmptyBuffer     = errors.New("empty buffer")
	ErrLengthMismatch  = errors.New("from and to lengths differ")
	ErrPatternNotFound = errors.New("pattern not found")
)
