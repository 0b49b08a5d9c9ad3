//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"procmem/process"

	"golang.org/x/sys/unix"
)

// process_vm_readv uses the process_vm_readv syscall to read memory from another process.
// A partial transfer returns the bytes that were read.
func process_vm_readv(
	pid process.ProcessID,
	remoteAddr process.ProcessMemoryAddress,
	bytesToRead process.ProcessMemorySize,
) ([]byte, error) {
	localBuf := make([]byte, bytesToRead)

	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(bytesToRead),
	}

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  int(bytesToRead),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)

	if errno != 0 {
		return nil, fmt.Errorf("process_vm_readv: %s: %w", errno.Error(), process.ErrTransferMismatch)
	}

	if int(n) != int(bytesToRead) {
		return localBuf[:n], fmt.Errorf("partial read: %d of %d bytes: %w", n, bytesToRead, process.ErrTransferMismatch)
	}

	return localBuf, nil
}

// ReadMemory reads memory from the process at the specified address. The
// read stops at the first byte outside a readable mapping; the bytes before
// it are returned with ErrTransferMismatch.
func (p *RemoteProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if err := p.handle.Check(); err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}

	span := p.readableSpan(addr, size)
	if span == 0 {
		return []byte{}, fmt.Errorf("read %s: not readable: %w", addr.ToString(), process.ErrTransferMismatch)
	}

	data, err := process_vm_readv(p.handle.PID(), addr, process.ProcessMemorySize(span))
	if err != nil {
		return data, fmt.Errorf("read %s: %w", addr.ToString(), err)
	}
	if span != uint64(size) {
		return data, fmt.Errorf("read %d of %d bytes at %s: %w", span, size, addr.ToString(), process.ErrTransferMismatch)
	}
	return data, nil
}
