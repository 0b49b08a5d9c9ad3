//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"procmem/process"

	"golang.org/x/sys/unix"
)

// process_vm_writev uses the process_vm_writev syscall to write memory to another process
func process_vm_writev(
	pid process.ProcessID,
	localBuf []byte,
	remoteAddr process.ProcessMemoryAddress,
) (int, error) {
	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(len(localBuf)),
	}

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_WRITEV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)

	if errno != 0 {
		return 0, fmt.Errorf("process_vm_writev: %s", errno.Error())
	}

	return int(n), nil
}

// WriteMemory writes data to the process memory at the specified address.
// Regions that are not writable are written through /proc/<pid>/mem, which
// MakeWritable opens.
func (p *RemoteProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	if err := p.handle.Check(); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	covering := p.covering(addr, process.ProcessMemorySize(len(data)))
	if covering == nil {
		return fmt.Errorf("write %s: %w", addr.ToString(), process.ErrInvalidAddress)
	}

	writable := true
	for _, region := range covering {
		writable = writable && region.IsWritable()
	}

	var written int
	var err error
	if writable {
		written, err = process_vm_writev(p.handle.PID(), data, addr)
	} else {
		written, err = p.forceWrite(addr, data)
	}

	if err != nil {
		return fmt.Errorf("write %s: %v: %w", addr.ToString(), err, process.ErrTransferMismatch)
	}
	if written != len(data) {
		return fmt.Errorf("only wrote %d of %d bytes at %s: %w", written, len(data), addr.ToString(), process.ErrTransferMismatch)
	}
	return nil
}

func (p *RemoteProcess) forceWrite(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	p.mu.Lock()
	mem := p.mem
	p.mu.Unlock()

	if mem == nil {
		return 0, fmt.Errorf("region is not writable")
	}
	return mem.WriteAt(data, int64(addr))
}
