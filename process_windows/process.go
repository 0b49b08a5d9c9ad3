//go:build windows

// Package process_windows implements address spaces for the current process
// and for other processes on Windows.
package process_windows

import (
	"errors"
	"fmt"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

// stillActive is the exit code GetExitCodeProcess reports for a running process.
const stillActive = 259

// AccessRights are the rights a handle needs for every RemoteProcess operation.
const AccessRights = windows.PROCESS_VM_READ | windows.PROCESS_VM_WRITE | windows.PROCESS_VM_OPERATION | windows.PROCESS_QUERY_INFORMATION

// CheckHandle reports whether h refers to a live process: not null, not
// INVALID_HANDLE_VALUE, resolving to a non-zero PID and still active.
func CheckHandle(h windows.Handle) error {
	if h == 0 || h == windows.InvalidHandle {
		return process.ErrInvalidHandle
	}

	pid, err := windows.GetProcessId(h)
	if err != nil || pid == 0 {
		return fmt.Errorf("GetProcessId: %v: %w", err, process.ErrInvalidHandle)
	}

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return fmt.Errorf("GetExitCodeProcess: %v: %w", err, process.ErrInvalidHandle)
	}
	if code != stillActive {
		return fmt.Errorf("process %d exited with %d: %w", pid, code, process.ErrInvalidHandle)
	}
	return nil
}

// RemoteProcess is the address space of another process reached through a
// handle with AccessRights.
type RemoteProcess struct {
	handle      windows.Handle
	ownsHandle  bool
	log         *logger.Logger
	pointerSize int
}

var _ process.AddressSpace = (*RemoteProcess)(nil)
var _ process.RegionLister = (*RemoteProcess)(nil)
var _ process.ModuleLocator = (*RemoteProcess)(nil)

// Open opens pid and returns its address space. Close releases the handle.
func Open(pid process.ProcessID, options ...Option) (*RemoteProcess, error) {
	h, err := windows.OpenProcess(AccessRights, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("OpenProcess %d: %w", pid, err)
	}

	p, err := NewRemoteProcess(h, options...)
	if err != nil {
		windows.CloseHandle(h)
		return nil, err
	}
	p.ownsHandle = true
	return p, nil
}

// NewRemoteProcess wraps a handle owned by the caller. The handle is checked
// on every operation and never closed by the RemoteProcess.
func NewRemoteProcess(h windows.Handle, options ...Option) (*RemoteProcess, error) {
	if err := CheckHandle(h); err != nil {
		return nil, err
	}

	c := newConfig(options)
	p := &RemoteProcess{handle: h, log: c.log, pointerSize: c.pointerSize}

	pid, _ := windows.GetProcessId(h)
	if p.log == nil {
		p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	}

	if p.pointerSize == 0 {
		p.pointerSize = hostPointerSize
		var wow64 bool
		if err := windows.IsWow64Process(h, &wow64); err == nil && wow64 {
			p.pointerSize = 4
		}
	}

	p.log.Infoln("Process opened, pointer size", p.pointerSize)
	return p, nil
}

func (p *RemoteProcess) Close() error {
	p.log.Infoln("Process closed")
	if !p.ownsHandle || p.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(p.handle)
	p.handle = 0
	return err
}

func (p *RemoteProcess) Handle() windows.Handle {
	return p.handle
}

func (p *RemoteProcess) GetPID() process.ProcessID {
	pid, _ := windows.GetProcessId(p.handle)
	return process.ProcessID(pid)
}

func (p *RemoteProcess) PointerSize() int {
	return p.pointerSize
}

func (p *RemoteProcess) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	if CheckHandle(p.handle) != nil {
		return false
	}
	return isValid(remoteQuery(p.handle), uint64(addr))
}

func (p *RemoteProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	if err := CheckHandle(p.handle); err != nil {
		return nil, err
	}
	return enumerate(remoteQuery(p.handle)), nil
}

// ReadMemory reads memory from the process at the specified address. The
// read is limited to the readable regions starting at addr; a partial copy
// returns the bytes that were read.
func (p *RemoteProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if err := CheckHandle(p.handle); err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}

	readable := span(remoteQuery(p.handle), uint64(addr), uint64(size), memory_map.MemoryMapItem.IsReadable)
	if readable == 0 {
		return []byte{}, fmt.Errorf("read %s: not readable: %w", addr.ToString(), process.ErrTransferMismatch)
	}

	buf := make([]byte, readable)
	var bytesRead uintptr
	err := windows.ReadProcessMemory(p.handle, uintptr(addr), &buf[0], uintptr(readable), &bytesRead)
	if err != nil && !errors.Is(err, windows.ERROR_PARTIAL_COPY) {
		return nil, fmt.Errorf("ReadProcessMemory %s: %v: %w", addr.ToString(), err, process.ErrTransferMismatch)
	}
	if bytesRead != uintptr(size) {
		return buf[:bytesRead], fmt.Errorf("read incomplete at %s: expected %d, got %d: %w", addr.ToString(), size, bytesRead, process.ErrTransferMismatch)
	}
	return buf, nil
}

func (p *RemoteProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	if err := CheckHandle(p.handle); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var written uintptr
	err := windows.WriteProcessMemory(p.handle, uintptr(addr), &data[0], uintptr(len(data)), &written)
	if err != nil || written != uintptr(len(data)) {
		return fmt.Errorf("WriteProcessMemory %s: wrote %d of %d: %v: %w", addr.ToString(), written, len(data), err, process.ErrTransferMismatch)
	}
	return nil
}

// MakeWritable gives write access to the read-only parts of the range.
func (p *RemoteProcess) MakeWritable(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (process.SavedProtection, error) {
	if err := CheckHandle(p.handle); err != nil {
		return process.SavedProtection{}, fmt.Errorf("%w: %v", process.ErrProtectionChange, err)
	}
	return makeWritable(remoteQuery(p.handle), remoteProtect(p.handle), uint64(addr), uint64(size))
}

func (p *RemoteProcess) RestoreProtection(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, saved process.SavedProtection) error {
	return restoreProtection(remoteProtect(p.handle), saved)
}

// MainModule returns the executable image of the process.
func (p *RemoteProcess) MainModule() (process.ModuleInfo, error) {
	if err := CheckHandle(p.handle); err != nil {
		return process.ModuleInfo{}, err
	}
	return mainModule(p.handle)
}
