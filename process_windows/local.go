//go:build windows

package process_windows

import (
	"fmt"
	"unsafe"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

// LocalProcess is the address space of the calling process. Every access is
// preceded by VirtualQuery, so a wild address is rejected instead of faulting.
type LocalProcess struct {
	log         *logger.Logger
	pointerSize int
}

var _ process.AddressSpace = (*LocalProcess)(nil)
var _ process.RegionLister = (*LocalProcess)(nil)
var _ process.ModuleLocator = (*LocalProcess)(nil)

// NewLocal returns the address space of the current process.
func NewLocal(options ...Option) *LocalProcess {
	c := newConfig(options)
	p := &LocalProcess{log: c.log, pointerSize: c.pointerSize}
	if p.log == nil {
		p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", windows.GetCurrentProcessId())))
	}
	if p.pointerSize == 0 {
		p.pointerSize = hostPointerSize
	}
	return p
}

func (p *LocalProcess) PointerSize() int {
	return p.pointerSize
}

func (p *LocalProcess) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	return isValid(localQuery, uint64(addr))
}

func (p *LocalProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	return enumerate(localQuery), nil
}

func localBytes(addr process.ProcessMemoryAddress, size uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), size)
}

// ReadMemory copies up to the first unreadable byte.
func (p *LocalProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	n := span(localQuery, uint64(addr), uint64(size), memory_map.MemoryMapItem.IsReadable)
	out := make([]byte, n)
	if n > 0 {
		copy(out, localBytes(addr, n))
	}
	if n != uint64(size) {
		return out, fmt.Errorf("read %d of %d bytes at %s: %w", n, size, addr.ToString(), process.ErrTransferMismatch)
	}
	return out, nil
}

// WriteMemory copies up to the first byte that is not writable.
func (p *LocalProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	n := span(localQuery, uint64(addr), uint64(len(data)), memory_map.MemoryMapItem.IsWritable)
	if n > 0 {
		copy(localBytes(addr, n), data[:n])
	}
	if n != uint64(len(data)) {
		return fmt.Errorf("wrote %d of %d bytes at %s: %w", n, len(data), addr.ToString(), process.ErrTransferMismatch)
	}
	return nil
}

// MakeWritable gives write access to the read-only parts of the range.
func (p *LocalProcess) MakeWritable(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (process.SavedProtection, error) {
	return makeWritable(localQuery, localProtect, uint64(addr), uint64(size))
}

func (p *LocalProcess) RestoreProtection(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, saved process.SavedProtection) error {
	return restoreProtection(localProtect, saved)
}

// MainModule returns the executable image of the current process.
func (p *LocalProcess) MainModule() (process.ModuleInfo, error) {
	return mainModule(windows.CurrentProcess())
}
