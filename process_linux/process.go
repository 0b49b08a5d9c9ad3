//go:build linux

// Package process_linux implements address spaces for the current process
// and for other processes on Linux.
package process_linux

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/spf13/afero"
)

// RemoteProcess is the address space of another process, reached through a
// pidfd with process_vm_readv and process_vm_writev.
//
// Linux cannot change the protection of another process's pages. Writes to
// read-only regions instead go through /proc/<pid>/mem, which the kernel
// allows to bypass page protection for a tracer-capable caller.
type RemoteProcess struct {
	handle      *Handle
	ownsHandle  bool
	fs          afero.Fs
	maps        *memory_map.LinuxMemoryMap
	log         *logger.Logger
	pointerSize int

	mu  sync.Mutex
	mm  []memory_map.MemoryMapItem
	mem afero.File
}

var _ process.AddressSpace = (*RemoteProcess)(nil)
var _ process.RegionLister = (*RemoteProcess)(nil)
var _ process.ModuleLocator = (*RemoteProcess)(nil)

// Open opens pid and returns its address space. Close releases the handle.
func Open(pid process.ProcessID, options ...Option) (*RemoteProcess, error) {
	h, err := OpenHandle(pid)
	if err != nil {
		return nil, err
	}

	p, err := NewRemoteProcess(h, options...)
	if err != nil {
		h.Close()
		return nil, err
	}
	p.ownsHandle = true
	return p, nil
}

// NewRemoteProcess wraps a handle owned by the caller. The handle is checked
// on every operation and never closed by the RemoteProcess.
func NewRemoteProcess(h *Handle, options ...Option) (*RemoteProcess, error) {
	if err := h.Check(); err != nil {
		return nil, err
	}

	c := newConfig(options)
	p := &RemoteProcess{
		handle:      h,
		fs:          c.fs,
		maps:        memory_map.NewLinuxMemoryMap(c.fs),
		log:         c.log,
		pointerSize: c.pointerSize,
	}
	if p.log == nil {
		p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", h.PID())))
	}

	if err := p.UpdateMemoryMap(); err != nil {
		return nil, fmt.Errorf("failed to initialize memory map: %w", err)
	}

	if p.pointerSize == 0 {
		p.pointerSize = 8
		if _, size, err := mainModule(p.fs, p.snapshot(), strconv.Itoa(int(h.PID()))); err == nil && size != 0 {
			p.pointerSize = size
		}
	}

	p.log.Infoln("Process opened, pointer size", p.pointerSize)
	return p, nil
}

// Close releases /proc/<pid>/mem and, for processes opened with Open, the handle.
func (p *RemoteProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mem != nil {
		p.mem.Close()
		p.mem = nil
	}
	p.mm = nil

	p.log.Infoln("Process closed")

	if p.ownsHandle {
		return p.handle.Close()
	}
	return nil
}

func (p *RemoteProcess) Handle() *Handle {
	return p.handle
}

// GetPID returns the process ID
func (p *RemoteProcess) GetPID() process.ProcessID {
	return p.handle.PID()
}

func (p *RemoteProcess) PointerSize() int {
	return p.pointerSize
}

// UpdateMemoryMap rereads /proc/<pid>/maps.
func (p *RemoteProcess) UpdateMemoryMap() error {
	mm, err := p.maps.ReadMemoryMap(int(p.handle.PID()))
	if err != nil {
		return fmt.Errorf("failed to read memory map: %w", err)
	}

	p.mu.Lock()
	p.mm = mm
	p.mu.Unlock()
	return nil
}

func (p *RemoteProcess) snapshot() []memory_map.MemoryMapItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mm
}

// IsValidAddress checks the handle, then the cached memory map. A miss
// refreshes the map once since the target may have mapped memory since.
func (p *RemoteProcess) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	if p.handle.Check() != nil {
		return false
	}
	if memory_map.IsValidAddress(uint64(addr), p.snapshot()) {
		return true
	}
	if err := p.UpdateMemoryMap(); err != nil {
		p.log.Debugln("Failed to refresh memory map", err)
		return false
	}
	return memory_map.IsValidAddress(uint64(addr), p.snapshot())
}

// readableSpan returns how many bytes from addr are readable, at most size.
// A short span refreshes the map once.
func (p *RemoteProcess) readableSpan(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) uint64 {
	span := memory_map.ReadableSpan(uint64(addr), uint64(size), p.snapshot())
	if span == uint64(size) {
		return span
	}
	if err := p.UpdateMemoryMap(); err != nil {
		p.log.Debugln("Failed to refresh memory map", err)
		return span
	}
	return memory_map.ReadableSpan(uint64(addr), uint64(size), p.snapshot())
}

// covering returns the regions under [addr, addr+size), refreshing the map
// on a miss.
func (p *RemoteProcess) covering(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) []memory_map.MemoryMapItem {
	if c := memory_map.Covering(uint64(addr), uint64(size), p.snapshot()); c != nil {
		return c
	}
	if p.UpdateMemoryMap() != nil {
		return nil
	}
	return memory_map.Covering(uint64(addr), uint64(size), p.snapshot())
}

func (p *RemoteProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	if err := p.handle.Check(); err != nil {
		return nil, err
	}
	if err := p.UpdateMemoryMap(); err != nil {
		return nil, err
	}

	mm := p.snapshot()
	result := make([]memory_map.MemoryMapItem, len(mm))
	copy(result, mm)
	return result, nil
}

// MakeWritable changes nothing in the target. When part of the range is not
// writable /proc/<pid>/mem is opened for WriteMemory to use, since writes
// through it ignore page protection.
func (p *RemoteProcess) MakeWritable(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (process.SavedProtection, error) {
	if err := p.handle.Check(); err != nil {
		return process.SavedProtection{}, fmt.Errorf("%w: %v", process.ErrProtectionChange, err)
	}

	covering := p.covering(addr, size)
	if covering == nil {
		return process.SavedProtection{}, fmt.Errorf("range %s+%d is not mapped: %w", addr.ToString(), size, process.ErrProtectionChange)
	}

	for _, region := range covering {
		if !region.IsWritable() {
			if err := p.openMem(); err != nil {
				return process.SavedProtection{}, fmt.Errorf("%w: %v", process.ErrProtectionChange, err)
			}
			break
		}
	}
	return process.SavedProtection{}, nil
}

// RestoreProtection has nothing to undo, see MakeWritable.
func (p *RemoteProcess) RestoreProtection(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, saved process.SavedProtection) error {
	return nil
}

func (p *RemoteProcess) openMem() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mem != nil {
		return nil
	}

	path := fmt.Sprintf("/proc/%d/mem", p.handle.PID())
	f, err := p.fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	p.log.Debugln("Opened", path, "for writes to protected regions")
	p.mem = f
	return nil
}

// MainModule returns the main executable image with its entry point.
func (p *RemoteProcess) MainModule() (process.ModuleInfo, error) {
	mm, err := p.GetMemoryMap()
	if err != nil {
		return process.ModuleInfo{}, err
	}
	module, _, err := mainModule(p.fs, mm, strconv.Itoa(int(p.handle.PID())))
	return module, err
}
