//go:build linux

package process_linux

import (
	"fmt"
	"os"
	"unsafe"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// LocalProcess is the address space of the calling process. Memory is
// accessed directly; every access checks a fresh /proc/self/maps so that a
// stale map can never let a wild address through to a fault.
type LocalProcess struct {
	maps        *memory_map.LinuxMemoryMap
	log         *logger.Logger
	fs          afero.Fs
	pointerSize int
}

var _ process.AddressSpace = (*LocalProcess)(nil)
var _ process.RegionLister = (*LocalProcess)(nil)
var _ process.ModuleLocator = (*LocalProcess)(nil)

// NewLocal returns the address space of the current process.
func NewLocal(options ...Option) *LocalProcess {
	c := newConfig(options)
	p := &LocalProcess{
		maps:        memory_map.NewLinuxMemoryMap(c.fs),
		log:         c.log,
		fs:          c.fs,
		pointerSize: c.pointerSize,
	}
	if p.log == nil {
		p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", os.Getpid())))
	}
	if p.pointerSize == 0 {
		p.pointerSize = hostPointerSize
	}
	return p
}

func (p *LocalProcess) PointerSize() int {
	return p.pointerSize
}

func (p *LocalProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	mm, err := p.maps.ReadMemoryMapFile("/proc/self/maps")
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}
	return mm, nil
}

func (p *LocalProcess) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	mm, err := p.GetMemoryMap()
	if err != nil {
		p.log.Debugln("Failed to read memory map", err)
		return false
	}
	return memory_map.IsValidAddress(uint64(addr), mm)
}

func localBytes(addr process.ProcessMemoryAddress, size uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), size)
}

// ReadMemory copies up to the first unreadable byte.
func (p *LocalProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	mm, err := p.GetMemoryMap()
	if err != nil {
		return nil, err
	}

	span := memory_map.ReadableSpan(uint64(addr), uint64(size), mm)
	out := make([]byte, span)
	if span > 0 {
		copy(out, localBytes(addr, span))
	}

	if span != uint64(size) {
		return out, fmt.Errorf("read %d of %d bytes at %s: %w", span, size, addr.ToString(), process.ErrTransferMismatch)
	}
	return out, nil
}

// WriteMemory copies up to the first byte that is not writable.
func (p *LocalProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	mm, err := p.GetMemoryMap()
	if err != nil {
		return err
	}

	var span uint64
	for span < uint64(len(data)) {
		region := memory_map.Find(uint64(addr)+span, mm)
		if region == nil || !region.IsWritable() {
			break
		}
		span = min(region.End()-uint64(addr), uint64(len(data)))
	}

	if span > 0 {
		copy(localBytes(addr, span), data[:span])
	}
	if span != uint64(len(data)) {
		return fmt.Errorf("wrote %d of %d bytes at %s: %w", span, len(data), addr.ToString(), process.ErrTransferMismatch)
	}
	return nil
}

func toUnixProt(prot memory_map.Protection) uintptr {
	var out uintptr
	if prot&memory_map.ProtRead != 0 {
		out |= unix.PROT_READ
	}
	if prot&memory_map.ProtWrite != 0 {
		out |= unix.PROT_WRITE
	}
	if prot&memory_map.ProtExecute != 0 {
		out |= unix.PROT_EXEC
	}
	return out
}

// pageRange returns the page aligned bounds of [addr, addr+size).
func pageRange(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (uintptr, uintptr) {
	pageSize := uintptr(os.Getpagesize())
	start := uintptr(addr) &^ (pageSize - 1)
	end := (uintptr(addr) + uintptr(size) + pageSize - 1) &^ (pageSize - 1)
	return start, end - start
}

func mprotect(start, length, prot uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_MPROTECT, start, length, prot)
	if errno != 0 {
		return errno
	}
	return nil
}

// MakeWritable adds write access to the pages of every read-only region in
// the range. Writable regions are not touched. If a change fails the ones
// already made are undone.
func (p *LocalProcess) MakeWritable(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (process.SavedProtection, error) {
	mm, err := p.GetMemoryMap()
	if err != nil {
		return process.SavedProtection{}, fmt.Errorf("%w: %v", process.ErrProtectionChange, err)
	}

	covering := memory_map.Covering(uint64(addr), uint64(size), mm)
	if covering == nil {
		return process.SavedProtection{}, fmt.Errorf("range %s+%d is not mapped: %w", addr.ToString(), size, process.ErrProtectionChange)
	}

	var saved process.SavedProtection
	for _, region := range covering {
		if region.IsWritable() {
			continue
		}

		// maps entries are page aligned, so the rounded range stays inside region
		lo := max(region.Address, uint64(addr))
		hi := min(region.End(), uint64(addr)+max(uint64(size), 1))
		start, length := pageRange(process.ProcessMemoryAddress(lo), process.ProcessMemorySize(hi-lo))
		if err := mprotect(start, length, toUnixProt(region.Protection|memory_map.ProtWrite)); err != nil {
			p.RestoreProtection(addr, size, saved)
			return process.SavedProtection{}, fmt.Errorf("mprotect %#x: %v: %w", start, err, process.ErrProtectionChange)
		}
		saved.Regions = append(saved.Regions, process.SavedRegion{
			Address:    process.ProcessMemoryAddress(start),
			Size:       process.ProcessMemorySize(length),
			Protection: uint32(region.Protection),
		})
	}
	return saved, nil
}

// RestoreProtection puts back each changed range. Every range is attempted;
// the first failure is returned.
func (p *LocalProcess) RestoreProtection(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, saved process.SavedProtection) error {
	var first error
	for _, r := range saved.Regions {
		err := mprotect(uintptr(r.Address), uintptr(r.Size), toUnixProt(memory_map.Protection(r.Protection)))
		if err != nil && first == nil {
			first = fmt.Errorf("mprotect %s: %w", r.Address.ToString(), err)
		}
	}
	return first
}

// MainModule returns the executable image of the current process.
func (p *LocalProcess) MainModule() (process.ModuleInfo, error) {
	mm, err := p.GetMemoryMap()
	if err != nil {
		return process.ModuleInfo{}, err
	}
	module, _, err := mainModule(p.fs, mm, "self")
	return module, err
}
