//go:build windows

package process_windows

import (
	"fmt"
	"unsafe"

	"procmem/process"
	"procmem/process/memory_map"

	"golang.org/x/sys/windows"
)

// queryFunc is VirtualQuery or VirtualQueryEx bound to a process.
type queryFunc func(addr uintptr, mbi *windows.MemoryBasicInformation) error

// regionAt returns the region containing addr. A failed query means the
// address is outside the user address space.
func regionAt(query queryFunc, addr uint64) (memory_map.MemoryMapItem, bool) {
	var mbi windows.MemoryBasicInformation
	if err := query(uintptr(addr), &mbi); err != nil {
		return memory_map.MemoryMapItem{}, false
	}
	return memory_map.FromMemoryBasicInformation(&mbi), true
}

func isValid(query queryFunc, addr uint64) bool {
	region, ok := regionAt(query, addr)
	return ok && region.IsReadable()
}

// span returns how many bytes from addr lie in consecutive regions accepted
// by ok, capped at size.
func span(query queryFunc, addr, size uint64, ok func(memory_map.MemoryMapItem) bool) uint64 {
	var n uint64
	for n < size {
		region, found := regionAt(query, addr+n)
		if !found || !ok(region) || region.End() <= addr+n {
			break
		}
		n = min(region.End()-addr, size)
	}
	return n
}

// enumerate walks the whole user address space.
func enumerate(query queryFunc) []memory_map.MemoryMapItem {
	var mm []memory_map.MemoryMapItem
	var addr uint64
	for {
		region, ok := regionAt(query, addr)
		if !ok || region.Size == 0 || region.End() <= addr {
			break
		}
		if region.Committed {
			mm = append(mm, region)
		}
		addr = region.End()
	}
	return mm
}

var mbiSize = unsafe.Sizeof(windows.MemoryBasicInformation{})

func localQuery(addr uintptr, mbi *windows.MemoryBasicInformation) error {
	return windows.VirtualQuery(addr, mbi, mbiSize)
}

func remoteQuery(h windows.Handle) queryFunc {
	return func(addr uintptr, mbi *windows.MemoryBasicInformation) error {
		return windows.VirtualQueryEx(h, addr, mbi, mbiSize)
	}
}

// protectFunc is VirtualProtect or VirtualProtectEx bound to a process.
type protectFunc func(addr, size uintptr, prot uint32, old *uint32) error

func localProtect(addr, size uintptr, prot uint32, old *uint32) error {
	return windows.VirtualProtect(addr, size, prot, old)
}

func remoteProtect(h windows.Handle) protectFunc {
	return func(addr, size uintptr, prot uint32, old *uint32) error {
		return windows.VirtualProtectEx(h, addr, size, prot, old)
	}
}

// makeWritable gives write access to the part of each region in the range
// that lacks it, keeping execute access where the region had it. Writable
// regions are not touched. On failure the changes already made are undone.
func makeWritable(query queryFunc, protect protectFunc, addr, size uint64) (process.SavedProtection, error) {
	var saved process.SavedProtection
	end := addr + max(size, 1)
	for cur := addr; cur < end; {
		region, ok := regionAt(query, cur)
		if !ok || !region.Committed || region.End() <= cur {
			restoreProtection(protect, saved)
			return process.SavedProtection{}, fmt.Errorf("%#x is not committed: %w", cur, process.ErrProtectionChange)
		}
		hi := min(region.End(), end)

		if !region.IsWritable() {
			prot := uint32(windows.PAGE_READWRITE)
			if region.Protection&memory_map.ProtExecute != 0 {
				prot = windows.PAGE_EXECUTE_READWRITE
			}
			var old uint32
			if err := protect(uintptr(cur), uintptr(hi-cur), prot, &old); err != nil {
				restoreProtection(protect, saved)
				return process.SavedProtection{}, fmt.Errorf("VirtualProtect %#x: %v: %w", cur, err, process.ErrProtectionChange)
			}
			saved.Regions = append(saved.Regions, process.SavedRegion{
				Address:    process.ProcessMemoryAddress(cur),
				Size:       process.ProcessMemorySize(hi - cur),
				Protection: old,
			})
		}
		cur = hi
	}
	return saved, nil
}

// restoreProtection puts back every saved range and returns the first failure.
func restoreProtection(protect protectFunc, saved process.SavedProtection) error {
	var first error
	for _, r := range saved.Regions {
		var old uint32
		err := protect(uintptr(r.Address), uintptr(r.Size), r.Protection, &old)
		if err != nil && first == nil {
			first = fmt.Errorf("VirtualProtect %s: %w", r.Address.ToString(), err)
		}
	}
	return first
}
