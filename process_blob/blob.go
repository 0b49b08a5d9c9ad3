package process_blob

import (
	"fmt"

	"procmem/process"
	"procmem/process/memory_map"
)

// NewProcessBlob returns a dump holding a single read-write region at baseAddress.
func NewProcessBlob(baseAddress process.ProcessMemoryAddress, data []byte) *ProcessDump {
	p := NewProcessDump()
	if len(data) > 0 {
		// a fresh dump cannot overlap
		_ = p.AddRegion(baseAddress, data, memory_map.ProtRead|memory_map.ProtWrite)
	}
	return p
}

// Snapshot copies [addr, addr+size) out of space into a new dump. Region
// protections are carried over when space can list its regions. Only the
// readable prefix of the range is captured; an unreadable start address is
// an error wrapping process.ErrInvalidAddress.
func Snapshot(space process.AddressSpace, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (*ProcessDump, error) {
	if !space.IsValidAddress(addr) {
		return nil, fmt.Errorf("snapshot at %s: %w", addr.ToString(), process.ErrInvalidAddress)
	}

	data, err := space.ReadMemory(addr, size)
	if len(data) == 0 {
		if err == nil {
			err = process.ErrEmptyBuffer
		}
		return nil, fmt.Errorf("snapshot at %s: %w", addr.ToString(), err)
	}

	dump := NewProcessDump()
	dump.SetPointerSize(space.PointerSize())

	var regions []memory_map.MemoryMapItem
	if lister, ok := space.(process.RegionLister); ok {
		if mm, err := lister.GetMemoryMap(); err == nil {
			regions = mm
		}
	}

	// split the copy along the source regions so protections survive
	cur := uint64(addr)
	end := cur + uint64(len(data))
	for cur < end {
		n := end - cur
		prot := memory_map.ProtRead
		if region := memory_map.Find(cur, regions); region != nil {
			prot = region.Protection
			if region.End()-cur < n {
				n = region.End() - cur
			}
		}
		off := cur - uint64(addr)
		if err := dump.AddRegion(process.ProcessMemoryAddress(cur), data[off:off+n], prot); err != nil {
			return nil, err
		}
		cur += n
	}

	return dump, nil
}

// SnapshotAll copies every readable region listed by lister. Regions larger
// than maxRegionSize are skipped when it is non-zero, as are regions that
// cannot be read at all; a region that can only be partly read keeps its
// readable prefix.
func SnapshotAll(space process.AddressSpace, lister process.RegionLister, maxRegionSize uint) (*ProcessDump, error) {
	mm, err := lister.GetMemoryMap()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory map: %w", err)
	}

	dump := NewProcessDump()
	dump.SetPointerSize(space.PointerSize())

	for _, region := range mm {
		if !region.IsReadable() {
			continue
		}
		if maxRegionSize != 0 && region.Size > maxRegionSize {
			continue
		}

		addr := process.ProcessMemoryAddress(region.Address)
		data, _ := space.ReadMemory(addr, process.ProcessMemorySize(region.Size))
		if len(data) == 0 {
			continue
		}
		if err := dump.AddRegion(addr, data, region.Protection); err != nil {
			return nil, err
		}
		dump.MemoryMap[len(dump.MemoryMap)-1].Path = region.Path
	}

	return dump, nil
}
