package memory_map

import (
	"fmt"
	"sort"
)

// Protection is a platform neutral view of a region's protection flags.
type Protection uint32

const (
	ProtRead Protection = 1 << iota
	ProtWrite
	ProtExecute
	ProtCopyOnWrite
	ProtGuard
	ProtNoCache
	ProtWriteCombine
)

// ProtModifiers are flags that never grant or deny access on their own.
const ProtModifiers = ProtGuard | ProtNoCache | ProtWriteCombine

// Base strips the modifier bits.
func (p Protection) Base() Protection {
	return p &^ ProtModifiers
}

// Accessible reports whether the stripped protection is one of read-only,
// read-write, execute-read or execute-read-write.
func (p Protection) Accessible() bool {
	switch p.Base() {
	case ProtRead, ProtRead | ProtWrite, ProtRead | ProtExecute, ProtRead | ProtWrite | ProtExecute:
		return true
	}
	return false
}

func (p Protection) String() string {
	b := []byte("---")
	if p&ProtRead != 0 {
		b[0] = 'r'
	}
	if p&ProtWrite != 0 {
		b[1] = 'w'
	}
	if p&ProtExecute != 0 {
		b[2] = 'x'
	}
	s := string(b)
	if p&ProtCopyOnWrite != 0 {
		s += "c"
	}
	if p&ProtGuard != 0 {
		s += "+guard"
	}
	if p&ProtNoCache != 0 {
		s += "+nocache"
	}
	if p&ProtWriteCombine != 0 {
		s += "+wc"
	}
	return s
}

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address    uint64     // The starting address of the memory region
	Size       uint       // The size of the memory region in bytes
	Perms      string     // Raw permissions as reported by the OS (e.g., "r-xp")
	Protection Protection // Parsed protection
	Committed  bool       // Backed by storage, as opposed to reserved only
	Offset     uint64     // File offset of a file backed mapping
	Path       string     // Backing file or pseudo path, empty for anonymous memory
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s %s", mmItem.Address, mmItem.Size, mmItem.Protection, mmItem.Path)
}

// End returns the first address past the region.
func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

func (mmItem MemoryMapItem) Contains(addr uint64) bool {
	return addr >= mmItem.Address && addr < mmItem.End()
}

// IsReadable reports whether the region is committed and readable.
func (mmItem MemoryMapItem) IsReadable() bool {
	return mmItem.Committed && mmItem.Protection.Accessible()
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return mmItem.Committed && mmItem.Protection.Base()&ProtWrite != 0
}

func (mmItem MemoryMapItem) IsExecutable() bool {
	return mmItem.Protection&ProtExecute != 0
}

// MemoryMap defines the interface for operations related to a process's memory map
type MemoryMap interface {
	// ReadMemoryMap reads and parses the memory map for a process
	ReadMemoryMap(pid int) ([]MemoryMapItem, error)
}

// Sort orders a memory map by address, which Find requires.
func Sort(memoryMap []MemoryMapItem) {
	sort.Slice(memoryMap, func(i, j int) bool {
		return memoryMap[i].Address < memoryMap[j].Address
	})
}

// Find returns the region containing addr. memoryMap must be sorted.
func Find(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// IsValidAddress checks if an address is within a committed, readable region.
// memoryMap must be sorted.
func IsValidAddress(addr uint64, memoryMap []MemoryMapItem) bool {
	item := Find(addr, memoryMap)
	return item != nil && item.IsReadable()
}

// ReadableSpan returns how many of the size bytes starting at addr can be
// read, walking across adjacent readable regions.
func ReadableSpan(addr uint64, size uint64, memoryMap []MemoryMapItem) uint64 {
	var span uint64
	cur := addr
	for span < size {
		item := Find(cur, memoryMap)
		if item == nil || !item.IsReadable() {
			break
		}
		n := item.End() - cur
		if n > size-span {
			n = size - span
		}
		span += n
		cur += n
		if cur < n { // wrapped
			break
		}
	}
	return span
}

// Covering returns the regions overlapping [addr, addr+size), or nil when
// any byte of the range is unmapped.
func Covering(addr uint64, size uint64, memoryMap []MemoryMapItem) []MemoryMapItem {
	var out []MemoryMapItem
	end := addr + size
	if size == 0 {
		end = addr + 1
	}
	cur := addr
	for cur < end {
		item := Find(cur, memoryMap)
		if item == nil {
			return nil
		}
		out = append(out, *item)
		if item.End() <= cur {
			return nil
		}
		cur = item.End()
	}
	return out
}
