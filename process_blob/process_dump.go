package process_blob

import (
	"fmt"
	"path/filepath"

	"procmem/process"
	"procmem/process/memory_map"
)

// ProcessDump is an address space backed by copied memory regions. It is
// used for offline analysis of snapshots and as a stand-in for a live process.
//
// ProcessDump is not safe for concurrent mutation.
type ProcessDump struct {
	PID         process.ProcessID
	Name        string
	MemoryMap   []memory_map.MemoryMapItem // sorted by address
	Blobs       map[uint64][]byte          // region address -> data
	pointerSize int
}

var _ process.AddressSpace = (*ProcessDump)(nil)
var _ process.RegionLister = (*ProcessDump)(nil)
var _ process.ModuleLocator = (*ProcessDump)(nil)

// NewProcessDump creates an empty dump with 8 byte pointers.
func NewProcessDump() *ProcessDump {
	return &ProcessDump{
		Blobs:       make(map[uint64][]byte),
		pointerSize: 8,
	}
}

// AddRegion maps data at base with the given protection. Regions must not overlap.
func (p *ProcessDump) AddRegion(base process.ProcessMemoryAddress, data []byte, prot memory_map.Protection) error {
	if len(data) == 0 {
		return fmt.Errorf("region at %s: %w", base.ToString(), process.ErrEmptyBuffer)
	}
	item := memory_map.MemoryMapItem{
		Address:    uint64(base),
		Size:       uint(len(data)),
		Perms:      prot.String(),
		Protection: prot,
		Committed:  true,
	}
	if item.End() < item.Address {
		return fmt.Errorf("region at %s wraps the address space", base.ToString())
	}
	for _, existing := range p.MemoryMap {
		if item.Address < existing.End() && existing.Address < item.End() {
			return fmt.Errorf("region at %s overlaps region at %#x", base.ToString(), existing.Address)
		}
	}

	p.MemoryMap = append(p.MemoryMap, item)
	memory_map.Sort(p.MemoryMap)
	p.Blobs[item.Address] = data
	return nil
}

// SetPointerSize switches between 4 and 8 byte pointers.
func (p *ProcessDump) SetPointerSize(size int) {
	p.pointerSize = size
}

func (p *ProcessDump) PointerSize() int {
	return p.pointerSize
}

func (p *ProcessDump) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	return memory_map.IsValidAddress(uint64(addr), p.MemoryMap)
}

func (p *ProcessDump) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	result := make([]memory_map.MemoryMapItem, len(p.MemoryMap))
	copy(result, p.MemoryMap)
	return result, nil
}

// ReadMemory copies size bytes, following adjacent readable regions.
func (p *ProcessDump) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	span := memory_map.ReadableSpan(uint64(addr), uint64(size), p.MemoryMap)
	out := make([]byte, 0, span)

	cur := uint64(addr)
	for uint64(len(out)) < span {
		region := memory_map.Find(cur, p.MemoryMap)
		data := p.Blobs[region.Address]
		off := cur - region.Address
		n := uint64(len(data)) - off
		if rest := span - uint64(len(out)); n > rest {
			n = rest
		}
		out = append(out, data[off:off+n]...)
		cur += n
	}

	if uint64(len(out)) != uint64(size) {
		return out, fmt.Errorf("read %d of %d bytes at %s: %w", len(out), size, addr.ToString(), process.ErrTransferMismatch)
	}
	return out, nil
}

// WriteMemory writes into writable regions only. Bytes up to the first
// non-writable byte are written before the error is returned.
func (p *ProcessDump) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	cur := uint64(addr)
	written := 0
	for written < len(data) {
		region := memory_map.Find(cur, p.MemoryMap)
		if region == nil || !region.IsWritable() {
			break
		}
		blob := p.Blobs[region.Address]
		n := copy(blob[cur-region.Address:], data[written:])
		written += n
		cur += uint64(n)
	}

	if written != len(data) {
		return fmt.Errorf("wrote %d of %d bytes at %s: %w", written, len(data), addr.ToString(), process.ErrTransferMismatch)
	}
	return nil
}

// MakeWritable adds write access to every read-only region overlapping the
// range. Regions that are already writable are left alone.
func (p *ProcessDump) MakeWritable(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (process.SavedProtection, error) {
	covering := memory_map.Covering(uint64(addr), uint64(size), p.MemoryMap)
	if covering == nil {
		return process.SavedProtection{}, fmt.Errorf("range %s+%d is not mapped: %w", addr.ToString(), size, process.ErrProtectionChange)
	}

	var saved process.SavedProtection
	for _, c := range covering {
		if c.IsWritable() {
			continue
		}
		saved.Regions = append(saved.Regions, process.SavedRegion{
			Address:    process.ProcessMemoryAddress(c.Address),
			Size:       process.ProcessMemorySize(c.Size),
			Protection: uint32(c.Protection),
		})
		p.setProtection(c.Address, c.Protection|memory_map.ProtWrite)
	}
	return saved, nil
}

// RestoreProtection puts back the protection of every region in saved.
func (p *ProcessDump) RestoreProtection(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, saved process.SavedProtection) error {
	for _, r := range saved.Regions {
		if memory_map.Find(uint64(r.Address), p.MemoryMap) == nil {
			return fmt.Errorf("region %s is not mapped: %w", r.Address.ToString(), process.ErrProtectionChange)
		}
		p.setProtection(uint64(r.Address), memory_map.Protection(r.Protection))
	}
	return nil
}

func (p *ProcessDump) setProtection(regionAddr uint64, prot memory_map.Protection) {
	for i := range p.MemoryMap {
		if p.MemoryMap[i].Address == regionAddr {
			p.MemoryMap[i].Protection = prot
			p.MemoryMap[i].Perms = prot.String()
			return
		}
	}
}

// MainModule reconstructs the image of the dumped executable from the file
// backed regions. The image is the file whose base name equals Name, or the
// first mapped file when none does.
func (p *ProcessDump) MainModule() (process.ModuleInfo, error) {
	path := ""
	for _, item := range p.MemoryMap {
		if item.Path == "" || item.Path[0] == '[' {
			continue
		}
		if path == "" {
			path = item.Path
		}
		if filepath.Base(item.Path) == p.Name {
			path = item.Path
			break
		}
	}
	if path == "" {
		return process.ModuleInfo{}, fmt.Errorf("dump of %q has no file backed regions", p.Name)
	}

	var start, end uint64
	for _, item := range p.MemoryMap {
		if item.Path != path {
			continue
		}
		if end == 0 {
			start = item.Address
		}
		end = item.End()
	}
	return process.ModuleInfo{
		Name: filepath.Base(path),
		Path: path,
		Base: process.ProcessMemoryAddress(start),
		Size: process.ProcessMemorySize(end - start),
	}, nil
}
