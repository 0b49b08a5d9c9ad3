package process_blob

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/spf13/afero"
)

type dumpMetadata struct {
	PID         process.ProcessID          `json:"pid"`
	Name        string                     `json:"name"`
	PointerSize int                        `json:"pointer_size"`
	MemoryMap   []memory_map.MemoryMapItem `json:"memory_map"`
}

func regionFileName(addr uint64) string {
	return fmt.Sprintf("region_%016x.bin", addr)
}

// Save writes the dump to dirname: metadata.json plus one file per region.
func (p *ProcessDump) Save(fs afero.Fs, dirname string) error {
	if err := fs.MkdirAll(dirname, 0755); err != nil {
		return fmt.Errorf("create dump directory: %w", err)
	}

	meta := dumpMetadata{
		PID:         p.PID,
		Name:        p.Name,
		PointerSize: p.pointerSize,
		MemoryMap:   p.MemoryMap,
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := afero.WriteFile(fs, filepath.Join(dirname, "metadata.json"), metaBytes, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	for _, region := range p.MemoryMap {
		path := filepath.Join(dirname, regionFileName(region.Address))
		if err := afero.WriteFile(fs, path, p.Blobs[region.Address], 0644); err != nil {
			return fmt.Errorf("write region %#x: %w", region.Address, err)
		}
	}
	return nil
}

// Load replaces the dump contents with the dump stored in dirname.
func (p *ProcessDump) Load(fs afero.Fs, dirname string) error {
	metaBytes, err := afero.ReadFile(fs, filepath.Join(dirname, "metadata.json"))
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}

	var meta dumpMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	blobs := make(map[uint64][]byte, len(meta.MemoryMap))
	for _, region := range meta.MemoryMap {
		data, err := afero.ReadFile(fs, filepath.Join(dirname, regionFileName(region.Address)))
		if err != nil {
			return fmt.Errorf("read region %#x: %w", region.Address, err)
		}
		if uint(len(data)) != region.Size {
			return fmt.Errorf("region %#x: expected %d bytes, file has %d", region.Address, region.Size, len(data))
		}
		blobs[region.Address] = data
	}

	memory_map.Sort(meta.MemoryMap)
	p.PID = meta.PID
	p.Name = meta.Name
	p.pointerSize = meta.PointerSize
	if p.pointerSize == 0 {
		p.pointerSize = 8
	}
	p.MemoryMap = meta.MemoryMap
	p.Blobs = blobs
	return nil
}
