package process_blob

import (
	"testing"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoRegionDump(t *testing.T) *ProcessDump {
	p := NewProcessDump()
	require.NoError(t, p.AddRegion(0x1000, []byte{1, 2, 3, 4}, memory_map.ProtRead|memory_map.ProtWrite))
	require.NoError(t, p.AddRegion(0x1004, []byte{5, 6, 7, 8}, memory_map.ProtRead))
	return p
}

func TestAddRegionRejectsOverlapAndEmpty(t *testing.T) {
	p := twoRegionDump(t)

	assert.Error(t, p.AddRegion(0x1002, []byte{0}, memory_map.ProtRead))
	assert.ErrorIs(t, p.AddRegion(0x2000, nil, memory_map.ProtRead), process.ErrEmptyBuffer)
	assert.NoError(t, p.AddRegion(0x1008, []byte{9}, memory_map.ProtRead))
}

func TestReadAcrossRegions(t *testing.T) {
	p := twoRegionDump(t)

	data, err := p.ReadMemory(0x1002, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5, 6}, data)
}

func TestShortReadReturnsPrefix(t *testing.T) {
	p := twoRegionDump(t)

	data, err := p.ReadMemory(0x1006, 8)
	assert.ErrorIs(t, err, process.ErrTransferMismatch)
	assert.Equal(t, []byte{7, 8}, data)

	data, err = p.ReadMemory(0x3000, 1)
	assert.ErrorIs(t, err, process.ErrTransferMismatch)
	assert.Empty(t, data)
}

func TestWriteNeedsWritableRegion(t *testing.T) {
	p := twoRegionDump(t)

	require.NoError(t, p.WriteMemory(0x1000, []byte{0xAA}))
	assert.Equal(t, byte(0xAA), p.Blobs[0x1000][0])

	assert.ErrorIs(t, p.WriteMemory(0x1004, []byte{0xBB}), process.ErrTransferMismatch)
	assert.Equal(t, byte(5), p.Blobs[0x1004][0])
}

func TestMakeWritableAndRestore(t *testing.T) {
	p := twoRegionDump(t)

	saved, err := p.MakeWritable(0x1004, 2)
	require.NoError(t, err)
	assert.Equal(t, []process.SavedRegion{{Address: 0x1004, Size: 4, Protection: uint32(memory_map.ProtRead)}}, saved.Regions)

	require.NoError(t, p.WriteMemory(0x1004, []byte{0xBB}))
	require.NoError(t, p.RestoreProtection(0x1004, 2, saved))

	mm, err := p.GetMemoryMap()
	require.NoError(t, err)
	assert.Equal(t, memory_map.ProtRead, mm[1].Protection)
	assert.Equal(t, byte(0xBB), p.Blobs[0x1004][0])

	_, err = p.MakeWritable(0x5000, 1)
	assert.ErrorIs(t, err, process.ErrProtectionChange)
}

func TestRestoreAfterStraddlingWrite(t *testing.T) {
	rw := memory_map.ProtRead | memory_map.ProtWrite

	// read-only region first, writable neighbour untouched
	p := NewProcessDump()
	require.NoError(t, p.AddRegion(0x1000, make([]byte, 4), memory_map.ProtRead))
	require.NoError(t, p.AddRegion(0x1004, make([]byte, 4), rw))

	saved, err := p.MakeWritable(0x1002, 4)
	require.NoError(t, err)
	require.Len(t, saved.Regions, 1)
	require.NoError(t, p.WriteMemory(0x1002, []byte{1, 2, 3, 4}))
	require.NoError(t, p.RestoreProtection(0x1002, 4, saved))
	assert.Equal(t, memory_map.ProtRead, p.MemoryMap[0].Protection)
	assert.Equal(t, rw, p.MemoryMap[1].Protection)

	// writable region first, read-only neighbour restored
	p = NewProcessDump()
	require.NoError(t, p.AddRegion(0x1000, make([]byte, 4), rw))
	require.NoError(t, p.AddRegion(0x1004, make([]byte, 4), memory_map.ProtRead))

	saved, err = p.MakeWritable(0x1002, 4)
	require.NoError(t, err)
	require.NoError(t, p.RestoreProtection(0x1002, 4, saved))
	assert.Equal(t, rw, p.MemoryMap[0].Protection)
	assert.Equal(t, memory_map.ProtRead, p.MemoryMap[1].Protection)

	saved, err = p.MakeWritable(0x1000, 4)
	require.NoError(t, err)
	assert.False(t, saved.Changed())
}

func TestIsValidAddress(t *testing.T) {
	p := twoRegionDump(t)
	require.NoError(t, p.AddRegion(0x2000, []byte{0}, memory_map.ProtExecute))

	assert.True(t, p.IsValidAddress(0x1007))
	assert.False(t, p.IsValidAddress(0x1008))
	assert.False(t, p.IsValidAddress(0x2000), "execute-only is not readable")
	assert.False(t, p.IsValidAddress(0))
}

func TestSnapshotKeepsProtections(t *testing.T) {
	src := twoRegionDump(t)
	src.SetPointerSize(4)

	snap, err := Snapshot(src, 0x1002, 0x100)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.PointerSize())
	require.Len(t, snap.MemoryMap, 2)

	assert.Equal(t, uint64(0x1002), snap.MemoryMap[0].Address)
	assert.True(t, snap.MemoryMap[0].IsWritable())
	assert.False(t, snap.MemoryMap[1].IsWritable())

	data, err := snap.ReadMemory(0x1002, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5, 6, 7, 8}, data)

	_, err = Snapshot(src, 0x9000, 4)
	assert.ErrorIs(t, err, process.ErrInvalidAddress)
}

func TestSaveLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := twoRegionDump(t)
	src.PID = 42
	src.Name = "target"

	require.NoError(t, src.Save(fs, "/dumps/42"))

	loaded := NewProcessDump()
	require.NoError(t, loaded.Load(fs, "/dumps/42"))

	assert.Equal(t, process.ProcessID(42), loaded.PID)
	assert.Equal(t, "target", loaded.Name)
	assert.Equal(t, 8, loaded.PointerSize())
	assert.Equal(t, src.MemoryMap, loaded.MemoryMap)

	data, err := loaded.ReadMemory(0x1000, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, data)
}

func TestLoadRejectsTruncatedRegion(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, twoRegionDump(t).Save(fs, "/d"))
	require.NoError(t, afero.WriteFile(fs, "/d/"+regionFileName(0x1004), []byte{1}, 0644))

	assert.Error(t, NewProcessDump().Load(fs, "/d"))
}

func TestSnapshotAll(t *testing.T) {
	src := twoRegionDump(t)
	require.NoError(t, src.AddRegion(0x2000, make([]byte, 0x100), memory_map.ProtRead))
	require.NoError(t, src.AddRegion(0x3000, []byte{1}, memory_map.ProtExecute))

	all, err := SnapshotAll(src, src, 0)
	require.NoError(t, err)
	require.Len(t, all.MemoryMap, 3)

	small, err := SnapshotAll(src, src, 0x10)
	require.NoError(t, err)
	require.Len(t, small.MemoryMap, 2)
	data, err := small.ReadMemory(0x1000, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, data)
}

func TestMainModuleFromFileBackedRegions(t *testing.T) {
	p := twoRegionDump(t)
	require.NoError(t, p.AddRegion(0x4000, []byte{0x7f, 'E', 'L', 'F'}, memory_map.ProtRead))
	require.NoError(t, p.AddRegion(0x5000, []byte{0xC3}, memory_map.ProtRead|memory_map.ProtExecute))
	p.MemoryMap[0].Path = "/usr/lib/libc.so.6"
	p.MemoryMap[2].Path = "/usr/bin/target"
	p.MemoryMap[3].Path = "/usr/bin/target"

	_, err := NewProcessDump().MainModule()
	assert.Error(t, err)

	m, err := p.MainModule()
	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/libc.so.6", m.Path, "first mapped file without a name match")

	p.Name = "target"
	m, err = p.MainModule()
	require.NoError(t, err)
	assert.Equal(t, "target", m.Name)
	assert.Equal(t, process.ProcessMemoryAddress(0x4000), m.Base)
	assert.Equal(t, process.ProcessMemorySize(0x1001), m.Size)
}
