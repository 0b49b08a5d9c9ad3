package search

import (
	"encoding/binary"
	"testing"

	"procmem/memory"
	"procmem/process"
	"procmem/process/memory_map"
	"procmem/process_blob"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base(0x1000)+0x10 -> obj(0x2000); obj+0x8 -> inner(0x3000); inner+0x24 holds 31337
func pointerGraph(t *testing.T) *process_blob.ProcessDump {
	space := process_blob.NewProcessDump()
	root := make([]byte, 0x100)
	obj := make([]byte, 0x100)
	inner := make([]byte, 0x100)
	binary.NativeEndian.PutUint64(root[0x10:], 0x2000)
	binary.NativeEndian.PutUint64(obj[0x8:], 0x3000)
	binary.NativeEndian.PutUint32(inner[0x24:], 31337)
	// cycle back to the root
	binary.NativeEndian.PutUint64(inner[0x40:], 0x1000)

	require.NoError(t, space.AddRegion(0x1000, root, memory_map.ProtRead|memory_map.ProtWrite))
	require.NoError(t, space.AddRegion(0x2000, obj, memory_map.ProtRead|memory_map.ProtWrite))
	require.NoError(t, space.AddRegion(0x3000, inner, memory_map.ProtRead|memory_map.ProtWrite))
	return space
}

func TestSearchFindsPath(t *testing.T) {
	space := pointerGraph(t)

	results, err := Search(space, 0x1000, WithValue[int32](31337))
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, []int64{0x10, 0x8, 0x24}, results[0].Path)
	assert.Equal(t, process.ProcessMemoryAddress(0x3024), results[0].Address)

	addr, err := results[0].Resolve(space, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x3024), addr)
	assert.Equal(t, int32(31337), memory.Get[int32](space, addr))
}

func TestSearchRespectsDepth(t *testing.T) {
	space := pointerGraph(t)

	results, err := Search(space, 0x1000, WithValue[int32](31337), WithMaxDepth(1))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchPattern(t *testing.T) {
	space := pointerGraph(t)

	results, err := Search(space, 0x2000, WithPattern(process.MustParseAOB("69 7A")), WithMinAlignment(4))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []int64{0x8, 0x24}, results[0].Path)
}

func TestSearchNeedsTarget(t *testing.T) {
	_, err := Search(pointerGraph(t), 0x1000)
	assert.Error(t, err)
}
