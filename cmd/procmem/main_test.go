package main

import (
	"bytes"
	"encoding/binary"
	"testing"

	"procmem/process"
	"procmem/process/memory_map"
	"procmem/process_blob"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// savedDump writes a small two region image of /usr/bin/target:
//
//	0x1000 int32 1234
//	0x1010 pointer to 0x2000
//	0x1020 "hello"
//	0x2008 int32 31337
func savedDump(t *testing.T) string {
	data := make([]byte, 0x40)
	binary.LittleEndian.PutUint32(data[0x00:], 1234)
	binary.LittleEndian.PutUint64(data[0x10:], 0x2000)
	copy(data[0x20:], "hello\x00")

	other := make([]byte, 0x20)
	binary.LittleEndian.PutUint32(other[0x08:], 31337)

	dump := process_blob.NewProcessDump()
	dump.Name = "target"
	require.NoError(t, dump.AddRegion(0x1000, data, memory_map.ProtRead|memory_map.ProtWrite))
	require.NoError(t, dump.AddRegion(0x2000, other, memory_map.ProtRead))
	for i := range dump.MemoryMap {
		dump.MemoryMap[i].Path = "/usr/bin/target"
	}

	dir := t.TempDir()
	require.NoError(t, dump.Save(afero.NewOsFs(), dir))
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"procmem", "--dump", dir}, args...))
	return out.String(), err
}

func TestGet(t *testing.T) {
	dir := savedDump(t)

	out, err := run(t, dir, "get", "--type", "int32", "0x1000")
	require.NoError(t, err)
	assert.Equal(t, "0x1000 = 1234\n", out)

	out, err = run(t, dir, "get", "--type", "int32", "0x1010", "0x8")
	require.NoError(t, err)
	assert.Equal(t, "0x2008 = 31337\n", out)

	_, err = run(t, dir, "get", "--type", "int32", "0x9000")
	assert.ErrorIs(t, err, process.ErrInvalidAddress)

	_, err = run(t, dir, "get", "--type", "uint128", "0x1000")
	assert.Error(t, err)
}

func TestSetAndPatch(t *testing.T) {
	dir := savedDump(t)

	_, err := run(t, dir, "set", "--type", "int32", "0x1000", "99")
	assert.NoError(t, err)

	_, err = run(t, dir, "set", "--type", "int32", "0x1000", "not-a-number")
	assert.Error(t, err)

	_, err = run(t, dir, "patch", "--type", "int32", "0x1000", "1234", "5")
	assert.NoError(t, err)

	_, err = run(t, dir, "patch", "--type", "int32", "0x1000", "7", "5")
	assert.ErrorIs(t, err, process.ErrCompareMismatch)
}

func TestString(t *testing.T) {
	dir := savedDump(t)

	out, err := run(t, dir, "string", "0x1020")
	require.NoError(t, err)
	assert.Equal(t, "0x1020 = \"hello\"\n", out)

	out, err = run(t, dir, "string", "--max", "2", "0x1020")
	require.NoError(t, err)
	assert.Equal(t, "0x1020 = \"he\"\n", out)
}

func TestChain(t *testing.T) {
	dir := savedDump(t)

	out, err := run(t, dir, "chain", "0x1010", "0x8")
	require.NoError(t, err)
	assert.Equal(t, "0x1010\n[0x1010] = 0x2000 +0x8 -> 0x2008\n", out)

	_, err = run(t, dir, "chain", "0x1010", "0x8", "0", "0")
	assert.ErrorIs(t, err, process.ErrInvalidAddress)
}

func TestScanMainModule(t *testing.T) {
	dir := savedDump(t)

	out, err := run(t, dir, "scan", "69 7A 00 00")
	require.NoError(t, err)
	assert.Equal(t, "0x2008\n", out)

	out, err = run(t, dir, "scan", "--all", "68 65 ?? 6C")
	require.NoError(t, err)
	assert.Equal(t, "0x1020\n", out)

	_, err = run(t, dir, "scan", "6")
	assert.ErrorIs(t, err, process.ErrMalformedPattern)
}

func TestSearch(t *testing.T) {
	dir := savedDump(t)

	out, err := run(t, dir, "search", "--type", "int32", "--value", "31337", "--depth", "2", "--struct-size", "0x40", "0x1000")
	require.NoError(t, err)
	assert.Equal(t, "0x2008 [+0x10 -> +0x8]\n", out)
}

func TestHexdump(t *testing.T) {
	dir := savedDump(t)

	out, err := run(t, dir, "dump", "--no-color", "--size", "16", "0x1000")
	require.NoError(t, err)
	assert.Contains(t, out, "00001000  d2 04 00 00")
}

func TestSaveSnapshot(t *testing.T) {
	dir := savedDump(t)
	out := t.TempDir()

	_, err := run(t, dir, "dump", "--out", out, "--size", "8", "0x1000")
	require.NoError(t, err)

	dump := process_blob.NewProcessDump()
	require.NoError(t, dump.Load(afero.NewOsFs(), out))
	assert.Equal(t, "target", dump.Name)
	data, err := dump.ReadMemory(0x1000, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xd2, 0x04, 0x00, 0x00}, data)
}

func TestDumpRejectsBadSize(t *testing.T) {
	dir := savedDump(t)

	_, err := run(t, dir, "dump", "--size", "-1", "--out", t.TempDir(), "0x1000")
	assert.Error(t, err)
	_, err = run(t, dir, "dump", "--size", "0", "0x1000")
	assert.Error(t, err)
}

func TestNoTarget(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"procmem", "get", "0x1000"})
	assert.ErrorIs(t, err, errNoTarget)
}
