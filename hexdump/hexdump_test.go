package hexdump

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"procmem/process"
	"procmem/process_blob"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plain() Options {
	o := DefaultOptions()
	o.Color = false
	return o
}

func TestDumpLayout(t *testing.T) {
	out := Dump([]byte("Hello, hexdump!\x00tail"), plain())
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 2)

	assert.True(t, strings.HasPrefix(lines[0], "00000000  48 65 6c 6c 6f 2c 20 68  65 78 64 75 6d 70 21 00 "))
	assert.True(t, strings.HasSuffix(lines[0], "|Hello, hexdump!.|"))
	assert.True(t, strings.HasPrefix(lines[1], "00000010  74 61 69 6c "))
	assert.True(t, strings.HasSuffix(lines[1], "|tail|"))
	assert.Equal(t, len(lines[0])-len("Hello, hexdump!."), len(lines[1])-len("tail"), "short line is padded")
}

func TestMaxLines(t *testing.T) {
	o := plain()
	o.MaxLines = 1
	out := Dump(make([]byte, 40), o)
	assert.Contains(t, out, "... 24 more bytes")
}

func TestColorAndHighlight(t *testing.T) {
	o := DefaultOptions()
	o.Highlight = process.MustParseAOB("AA ?? CC")
	out := Dump([]byte{0x11, 0xAA, 0xBB, 0xCC, 0x22}, o)
	assert.Contains(t, out, "\x1b[")

	o.Color = false
	assert.NotContains(t, Dump([]byte{0x11, 0xAA}, o), "\x1b[")
}

func TestDumpSpaceAnnotatesPointers(t *testing.T) {
	data := make([]byte, 0x20)
	binary.NativeEndian.PutUint64(data[8:], 0x100010)
	binary.NativeEndian.PutUint64(data[16:], 0xdeadbeef)
	space := process_blob.NewProcessBlob(0x100000, data)

	o := plain()
	o.Pointers = space
	var buf bytes.Buffer
	require.NoError(t, DumpSpace(&buf, space, 0x100000, 0x20, o))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "00100000  "))
	assert.Contains(t, out, "->0x100010")
	assert.NotContains(t, out, "->0xDEADBEEF")

	assert.Error(t, DumpSpace(&buf, space, 0x200000, 4, o))
}
