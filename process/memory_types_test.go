package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAOB(t *testing.T) {
	aob, err := ParseAOB("90 90")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90, 0x90}, aob.Pattern)
	assert.False(t, aob.IsWildcard(0))
	assert.False(t, aob.IsWildcard(1))

	aob, err = ParseAOB("90 ??")
	require.NoError(t, err)
	assert.Equal(t, 2, aob.Len())
	assert.False(t, aob.IsWildcard(0))
	assert.True(t, aob.IsWildcard(1))
}

func TestParseAOBWhitespaceIsInsignificant(t *testing.T) {
	spaced, err := ParseAOB("  48 8b\t?? ?? 05 ")
	require.NoError(t, err)
	packed, err := ParseAOB("488B????05")
	require.NoError(t, err)

	assert.Equal(t, spaced, packed)
	assert.Equal(t, "48 8B ?? ?? 05", packed.String())
}

func TestParseAOBMalformed(t *testing.T) {
	for _, s := range []string{"9", "ZZ", "90 9", "9 0", "?", "?A", "", "   ", "90 G0"} {
		aob, err := ParseAOB(s)
		assert.ErrorIs(t, err, ErrMalformedPattern, "input %q", s)
		assert.Equal(t, 0, aob.Len(), "input %q", s)
		assert.False(t, aob.IsValid(), "input %q", s)
	}
}

func TestAOBMatchAt(t *testing.T) {
	aob := MustParseAOB("AA ?? CC")
	data := []byte{0x11, 0xAA, 0xBB, 0xCC, 0x22}

	assert.False(t, aob.MatchAt(data, 0))
	assert.True(t, aob.MatchAt(data, 1))
	assert.False(t, aob.MatchAt(data, 3), "window past the end")
	assert.False(t, aob.MatchAt(data, -1))
}

func TestExactAOB(t *testing.T) {
	aob := ExactAOB([]byte("hi"))
	assert.True(t, aob.IsValid())
	assert.Equal(t, "68 69", aob.String())

	assert.False(t, ExactAOB(nil).IsValid())
}

func TestAddressAdd(t *testing.T) {
	base := ProcessMemoryAddress(0x1000)
	assert.Equal(t, ProcessMemoryAddress(0x1010), base.Add(0x10))
	assert.Equal(t, ProcessMemoryAddress(0xFF0), base.Add(-0x10))
	assert.Equal(t, "0x1000", base.ToString())
}

func TestModuleInfoContains(t *testing.T) {
	m := ModuleInfo{Base: 0x400000, Size: 0x1000}
	assert.True(t, m.Contains(0x400000))
	assert.True(t, m.Contains(0x400fff))
	assert.False(t, m.Contains(0x401000))
	assert.False(t, m.Contains(0x3fffff))
}
