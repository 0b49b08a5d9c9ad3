package process

import (
	"fmt"
	"strings"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// Add returns the address moved by a signed offset. Overflow wraps.
func (pma ProcessMemoryAddress) Add(offset int64) ProcessMemoryAddress {
	return pma + ProcessMemoryAddress(offset)
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

const (
	maskExact    byte = 0xFF
	maskWildcard byte = 0x00
)

// AOB (Array of Bytes) represents a pattern to search for in memory
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // 0xFF means exact match and 0x00 means wildcard
}

// IsValid reports whether the pattern can be searched for. A zero-length
// pattern is never valid.
func (aob AOB) IsValid() bool {
	return len(aob.Pattern) > 0 && len(aob.Pattern) == len(aob.Mask)
}

// Len returns the number of elements in the pattern.
func (aob AOB) Len() int {
	return len(aob.Pattern)
}

// IsWildcard reports whether element i matches any byte.
func (aob AOB) IsWildcard(i int) bool {
	return aob.Mask[i] == maskWildcard
}

// MatchAt reports whether the pattern matches data starting at offset.
func (aob AOB) MatchAt(data []byte, offset int) bool {
	if offset < 0 || offset+len(aob.Pattern) > len(data) {
		return false
	}
	for j := range aob.Pattern {
		if aob.Mask[j] == maskWildcard {
			continue
		}
		if data[offset+j] != aob.Pattern[j] {
			return false
		}
	}
	return true
}

// String renders the pattern in the same format ParseAOB accepts.
func (aob AOB) String() string {
	var sb strings.Builder
	for i, b := range aob.Pattern {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if aob.Mask[i] == maskWildcard {
			sb.WriteString("??")
		} else {
			fmt.Fprintf(&sb, "%02X", b)
		}
	}
	return sb.String()
}

func NewAOB(pattern, mask []byte) (AOB, error) {
	if len(pattern) != len(mask) {
		return AOB{}, fmt.Errorf("pattern and mask must be of the same length")
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}

// ExactAOB builds a pattern without wildcards.
func ExactAOB(pattern []byte) AOB {
	mask := make([]byte, len(pattern))
	for i := range mask {
		mask[i] = maskExact
	}
	return AOB{Pattern: append([]byte(nil), pattern...), Mask: mask}
}

// ParseAOB compiles a textual mask such as "48 8B ?? ?? 05" or "488B????05".
//
// Each token is either two hex digits (any case) or the wildcard "??".
// Whitespace between tokens is ignored. A malformed token, including a
// dangling single character, yields an empty AOB and an error wrapping
// ErrMalformedPattern.
func ParseAOB(s string) (AOB, error) {
	var aob AOB

	for i := 0; i < len(s); {
		if isSpace(s[i]) {
			i++
			continue
		}
		if i+1 >= len(s) || isSpace(s[i+1]) {
			return AOB{}, fmt.Errorf("%w: incomplete token %q at %d", ErrMalformedPattern, s[i:i+1], i)
		}

		hi, lo := s[i], s[i+1]
		if hi == '?' && lo == '?' {
			aob.Pattern = append(aob.Pattern, 0)
			aob.Mask = append(aob.Mask, maskWildcard)
			i += 2
			continue
		}

		h, okH := hexValue(hi)
		l, okL := hexValue(lo)
		if !okH || !okL {
			return AOB{}, fmt.Errorf("%w: invalid token %q at %d", ErrMalformedPattern, s[i:i+2], i)
		}
		aob.Pattern = append(aob.Pattern, h<<4|l)
		aob.Mask = append(aob.Mask, maskExact)
		i += 2
	}

	if len(aob.Pattern) == 0 {
		return AOB{}, fmt.Errorf("%w: nothing to search for", ErrMalformedPattern)
	}

	return aob, nil
}

// MustParseAOB is ParseAOB for patterns known at compile time.
func MustParseAOB(s string) AOB {
	aob, err := ParseAOB(s)
	if err != nil {
		panic(err)
	}
	return aob
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
