// Package scan locates byte patterns with wildcards in memory.
//
// The matcher is a plain sliding window: for every start offset the pattern
// is compared byte by byte, skipping wildcard positions. The first match is
// the one with the lowest address.
package scan

import (
	"procmem/memory"
	"procmem/process"
)

// FindFirst returns the offset of the first match of aob in data, or -1.
// An invalid pattern never matches.
func FindFirst(data []byte, aob process.AOB) int {
	if !aob.IsValid() {
		return -1
	}
	for i := 0; i <= len(data)-aob.Len(); i++ {
		if aob.MatchAt(data, i) {
			return i
		}
	}
	return -1
}

// FindAll returns the offsets of every match of aob in data, overlapping
// matches included.
func FindAll(data []byte, aob process.AOB) []int {
	if !aob.IsValid() {
		return nil
	}
	var matches []int
	for i := 0; i <= len(data)-aob.Len(); i++ {
		if aob.MatchAt(data, i) {
			matches = append(matches, i)
		}
	}
	return matches
}

// ValuePattern returns an exact pattern for the in-memory bytes of v.
func ValuePattern[T memory.Primitive](v T) process.AOB {
	return process.ExactAOB(memory.Encode(v))
}

// StringPattern returns an exact pattern for value without its terminator,
// encoded as UTF-16 when wide is set.
func StringPattern(value string, wide bool) process.AOB {
	if wide {
		return process.ExactAOB(memory.Strings[uint16]{}.Encode(value))
	}
	return process.ExactAOB(memory.Strings[uint8]{}.Encode(value))
}
