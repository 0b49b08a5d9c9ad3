// Package search discovers pointer paths from a base address to a value.
//
// A Result path is directly consumable by the pointer navigator:
//
//	memory.ResolveChain(space, base.Add(path[0]), path[1:]...)
package search

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"procmem/memory"
	"procmem/process"
)

// Searcher holds configuration for the search
type Searcher struct {
	MaxStructSize uint
	MaxDepth      int
	MinAlignment  uint
	SearchFor     func([]byte) bool
}

// Option is a function that configures a Searcher
type Option func(*Searcher)

func WithMaxStructSize(size uint) Option {
	return func(s *Searcher) {
		s.MaxStructSize = size
	}
}

func WithMaxDepth(depth int) Option {
	return func(s *Searcher) {
		s.MaxDepth = depth
	}
}

func WithMinAlignment(align uint) Option {
	return func(s *Searcher) {
		s.MinAlignment = align
	}
}

// WithValue searches for the in-memory bytes of val.
func WithValue[T memory.Primitive](val T) Option {
	want := memory.Encode(val)
	return func(s *Searcher) {
		s.SearchFor = func(data []byte) bool {
			return bytes.HasPrefix(data, want)
		}
	}
}

// WithPattern searches for a byte pattern, wildcards allowed.
func WithPattern(aob process.AOB) Option {
	return func(s *Searcher) {
		s.SearchFor = func(data []byte) bool {
			return aob.MatchAt(data, 0)
		}
	}
}

// Result represents a found path to the target
type Result struct {
	Path    []int64 // offset from base, then one offset per dereference
	Address process.ProcessMemoryAddress
}

// Resolve follows the path again from base, for example after the target
// has reallocated its structures.
func (r Result) Resolve(space process.AddressSpace, base process.ProcessMemoryAddress) (process.ProcessMemoryAddress, error) {
	if len(r.Path) == 0 {
		return 0, fmt.Errorf("empty path")
	}
	return memory.ResolveChain(space, base.Add(r.Path[0]), r.Path[1:]...)
}

// Search performs a recursive search for the target value
func Search(space process.AddressSpace, base process.ProcessMemoryAddress, options ...Option) ([]Result, error) {
	s := &Searcher{
		MaxStructSize: 256, // Default
		MaxDepth:      3,   // Default
		MinAlignment:  4,   // Default
	}

	for _, opt := range options {
		opt(s)
	}

	if s.SearchFor == nil {
		return nil, fmt.Errorf("no search target specified")
	}
	if s.MinAlignment == 0 {
		s.MinAlignment = 1
	}

	ptrSize := uint(space.PointerSize())

	var results []Result
	visited := make(map[process.ProcessMemoryAddress]bool)

	var searchRecursive func(addr process.ProcessMemoryAddress, depth int, path []int64)
	searchRecursive = func(addr process.ProcessMemoryAddress, depth int, path []int64) {
		if depth > s.MaxDepth {
			return
		}
		if visited[addr] {
			return
		}
		visited[addr] = true

		// a struct near the end of a mapping is still searched up to the boundary
		data, _ := space.ReadMemory(addr, process.ProcessMemorySize(s.MaxStructSize))
		if len(data) == 0 {
			return
		}

		for offset := uint(0); offset < uint(len(data)); offset += s.MinAlignment {
			if s.SearchFor(data[offset:]) {
				results = append(results, Result{
					Path:    appendPath(path, offset),
					Address: addr.Add(int64(offset)),
				})
			}

			if offset%ptrSize != 0 || depth >= s.MaxDepth || offset+ptrSize > uint(len(data)) {
				continue
			}

			var ptrVal uint64
			if ptrSize == 4 {
				ptrVal = uint64(binary.NativeEndian.Uint32(data[offset:]))
			} else {
				ptrVal = binary.NativeEndian.Uint64(data[offset:])
			}

			if ptrVal != 0 && space.IsValidAddress(process.ProcessMemoryAddress(ptrVal)) {
				searchRecursive(process.ProcessMemoryAddress(ptrVal), depth+1, appendPath(path, offset))
			}
		}
	}

	searchRecursive(base, 0, nil)

	return results, nil
}

func appendPath(path []int64, offset uint) []int64 {
	newPath := make([]int64, len(path), len(path)+1)
	copy(newPath, path)
	return append(newPath, int64(offset))
}
