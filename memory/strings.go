package memory

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"
	"unsafe"

	"procmem/process"
)

// DefaultChunkSize is the number of code units fetched per read while
// looking for a terminator.
const DefaultChunkSize = 256

// Char is a string code unit: uint8 for narrow strings, uint16 for wide
// (UTF-16) strings.
type Char interface {
	~uint8 | ~uint16
}

// Strings reads and writes null-terminated strings of code unit C.
//
// Reads never assume the string is resident past what has been fetched. They
// stream ChunkSize units at a time and stop at the terminator, at the length
// budget, or at the first short or failed read, returning whatever was
// collected so far.
type Strings[C Char] struct {
	Space     process.AddressSpace
	Mode      Mode
	ChunkSize int
}

// NarrowStrings returns an accessor for single byte strings.
func NarrowStrings(space process.AddressSpace, mode Mode) Strings[uint8] {
	return Strings[uint8]{Space: space, Mode: mode, ChunkSize: DefaultChunkSize}
}

// WideStrings returns an accessor for UTF-16 strings.
func WideStrings(space process.AddressSpace, mode Mode) Strings[uint16] {
	return Strings[uint16]{Space: space, Mode: mode, ChunkSize: DefaultChunkSize}
}

func (s Strings[C]) width() int {
	var c C
	return int(unsafe.Sizeof(c))
}

func (s Strings[C]) chunkSize() int {
	if s.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return s.ChunkSize
}

// Read returns the string at addr up to its terminator.
func (s Strings[C]) Read(addr process.ProcessMemoryAddress) (string, error) {
	return s.ReadN(addr, -1)
}

// ReadN returns at most maxLength code units of the string at addr. A
// negative maxLength means no limit.
func (s Strings[C]) ReadN(addr process.ProcessMemoryAddress, maxLength int) (string, error) {
	target, err := resolve(s.Space, s.Mode, addr)
	if err != nil {
		return "", err
	}

	units, err := s.readUnits(target, maxLength)
	if err != nil {
		return "", err
	}
	return s.decodeString(units), nil
}

// Get is Read returning "" on failure.
func (s Strings[C]) Get(addr process.ProcessMemoryAddress) string {
	v, _ := s.Read(addr)
	return v
}

// GetN is ReadN returning "" on failure.
func (s Strings[C]) GetN(addr process.ProcessMemoryAddress, maxLength int) string {
	v, _ := s.ReadN(addr, maxLength)
	return v
}

func (s Strings[C]) readUnits(target process.ProcessMemoryAddress, limit int) ([]C, error) {
	width := s.width()
	chunk := s.chunkSize()

	var units []C
	cur := target
	for {
		want := chunk
		if limit >= 0 {
			remaining := limit - len(units)
			if remaining <= 0 {
				return units, nil
			}
			want = min(want, remaining)
		}

		data, err := s.Space.ReadMemory(cur, process.ProcessMemorySize(want*width))
		got := len(data) / width
		if got == 0 && err != nil {
			if len(units) == 0 {
				return nil, fmt.Errorf("read string at %s: %w", target.ToString(), err)
			}
			return units, nil
		}

		for i := 0; i < got; i++ {
			u := unitAt[C](data, i, width)
			if u == 0 {
				return units, nil
			}
			units = append(units, u)
		}

		// a short chunk marks the end of readable memory
		if err != nil || got < want {
			return units, nil
		}
		cur = cur.Add(int64(want * width))
	}
}

func unitAt[C Char](data []byte, i, width int) C {
	if width == 1 {
		return C(data[i])
	}
	return C(binary.NativeEndian.Uint16(data[i*2:]))
}

func (s Strings[C]) decodeString(units []C) string {
	if s.width() == 1 {
		b := make([]byte, len(units))
		for i, u := range units {
			b[i] = byte(u)
		}
		return string(b)
	}

	w := make([]uint16, len(units))
	for i, u := range units {
		w[i] = uint16(u)
	}
	return string(utf16.Decode(w))
}

// encodeString returns value in memory layout, optionally with a terminator.
func (s Strings[C]) encodeString(value string, terminate bool) []byte {
	if s.width() == 1 {
		out := []byte(value)
		if terminate {
			out = append(out, 0)
		}
		return out
	}

	w := utf16.Encode([]rune(value))
	if terminate {
		w = append(w, 0)
	}
	out := make([]byte, len(w)*2)
	for i, u := range w {
		binary.NativeEndian.PutUint16(out[i*2:], u)
	}
	return out
}

// Encode returns value in memory layout without a terminator.
func (s Strings[C]) Encode(value string) []byte {
	return s.encodeString(value, false)
}

// Write stores value and its terminator at addr. The destination must have
// room for len(value)+1 code units.
func (s Strings[C]) Write(addr process.ProcessMemoryAddress, value string) error {
	target, err := resolve(s.Space, s.Mode, addr)
	if err != nil {
		return err
	}
	return writeProtected(s.Space, target, s.encodeString(value, true))
}

// Set is Write reporting success as a bool.
func (s Strings[C]) Set(addr process.ProcessMemoryAddress, value string) bool {
	return s.Write(addr, value) == nil
}

// CompareAndWrite writes to (with terminator) at addr if the code units at
// addr start with from. Only len(from) units are compared, so the resident
// string may be longer than from. to may be longer than from; the caller
// guarantees the destination has room for it.
func (s Strings[C]) CompareAndWrite(addr process.ProcessMemoryAddress, from, to string) error {
	target, err := resolve(s.Space, s.Mode, addr)
	if err != nil {
		return err
	}

	expected := s.encodeString(from, false)
	if len(expected) > 0 {
		cur, err := s.Space.ReadMemory(target, process.ProcessMemorySize(len(expected)))
		if err != nil {
			return fmt.Errorf("read %d bytes at %s: %w", len(expected), target.ToString(), err)
		}
		if !bytes.Equal(cur, expected) {
			return fmt.Errorf("%s: %w", target.ToString(), process.ErrCompareMismatch)
		}
	}

	return writeProtected(s.Space, target, s.encodeString(to, true))
}

// Patch is CompareAndWrite reporting success as a bool.
func (s Strings[C]) Patch(addr process.ProcessMemoryAddress, from, to string) bool {
	return s.CompareAndWrite(addr, from, to) == nil
}
