// Package hexdump renders memory as a colored hex dump with optional pattern
// highlighting and pointer annotation.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"procmem/memory"
	"procmem/process"
	"procmem/scan"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// Options defines options for customizing the hexdump output
type Options struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// ShowASCII determines whether to show the ASCII representation
	ShowASCII bool

	// Color enables ANSI colors
	Color bool

	// StartAddress is the address of data[0]
	StartAddress process.ProcessMemoryAddress

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// Highlight marks every match of a pattern
	Highlight process.AOB

	// Pointers, when set, annotates each pointer aligned word that is a valid
	// address in this space
	Pointers process.AddressSpace
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() Options {
	return Options{
		BytesPerLine: 16,
		ShowASCII:    true,
		Color:        true,
	}
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpSpace reads size bytes at addr from space and dumps them.
func DumpSpace(writer io.Writer, space process.AddressSpace, addr process.ProcessMemoryAddress, size int, options Options) error {
	data, err := memory.NewBytes(space, memory.Direct).Read(addr, size)
	if err != nil {
		return err
	}
	options.StartAddress = addr
	DumpToWriter(writer, data, options)
	return nil
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}

	highlighted := make([]bool, len(data))
	for _, offset := range scan.FindAll(data, options.Highlight) {
		for i := 0; i < options.Highlight.Len(); i++ {
			highlighted[offset+i] = true
		}
	}

	width := 8
	if uint64(options.StartAddress)+uint64(len(data)) > 0xFFFFFFFF {
		width = 16
	}

	lineCount := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lineCount >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			break
		}

		end := min(offset+options.BytesPerLine, len(data))
		d := dumper{writer: writer, options: options}
		d.line(data[offset:end], highlighted[offset:end], options.StartAddress.Add(int64(offset)), width)
		lineCount++
	}
}

type dumper struct {
	writer  io.Writer
	options Options
}

func (d dumper) paint(fg coloransi.ColorCode, s string) string {
	if !d.options.Color {
		return s
	}
	return coloransi.Foreground(fg, s)
}

func (d dumper) mark(s string) string {
	if !d.options.Color {
		return s
	}
	return coloransi.Color(coloransi.Black, coloransi.Yellow, s)
}

func (d dumper) line(data []byte, highlighted []bool, addr process.ProcessMemoryAddress, width int) {
	var sb strings.Builder

	sb.WriteString(d.paint(coloransi.Cyan, fmt.Sprintf("%0*x", width, uint64(addr))))
	sb.WriteString("  ")

	for i := 0; i < d.options.BytesPerLine; i++ {
		if i > 0 && i%8 == 0 {
			sb.WriteByte(' ')
		}
		if i >= len(data) {
			sb.WriteString("   ")
			continue
		}

		hex := fmt.Sprintf("%02x", data[i])
		switch {
		case highlighted[i]:
			hex = d.mark(hex)
		case data[i] == 0:
			hex = d.paint(coloransi.BrightBlack, hex)
		default:
			hex = d.paint(coloransi.Green, hex)
		}
		sb.WriteString(hex)
		sb.WriteByte(' ')
	}

	if d.options.ShowASCII {
		sb.WriteString(" |")
		for i, c := range data {
			ch := "."
			if c >= 0x20 && c < 0x7F {
				ch = string(c)
			}
			if highlighted[i] {
				ch = d.mark(ch)
			} else if ch == "." {
				ch = d.paint(coloransi.BrightBlack, ch)
			}
			sb.WriteString(ch)
		}
		sb.WriteString("|")
	}

	for _, ptr := range d.pointers(data, addr) {
		sb.WriteString(" ")
		sb.WriteString(d.paint(coloransi.Yellow, "->"+ptr.ToString()))
	}

	sb.WriteByte('\n')
	io.WriteString(d.writer, sb.String())
}

// pointers returns the aligned words of data that point into valid memory.
func (d dumper) pointers(data []byte, addr process.ProcessMemoryAddress) []process.ProcessMemoryAddress {
	space := d.options.Pointers
	if space == nil {
		return nil
	}

	size := space.PointerSize()
	var result []process.ProcessMemoryAddress
	for i := 0; i+size <= len(data); i += size {
		if uint64(addr.Add(int64(i)))%uint64(size) != 0 {
			continue
		}
		var ptr process.ProcessMemoryAddress
		if size == 4 {
			ptr = process.ProcessMemoryAddress(binary.NativeEndian.Uint32(data[i:]))
		} else {
			ptr = process.ProcessMemoryAddress(binary.NativeEndian.Uint64(data[i:]))
		}
		if ptr != 0 && space.IsValidAddress(ptr) {
			result = append(result, ptr)
		}
	}
	return result
}
