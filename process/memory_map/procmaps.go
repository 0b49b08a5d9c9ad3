package memory_map

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// LinuxMemoryMap reads /proc/[pid]/maps through an afero filesystem so the
// parser can be exercised without a live process.
type LinuxMemoryMap struct {
	fs afero.Fs
}

// NewLinuxMemoryMap creates a new LinuxMemoryMap instance. A nil fs means the
// host filesystem.
func NewLinuxMemoryMap(fs afero.Fs) *LinuxMemoryMap {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &LinuxMemoryMap{fs: fs}
}

// ReadMemoryMap reads and parses the memory map for a process from /proc/[pid]/maps.
// The result is sorted by address.
func (l *LinuxMemoryMap) ReadMemoryMap(pid int) ([]MemoryMapItem, error) {
	return l.ReadMemoryMapFile(fmt.Sprintf("/proc/%d/maps", pid))
}

// ReadMemoryMapFile parses a maps file at an arbitrary path, e.g. /proc/self/maps.
func (l *LinuxMemoryMap) ReadMemoryMapFile(path string) ([]MemoryMapItem, error) {
	file, err := l.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var memoryMap []MemoryMapItem
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		item, ok := ParseMapsLine(scanner.Text())
		if !ok {
			continue
		}
		memoryMap = append(memoryMap, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	Sort(memoryMap)
	return memoryMap, nil
}

// ParseMapsLine parses one line of /proc/[pid]/maps, e.g.
//
//	00400000-0040b000 r-xp 00000000 08:01 1234   /usr/bin/cat
func ParseMapsLine(line string) (MemoryMapItem, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return MemoryMapItem{}, false
	}

	// Parse address range (e.g., "00400000-0040b000")
	addrRange := strings.Split(fields[0], "-")
	if len(addrRange) != 2 {
		return MemoryMapItem{}, false
	}

	startAddr, err := strconv.ParseUint(addrRange[0], 16, 64)
	if err != nil {
		return MemoryMapItem{}, false
	}

	endAddr, err := strconv.ParseUint(addrRange[1], 16, 64)
	if err != nil || endAddr < startAddr {
		return MemoryMapItem{}, false
	}

	item := MemoryMapItem{
		Address:    startAddr,
		Size:       uint(endAddr - startAddr),
		Perms:      fields[1],
		Protection: ParsePerms(fields[1]),
		// everything listed in maps is backed; "---p" reservations fail on protection instead
		Committed: true,
	}

	if len(fields) > 2 {
		if off, err := strconv.ParseUint(fields[2], 16, 64); err == nil {
			item.Offset = off
		}
	}
	if len(fields) > 5 {
		item.Path = strings.Join(fields[5:], " ")
	}

	return item, true
}

// ParsePerms converts a maps permission string ("rw-p") to Protection.
func ParsePerms(perms string) Protection {
	var p Protection
	if len(perms) > 0 && perms[0] == 'r' {
		p |= ProtRead
	}
	if len(perms) > 1 && perms[1] == 'w' {
		p |= ProtWrite
	}
	if len(perms) > 2 && perms[2] == 'x' {
		p |= ProtExecute
	}
	return p
}
