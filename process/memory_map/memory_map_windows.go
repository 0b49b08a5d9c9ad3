//go:build windows

package memory_map

import (
	"golang.org/x/sys/windows"
)

// FromMemoryBasicInformation converts a VirtualQuery(Ex) result.
func FromMemoryBasicInformation(mbi *windows.MemoryBasicInformation) MemoryMapItem {
	prot := FromPageProtection(mbi.Protect)
	return MemoryMapItem{
		Address:    uint64(mbi.BaseAddress),
		Size:       uint(mbi.RegionSize),
		Perms:      prot.String(),
		Protection: prot,
		Committed:  mbi.State == windows.MEM_COMMIT,
	}
}

// FromPageProtection maps PAGE_* constants. Write-copy pages carry
// ProtCopyOnWrite and are therefore not Accessible.
func FromPageProtection(protect uint32) Protection {
	var p Protection
	switch protect &^ (windows.PAGE_GUARD | windows.PAGE_NOCACHE | windows.PAGE_WRITECOMBINE) {
	case windows.PAGE_READONLY:
		p = ProtRead
	case windows.PAGE_READWRITE:
		p = ProtRead | ProtWrite
	case windows.PAGE_WRITECOPY:
		p = ProtRead | ProtWrite | ProtCopyOnWrite
	case windows.PAGE_EXECUTE:
		p = ProtExecute
	case windows.PAGE_EXECUTE_READ:
		p = ProtRead | ProtExecute
	case windows.PAGE_EXECUTE_READWRITE:
		p = ProtRead | ProtWrite | ProtExecute
	case windows.PAGE_EXECUTE_WRITECOPY:
		p = ProtRead | ProtWrite | ProtExecute | ProtCopyOnWrite
	}
	if protect&windows.PAGE_GUARD != 0 {
		p |= ProtGuard
	}
	if protect&windows.PAGE_NOCACHE != 0 {
		p |= ProtNoCache
	}
	if protect&windows.PAGE_WRITECOMBINE != 0 {
		p |= ProtWriteCombine
	}
	return p
}
