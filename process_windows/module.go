//go:build windows

package process_windows

import (
	"fmt"
	"path/filepath"
	"unsafe"

	"procmem/process"

	"golang.org/x/sys/windows"
)

// mainModule returns the first module of the process, which is always its
// executable image.
func mainModule(h windows.Handle) (process.ModuleInfo, error) {
	var module windows.Handle
	var needed uint32
	if err := windows.EnumProcessModules(h, &module, uint32(unsafe.Sizeof(module)), &needed); err != nil {
		return process.ModuleInfo{}, fmt.Errorf("EnumProcessModules: %w", err)
	}

	var info windows.ModuleInfo
	if err := windows.GetModuleInformation(h, module, &info, uint32(unsafe.Sizeof(info))); err != nil {
		return process.ModuleInfo{}, fmt.Errorf("GetModuleInformation: %w", err)
	}

	var name [windows.MAX_PATH]uint16
	path := ""
	if err := windows.GetModuleFileNameEx(h, module, &name[0], uint32(len(name))); err == nil {
		path = windows.UTF16ToString(name[:])
	}

	return process.ModuleInfo{
		Name:       filepath.Base(path),
		Path:       path,
		Base:       process.ProcessMemoryAddress(info.BaseOfDll),
		Size:       process.ProcessMemorySize(info.SizeOfImage),
		EntryPoint: process.ProcessMemoryAddress(info.EntryPoint),
	}, nil
}
