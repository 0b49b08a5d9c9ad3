//go:build windows

package process_windows

import (
	"fmt"

	"procmem/process"
	"procmem/process_finder"

	"golang.org/x/sys/windows"
)

// ProcessInformation is what the opener hands to callers: the process handle
// plus the addresses needed to start navigating its memory.
type ProcessInformation struct {
	PID        process.ProcessID
	Name       string
	Handle     windows.Handle
	ImageBase  process.ProcessMemoryAddress
	EntryPoint process.ProcessMemoryAddress
	Process    *RemoteProcess
}

// Close releases the process and its handle.
func (pi *ProcessInformation) Close() error {
	return pi.Process.Close()
}

// WindowsProcessHelper opens processes found by a process.ProcessFinder.
type WindowsProcessHelper struct {
	Finder  process.ProcessFinder
	Options []Option
}

// NewHelper creates a WindowsProcessHelper backed by gopsutil.
func NewHelper(options ...Option) *WindowsProcessHelper {
	return &WindowsProcessHelper{
		Finder:  process_finder.New(),
		Options: options,
	}
}

// OpenProcessByPID opens pid and resolves its main module.
func (h *WindowsProcessHelper) OpenProcessByPID(pid process.ProcessID) (*ProcessInformation, error) {
	info, err := h.Finder.FindProcessByPID(pid)
	if err != nil {
		return nil, err
	}

	p, err := Open(pid, h.Options...)
	if err != nil {
		return nil, err
	}

	result := &ProcessInformation{
		PID:     pid,
		Name:    info.Name,
		Handle:  p.Handle(),
		Process: p,
	}

	module, err := p.MainModule()
	if err != nil {
		p.log.Warn("Failed to resolve main module: ", err)
		return result, nil
	}
	result.ImageBase = module.Base
	result.EntryPoint = module.EntryPoint
	return result, nil
}

// OpenProcessByName opens the matching process with the lowest PID.
func (h *WindowsProcessHelper) OpenProcessByName(name string) (*ProcessInformation, error) {
	processes, err := h.Finder.FindProcessByName(name)
	if err != nil {
		return nil, err
	}

	if len(processes) == 0 {
		return nil, fmt.Errorf("no process found with name '%s'", name)
	}

	best := processes[0]
	for _, candidate := range processes[1:] {
		if candidate.PID < best.PID {
			best = candidate
		}
	}
	return h.OpenProcessByPID(best.PID)
}
