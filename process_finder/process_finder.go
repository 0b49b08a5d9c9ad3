// Package process_finder discovers running processes by PID or name.
package process_finder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"procmem/process"

	ps "github.com/shirou/gopsutil/v3/process"
)

// ErrNotFound is returned when no process matches.
var ErrNotFound = errors.New("process not found")

// Finder implements process.ProcessFinder on top of gopsutil.
type Finder struct {
	// IncludeSelf lets name lookups return the calling process.
	IncludeSelf bool
}

var _ process.ProcessFinder = (*Finder)(nil)

// New creates a Finder that skips the calling process in name lookups.
func New() *Finder {
	return &Finder{}
}

// FindProcessByPID finds a process by its PID
func (f *Finder) FindProcessByPID(pid process.ProcessID) (*process.ProcessInfo, error) {
	p, err := ps.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrNotFound)
	}
	info := describe(p)
	return &info, nil
}

// FindProcessByName returns every process whose name or executable basename
// equals name, ordered by PID. The match is case-sensitive like pidof.
func (f *Finder) FindProcessByName(name string) ([]process.ProcessInfo, error) {
	if name == "" {
		return nil, errors.New("empty name")
	}

	all, err := f.FindAllProcesses()
	if err != nil {
		return nil, err
	}

	selfPID := process.ProcessID(os.Getpid())
	var out []process.ProcessInfo
	for _, info := range all {
		if info.PID == selfPID && !f.IncludeSelf {
			continue
		}
		if info.Name == name || (info.Exe != "" && filepath.Base(info.Exe) == name) {
			out = append(out, info)
		}
	}
	return out, nil
}

// FindOneByName returns the match with the lowest PID.
func (f *Finder) FindOneByName(name string) (*process.ProcessInfo, error) {
	matches, err := f.FindProcessByName(name)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return &matches[0], nil
}

// FindAllProcesses returns information about all running processes, ordered by PID.
func (f *Finder) FindAllProcesses() ([]process.ProcessInfo, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	out := make([]process.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		out = append(out, describe(p))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PID < out[j].PID
	})
	return out, nil
}

// describe collects what is readable; processes owned by other users or
// exiting mid-scan leave fields empty.
func describe(p *ps.Process) process.ProcessInfo {
	info := process.ProcessInfo{PID: process.ProcessID(p.Pid)}
	if name, err := p.Name(); err == nil {
		info.Name = name
	}
	if ppid, err := p.Ppid(); err == nil {
		info.PPID = process.ProcessID(ppid)
	}
	if exe, err := p.Exe(); err == nil {
		info.Exe = exe
	}
	if cmdline, err := p.CmdlineSlice(); err == nil {
		info.Cmdline = cmdline
	}
	return info
}
