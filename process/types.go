package process

import "fmt"

// ProcessID represents a unique identifier for a process
type ProcessID int

// ProcessInfo contains basic information about a process
type ProcessInfo struct {
	PID     ProcessID // Process ID
	PPID    ProcessID // Parent Process ID
	Name    string    // Process name
	Exe     string    // Path to the executable
	Cmdline []string  // Command line arguments
}

// ModuleInfo describes a loaded module image
type ModuleInfo struct {
	Name       string
	Path       string
	Base       ProcessMemoryAddress
	Size       ProcessMemorySize
	EntryPoint ProcessMemoryAddress // zero when unknown
}

// Contains reports whether addr lies inside the module image.
func (m ModuleInfo) Contains(addr ProcessMemoryAddress) bool {
	return addr >= m.Base && uint64(addr-m.Base) < uint64(m.Size)
}

func (m ModuleInfo) String() string {
	return fmt.Sprintf("%s base=%s size=%#x entry=%s", m.Name, m.Base.ToString(), uint64(m.Size), m.EntryPoint.ToString())
}
