//go:build linux

package process_linux

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"procmem/process"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// Handle is a pidfd for a target process. A pidfd keeps referring to the
// same process after it exits, so a recycled PID is never mistaken for the
// original target.
type Handle struct {
	fd  int
	pid process.ProcessID
	fs  afero.Fs
}

// OpenHandle opens a pidfd for pid.
func OpenHandle(pid process.ProcessID) (*Handle, error) {
	fd, err := unix.PidfdOpen(int(pid), 0)
	if err != nil {
		return nil, fmt.Errorf("pidfd_open %d: %w", pid, err)
	}
	return &Handle{fd: fd, pid: pid, fs: afero.NewOsFs()}, nil
}

// PID returns the PID the handle was opened for.
func (h *Handle) PID() process.ProcessID {
	if h == nil {
		return 0
	}
	return h.pid
}

// Close releases the pidfd. Further checks report ErrInvalidHandle.
func (h *Handle) Close() error {
	if h == nil || h.fd < 0 {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = -1
	return err
}

// Check reports whether the handle is usable: open, resolving to a non-zero
// PID, and referring to a process that has not exited.
func (h *Handle) Check() error {
	if h == nil || h.fd < 0 {
		return process.ErrInvalidHandle
	}

	if pid := h.resolvePID(); pid <= 0 {
		return fmt.Errorf("pidfd %d: no pid: %w", h.fd, process.ErrInvalidHandle)
	}

	// a pidfd polls readable once the process has exited
	fds := []unix.PollFd{{Fd: int32(h.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		return fmt.Errorf("poll pidfd %d: %v: %w", h.fd, err, process.ErrInvalidHandle)
	}
	if n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return fmt.Errorf("process %d exited: %w", h.pid, process.ErrInvalidHandle)
	}
	return nil
}

// resolvePID reads the PID behind the pidfd from fdinfo. The kernel reports
// -1 once the process is gone. Older kernels without the field fall back to
// the PID the handle was opened with.
func (h *Handle) resolvePID() process.ProcessID {
	data, err := afero.ReadFile(h.fs, fmt.Sprintf("/proc/self/fdinfo/%d", h.fd))
	if err != nil {
		return h.pid
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		value, ok := strings.CutPrefix(scanner.Text(), "Pid:")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0
		}
		return process.ProcessID(pid)
	}
	return h.pid
}
