//go:build linux

package process_linux

import (
	"unsafe"

	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/spf13/afero"
)

type config struct {
	fs          afero.Fs
	log         *logger.Logger
	pointerSize int
}

// Option configures a LocalProcess or RemoteProcess
type Option func(*config)

// WithFs reads procfs through fs.
func WithFs(fs afero.Fs) Option {
	return func(c *config) {
		c.fs = fs
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithPointerSize overrides the pointer size, which is otherwise taken from
// the target executable.
func WithPointerSize(size int) Option {
	return func(c *config) {
		c.pointerSize = size
	}
}

func newConfig(options []Option) *config {
	c := &config{fs: afero.NewOsFs()}
	for _, opt := range options {
		opt(c)
	}
	return c
}

const hostPointerSize = int(unsafe.Sizeof(uintptr(0)))
