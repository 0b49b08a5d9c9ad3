//go:build windows

package process_windows

import (
	"unsafe"

	"github.com/Moonlight-Companies/gologger/logger"
)

type config struct {
	log         *logger.Logger
	pointerSize int
}

// Option configures a LocalProcess or RemoteProcess
type Option func(*config)

func WithLogger(log *logger.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithPointerSize overrides the pointer size, which is otherwise derived
// from the target's WOW64 state.
func WithPointerSize(size int) Option {
	return func(c *config) {
		c.pointerSize = size
	}
}

func newConfig(options []Option) *config {
	c := &config{}
	for _, opt := range options {
		opt(c)
	}
	return c
}

const hostPointerSize = int(unsafe.Sizeof(uintptr(0)))
