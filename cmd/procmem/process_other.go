//go:build !linux && !windows

package main

import (
	"fmt"
	"runtime"
)

func openLive(o liveOptions) (target, error) {
	if !o.self && o.pid == 0 && o.name == "" {
		return nil, errNoTarget
	}
	return nil, fmt.Errorf("live processes are not supported on %s, use --dump", runtime.GOOS)
}
