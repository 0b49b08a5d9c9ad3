//go:build linux

package main

import (
	"procmem/process"
	"procmem/process_linux"
)

type localTarget struct {
	*process_linux.LocalProcess
}

func (localTarget) Close() error { return nil }

func openLive(o liveOptions) (target, error) {
	options := []process_linux.Option{process_linux.WithLogger(o.log)}
	if o.pointerSize != 0 {
		options = append(options, process_linux.WithPointerSize(o.pointerSize))
	}

	switch {
	case o.self:
		return localTarget{process_linux.NewLocal(options...)}, nil
	case o.pid != 0:
		p, err := process_linux.Open(process.ProcessID(o.pid), options...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case o.name != "":
		info, err := process_linux.NewHelper(options...).OpenProcessByName(o.name)
		if err != nil {
			return nil, err
		}
		o.log.Infoln("attached to", info.Name, "pid", info.PID, "image base", info.ImageBase.ToString())
		return info.Process, nil
	}
	return nil, errNoTarget
}
