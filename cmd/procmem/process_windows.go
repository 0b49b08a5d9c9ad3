//go:build windows

package main

import (
	"procmem/process"
	"procmem/process_windows"
)

type localTarget struct {
	*process_windows.LocalProcess
}

func (localTarget) Close() error { return nil }

func openLive(o liveOptions) (target, error) {
	options := []process_windows.Option{process_windows.WithLogger(o.log)}
	if o.pointerSize != 0 {
		options = append(options, process_windows.WithPointerSize(o.pointerSize))
	}

	switch {
	case o.self:
		return localTarget{process_windows.NewLocal(options...)}, nil
	case o.pid != 0:
		p, err := process_windows.Open(process.ProcessID(o.pid), options...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case o.name != "":
		info, err := process_windows.NewHelper(options...).OpenProcessByName(o.name)
		if err != nil {
			return nil, err
		}
		o.log.Infoln("attached to", info.Name, "pid", info.PID, "image base", info.ImageBase.ToString())
		return info.Process, nil
	}
	return nil, errNoTarget
}
