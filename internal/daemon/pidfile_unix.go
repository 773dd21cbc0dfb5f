//go:build !windows

package daemon

import "syscall"

// alive reports whether pid exists. Signal 0 checks without delivering.
func alive(pid int) bool {
	return pid > 0 && syscall.Kill(pid, 0) == nil
}

func terminate(pid int) error { return syscall.Kill(pid, syscall.SIGTERM) }

func kill(pid int) error { return syscall.Kill(pid, syscall.SIGKILL) }
