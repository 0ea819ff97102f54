//go:build !windows

package store

import "golang.org/x/sys/unix"

// processAlive probes with signal 0; EPERM still means the pid exists.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == unix.EPERM
}
