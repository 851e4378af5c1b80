//go:build !windows

package supervisor

import "syscall"

// terminateGroup asks the backend's process group to shut down. The backend
// is spawned with Setpgid, so the negative pid reaches the interpreter and
// any workers it forked.
func terminateGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killGroup forcibly kills the backend's process group.
func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
