//go:build windows

package supervisor

import "os"

// Windows has no process groups in the POSIX sense; both paths kill the
// direct child and rely on it to take its workers down.

func terminateGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func killGroup(pid int) error {
	return terminateGroup(pid)
}
