package netutil

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"
)

// FindAvailablePort returns a free local TCP port, probing upward from
// preferred. The probe listener is bound on the loopback interface, its
// OS-reported port is read back (relevant when preferred is 0), and the
// probe is closed before returning. Only address-in-use errors advance to
// the next port; any other bind error is returned unchanged.
//
// There is an unavoidable race between closing the probe and the backend
// binding the returned port. For single-user local tooling that race is
// accepted rather than holding the socket open across process handoff.
func FindAvailablePort(preferred int) (int, error) {
	if preferred < 0 || preferred > 65535 {
		return 0, fmt.Errorf("port %d out of range", preferred)
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(preferred)))
	if err != nil {
		if isAddrInUse(err) {
			if preferred >= 65535 {
				return 0, fmt.Errorf("no free port at or above %d", preferred)
			}
			return FindAvailablePort(preferred + 1)
		}
		return 0, err
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		return 0, err
	}
	return port, nil
}

func isAddrInUse(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var sysErr *os.SyscallError
		if errors.As(opErr.Err, &sysErr) {
			return sysErr.Err == syscall.EADDRINUSE
		}
	}
	return errors.Is(err, syscall.EADDRINUSE)
}
