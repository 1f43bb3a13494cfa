package sandbox

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pathEnv is the only environment the target receives. Everything else
// from the judge host is withheld.
const pathEnv = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// RunTarget is the process entry for the final stage. It reads its
// command line from the pipe inherited on fd 3, lifts the stack limit,
// installs the syscall filter when one was configured and replaces
// itself with the untrusted command. It only returns on failure, which
// the executor reports as a runtime error.
func RunTarget() int {
	// The filter must land on the thread that performs the exec.
	runtime.LockOSThread()
	config := os.NewFile(3, "config")
	if config == nil {
		fmt.Fprintln(os.Stderr, "target config pipe missing")
		return 1
	}
	tc, err := readTargetConfig(config)
	config.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "read target config:", err)
		return 1
	}
	if len(tc.Cmdline) == 0 {
		fmt.Fprintln(os.Stderr, "empty command line")
		return 1
	}
	rl := unix.Rlimit{Cur: unix.RLIM_INFINITY, Max: unix.RLIM_INFINITY}
	_ = unix.Setrlimit(unix.RLIMIT_STACK, &rl)
	if len(tc.Filter) > 0 {
		if err := installFilter(tc.Filter); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	err = unix.Exec(tc.Cmdline[0], tc.Cmdline, []string{pathEnv})
	fmt.Fprintf(os.Stderr, "exec %s: %v\n", tc.Cmdline[0], err)
	return 1
}

// installFilter loads a classic BPF seccomp program on the calling
// thread. no_new_privs must be set first for an unprivileged load.
func installFilter(filter []unix.SockFilter) error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no_new_privs: %w", err)
	}
	prog := unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}
	if err := unix.Prctl(unix.PR_SET_SECCOMP, unix.SECCOMP_MODE_FILTER,
		uintptr(unsafe.Pointer(&prog)), 0, 0); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}
