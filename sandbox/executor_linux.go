package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// extraTime is the wall-clock slack granted on top of the advertised
// limit before the hard kill. A run just over its CPU budget gets to
// finish and still reports a measured TLE; the kill only catches runs
// that block or sleep.
const extraTime = 1000 * time.Millisecond

// nobodyID is the classic unprivileged uid/gid the executor tries to
// drop to before the barrier.
const nobodyID = 65534

// RunExecutor is the process entry for the exec role: PID 1 of the
// target's PID namespace. It stages the scratch directory, waits for
// the init to cover it with the control group, then runs the target
// stage under the only hard deadline in the system. Its exit status
// tells the init how the target ended; diagnostics go to stderr only.
func RunExecutor() int {
	ec, err := readExecConfig(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read exec config:", err)
		return statusError
	}
	scratch := filepath.Join(scratchRoot(ec.SandboxID), "tmp")
	if err := os.Chdir(scratch); err != nil {
		fmt.Fprintln(os.Stderr, "enter scratch:", err)
		return statusError
	}
	if err := os.WriteFile("stdin", ec.Stdin, 0o666); err != nil {
		fmt.Fprintln(os.Stderr, "stage stdin:", err)
		return statusError
	}
	// The single-entry ID map has no 65534, so these fail under the
	// default mapping; the target still runs fully confined by the
	// namespaces and the filter.
	_ = unix.Setgid(nobodyID)
	_ = unix.Setuid(nobodyID)

	stdio, err := openScratchStdio()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return statusError
	}
	if !awaitBarrier() {
		return statusError
	}
	return runTargetStage(&ec, stdio)
}

// openScratchStdio opens the three redirection files in the scratch
// directory. stdout and stderr are created empty so they read back as
// such even when the target never writes.
func openScratchStdio() ([3]*os.File, error) {
	var stdio [3]*os.File
	var err error
	if stdio[0], err = os.Open("stdin"); err != nil {
		return stdio, fmt.Errorf("open stdin: %w", err)
	}
	for i, name := range []string{"stdout", "stderr"} {
		stdio[i+1], err = os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
		if err != nil {
			return stdio, fmt.Errorf("open %s: %w", name, err)
		}
	}
	return stdio, nil
}

// awaitBarrier blocks on the pipe inherited on fd 3 until the init
// confirms the control group placement. EOF means the init died first.
func awaitBarrier() bool {
	barrier := os.NewFile(3, "barrier")
	if barrier == nil {
		return false
	}
	defer barrier.Close()
	buf := make([]byte, 1)
	n, err := barrier.Read(buf)
	return err == nil && n == 1
}

// runTargetStage spawns the target stage on the staged stdio and waits
// for it, but no longer than the limit plus the slack. The deadline
// kill lands on the direct child only; everything it spawned dies with
// this PID namespace moments later.
func runTargetStage(ec *execConfig, stdio [3]*os.File) int {
	configR, configW, err := os.Pipe()
	if err != nil {
		fmt.Fprintln(os.Stderr, "open target config pipe:", err)
		return statusError
	}
	cmd := exec.Command(selfExe, RoleTarget)
	cmd.Stdin = stdio[0]
	cmd.Stdout = stdio[1]
	cmd.Stderr = stdio[2]
	cmd.ExtraFiles = []*os.File{configR}
	if err := cmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "start target:", err)
		return statusError
	}
	configR.Close()
	tc := targetConfig{Cmdline: ec.Cmdline, Filter: ec.Filter}
	werr := writeTargetConfig(configW, &tc)
	configW.Close()
	if werr != nil {
		killWait(cmd)
		fmt.Fprintln(os.Stderr, "send config to target:", werr)
		return statusError
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	timer := time.NewTimer(time.Duration(ec.TimeLimitMS)*time.Millisecond + extraTime)
	defer timer.Stop()
	select {
	case <-timer.C:
		_ = cmd.Process.Kill()
		<-done
		return statusTimeout
	case err := <-done:
		return foldTargetExit(err)
	}
}

func foldTargetExit(err error) int {
	if err == nil {
		return statusOK
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return statusError
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return statusSignaled
	}
	return statusError
}
