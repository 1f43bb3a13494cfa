package sandbox

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// Role argument values understood by the judger binary. A stage enters
// the next one by re-executing itself with the role as os.Args[1].
const (
	RoleInit   = "init"
	RoleExec   = "exec"
	RoleTarget = "target"
)

// selfExe re-executes the running binary without trusting argv[0] or
// the working directory.
const selfExe = "/proc/self/exe"

// sandboxHostname replaces the host name inside the fresh UTS
// namespaces so the target cannot learn the judge host's identity.
const sandboxHostname = "sandbox"

// initSysProcAttr builds the namespace set for the init stage: a new
// user namespace mapping the invoking user to root, plus mount, IPC,
// net and UTS isolation. The PID namespace is deferred to the executor
// stage. The kernel writes the single-entry ID maps and the setgroups
// denial before the child runs, so the init starts as a mapped root
// with no extra handshake.
func initSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWUSER | syscall.CLONE_NEWNS |
			syscall.CLONE_NEWIPC | syscall.CLONE_NEWNET | syscall.CLONE_NEWUTS,
		UidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getuid(), Size: 1},
		},
		GidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getgid(), Size: 1},
		},
		GidMappingsEnableSetgroups: false,
		Pdeathsig:                  syscall.SIGKILL,
	}
}

// execSysProcAttr builds the namespace set for the executor stage:
// fresh mount, net, PID and UTS namespaces inside the init's user
// namespace. The executor becomes PID 1 of the new PID namespace, so
// its exit tears down every process the target managed to spawn.
func execSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS | syscall.CLONE_NEWNET |
			syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS,
		Pdeathsig: syscall.SIGKILL,
	}
}

// killWait reaps a child on an error path where the normal wait will
// not happen.
func killWait(cmd *exec.Cmd) {
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
}

// waitExitCode reaps a child and folds its wait status into the exit
// code convention: 255 when the child did not exit normally.
func waitExitCode(cmd *exec.Cmd) int {
	err := cmd.Wait()
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Exited() {
			return ws.ExitStatus()
		}
	}
	return 255
}
