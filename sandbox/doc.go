// Package sandbox implements a single-shot judging sandbox: one
// untrusted command runs inside fresh Linux namespaces, confined by a
// dedicated cgroup v2 child, and its verdict, resource usage, captured
// streams and declared output files are reported back.
//
// A run is a tree of four processes. Each inner stage is created by
// re-executing the judger binary with a role argument:
//
//	supervisor (Run)          host user, no new namespaces
//	└── init (RoleInit)       user+mount+ipc+net+uts namespaces, root inside
//	    └── exec (RoleExec)   mount+net+pid+uts namespaces
//	        └── target (RoleTarget)  execs the untrusted command
//
// The supervisor maps the init to root inside its user namespace, which
// licenses the mount and cgroup work. The init builds the filesystem
// view and the control group, then holds the executor behind a pipe
// barrier until the executor sits inside the control group. The
// executor opens the redirected stdio, launches the target and enforces
// the only hard deadline in the system. Every stage hands the next one
// its working configuration as a single binary frame on an inherited
// descriptor:
//
//	stage    fd 0            fd 1            fd 2             fd 3
//	init     config frame    result frame    inherited        -
//	exec     config frame    /dev/null       inherited        exec barrier
//	target   scratch stdin   scratch stdout  scratch stderr   config frame
//
// Failures before a complete result frame exists surface as a non-zero
// init exit; the supervisor then reports the run as an internal error
// instead of losing the response.
package sandbox
