//go:build !windows

package escalation

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// execLocal replaces the wrapper's image with the approved command, keeping
// argv and environment intact. Because the wrapper is a descendant of the
// sandboxed shell, the inherited sandbox attributes stay in force. Returns
// only if exec itself fails.
func execLocal(file string, argv []string) int {
	if err := unix.Exec(file, argv, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "codex: exec %s: %v\n", file, err)
	}
	return ExitExecFailure
}

// runEscalated hands the wrapper's stdio to the server over SCM_RIGHTS and
// waits for the exit code of the command the server ran on our behalf.
func runEscalated(conn *Conn) int {
	fds := []int{0, 1, 2}
	if err := conn.SendWithFDs(SuperExecMessage{Fds: fds}, fds); err != nil {
		failClosed("cannot forward stdio: %v", err)
		return ExitTransportFailure
	}
	var result SuperExecResult
	if err := conn.Receive(&result); err != nil {
		failClosed("no result from escalated command: %v", err)
		return ExitTransportFailure
	}
	return result.ExitCode
}
