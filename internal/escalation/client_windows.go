//go:build windows

package escalation

import (
	"io"
	"os"
	"os/exec"

	"github.com/Microsoft/go-winio"
)

// execLocal runs the approved command in place of the wrapper. Windows has
// no exec(2), so the closest equivalent is spawning the child with inherited
// stdio and relaying its exit code.
func execLocal(file string, argv []string) int {
	cmd := exec.Command(file)
	if len(argv) > 1 {
		cmd.Args = append([]string{file}, argv[1:]...)
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		failClosed("exec %s: %v", file, err)
		return ExitExecFailure
	}
	return 0
}

// runEscalated receives the per-request stdio pipe names from the server,
// connects the wrapper's streams to them, and waits for the exit code.
func runEscalated(conn *Conn) int {
	var pipes SuperExecPipes
	if err := conn.Receive(&pipes); err != nil {
		failClosed("no stdio pipes from escalate server: %v", err)
		return ExitTransportFailure
	}

	for _, stream := range []struct {
		name string
		wire func(pc io.ReadWriteCloser)
	}{
		{pipes.Stdin, func(pc io.ReadWriteCloser) {
			go func() {
				io.Copy(pc, os.Stdin)
				pc.Close()
			}()
		}},
		{pipes.Stdout, func(pc io.ReadWriteCloser) {
			go io.Copy(os.Stdout, pc)
		}},
		{pipes.Stderr, func(pc io.ReadWriteCloser) {
			go io.Copy(os.Stderr, pc)
		}},
	} {
		if stream.name == "" {
			continue
		}
		pc, err := winio.DialPipe(stream.name, nil)
		if err != nil {
			failClosed("cannot connect stdio pipe %s: %v", stream.name, err)
			return ExitTransportFailure
		}
		stream.wire(pc)
	}

	var result SuperExecResult
	if err := conn.Receive(&result); err != nil {
		failClosed("no result from escalated command: %v", err)
		return ExitTransportFailure
	}
	return result.ExitCode
}
