package escalation

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Wrapper exit codes follow shell conventions: 126 for a command that was
// refused, 127 for one that could not be executed. Transport failures use
// 125 so a denied command and a broken session remain distinguishable.
const (
	ExitTransportFailure = 125
	ExitDenied           = 126
	ExitExecFailure      = 127
)

const dialTimeout = 10 * time.Second

// responseTimeout bounds the wait for the server's decision: the server's
// own decision window plus slack for the round trip. A server that answers
// nothing inside it is treated like one that dropped the connection.
var responseTimeout = defaultDecisionTimeout + 30*time.Second

// ClientMain is the whole execve wrapper: it asks the session server what to
// do with the intercepted exec and carries the answer out. Every failure
// along the way resolves to a non-zero exit without ever exec'ing the
// original command. The returned value is the wrapper's exit code.
func ClientMain(file string, argv []string) int {
	addr := socketAddr()
	if addr == "" {
		failClosed("no escalate socket in environment (%s unset)", SocketEnv)
		return ExitTransportFailure
	}
	workdir, err := os.Getwd()
	if err != nil {
		failClosed("cannot resolve working directory: %v", err)
		return ExitTransportFailure
	}

	conn, err := Dial(addr, dialTimeout)
	if err != nil {
		failClosed("cannot reach escalate server: %v", err)
		return ExitTransportFailure
	}
	defer conn.Close()

	req := EscalateRequest{
		File:    file,
		Argv:    argv,
		Workdir: workdir,
		Env:     environMap(),
	}
	if err := conn.Send(req); err != nil {
		failClosed("cannot send escalate request: %v", err)
		return ExitTransportFailure
	}

	var resp EscalateResponse
	_ = conn.SetDeadline(time.Now().Add(responseTimeout))
	if err := conn.Receive(&resp); err != nil {
		failClosed("no decision from escalate server: %v", err)
		return ExitTransportFailure
	}
	// Escalated execution runs for as long as the command does; only the
	// decision itself is bounded.
	_ = conn.SetDeadline(time.Time{})

	switch {
	case resp.Action.IsRun():
		return execLocal(file, argv)
	case resp.Action.IsEscalate():
		return runEscalated(conn)
	default:
		reason := resp.Action.DenyReason()
		if reason == "" {
			reason = "command denied"
		}
		fmt.Fprintf(os.Stderr, "codex: %s\n", reason)
		return ExitDenied
	}
}

// socketAddr locates the escalate server. Older patched shells exported the
// address under the wrapper variable names, so those are honored as
// fallbacks when they hold something that is not this very binary.
func socketAddr() string {
	if addr := os.Getenv(SocketEnv); addr != "" {
		return addr
	}
	self, _ := os.Executable()
	for _, key := range []string{LegacyBashExecWrapperEnv, ExecWrapperEnv} {
		v := os.Getenv(key)
		if v == "" || v == self {
			continue
		}
		return v
	}
	return ""
}

func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func failClosed(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "codex: refusing to exec: "+format+"\n", args...)
}
