// Package escalation implements the exec-escalation protocol spoken between
// the execve wrapper (client) and the per-session escalate server.
//
// Every exec(2) a patched shell attempts is intercepted by the wrapper, which
// sends one EscalateRequest and blocks for exactly one EscalateResponse. The
// transport is a Unix domain socket (a named pipe on Windows) whose address is
// carried in the CODEX_ESCALATE_SOCKET environment variable. All transport
// failures resolve to deny: the wrapper never falls back to exec'ing the
// original command.
package escalation

import (
	"encoding/json"
	"fmt"
)

// Environment contract between the runtime, the patched shell, and the
// wrapper binary.
const (
	// SocketEnv carries the escalate socket address.
	SocketEnv = "CODEX_ESCALATE_SOCKET"
	// ExecWrapperEnv names the wrapper binary a patched shell must invoke
	// in place of a raw exec(2).
	ExecWrapperEnv = "EXEC_WRAPPER"
	// LegacyBashExecWrapperEnv is the pre-rename spelling of ExecWrapperEnv,
	// still exported for older patched shells.
	LegacyBashExecWrapperEnv = "BASH_EXEC_WRAPPER"
)

// EscalateRequest describes one intercepted exec attempt. It is created by
// the wrapper from its own argv/cwd/environment and consumed exactly once by
// the server.
type EscalateRequest struct {
	File    string            `json:"file"`
	Argv    []string          `json:"argv"`
	Workdir string            `json:"workdir"`
	Env     map[string]string `json:"env"`
}

type actionKind uint8

// The zero value is deliberately not a valid action: a forgotten assignment
// surfaces as a protocol error (and therefore a deny), never as a run.
const (
	actionInvalid actionKind = iota
	actionDeny
	actionRun
	actionEscalate
)

// EscalateAction is the terminal decision for one request: run locally,
// escalate to the server, or deny.
type EscalateAction struct {
	kind   actionKind
	reason string
}

// RunAction tells the client to exec locally under its inherited sandbox.
func RunAction() EscalateAction { return EscalateAction{kind: actionRun} }

// EscalateActionValue tells the client the server will exec on its behalf.
func EscalateActionValue() EscalateAction { return EscalateAction{kind: actionEscalate} }

// DenyAction refuses the exec. The reason, if any, is surfaced to the shell.
func DenyAction(reason string) EscalateAction {
	return EscalateAction{kind: actionDeny, reason: reason}
}

// IsRun reports whether the client should exec locally.
func (a EscalateAction) IsRun() bool { return a.kind == actionRun }

// IsEscalate reports whether the server will exec on the client's behalf.
func (a EscalateAction) IsEscalate() bool { return a.kind == actionEscalate }

// IsDeny reports whether execution was refused. An invalid (zero) action is
// treated as a deny.
func (a EscalateAction) IsDeny() bool { return a.kind == actionDeny || a.kind == actionInvalid }

// DenyReason returns the denial reason, when one was given.
func (a EscalateAction) DenyReason() string { return a.reason }

func (a EscalateAction) String() string {
	switch a.kind {
	case actionRun:
		return "run"
	case actionEscalate:
		return "escalate"
	case actionDeny:
		if a.reason != "" {
			return "deny: " + a.reason
		}
		return "deny"
	default:
		return "invalid"
	}
}

type actionWire struct {
	Action string  `json:"action"`
	Reason *string `json:"reason,omitempty"`
}

// MarshalJSON encodes the action as a tagged object. Invalid actions refuse
// to serialize rather than silently encoding something runnable.
func (a EscalateAction) MarshalJSON() ([]byte, error) {
	w := actionWire{}
	switch a.kind {
	case actionRun:
		w.Action = "run"
	case actionEscalate:
		w.Action = "escalate"
	case actionDeny:
		w.Action = "deny"
		if a.reason != "" {
			reason := a.reason
			w.Reason = &reason
		}
	default:
		return nil, fmt.Errorf("escalation: cannot encode invalid action")
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a tagged action. Unknown tags are an error so a
// malformed response can never decode to run.
func (a *EscalateAction) UnmarshalJSON(data []byte) error {
	var w actionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Action {
	case "run":
		*a = RunAction()
	case "escalate":
		*a = EscalateActionValue()
	case "deny":
		reason := ""
		if w.Reason != nil {
			reason = *w.Reason
		}
		*a = DenyAction(reason)
	default:
		return fmt.Errorf("escalation: unknown action %q", w.Action)
	}
	return nil
}

// EscalateResponse is the server's single reply to an EscalateRequest.
type EscalateResponse struct {
	Action EscalateAction `json:"action"`
}

// SuperExecMessage is sent by the client after an escalate response. Fds
// lists the destination descriptor numbers, in the order the actual
// descriptors ride along in the control message.
type SuperExecMessage struct {
	Fds []int `json:"fds"`
}

// SuperExecPipes is the Windows counterpart of SuperExecMessage. Named pipes
// carry no descriptors, so the server instead opens one fresh pipe per
// standard stream and tells the client where to connect. Empty names mean
// the stream is not forwarded.
type SuperExecPipes struct {
	Stdin  string `json:"stdin,omitempty"`
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

// SuperExecResult reports the exit code of an escalated command.
type SuperExecResult struct {
	ExitCode int `json:"exit_code"`
}
