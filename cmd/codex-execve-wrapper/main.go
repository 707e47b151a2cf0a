// codex-execve-wrapper stands in for execve(2) inside a wrapped shell: the
// shell invokes it as <wrapper> <file> <argv...>, and it asks the session's
// escalate server whether to run, escalate, or deny the intercepted command.
// It deliberately has no flags and no dependencies beyond the escalation
// client so the hot exec path stays minimal.
package main

import (
	"fmt"
	"os"

	"github.com/opencodex/codex/internal/escalation"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: codex-execve-wrapper FILE [ARGV...]")
		os.Exit(escalation.ExitExecFailure)
	}
	os.Exit(escalation.ClientMain(os.Args[1], os.Args[2:]))
}
