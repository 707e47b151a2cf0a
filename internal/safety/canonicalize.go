package safety

import (
	"strings"

	"github.com/google/shlex"
)

// CanonicalizeCommandForApproval reduces a tokenized argv to the stable key
// used by the approval cache. A shell wrapper around a single plain command
// canonicalizes to that command's tokens, so `/bin/bash -lc "cargo test"`
// and `bash -lc "cargo   test"` share a key. Scripts that cannot be safely
// decomposed (heredocs, multi-statement scripts) keep the verbatim script
// behind a sentinel token, stable under shell-path variation.
func CanonicalizeCommandForApproval(command []string) []string {
	if script, flag, ok := ExtractShellScript(command); ok {
		if cmds, ok := ParseShellLCPlainCommands(command); ok && len(cmds) == 1 {
			return cmds[0]
		}
		return []string{ShellScriptSentinel, flag, script}
	}
	if script, ok := extractPowershellCommand(command); ok {
		if tokens, ok := simplePowershellTokens(script); ok {
			return tokens
		}
		return []string{ShellScriptSentinel, "-Command", script}
	}
	out := make([]string, len(command))
	copy(out, command)
	return out
}

// extractPowershellCommand recognizes `powershell [-NoProfile ...] -Command
// "..."` where the script is the final argument.
func extractPowershellCommand(command []string) (string, bool) {
	if len(command) < 3 || !isPowershellExecutable(command[0]) {
		return "", false
	}
	last := len(command) - 1
	flag := strings.ToLower(command[last-1])
	if flag != "-command" && flag != "/command" && flag != "-c" {
		return "", false
	}
	for _, arg := range command[1 : last-1] {
		if !strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "/") {
			return "", false
		}
	}
	return command[last], true
}

// simplePowershellTokens splits a PowerShell one-liner when it has none of
// the metacharacters that would change its meaning under naive splitting.
func simplePowershellTokens(script string) ([]string, bool) {
	if strings.ContainsAny(script, ";|&<>$(){}`\n") {
		return nil, false
	}
	tokens, err := shlex.Split(script)
	if err != nil || len(tokens) == 0 {
		return nil, false
	}
	return tokens, true
}
