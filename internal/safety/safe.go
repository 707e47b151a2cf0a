package safety

import (
	"path/filepath"
	"regexp"
	"strings"
)

// IsKnownSafeCommand reports whether argv is on the built-in list of
// read-only commands that never need approval. Shell wrappers like
// `bash -lc "..."` are safe when every command in the decomposed script is.
func IsKnownSafeCommand(command []string) bool {
	if isSafeToCallWithExec(command) {
		return true
	}
	if cmds, ok := ParseShellLCPlainCommands(command); ok && len(cmds) > 0 {
		for _, c := range cmds {
			if !isSafeToCallWithExec(c) {
				return false
			}
		}
		return true
	}
	return false
}

var sedRangePrint = regexp.MustCompile(`^(\d+,)?\d+p$`)

func isSafeToCallWithExec(command []string) bool {
	if len(command) == 0 {
		return false
	}
	switch filepath.Base(command[0]) {
	case "cat", "cd", "echo", "false", "grep", "head", "ls", "nl",
		"pwd", "tail", "true", "wc", "which", "basename", "dirname",
		"printenv", "nproc", "uname", "date", "whoami":
		return true
	case "find":
		return !findHasUnsafeOption(command[1:])
	case "rg":
		return !ripgrepHasUnsafeOption(command[1:])
	case "git":
		sub, _ := gitSubcommand(command)
		switch sub {
		case "branch", "status", "log", "diff", "show":
			return true
		}
		return false
	case "cargo":
		return len(command) > 1 && command[1] == "check"
	case "sed":
		// Only the narrow `sed -n {N|N,M}p file` form is safe.
		return len(command) == 4 &&
			command[1] == "-n" &&
			sedRangePrint.MatchString(command[2])
	}
	return false
}

func findHasUnsafeOption(args []string) bool {
	for _, a := range args {
		switch a {
		// Options that execute commands or write files.
		case "-exec", "-execdir", "-ok", "-okdir", "-delete",
			"-fls", "-fprint", "-fprint0", "-fprintf":
			return true
		}
	}
	return false
}

func ripgrepHasUnsafeOption(args []string) bool {
	for _, a := range args {
		// --pre and --hostname-bin run arbitrary executables; -z/--search-zip
		// shells out to decompressors.
		if a == "--pre" || a == "--hostname-bin" ||
			strings.HasPrefix(a, "--pre=") || strings.HasPrefix(a, "--hostname-bin=") ||
			a == "-z" || a == "--search-zip" {
			return true
		}
	}
	return false
}
