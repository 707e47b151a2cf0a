package safety

import (
	"path/filepath"
	"runtime"
	"strings"
)

// CommandMightBeDangerous reports whether a tokenized command looks like it
// could destroy data or escalate privileges. One level of `sudo` is unwrapped
// before classification so `sudo rm -rf /` is caught like `rm -rf /`.
//
// This is a heuristic: a false positive costs one approval prompt, a false
// negative still runs inside the sandbox.
func CommandMightBeDangerous(command []string) bool {
	if len(command) == 0 {
		return false
	}
	if runtime.GOOS == "windows" && isDangerousCommandWindows(command) {
		return true
	}

	cmd := unwrapSudo(command)
	if len(cmd) == 0 {
		// A bare `sudo` is itself escalation.
		return true
	}

	switch filepath.Base(cmd[0]) {
	case "rm":
		return rmIsForceful(cmd[1:])
	case "git":
		return gitCommandIsDangerous(cmd)
	case "sudo":
		// sudo sudo ...; do not unwrap twice.
		return true
	}
	return false
}

// unwrapSudo strips one leading `sudo` together with its options, returning
// the wrapped command.
func unwrapSudo(command []string) []string {
	if filepath.Base(command[0]) != "sudo" {
		return command
	}
	rest := command[1:]
	for len(rest) > 0 && strings.HasPrefix(rest[0], "-") {
		// Options that consume a value.
		switch rest[0] {
		case "-u", "-g", "-p", "-h", "-C", "-D", "-R", "-T", "-U":
			if len(rest) < 2 {
				return nil
			}
			rest = rest[2:]
		default:
			rest = rest[1:]
		}
	}
	return rest
}

// rmIsForceful reports whether an rm invocation carries -f, alone or
// combined with other short options (-rf, -fr, -rfv, ...), or --force.
func rmIsForceful(args []string) bool {
	for _, arg := range args {
		if arg == "--" {
			return false
		}
		if arg == "--force" {
			return true
		}
		if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") {
			if strings.Contains(arg[1:], "f") {
				return true
			}
		}
	}
	return false
}

// gitGlobalOptionsWithValue lists git global options that consume the next
// token, so subcommand detection is not fooled by e.g. `git -C /repo push`.
var gitGlobalOptionsWithValue = map[string]bool{
	"-C":          true,
	"-c":          true,
	"--git-dir":   true,
	"--work-tree": true,
	"--namespace": true,
	"--exec-path": true,
}

// gitSubcommand returns the subcommand of a git invocation and the arguments
// after it, skipping git's global options.
func gitSubcommand(command []string) (string, []string) {
	args := command[1:]
	for len(args) > 0 {
		arg := args[0]
		if !strings.HasPrefix(arg, "-") {
			return arg, args[1:]
		}
		if gitGlobalOptionsWithValue[arg] {
			if len(args) < 2 {
				return "", nil
			}
			args = args[2:]
			continue
		}
		// Value-carrying options may also be spelled --opt=value; flag-style
		// globals (--no-pager, --bare, ...) take no value either way.
		args = args[1:]
	}
	return "", nil
}

func gitCommandIsDangerous(command []string) bool {
	subcommand, rest := gitSubcommand(command)
	switch subcommand {
	case "reset":
		for _, arg := range rest {
			if arg == "--hard" {
				return true
			}
		}
	case "clean":
		for _, arg := range rest {
			if arg == "--force" {
				return true
			}
			if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && strings.Contains(arg[1:], "f") {
				return true
			}
		}
	case "push":
		for _, arg := range rest {
			if arg == "--force" || arg == "-f" {
				return true
			}
		}
	case "branch":
		for _, arg := range rest {
			if arg == "-D" {
				return true
			}
		}
	}
	return false
}
