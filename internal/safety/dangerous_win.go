package safety

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
)

// isDangerousCommandWindows spots ShellExecute-style invocations that open a
// URL in the user's browser, and forced deletes, across the three common entry
// points: PowerShell, cmd.exe, and direct GUI launchers. Best effort; the
// shell grammars here are parsed with shlex, not a full PowerShell parser.
func isDangerousCommandWindows(command []string) bool {
	if isDangerousPowershell(command) {
		return true
	}
	if isDangerousCmd(command) {
		return true
	}
	return isDirectGUILaunch(command)
}

func isDangerousPowershell(command []string) bool {
	if len(command) == 0 || !isPowershellExecutable(command[0]) {
		return false
	}
	tokens, ok := parsePowershellInvocation(command[1:])
	if !ok {
		return false
	}

	tokensLC := make([]string, len(tokens))
	for i, t := range tokens {
		tokensLC[i] = strings.ToLower(strings.Trim(t, `'"`))
	}
	hasURL := argsHaveURL(tokens)

	if hasURL {
		for _, t := range tokensLC {
			switch t {
			case "start-process", "start", "saps", "invoke-item", "ii":
				return true
			}
			if strings.Contains(t, "start-process") || strings.Contains(t, "invoke-item") {
				return true
			}
			if strings.Contains(t, "shellexecute") || strings.Contains(t, "shell.application") {
				return true
			}
		}
	}

	if len(tokensLC) > 0 {
		first := tokensLC[0]
		if first == "rundll32" && hasURL {
			for _, t := range tokensLC {
				if strings.Contains(t, "url.dll,fileprotocolhandler") {
					return true
				}
			}
		}
		if first == "mshta" && hasURL {
			return true
		}
		if isBrowserExecutable(first) && hasURL {
			return true
		}
		if (first == "explorer" || first == "explorer.exe") && hasURL {
			return true
		}
	}

	return hasForceDeleteCmdlet(tokensLC)
}

func isDangerousCmd(command []string) bool {
	if len(command) == 0 {
		return false
	}
	base := executableBasename(command[0])
	if base != "cmd" && base != "cmd.exe" {
		return false
	}

	rest := command[1:]
	idx := 0
	found := false
	for ; idx < len(rest); idx++ {
		lower := strings.ToLower(rest[idx])
		if lower == "/c" || lower == "/r" || lower == "-c" {
			idx++
			found = true
			break
		}
		if strings.HasPrefix(lower, "/") {
			continue
		}
		// Unknown tokens before the command body.
		return false
	}
	if !found || idx >= len(rest) {
		return false
	}
	remaining := rest[idx:]

	var cmdTokens []string
	if len(remaining) == 1 {
		if split, err := shlex.Split(remaining[0]); err == nil {
			cmdTokens = split
		} else {
			cmdTokens = remaining
		}
	} else {
		cmdTokens = remaining
	}

	// Split concatenated operators so "echo hi&del" yields a del segment.
	var tokens []string
	for _, t := range cmdTokens {
		tokens = append(tokens, splitEmbeddedCmdOperators(t)...)
	}

	for _, segment := range splitCmdSegments(tokens) {
		if len(segment) == 0 {
			continue
		}
		head := strings.ToLower(segment[0])
		switch {
		case head == "start" && argsHaveURL(segment):
			return true
		case (head == "del" || head == "erase") && hasCmdFlag(segment, "/f"):
			return true
		case (head == "rd" || head == "rmdir") && hasCmdFlag(segment, "/s") && hasCmdFlag(segment, "/q"):
			return true
		}
	}
	return false
}

func isDirectGUILaunch(command []string) bool {
	if len(command) == 0 {
		return false
	}
	base := executableBasename(command[0])
	if base == "" {
		return false
	}
	rest := command[1:]

	switch base {
	case "explorer", "explorer.exe", "mshta", "mshta.exe":
		return argsHaveURL(rest)
	case "rundll32", "rundll32.exe":
		for _, t := range rest {
			if strings.Contains(strings.ToLower(t), "url.dll,fileprotocolhandler") {
				return argsHaveURL(rest)
			}
		}
		return false
	}
	return isBrowserExecutable(base) && argsHaveURL(rest)
}

func splitCmdSegments(tokens []string) [][]string {
	var segments [][]string
	var cur []string
	for _, t := range tokens {
		switch t {
		case "&", "&&", "|", "||":
			segments = append(segments, cur)
			cur = nil
		default:
			cur = append(cur, t)
		}
	}
	return append(segments, cur)
}

func splitEmbeddedCmdOperators(token string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(token); i++ {
		ch := token[i]
		if ch != '&' && ch != '|' {
			continue
		}
		if i > start {
			parts = append(parts, token[start:i])
		}
		opLen := 1
		if i+1 < len(token) && token[i+1] == ch {
			opLen = 2
		}
		parts = append(parts, token[i:i+opLen])
		i += opLen - 1
		start = i + 1
	}
	if start < len(token) {
		parts = append(parts, token[start:])
	}
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// hasForceDeleteCmdlet scans lowercase PowerShell tokens for a delete cmdlet
// and a -Force switch within the same command segment.
func hasForceDeleteCmdlet(tokensLC []string) bool {
	isDeleteCmdlet := func(a string) bool {
		switch a {
		case "remove-item", "ri", "rm", "del", "erase", "rd", "rmdir":
			return true
		}
		return false
	}
	isSegSep := func(r rune) bool {
		switch r {
		case ';', '|', '&', '\n', '\r', '\t':
			return true
		}
		return false
	}
	isSoftSep := func(r rune) bool {
		switch r {
		case '{', '}', '(', ')', '[', ']', ',', ';':
			return true
		}
		return false
	}

	var segments [][]string
	var cur []string
	for _, tok := range tokensLC {
		var field strings.Builder
		for _, r := range tok {
			if !isSegSep(r) {
				field.WriteRune(r)
				continue
			}
			if f := strings.TrimSpace(field.String()); f != "" {
				cur = append(cur, f)
			}
			field.Reset()
			if len(cur) > 0 {
				segments = append(segments, cur)
				cur = nil
			}
		}
		if f := strings.TrimSpace(field.String()); f != "" {
			cur = append(cur, f)
		}
	}
	segments = append(segments, cur)

	for _, seg := range segments {
		hasDelete, hasForce := false, false
		for _, t := range seg {
			for _, a := range strings.FieldsFunc(t, isSoftSep) {
				a = strings.TrimSpace(a)
				if a == "" {
					continue
				}
				if isDeleteCmdlet(a) {
					hasDelete = true
				}
				if a == "-force" || strings.HasPrefix(a, "-force:") {
					hasForce = true
				}
			}
		}
		if hasDelete && hasForce {
			return true
		}
	}
	return false
}

func hasCmdFlag(args []string, flag string) bool {
	for _, a := range args {
		if strings.EqualFold(a, flag) {
			return true
		}
	}
	return false
}

func argsHaveURL(args []string) bool {
	for _, a := range args {
		if looksLikeURL(a) {
			return true
		}
	}
	return false
}

func looksLikeURL(token string) bool {
	// Tokens like Start-Process('https://...') arrive as one shlex token, so
	// seek the first URL prefix before trimming surrounding punctuation.
	urlish := token
	if idx := strings.Index(token, "https://"); idx >= 0 {
		urlish = token[idx:]
	} else if idx := strings.Index(token, "http://"); idx >= 0 {
		urlish = token[idx:]
	}
	candidate := strings.TrimLeft(urlish, ` "'(`)
	candidate = strings.TrimRight(candidate, ` ;)"'`)
	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func executableBasename(exe string) string {
	base := filepath.Base(strings.ReplaceAll(exe, `\`, "/"))
	return strings.ToLower(base)
}

func isPowershellExecutable(exe string) bool {
	switch executableBasename(exe) {
	case "powershell", "powershell.exe", "pwsh", "pwsh.exe":
		return true
	}
	return false
}

func isBrowserExecutable(name string) bool {
	switch name {
	case "chrome", "chrome.exe", "msedge", "msedge.exe",
		"firefox", "firefox.exe", "iexplore", "iexplore.exe":
		return true
	}
	return false
}

// parsePowershellInvocation reduces a PowerShell argv tail to a flat token
// list: either the shlex-split body of -Command, or the trailing positional
// arguments.
func parsePowershellInvocation(args []string) ([]string, bool) {
	for idx := 0; idx < len(args); idx++ {
		lower := strings.ToLower(args[idx])
		switch {
		case lower == "-command" || lower == "/command" || lower == "-c":
			if idx+2 != len(args) {
				return nil, false
			}
			tokens, err := shlex.Split(args[idx+1])
			if err != nil {
				return nil, false
			}
			return tokens, true
		case strings.HasPrefix(lower, "-command:") || strings.HasPrefix(lower, "/command:"):
			if idx+1 != len(args) {
				return nil, false
			}
			_, script, _ := strings.Cut(args[idx], ":")
			tokens, err := shlex.Split(script)
			if err != nil {
				return nil, false
			}
			return tokens, true
		case strings.HasPrefix(lower, "-"):
			continue
		default:
			return args[idx:], true
		}
	}
	return nil, false
}
