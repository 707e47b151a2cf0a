// Package safety statically classifies tokenized commands: dangerous-command
// detection, known-safe detection, and canonicalization of shell-wrapped
// commands into stable approval-cache keys. Nothing here grants permission;
// the results only inform policy evaluation and the approval cache.
package safety

import (
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ShellScriptSentinel is the first token of the canonical key for a shell
// script that cannot be reduced to a single plain command.
const ShellScriptSentinel = "__codex_shell_script__"

// ExtractShellScript recognizes `bash -lc "..."`-shaped invocations for
// bash, zsh and sh (by basename, so /bin/bash and bash agree) and returns
// the wrapped script and the flag used.
func ExtractShellScript(command []string) (script, flag string, ok bool) {
	if len(command) != 3 {
		return "", "", false
	}
	if command[1] != "-lc" && command[1] != "-c" {
		return "", "", false
	}
	switch filepath.Base(command[0]) {
	case "bash", "zsh", "sh":
		return command[2], command[1], true
	default:
		return "", "", false
	}
}

// ParseShellLCPlainCommands decomposes a shell-wrapped script into its plain
// commands when the script contains only word-only commands joined by the
// safe operators `&&`, `||`, `;` and `|`. Anything else (redirections,
// substitutions, expansions, assignments, control flow, subshells) makes the
// script non-decomposable and returns ok=false.
func ParseShellLCPlainCommands(command []string) ([][]string, bool) {
	script, _, ok := ExtractShellScript(command)
	if !ok {
		return nil, false
	}
	file, err := parseScript(script)
	if err != nil {
		return nil, false
	}
	var commands [][]string
	for _, stmt := range file.Stmts {
		cmds, ok := plainCommandsFromStmt(stmt)
		if !ok {
			return nil, false
		}
		commands = append(commands, cmds...)
	}
	if len(commands) == 0 {
		return nil, false
	}
	return commands, true
}

// ParseShellLCSingleCommandPrefix handles the heredoc fallback: a script
// that is exactly one command feeding a heredoc (e.g. `python3 <<'PY' ...`)
// yields the command words before the heredoc, so prefix rules against the
// interpreter still apply.
func ParseShellLCSingleCommandPrefix(command []string) ([]string, bool) {
	script, _, ok := ExtractShellScript(command)
	if !ok {
		return nil, false
	}
	file, err := parseScript(script)
	if err != nil {
		return nil, false
	}
	if len(file.Stmts) != 1 {
		return nil, false
	}
	stmt := file.Stmts[0]
	if stmt.Negated || stmt.Background || stmt.Coprocess {
		return nil, false
	}
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok || len(call.Assigns) > 0 {
		return nil, false
	}
	for _, redir := range stmt.Redirs {
		if redir.Op != syntax.Hdoc && redir.Op != syntax.DashHdoc {
			return nil, false
		}
	}
	return literalWords(call.Args)
}

func parseScript(script string) (*syntax.File, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	return parser.Parse(strings.NewReader(script), "")
}

// plainCommandsFromStmt flattens one statement into plain commands, walking
// through `&&`, `||` and `|` but rejecting every other construct.
func plainCommandsFromStmt(stmt *syntax.Stmt) ([][]string, bool) {
	if stmt.Negated || stmt.Background || stmt.Coprocess || len(stmt.Redirs) > 0 {
		return nil, false
	}
	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		if len(cmd.Assigns) > 0 {
			return nil, false
		}
		words, ok := literalWords(cmd.Args)
		if !ok || len(words) == 0 {
			return nil, false
		}
		return [][]string{words}, true
	case *syntax.BinaryCmd:
		switch cmd.Op {
		case syntax.AndStmt, syntax.OrStmt, syntax.Pipe:
		default:
			return nil, false
		}
		left, ok := plainCommandsFromStmt(cmd.X)
		if !ok {
			return nil, false
		}
		right, ok := plainCommandsFromStmt(cmd.Y)
		if !ok {
			return nil, false
		}
		return append(left, right...), true
	default:
		return nil, false
	}
}

// literalWords resolves words composed only of literals and quoted literals.
// Any expansion, substitution or glob-adjacent construct fails the whole
// resolution, since its runtime value cannot be known statically.
func literalWords(words []*syntax.Word) ([]string, bool) {
	out := make([]string, 0, len(words))
	for _, word := range words {
		text, ok := literalWord(word)
		if !ok {
			return nil, false
		}
		out = append(out, text)
	}
	return out, true
}

func literalWord(word *syntax.Word) (string, bool) {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			if p.Dollar {
				return "", false
			}
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", false
				}
				sb.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	if sb.Len() == 0 {
		return "", false
	}
	return sb.String(), true
}
