package applypatch

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ErrNotApplyPatch reports that an argv is not an apply_patch invocation at
// all; the caller should treat the command as an ordinary exec.
var ErrNotApplyPatch = errors.New("applypatch: not an apply_patch invocation")

// ErrImplicitInvocation reports a raw patch body passed as the command
// itself. The model meant apply_patch but forgot to say so; executing the
// body as a program would fail confusingly, so this is a distinct error.
var ErrImplicitInvocation = errors.New("applypatch: patch body must be passed to the apply_patch tool, not executed directly")

// Invocation is a recognized apply_patch command.
type Invocation struct {
	Patch string
	// Workdir is the `cd <path> &&` prefix of the heredoc form, if present.
	// Relative to the session cwd.
	Workdir string
}

// toolNames are the accepted spellings of the tool command.
var toolNames = map[string]bool{"apply_patch": true, "applypatch": true}

// ParseInvocation recognizes the ways models invoke apply_patch:
//
//	apply_patch '*** Begin Patch ...'
//	bash -lc "apply_patch <<'EOF' ..."
//	bash -lc "cd sub && apply_patch <<'EOF' ..."
//
// plus the pwsh/cmd equivalents of the shell wrapper. Anything else returns
// ErrNotApplyPatch. A recognized invocation whose patch body does not parse
// returns the parse error.
func ParseInvocation(argv []string) (*Invocation, error) {
	if len(argv) == 1 {
		if _, err := ParsePatch(argv[0]); err == nil {
			return nil, ErrImplicitInvocation
		}
		return nil, ErrNotApplyPatch
	}
	if len(argv) == 2 && toolNames[filepath.Base(argv[0])] {
		if _, err := ParsePatch(argv[1]); err != nil {
			return nil, err
		}
		return &Invocation{Patch: argv[1]}, nil
	}

	script, ok := shellWrappedScript(argv)
	if !ok {
		return nil, ErrNotApplyPatch
	}
	if _, err := ParsePatch(script); err == nil {
		return nil, ErrImplicitInvocation
	}
	body, workdir, err := extractHeredocPatch(script)
	if err != nil {
		return nil, err
	}
	if _, err := ParsePatch(body); err != nil {
		return nil, err
	}
	return &Invocation{Patch: body, Workdir: workdir}, nil
}

// shellWrappedScript unwraps `bash -lc <script>` and the pwsh/cmd analogs,
// tolerating a leading -NoProfile for PowerShell.
func shellWrappedScript(argv []string) (string, bool) {
	if len(argv) == 4 && strings.EqualFold(argv[1], "-noprofile") {
		name := shellBasename(argv[0])
		if name == "pwsh" || name == "powershell" {
			argv = []string{argv[0], argv[2], argv[3]}
		}
	}
	if len(argv) != 3 {
		return "", false
	}
	switch shellBasename(argv[0]) {
	case "bash", "zsh", "sh":
		if argv[1] == "-lc" || argv[1] == "-c" {
			return argv[2], true
		}
	case "pwsh", "powershell":
		if strings.EqualFold(argv[1], "-command") {
			return argv[2], true
		}
	case "cmd":
		if strings.EqualFold(argv[1], "/c") {
			return argv[2], true
		}
	}
	return "", false
}

func shellBasename(path string) string {
	base := strings.ToLower(filepath.Base(strings.ReplaceAll(path, `\`, `/`)))
	return strings.TrimSuffix(base, ".exe")
}

// extractHeredocPatch accepts exactly two script shapes, as the sole
// top-level statement:
//
//	apply_patch <<'EOF' ... EOF
//	cd <path> && apply_patch <<'EOF' ... EOF
//
// Preceding or trailing statements, other connectors, and cd with flags or
// extra arguments all fail, since anything beyond these shapes is more
// likely a model mistake than a real composite command.
func extractHeredocPatch(script string) (body, workdir string, err error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return "", "", fmt.Errorf("applypatch: parse shell script: %w", err)
	}
	if len(file.Stmts) != 1 {
		return "", "", ErrNotApplyPatch
	}
	stmt := file.Stmts[0]
	if stmt.Negated || stmt.Background || stmt.Coprocess {
		return "", "", ErrNotApplyPatch
	}

	var call *syntax.CallExpr
	redirs := stmt.Redirs
	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		call = cmd
	case *syntax.BinaryCmd:
		if cmd.Op != syntax.AndStmt || len(stmt.Redirs) > 0 {
			return "", "", ErrNotApplyPatch
		}
		workdir, err = cdTarget(cmd.X)
		if err != nil {
			return "", "", err
		}
		inner, ok := cmd.Y.Cmd.(*syntax.CallExpr)
		if !ok || cmd.Y.Negated || cmd.Y.Background {
			return "", "", ErrNotApplyPatch
		}
		// The heredoc redirect attaches to the apply_patch statement here.
		call = inner
		redirs = cmd.Y.Redirs
	default:
		return "", "", ErrNotApplyPatch
	}

	if len(call.Assigns) > 0 || len(call.Args) != 1 {
		return "", "", ErrNotApplyPatch
	}
	name, ok := wordText(call.Args[0])
	if !ok || !toolNames[name] {
		return "", "", ErrNotApplyPatch
	}

	body, ok = heredocBody(redirs)
	if !ok {
		return "", "", ErrNotApplyPatch
	}
	return body, workdir, nil
}

// cdTarget validates a `cd <path>` statement and returns the path.
func cdTarget(stmt *syntax.Stmt) (string, error) {
	if stmt.Negated || stmt.Background || len(stmt.Redirs) > 0 {
		return "", ErrNotApplyPatch
	}
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok || len(call.Assigns) > 0 || len(call.Args) != 2 {
		return "", ErrNotApplyPatch
	}
	name, ok := wordText(call.Args[0])
	if !ok || name != "cd" {
		return "", ErrNotApplyPatch
	}
	path, ok := wordText(call.Args[1])
	if !ok || strings.HasPrefix(path, "-") {
		return "", ErrNotApplyPatch
	}
	return path, nil
}

// heredocBody returns the body of the statement's single heredoc redirect,
// with the trailing newline the heredoc grammar requires removed.
func heredocBody(redirs []*syntax.Redirect) (string, bool) {
	if len(redirs) != 1 {
		return "", false
	}
	redir := redirs[0]
	if redir.Op != syntax.Hdoc && redir.Op != syntax.DashHdoc {
		return "", false
	}
	if redir.Hdoc == nil {
		return "", false
	}
	body, ok := wordText(redir.Hdoc)
	if !ok {
		return "", false
	}
	return strings.TrimSuffix(body, "\n"), true
}

// wordText resolves a word made only of literals and quoted literals.
func wordText(word *syntax.Word) (string, bool) {
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
