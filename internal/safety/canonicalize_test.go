package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeCommandForApproval(t *testing.T) {
	t.Run("single plain command reduces to its tokens", func(t *testing.T) {
		got := CanonicalizeCommandForApproval([]string{"/bin/bash", "-lc", "cargo test -p core"})
		assert.Equal(t, []string{"cargo", "test", "-p", "core"}, got)
	})

	t.Run("stable across shell path and whitespace", func(t *testing.T) {
		a := CanonicalizeCommandForApproval([]string{"/bin/bash", "-lc", "cargo test -p core"})
		b := CanonicalizeCommandForApproval([]string{"bash", "-lc", "cargo   test   -p core"})
		assert.Equal(t, a, b)
	})

	t.Run("multi statement script keeps verbatim text behind sentinel", func(t *testing.T) {
		script := "make build\nmake test"
		got := CanonicalizeCommandForApproval([]string{"zsh", "-lc", script})
		assert.Equal(t, []string{ShellScriptSentinel, "-lc", script}, got)

		same := CanonicalizeCommandForApproval([]string{"/bin/zsh", "-lc", script})
		assert.Equal(t, got, same)
	})

	t.Run("heredoc script keeps verbatim text behind sentinel", func(t *testing.T) {
		script := "python3 <<'PY'\nprint(1)\nPY"
		got := CanonicalizeCommandForApproval([]string{"bash", "-lc", script})
		assert.Equal(t, []string{ShellScriptSentinel, "-lc", script}, got)
	})

	t.Run("non wrapper argv passes through", func(t *testing.T) {
		argv := []string{"cargo", "test"}
		got := CanonicalizeCommandForApproval(argv)
		assert.Equal(t, argv, got)
		got[0] = "mutated"
		assert.Equal(t, "cargo", argv[0])
	})

	t.Run("powershell simple command reduces to tokens", func(t *testing.T) {
		got := CanonicalizeCommandForApproval([]string{"pwsh", "-NoProfile", "-Command", "Get-ChildItem -Name"})
		assert.Equal(t, []string{"Get-ChildItem", "-Name"}, got)
	})

	t.Run("powershell pipeline keeps verbatim script behind sentinel", func(t *testing.T) {
		script := "Get-ChildItem | Remove-Item"
		got := CanonicalizeCommandForApproval([]string{"powershell", "-Command", script})
		assert.Equal(t, []string{ShellScriptSentinel, "-Command", script}, got)
	})
}
