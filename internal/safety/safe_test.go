package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKnownSafeCommand(t *testing.T) {
	tests := []struct {
		name    string
		command []string
		safe    bool
	}{
		{"ls", []string{"ls", "-la"}, true},
		{"absolute ls", []string{"/bin/ls"}, true},
		{"cat", []string{"cat", "README.md"}, true},
		{"grep", []string{"grep", "-rn", "TODO", "."}, true},
		{"git status", []string{"git", "status"}, true},
		{"git log with global opt", []string{"git", "-C", "/repo", "log"}, true},
		{"git push", []string{"git", "push"}, false},
		{"cargo check", []string{"cargo", "check"}, true},
		{"cargo build", []string{"cargo", "build"}, false},
		{"find", []string{"find", ".", "-name", "*.go"}, true},
		{"find delete", []string{"find", ".", "-name", "*.go", "-delete"}, false},
		{"find exec", []string{"find", ".", "-exec", "rm", "{}", ";"}, false},
		{"rg", []string{"rg", "pattern", "src"}, true},
		{"rg pre", []string{"rg", "--pre", "sh", "pattern"}, false},
		{"rg search zip", []string{"rg", "-z", "pattern"}, false},
		{"sed range print", []string{"sed", "-n", "1,40p", "main.go"}, true},
		{"sed single line print", []string{"sed", "-n", "12p", "main.go"}, true},
		{"sed in place", []string{"sed", "-i", "s/a/b/", "main.go"}, false},
		{"rm", []string{"rm", "x"}, false},
		{"empty", nil, false},

		{"bash wrapping safe command", []string{"bash", "-lc", "ls -la"}, true},
		{"zsh wrapping safe chain", []string{"/bin/zsh", "-lc", "ls && pwd"}, true},
		{"bash wrapping unsafe command", []string{"bash", "-lc", "ls && rm x"}, false},
		{"bash with redirection", []string{"bash", "-lc", "ls > out"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.safe, IsKnownSafeCommand(tt.command))
		})
	}
}
