package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandMightBeDangerous(t *testing.T) {
	tests := []struct {
		name      string
		command   []string
		dangerous bool
	}{
		{"rm force", []string{"rm", "-f", "x"}, true},
		{"rm recursive force", []string{"rm", "-rf", "/tmp/x"}, true},
		{"rm combined short opts", []string{"rm", "-vrf", "x"}, true},
		{"rm long force", []string{"rm", "--force", "x"}, true},
		{"rm plain", []string{"rm", "x"}, false},
		{"rm force after double dash", []string{"rm", "--", "-f"}, false},
		{"absolute rm", []string{"/bin/rm", "-rf", "x"}, true},

		{"sudo unwraps", []string{"sudo", "rm", "-rf", "/"}, true},
		{"sudo with user opt", []string{"sudo", "-u", "root", "rm", "-f", "x"}, true},
		{"sudo safe command", []string{"sudo", "ls"}, false},
		{"bare sudo", []string{"sudo"}, true},

		{"git reset hard", []string{"git", "reset", "--hard"}, true},
		{"git reset soft", []string{"git", "reset", "--soft", "HEAD~1"}, false},
		{"git global opts before subcommand", []string{"git", "-C", "/repo", "reset", "--hard"}, true},
		{"git config flag before subcommand", []string{"git", "-c", "user.name=x", "clean", "-f"}, true},
		{"git clean force", []string{"git", "clean", "-fd"}, true},
		{"git clean dry run", []string{"git", "clean", "-n"}, false},
		{"git push force", []string{"git", "push", "--force"}, true},
		{"git push short force", []string{"git", "push", "-f", "origin"}, true},
		{"git push force with lease", []string{"git", "push", "--force-with-lease"}, false},
		{"git push plain", []string{"git", "push"}, false},
		{"git branch delete force", []string{"git", "branch", "-D", "topic"}, true},
		{"git branch list", []string{"git", "branch"}, false},

		{"ls", []string{"ls", "-la"}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.dangerous, CommandMightBeDangerous(tt.command))
		})
	}
}

func TestIsDangerousCommandWindows(t *testing.T) {
	tests := []struct {
		name      string
		command   []string
		dangerous bool
	}{
		{
			"powershell start-process url",
			[]string{"powershell", "-Command", "Start-Process 'https://example.com'"},
			true,
		},
		{
			"pwsh invoke-item url",
			[]string{"pwsh.exe", "-NoProfile", "-Command", "Invoke-Item https://example.com"},
			true,
		},
		{
			"powershell shellexecute com",
			[]string{"powershell", "-Command", "(New-Object -ComObject Shell.Application).ShellExecute('https://example.com')"},
			true,
		},
		{
			"powershell remove-item force",
			[]string{"powershell", "-Command", "Remove-Item -Force C:\\tmp\\x"},
			true,
		},
		{
			"powershell remove-item without force",
			[]string{"powershell", "-Command", "Remove-Item C:\\tmp\\x"},
			false,
		},
		{
			"powershell force in later segment",
			[]string{"powershell", "-Command", "Remove-Item x; Get-Item -Force y"},
			false,
		},
		{
			"powershell get-content",
			[]string{"powershell", "-Command", "Get-Content README.md"},
			false,
		},
		{
			"cmd start url",
			[]string{"cmd.exe", "/c", "start https://example.com"},
			true,
		},
		{
			"cmd del force",
			[]string{"cmd", "/c", "del /f x.txt"},
			true,
		},
		{
			"cmd del plain",
			[]string{"cmd", "/c", "del x.txt"},
			false,
		},
		{
			"cmd rd recursive quiet",
			[]string{"cmd", "/c", "rd /s /q build"},
			true,
		},
		{
			"cmd rd recursive only",
			[]string{"cmd", "/c", "rd /s build"},
			false,
		},
		{
			"cmd embedded operator",
			[]string{"cmd", "/c", "echo hi&del /f x"},
			true,
		},
		{
			"cmd dir",
			[]string{"cmd", "/c", "dir"},
			false,
		},
		{
			"explorer url",
			[]string{"explorer.exe", "https://example.com"},
			true,
		},
		{
			"mshta url",
			[]string{"mshta", "https://example.com/x.hta"},
			true,
		},
		{
			"rundll32 fileprotocolhandler",
			[]string{"rundll32.exe", "url.dll,FileProtocolHandler", "https://example.com"},
			true,
		},
		{
			"browser url",
			[]string{"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe", "https://example.com"},
			true,
		},
		{
			"browser without url",
			[]string{"chrome.exe", "--version"},
			false,
		},
		{
			"explorer folder",
			[]string{"explorer.exe", "C:\\Users"},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.dangerous, isDangerousCommandWindows(tt.command))
		})
	}
}
