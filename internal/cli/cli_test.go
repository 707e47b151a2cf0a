package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRoot("test")
	cmd.SetArgs(args)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if stdin != "" {
		cmd.SetIn(strings.NewReader(stdin))
	}
	err := cmd.Execute()
	return out.String(), err
}

func TestExecPolicyCheck_PrefixRuleMatch(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "git.rules")
	require.NoError(t, os.WriteFile(rules, []byte(
		`prefix_rule(pattern=["git","push"], decision="forbidden")`+"\n"), 0o600))

	out, err := runRoot(t, "", "execpolicy", "check", "-p", rules, "--", "git", "push", "origin", "main")
	require.NoError(t, err)
	require.JSONEq(t,
		`{"decision":"forbidden","matchedRules":[{"prefixRuleMatch":{"matchedPrefix":["git","push"],"decision":"forbidden"}}]}`,
		out)
}

func TestExecPolicyCheck_NoMatch(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "git.rules")
	require.NoError(t, os.WriteFile(rules, []byte(
		`prefix_rule(pattern=["git","push"], decision="forbidden")`+"\n"), 0o600))

	out, err := runRoot(t, "", "execpolicy", "check", "-p", rules, "--", "ls", "-la")
	require.NoError(t, err)
	require.JSONEq(t, `{"decision":"no_match"}`, out)
}

func TestExecPolicyCheck_BadRulesFile(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "broken.rules")
	require.NoError(t, os.WriteFile(rules, []byte(`prefix_rule(`), 0o600))

	_, err := runRoot(t, "", "execpolicy", "check", "-p", rules, "--", "ls")
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse rules file")
}

func TestApplyPatchCmd_AddFromStdin(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	patch := "*** Begin Patch\n*** Add File: f.txt\n+hello\n*** End Patch\n"
	out, err := runRoot(t, patch, "apply-patch")
	require.NoError(t, err)
	require.Equal(t, "Success. Updated the following files:\nA f.txt\n", out)

	contents, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(contents))
}

func TestApplyPatchCmd_BadPatchExitsNonzero(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := runRoot(t, "not a patch", "apply-patch")
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 1, exitErr.Code())
}

func TestExitError(t *testing.T) {
	require.Equal(t, "exit 3", NewExitError(3, "").Error())
	require.Equal(t, "boom", NewExitError(2, "boom").Error())
	require.Equal(t, 2, NewExitError(2, "boom").Code())
}
