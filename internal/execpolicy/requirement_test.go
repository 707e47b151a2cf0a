package execpolicy

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodex/codex/internal/sandbox"
)

func testManager(t *testing.T, rules string) *Manager {
	t.Helper()
	parser := NewParser()
	require.NoError(t, parser.Parse("test.rules", rules))
	return NewManager(parser.Build(), t.TempDir(), nil)
}

func TestCreateRequirement_ForbiddenRule(t *testing.T) {
	m := testManager(t, `prefix_rule(pattern=["git", "push"], decision="forbidden", justification="no pushes")`)

	req := m.CreateRequirement(RequirementRequest{
		Command:        []string{"git", "push", "origin", "main"},
		ApprovalPolicy: ApprovalOnRequest,
		SandboxPolicy:  sandbox.NewWorkspaceWritePolicy(),
	})
	assert.Equal(t, RequirementForbidden, req.Kind)
	assert.Contains(t, req.Reason, "rejected: no pushes")
	assert.Contains(t, req.Reason, "git push origin main")
}

func TestCreateRequirement_ForbiddenReasonNamesPrefix(t *testing.T) {
	m := testManager(t, `prefix_rule(pattern=["shutdown"], decision="forbidden")`)

	req := m.CreateRequirement(RequirementRequest{
		Command:        []string{"shutdown", "-h", "now"},
		ApprovalPolicy: ApprovalOnRequest,
		SandboxPolicy:  sandbox.NewWorkspaceWritePolicy(),
	})
	assert.Equal(t, RequirementForbidden, req.Kind)
	assert.Contains(t, req.Reason, "policy forbids commands starting with `shutdown`")
}

func TestCreateRequirement_AllowRuleBypassesSandbox(t *testing.T) {
	m := testManager(t, `prefix_rule(pattern=["cargo", "build"], decision="allow")`)

	req := m.CreateRequirement(RequirementRequest{
		Command:        []string{"cargo", "build", "--release"},
		ApprovalPolicy: ApprovalOnRequest,
		SandboxPolicy:  sandbox.NewWorkspaceWritePolicy(),
	})
	assert.Equal(t, RequirementSkip, req.Kind)
	assert.True(t, req.BypassSandbox)
	assert.Nil(t, req.ProposedAmendment)
}

func TestCreateRequirement_PromptRuleUnderApprovalNever(t *testing.T) {
	m := testManager(t, `prefix_rule(pattern=["terraform", "apply"], decision="prompt")`)

	req := m.CreateRequirement(RequirementRequest{
		Command:        []string{"terraform", "apply"},
		ApprovalPolicy: ApprovalNever,
		SandboxPolicy:  sandbox.NewWorkspaceWritePolicy(),
	})
	assert.Equal(t, RequirementForbidden, req.Kind)
	assert.Equal(t, promptConflictReason, req.Reason)
}

func TestCreateRequirement_PromptRuleJustificationInReason(t *testing.T) {
	m := testManager(t, `prefix_rule(pattern=["terraform", "apply"], decision="prompt", justification="mutates infrastructure")`)

	req := m.CreateRequirement(RequirementRequest{
		Command:        []string{"terraform", "apply"},
		ApprovalPolicy: ApprovalOnRequest,
		SandboxPolicy:  sandbox.NewWorkspaceWritePolicy(),
	})
	assert.Equal(t, RequirementNeedsApproval, req.Kind)
	assert.Contains(t, req.Reason, "requires approval: mutates infrastructure")
	// An explicit prompt rule never produces an auto-amendment.
	assert.Nil(t, req.ProposedAmendment)
}

func TestCreateRequirement_KnownSafeCommandSkips(t *testing.T) {
	m := testManager(t, ``)

	req := m.CreateRequirement(RequirementRequest{
		Command:        []string{"ls", "-la"},
		ApprovalPolicy: ApprovalUnlessTrusted,
		SandboxPolicy:  sandbox.NewWorkspaceWritePolicy(),
	})
	assert.Equal(t, RequirementSkip, req.Kind)
	assert.False(t, req.BypassSandbox)
}

func TestCreateRequirement_DangerousCommandPrompts(t *testing.T) {
	m := testManager(t, ``)

	req := m.CreateRequirement(RequirementRequest{
		Command:        []string{"sudo", "rm", "-rf", "/srv/data"},
		ApprovalPolicy: ApprovalOnRequest,
		SandboxPolicy:  sandbox.NewWorkspaceWritePolicy(),
	})
	assert.Equal(t, RequirementNeedsApproval, req.Kind)

	req = m.CreateRequirement(RequirementRequest{
		Command:        []string{"sudo", "rm", "-rf", "/srv/data"},
		ApprovalPolicy: ApprovalNever,
		SandboxPolicy:  sandbox.NewWorkspaceWritePolicy(),
	})
	assert.Equal(t, RequirementForbidden, req.Kind)
}

func TestCreateRequirement_ShellScriptDecomposed(t *testing.T) {
	m := testManager(t, `prefix_rule(pattern=["git", "push"], decision="forbidden")`)

	req := m.CreateRequirement(RequirementRequest{
		Command:        []string{"bash", "-lc", "git push origin main"},
		ApprovalPolicy: ApprovalOnRequest,
		SandboxPolicy:  sandbox.NewWorkspaceWritePolicy(),
	})
	assert.Equal(t, RequirementForbidden, req.Kind)
}

func TestCreateRequirement_RequestedPrefixAmendment(t *testing.T) {
	m := testManager(t, ``)

	req := m.CreateRequirement(RequirementRequest{
		Command:        []string{"make", "test"},
		ApprovalPolicy: ApprovalUnlessTrusted,
		SandboxPolicy:  sandbox.NewWorkspaceWritePolicy(),
		PrefixRule:     []string{"make"},
	})
	assert.Equal(t, RequirementNeedsApproval, req.Kind)
	require.NotNil(t, req.ProposedAmendment)
	assert.Equal(t, []string{"make"}, req.ProposedAmendment.Command)
}

func TestCreateRequirement_BannedPrefixSuggestionDropped(t *testing.T) {
	m := testManager(t, ``)

	req := m.CreateRequirement(RequirementRequest{
		Command:        []string{"git", "fetch", "--all"},
		ApprovalPolicy: ApprovalUnlessTrusted,
		SandboxPolicy:  sandbox.NewWorkspaceWritePolicy(),
		PrefixRule:     []string{"git"},
	})
	assert.Equal(t, RequirementNeedsApproval, req.Kind)
	// "git" is too broad to remember, but the heuristics still propose
	// allowing this exact command.
	require.NotNil(t, req.ProposedAmendment)
	assert.Equal(t, []string{"git", "fetch", "--all"}, req.ProposedAmendment.Command)
}

func TestRenderDecisionForUnmatchedCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("read-only heuristics differ on windows")
	}
	workspace := sandbox.NewWorkspaceWritePolicy()

	tests := []struct {
		name     string
		approval AskForApproval
		command  []string
		want     Decision
	}{
		{"known safe allows", ApprovalUnlessTrusted, []string{"cat", "go.mod"}, DecisionAllow},
		{"never relies on sandbox", ApprovalNever, []string{"make"}, DecisionAllow},
		{"on-failure relies on sandbox", ApprovalOnFailure, []string{"make"}, DecisionAllow},
		{"unless-trusted prompts", ApprovalUnlessTrusted, []string{"make"}, DecisionPrompt},
		{"on-request allows in sandbox", ApprovalOnRequest, []string{"make"}, DecisionAllow},
		{"dangerous prompts", ApprovalOnRequest, []string{"rm", "-rf", "build"}, DecisionPrompt},
		{"dangerous forbidden when never", ApprovalNever, []string{"rm", "-rf", "build"}, DecisionForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderDecisionForUnmatchedCommand(tt.approval, workspace, tt.command, false, false)
			assert.Equal(t, tt.want, got)
		})
	}

	// Escalated execution under on-request needs a human.
	got := RenderDecisionForUnmatchedCommand(ApprovalOnRequest, workspace, []string{"make"}, true, false)
	assert.Equal(t, DecisionPrompt, got)
}
