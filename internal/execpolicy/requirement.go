package execpolicy

import (
	"runtime"
	"strings"

	"github.com/opencodex/codex/internal/safety"
	"github.com/opencodex/codex/internal/sandbox"
)

// AskForApproval is the session's appetite for interactive approval prompts.
type AskForApproval string

const (
	ApprovalNever         AskForApproval = "never"
	ApprovalOnFailure     AskForApproval = "on-failure"
	ApprovalUnlessTrusted AskForApproval = "unless-trusted"
	ApprovalOnRequest     AskForApproval = "on-request"
)

const promptConflictReason = "approval required by policy, but approval prompts are disabled"

// Amendment proposes appending an allow rule for a command prefix.
type Amendment struct {
	Command []string `json:"command"`
}

// RequirementKind classifies what must happen before a command may run.
type RequirementKind uint8

const (
	// RequirementSkip: run without asking; BypassSandbox may apply.
	RequirementSkip RequirementKind = iota + 1
	// RequirementNeedsApproval: ask the user first.
	RequirementNeedsApproval
	// RequirementForbidden: refuse outright.
	RequirementForbidden
)

// Requirement is the outcome of evaluating one proposed command against the
// policy, the heuristics and the session approval settings.
type Requirement struct {
	Kind RequirementKind

	// BypassSandbox is set when an explicit allow rule matched: the user has
	// vouched for the command, so it runs outside the default sandbox.
	BypassSandbox bool

	// Reason explains a prompt or a refusal. Empty for Skip.
	Reason string

	// ProposedAmendment, when set, is an allow rule the user may accept to
	// stop being asked about commands like this one.
	ProposedAmendment *Amendment
}

// RequirementRequest carries everything command evaluation depends on.
type RequirementRequest struct {
	Command           []string
	ApprovalPolicy    AskForApproval
	SandboxPolicy     sandbox.Policy
	RequiresEscalated bool

	// PrefixRule is a prefix the model proposed remembering as an allow
	// rule alongside this command, subject to the banned-prefix list.
	PrefixRule []string
}

// bannedPrefixSuggestions lists prefixes too broad to ever auto-allow:
// interpreters, shells and privilege escalators whose prefix says nothing
// about what actually runs.
var bannedPrefixSuggestions = [][]string{
	{"python3"}, {"python3", "-"}, {"python3", "-c"},
	{"python"}, {"python", "-"}, {"python", "-c"},
	{"py"}, {"py", "-3"}, {"pythonw"}, {"pyw"}, {"pypy"}, {"pypy3"},
	{"git"},
	{"bash"}, {"bash", "-lc"},
	{"sh"}, {"sh", "-c"}, {"sh", "-lc"},
	{"zsh"}, {"zsh", "-lc"},
	{"/bin/zsh"}, {"/bin/zsh", "-lc"},
	{"/bin/bash"}, {"/bin/bash", "-lc"},
	{"pwsh"}, {"pwsh", "-Command"}, {"pwsh", "-c"},
	{"powershell"}, {"powershell", "-Command"}, {"powershell", "-c"},
	{"powershell.exe"}, {"powershell.exe", "-Command"}, {"powershell.exe", "-c"},
	{"env"}, {"sudo"},
	{"node"}, {"node", "-e"},
	{"perl"}, {"perl", "-e"},
	{"ruby"}, {"ruby", "-e"},
	{"php"}, {"php", "-r"},
	{"lua"}, {"lua", "-e"},
	{"osascript"},
}

// CreateRequirement evaluates one proposed command. Shell-wrapped scripts
// are decomposed into their plain commands when possible so rules written
// against the inner programs still apply.
func (m *Manager) CreateRequirement(req RequirementRequest) Requirement {
	policy := m.Current()
	commands, usedComplexParsing := commandsForExecPolicy(req.Command)
	// No auto-derived amendments when only the heredoc fallback parser
	// matched: the prefix may not describe the whole script.
	autoAmendmentAllowed := !usedComplexParsing

	fallback := func(cmd []string) Decision {
		return RenderDecisionForUnmatchedCommand(req.ApprovalPolicy, req.SandboxPolicy, cmd, req.RequiresEscalated, usedComplexParsing)
	}
	evaluation := policy.CheckMultiple(commands, fallback)

	requested := deriveRequestedAmendment(req.PrefixRule, evaluation.MatchedRules)

	switch evaluation.Decision {
	case DecisionForbidden:
		return Requirement{
			Kind:   RequirementForbidden,
			Reason: deriveForbiddenReason(req.Command, evaluation),
		}
	case DecisionPrompt:
		if req.ApprovalPolicy == ApprovalNever {
			return Requirement{Kind: RequirementForbidden, Reason: promptConflictReason}
		}
		amendment := requested
		if amendment == nil && autoAmendmentAllowed {
			amendment = deriveAmendmentForPromptRules(evaluation.MatchedRules)
		}
		return Requirement{
			Kind:              RequirementNeedsApproval,
			Reason:            derivePromptReason(req.Command, evaluation),
			ProposedAmendment: amendment,
		}
	default:
		var amendment *Amendment
		if autoAmendmentAllowed {
			amendment = deriveAmendmentForAllowRules(evaluation.MatchedRules)
		}
		return Requirement{
			Kind:              RequirementSkip,
			BypassSandbox:     anyPolicyAllow(evaluation.MatchedRules),
			ProposedAmendment: amendment,
		}
	}
}

// RenderDecisionForUnmatchedCommand derives a decision for a command no
// policy rule matched, from the safety heuristics and the session settings.
func RenderDecisionForUnmatchedCommand(approvalPolicy AskForApproval, sandboxPolicy sandbox.Policy, command []string, requiresEscalated, usedComplexParsing bool) Decision {
	if safety.IsKnownSafeCommand(command) && !usedComplexParsing {
		return DecisionAllow
	}

	// On Windows, read-only is not a real sandbox, so nothing runs there
	// unprompted.
	runtimeSandboxProvidesSafety := runtime.GOOS == "windows" && sandboxPolicy.IsReadOnly()

	if safety.CommandMightBeDangerous(command) || runtimeSandboxProvidesSafety {
		if approvalPolicy == ApprovalNever {
			return DecisionForbidden
		}
		return DecisionPrompt
	}

	switch approvalPolicy {
	case ApprovalNever, ApprovalOnFailure:
		// Rely on the sandbox for protection.
		return DecisionAllow
	case ApprovalUnlessTrusted:
		// The command is not known-safe, so prompt.
		return DecisionPrompt
	default: // on-request
		if sandboxPolicy.IsDangerFullAccess() || sandboxPolicy.IsExternalSandbox() {
			return DecisionAllow
		}
		// In restricted sandboxes, let the sandbox enforce restrictions
		// rather than prompting for every ordinary command.
		if requiresEscalated {
			return DecisionPrompt
		}
		return DecisionAllow
	}
}

func commandsForExecPolicy(command []string) (cmds [][]string, usedComplexParsing bool) {
	if plain, ok := safety.ParseShellLCPlainCommands(command); ok && len(plain) > 0 {
		return plain, false
	}
	if prefix, ok := safety.ParseShellLCSingleCommandPrefix(command); ok {
		return [][]string{prefix}, true
	}
	return [][]string{command}, false
}

func anyPolicyAllow(matches []RuleMatch) bool {
	for _, match := range matches {
		if match.IsPolicyMatch() && match.Decision() == DecisionAllow {
			return true
		}
	}
	return false
}

func anyPolicyMatch(matches []RuleMatch) bool {
	for _, match := range matches {
		if match.IsPolicyMatch() {
			return true
		}
	}
	return false
}

// deriveAmendmentForPromptRules proposes allowing the first command the
// heuristics prompted on, unless an explicit prompt rule applies (an
// amendment could not skip that).
func deriveAmendmentForPromptRules(matches []RuleMatch) *Amendment {
	for _, match := range matches {
		if match.IsPolicyMatch() && match.Decision() == DecisionPrompt {
			return nil
		}
	}
	for _, match := range matches {
		if !match.IsPolicyMatch() && match.Decision() == DecisionPrompt {
			return &Amendment{Command: match.Command()}
		}
	}
	return nil
}

// deriveAmendmentForAllowRules proposes remembering a heuristics-allowed
// command so a later sandbox failure can rerun it unsandboxed without a
// prompt. Not applicable when any explicit rule already matched.
func deriveAmendmentForAllowRules(matches []RuleMatch) *Amendment {
	if anyPolicyMatch(matches) {
		return nil
	}
	for _, match := range matches {
		if !match.IsPolicyMatch() && match.Decision() == DecisionAllow {
			return &Amendment{Command: match.Command()}
		}
	}
	return nil
}

func deriveRequestedAmendment(prefixRule []string, matches []RuleMatch) *Amendment {
	if len(prefixRule) == 0 {
		return nil
	}
	for _, banned := range bannedPrefixSuggestions {
		if equalTokens(prefixRule, banned) {
			return nil
		}
	}
	// An existing policy match means a new rule might conflict or not apply.
	if anyPolicyMatch(matches) {
		return nil
	}
	return &Amendment{Command: append([]string(nil), prefixRule...)}
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// derivePromptReason explains a prompt only when a policy rule drove it; the
// most specific (longest) matching prompt rule wins.
func derivePromptReason(command []string, evaluation Evaluation) string {
	rendered := renderCommand(command)
	bestLen := -1
	bestJustification := ""
	found := false
	for _, match := range evaluation.MatchedRules {
		if !match.IsPolicyMatch() || match.Decision() != DecisionPrompt {
			continue
		}
		if l := len(match.MatchedPrefix()); l > bestLen {
			bestLen = l
			bestJustification = match.Justification()
			found = true
		}
	}
	switch {
	case !found:
		return ""
	case bestJustification != "":
		return "`" + rendered + "` requires approval: " + bestJustification
	default:
		return "`" + rendered + "` requires approval by policy"
	}
}

func deriveForbiddenReason(command []string, evaluation Evaluation) string {
	rendered := renderCommand(command)
	var bestPrefix []string
	bestJustification := ""
	found := false
	for _, match := range evaluation.MatchedRules {
		if !match.IsPolicyMatch() || match.Decision() != DecisionForbidden {
			continue
		}
		if len(match.MatchedPrefix()) > len(bestPrefix) || !found {
			bestPrefix = match.MatchedPrefix()
			bestJustification = match.Justification()
			found = true
		}
	}
	switch {
	case !found:
		return "`" + rendered + "` rejected: blocked by policy"
	case bestJustification != "":
		return "`" + rendered + "` rejected: " + bestJustification
	default:
		return "`" + rendered + "` rejected: policy forbids commands starting with `" + renderCommand(bestPrefix) + "`"
	}
}

// renderCommand joins tokens for display, quoting the ones shell splitting
// would mangle.
func renderCommand(command []string) string {
	parts := make([]string, 0, len(command))
	for _, token := range command {
		if token == "" || strings.ContainsAny(token, " \t\n\"'\\$&|;<>()*?[]#~%!{}") {
			parts = append(parts, "'"+strings.ReplaceAll(token, "'", `'\''`)+"'")
			continue
		}
		parts = append(parts, token)
	}
	return strings.Join(parts, " ")
}
