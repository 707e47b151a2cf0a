package approvals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opencodex/codex/internal/escalation"
	"github.com/opencodex/codex/internal/execpolicy"
	"github.com/opencodex/codex/internal/sandbox"
	"github.com/opencodex/codex/pkg/observability"
)

// defaultPromptTimeout bounds a single human-approval round trip. Expiry is
// a deny, never a run.
const defaultPromptTimeout = 5 * time.Minute

// StaticPolicy decides from the execpolicy rules alone. It never prompts, so
// anything that would need approval is denied with the policy's reason. This
// is the escalation.Policy used for headless sessions and CI.
type StaticPolicy struct {
	Manager           *execpolicy.Manager
	ApprovalPolicy    execpolicy.AskForApproval
	SandboxPolicy     sandbox.Policy
	RequiresEscalated bool
}

// DetermineAction implements escalation.Policy.
func (p *StaticPolicy) DetermineAction(ctx context.Context, file string, argv []string, workdir string) (escalation.EscalateAction, error) {
	if p.Manager == nil {
		return escalation.EscalateAction{}, errors.New("approvals: static policy requires a rules manager")
	}
	requirement := p.Manager.CreateRequirement(execpolicy.RequirementRequest{
		Command:           argv,
		ApprovalPolicy:    p.ApprovalPolicy,
		SandboxPolicy:     p.SandboxPolicy,
		RequiresEscalated: p.RequiresEscalated,
	})
	switch requirement.Kind {
	case execpolicy.RequirementSkip:
		return actionForApprovedCommand(requirement.BypassSandbox || p.RequiresEscalated), nil
	case execpolicy.RequirementNeedsApproval:
		reason := requirement.Reason
		if reason == "" {
			reason = "command requires approval, and no interactive approver is attached"
		}
		return escalation.DenyAction(reason), nil
	default:
		return escalation.DenyAction(requirement.Reason), nil
	}
}

// InteractivePolicyConfig configures an InteractivePolicy.
type InteractivePolicyConfig struct {
	Manager           *execpolicy.Manager
	ApprovalPolicy    execpolicy.AskForApproval
	SandboxPolicy     sandbox.Policy
	RequiresEscalated bool

	// Prompt asks the user. Required.
	Prompt PromptFunc
	// Cache collapses identical concurrent prompts; one is created when nil.
	Cache *Cache
	// PromptTimeout bounds one approval round trip (default 5m).
	PromptTimeout time.Duration
	// Stopwatch, when set, is paused while the user decides so prompt time
	// does not count against the command's execution budget.
	Stopwatch *escalation.Stopwatch

	Logger *observability.AuditLogger
}

// InteractivePolicy evaluates the execpolicy rules and routes prompt
// decisions through a human approver, caching approve-for-session answers by
// canonical command key.
type InteractivePolicy struct {
	cfg InteractivePolicyConfig
}

// NewInteractivePolicy validates the config and returns the policy.
func NewInteractivePolicy(cfg InteractivePolicyConfig) (*InteractivePolicy, error) {
	if cfg.Manager == nil {
		return nil, errors.New("approvals: interactive policy requires a rules manager")
	}
	if cfg.Prompt == nil {
		return nil, errors.New("approvals: interactive policy requires a prompt")
	}
	if cfg.Cache == nil {
		cfg.Cache = NewCache()
	}
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = defaultPromptTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewAuditLogger(observability.AuditLoggerConfig{})
	}
	return &InteractivePolicy{cfg: cfg}, nil
}

// DetermineAction implements escalation.Policy.
func (p *InteractivePolicy) DetermineAction(ctx context.Context, file string, argv []string, workdir string) (escalation.EscalateAction, error) {
	requirement := p.cfg.Manager.CreateRequirement(execpolicy.RequirementRequest{
		Command:           argv,
		ApprovalPolicy:    p.cfg.ApprovalPolicy,
		SandboxPolicy:     p.cfg.SandboxPolicy,
		RequiresEscalated: p.cfg.RequiresEscalated,
	})
	switch requirement.Kind {
	case execpolicy.RequirementSkip:
		return actionForApprovedCommand(requirement.BypassSandbox || p.cfg.RequiresEscalated), nil
	case execpolicy.RequirementForbidden:
		return escalation.DenyAction(requirement.Reason), nil
	}

	decision, err := p.askUser(ctx, PromptRequest{
		Command: argv,
		Workdir: workdir,
		Reason:  requirement.Reason,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return escalation.DenyAction("approval timed out"), nil
		}
		return escalation.DenyAction(fmt.Sprintf("approval failed: %v", err)), nil
	}

	switch decision {
	case DecisionApproved, DecisionApprovedForSession:
		if decision == DecisionApprovedForSession && requirement.ProposedAmendment != nil {
			// Best effort: a failed rules write still honors the approval.
			if err := p.cfg.Manager.AppendAmendmentAndUpdate(ctx, *requirement.ProposedAmendment); err != nil {
				p.cfg.Logger.Warn(ctx, "failed to persist approval amendment", map[string]any{"error": err.Error()})
			}
		}
		return actionForApprovedCommand(p.cfg.RequiresEscalated), nil
	default:
		return escalation.DenyAction("denied by user"), nil
	}
}

// askUser runs the prompt under its timeout with the stopwatch paused, going
// through the cache so identical pending requests share one prompt.
func (p *InteractivePolicy) askUser(ctx context.Context, req PromptRequest) (ReviewDecision, error) {
	promptCtx, cancel := context.WithTimeout(ctx, p.cfg.PromptTimeout)
	defer cancel()

	var decision ReviewDecision
	var err error
	ask := func() {
		decision, err = p.cfg.Cache.Resolve(promptCtx, req, p.cfg.Prompt)
	}
	if p.cfg.Stopwatch != nil {
		p.cfg.Stopwatch.PauseFor(ask)
	} else {
		ask()
	}
	return decision, err
}

// actionForApprovedCommand maps an approved command to its exec path: the
// server execs it when elevation is needed, otherwise the wrapper does.
func actionForApprovedCommand(escalated bool) escalation.EscalateAction {
	if escalated {
		return escalation.EscalateActionValue()
	}
	return escalation.RunAction()
}
