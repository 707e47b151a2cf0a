package execpolicy

import "fmt"

// Evaluation is the outcome of checking one or more commands: the strictest
// decision across every match, plus the matches that produced it.
type Evaluation struct {
	Decision     Decision    `json:"decision"`
	MatchedRules []RuleMatch `json:"matchedRules"`
}

// FallbackFunc classifies a command no policy rule matched. The command
// safety heuristics are the usual implementation.
type FallbackFunc func(cmd []string) Decision

// Policy is an ordered multimap from program name to prefix rules, shared
// read-only across concurrent evaluations. Mutation happens only through the
// Manager, which swaps whole Policy values.
type Policy struct {
	rules        map[string][]*PrefixRule
	order        []string // program insertion order, for stable iteration
	networkRules []NetworkRule
}

// Empty returns a policy with no rules.
func Empty() *Policy {
	return &Policy{rules: make(map[string][]*PrefixRule)}
}

// Rules returns the prefix rules registered for a program, in file order.
func (p *Policy) Rules(program string) []*PrefixRule { return p.rules[program] }

// Programs returns every program with at least one rule, in insertion order.
func (p *Policy) Programs() []string { return p.order }

// NetworkRules returns the network rules, in file order.
func (p *Policy) NetworkRules() []NetworkRule { return p.networkRules }

// Clone returns a copy that can be extended without affecting readers of the
// original.
func (p *Policy) Clone() *Policy {
	clone := &Policy{
		rules:        make(map[string][]*PrefixRule, len(p.rules)),
		order:        append([]string(nil), p.order...),
		networkRules: append([]NetworkRule(nil), p.networkRules...),
	}
	for program, rules := range p.rules {
		clone.rules[program] = append([]*PrefixRule(nil), rules...)
	}
	return clone
}

func (p *Policy) addRule(rule *PrefixRule) {
	program := rule.Program()
	if _, ok := p.rules[program]; !ok {
		p.order = append(p.order, program)
	}
	p.rules[program] = append(p.rules[program], rule)
}

// AddPrefixRule registers a literal prefix with the given decision.
func (p *Policy) AddPrefixRule(prefix []string, decision Decision) error {
	if len(prefix) == 0 {
		return fmt.Errorf("execpolicy: prefix cannot be empty")
	}
	rest := make([]PatternToken, 0, len(prefix)-1)
	for _, token := range prefix[1:] {
		rest = append(rest, SingleToken(token))
	}
	p.addRule(&PrefixRule{
		Pattern:  PrefixPattern{First: prefix[0], Rest: rest},
		Decision: decision,
	})
	return nil
}

// Check evaluates one command. Every rule registered under the command's
// first token is consulted; if none match, fallback classifies the command
// and contributes a heuristics match instead. The strictest decision wins.
func (p *Policy) Check(cmd []string, fallback FallbackFunc) Evaluation {
	eval := Evaluation{Decision: DecisionAllow}
	p.checkInto(cmd, fallback, &eval)
	return eval
}

// CheckMultiple evaluates several commands (e.g. the statements of one shell
// script) and combines their matches under a single strictest decision.
func (p *Policy) CheckMultiple(cmds [][]string, fallback FallbackFunc) Evaluation {
	eval := Evaluation{Decision: DecisionAllow}
	for _, cmd := range cmds {
		p.checkInto(cmd, fallback, &eval)
	}
	return eval
}

func (p *Policy) checkInto(cmd []string, fallback FallbackFunc, eval *Evaluation) {
	matchedAny := false
	if len(cmd) > 0 {
		for _, rule := range p.rules[cmd[0]] {
			match, ok := rule.Matches(cmd)
			if !ok {
				continue
			}
			matchedAny = true
			eval.MatchedRules = append(eval.MatchedRules, match)
			eval.Decision = Stricter(eval.Decision, match.Decision())
		}
	}
	if !matchedAny && fallback != nil {
		command := append([]string(nil), cmd...)
		decision := fallback(command)
		eval.MatchedRules = append(eval.MatchedRules, HeuristicsRuleMatch(command, decision))
		eval.Decision = Stricter(eval.Decision, decision)
	}
}
