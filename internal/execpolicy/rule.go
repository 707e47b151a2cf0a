package execpolicy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PatternToken matches a single command token, either a fixed string or one
// of several allowed alternatives.
type PatternToken struct {
	alts []string
}

// SingleToken matches exactly one string.
func SingleToken(token string) PatternToken { return PatternToken{alts: []string{token}} }

// AltsToken matches any of the given alternatives.
func AltsToken(alts ...string) PatternToken { return PatternToken{alts: alts} }

func (t PatternToken) matches(token string) bool {
	for _, alt := range t.alts {
		if alt == token {
			return true
		}
	}
	return false
}

// Alternatives returns the strings this token accepts.
func (t PatternToken) Alternatives() []string { return t.alts }

// PrefixPattern is a prefix matcher for commands. The first token is a fixed
// string because the policy table is keyed by it.
type PrefixPattern struct {
	First string
	Rest  []PatternToken
}

// MatchesPrefix reports whether cmd starts with this pattern and, if so,
// returns the matched prefix tokens from cmd.
func (p PrefixPattern) MatchesPrefix(cmd []string) ([]string, bool) {
	patternLen := len(p.Rest) + 1
	if len(cmd) < patternLen || cmd[0] != p.First {
		return nil, false
	}
	for i, token := range p.Rest {
		if !token.matches(cmd[1+i]) {
			return nil, false
		}
	}
	matched := make([]string, patternLen)
	copy(matched, cmd[:patternLen])
	return matched, true
}

// PrefixRule pairs a prefix pattern with a decision and an optional
// justification surfaced in prompt and rejection messages.
type PrefixRule struct {
	Pattern       PrefixPattern
	Decision      Decision
	Justification string
}

// Program returns the first token, under which the rule is indexed.
func (r *PrefixRule) Program() string { return r.Pattern.First }

// Matches returns a RuleMatch when cmd starts with the rule's pattern.
func (r *PrefixRule) Matches(cmd []string) (RuleMatch, bool) {
	prefix, ok := r.Pattern.MatchesPrefix(cmd)
	if !ok {
		return RuleMatch{}, false
	}
	return PrefixRuleMatch(prefix, r.Decision, r.Justification), true
}

type ruleMatchKind uint8

const (
	matchPrefix ruleMatchKind = iota + 1
	matchHeuristics
)

// RuleMatch records why a decision applies to a command: either an explicit
// prefix rule matched, or the heuristics fallback classified an otherwise
// unmatched command.
type RuleMatch struct {
	kind          ruleMatchKind
	matchedPrefix []string
	command       []string
	decision      Decision
	justification string
}

// PrefixRuleMatch records a prefix-rule hit.
func PrefixRuleMatch(matchedPrefix []string, decision Decision, justification string) RuleMatch {
	return RuleMatch{
		kind:          matchPrefix,
		matchedPrefix: matchedPrefix,
		decision:      decision,
		justification: justification,
	}
}

// HeuristicsRuleMatch records a fallback classification for a command no
// policy rule matched.
func HeuristicsRuleMatch(command []string, decision Decision) RuleMatch {
	return RuleMatch{kind: matchHeuristics, command: command, decision: decision}
}

// IsPolicyMatch reports whether an explicit rule, rather than the heuristics
// fallback, produced this match.
func (m RuleMatch) IsPolicyMatch() bool { return m.kind == matchPrefix }

// Decision returns the verdict this match contributes.
func (m RuleMatch) Decision() Decision { return m.decision }

// MatchedPrefix returns the command tokens a prefix rule matched, or nil for
// a heuristics match.
func (m RuleMatch) MatchedPrefix() []string { return m.matchedPrefix }

// Command returns the command a heuristics match classified, or nil.
func (m RuleMatch) Command() []string { return m.command }

// Justification returns the rule's rationale, when one was written.
func (m RuleMatch) Justification() string { return m.justification }

type prefixRuleMatchWire struct {
	MatchedPrefix []string `json:"matchedPrefix"`
	Decision      Decision `json:"decision"`
	Justification *string  `json:"justification,omitempty"`
}

type heuristicsRuleMatchWire struct {
	Command  []string `json:"command"`
	Decision Decision `json:"decision"`
}

// MarshalJSON encodes the match as an externally tagged object, e.g.
// {"prefixRuleMatch":{"matchedPrefix":["git","push"],"decision":"forbidden"}}.
func (m RuleMatch) MarshalJSON() ([]byte, error) {
	switch m.kind {
	case matchPrefix:
		wire := prefixRuleMatchWire{MatchedPrefix: m.matchedPrefix, Decision: m.decision}
		if m.justification != "" {
			j := m.justification
			wire.Justification = &j
		}
		return json.Marshal(map[string]prefixRuleMatchWire{"prefixRuleMatch": wire})
	case matchHeuristics:
		wire := heuristicsRuleMatchWire{Command: m.command, Decision: m.decision}
		return json.Marshal(map[string]heuristicsRuleMatchWire{"heuristicsRuleMatch": wire})
	default:
		return nil, fmt.Errorf("execpolicy: cannot encode invalid rule match")
	}
}

// UnmarshalJSON decodes an externally tagged rule match.
func (m *RuleMatch) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if raw, ok := tagged["prefixRuleMatch"]; ok {
		var wire prefixRuleMatchWire
		if err := json.Unmarshal(raw, &wire); err != nil {
			return err
		}
		justification := ""
		if wire.Justification != nil {
			justification = *wire.Justification
		}
		*m = PrefixRuleMatch(wire.MatchedPrefix, wire.Decision, justification)
		return nil
	}
	if raw, ok := tagged["heuristicsRuleMatch"]; ok {
		var wire heuristicsRuleMatchWire
		if err := json.Unmarshal(raw, &wire); err != nil {
			return err
		}
		*m = HeuristicsRuleMatch(wire.Command, wire.Decision)
		return nil
	}
	return fmt.Errorf("execpolicy: unknown rule match variant")
}

// NetworkProtocol identifies the protocol a network rule applies to.
type NetworkProtocol string

const (
	ProtocolHTTP      NetworkProtocol = "http"
	ProtocolHTTPS     NetworkProtocol = "https"
	ProtocolSocks5TCP NetworkProtocol = "socks5_tcp"
	ProtocolSocks5UDP NetworkProtocol = "socks5_udp"
)

// ParseNetworkProtocol accepts the spellings rules files may use.
func ParseNetworkProtocol(raw string) (NetworkProtocol, error) {
	switch raw {
	case "http":
		return ProtocolHTTP, nil
	case "https", "https_connect", "http-connect":
		return ProtocolHTTPS, nil
	case "socks5_tcp":
		return ProtocolSocks5TCP, nil
	case "socks5_udp":
		return ProtocolSocks5UDP, nil
	default:
		return "", fmt.Errorf("execpolicy: network_rule protocol must be one of http, https, socks5_tcp, socks5_udp (got %q)", raw)
	}
}

// NetworkRule grants or denies outbound access to one host.
type NetworkRule struct {
	Host          string
	Protocol      NetworkProtocol
	Decision      Decision
	Justification string
}

// normalizeNetworkRuleHost lowercases and strips port/bracket decoration from
// a host literal, rejecting schemes, paths, wildcards and whitespace.
func normalizeNetworkRuleHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("execpolicy: network_rule host cannot be empty")
	}
	if strings.Contains(host, "://") || strings.ContainsAny(host, "/?#") {
		return "", fmt.Errorf("execpolicy: network_rule host must be a hostname or IP literal (without scheme or path)")
	}

	if inner, found := strings.CutPrefix(host, "["); found {
		inside, rest, ok := strings.Cut(inner, "]")
		if !ok {
			return "", fmt.Errorf("execpolicy: network_rule host has an invalid bracketed IPv6 literal")
		}
		if rest != "" && !isPortSuffix(rest) {
			return "", fmt.Errorf("execpolicy: network_rule host contains an unsupported suffix: %s", raw)
		}
		host = inside
	} else if strings.Count(host, ":") == 1 {
		if candidate, port, ok := strings.Cut(host, ":"); ok && candidate != "" && port != "" && allDigits(port) {
			host = candidate
		}
	}

	normalized := strings.ToLower(strings.TrimSpace(strings.TrimRight(host, ".")))
	switch {
	case normalized == "":
		return "", fmt.Errorf("execpolicy: network_rule host cannot be empty")
	case strings.Contains(normalized, "*"):
		return "", fmt.Errorf("execpolicy: network_rule host must be a specific host; wildcards are not allowed")
	case strings.ContainsAny(normalized, " \t"):
		return "", fmt.Errorf("execpolicy: network_rule host cannot contain whitespace")
	}
	return normalized, nil
}

func isPortSuffix(s string) bool {
	port, found := strings.CutPrefix(s, ":")
	return found && port != "" && allDigits(port)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
