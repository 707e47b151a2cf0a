package execpolicy

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/shlex"
)

// Parser accumulates rules from one or more rules files and builds an
// immutable Policy. Rules files use a small declarative call syntax:
//
//	prefix_rule(
//	    pattern = ["git", ["commit", "push"]],
//	    decision = "forbidden",
//	    justification = "no pushes from the agent",
//	    match = [["git", "commit"], "git push origin main"],
//	    not_match = ["git status"],
//	)
//	network_rule(host="api.github.com", protocol="https", decision="allow")
//
// The first pattern element may be a list of alternatives, which expands to
// one rule per alternative program name; later list elements match any of
// their alternatives without expansion.
type Parser struct {
	policy *Policy
}

// NewParser returns a parser with an empty rule set.
func NewParser() *Parser {
	return &Parser{policy: Empty()}
}

// Build returns the accumulated policy.
func (p *Parser) Build() *Policy { return p.policy }

// Parse adds every rule in contents to the policy. The identifier (usually
// the file path) appears in error messages.
func (p *Parser) Parse(identifier, contents string) error {
	lx := &lexer{src: contents, line: 1}
	for {
		tok, err := lx.next()
		if err != nil {
			return fmt.Errorf("%s:%d: %w", identifier, lx.line, err)
		}
		if tok.kind == tokEOF {
			return nil
		}
		if tok.kind != tokIdent {
			return fmt.Errorf("%s:%d: expected rule name, got %s", identifier, tok.line, tok)
		}
		args, err := parseCallArgs(lx)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", identifier, lx.line, err)
		}
		switch tok.text {
		case "prefix_rule":
			err = p.addPrefixRuleCall(args)
		case "network_rule":
			err = p.addNetworkRuleCall(args)
		default:
			err = fmt.Errorf("unknown rule %q", tok.text)
		}
		if err != nil {
			return fmt.Errorf("%s:%d: %w", identifier, tok.line, err)
		}
	}
}

// value is a parsed argument: a string or a list of values.
type value struct {
	str   string
	list  []value
	isStr bool
}

func (v value) asString(arg string) (string, error) {
	if !v.isStr {
		return "", fmt.Errorf("%s must be a string", arg)
	}
	return v.str, nil
}

// asStringList flattens a list of strings.
func (v value) asStringList(arg string) ([]string, error) {
	if v.isStr {
		return nil, fmt.Errorf("%s must be a list", arg)
	}
	out := make([]string, 0, len(v.list))
	for _, item := range v.list {
		if !item.isStr {
			return nil, fmt.Errorf("%s must be a list of strings", arg)
		}
		out = append(out, item.str)
	}
	return out, nil
}

func (p *Parser) addPrefixRuleCall(args map[string]value) error {
	patternVal, ok := args["pattern"]
	if !ok {
		return fmt.Errorf("invalid rule: prefix_rule requires a pattern")
	}
	delete(args, "pattern")
	if patternVal.isStr || len(patternVal.list) == 0 {
		return fmt.Errorf("invalid rule: pattern must be a non-empty list")
	}

	decision := DecisionAllow
	if v, ok := args["decision"]; ok {
		delete(args, "decision")
		raw, err := v.asString("decision")
		if err != nil {
			return fmt.Errorf("invalid rule: %w", err)
		}
		if decision, err = ParseDecision(raw); err != nil {
			return err
		}
	}

	justification := ""
	if v, ok := args["justification"]; ok {
		delete(args, "justification")
		raw, err := v.asString("justification")
		if err != nil {
			return fmt.Errorf("invalid rule: %w", err)
		}
		if strings.TrimSpace(raw) == "" {
			return fmt.Errorf("invalid rule: justification cannot be empty")
		}
		justification = raw
	}

	matchExamples, err := takeExamples(args, "match")
	if err != nil {
		return err
	}
	notMatchExamples, err := takeExamples(args, "not_match")
	if err != nil {
		return err
	}
	for arg := range args {
		return fmt.Errorf("invalid rule: prefix_rule does not accept %q", arg)
	}

	// The first element may list alternative program names; each becomes
	// its own rule since the policy table is keyed by the first token.
	firsts := patternVal.list[0]
	var programs []string
	if firsts.isStr {
		programs = []string{firsts.str}
	} else {
		if programs, err = firsts.asStringList("pattern"); err != nil {
			return fmt.Errorf("invalid rule: %w", err)
		}
		if len(programs) == 0 {
			return fmt.Errorf("invalid rule: pattern alternatives cannot be empty")
		}
	}

	rest := make([]PatternToken, 0, len(patternVal.list)-1)
	for _, elem := range patternVal.list[1:] {
		if elem.isStr {
			rest = append(rest, SingleToken(elem.str))
			continue
		}
		alts, err := elem.asStringList("pattern")
		if err != nil {
			return fmt.Errorf("invalid rule: %w", err)
		}
		if len(alts) == 0 {
			return fmt.Errorf("invalid rule: pattern alternatives cannot be empty")
		}
		rest = append(rest, AltsToken(alts...))
	}

	rules := make([]*PrefixRule, 0, len(programs))
	for _, program := range programs {
		rules = append(rules, &PrefixRule{
			Pattern:       PrefixPattern{First: program, Rest: rest},
			Decision:      decision,
			Justification: justification,
		})
	}

	if err := validateExamples(rules, matchExamples, notMatchExamples); err != nil {
		return err
	}
	for _, rule := range rules {
		p.policy.addRule(rule)
	}
	return nil
}

// takeExamples extracts match/not_match examples, each either a token list
// or a whole-string command split with shell rules.
func takeExamples(args map[string]value, arg string) ([][]string, error) {
	v, ok := args[arg]
	if !ok {
		return nil, nil
	}
	delete(args, arg)
	if v.isStr {
		return nil, fmt.Errorf("invalid rule: %s must be a list", arg)
	}
	examples := make([][]string, 0, len(v.list))
	for _, item := range v.list {
		if item.isStr {
			tokens, err := shlex.Split(item.str)
			if err != nil {
				return nil, fmt.Errorf("invalid rule: cannot tokenize %s example %q: %w", arg, item.str, err)
			}
			examples = append(examples, tokens)
			continue
		}
		tokens, err := item.asStringList(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid rule: %w", err)
		}
		examples = append(examples, tokens)
	}
	return examples, nil
}

func validateExamples(rules []*PrefixRule, matches, notMatches [][]string) error {
	for _, example := range matches {
		if !anyRuleMatches(rules, example) {
			return fmt.Errorf("invalid rule: match example %q is not matched by the rule", strings.Join(example, " "))
		}
	}
	for _, example := range notMatches {
		if anyRuleMatches(rules, example) {
			return fmt.Errorf("invalid rule: not_match example %q is matched by the rule", strings.Join(example, " "))
		}
	}
	return nil
}

func anyRuleMatches(rules []*PrefixRule, cmd []string) bool {
	for _, rule := range rules {
		if _, ok := rule.Matches(cmd); ok {
			return true
		}
	}
	return false
}

func (p *Parser) addNetworkRuleCall(args map[string]value) error {
	hostVal, ok := args["host"]
	if !ok {
		return fmt.Errorf("invalid rule: network_rule requires a host")
	}
	delete(args, "host")
	rawHost, err := hostVal.asString("host")
	if err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	host, err := normalizeNetworkRuleHost(rawHost)
	if err != nil {
		return err
	}

	protocolVal, ok := args["protocol"]
	if !ok {
		return fmt.Errorf("invalid rule: network_rule requires a protocol")
	}
	delete(args, "protocol")
	rawProtocol, err := protocolVal.asString("protocol")
	if err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	protocol, err := ParseNetworkProtocol(rawProtocol)
	if err != nil {
		return err
	}

	decision := DecisionAllow
	if v, ok := args["decision"]; ok {
		delete(args, "decision")
		raw, err := v.asString("decision")
		if err != nil {
			return fmt.Errorf("invalid rule: %w", err)
		}
		// Network rules spell forbidden as "deny".
		if raw == "deny" {
			decision = DecisionForbidden
		} else if decision, err = ParseDecision(raw); err != nil {
			return err
		}
	}

	justification := ""
	if v, ok := args["justification"]; ok {
		delete(args, "justification")
		raw, err := v.asString("justification")
		if err != nil {
			return fmt.Errorf("invalid rule: %w", err)
		}
		if strings.TrimSpace(raw) == "" {
			return fmt.Errorf("invalid rule: justification cannot be empty")
		}
		justification = raw
	}
	for arg := range args {
		return fmt.Errorf("invalid rule: network_rule does not accept %q", arg)
	}

	p.policy.networkRules = append(p.policy.networkRules, NetworkRule{
		Host:          host,
		Protocol:      protocol,
		Decision:      decision,
		Justification: justification,
	})
	return nil
}

func parseCallArgs(lx *lexer) (map[string]value, error) {
	if err := lx.expect(tokLParen); err != nil {
		return nil, err
	}
	args := make(map[string]value)
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokRParen {
			return args, nil
		}
		if tok.kind != tokIdent {
			return nil, fmt.Errorf("expected argument name, got %s", tok)
		}
		if _, dup := args[tok.text]; dup {
			return nil, fmt.Errorf("duplicate argument %q", tok.text)
		}
		if err := lx.expect(tokEquals); err != nil {
			return nil, err
		}
		v, err := parseValue(lx)
		if err != nil {
			return nil, err
		}
		args[tok.text] = v

		tok, err = lx.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokComma:
		case tokRParen:
			return args, nil
		default:
			return nil, fmt.Errorf("expected ',' or ')', got %s", tok)
		}
	}
}

func parseValue(lx *lexer) (value, error) {
	tok, err := lx.next()
	if err != nil {
		return value{}, err
	}
	switch tok.kind {
	case tokString:
		return value{str: tok.text, isStr: true}, nil
	case tokLBracket:
		var items []value
		for {
			tok, err := lx.peek()
			if err != nil {
				return value{}, err
			}
			if tok.kind == tokRBracket {
				lx.next()
				return value{list: items}, nil
			}
			item, err := parseValue(lx)
			if err != nil {
				return value{}, err
			}
			items = append(items, item)

			tok, err = lx.next()
			if err != nil {
				return value{}, err
			}
			switch tok.kind {
			case tokComma:
			case tokRBracket:
				return value{list: items}, nil
			default:
				return value{}, fmt.Errorf("expected ',' or ']', got %s", tok)
			}
		}
	default:
		return value{}, fmt.Errorf("expected string or list, got %s", tok)
	}
}

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokEquals
)

type token struct {
	kind tokenKind
	text string
	line int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of file"
	case tokIdent:
		return fmt.Sprintf("identifier %q", t.text)
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

type lexer struct {
	src    string
	pos    int
	line   int
	peeked *token
}

func (lx *lexer) peek() (token, error) {
	if lx.peeked == nil {
		tok, err := lx.scan()
		if err != nil {
			return token{}, err
		}
		lx.peeked = &tok
	}
	return *lx.peeked, nil
}

func (lx *lexer) next() (token, error) {
	if lx.peeked != nil {
		tok := *lx.peeked
		lx.peeked = nil
		return tok, nil
	}
	return lx.scan()
}

func (lx *lexer) expect(kind tokenKind) error {
	tok, err := lx.next()
	if err != nil {
		return err
	}
	if tok.kind != kind {
		return fmt.Errorf("unexpected %s", tok)
	}
	return nil
}

func (lx *lexer) scan() (token, error) {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '\n':
			lx.line++
			lx.pos++
		case c == ' ' || c == '\t' || c == '\r':
			lx.pos++
		case c == '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case c == '(':
			lx.pos++
			return token{kind: tokLParen, text: "(", line: lx.line}, nil
		case c == ')':
			lx.pos++
			return token{kind: tokRParen, text: ")", line: lx.line}, nil
		case c == '[':
			lx.pos++
			return token{kind: tokLBracket, text: "[", line: lx.line}, nil
		case c == ']':
			lx.pos++
			return token{kind: tokRBracket, text: "]", line: lx.line}, nil
		case c == ',':
			lx.pos++
			return token{kind: tokComma, text: ",", line: lx.line}, nil
		case c == '=':
			lx.pos++
			return token{kind: tokEquals, text: "=", line: lx.line}, nil
		case c == '"':
			return lx.scanString()
		case c == '_' || unicode.IsLetter(rune(c)):
			return lx.scanIdent(), nil
		default:
			return token{}, fmt.Errorf("unexpected character %q", c)
		}
	}
	return token{kind: tokEOF, line: lx.line}, nil
}

func (lx *lexer) scanIdent() token {
	start := lx.pos
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c == '_' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) {
			lx.pos++
			continue
		}
		break
	}
	return token{kind: tokIdent, text: lx.src[start:lx.pos], line: lx.line}
}

// scanString reads a double-quoted string with the usual escapes.
func (lx *lexer) scanString() (token, error) {
	start := lx.pos
	line := lx.line
	i := lx.pos + 1
	for i < len(lx.src) {
		switch lx.src[i] {
		case '\\':
			i += 2
			continue
		case '"':
			raw := lx.src[start : i+1]
			lx.pos = i + 1
			text, err := strconv.Unquote(raw)
			if err != nil {
				return token{}, fmt.Errorf("invalid string literal %s", raw)
			}
			return token{kind: tokString, text: text, line: line}, nil
		case '\n':
			return token{}, fmt.Errorf("unterminated string literal")
		}
		i++
	}
	return token{}, fmt.Errorf("unterminated string literal")
}
