package execpolicy

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// amendMu serializes rule appends within this process. Concurrent writers
// from other processes are tolerated by the read-before-append dedupe but
// are not fully coordinated; amendments flow through one Manager in
// practice.
var amendMu sync.Mutex

// AppendAllowPrefixRule appends `prefix_rule(pattern=[...], decision="allow")`
// to the rules file at policyPath, creating the file and its directory when
// missing. An identical line already present is left untouched.
func AppendAllowPrefixRule(policyPath string, prefix []string) error {
	if len(prefix) == 0 {
		return fmt.Errorf("execpolicy: prefix rule requires at least one token")
	}
	tokens := make([]string, 0, len(prefix))
	for _, token := range prefix {
		quoted, err := json.Marshal(token)
		if err != nil {
			return fmt.Errorf("execpolicy: format prefix token: %w", err)
		}
		tokens = append(tokens, string(quoted))
	}
	rule := fmt.Sprintf(`prefix_rule(pattern=[%s], decision="allow")`, strings.Join(tokens, ", "))
	return appendRuleLine(policyPath, rule)
}

// AppendNetworkRule appends a `network_rule(...)` line to the rules file.
func AppendNetworkRule(policyPath, host string, protocol NetworkProtocol, decision Decision, justification string) error {
	normalized, err := normalizeNetworkRuleHost(host)
	if err != nil {
		return err
	}
	decisionWord := string(decision)
	if decision == DecisionForbidden {
		decisionWord = "deny"
	}
	args := []string{
		fmt.Sprintf("host=%s", mustQuote(normalized)),
		fmt.Sprintf("protocol=%s", mustQuote(string(protocol))),
		fmt.Sprintf("decision=%s", mustQuote(decisionWord)),
	}
	if justification != "" {
		if strings.TrimSpace(justification) == "" {
			return fmt.Errorf("execpolicy: justification cannot be empty")
		}
		args = append(args, fmt.Sprintf("justification=%s", mustQuote(justification)))
	}
	rule := fmt.Sprintf("network_rule(%s)", strings.Join(args, ", "))
	return appendRuleLine(policyPath, rule)
}

func mustQuote(s string) string {
	quoted, _ := json.Marshal(s)
	return string(quoted)
}

func appendRuleLine(policyPath, rule string) error {
	amendMu.Lock()
	defer amendMu.Unlock()

	dir := filepath.Dir(policyPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("execpolicy: create policy directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(policyPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("execpolicy: open policy file %s: %w", policyPath, err)
	}
	defer file.Close()

	contents, err := os.ReadFile(policyPath)
	if err != nil {
		return fmt.Errorf("execpolicy: read policy file %s: %w", policyPath, err)
	}
	for _, existing := range strings.Split(string(contents), "\n") {
		if existing == rule {
			return nil
		}
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("execpolicy: seek policy file %s: %w", policyPath, err)
	}
	line := rule + "\n"
	if len(contents) > 0 && !strings.HasSuffix(string(contents), "\n") {
		line = "\n" + line
	}
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("execpolicy: write policy file %s: %w", policyPath, err)
	}
	return nil
}
