// Package execpolicy evaluates tokenized commands against prefix rules
// loaded from *.rules files. A rule pairs a token pattern with a decision
// (allow, prompt, forbidden); when several rules match, the strictest
// decision wins.
package execpolicy

import (
	"encoding/json"
	"fmt"
)

// Decision is the verdict a rule or heuristic assigns to a command.
type Decision string

const (
	DecisionAllow     Decision = "allow"
	DecisionPrompt    Decision = "prompt"
	DecisionForbidden Decision = "forbidden"
)

// ParseDecision validates a decision string from a rules file.
func ParseDecision(raw string) (Decision, error) {
	switch Decision(raw) {
	case DecisionAllow, DecisionPrompt, DecisionForbidden:
		return Decision(raw), nil
	default:
		return "", fmt.Errorf("execpolicy: decision must be one of allow, prompt, forbidden (got %q)", raw)
	}
}

// severity orders decisions from most permissive to strictest.
func (d Decision) severity() int {
	switch d {
	case DecisionAllow:
		return 0
	case DecisionPrompt:
		return 1
	case DecisionForbidden:
		return 2
	default:
		// Unknown decisions sort strictest so a corrupted value can never
		// relax the outcome.
		return 3
	}
}

// Stricter returns the stricter of two decisions.
func Stricter(a, b Decision) Decision {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

func (d Decision) String() string { return string(d) }

// UnmarshalJSON rejects unknown decision values.
func (d *Decision) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDecision(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
