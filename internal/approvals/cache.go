// Package approvals holds the per-session approval state: a decision cache
// keyed by the canonicalized command, and the escalation policies built on
// top of it. Two shell-wrapped spellings of the same command share one cache
// entry, and concurrent identical requests collapse to a single prompt.
package approvals

import (
	"context"
	"strings"
	"sync"

	"github.com/opencodex/codex/internal/safety"
)

// ReviewDecision is the user's answer to an approval prompt.
type ReviewDecision string

const (
	// DecisionApproved allows this one execution.
	DecisionApproved ReviewDecision = "approved"
	// DecisionApprovedForSession allows this command for the rest of the
	// session without further prompts.
	DecisionApprovedForSession ReviewDecision = "approved_for_session"
	// DecisionDenied refuses the execution.
	DecisionDenied ReviewDecision = "denied"
)

// PromptRequest carries what the user needs to see to decide.
type PromptRequest struct {
	Command []string
	Workdir string
	// Reason is the policy's explanation for why approval is needed, if any.
	Reason string
}

// PromptFunc asks the user about one command. It must honor ctx: an expired
// context resolves to a denied outcome upstream.
type PromptFunc func(ctx context.Context, req PromptRequest) (ReviewDecision, error)

// Key reduces a command to its canonical cache key, so `/bin/bash -lc
// "cargo test"` and `bash -lc "cargo   test"` share an entry.
func Key(command []string) string {
	return strings.Join(safety.CanonicalizeCommandForApproval(command), "\x00")
}

// Cache is the session approval cache. Owned by one escalate server; safe
// for concurrent use from its connection goroutines.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	done     chan struct{}
	decision ReviewDecision
	err      error
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

// Resolve returns the session decision for the command, prompting at most
// once per canonical key at a time. The first caller for a key runs the
// prompt; concurrent callers with the same key wait for and share its
// outcome. Only an approved-for-session answer stays cached; every other
// outcome is forgotten so the next request prompts again.
func (c *Cache) Resolve(ctx context.Context, req PromptRequest, prompt PromptFunc) (ReviewDecision, error) {
	key := Key(req.Command)

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		c.mu.Unlock()
		select {
		case <-entry.done:
			return entry.decision, entry.err
		case <-ctx.Done():
			return DecisionDenied, ctx.Err()
		}
	}
	entry := &cacheEntry{done: make(chan struct{})}
	c.entries[key] = entry
	c.mu.Unlock()

	entry.decision, entry.err = prompt(ctx, req)
	close(entry.done)

	if entry.err != nil || entry.decision != DecisionApprovedForSession {
		c.mu.Lock()
		// Drop the entry only if it is still ours; a sticky approval written
		// by a later request must not be evicted.
		if c.entries[key] == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	return entry.decision, entry.err
}

// Lookup reports a sticky session approval for the command without
// prompting.
func (c *Cache) Lookup(command []string) (ReviewDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[Key(command)]
	if !ok {
		return "", false
	}
	select {
	case <-entry.done:
		return entry.decision, entry.err == nil
	default:
		// A prompt is in flight; the caller should Resolve and wait.
		return "", false
	}
}
