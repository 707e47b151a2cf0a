package execpolicy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/opencodex/codex/pkg/observability"
)

const (
	rulesDirName      = "rules"
	ruleExtension     = ".rules"
	defaultPolicyFile = "default.rules"
)

// DefaultPolicyPath returns the rules file amendments are appended to.
func DefaultPolicyPath(codexHome string) string {
	return filepath.Join(codexHome, rulesDirName, defaultPolicyFile)
}

// Manager owns the live policy for a session. Readers get a consistent
// snapshot via Current; writers (amendments, hot reload) swap in a fresh
// Policy value so evaluations never observe a half-updated rule set.
type Manager struct {
	codexHome string
	logger    *observability.AuditLogger

	mu     sync.RWMutex
	policy *Policy
}

// NewManager wraps an already-loaded policy.
func NewManager(policy *Policy, codexHome string, logger *observability.AuditLogger) *Manager {
	if policy == nil {
		policy = Empty()
	}
	if logger == nil {
		logger = observability.NewAuditLogger(observability.AuditLoggerConfig{})
	}
	return &Manager{codexHome: codexHome, logger: logger, policy: policy}
}

// LoadManager reads every *.rules file under codexHome/rules and returns a
// manager serving the combined policy. A parse failure in any file degrades
// to an empty policy with a logged warning rather than blocking startup;
// with no rules on file every non-trivial command falls through to the
// heuristics, which err on the side of prompting.
func LoadManager(ctx context.Context, codexHome string, logger *observability.AuditLogger) (*Manager, error) {
	m := NewManager(nil, codexHome, logger)
	policy, err := loadPolicyDir(filepath.Join(codexHome, rulesDirName))
	if err != nil {
		if _, isParse := err.(*ParseError); !isParse {
			return nil, err
		}
		m.logger.Warn(ctx, "failed to parse rules", map[string]any{"error": err.Error()})
		return m, nil
	}
	m.policy = policy
	return m, nil
}

// ParseError marks a rules file that could not be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse rules file %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

func loadPolicyDir(dir string) (*Policy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("execpolicy: read rules dir %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && filepath.Ext(entry.Name()) == ruleExtension {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	parser := NewParser()
	for _, path := range paths {
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("execpolicy: read rules file %s: %w", path, err)
		}
		if err := parser.Parse(path, string(contents)); err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
	}
	return parser.Build(), nil
}

// Current returns the live policy snapshot.
func (m *Manager) Current() *Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

func (m *Manager) store(policy *Policy) {
	m.mu.Lock()
	m.policy = policy
	m.mu.Unlock()
}

// AppendAmendmentAndUpdate persists an allow rule for the given prefix and
// applies it to the live policy without a full reload.
func (m *Manager) AppendAmendmentAndUpdate(ctx context.Context, amendment Amendment) error {
	policyPath := DefaultPolicyPath(m.codexHome)
	if err := AppendAllowPrefixRule(policyPath, amendment.Command); err != nil {
		return fmt.Errorf("execpolicy: update rules file %s: %w", policyPath, err)
	}

	updated := m.Current().Clone()
	if err := updated.AddPrefixRule(amendment.Command, DecisionAllow); err != nil {
		return err
	}
	m.store(updated)
	m.logger.Info(ctx, "execpolicy_amended", map[string]any{"prefix": amendment.Command})
	return nil
}

// Reload re-reads the rules directory and swaps in the result. A parse
// failure keeps the previous policy.
func (m *Manager) Reload(ctx context.Context) error {
	policy, err := loadPolicyDir(filepath.Join(m.codexHome, rulesDirName))
	if err != nil {
		m.logger.Warn(ctx, "rules reload failed", map[string]any{"error": err.Error()})
		return err
	}
	m.store(policy)
	return nil
}

// Watch reloads the policy whenever a rules file changes, until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("execpolicy: create rules watcher: %w", err)
	}
	defer watcher.Close()

	rulesDir := filepath.Join(m.codexHome, rulesDirName)
	if err := os.MkdirAll(rulesDir, 0o755); err != nil {
		return fmt.Errorf("execpolicy: create rules dir %s: %w", rulesDir, err)
	}
	if err := watcher.Add(rulesDir); err != nil {
		return fmt.Errorf("execpolicy: watch rules dir %s: %w", rulesDir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ruleExtension {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// Best effort: a broken edit keeps the old rules in force.
			m.Reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn(ctx, "rules watcher error", map[string]any{"error": err.Error()})
		}
	}
}
