package config

import "github.com/opencodex/codex/internal/sandbox"

// SandboxPolicy builds the enforcement policy from the sandbox section. The
// workspace-write preset picks up the section's roots and network settings;
// any other value goes through the rejecting parser unchanged.
func (c *Config) SandboxPolicy() (sandbox.Policy, error) {
	if c.Sandbox.Policy == "workspace-write" {
		return sandbox.NewWorkspaceWritePolicyWith(sandbox.WorkspaceWriteOptions{
			WritableRoots:       c.Sandbox.WritableRoots,
			NetworkAccess:       c.Sandbox.NetworkAccess,
			ExcludeTmpdirEnvVar: c.Sandbox.ExcludeTmpdirEnvVar,
			ExcludeSlashTmp:     c.Sandbox.ExcludeSlashTmp,
		}), nil
	}
	return sandbox.ParsePolicy(c.Sandbox.Policy)
}
