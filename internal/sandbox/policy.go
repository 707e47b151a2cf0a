// Package sandbox models the execution-restriction policy for shell commands
// and selects the platform backend that enforces it. The enforcement-side
// parser deliberately rejects the "do not sandbox" policies so a policy and
// its enforcement can never disagree.
package sandbox

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mode names the policy variant. The wire form is kebab-case under a "type"
// tag, matching the session configuration schema.
type Mode string

const (
	ModeDangerFullAccess Mode = "danger-full-access"
	ModeReadOnly         Mode = "read-only"
	ModeWorkspaceWrite   Mode = "workspace-write"
	ModeExternalSandbox  Mode = "external-sandbox"
)

// NetworkAccess is the network setting honored by an external sandbox.
type NetworkAccess string

const (
	NetworkRestricted NetworkAccess = "restricted"
	NetworkEnabled    NetworkAccess = "enabled"
)

// Policy determines execution restrictions for model shell commands.
// Construct with the New* helpers or ParsePolicy; the zero value is invalid.
type Policy struct {
	mode Mode

	// workspace-write fields.
	writableRoots       []string
	networkAccess       bool
	excludeTmpdirEnvVar bool
	excludeSlashTmp     bool

	// external-sandbox field.
	externalNetwork NetworkAccess
}

// NewReadOnlyPolicy returns a policy with read-only disk access and no
// network.
func NewReadOnlyPolicy() Policy {
	return Policy{mode: ModeReadOnly}
}

// NewWorkspaceWritePolicy returns a policy that reads the entire disk but
// writes only to the working directory and the usual temp dirs, with no
// network access.
func NewWorkspaceWritePolicy() Policy {
	return Policy{mode: ModeWorkspaceWrite}
}

// NewDangerFullAccessPolicy returns the unrestricted policy. It is never
// accepted by the enforcement-side parser.
func NewDangerFullAccessPolicy() Policy {
	return Policy{mode: ModeDangerFullAccess}
}

// NewExternalSandboxPolicy records that the process already runs inside an
// external sandbox that permits the given network access.
func NewExternalSandboxPolicy(network NetworkAccess) Policy {
	if network == "" {
		network = NetworkRestricted
	}
	return Policy{mode: ModeExternalSandbox, externalNetwork: network}
}

// WorkspaceWriteOptions configures a workspace-write policy beyond the
// defaults.
type WorkspaceWriteOptions struct {
	WritableRoots       []string
	NetworkAccess       bool
	ExcludeTmpdirEnvVar bool
	ExcludeSlashTmp     bool
}

// NewWorkspaceWritePolicyWith returns a workspace-write policy with extra
// writable roots and network settings.
func NewWorkspaceWritePolicyWith(opts WorkspaceWriteOptions) Policy {
	return Policy{
		mode:                ModeWorkspaceWrite,
		writableRoots:       append([]string(nil), opts.WritableRoots...),
		networkAccess:       opts.NetworkAccess,
		excludeTmpdirEnvVar: opts.ExcludeTmpdirEnvVar,
		excludeSlashTmp:     opts.ExcludeSlashTmp,
	}
}

func (p Policy) Mode() Mode               { return p.mode }
func (p Policy) IsReadOnly() bool         { return p.mode == ModeReadOnly }
func (p Policy) IsWorkspaceWrite() bool   { return p.mode == ModeWorkspaceWrite }
func (p Policy) IsDangerFullAccess() bool { return p.mode == ModeDangerFullAccess }
func (p Policy) IsExternalSandbox() bool  { return p.mode == ModeExternalSandbox }

// HasFullDiskReadAccess always holds; restricting reads is not supported.
func (p Policy) HasFullDiskReadAccess() bool { return true }

func (p Policy) HasFullDiskWriteAccess() bool {
	return p.mode == ModeDangerFullAccess || p.mode == ModeExternalSandbox
}

func (p Policy) HasFullNetworkAccess() bool {
	switch p.mode {
	case ModeDangerFullAccess:
		return true
	case ModeExternalSandbox:
		return p.externalNetwork == NetworkEnabled
	case ModeWorkspaceWrite:
		return p.networkAccess
	default:
		return false
	}
}

func (p Policy) String() string { return string(p.mode) }

type policyJSON struct {
	Type                Mode            `json:"type"`
	WritableRoots       []string        `json:"writable_roots,omitempty"`
	NetworkAccess       json.RawMessage `json:"network_access,omitempty"`
	ExcludeTmpdirEnvVar bool            `json:"exclude_tmpdir_env_var,omitempty"`
	ExcludeSlashTmp     bool            `json:"exclude_slash_tmp,omitempty"`
}

func (p Policy) MarshalJSON() ([]byte, error) {
	out := policyJSON{Type: p.mode}
	switch p.mode {
	case ModeReadOnly, ModeDangerFullAccess:
	case ModeWorkspaceWrite:
		out.WritableRoots = p.writableRoots
		out.NetworkAccess, _ = json.Marshal(p.networkAccess)
		out.ExcludeTmpdirEnvVar = p.excludeTmpdirEnvVar
		out.ExcludeSlashTmp = p.excludeSlashTmp
	case ModeExternalSandbox:
		out.NetworkAccess, _ = json.Marshal(p.externalNetwork)
	default:
		return nil, fmt.Errorf("sandbox: cannot encode invalid policy")
	}
	return json.Marshal(out)
}

func (p *Policy) UnmarshalJSON(data []byte) error {
	var in policyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Type {
	case ModeReadOnly, ModeDangerFullAccess:
		*p = Policy{mode: in.Type}
	case ModeWorkspaceWrite:
		pol := Policy{
			mode:                ModeWorkspaceWrite,
			writableRoots:       in.WritableRoots,
			excludeTmpdirEnvVar: in.ExcludeTmpdirEnvVar,
			excludeSlashTmp:     in.ExcludeSlashTmp,
		}
		if len(in.NetworkAccess) > 0 {
			if err := json.Unmarshal(in.NetworkAccess, &pol.networkAccess); err != nil {
				return fmt.Errorf("sandbox: workspace-write network_access: %w", err)
			}
		}
		*p = pol
	case ModeExternalSandbox:
		network := NetworkRestricted
		if len(in.NetworkAccess) > 0 {
			var s string
			if err := json.Unmarshal(in.NetworkAccess, &s); err != nil {
				return fmt.Errorf("sandbox: external-sandbox network_access: %w", err)
			}
			switch NetworkAccess(s) {
			case NetworkRestricted, NetworkEnabled:
				network = NetworkAccess(s)
			default:
				return fmt.Errorf("sandbox: unknown network access %q", s)
			}
		}
		*p = Policy{mode: ModeExternalSandbox, externalNetwork: network}
	default:
		return fmt.Errorf("sandbox: unknown policy type %q", in.Type)
	}
	return nil
}

// ParsePolicy decodes a policy for enforcement from either a preset name
// ("read-only", "workspace-write") or a JSON encoding. Policies that mean
// "do not sandbox" (danger-full-access, external-sandbox) are rejected here:
// a code path whose job is to build restrictions must never accept them.
func ParsePolicy(s string) (Policy, error) {
	trimmed := strings.TrimSpace(s)
	var p Policy
	switch Mode(trimmed) {
	case ModeReadOnly:
		p = NewReadOnlyPolicy()
	case ModeWorkspaceWrite:
		p = NewWorkspaceWritePolicy()
	case ModeDangerFullAccess, ModeExternalSandbox:
		return Policy{}, fmt.Errorf("sandbox: policy %q cannot be enforced by the sandbox", trimmed)
	default:
		if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
			return Policy{}, fmt.Errorf("sandbox: parse policy: %w", err)
		}
	}
	if p.IsDangerFullAccess() || p.IsExternalSandbox() {
		return Policy{}, fmt.Errorf("sandbox: policy %q cannot be enforced by the sandbox", p.mode)
	}
	return p, nil
}
