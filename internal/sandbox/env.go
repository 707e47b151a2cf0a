package sandbox

// Environment markers set on spawned tool children so scripts and tests can
// detect the active sandbox.
const (
	// SandboxEnvVar names the enforcement mechanism ("seatbelt",
	// "linux-sandbox", "windows-restricted-token").
	SandboxEnvVar = "CODEX_SANDBOX"

	// NetworkDisabledEnvVar is set to "1" when the active policy denies
	// full network access.
	NetworkDisabledEnvVar = "CODEX_SANDBOX_NETWORK_DISABLED"
)

// ApplyEnvMarkers stamps the marker variables for the given policy and
// mechanism onto env.
func ApplyEnvMarkers(env map[string]string, policy Policy, mechanism string) {
	if mechanism != "" {
		env[SandboxEnvVar] = mechanism
	}
	if !policy.HasFullNetworkAccess() {
		env[NetworkDisabledEnvVar] = "1"
	}
}
