//go:build linux && !cgo

package linuxsandbox

import "errors"

// Without cgo there is no libseccomp binding; refuse rather than silently
// skipping the network filter.
func installNetworkSeccompFilter() error {
	return errors.New("seccomp: network filtering requires a cgo build")
}
