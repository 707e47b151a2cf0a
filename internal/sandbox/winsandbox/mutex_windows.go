//go:build windows

package winsandbox

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// readACLMutexName gates the one-time read-ACL setup within a logon session
// so concurrent sandboxed processes do not race to mutate shared ACLs.
const readACLMutexName = `Local\CodexSandboxReadAcl`

// WithReadACLMutex runs fn while holding the session-scoped setup mutex.
// An abandoned mutex (a previous holder crashed) still grants ownership;
// setup is idempotent so re-running it is safe.
func WithReadACLMutex(fn func() error) error {
	name, err := windows.UTF16PtrFromString(readACLMutexName)
	if err != nil {
		return err
	}
	h, err := windows.CreateMutex(nil, false, name)
	if err != nil {
		return fmt.Errorf("winsandbox: create mutex %s: %w", readACLMutexName, err)
	}
	defer windows.CloseHandle(h)

	ev, err := windows.WaitForSingleObject(h, windows.INFINITE)
	if err != nil {
		return fmt.Errorf("winsandbox: acquire mutex %s: %w", readACLMutexName, err)
	}
	if ev != windows.WAIT_OBJECT_0 && ev != windows.WAIT_ABANDONED {
		return fmt.Errorf("winsandbox: acquire mutex %s: wait returned %#x", readACLMutexName, ev)
	}
	defer windows.ReleaseMutex(h)

	return fn()
}
