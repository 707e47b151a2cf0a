//go:build windows

package winsandbox

import (
	"fmt"

	"golang.org/x/sys/windows"
)

const denyWriteAccessMask = windows.FILE_GENERIC_WRITE | windows.DELETE

// AddDenyWriteACE prepends an ACE denying write access for the capability
// SID to the DACL of path, inheriting to children. Applying the same entry
// twice is harmless; the deny semantics do not change.
func AddDenyWriteACE(path, capSid string) error {
	sid, err := windows.StringToSid(capSid)
	if err != nil {
		return fmt.Errorf("winsandbox: parse SID %q: %w", capSid, err)
	}

	sd, err := windows.GetNamedSecurityInfo(path, windows.SE_FILE_OBJECT, windows.DACL_SECURITY_INFORMATION)
	if err != nil {
		return fmt.Errorf("winsandbox: read DACL of %s: %w", path, err)
	}
	oldACL, _, err := sd.DACL()
	if err != nil {
		return fmt.Errorf("winsandbox: DACL of %s: %w", path, err)
	}

	entry := windows.EXPLICIT_ACCESS{
		AccessPermissions: denyWriteAccessMask,
		AccessMode:        windows.DENY_ACCESS,
		Inheritance:       windows.SUB_CONTAINERS_AND_OBJECTS_INHERIT,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_UNKNOWN,
			TrusteeValue: windows.TrusteeValueFromSID(sid),
		},
	}

	newACL, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{entry}, oldACL)
	if err != nil {
		return fmt.Errorf("winsandbox: build DACL for %s: %w", path, err)
	}
	err = windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION|windows.PROTECTED_DACL_SECURITY_INFORMATION,
		nil, nil, newACL, nil)
	if err != nil {
		return fmt.Errorf("winsandbox: set DACL of %s: %w", path, err)
	}
	return nil
}
