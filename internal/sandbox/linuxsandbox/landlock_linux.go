//go:build linux

package linuxsandbox

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Landlock syscall numbers; consistent across amd64 and arm64 (Linux 5.13+).
const (
	sysLandlockCreateRuleset = 444
	sysLandlockAddRule       = 445
	sysLandlockRestrictSelf  = 446
)

const landlockRulePathBeneath = 1

// Filesystem access rights.
const (
	landlockAccessFSExecute    = 1 << 0
	landlockAccessFSWriteFile  = 1 << 1
	landlockAccessFSReadFile   = 1 << 2
	landlockAccessFSReadDir    = 1 << 3
	landlockAccessFSRemoveDir  = 1 << 4
	landlockAccessFSRemoveFile = 1 << 5
	landlockAccessFSMakeChar   = 1 << 6
	landlockAccessFSMakeDir    = 1 << 7
	landlockAccessFSMakeReg    = 1 << 8
	landlockAccessFSMakeSock   = 1 << 9
	landlockAccessFSMakeFifo   = 1 << 10
	landlockAccessFSMakeBlock  = 1 << 11
	landlockAccessFSMakeSym    = 1 << 12
	landlockAccessFSRefer      = 1 << 13 // ABI v2
	landlockAccessFSTruncate   = 1 << 14 // ABI v3
)

const accessRead = uint64(landlockAccessFSExecute |
	landlockAccessFSReadFile |
	landlockAccessFSReadDir)

const accessReadWrite = accessRead |
	landlockAccessFSWriteFile |
	landlockAccessFSRemoveDir |
	landlockAccessFSRemoveFile |
	landlockAccessFSMakeChar |
	landlockAccessFSMakeDir |
	landlockAccessFSMakeReg |
	landlockAccessFSMakeSock |
	landlockAccessFSMakeFifo |
	landlockAccessFSMakeBlock |
	landlockAccessFSMakeSym |
	landlockAccessFSRefer |
	landlockAccessFSTruncate

// Rights valid for non-directory inodes; the kernel returns EINVAL when
// directory-only rights are attached to a file rule.
const accessFileOnly = uint64(landlockAccessFSExecute |
	landlockAccessFSWriteFile |
	landlockAccessFSReadFile |
	landlockAccessFSTruncate)

type landlockRulesetAttr struct {
	AccessFS  uint64
	AccessNet uint64
}

type landlockPathBeneathAttr struct {
	AllowedAccess uint64
	ParentFd      int32
	_             [4]byte
}

// installFilesystemLandlockRules restricts the current thread to read-only
// access of the entire filesystem plus read-write access to /dev/null and
// the writable roots. Legacy pipeline; bubblewrap is preferred.
func installFilesystemLandlockRules(writableRoots []string) error {
	attr := landlockRulesetAttr{AccessFS: accessReadWrite}
	fd, _, errno := syscall.Syscall(
		sysLandlockCreateRuleset,
		uintptr(unsafe.Pointer(&attr)),
		unsafe.Sizeof(attr.AccessFS),
		0,
	)
	if errno != 0 {
		return fmt.Errorf("landlock_create_ruleset: %v", errno)
	}
	rulesetFd := int(fd)
	defer unix.Close(rulesetFd)

	if err := addPathRule(rulesetFd, "/", accessRead); err != nil {
		return err
	}
	if err := addPathRule(rulesetFd, "/dev/null", accessReadWrite); err != nil {
		return err
	}
	for _, root := range writableRoots {
		if err := addPathRule(rulesetFd, root, accessReadWrite); err != nil {
			return err
		}
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", err)
	}
	if _, _, errno := syscall.Syscall(sysLandlockRestrictSelf, uintptr(rulesetFd), 0, 0); errno != 0 {
		return fmt.Errorf("landlock_restrict_self: %v", errno)
	}
	return nil
}

func addPathRule(rulesetFd int, path string, access uint64) error {
	fd, err := unix.Open(path, unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err == nil && stat.Mode&unix.S_IFDIR == 0 {
		access &= accessFileOnly
	}

	attr := landlockPathBeneathAttr{AllowedAccess: access, ParentFd: int32(fd)}
	if _, _, errno := syscall.Syscall6(
		sysLandlockAddRule,
		uintptr(rulesetFd),
		landlockRulePathBeneath,
		uintptr(unsafe.Pointer(&attr)),
		0, 0, 0,
	); errno != 0 {
		return fmt.Errorf("landlock_add_rule %s: %v", path, errno)
	}
	return nil
}
