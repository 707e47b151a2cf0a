//go:build linux && cgo

package linuxsandbox

import (
	"fmt"

	libseccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

// Syscalls denied unconditionally when network restrictions apply. ptrace
// and io_uring are blocked because both offer indirect routes around the
// socket syscall filtering.
var deniedSyscalls = []string{
	"ptrace",
	"io_uring_setup",
	"io_uring_enter",
	"io_uring_register",
	"connect",
	"accept",
	"accept4",
	"bind",
	"listen",
	"getpeername",
	"getsockname",
	"shutdown",
	"sendto",
	"sendmmsg",
	// recvfrom stays allowed: tools like cargo use socketpair + recvfrom
	// for child-process management.
	"recvmmsg",
	"getsockopt",
	"setsockopt",
}

// installNetworkSeccompFilter loads a filter that denies network syscalls
// with EPERM while still permitting AF_UNIX sockets, so local IPC (including
// the escalation socket) keeps working.
func installNetworkSeccompFilter() error {
	filter, err := libseccomp.NewFilter(libseccomp.ActAllow)
	if err != nil {
		return fmt.Errorf("seccomp: new filter: %w", err)
	}
	defer filter.Release()

	eperm := libseccomp.ActErrno.SetReturnCode(int16(unix.EPERM))

	for _, name := range deniedSyscalls {
		nr, err := libseccomp.GetSyscallFromName(name)
		if err != nil {
			// Syscall not known on this kernel/arch; nothing to deny.
			continue
		}
		if err := filter.AddRule(nr, eperm); err != nil {
			return fmt.Errorf("seccomp: deny %s: %w", name, err)
		}
	}

	// socket/socketpair: allow AF_UNIX, deny every other family.
	notUnix, err := libseccomp.MakeCondition(0, libseccomp.CompareNotEqual, uint64(unix.AF_UNIX))
	if err != nil {
		return fmt.Errorf("seccomp: build condition: %w", err)
	}
	for _, name := range []string{"socket", "socketpair"} {
		nr, err := libseccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		if err := filter.AddRuleConditional(nr, eperm, []libseccomp.ScmpCondition{notUnix}); err != nil {
			return fmt.Errorf("seccomp: restrict %s: %w", name, err)
		}
	}

	if err := filter.SetNoNewPrivsBit(true); err != nil {
		return fmt.Errorf("seccomp: set no_new_privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("seccomp: load filter: %w", err)
	}
	return nil
}
