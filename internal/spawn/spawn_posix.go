//go:build !windows

package spawn

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

type platformHandle struct{}

func (h *Handle) killGroup() error {
	return KillProcessGroupByPID(h.pid)
}

func (h *Handle) platformRelease() {}

// KillProcessGroupByPID resolves the current process group for pid and sends
// SIGKILL to the whole group. A group that has already exited is success:
// the desired end state ("not running") holds, and the call is idempotent.
func KillProcessGroupByPID(pid int) error {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

func signalNumber(ps *os.ProcessState) int {
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return 1
	}
	return int(ws.Signal())
}
