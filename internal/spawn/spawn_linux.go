//go:build linux

package spawn

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

func applySysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		// The child leads its own process group so the subtree can be
		// signaled as a unit.
		Setpgid: true,
		// Deliver SIGTERM to the child if this process dies.
		Pdeathsig: unix.SIGTERM,
	}
}

// afterStart closes the fork/exec race on PR_SET_PDEATHSIG: the death signal
// is registered against whoever the kernel considers the parent at prctl
// time, so if we exited between fork and prctl the registration is useless.
// Register-then-verify: confirm the child still names us as its parent, and
// kill the group immediately if not.
func (h *Handle) afterStart() error {
	ppid, err := parentPIDOf(h.pid)
	if err != nil {
		// Child already gone; Wait will observe the exit.
		return nil
	}
	if ppid != os.Getpid() {
		_ = KillProcessGroupByPID(h.pid)
		return fmt.Errorf("spawn: child %d reparented before death-signal registration", h.pid)
	}
	return nil
}

func parentPIDOf(pid int) (int, error) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0, err
	}
	// Format: pid (comm) state ppid ... where comm may contain spaces.
	s := string(data)
	idx := strings.LastIndex(s, ")")
	if idx < 0 || idx+2 >= len(s) {
		return 0, fmt.Errorf("spawn: malformed stat for pid %d", pid)
	}
	fields := strings.Fields(s[idx+2:])
	if len(fields) < 2 {
		return 0, fmt.Errorf("spawn: malformed stat for pid %d", pid)
	}
	return strconv.Atoi(fields[1])
}
