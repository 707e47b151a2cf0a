//go:build unix && !linux

package spawn

import (
	"os/exec"
	"syscall"
)

func applySysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// No parent-death signal outside Linux; the kill-on-drop handle is the only
// cleanup guarantee here.
func (h *Handle) afterStart() error { return nil }
