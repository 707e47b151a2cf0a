//go:build !windows

package escalation

import (
	"context"
	"fmt"
	"os"

	"github.com/opencodex/codex/internal/spawn"
)

// execEscalated runs an approved command on behalf of the wrapper. The client
// forwards its stdio as file descriptors riding on a SuperExecMessage; the
// message body names the destination descriptor each one maps to. Returns the
// child's exit code.
func (s *Server) execEscalated(ctx context.Context, conn *Conn, req *EscalateRequest) (int, error) {
	var msg SuperExecMessage
	fds, err := conn.ReceiveWithFDs(&msg)
	if err != nil {
		return 0, err
	}
	files, cleanup, err := mapForwardedFDs(msg.Fds, fds)
	if err != nil {
		for _, fd := range fds {
			os.NewFile(uintptr(fd), "forwarded").Close()
		}
		return 0, err
	}
	defer cleanup()

	spec := spawn.CommandSpec{
		Program: req.File,
		Cwd:     req.Workdir,
		Env:     req.Env,
	}
	if len(req.Argv) > 0 {
		spec.Argv0 = req.Argv[0]
		spec.Args = req.Argv[1:]
	}

	handle, err := spawn.Start(ctx, spec, spawn.Stdio{
		Stdin:  files[0],
		Stdout: files[1],
		Stderr: files[2],
	})
	if err != nil {
		return 0, fmt.Errorf("escalation: spawn %s: %w", req.File, err)
	}
	defer handle.Close()

	res, err := handle.Wait(s.execCtx(ctx))
	if err != nil {
		return 0, fmt.Errorf("escalation: wait for %s: %w", req.File, err)
	}
	return res.ExitCode, nil
}

// mapForwardedFDs pairs the destination descriptor numbers in the message
// with the descriptors received over the socket, in order. Only stdin,
// stdout and stderr may be remapped, each at most once, and the counts must
// agree exactly; anything else is a protocol violation. Validation happens
// before any descriptor is wrapped, so on error the caller still owns every
// raw fd.
func mapForwardedFDs(dsts []int, fds []int) (files [3]*os.File, cleanup func(), err error) {
	if len(dsts) != len(fds) {
		return files, nil, fmt.Errorf("escalation: message names %d descriptors but %d arrived", len(dsts), len(fds))
	}
	var seen [3]bool
	for _, dst := range dsts {
		if dst < 0 || dst > 2 {
			return files, nil, fmt.Errorf("escalation: refusing to map forwarded descriptor onto fd %d", dst)
		}
		if seen[dst] {
			return files, nil, fmt.Errorf("escalation: fd %d mapped twice", dst)
		}
		seen[dst] = true
	}
	for i, dst := range dsts {
		files[dst] = os.NewFile(uintptr(fds[i]), fmt.Sprintf("escalated-fd-%d", dst))
	}
	cleanup = func() {
		for _, f := range files {
			if f != nil {
				f.Close()
			}
		}
	}
	return files, cleanup, nil
}
