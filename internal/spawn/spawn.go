// Package spawn starts tool-call children with lifecycle guarantees: every
// child leads its own process group (job object on Windows) so the whole
// subtree can be killed atomically, and a handle that is closed without an
// explicit wait still terminates the group. Nothing leaks on cancellation or
// parent death.
package spawn

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"
)

// CommandSpec is the normalized execution request handed to the platform
// spawn path. It is built once per tool invocation from tokenized argv.
type CommandSpec struct {
	Program string
	Args    []string
	// Argv0 overrides the argv[0] the child observes. Empty keeps Program.
	Argv0 string
	Cwd   string
	Env   map[string]string

	// Expiration bounds the command's running time from Start. Zero means
	// no limit beyond the caller's context.
	Expiration time.Duration
}

// Stdio selects the child's standard descriptors. Nil fields inherit
// /dev/null semantics from os/exec.
type Stdio struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// Result describes a completed command.
type Result struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Handle owns one spawned child and its process group.
type Handle struct {
	cmd        *exec.Cmd
	pid        int
	started    time.Time
	expiration time.Duration

	mu     sync.Mutex
	waited bool
	killed bool

	platform platformHandle
}

// Start launches the command in its own process group. The returned handle
// must be finished with Wait or Close; Close without Wait kills the group.
func Start(ctx context.Context, spec CommandSpec, stdio Stdio) (*Handle, error) {
	if spec.Program == "" {
		return nil, fmt.Errorf("spawn: empty program")
	}
	cmd := exec.Command(spec.Program, spec.Args...)
	if spec.Argv0 != "" {
		cmd.Args[0] = spec.Argv0
	}
	cmd.Dir = spec.Cwd
	cmd.Env = flattenEnv(spec.Env)
	if stdio.Stdin != nil {
		cmd.Stdin = stdio.Stdin
	}
	if stdio.Stdout != nil {
		cmd.Stdout = stdio.Stdout
	}
	if stdio.Stderr != nil {
		cmd.Stderr = stdio.Stderr
	}
	applySysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn: start %s: %w", spec.Program, err)
	}
	h := &Handle{
		cmd:        cmd,
		pid:        cmd.Process.Pid,
		started:    time.Now(),
		expiration: spec.Expiration,
	}
	if err := h.afterStart(); err != nil {
		// The child may already be running: reap it before reporting.
		_ = h.Kill()
		_, _ = cmd.Process.Wait()
		return nil, err
	}
	return h, nil
}

// PID returns the child's process id.
func (h *Handle) PID() int { return h.pid }

// Wait blocks until the child exits, the context is done, or the
// CommandSpec expiration lapses, whichever comes first. On either bound the
// whole group is killed and the result is reported as timed out.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	if h.expiration > 0 {
		deadline := h.started.Add(h.expiration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	var timedOut bool
	select {
	case <-ctx.Done():
		timedOut = true
		_ = h.Kill()
		<-done
	case err := <-done:
		_ = err // exit status is read from ProcessState below
	}

	h.mu.Lock()
	h.waited = true
	h.mu.Unlock()
	h.platformRelease()

	result := Result{
		TimedOut: timedOut,
		Duration: time.Since(h.started),
		ExitCode: exitCodeOf(h.cmd),
	}
	return result, nil
}

// Kill terminates the child's whole process group. Already-exited groups are
// a success: the desired end state holds.
func (h *Handle) Kill() error {
	h.mu.Lock()
	if h.killed {
		h.mu.Unlock()
		return nil
	}
	h.killed = true
	h.mu.Unlock()
	return h.killGroup()
}

// Close implements kill-on-drop: a handle discarded without Wait still
// terminates the child and its group, then reaps it.
func (h *Handle) Close() error {
	h.mu.Lock()
	waited := h.waited
	h.mu.Unlock()
	if waited {
		return nil
	}
	err := h.Kill()
	_, _ = h.cmd.Process.Wait()
	h.mu.Lock()
	h.waited = true
	h.mu.Unlock()
	h.platformRelease()
	return err
}

func exitCodeOf(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	code := cmd.ProcessState.ExitCode()
	if code < 0 {
		// Killed by signal; report the conventional shell encoding.
		return 128 + signalNumber(cmd.ProcessState)
	}
	return code
}

func flattenEnv(env map[string]string) []string {
	if env == nil {
		return []string{}
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
