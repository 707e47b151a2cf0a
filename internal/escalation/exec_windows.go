//go:build windows

package escalation

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Microsoft/go-winio"
	"github.com/google/uuid"

	"github.com/opencodex/codex/internal/spawn"
)

const pipeAcceptTimeout = 30 * time.Second

// execEscalated runs an approved command on behalf of the wrapper. Named
// pipes carry no file descriptors, so the server opens one fresh pipe per
// standard stream, tells the client where to connect, and bridges the
// streams into the child through anonymous pipes.
func (s *Server) execEscalated(ctx context.Context, conn *Conn, req *EscalateRequest) (int, error) {
	base := fmt.Sprintf(`\\.\pipe\codex-exec-%s`, uuid.NewString())
	pipes := SuperExecPipes{
		Stdin:  base + "-in",
		Stdout: base + "-out",
		Stderr: base + "-err",
	}

	listeners := make([]net.Listener, 0, 3)
	defer func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}()
	for _, name := range []string{pipes.Stdin, pipes.Stdout, pipes.Stderr} {
		ln, err := winio.ListenPipe(name, nil)
		if err != nil {
			return 0, fmt.Errorf("escalation: listen stdio pipe %s: %w", name, err)
		}
		listeners = append(listeners, ln)
	}

	if err := conn.Send(pipes); err != nil {
		return 0, err
	}

	conns := make([]net.Conn, 3)
	defer func() {
		for _, pc := range conns {
			if pc != nil {
				pc.Close()
			}
		}
	}()
	for i, ln := range listeners {
		pc, err := acceptWithTimeout(ln, pipeAcceptTimeout)
		if err != nil {
			return 0, fmt.Errorf("escalation: accept stdio pipe: %w", err)
		}
		conns[i] = pc
	}

	stdio, bridge, err := bridgeStdio(conns[0], conns[1], conns[2])
	if err != nil {
		return 0, err
	}
	defer bridge.close()

	spec := spawn.CommandSpec{
		Program: req.File,
		Cwd:     req.Workdir,
		Env:     req.Env,
	}
	if len(req.Argv) > 0 {
		spec.Argv0 = req.Argv[0]
		spec.Args = req.Argv[1:]
	}

	handle, err := spawn.Start(ctx, spec, stdio)
	if err != nil {
		return 0, fmt.Errorf("escalation: spawn %s: %w", req.File, err)
	}
	defer handle.Close()

	// The child holds its own copies now; release the parent's so the output
	// copiers see EOF when it exits.
	bridge.releaseChildEnds()
	bridge.start()

	res, err := handle.Wait(s.execCtx(ctx))
	if err != nil {
		return 0, fmt.Errorf("escalation: wait for %s: %w", req.File, err)
	}
	bridge.drainOutput()
	return res.ExitCode, nil
}

func acceptWithTimeout(ln net.Listener, timeout time.Duration) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-time.After(timeout):
		ln.Close()
		return nil, fmt.Errorf("client did not connect within %s", timeout)
	}
}

// stdioBridge shuttles bytes between the client's stdio pipes and the
// anonymous pipes handed to the child. Output copiers are tracked so the
// server can flush them before reporting the exit code; the stdin copier is
// not waited on, since it only finishes when the client closes its end.
type stdioBridge struct {
	stdinConn  net.Conn
	inR, inW   *os.File
	outR, outW *os.File
	errR, errW *os.File

	stdout net.Conn
	stderr net.Conn

	outWG sync.WaitGroup
}

// bridgeStdio wires three pipe connections into child-facing *os.File ends.
func bridgeStdio(stdin, stdout, stderr net.Conn) (spawn.Stdio, *stdioBridge, error) {
	b := &stdioBridge{stdinConn: stdin, stdout: stdout, stderr: stderr}
	var err error
	if b.inR, b.inW, err = os.Pipe(); err != nil {
		return spawn.Stdio{}, nil, fmt.Errorf("escalation: stdin pipe: %w", err)
	}
	if b.outR, b.outW, err = os.Pipe(); err != nil {
		b.close()
		return spawn.Stdio{}, nil, fmt.Errorf("escalation: stdout pipe: %w", err)
	}
	if b.errR, b.errW, err = os.Pipe(); err != nil {
		b.close()
		return spawn.Stdio{}, nil, fmt.Errorf("escalation: stderr pipe: %w", err)
	}
	return spawn.Stdio{Stdin: b.inR, Stdout: b.outW, Stderr: b.errW}, b, nil
}

func (b *stdioBridge) start() {
	go func() {
		io.Copy(b.inW, b.stdinConn)
		b.inW.Close()
	}()
	b.outWG.Add(2)
	go func() {
		defer b.outWG.Done()
		io.Copy(b.stdout, b.outR)
	}()
	go func() {
		defer b.outWG.Done()
		io.Copy(b.stderr, b.errR)
	}()
}

// releaseChildEnds closes the descriptors the child inherited copies of.
func (b *stdioBridge) releaseChildEnds() {
	b.inR.Close()
	b.outW.Close()
	b.errW.Close()
	b.inR, b.outW, b.errW = nil, nil, nil
}

// drainOutput waits until every buffered output byte has reached the client.
func (b *stdioBridge) drainOutput() {
	b.outWG.Wait()
}

func (b *stdioBridge) close() {
	for _, f := range []*os.File{b.inR, b.inW, b.outR, b.outW, b.errR, b.errW} {
		if f != nil {
			f.Close()
		}
	}
}
