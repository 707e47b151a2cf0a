//go:build !windows

package escalation

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, policy Policy, mutate func(*ServerConfig)) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "esc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := ServerConfig{
		SocketPath:      filepath.Join(dir, "escalate.sock"),
		SessionID:       "test-session",
		Policy:          policy,
		DecisionTimeout: 5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)
	return cfg.SocketPath
}

func roundTrip(t *testing.T, addr string, req EscalateRequest) EscalateResponse {
	t.Helper()
	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Send(req))
	var resp EscalateResponse
	require.NoError(t, conn.Receive(&resp))
	return resp
}

func testRequest() EscalateRequest {
	return EscalateRequest{
		File:    "/bin/true",
		Argv:    []string{"true"},
		Workdir: "/",
		Env:     map[string]string{"PATH": "/usr/bin:/bin"},
	}
}

func TestServerRunDecision(t *testing.T) {
	addr := startTestServer(t, PolicyFunc(func(context.Context, string, []string, string) (EscalateAction, error) {
		return RunAction(), nil
	}), nil)

	resp := roundTrip(t, addr, testRequest())
	assert.True(t, resp.Action.IsRun())
}

func TestServerDenyDecisionCarriesReason(t *testing.T) {
	addr := startTestServer(t, PolicyFunc(func(context.Context, string, []string, string) (EscalateAction, error) {
		return DenyAction("rm is forbidden"), nil
	}), nil)

	resp := roundTrip(t, addr, testRequest())
	assert.True(t, resp.Action.IsDeny())
	assert.Equal(t, "rm is forbidden", resp.Action.DenyReason())
}

func TestServerPolicyErrorIsDeny(t *testing.T) {
	addr := startTestServer(t, PolicyFunc(func(context.Context, string, []string, string) (EscalateAction, error) {
		return EscalateAction{}, errors.New("rules file corrupted")
	}), nil)

	resp := roundTrip(t, addr, testRequest())
	require.True(t, resp.Action.IsDeny())
	assert.Contains(t, resp.Action.DenyReason(), "rules file corrupted")
}

func TestServerZeroValueDecisionIsDeny(t *testing.T) {
	addr := startTestServer(t, PolicyFunc(func(context.Context, string, []string, string) (EscalateAction, error) {
		return EscalateAction{}, nil
	}), nil)

	resp := roundTrip(t, addr, testRequest())
	require.True(t, resp.Action.IsDeny())
	assert.Contains(t, resp.Action.DenyReason(), "no decision")
}

func TestServerEmptyArgvIsDeny(t *testing.T) {
	addr := startTestServer(t, PolicyFunc(func(context.Context, string, []string, string) (EscalateAction, error) {
		t.Error("policy must not run for an empty argv")
		return RunAction(), nil
	}), nil)

	req := testRequest()
	req.Argv = nil
	resp := roundTrip(t, addr, req)
	assert.True(t, resp.Action.IsDeny())
}

func TestServerDropsMalformedRequest(t *testing.T) {
	addr := startTestServer(t, PolicyFunc(func(context.Context, string, []string, string) (EscalateAction, error) {
		return RunAction(), nil
	}), nil)

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	// Not an EscalateRequest at all. The server must drop the connection
	// rather than answer, which the wrapper treats as deny.
	require.NoError(t, conn.Send([]string{"garbage"}))
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	var resp EscalateResponse
	require.Error(t, conn.Receive(&resp))
}

func TestServerEscalatedExec(t *testing.T) {
	addr := startTestServer(t, PolicyFunc(func(context.Context, string, []string, string) (EscalateAction, error) {
		return EscalateActionValue(), nil
	}), nil)

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req := testRequest()
	req.File = "/bin/sh"
	req.Argv = []string{"sh", "-c", "echo escalated-output"}
	require.NoError(t, conn.Send(req))

	var resp EscalateResponse
	require.NoError(t, conn.Receive(&resp))
	require.True(t, resp.Action.IsEscalate())

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, conn.SendWithFDs(SuperExecMessage{Fds: []int{1}}, []int{int(w.Fd())}))
	w.Close()

	var result SuperExecResult
	require.NoError(t, conn.Receive(&result))
	assert.Equal(t, 0, result.ExitCode)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "escalated-output\n", string(out))
}

func TestServerEscalatedExecReportsExitCode(t *testing.T) {
	addr := startTestServer(t, PolicyFunc(func(context.Context, string, []string, string) (EscalateAction, error) {
		return EscalateActionValue(), nil
	}), nil)

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req := testRequest()
	req.File = "/bin/sh"
	req.Argv = []string{"sh", "-c", "exit 7"}
	require.NoError(t, conn.Send(req))

	var resp EscalateResponse
	require.NoError(t, conn.Receive(&resp))
	require.True(t, resp.Action.IsEscalate())
	require.NoError(t, conn.SendWithFDs(SuperExecMessage{Fds: nil}, nil))

	var result SuperExecResult
	require.NoError(t, conn.Receive(&result))
	assert.Equal(t, 7, result.ExitCode)
}

func TestServerRejectsBadStdioMapping(t *testing.T) {
	addr := startTestServer(t, PolicyFunc(func(context.Context, string, []string, string) (EscalateAction, error) {
		return EscalateActionValue(), nil
	}), nil)

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(testRequest()))
	var resp EscalateResponse
	require.NoError(t, conn.Receive(&resp))
	require.True(t, resp.Action.IsEscalate())

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	// fd 5 is not a standard stream; the server must drop the connection
	// instead of mapping it.
	require.NoError(t, conn.SendWithFDs(SuperExecMessage{Fds: []int{5}}, []int{int(w.Fd())}))
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	var result SuperExecResult
	require.Error(t, conn.Receive(&result))
}

func TestServerShutdownClosesIdleConnections(t *testing.T) {
	dir, err := os.MkdirTemp("", "esc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	srv, err := NewServer(ServerConfig{
		SocketPath: filepath.Join(dir, "escalate.sock"),
		SessionID:  "test-session",
		Policy: PolicyFunc(func(context.Context, string, []string, string) (EscalateAction, error) {
			return RunAction(), nil
		}),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	// A wrapper that connects and never sends its request must not be able
	// to wedge shutdown; its connection is dropped, which it treats as deny.
	conn, err := Dial(srv.Addr(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel with an idle connection open")
	}
}

type recorderFunc func(ctx context.Context, rec DecisionRecord) error

func (f recorderFunc) Record(ctx context.Context, rec DecisionRecord) error { return f(ctx, rec) }

func TestServerRecordsDecisions(t *testing.T) {
	records := make(chan DecisionRecord, 1)
	addr := startTestServer(t, PolicyFunc(func(context.Context, string, []string, string) (EscalateAction, error) {
		return DenyAction("nope"), nil
	}), func(cfg *ServerConfig) {
		cfg.Recorder = recorderFunc(func(_ context.Context, rec DecisionRecord) error {
			records <- rec
			return nil
		})
	})

	roundTrip(t, addr, testRequest())

	select {
	case rec := <-records:
		assert.Equal(t, "test-session", rec.SessionID)
		assert.Equal(t, "/bin/true", rec.File)
		assert.Equal(t, "nope", rec.Reason)
		assert.NotEmpty(t, rec.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("decision was never recorded")
	}
}
