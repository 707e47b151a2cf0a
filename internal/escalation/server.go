package escalation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencodex/codex/pkg/observability"
)

// DecisionRecord is one escalation decision as written to the audit journal.
type DecisionRecord struct {
	ID        string
	SessionID string
	File      string
	Argv      []string
	Workdir   string
	Action    string
	Reason    string
	Latency   time.Duration
	At        time.Time
}

// Recorder persists decision records. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, rec DecisionRecord) error
}

// ServerConfig configures a per-session escalate server.
type ServerConfig struct {
	// SocketPath is the Unix socket path (named pipe path on Windows) the
	// server listens on. Exported to children via SocketEnv.
	SocketPath string
	SessionID  string
	Policy     Policy

	Logger   *observability.AuditLogger
	Recorder Recorder

	// DecisionTimeout bounds one policy evaluation, including any human
	// approval round trip. Expiry resolves to deny.
	DecisionTimeout time.Duration

	// Stopwatch, when set, bounds escalated execution time for the session.
	Stopwatch *Stopwatch
}

const defaultDecisionTimeout = 10 * time.Minute

// Server owns one listening escalate socket and serves every wrapper
// connection for the session. Each accepted connection is one intercepted
// exec attempt and is handled on its own goroutine; policy evaluation for
// one connection never blocks classification of another.
type Server struct {
	cfg ServerConfig

	ln        net.Listener
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer creates the session socket and returns a server ready to Serve.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Policy == nil {
		return nil, errors.New("escalation: server requires a policy")
	}
	if cfg.SocketPath == "" {
		return nil, errors.New("escalation: server requires a socket path")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewAuditLogger(observability.AuditLoggerConfig{SessionID: cfg.SessionID})
	}
	if cfg.DecisionTimeout <= 0 {
		cfg.DecisionTimeout = defaultDecisionTimeout
	}
	ln, err := Listen(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("escalation: listen on %s: %w", cfg.SocketPath, err)
	}
	return &Server{cfg: cfg, ln: ln, closed: make(chan struct{}), conns: make(map[net.Conn]struct{})}, nil
}

// Addr returns the socket address clients should dial.
func (s *Server) Addr() string { return s.cfg.SocketPath }

// Env returns the environment entries a spawned shell needs to reach this
// server through the execve wrapper at wrapperPath.
func (s *Server) Env(wrapperPath string) map[string]string {
	return map[string]string{
		SocketEnv:                s.cfg.SocketPath,
		ExecWrapperEnv:           wrapperPath,
		LegacyBashExecWrapperEnv: wrapperPath,
	}
}

// Serve accepts wrapper connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.closed:
		}
	}()

	for {
		nc, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				s.wg.Wait()
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("escalation: accept: %w", err)
		}
		if !s.track(nc) {
			// Raced with Close: drop the connection so the wrapper denies.
			_ = nc.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(nc)
			s.handleConn(ctx, nc)
		}()
	}
}

// Close stops accepting and unblocks Serve. Open connections are closed so
// a wrapper that connected but never finished its exchange cannot wedge
// shutdown; its side fails closed on the dropped socket.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.ln.Close()
		s.mu.Lock()
		for nc := range s.conns {
			_ = nc.Close()
		}
		s.mu.Unlock()
	})
	return err
}

// track registers an accepted connection; it reports false once Close ran.
func (s *Server) track(nc net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return false
	default:
	}
	s.conns[nc] = struct{}{}
	return true
}

func (s *Server) untrack(nc net.Conn) {
	s.mu.Lock()
	delete(s.conns, nc)
	s.mu.Unlock()
}

// handleConn serves exactly one exec attempt. Failures are local to the
// connection: the worst outcome for the client is a dropped socket, which it
// must treat as deny.
func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	conn := wrapConn(nc)
	defer conn.Close()

	var req EscalateRequest
	if err := conn.Receive(&req); err != nil {
		s.cfg.Logger.Warn(ctx, "malformed escalate request", map[string]any{"error": err.Error()})
		return
	}

	started := time.Now()
	spanCtx, span := observability.StartExecSpan(ctx, s.cfg.SessionID, req.File, req.Argv)
	action := s.decide(spanCtx, &req)
	latency := time.Since(started)
	observability.EndSpan(span, action.String(), nil)

	s.cfg.Logger.LogEscalationDecision(ctx, req.File, req.Argv, action.String(), latency)
	s.record(ctx, req, action, latency)

	if err := conn.Send(EscalateResponse{Action: action}); err != nil {
		s.cfg.Logger.Warn(ctx, "failed to send escalate response", map[string]any{"error": err.Error()})
		return
	}
	if !action.IsEscalate() {
		return
	}

	exitCode, err := s.execEscalated(ctx, conn, &req)
	if err != nil {
		s.cfg.Logger.Error(ctx, "escalated exec failed", map[string]any{
			"file":  req.File,
			"error": err.Error(),
		})
		// Dropping the connection makes the wrapper fail closed.
		return
	}
	if err := conn.Send(SuperExecResult{ExitCode: exitCode}); err != nil {
		s.cfg.Logger.Warn(ctx, "failed to send exec result", map[string]any{"error": err.Error()})
	}
}

// decide validates the request and runs the policy under the decision
// timeout. Every failure path is a deny with a diagnostic reason; there is
// no code path from an error to run.
func (s *Server) decide(ctx context.Context, req *EscalateRequest) EscalateAction {
	if len(req.Argv) == 0 {
		return DenyAction("intercepted exec request must contain argv[0]")
	}
	if req.File == "" {
		return DenyAction("intercepted exec request must name an executable")
	}
	workdir := req.Workdir
	if !filepath.IsAbs(workdir) {
		abs, err := filepath.Abs(workdir)
		if err != nil {
			return DenyAction(fmt.Sprintf("cannot resolve workdir %q: %v", req.Workdir, err))
		}
		workdir = abs
	}
	file := req.File
	if !filepath.IsAbs(file) {
		file = filepath.Join(workdir, file)
	}
	file = filepath.Clean(file)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DecisionTimeout)
	defer cancel()

	action, err := s.cfg.Policy.DetermineAction(ctx, file, req.Argv, workdir)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return DenyAction("approval timed out")
		}
		return DenyAction(fmt.Sprintf("escalation policy failed: %v", err))
	}
	if action == (EscalateAction{}) {
		// Zero-value action from a buggy policy: refuse explicitly.
		return DenyAction("escalation policy returned no decision")
	}
	return action
}

func (s *Server) record(ctx context.Context, req EscalateRequest, action EscalateAction, latency time.Duration) {
	if s.cfg.Recorder == nil {
		return
	}
	rec := DecisionRecord{
		ID:        uuid.NewString(),
		SessionID: s.cfg.SessionID,
		File:      req.File,
		Argv:      req.Argv,
		Workdir:   req.Workdir,
		Action:    action.String(),
		Reason:    action.DenyReason(),
		Latency:   latency,
		At:        time.Now().UTC(),
	}
	if err := s.cfg.Recorder.Record(ctx, rec); err != nil {
		s.cfg.Logger.Warn(ctx, "failed to record decision", map[string]any{"error": err.Error()})
	}
}

// execCtx returns the context bounding escalated execution.
func (s *Server) execCtx(ctx context.Context) context.Context {
	if s.cfg.Stopwatch != nil {
		return s.cfg.Stopwatch.Context()
	}
	return ctx
}
