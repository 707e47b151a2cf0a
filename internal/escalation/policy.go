package escalation

import "context"

// Policy decides the action for one intercepted exec attempt. Implementations
// must be deterministic for identical (file, argv, workdir) inputs modulo
// explicit session state such as prior session approvals and time-bounded
// rules tracked through the Stopwatch.
//
// Returning an error is equivalent to deny: the server never converts a
// policy failure into a run.
type Policy interface {
	DetermineAction(ctx context.Context, file string, argv []string, workdir string) (EscalateAction, error)
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, file string, argv []string, workdir string) (EscalateAction, error)

// DetermineAction implements Policy.
func (f PolicyFunc) DetermineAction(ctx context.Context, file string, argv []string, workdir string) (EscalateAction, error) {
	return f(ctx, file, argv, workdir)
}
