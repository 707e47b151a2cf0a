package escalation

import (
	"context"
	"sync"
	"time"
)

// Stopwatch tracks elapsed time against a fixed budget for one shell run.
// Interactive approval prompts pause the clock so a slow human answer does
// not eat into the command's own timeout. It starts counting immediately on
// creation.
type Stopwatch struct {
	mu         sync.Mutex
	limit      time.Duration
	consumed   time.Duration // elapsed across completed running intervals
	resumedAt  time.Time     // start of the current running interval; zero while paused
	pauseDepth int
	timer      *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewStopwatch creates a running stopwatch that cancels its context once the
// budget is exhausted (pauses excluded).
func NewStopwatch(limit time.Duration) *Stopwatch {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stopwatch{
		limit:     limit,
		resumedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.timer = time.AfterFunc(limit, cancel)
	return s
}

// Context is canceled when the budget expires or the stopwatch is stopped.
func (s *Stopwatch) Context() context.Context { return s.ctx }

// Elapsed returns running time consumed so far, excluding paused intervals.
func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := s.consumed
	if !s.resumedAt.IsZero() {
		elapsed += time.Since(s.resumedAt)
	}
	return elapsed
}

// Remaining returns budget left, clamped at zero.
func (s *Stopwatch) Remaining() time.Duration {
	if remaining := s.limit - s.Elapsed(); remaining > 0 {
		return remaining
	}
	return 0
}

// Expired reports whether the budget has been fully consumed.
func (s *Stopwatch) Expired() bool { return s.Remaining() == 0 }

// Pause suspends the clock. Pauses nest; the clock resumes once every Pause
// has been matched by a Resume.
func (s *Stopwatch) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseDepth++
	if s.pauseDepth > 1 {
		return
	}
	if !s.resumedAt.IsZero() {
		s.consumed += time.Since(s.resumedAt)
		s.resumedAt = time.Time{}
	}
	s.timer.Stop()
}

// Resume restarts the clock after a matching Pause.
func (s *Stopwatch) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pauseDepth == 0 {
		return
	}
	s.pauseDepth--
	if s.pauseDepth > 0 {
		return
	}
	s.resumedAt = time.Now()
	remaining := s.limit - s.consumed
	if remaining <= 0 {
		s.cancel()
		return
	}
	s.timer.Reset(remaining)
}

// PauseFor runs fn with the clock paused, typically around a human-approval
// round trip.
func (s *Stopwatch) PauseFor(fn func()) {
	s.Pause()
	defer s.Resume()
	fn()
}

// Stop cancels the context and releases the timer. Safe to call more than
// once.
func (s *Stopwatch) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.Stop()
	s.cancel()
}
