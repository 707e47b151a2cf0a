package approvals

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCanonicalizesShellWrapping(t *testing.T) {
	assert.Equal(t,
		Key([]string{"/bin/bash", "-lc", "cargo test -p core"}),
		Key([]string{"bash", "-lc", "cargo   test   -p core"}))
	assert.NotEqual(t,
		Key([]string{"bash", "-lc", "cargo test"}),
		Key([]string{"bash", "-lc", "cargo build"}))
}

func TestResolve_CollapsesConcurrentIdenticalPrompts(t *testing.T) {
	cache := NewCache()
	var prompts atomic.Int32
	release := make(chan struct{})
	prompt := func(ctx context.Context, req PromptRequest) (ReviewDecision, error) {
		prompts.Add(1)
		<-release
		return DecisionApprovedForSession, nil
	}

	req := PromptRequest{Command: []string{"bash", "-lc", "cargo test"}}
	const workers = 8
	results := make(chan ReviewDecision, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := cache.Resolve(context.Background(), req, prompt)
			require.NoError(t, err)
			results <- decision
		}()
	}

	// Give every worker a chance to reach the cache before answering.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), prompts.Load())
	for decision := range results {
		assert.Equal(t, DecisionApprovedForSession, decision)
	}
}

func TestResolve_SessionApprovalSticks(t *testing.T) {
	cache := NewCache()
	var prompts atomic.Int32
	prompt := func(ctx context.Context, req PromptRequest) (ReviewDecision, error) {
		prompts.Add(1)
		return DecisionApprovedForSession, nil
	}

	// The equivalent shell spelling hits the same entry.
	first := PromptRequest{Command: []string{"/bin/bash", "-lc", "cargo test"}}
	second := PromptRequest{Command: []string{"bash", "-lc", "cargo   test"}}

	decision, err := cache.Resolve(context.Background(), first, prompt)
	require.NoError(t, err)
	assert.Equal(t, DecisionApprovedForSession, decision)

	decision, err = cache.Resolve(context.Background(), second, prompt)
	require.NoError(t, err)
	assert.Equal(t, DecisionApprovedForSession, decision)
	assert.Equal(t, int32(1), prompts.Load())

	got, ok := cache.Lookup(second.Command)
	require.True(t, ok)
	assert.Equal(t, DecisionApprovedForSession, got)
}

func TestResolve_OneShotOutcomesRePrompt(t *testing.T) {
	for _, outcome := range []ReviewDecision{DecisionApproved, DecisionDenied} {
		t.Run(string(outcome), func(t *testing.T) {
			cache := NewCache()
			var prompts atomic.Int32
			prompt := func(ctx context.Context, req PromptRequest) (ReviewDecision, error) {
				prompts.Add(1)
				return outcome, nil
			}

			req := PromptRequest{Command: []string{"rm", "-rf", "build"}}
			for i := 0; i < 2; i++ {
				decision, err := cache.Resolve(context.Background(), req, prompt)
				require.NoError(t, err)
				assert.Equal(t, outcome, decision)
			}
			assert.Equal(t, int32(2), prompts.Load())

			_, ok := cache.Lookup(req.Command)
			assert.False(t, ok)
		})
	}
}

func TestResolve_WaiterHonorsContext(t *testing.T) {
	cache := NewCache()
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	prompt := func(ctx context.Context, req PromptRequest) (ReviewDecision, error) {
		close(started)
		<-release
		return DecisionApproved, nil
	}

	req := PromptRequest{Command: []string{"make"}}
	go cache.Resolve(context.Background(), req, prompt)
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	decision, err := cache.Resolve(ctx, req, prompt)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, DecisionDenied, decision)
}
