package store

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "leadbot/cli/internal/errors"
	"leadbot/cli/internal/intent"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock { return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)} }

func testIntent(t *testing.T) intent.Intent {
	t.Helper()
	in, err := intent.NewValidator("salesforce", "Lead").Validate([]byte(
		`{"tool":"salesforce","action":"update","object":"Lead","filters":{"Name":"John Doe"},"fields":{"Status":"Qualified"}}`))
	require.NoError(t, err)
	return in
}

func TestStageFetchRoundTrip(t *testing.T) {
	s := New(Options{})
	in := testIntent(t)

	id, err := s.Stage("U1", in)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Fetch("U1", id)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	// Commands are scoped per user.
	_, err = s.Fetch("U2", id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, apperrors.NotFound, apperrors.KindOf(err))
}

func TestFetchAfterExpiryEvicts(t *testing.T) {
	clock := newClock()
	s := New(Options{TTL: 300 * time.Second, Now: clock.Now})

	id, err := s.Stage("U1", testIntent(t))
	require.NoError(t, err)

	clock.Advance(300 * time.Second)
	_, err = s.Fetch("U1", id)
	require.NoError(t, err, "still valid at exactly the TTL")

	clock.Advance(time.Second)
	_, err = s.Fetch("U1", id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsExpired(err))
	assert.Equal(t, 0, s.Sweep(), "fetch already evicted the entry")
	assert.Equal(t, 0, s.Len())
}

func TestSweep(t *testing.T) {
	clock := newClock()
	s := New(Options{TTL: time.Minute, Now: clock.Now})

	for i := 0; i < 3; i++ {
		_, err := s.Stage("U1", testIntent(t))
		require.NoError(t, err)
	}
	clock.Advance(30 * time.Second)
	fresh, err := s.Stage("U2", testIntent(t))
	require.NoError(t, err)

	clock.Advance(31 * time.Second)
	assert.Equal(t, 3, s.Sweep())
	assert.Equal(t, 0, s.Sweep(), "sweep is idempotent")

	_, err = s.Fetch("U2", fresh)
	assert.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestMarkExecutedIsIdempotentAndRetained(t *testing.T) {
	clock := newClock()
	s := New(Options{TTL: time.Minute, Now: clock.Now})
	id, err := s.Stage("U1", testIntent(t))
	require.NoError(t, err)

	_, err = s.Claim("U1", id)
	require.NoError(t, err)

	clock.Advance(50 * time.Second)
	s.MarkExecuted("U1", id)
	s.MarkExecuted("U1", id)
	s.MarkExecuted("U1", "unknown")

	cmd, err := s.Get("U1", id)
	require.NoError(t, err)
	assert.Equal(t, Executed, cmd.State)
	assert.Equal(t, clock.Now(), cmd.ExecutedAt)

	// Retained past the staging TTL so duplicates are recognisable.
	clock.Advance(30 * time.Second)
	_, err = s.Claim("U1", id)
	assert.ErrorIs(t, err, ErrAlreadyExecuted)

	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, s.Sweep())
}

func TestClaimRelease(t *testing.T) {
	s := New(Options{})
	id, err := s.Stage("U1", testIntent(t))
	require.NoError(t, err)

	_, err = s.Claim("U1", id)
	require.NoError(t, err)

	_, err = s.Claim("U1", id)
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, apperrors.AlreadyExecuted, apperrors.KindOf(err))

	s.Release("U1", id)
	_, err = s.Claim("U1", id)
	assert.NoError(t, err)
}

func TestSweepSkipsExecuting(t *testing.T) {
	clock := newClock()
	s := New(Options{TTL: time.Second, Now: clock.Now})
	id, err := s.Stage("U1", testIntent(t))
	require.NoError(t, err)
	_, err = s.Claim("U1", id)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	assert.Equal(t, 0, s.Sweep())
	s.MarkExecuted("U1", id)
	assert.Equal(t, 0, s.Sweep(), "retention starts at execution")
}

func TestDiscard(t *testing.T) {
	var sizes []int
	s := New(Options{OnChange: func(n int) { sizes = append(sizes, n) }})
	id, err := s.Stage("U1", testIntent(t))
	require.NoError(t, err)

	require.NoError(t, s.Discard("U1", id))
	err = s.Discard("U1", id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Fetch("U1", id)
	assert.True(t, stderrors.Is(err, ErrNotFound))
	assert.Equal(t, []int{1, 0}, sizes)
}

func TestDiscardKeepsExecuted(t *testing.T) {
	s := New(Options{})
	id, err := s.Stage("U1", testIntent(t))
	require.NoError(t, err)
	_, err = s.Claim("U1", id)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Discard("U1", id), ErrInFlight)
	s.MarkExecuted("U1", id)
	assert.ErrorIs(t, s.Discard("U1", id), ErrAlreadyExecuted)
	assert.Equal(t, 1, s.Len())
}

func TestConcurrentStageUniqueIDs(t *testing.T) {
	s := New(Options{})
	in := testIntent(t)

	const workers, perWorker = 16, 200
	ids := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := s.Stage("U1", in)
				assert.NoError(t, err)
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, workers*perWorker)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Equal(t, workers*perWorker, s.Len())
}

func TestConcurrentClaimSingleWinner(t *testing.T) {
	s := New(Options{})
	id, err := s.Stage("U1", testIntent(t))
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Claim("U1", id); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Options{TTL: time.Millisecond})
	_, err := s.Stage("U1", testIntent(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	swept := make(chan int, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, 5*time.Millisecond, func(n int) {
			select {
			case swept <- n:
			default:
			}
		})
	}()

	select {
	case n := <-swept:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
