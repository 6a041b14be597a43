package room

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerIdleFiresOnce(t *testing.T) {
	var commits atomic.Int32
	s := NewScheduler(40*time.Millisecond, 500*time.Millisecond, func(ctx context.Context) error {
		commits.Add(1)
		return nil
	})

	// A burst of mutations idle/2 apart, total well under max: exactly one
	// commit, after the burst settles.
	for i := 0; i < 4; i++ {
		s.Schedule()
		time.Sleep(20 * time.Millisecond)
	}
	require.Equal(t, int32(0), commits.Load())

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), commits.Load())
	require.False(t, s.Pending())
}

func TestSchedulerHardDeadlineUnderConstantLoad(t *testing.T) {
	var commits atomic.Int32
	s := NewScheduler(40*time.Millisecond, 120*time.Millisecond, func(ctx context.Context) error {
		commits.Add(1)
		return nil
	})

	// Mutations every idle/2 indefinitely: the idle timer never fires, but
	// the hard deadline bounds staleness.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		s.Schedule()
		time.Sleep(20 * time.Millisecond)
	}
	require.GreaterOrEqual(t, commits.Load(), int32(2))
	s.Cancel()
}

func TestSchedulerFlushNoWorkIsNoop(t *testing.T) {
	var commits atomic.Int32
	s := NewScheduler(time.Hour, time.Hour, func(ctx context.Context) error {
		commits.Add(1)
		return nil
	})
	require.NoError(t, s.Flush(context.Background()))
	require.Equal(t, int32(0), commits.Load())
}

func TestSchedulerFlushCommitsImmediately(t *testing.T) {
	var commits atomic.Int32
	s := NewScheduler(time.Hour, time.Hour, func(ctx context.Context) error {
		commits.Add(1)
		return nil
	})
	s.Schedule()
	require.NoError(t, s.Flush(context.Background()))
	require.Equal(t, int32(1), commits.Load())
	require.False(t, s.Pending())
}

func TestSchedulerConcurrentFlushCoalesces(t *testing.T) {
	var commits atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewScheduler(time.Hour, time.Hour, func(ctx context.Context) error {
		commits.Add(1)
		close(started)
		<-release
		return nil
	})
	s.Schedule()

	errs := make(chan error, 3)
	go func() { errs <- s.Flush(context.Background()) }()
	<-started
	go func() { errs <- s.Flush(context.Background()) }()
	go func() { errs <- s.Flush(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}
	require.Equal(t, int32(1), commits.Load())
}

func TestSchedulerFlushRerunsForWorkRecordedMidCommit(t *testing.T) {
	var commits atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewScheduler(time.Hour, time.Hour, func(ctx context.Context) error {
		if commits.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	})
	s.Schedule()

	first := make(chan error, 1)
	go func() { first <- s.Flush(context.Background()) }()
	<-started

	// Work recorded while the first commit is in flight: a flush arriving
	// now must not return until that work is committed too.
	s.Schedule()
	second := make(chan error, 1)
	go func() { second <- s.Flush(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-first)
	require.NoError(t, <-second)
	require.Equal(t, int32(2), commits.Load())
	require.False(t, s.Pending())
}

func TestSchedulerCancelDiscards(t *testing.T) {
	var commits atomic.Int32
	s := NewScheduler(20*time.Millisecond, 50*time.Millisecond, func(ctx context.Context) error {
		commits.Add(1)
		return nil
	})
	s.Schedule()
	s.Cancel()
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(0), commits.Load())
	require.False(t, s.Pending())
}
