package room

import (
	"context"
	"sync"
	"time"
)

// Default commit debounce windows.
const (
	DefaultCommitIdle = 500 * time.Millisecond
	DefaultCommitMax  = 2 * time.Second
)

// CommitFunc persists the current document snapshot.
type CommitFunc func(ctx context.Context) error

// Scheduler debounces persistence commits behind two timers: an idle timer
// pushed out by every mutation, and a hard timer that is armed by the first
// mutation of a burst and never extended. A mutation is therefore durable
// within idle of the last mutation or max of the first, whichever is sooner.
//
// Commits are coalesced: at most one commit runs at a time, and every Flush
// caller waiting during a commit is unblocked by its completion.
type Scheduler struct {
	mu     sync.Mutex
	idle   time.Duration
	max    time.Duration
	commit CommitFunc

	idleTimer *time.Timer
	hardTimer *time.Timer
	pending   bool
	inFlight  bool
	waiters   []chan error
}

func NewScheduler(idle, max time.Duration, commit CommitFunc) *Scheduler {
	if idle <= 0 {
		idle = DefaultCommitIdle
	}
	if max <= 0 {
		max = DefaultCommitMax
	}
	return &Scheduler{idle: idle, max: max, commit: commit}
}

// Schedule marks work pending, restarts the idle timer, and arms the hard
// timer if none is running.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = true
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.idle, s.onTimer)
	if s.hardTimer == nil {
		s.hardTimer = time.AfterFunc(s.max, s.onTimer)
	}
}

func (s *Scheduler) onTimer() {
	_ = s.Flush(context.Background())
}

// Flush commits pending work. With nothing pending and no commit in flight
// it returns immediately. When a commit is already in flight the caller
// waits for it; if pending work was recorded after that commit started, the
// caller runs another pass so its own work is durable before Flush returns.
func (s *Scheduler) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.pending && !s.inFlight {
			s.mu.Unlock()
			return nil
		}
		ch := make(chan error, 1)
		s.waiters = append(s.waiters, ch)
		missedCommit := s.pending && s.inFlight
		if s.pending && !s.inFlight {
			s.pending = false
			s.stopTimersLocked()
			s.inFlight = true
			go s.runCommit()
		}
		s.mu.Unlock()

		select {
		case err := <-ch:
			if err != nil || !missedCommit {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) runCommit() {
	var err error
	if s.commit != nil {
		err = s.commit(context.Background())
	}

	s.mu.Lock()
	s.inFlight = false
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
}

// Cancel drops pending work and timers without committing. Shutdown paths
// that intentionally discard only; normal operation always flushes.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
	s.stopTimersLocked()
}

// Pending reports whether uncommitted work is marked.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending || s.inFlight
}

func (s *Scheduler) stopTimersLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	if s.hardTimer != nil {
		s.hardTimer.Stop()
		s.hardTimer = nil
	}
}
