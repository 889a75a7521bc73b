package services

import (
	"context"
	"sort"
	"sync"
	"time"
)

// goalLockTable serializes reconciliation per goal id. Each entry is a
// one-slot channel semaphore, refcounted so entries disappear when the last
// holder releases. Waiters time out after maxWait rather than queueing
// unboundedly.
type goalLockTable struct {
	mu      sync.Mutex
	locks   map[string]*goalLock
	maxWait time.Duration
}

type goalLock struct {
	sem  chan struct{}
	refs int
}

func newGoalLockTable(maxWait time.Duration) *goalLockTable {
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	return &goalLockTable{
		locks:   make(map[string]*goalLock),
		maxWait: maxWait,
	}
}

// Acquire blocks until the goal's lock is held, the wait bound elapses, or
// ctx is done. A timed-out wait is reported as ErrReconciliationConflict.
func (t *goalLockTable) Acquire(ctx context.Context, goalID string) error {
	t.mu.Lock()
	l, ok := t.locks[goalID]
	if !ok {
		l = &goalLock{sem: make(chan struct{}, 1)}
		t.locks[goalID] = l
	}
	l.refs++
	t.mu.Unlock()

	timer := time.NewTimer(t.maxWait)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-timer.C:
		t.drop(goalID)
		return ErrReconciliationConflict
	case <-ctx.Done():
		t.drop(goalID)
		return ctx.Err()
	}
}

// Release frees the goal's lock. Must pair with a successful Acquire.
func (t *goalLockTable) Release(goalID string) {
	t.mu.Lock()
	l := t.locks[goalID]
	t.mu.Unlock()
	if l == nil {
		return
	}
	<-l.sem
	t.drop(goalID)
}

// AcquireAll locks a set of goal ids in sorted order so two concurrent
// multi-goal operations can never deadlock. On failure it releases whatever
// it already holds.
func (t *goalLockTable) AcquireAll(ctx context.Context, goalIDs ...string) (release func(), err error) {
	ids := dedupSorted(goalIDs)
	held := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := t.Acquire(ctx, id); err != nil {
			for _, h := range held {
				t.Release(h)
			}
			return nil, err
		}
		held = append(held, id)
	}
	return func() {
		for _, h := range held {
			t.Release(h)
		}
	}, nil
}

func (t *goalLockTable) drop(goalID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.locks[goalID]
	if l == nil {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(t.locks, goalID)
	}
}

func dedupSorted(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i == 0 || id != out[i-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}
