package conversation

import (
	"context"
	"sync"
)

// TurnLock serializes turns per conversation. Turns for the same key are
// admitted strictly in the order they were reserved; different keys
// never block each other.
type TurnLock struct {
	mu     sync.Mutex
	queues map[string][]chan struct{}
}

// NewTurnLock creates an empty lock table.
func NewTurnLock() *TurnLock {
	return &TurnLock{queues: make(map[string][]chan struct{})}
}

// Turn is a place in one conversation's queue.
type Turn struct {
	lock   *TurnLock
	key    string
	ticket chan struct{}
	once   sync.Once
}

// Reserve takes the next place in key's queue without blocking, so a
// caller can fix arrival order before handing the work to another
// goroutine. The turn must be released whether or not Wait succeeds.
func (l *TurnLock) Reserve(key string) *Turn {
	t := &Turn{lock: l, key: key, ticket: make(chan struct{})}

	l.mu.Lock()
	q := append(l.queues[key], t.ticket)
	l.queues[key] = q
	if len(q) == 1 {
		close(t.ticket)
	}
	l.mu.Unlock()
	return t
}

// Wait blocks until the turn is admitted or ctx ends. When ctx ends
// first the place is given up without disturbing the others.
func (t *Turn) Wait(ctx context.Context) error {
	select {
	case <-t.ticket:
		return nil
	case <-ctx.Done():
	}
	t.Release()
	return ctx.Err()
}

// Release ends the turn and admits the next waiter, or leaves the queue
// if the turn was never admitted. It is safe to call more than once.
func (t *Turn) Release() {
	t.once.Do(func() {
		l := t.lock
		l.mu.Lock()
		defer l.mu.Unlock()

		q := l.queues[t.key]
		for i, c := range q {
			if c != t.ticket {
				continue
			}
			q = append(q[:i:i], q[i+1:]...)
			if len(q) == 0 {
				delete(l.queues, t.key)
				return
			}
			l.queues[t.key] = q
			if i == 0 {
				close(q[0])
			}
			return
		}
	})
}

// Acquire reserves a turn for key and waits for it. The returned release
// function is safe to call more than once.
func (l *TurnLock) Acquire(ctx context.Context, key string) (release func(), err error) {
	t := l.Reserve(key)
	if err := t.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Release, nil
}

// Waiting returns the number of holders plus waiters for key.
func (l *TurnLock) Waiting(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues[key])
}
