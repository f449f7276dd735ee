package client

import (
	"sync"

	"parlor/internal/session"
)

// opQueue is the client's unbounded outbound queue. Pushing never
// blocks, whatever the run loop is doing; the wake channel lets the
// loop park until new work arrives.
type opQueue struct {
	mu    sync.Mutex
	items []session.Command
	wake  chan struct{}
}

func newOpQueue() *opQueue {
	return &opQueue{wake: make(chan struct{}, 1)}
}

func (q *opQueue) push(cmd session.Command) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop removes the oldest queued command. ok is false when the queue is
// empty.
func (q *opQueue) pop() (cmd session.Command, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return session.Command{}, false
	}
	cmd = q.items[0]
	q.items = q.items[1:]
	return cmd, true
}
