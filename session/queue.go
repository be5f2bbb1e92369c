package session

import (
	"sync"

	"github.com/opd-ai/rtcsession/engine"
)

// eventQueue is an unbounded FIFO of engine events. push never blocks, so
// it is safe to call from engine callbacks on any goroutine.
type eventQueue struct {
	mu     sync.Mutex
	items  []engine.Event
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev engine.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain removes and returns all queued events in arrival order.
func (q *eventQueue) drain() []engine.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
