package playback

import "sync"

// mailbox is an unbounded FIFO of work items. Pushing never blocks, so engine
// callbacks cannot stall on a busy loop.
type mailbox struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// push enqueues fn; it reports false once the mailbox is closed.
func (mb *mailbox) push(fn func()) bool {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return false
	}
	mb.items = append(mb.items, fn)
	mb.mu.Unlock()

	select {
	case mb.signal <- struct{}{}:
	default:
	}
	return true
}

func (mb *mailbox) drain() []func() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	items := mb.items
	mb.items = nil
	return items
}

// close refuses further pushes; items already queued are still delivered.
func (mb *mailbox) close() {
	mb.mu.Lock()
	mb.closed = true
	mb.mu.Unlock()

	select {
	case mb.signal <- struct{}{}:
	default:
	}
}

// run executes items in order until the mailbox is closed and empty.
func (mb *mailbox) run() {
	for range mb.signal {
		for _, fn := range mb.drain() {
			fn()
		}

		mb.mu.Lock()
		done := mb.closed && len(mb.items) == 0
		mb.mu.Unlock()
		if done {
			return
		}
	}
}
