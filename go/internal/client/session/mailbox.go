package session

import (
	"context"
	"sync"
)

// Mailbox hands controller output to a reader that may be slower than the
// event loop. Post never blocks: an unread state is replaced by the newer
// one, and notices accumulate until they are read so none is lost.
type Mailbox struct {
	mu      sync.Mutex
	state   Session
	notices []Notice
	full    bool

	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Post stores s and appends notices. It has the Observer signature.
func (m *Mailbox) Post(s Session, notices []Notice) {
	m.mu.Lock()
	m.state = s
	m.notices = append(m.notices, notices...)
	m.full = true
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Receive waits for the latest state and every notice posted since the
// previous Receive. It returns false once the mailbox is closed or ctx is
// done.
func (m *Mailbox) Receive(ctx context.Context) (Session, []Notice, bool) {
	for {
		select {
		case <-m.ready:
		case <-m.closed:
			return Session{}, nil, false
		case <-ctx.Done():
			return Session{}, nil, false
		}

		m.mu.Lock()
		if !m.full {
			m.mu.Unlock()
			continue
		}
		s, notices := m.state, m.notices
		m.notices = nil
		m.full = false
		m.mu.Unlock()
		return s, notices, true
	}
}

// Close wakes any Receive and makes later ones return false.
func (m *Mailbox) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}
