package observer

import (
	"context"
	"sync"

	"github.com/roach88/sqlitekit/internal/metrics"
)

// Event is one item delivered to a receiver: either a change or, when
// Lagged is non-zero, the number of changes the receiver missed.
type Event struct {
	Change TableChange
	Lagged uint64
}

// IsLagged reports whether the event is a lag marker.
func (e Event) IsLagged() bool {
	return e.Lagged > 0
}

// broadcast is a bounded multi-consumer ring. Every receiver sees every
// change sent after it subscribed, unless it falls more than len(buf)
// changes behind.
type broadcast struct {
	mu        sync.Mutex
	buf       []TableChange
	head      uint64 // sequence number of the next send
	receivers int
	closed    bool
	notify    chan struct{} // closed and replaced on every send
}

func newBroadcast(capacity int) *broadcast {
	return &broadcast{
		buf:    make([]TableChange, capacity),
		notify: make(chan struct{}),
	}
}

// send appends ch and wakes waiting receivers. It reports false, storing
// nothing, when there are no receivers.
func (b *broadcast) send(ch TableChange) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.receivers == 0 || b.closed {
		return false
	}
	b.buf[b.head%uint64(len(b.buf))] = ch
	b.head++
	close(b.notify)
	b.notify = make(chan struct{})
	return true
}

func (b *broadcast) subscribe() *Receiver {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receivers++
	return &Receiver{b: b, next: b.head}
}

func (b *broadcast) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
	b.notify = make(chan struct{})
}

// oldest returns the sequence number of the oldest retained change.
func (b *broadcast) oldest() uint64 {
	if n := uint64(len(b.buf)); b.head > n {
		return b.head - n
	}
	return 0
}

// Receiver reads changes from a Broker. A Receiver is not safe for
// concurrent use by multiple goroutines.
type Receiver struct {
	b      *broadcast
	next   uint64
	closed bool
}

// Recv blocks until a change is available, the receiver has lagged, ctx
// is done, or the broker is closed and drained.
func (r *Receiver) Recv(ctx context.Context) (Event, error) {
	for {
		ev, ok, wait, err := r.poll()
		if err != nil || ok {
			return ev, err
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-wait:
		}
	}
}

// TryRecv returns the next event without blocking. ok is false when
// nothing is pending.
func (r *Receiver) TryRecv() (ev Event, ok bool, err error) {
	ev, ok, _, err = r.poll()
	return ev, ok, err
}

func (r *Receiver) poll() (Event, bool, <-chan struct{}, error) {
	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if r.closed {
		return Event{}, false, nil, ErrReceiverClosed
	}
	if oldest := b.oldest(); r.next < oldest {
		missed := oldest - r.next
		r.next = oldest
		metrics.SubscriberLagTotal.Add(float64(missed))
		return Event{Lagged: missed}, true, nil, nil
	}
	if r.next < b.head {
		ch := b.buf[r.next%uint64(len(b.buf))]
		r.next++
		return Event{Change: ch}, true, nil, nil
	}
	if b.closed {
		return Event{}, false, nil, ErrClosed
	}
	return Event{}, false, b.notify, nil
}

// Close detaches the receiver. Changes published afterwards are not
// retained for it. Close is idempotent.
func (r *Receiver) Close() {
	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	b.receivers--
}
