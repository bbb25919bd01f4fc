package netcore

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// QueueCapacity is the fixed capacity of every interface RX/TX ring buffer.
const QueueCapacity = 32

// packetQueue is a bounded, single-producer/single-consumer FIFO of
// packets. Pushes beyond QueueCapacity overwrite the oldest unread entry
// rather than blocking the producer: a blocking producer here would stall
// a driver's read loop or a user goroutine behind a slow consumer.
type packetQueue struct {
	mu    sync.Mutex
	items [QueueCapacity]*Packet
	head  int
	count int

	sem *semaphore.Weighted
}

func newPacketQueue() *packetQueue {
	q := &packetQueue{sem: semaphore.NewWeighted(QueueCapacity)}
	// Weighted starts with all QueueCapacity units available; pop must
	// block until push Releases a unit per enqueued item, so drain it to
	// empty here rather than treating capacity as already-available data.
	if err := q.sem.Acquire(context.Background(), QueueCapacity); err != nil {
		panic(err)
	}
	return q
}

// push enqueues pkt and signals the consumer. Returns false if the queue
// was full and the oldest entry was dropped to make room.
func (q *packetQueue) push(pkt *Packet) bool {
	q.mu.Lock()
	overflowed := false
	if q.count == QueueCapacity {
		// Drop the oldest entry; the semaphore's count already
		// reflects it as available, so no Release is issued for the
		// evicted slot.
		q.head = (q.head + 1) % QueueCapacity
		q.count--
		overflowed = true
	}
	idx := (q.head + q.count) % QueueCapacity
	q.items[idx] = pkt
	q.count++
	q.mu.Unlock()

	if !overflowed {
		q.sem.Release(1)
	}
	return !overflowed
}

// pop blocks until a packet is available or ctx is cancelled.
func (q *packetQueue) pop(ctx context.Context) (*Packet, error) {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	pkt := q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % QueueCapacity
	q.count--
	return pkt, nil
}

// len reports the current queue depth. Never exceeds QueueCapacity.
func (q *packetQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
