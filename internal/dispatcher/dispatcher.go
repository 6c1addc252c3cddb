// Package dispatcher implements the Priority Dispatcher (C5): a
// single-consumer executor over a two-class priority queue, grounded on the
// asyncio.PriorityQueue + single consumer loop pattern of
// DeviceCmdRunner/QueueRunner (rs232tripplite.py/rs232topdu.py). The queue
// itself is a container/heap min-heap — no third-party priority-queue
// library appears anywhere in the example pack, so stdlib is the correct
// idiom here.
package dispatcher

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
)

// Action is the unit of work a submission carries. It runs to completion on
// the dispatcher's single consumer goroutine before the next item is popped.
type Action func(ctx context.Context)

// item is one entry in the priority heap.
type item struct {
	priorityKey int64
	seq         uint64
	action      Action
}

// queue implements heap.Interface, ordering ascending by (priorityKey, seq).
type queue []*item

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].priorityKey != q[j].priorityKey {
		return q[i].priorityKey < q[j].priorityKey
	}
	return q[i].seq < q[j].seq
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(*item)) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

// Dispatcher serialises submitted Actions: exactly one is in flight at any
// time, process-wide. Submit never blocks and never rejects.
type Dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	q       queue
	counter uint64 // process-wide monotonically increasing submission counter n
	closed  bool

	done chan struct{}
}

// New constructs a Dispatcher. Run must be called (typically in its own
// goroutine) to start the single consumer loop.
func New() *Dispatcher {
	d := &Dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Submit enqueues action non-blocking. highPriority selects the priority
// class: the key stored is -n for high priority, +n for low, where n is a
// process-wide monotonic counter incremented on every submission. Min-heap
// ordering over (key, seq) then yields: all high-priority items before all
// low-priority items present at pop time; high-priority items newest-first;
// low-priority items oldest-first (FIFO). This exact ordering is relied on
// by tests — do not change the key derivation.
func (d *Dispatcher) Submit(action Action, highPriority bool) {
	n := atomic.AddUint64(&d.counter, 1)

	var key int64
	if highPriority {
		key = -int64(n)
	} else {
		key = int64(n)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	heap.Push(&d.q, &item{priorityKey: key, seq: n, action: action})
	d.cond.Signal()
}

// Run is the single consumer loop: it pops the minimum-priority item and
// runs its action to completion before popping the next. It returns when
// ctx is cancelled and the queue has been drained of the item currently
// being waited on (pending items are simply never popped again).
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	// stopper wakes the blocked consumer when ctx is cancelled.
	stopCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.closed = true
			d.cond.Broadcast()
			d.mu.Unlock()
		case <-stopCh:
		}
	}()
	defer close(stopCh)

	for {
		d.mu.Lock()
		for d.q.Len() == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.q.Len() == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		it := heap.Pop(&d.q).(*item)
		d.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		it.action(ctx)
	}
}

// Done returns a channel closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
