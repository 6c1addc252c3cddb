package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubmit_OrderingHighBeforeLow(t *testing.T) {
	d := New()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	wg.Add(4)

	record := func(name string) Action {
		return func(ctx context.Context) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			wg.Done()
		}
	}

	// Submission order: (A,low), (B,high), (C,low), (D,high). All four are
	// queued before the consumer starts popping, matching the single
	// submission batch, before any are popped.
	d.Submit(record("A"), false)
	d.Submit(record("B"), true)
	d.Submit(record("C"), false)
	d.Submit(record("D"), true)

	go d.Run(ctx)

	waitOrTimeout(t, &wg, time.Second)
	cancel()

	want := []string{"D", "B", "A", "C"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSubmit_NonBlocking(t *testing.T) {
	d := New()
	// No Run() consumer started — Submit must still return immediately.
	done := make(chan struct{})
	go func() {
		d.Submit(func(ctx context.Context) {}, false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked with no consumer running")
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for all actions to run")
	}
}
