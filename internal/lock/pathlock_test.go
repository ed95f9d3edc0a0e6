package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPathLockerSerializesSameKey(t *testing.T) {
	t.Parallel()

	p := NewPathLocker()
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := p.Lock(context.Background(), "/data/out.txt")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxActive)
	}
	if held := p.Held("/data/out.txt"); held != 0 {
		t.Fatalf("Held after all released = %d, want 0", held)
	}
}

func TestPathLockerDifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()

	p := NewPathLocker()
	unlockA, err := p.Lock(context.Background(), "/data/a.txt")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := p.Lock(ctx, "/data/b.txt")
	if err != nil {
		t.Fatalf("Lock b should not wait on a: %v", err)
	}
	unlockB()
}

func TestPathLockerHonoursContext(t *testing.T) {
	t.Parallel()

	p := NewPathLocker()
	unlock, err := p.Lock(context.Background(), "/data/out.txt")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Lock(ctx, "/data/out.txt"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("waiting Lock error = %v, want DeadlineExceeded", err)
	}
	if held := p.Held("/data/out.txt"); held != 1 {
		t.Fatalf("Held = %d, want 1 after waiter gave up", held)
	}

	unlock()
	unlock()
	if held := p.Held("/data/out.txt"); held != 0 {
		t.Fatalf("Held = %d, want 0", held)
	}
}
