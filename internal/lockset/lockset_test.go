package lockset

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tools.zach/dev/lockgate"
)

// openHandles opens n independent handles to one fresh file.
func openHandles(t *testing.T, n int) []*os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "set.lock")
	out := make([]*os.File, n)
	for i := range out {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			t.Fatalf("open handle %d: %v", i, err)
		}
		t.Cleanup(func() { f.Close() })
		out[i] = f
	}
	return out
}

func TestExclusiveExcludesAcrossHandles(t *testing.T) {
	h := openHandles(t, 2)
	s := New()

	held, err := s.Lock(h[0], lockgate.Exclusive)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := s.TryLock(h[1], lockgate.Exclusive); !errors.Is(err, lockgate.ErrWouldBlock) {
		t.Fatalf("TryLock while exclusive held = %v, want ErrWouldBlock", err)
	}
	if _, err := s.TryLock(h[1], lockgate.Shared); !errors.Is(err, lockgate.ErrWouldBlock) {
		t.Fatalf("TryLock shared while exclusive held = %v, want ErrWouldBlock", err)
	}

	if err := held.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	held2, err := s.TryLock(h[1], lockgate.Exclusive)
	if err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	if err := held2.Unlock(); err != nil {
		t.Fatalf("Unlock 2: %v", err)
	}
}

func TestSharedHoldersCoexist(t *testing.T) {
	h := openHandles(t, 3)
	s := New()

	a, err := s.Lock(h[0], lockgate.Shared)
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	b, err := s.TryLock(h[1], lockgate.Shared)
	if err != nil {
		t.Fatalf("TryLock b: %v", err)
	}
	if _, err := s.TryLock(h[2], lockgate.Exclusive); !errors.Is(err, lockgate.ErrWouldBlock) {
		t.Fatalf("TryLock exclusive alongside shared = %v, want ErrWouldBlock", err)
	}
	if err := a.Unlock(); err != nil {
		t.Fatalf("Unlock a: %v", err)
	}
	if err := b.Unlock(); err != nil {
		t.Fatalf("Unlock b: %v", err)
	}
}

func TestExclusiveWaiterBlocksLaterShared(t *testing.T) {
	h := openHandles(t, 3)
	s := New()

	first, err := s.Lock(h[0], lockgate.Shared)
	if err != nil {
		t.Fatalf("Lock shared: %v", err)
	}

	// Queue an exclusive acquirer behind the shared holder.
	var order []string
	var mu sync.Mutex
	record := func(who string) {
		mu.Lock()
		order = append(order, who)
		mu.Unlock()
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		held, err := s.Lock(h[1], lockgate.Exclusive)
		if err != nil {
			t.Errorf("exclusive Lock: %v", err)
			return
		}
		record("exclusive")
		held.Unlock()
	}()

	// Give the exclusive acquirer time to queue, then line a shared acquirer
	// up behind it. FIFO admission must hold it back even though it would be
	// compatible with the current shared holder.
	time.Sleep(50 * time.Millisecond)
	wg.Add(1)
	go func() {
		defer wg.Done()
		held, err := s.Lock(h[2], lockgate.Shared)
		if err != nil {
			t.Errorf("late shared Lock: %v", err)
			return
		}
		record("shared")
		held.Unlock()
	}()
	time.Sleep(50 * time.Millisecond)

	if _, err := s.TryLock(h[2], lockgate.Shared); !errors.Is(err, lockgate.ErrWouldBlock) {
		t.Errorf("TryLock shared behind a queued exclusive = %v, want ErrWouldBlock", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock first: %v", err)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "exclusive" || order[1] != "shared" {
		t.Errorf("grant order = %v, want [exclusive shared]", order)
	}
}

func TestUnlockTwice(t *testing.T) {
	h := openHandles(t, 1)
	s := New()
	held, err := s.Lock(h[0], lockgate.Exclusive)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := held.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := held.Unlock(); !errors.Is(err, lockgate.ErrNotHeld) {
		t.Fatalf("second Unlock = %v, want ErrNotHeld", err)
	}
}

func TestEntriesEvictedWhenIdle(t *testing.T) {
	h := openHandles(t, 1)
	s := New()
	held, err := s.Lock(h[0], lockgate.Shared)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := held.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	if n != 0 {
		t.Errorf("idle set retains %d entries, want 0", n)
	}
}

func TestPackageLevelSharedSet(t *testing.T) {
	h := openHandles(t, 2)
	held, err := Lock(h[0], lockgate.Exclusive)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := TryLock(h[1], lockgate.Exclusive); !errors.Is(err, lockgate.ErrWouldBlock) {
		t.Fatalf("TryLock on process-wide set = %v, want ErrWouldBlock", err)
	}
	if err := held.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}
