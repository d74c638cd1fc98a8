package service

import (
	"sync"
	"testing"
	"time"
)

func TestSubmissionLockTryAcquire(t *testing.T) {
	m := NewSubmissionLockManager(time.Minute)

	if !m.TryAcquire(1, 10) {
		t.Fatal("first acquire should succeed")
	}
	if m.TryAcquire(1, 10) {
		t.Fatal("second acquire on same key should fail")
	}
	// 不同试卷、不同学生互不影响
	if !m.TryAcquire(1, 11) {
		t.Error("different exam should get its own lock")
	}
	if !m.TryAcquire(2, 10) {
		t.Error("different user should get its own lock")
	}

	m.Release(1, 10)
	if !m.TryAcquire(1, 10) {
		t.Error("acquire after release should succeed")
	}
}

func TestSubmissionLockConcurrentAcquire(t *testing.T) {
	m := NewSubmissionLockManager(time.Minute)

	const workers = 50
	var wg sync.WaitGroup
	acquired := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.TryAcquire(7, 7) {
				acquired <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(acquired)

	count := 0
	for range acquired {
		count++
	}
	if count != 1 {
		t.Errorf("%d goroutines acquired the lock, want exactly 1", count)
	}
}

func TestSubmissionLockStaleTakeover(t *testing.T) {
	m := NewSubmissionLockManager(10 * time.Millisecond)

	if !m.TryAcquire(1, 1) {
		t.Fatal("first acquire should succeed")
	}
	if m.TryAcquire(1, 1) {
		t.Fatal("fresh lock must not be taken over")
	}

	time.Sleep(20 * time.Millisecond)
	if !m.TryAcquire(1, 1) {
		t.Error("stale lock should be taken over")
	}
}

func TestSubmissionLockSweepStale(t *testing.T) {
	m := NewSubmissionLockManager(10 * time.Millisecond)

	m.TryAcquire(1, 1)
	m.TryAcquire(2, 2)
	if got := m.Held(); got != 2 {
		t.Fatalf("held = %d, want 2", got)
	}

	time.Sleep(20 * time.Millisecond)
	m.TryAcquire(3, 3) // 新锁不应被清扫

	if removed := m.SweepStale(); removed != 2 {
		t.Errorf("swept %d locks, want 2", removed)
	}
	if got := m.Held(); got != 1 {
		t.Errorf("held after sweep = %d, want 1", got)
	}
}
