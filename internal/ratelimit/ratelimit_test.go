package ratelimit

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

func TestAllowAfterFiveTriggers(t *testing.T) {
	c := New(0)
	if c.Limit() != DefaultLimit {
		t.Fatalf("limit = %d, want %d", c.Limit(), DefaultLimit)
	}
	for i := 0; i < DefaultLimit; i++ {
		if !c.Allow("u1") {
			t.Fatalf("allow returned false after %d triggers", i)
		}
		c.RecordTrigger("u1")
	}
	if c.Allow("u1") {
		t.Fatalf("expected u1 to be blocked after %d triggers", DefaultLimit)
	}
	if !c.Allow("u2") {
		t.Fatalf("untouched user must be allowed")
	}
	if got := c.Count("u1"); got != DefaultLimit {
		t.Fatalf("count = %d, want %d", got, DefaultLimit)
	}
}

func TestTryAcquireStopsAtLimit(t *testing.T) {
	c := New(2)
	if !c.TryAcquire("a") || !c.TryAcquire("a") {
		t.Fatalf("first two acquires must succeed")
	}
	if c.TryAcquire("a") {
		t.Fatalf("third acquire must fail")
	}
	if got := c.Count("a"); got != 2 {
		t.Fatalf("count = %d, want 2 (denied acquire must not increment)", got)
	}
}

func TestTryAcquireConcurrentLastSlot(t *testing.T) {
	c := New(DefaultLimit)
	for i := 0; i < DefaultLimit-1; i++ {
		c.RecordTrigger("u")
	}

	var granted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if c.TryAcquire("u") {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := granted.Load(); got != 1 {
		t.Fatalf("granted = %d, want exactly 1", got)
	}
	if got := c.Count("u"); got != DefaultLimit {
		t.Fatalf("count = %d, want %d", got, DefaultLimit)
	}
}

func TestStats(t *testing.T) {
	c := New(1)
	for i := 0; i < 3; i++ {
		c.TryAcquire("user" + strconv.Itoa(i))
	}
	c.RecordTrigger("user0")
	c.RecordTrigger("late")
	c.Allow("never")

	st := c.Stats()
	if st.Limit != 1 || st.Tracked != 4 || st.Exhausted != 4 {
		t.Fatalf("stats = %+v", st)
	}
}
