package session

import (
	"sync"
	"testing"
	"time"
)

func TestSessionTryAcquireAndRelease(t *testing.T) {
	s := &Session{}

	// first acquire should succeed
	if !s.TryAcquire() {
		t.Error("first TryAcquire should succeed")
	}

	// second acquire should fail (already processing)
	if s.TryAcquire() {
		t.Error("second TryAcquire should fail")
	}

	// release and try again
	s.Release()

	if !s.TryAcquire() {
		t.Error("TryAcquire after Release should succeed")
	}
	s.Release()
}

func TestSessionQueue(t *testing.T) {
	s := &Session{}
	now := time.Now()

	// nothing queued: Next releases
	s.TryAcquire()
	if msg := s.Next(); msg != nil {
		t.Error("expected nil from empty queue")
	}

	s.TryAcquire()
	_, q1 := s.Offer("message 1", now, 2)
	_, q2 := s.Offer("message 2", now, 2)
	if !q1 || !q2 {
		t.Fatal("expected both messages to be queued")
	}

	if _, q := s.Offer("message 3", now, 2); q {
		t.Error("queue should reject messages past its limit")
	}

	if s.QueueLen() != 2 {
		t.Errorf("expected queue length 2, got %d", s.QueueLen())
	}

	// FIFO
	msg1 := s.Next()
	if msg1 == nil || msg1.Text != "message 1" {
		t.Errorf("first dequeue mismatch: %+v", msg1)
	}

	msg2 := s.Next()
	if msg2 == nil || msg2.Text != "message 2" {
		t.Errorf("second dequeue mismatch: %+v", msg2)
	}

	if s.QueueLen() != 0 {
		t.Errorf("expected queue length 0 after dequeue, got %d", s.QueueLen())
	}
}

func TestSessionOfferAndNext(t *testing.T) {
	s := &Session{}
	now := time.Now()

	if acquired, _ := s.Offer("first", now, 1); !acquired {
		t.Fatal("first Offer should acquire")
	}
	if acquired, queued := s.Offer("second", now, 1); acquired || !queued {
		t.Fatalf("second Offer should queue, got acquired=%v queued=%v", acquired, queued)
	}
	if acquired, queued := s.Offer("third", now, 1); acquired || queued {
		t.Fatalf("third Offer should be rejected, got acquired=%v queued=%v", acquired, queued)
	}

	p := s.Next()
	if p == nil || p.Text != "second" {
		t.Fatalf("expected queued message, got %+v", p)
	}
	if s.TryAcquire() {
		t.Error("session should stay held while a queued message is handed over")
	}

	if p := s.Next(); p != nil {
		t.Fatalf("expected empty queue, got %+v", p)
	}
	if acquired, _ := s.Offer("fourth", now, 1); !acquired {
		t.Error("Offer after the last Next should acquire")
	}
}

func TestSessionOfferNeverStrands(t *testing.T) {
	for range 200 {
		s := &Session{}
		now := time.Now()
		s.Offer("holder", now, 0)

		var wg sync.WaitGroup
		var stranded bool
		wg.Add(2)
		go func() {
			defer wg.Done()
			for s.Next() != nil {
			}
		}()
		go func() {
			defer wg.Done()
			if acquired, _ := s.Offer("late", now, 0); acquired {
				s.Release()
			}
		}()
		wg.Wait()

		s.mu.Lock()
		stranded = !s.busy && len(s.queue) > 0
		s.mu.Unlock()
		if stranded {
			t.Fatal("message left queued on a released session")
		}
	}
}

func TestStoreGetCreatesSession(t *testing.T) {
	store := NewStore(0)

	sess1 := store.Get("telegram:123")
	if sess1 == nil {
		t.Fatal("Get should create new session")
	}

	// same ID should return same session
	sess2 := store.Get("telegram:123")
	if sess1 != sess2 {
		t.Error("Get should return same session for same ID")
	}
}

func TestStoreGetDifferentSessions(t *testing.T) {
	store := NewStore(0)

	sess1 := store.Get("telegram:111")
	sess2 := store.Get("discord:222")

	if sess1 == sess2 {
		t.Error("different IDs should get different sessions")
	}

	if !sess1.TryAcquire() {
		t.Fatal("acquire session 1")
	}
	defer sess1.Release()

	if !sess2.TryAcquire() {
		t.Error("a busy conversation must not block another")
	}
	sess2.Release()
}

func TestStoreOfferRespectsLimit(t *testing.T) {
	store := NewStore(1)

	if _, acquired, _ := store.Offer("telegram:1", "first"); !acquired {
		t.Fatal("first message should acquire")
	}
	if _, _, queued := store.Offer("telegram:1", "second"); !queued {
		t.Fatal("second message should be queued")
	}
	if _, _, queued := store.Offer("telegram:1", "third"); queued {
		t.Error("third message should overflow")
	}
	if store.Get("telegram:1").QueueLen() != 1 {
		t.Error("expected one queued message")
	}
}

func TestStoreConcurrentGet(t *testing.T) {
	store := NewStore(0)
	var wg sync.WaitGroup
	sessions := make(chan *Session, 100)

	// concurrent gets for same session
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := store.Get("shared:session")
			sessions <- sess
		}()
	}

	wg.Wait()
	close(sessions)

	// all should be the same session
	var first *Session
	for sess := range sessions {
		if first == nil {
			first = sess
		} else if sess != first {
			t.Error("concurrent Get returned different sessions for same ID")
		}
	}
}

func TestStoreSweep(t *testing.T) {
	store := NewStore(0)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	store.Get("idle")
	busy := store.Get("busy")
	queued := store.Get("queued")
	queued.Offer("now", clock, 0)
	queued.Offer("later", clock, 0)
	queued.Release()

	if !busy.TryAcquire() {
		t.Fatal("acquire busy")
	}
	defer busy.Release()

	clock = clock.Add(2 * time.Hour)
	store.Get("fresh")

	if n := store.Sweep(time.Hour); n != 1 {
		t.Errorf("expected 1 session swept, got %d", n)
	}
	if store.Len() != 3 {
		t.Errorf("expected 3 sessions left, got %d", store.Len())
	}
}
