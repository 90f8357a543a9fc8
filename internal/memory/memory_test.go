package memory

import (
	"fmt"
	"sync"
	"testing"
)

func TestConversationAppendOrder(t *testing.T) {
	t.Parallel()

	var c Conversation
	c.Append(RoleUser, "first")
	c.Append(RoleAssistant, "second")
	c.Append(RoleUser, "third")

	got := c.Messages()
	want := []Message{
		{RoleUser, "first"},
		{RoleAssistant, "second"},
		{RoleUser, "third"},
	}
	if len(got) != len(want) {
		t.Fatalf("Messages() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Messages()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestConversationUnindexedCursor(t *testing.T) {
	t.Parallel()

	var c Conversation
	c.Append(RoleUser, "a")
	c.Append(RoleAssistant, "b")
	c.Append(RoleUser, "c")

	if got := c.Unindexed(); len(got) != 3 {
		t.Fatalf("Unindexed() len = %d, want 3", len(got))
	}

	c.MarkIndexed(2)
	got := c.Unindexed()
	if len(got) != 1 || got[0] != "c" {
		t.Fatalf("Unindexed() after MarkIndexed(2) = %v, want [c]", got)
	}

	// Cursor never runs past the log end.
	c.MarkIndexed(10)
	if got := c.Unindexed(); len(got) != 0 {
		t.Fatalf("Unindexed() after over-advance = %v, want empty", got)
	}
}

func TestConversationTranscript(t *testing.T) {
	t.Parallel()

	var c Conversation
	if got := c.Transcript(); got != "" {
		t.Fatalf("empty Transcript() = %q, want empty", got)
	}

	c.Append(RoleUser, "show revenue")
	c.Append(RoleAssistant, "SELECT sum(amount) FROM orders")

	want := "user: show revenue\nassistant: SELECT sum(amount) FROM orders"
	if got := c.Transcript(); got != want {
		t.Fatalf("Transcript() = %q, want %q", got, want)
	}
}

func TestStoreLazyCreate(t *testing.T) {
	t.Parallel()

	s := NewStore(10, nil)
	c1 := s.Get("s1")
	if c1 == nil {
		t.Fatal("Get returned nil conversation")
	}
	c1.Append(RoleUser, "hello")

	if c2 := s.Get("s1"); c2 != c1 {
		t.Fatal("Get returned a different conversation for the same session")
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestStoreEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	s := NewStore(3, nil)
	for _, id := range []string{"a", "b", "c"} {
		s.Get(id).Append(RoleUser, "hi from "+id)
	}

	// Touch "a" so "b" becomes the coldest.
	s.Get("a")
	s.Get("d")

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if got := s.Get("a").Len(); got != 1 {
		t.Fatalf("session a lost its history: Len() = %d, want 1", got)
	}
	// "b" was evicted; a fresh empty conversation comes back.
	if got := s.Get("b").Len(); got != 0 {
		t.Fatalf("evicted session b returned stale history: Len() = %d", got)
	}
}

func TestStoreEvictionSkipsLockedSession(t *testing.T) {
	t.Parallel()

	s := NewStore(2, nil)

	// An in-flight request on "a" pins it; eviction pressure must fall on
	// the coldest unlocked session instead. Losing "a" mid-request would
	// give the next request on "a" a fresh mutex and run it concurrently.
	unlock := s.Lock("a")
	s.Get("a").Append(RoleUser, "first question")

	s.Get("b").Append(RoleUser, "hi from b")
	s.Get("c").Append(RoleUser, "hi from c")

	if got := s.Get("a").Len(); got != 1 {
		t.Fatalf("locked session a evicted: Len() = %d, want 1", got)
	}
	// "b" took the eviction as the coldest unlocked session.
	if got := s.Get("b").Len(); got != 0 {
		t.Fatalf("session b survived over the locked one: Len() = %d", got)
	}
	unlock()

	// Once released, "a" is evictable again.
	s.Get("d")
	s.Get("e")
	if got := s.Get("a").Len(); got != 0 {
		t.Fatalf("released session a still pinned: Len() = %d", got)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := NewStore(100, nil)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i%5)
			unlock := s.Lock(id)
			s.Get(id).Append(RoleUser, "msg")
			unlock()
		}()
	}
	wg.Wait()

	total := 0
	for i := range 5 {
		total += s.Get(fmt.Sprintf("s%d", i)).Len()
	}
	if total != 50 {
		t.Fatalf("total messages = %d, want 50", total)
	}
}

func TestStoreLockSerializesSession(t *testing.T) {
	t.Parallel()

	s := NewStore(10, nil)
	const n = 20

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("only")
			defer unlock()

			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			s.Get("only").Append(RoleUser, "x")

			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Fatalf("max in-flight requests on one session = %d, want 1", maxInFlight)
	}
	if got := s.Get("only").Len(); got != n {
		t.Fatalf("message count = %d, want %d", got, n)
	}
}
