package broadcast

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func rec(level int, text string) Record {
	return Record{Timestamp: 1, Level: level, Segments: []Segment{{Text: text}}}
}

// drain pops everything currently queued without blocking.
func drain(q *Queue) []Entry {
	var out []Entry
	for {
		e, ok := q.TryPop()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		maxLength int
		purgeSize int
		wantErr   bool
	}{
		{"defaults", DefaultMaxLength, DefaultPurgeSize, false},
		{"purge equals max", 10, 10, false},
		{"zero max", 0, 1, true},
		{"zero purge", 10, 0, true},
		{"purge above max", 10, 11, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.maxLength, tt.purgeSize)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%d, %d) error = %v, wantErr %v", tt.maxLength, tt.purgeSize, err, tt.wantErr)
			}
			if err == nil && b == nil {
				t.Fatal("New() = nil without error")
			}
		})
	}
}

func TestPublish_BufferBound(t *testing.T) {
	b, _ := New(10, 3)

	for i := 0; i < 100; i++ {
		b.Publish(rec(800, fmt.Sprint(i)))
		if got := b.Stats().Buffered; got > 10 {
			t.Fatalf("after publish %d: buffered = %d, want <= 10", i, got)
		}
	}
}

func TestPublish_EvictsOldestBatchInOrder(t *testing.T) {
	b, _ := New(5, 2)

	for i := 0; i < 5; i++ {
		b.Publish(rec(800, fmt.Sprint(i)))
	}
	if got := len(b.History()); got != 5 {
		t.Fatalf("History() len = %d, want 5", got)
	}

	// sixth publish exceeds the bound and evicts exactly two
	b.Publish(rec(800, "5"))

	hist := b.History()
	want := []string{"2", "3", "4", "5"}
	if len(hist) != len(want) {
		t.Fatalf("History() len = %d, want %d", len(hist), len(want))
	}
	for i, w := range want {
		if hist[i].Text() != w {
			t.Errorf("History()[%d] = %q, want %q", i, hist[i].Text(), w)
		}
	}
	if got := b.Stats().Evicted; got != 2 {
		t.Errorf("Stats().Evicted = %d, want 2", got)
	}
}

func TestSubscribe_ReplaysHistoryThenLive(t *testing.T) {
	b, _ := New(1000, 100)
	b.Publish(rec(800, "a"))
	b.Publish(rec(800, "b"))

	q := NewQueue()
	b.Subscribe(q)

	b.Publish(rec(800, "c"))
	b.Publish(rec(800, "d"))

	got := drain(q)
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("received %d entries, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Text() != w {
			t.Errorf("entry %d = %q, want %q", i, got[i].Text(), w)
		}
		if got[i].Seq != uint64(i+1) {
			t.Errorf("entry %d seq = %d, want %d", i, got[i].Seq, i+1)
		}
	}
}

func TestSubscribe_ReplayAfterEviction(t *testing.T) {
	b, _ := New(3, 2)
	for i := 0; i < 4; i++ {
		b.Publish(rec(800, fmt.Sprint(i)))
	}

	q := NewQueue()
	b.Subscribe(q)

	got := drain(q)
	if len(got) != 2 || got[0].Text() != "2" || got[1].Text() != "3" {
		t.Fatalf("replay = %v, want [2 3]", got)
	}
}

func TestSubscribe_TwiceDoesNotDuplicate(t *testing.T) {
	b, _ := New(10, 1)
	b.Publish(rec(800, "a"))

	q := NewQueue()
	b.Subscribe(q)
	b.Subscribe(q)
	b.Publish(rec(800, "b"))

	if got := len(drain(q)); got != 2 {
		t.Errorf("received %d entries, want 2", got)
	}
	if got := b.Stats().Subscribers; got != 1 {
		t.Errorf("Stats().Subscribers = %d, want 1", got)
	}
}

func TestSubscribeAfter_LiveOnly(t *testing.T) {
	b, _ := New(1000, 100)

	b.Publish(rec(600, "warning"))

	q := NewQueue()
	b.SubscribeAfter(q, b.Stats().LastSeq)

	b.Publish(rec(800, "info"))

	got := drain(q)
	if len(got) != 1 {
		t.Fatalf("received %d entries, want 1", len(got))
	}
	if got[0].Level != 800 {
		t.Errorf("received level %d, want 800", got[0].Level)
	}
}

func TestSubscribeAfter_Resume(t *testing.T) {
	b, _ := New(1000, 100)
	for i := 0; i < 5; i++ {
		b.Publish(rec(800, fmt.Sprint(i)))
	}

	q := NewQueue()
	b.SubscribeAfter(q, 3)

	got := drain(q)
	if len(got) != 2 || got[0].Seq != 4 || got[1].Seq != 5 {
		t.Fatalf("resume replay = %+v, want seqs [4 5]", got)
	}
}

func TestSubscribeAfter_UnknownCursorReplaysAll(t *testing.T) {
	b, _ := New(1000, 100)
	for i := 0; i < 3; i++ {
		b.Publish(rec(800, fmt.Sprint(i)))
	}

	q := NewQueue()
	b.SubscribeAfter(q, 500)

	got := drain(q)
	if len(got) != 3 || got[0].Seq != 1 || got[2].Seq != 3 {
		t.Fatalf("replay for unknown cursor = %+v, want seqs [1 2 3]", got)
	}

	b.Publish(rec(800, "next"))
	if got := drain(q); len(got) != 1 || got[0].Seq != 4 {
		t.Errorf("live delivery after unknown cursor = %+v, want seq 4", got)
	}
}

func TestNoCrossTalk(t *testing.T) {
	b, _ := New(1000, 100)

	qa := NewQueue()
	qb := NewQueue()

	b.Subscribe(qa)
	b.Publish(rec(800, "only-a"))

	if got := qb.Len(); got != 0 {
		t.Errorf("unregistered queue received %d entries", got)
	}

	drain(qa)
	b.Unsubscribe(qa)
	b.Publish(rec(800, "after-unsubscribe"))

	if got := qa.Len(); got != 0 {
		t.Errorf("unsubscribed queue received %d entries", got)
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	b, _ := New(10, 1)
	q := NewQueue()

	// unknown queue
	b.Unsubscribe(q)

	b.Subscribe(q)
	b.Unsubscribe(q)
	b.Unsubscribe(q)

	if got := b.Stats().Subscribers; got != 0 {
		t.Errorf("Stats().Subscribers = %d, want 0", got)
	}
}

func TestRestore(t *testing.T) {
	b, _ := New(3, 1)

	if err := b.Restore([]Record{rec(800, "0"), rec(800, "1"), rec(800, "2"), rec(800, "3")}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	hist := b.History()
	if len(hist) != 3 || hist[0].Text() != "1" {
		t.Fatalf("History() = %v, want newest three", hist)
	}

	b.Publish(rec(800, "4"))
	if err := b.Restore([]Record{rec(800, "x")}); err != ErrNotEmpty {
		t.Errorf("Restore() after publish error = %v, want ErrNotEmpty", err)
	}
}

// TestConcurrent_PerSubscriberOrder registers subscribers while publishers run
// and checks that every subscriber sees a gap-free, strictly increasing
// sequence from its first entry onward.
func TestConcurrent_PerSubscriberOrder(t *testing.T) {
	b, _ := New(10000, 100)

	const publishers = 4
	const perPublisher = 500

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				b.Publish(rec(800, fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}

	queues := make([]*Queue, 8)
	for i := range queues {
		queues[i] = NewQueue()
		b.Subscribe(queues[i])
		time.Sleep(time.Millisecond)
	}

	wg.Wait()

	total := uint64(publishers * perPublisher)
	for i, q := range queues {
		got := drain(q)
		if len(got) == 0 {
			t.Fatalf("queue %d received nothing", i)
		}
		if got[0].Seq != 1 {
			t.Errorf("queue %d first seq = %d, want 1 (full replay)", i, got[0].Seq)
		}
		for j := 1; j < len(got); j++ {
			if got[j].Seq != got[j-1].Seq+1 {
				t.Fatalf("queue %d: seq %d followed by %d", i, got[j-1].Seq, got[j].Seq)
			}
		}
		if last := got[len(got)-1].Seq; last != total {
			t.Errorf("queue %d last seq = %d, want %d", i, last, total)
		}
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue()

	done := make(chan Entry, 1)
	go func() {
		e, err := q.Pop(context.Background())
		if err != nil {
			t.Errorf("Pop() error = %v", err)
		}
		done <- e
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(Entry{Seq: 7, Record: rec(800, "x")})

	select {
	case e := <-done:
		if e.Seq != 7 {
			t.Errorf("Pop() seq = %d, want 7", e.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() did not return after Push")
	}
}

func TestQueue_PopContextCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Pop(ctx); err != context.DeadlineExceeded {
		t.Errorf("Pop() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue()
	q.Push(Entry{Seq: 1})
	q.Close()
	q.Close()
	q.Push(Entry{Seq: 2})

	e, err := q.Pop(context.Background())
	if err != nil || e.Seq != 1 {
		t.Fatalf("Pop() = %v, %v; want seq 1", e.Seq, err)
	}
	if _, err := q.Pop(context.Background()); err != ErrQueueClosed {
		t.Errorf("Pop() on drained closed queue error = %v, want ErrQueueClosed", err)
	}
}
