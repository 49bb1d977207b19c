package broadcast

import (
	"errors"
	"fmt"
	"sync"
)

const (
	// DefaultMaxLength is the default history bound.
	DefaultMaxLength = 1000

	// DefaultPurgeSize is the default number of oldest records evicted at once.
	DefaultPurgeSize = 100
)

// ErrNotEmpty is returned by [Broadcaster.Restore] once anything was published.
var ErrNotEmpty = errors.New("broadcaster already has history")

// Stats is a point-in-time view of a [Broadcaster].
type Stats struct {
	Buffered    int    `json:"buffered"`
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Evicted     uint64 `json:"evicted"`
	LastSeq     uint64 `json:"last_seq"`
}

// Broadcaster keeps a bounded history of records and fans every published
// record out to the registered subscriber queues.
//
// History and subscriber set are guarded by one mutex and change as a unit:
// a subscriber is replayed exactly the history that existed at registration
// and then receives every later publish, with nothing duplicated or skipped.
//
// When a publish pushes the history past maxLength, the oldest purgeSize
// records are dropped in one batch. Consumers replaying history must tolerate
// the resulting gaps.
type Broadcaster struct {
	mu          sync.Mutex
	history     []Entry
	subscribers map[*Queue]struct{}
	maxLength   int
	purgeSize   int
	seq         uint64
	evicted     uint64
}

// New creates a [Broadcaster].
//
// Returns an error unless 1 <= purgeSize <= maxLength.
func New(maxLength, purgeSize int) (*Broadcaster, error) {
	if maxLength < 1 {
		return nil, fmt.Errorf("max length must be positive, got %d", maxLength)
	}
	if purgeSize < 1 || purgeSize > maxLength {
		return nil, fmt.Errorf("purge size must be between 1 and %d, got %d", maxLength, purgeSize)
	}
	return &Broadcaster{
		history:     make([]Entry, 0, maxLength+1),
		subscribers: make(map[*Queue]struct{}),
		maxLength:   maxLength,
		purgeSize:   purgeSize,
	}, nil
}

// Publish delivers rec to every registered subscriber and appends it to the
// history, evicting a batch of the oldest records if the bound is exceeded.
// It returns the sequence number assigned to rec.
//
// Publish never waits for a consumer.
func (b *Broadcaster) Publish(rec Record) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	e := Entry{Seq: b.seq, Record: rec}

	for q := range b.subscribers {
		q.Push(e)
	}

	b.history = append(b.history, e)
	if len(b.history) > b.maxLength {
		n := b.purgeSize
		if n > len(b.history) {
			n = len(b.history)
		}
		kept := make([]Entry, 0, b.maxLength+1)
		b.history = append(kept, b.history[n:]...)
		b.evicted += uint64(n)
	}

	return e.Seq
}

// Subscribe registers q and replays the full current history into it, oldest
// first, before any record published afterwards.
//
// Subscribing a queue that is already registered is a no-op.
func (b *Broadcaster) Subscribe(q *Queue) {
	b.SubscribeAfter(q, 0)
}

// SubscribeAfter registers q and replays only the retained records whose
// sequence number is greater than after. Passing the value of [Stats] LastSeq
// yields a live-only subscription; passing the last sequence a client saw
// resumes it without duplicates. A cursor beyond the last assigned sequence
// number comes from an earlier process and replays the full history.
//
// Subscribing a queue that is already registered is a no-op.
func (b *Broadcaster) SubscribeAfter(q *Queue, after uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[q]; ok {
		return
	}
	b.subscribers[q] = struct{}{}
	if after > b.seq {
		after = 0
	}
	for _, e := range b.history {
		if e.Seq > after {
			q.Push(e)
		}
	}
}

// Unsubscribe removes q from the subscriber set. Removing a queue that is not
// registered is a no-op.
func (b *Broadcaster) Unsubscribe(q *Queue) {
	b.mu.Lock()
	delete(b.subscribers, q)
	b.mu.Unlock()
}

// History returns a copy of the retained records, oldest first.
func (b *Broadcaster) History() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Record, len(b.history))
	for i, e := range b.history {
		out[i] = e.Record
	}
	return out
}

// Restore seeds an unused broadcaster with records from an earlier run,
// keeping the newest maxLength of them.
//
// Returns [ErrNotEmpty] if anything has been published already.
func (b *Broadcaster) Restore(recs []Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seq != 0 {
		return ErrNotEmpty
	}
	if len(recs) > b.maxLength {
		recs = recs[len(recs)-b.maxLength:]
	}
	for _, rec := range recs {
		b.seq++
		b.history = append(b.history, Entry{Seq: b.seq, Record: rec})
	}
	return nil
}

// Stats returns counters describing the broadcaster.
func (b *Broadcaster) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Buffered:    len(b.history),
		Subscribers: len(b.subscribers),
		Published:   b.seq,
		Evicted:     b.evicted,
		LastSeq:     b.seq,
	}
}

// Limits returns the configured history bound and purge batch size.
func (b *Broadcaster) Limits() (maxLength, purgeSize int) {
	return b.maxLength, b.purgeSize
}
