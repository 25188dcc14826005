// Package sched holds the in-process priority working set. It is not the
// durable record of intake; entries can go stale when an item advances through
// a path that bypasses the scheduler, and the consumer is expected to skip
// those on pop.
package sched

import (
	"container/heap"
	"sync"
	"time"

	"bountyhunter/internal/models"
)

// DefaultUrgencyWindow is how close a deadline must be to earn the bonus.
const DefaultUrgencyWindow = 48 * time.Hour

// DefaultUrgencyBonus is added to the priority key for urgent deadlines.
const DefaultUrgencyBonus = 100.0

// Entry pairs a bounty with the priority key computed at insertion time.
// Ordering compares the key only; insertedAt is carried for observability and
// deliberately excluded from comparison, so equal keys pop in heap order.
type Entry struct {
	Key        float64
	Bounty     models.Bounty
	InsertedAt time.Time
}

type entryHeap []Entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].Key > h[j].Key }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)         { *h = append(*h, x.(Entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Scheduler is a mutex-guarded max-heap of bounties ordered by priority key.
type Scheduler struct {
	mu            sync.Mutex
	entries       entryHeap
	urgencyWindow time.Duration
	urgencyBonus  float64
	now           func() time.Time
}

// Option adjusts scheduler construction.
type Option func(*Scheduler)

// WithUrgency overrides the urgency window and bonus.
func WithUrgency(window time.Duration, bonus float64) Option {
	return func(s *Scheduler) {
		s.urgencyWindow = window
		s.urgencyBonus = bonus
	}
}

// WithNow overrides the clock. Used by tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New builds an empty scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		urgencyWindow: DefaultUrgencyWindow,
		urgencyBonus:  DefaultUrgencyBonus,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	heap.Init(&s.entries)
	return s
}

// keyFor computes the priority key at insertion time: the USD reward plus the
// urgency bonus when a deadline falls inside the window.
func (s *Scheduler) keyFor(b models.Bounty) float64 {
	key := b.Reward()
	if b.Deadline != nil {
		left := b.Deadline.Sub(s.now())
		if left > 0 && left < s.urgencyWindow {
			key += s.urgencyBonus
		}
	}
	return key
}

// Insert adds a bounty to the working set.
func (s *Scheduler) Insert(b models.Bounty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.entries, Entry{Key: s.keyFor(b), Bounty: b, InsertedAt: s.now()})
}

// PopMax removes and returns the highest-keyed bounty, or ok=false when empty.
func (s *Scheduler) PopMax() (models.Bounty, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries.Len() == 0 {
		return models.Bounty{}, false
	}
	e := heap.Pop(&s.entries).(Entry)
	return e.Bounty, true
}

// Len reports the in-memory working-set size.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}
