package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bountyhunter/internal/lifecycle"
	"bountyhunter/internal/models"
)

// memQueue is a minimal in-memory Queue for executor tests.
type memQueue struct {
	mu       sync.Mutex
	items    []models.Bounty
	statuses map[string]models.Status
}

func newMemQueue(items ...models.Bounty) *memQueue {
	return &memQueue{items: items, statuses: make(map[string]models.Status)}
}

func (q *memQueue) PopNext(context.Context) (models.Bounty, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return models.Bounty{}, false, nil
	}
	b := q.items[0]
	q.items = q.items[1:]
	return b, true, nil
}

func (q *memQueue) UpdateStatus(_ context.Context, fp string, status models.Status) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[fp] = status
	return nil
}

func (q *memQueue) statusOf(fp string) models.Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statuses[fp]
}

// recordStage counts executions and optionally performs the expected
// transition.
type recordStage struct {
	name    string
	expect  models.Status
	succeed bool
	runs    atomic.Int32
	block   time.Duration
	active  *atomic.Int32
	maxSeen *atomic.Int32
}

func (s *recordStage) Name() string          { return s.name }
func (s *recordStage) Expect() models.Status { return s.expect }

func (s *recordStage) Process(_ context.Context, b *models.Bounty, m *lifecycle.Machine) (bool, error) {
	s.runs.Add(1)
	if s.active != nil {
		cur := s.active.Add(1)
		for {
			seen := s.maxSeen.Load()
			if cur <= seen || s.maxSeen.CompareAndSwap(seen, cur) {
				break
			}
		}
		defer s.active.Add(-1)
	}
	if s.block > 0 {
		time.Sleep(s.block)
	}
	if !s.succeed {
		if err := m.Transition(models.StatusRejected, "stage refused"); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := m.Transition(s.expect, ""); err != nil {
		return false, err
	}
	return true, nil
}

func runUntilDrained(t *testing.T, e *Executor, q *memQueue, wait time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(done)
	}()
	time.Sleep(wait)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("executor did not observe cancellation")
	}
}

func TestChainHaltsAtFailedClaim(t *testing.T) {
	reward := 100.0
	b := models.Bounty{Source: "github", ExternalID: "1", Category: models.CategoryCode, RewardUSD: &reward, Status: models.StatusNew}
	q := newMemQueue(b)

	analysis := &recordStage{name: "analysis", expect: models.StatusAnalysed, succeed: true}
	claim := &recordStage{name: "claim", expect: models.StatusClaimed, succeed: false}
	submit := &recordStage{name: "submit", expect: models.StatusSubmitted, succeed: true}
	payment := &recordStage{name: "payment", expect: models.StatusPaid, succeed: true}

	e := NewExecutor(q, []Stage{analysis, claim, submit, payment}, Options{Width: 2, PollInterval: 5 * time.Millisecond})
	runUntilDrained(t, e, q, 100*time.Millisecond)

	if analysis.runs.Load() != 1 || claim.runs.Load() != 1 {
		t.Fatalf("analysis/claim runs = %d/%d, want 1/1", analysis.runs.Load(), claim.runs.Load())
	}
	if submit.runs.Load() != 0 || payment.runs.Load() != 0 {
		t.Fatalf("submit/payment ran after halted claim: %d/%d", submit.runs.Load(), payment.runs.Load())
	}
	if got := q.statusOf(b.Fingerprint()); got != models.StatusRejected {
		t.Fatalf("persisted status = %s, want rejected", got)
	}
}

func TestBoundedConcurrency(t *testing.T) {
	var items []models.Bounty
	for i := 0; i < 5; i++ {
		reward := 50.0
		items = append(items, models.Bounty{
			Source:     "github",
			ExternalID: string(rune('a' + i)),
			RewardUSD:  &reward,
			Status:     models.StatusNew,
		})
	}
	q := newMemQueue(items...)

	var active, maxSeen atomic.Int32
	stage := &recordStage{
		name:    "analysis",
		expect:  models.StatusAnalysed,
		succeed: true,
		block:   30 * time.Millisecond,
		active:  &active,
		maxSeen: &maxSeen,
	}

	e := NewExecutor(q, []Stage{stage}, Options{Width: 2, PollInterval: time.Millisecond})
	runUntilDrained(t, e, q, 300*time.Millisecond)

	if stage.runs.Load() != 5 {
		t.Fatalf("runs = %d, want all 5 items processed", stage.runs.Load())
	}
	if maxSeen.Load() > 2 {
		t.Fatalf("max concurrent chains = %d, want <= admission width 2", maxSeen.Load())
	}
}

func TestCompletedChainPersistsEachTransition(t *testing.T) {
	reward := 100.0
	b := models.Bounty{Source: "github", ExternalID: "1", RewardUSD: &reward, Status: models.StatusNew}
	q := newMemQueue(b)

	stages := []Stage{
		&recordStage{name: "analysis", expect: models.StatusAnalysed, succeed: true},
		&recordStage{name: "claim", expect: models.StatusClaimed, succeed: true},
		&recordStage{name: "submit", expect: models.StatusSubmitted, succeed: true},
		&recordStage{name: "payment", expect: models.StatusPaid, succeed: true},
	}
	e := NewExecutor(q, stages, Options{Width: 1, PollInterval: 5 * time.Millisecond})
	runUntilDrained(t, e, q, 100*time.Millisecond)

	if got := q.statusOf(b.Fingerprint()); got != models.StatusPaid {
		t.Fatalf("final persisted status = %s, want paid", got)
	}
}

// faultyStage panics for one marked item and succeeds for the rest.
type faultyStage struct {
	runs atomic.Int32
}

func (s *faultyStage) Name() string          { return "analysis" }
func (s *faultyStage) Expect() models.Status { return models.StatusAnalysed }

func (s *faultyStage) Process(_ context.Context, b *models.Bounty, m *lifecycle.Machine) (bool, error) {
	s.runs.Add(1)
	if b.ExternalID == "boom" {
		panic("collaborator blew up")
	}
	if err := m.Transition(models.StatusAnalysed, ""); err != nil {
		return false, err
	}
	return true, nil
}

func TestPanickingChainIsIsolated(t *testing.T) {
	reward := 100.0
	bad := models.Bounty{Source: "github", ExternalID: "boom", RewardUSD: &reward, Status: models.StatusNew}
	good := models.Bounty{Source: "github", ExternalID: "ok", RewardUSD: &reward, Status: models.StatusNew}
	q := newMemQueue(bad, good)

	stage := &faultyStage{}
	e := NewExecutor(q, []Stage{stage}, Options{Width: 1, PollInterval: time.Millisecond})
	runUntilDrained(t, e, q, 100*time.Millisecond)

	if stage.runs.Load() != 2 {
		t.Fatalf("runs = %d, want both items processed", stage.runs.Load())
	}
	if got := q.statusOf(good.Fingerprint()); got != models.StatusAnalysed {
		t.Fatalf("good item status = %s, want analysed after the panicking chain", got)
	}
}

// gatedStage blocks mid-chain until released and records whether its context
// was cancelled.
type gatedStage struct {
	entered   chan struct{}
	release   chan struct{}
	finished  chan struct{}
	sawCancel atomic.Bool
}

func (s *gatedStage) Name() string          { return "analysis" }
func (s *gatedStage) Expect() models.Status { return models.StatusAnalysed }

func (s *gatedStage) Process(ctx context.Context, b *models.Bounty, m *lifecycle.Machine) (bool, error) {
	close(s.entered)
	<-s.release
	if ctx.Err() != nil {
		s.sawCancel.Store(true)
	}
	defer close(s.finished)
	if err := m.Transition(models.StatusAnalysed, ""); err != nil {
		return false, err
	}
	return true, nil
}

func TestCancellationLeavesInFlightChainAlone(t *testing.T) {
	reward := 100.0
	b := models.Bounty{Source: "github", ExternalID: "1", RewardUSD: &reward, Status: models.StatusNew}
	q := newMemQueue(b)

	stage := &gatedStage{
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
		finished: make(chan struct{}),
	}
	e := NewExecutor(q, []Stage{stage}, Options{Width: 1, PollInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(loopDone)
	}()

	<-stage.entered
	cancel()
	select {
	case <-loopDone:
	case <-time.After(time.Second):
		t.Fatal("loop did not observe cancellation")
	}
	close(stage.release)

	select {
	case <-stage.finished:
	case <-time.After(time.Second):
		t.Fatal("in-flight chain did not run to completion")
	}
	if stage.sawCancel.Load() {
		t.Fatal("chain context was cancelled together with the loop")
	}
	if got := q.statusOf(b.Fingerprint()); got != models.StatusAnalysed {
		t.Fatalf("persisted status = %s, want analysed", got)
	}
}

type memArchiver struct {
	mu   sync.Mutex
	recs []models.TransitionRecord
}

func (a *memArchiver) ArchiveTransition(_ context.Context, _ string, rec models.TransitionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
	return nil
}

func TestArchiverReceivesChainHistory(t *testing.T) {
	reward := 100.0
	b := models.Bounty{Source: "github", ExternalID: "1", RewardUSD: &reward, Status: models.StatusNew}
	q := newMemQueue(b)

	archiver := &memArchiver{}
	stages := []Stage{
		&recordStage{name: "analysis", expect: models.StatusAnalysed, succeed: true},
		&recordStage{name: "claim", expect: models.StatusClaimed, succeed: true},
	}
	e := NewExecutor(q, stages, Options{Width: 1, PollInterval: 5 * time.Millisecond, Archiver: archiver})
	runUntilDrained(t, e, q, 100*time.Millisecond)

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	if len(archiver.recs) != 2 {
		t.Fatalf("archived %d records, want 2", len(archiver.recs))
	}
	if archiver.recs[0].To != models.StatusAnalysed || archiver.recs[1].To != models.StatusClaimed {
		t.Fatalf("archived order = %s, %s", archiver.recs[0].To, archiver.recs[1].To)
	}
}

func TestHooksFireOnStatusEntry(t *testing.T) {
	reward := 100.0
	b := models.Bounty{Source: "github", ExternalID: "1", RewardUSD: &reward, Status: models.StatusNew}
	q := newMemQueue(b)

	var notified atomic.Int32
	hooks := lifecycle.NewHooks()
	hooks.On(models.StatusClaimed, func(*models.Bounty) error {
		notified.Add(1)
		return nil
	})

	stages := []Stage{
		&recordStage{name: "analysis", expect: models.StatusAnalysed, succeed: true},
		&recordStage{name: "claim", expect: models.StatusClaimed, succeed: true},
	}
	e := NewExecutor(q, stages, Options{Width: 1, PollInterval: 5 * time.Millisecond, Hooks: hooks})
	runUntilDrained(t, e, q, 100*time.Millisecond)

	if notified.Load() != 1 {
		t.Fatalf("claim hook fired %d times, want 1", notified.Load())
	}
}
