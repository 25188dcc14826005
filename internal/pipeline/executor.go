// Package pipeline drives admitted bounties through the ordered stage chain
// Analysis -> Claim -> Submit -> Payment under a fixed-width admission
// semaphore.
package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"bountyhunter/internal/lifecycle"
	"bountyhunter/internal/models"
	"bountyhunter/internal/telemetry"
)

// Queue is the slice of the queue manager the executor needs.
type Queue interface {
	PopNext(ctx context.Context) (models.Bounty, bool, error)
	UpdateStatus(ctx context.Context, fingerprint string, status models.Status) error
}

// Stage is one unit of the chain: it performs its domain action and attempts
// exactly one lifecycle transition reflecting the outcome.
type Stage interface {
	Name() string
	// Expect is the post-condition status a successful run must leave the
	// bounty in; any other status halts the chain.
	Expect() models.Status
	Process(ctx context.Context, b *models.Bounty, m *lifecycle.Machine) (bool, error)
}

// TransitionArchiver persists transition history for audit, e.g. into the
// Postgres ledger.
type TransitionArchiver interface {
	ArchiveTransition(ctx context.Context, fingerprint string, rec models.TransitionRecord) error
}

// Executor owns the main processing loop.
type Executor struct {
	queue        Queue
	stages       []Stage
	hooks        *lifecycle.Hooks
	archive      TransitionArchiver
	width        int
	pollInterval time.Duration

	sem   chan struct{}
	tasks []chan struct{}
}

// Options configures the executor.
type Options struct {
	Width        int
	PollInterval time.Duration
	Hooks        *lifecycle.Hooks
	// Archiver receives the transition history after each chain. May be nil.
	Archiver TransitionArchiver
}

// NewExecutor builds an executor over the given queue and stage chain.
func NewExecutor(q Queue, stages []Stage, opts Options) *Executor {
	width := opts.Width
	if width <= 0 {
		width = 4
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 10 * time.Second
	}
	return &Executor{
		queue:        q,
		stages:       stages,
		hooks:        opts.Hooks,
		archive:      opts.Archiver,
		width:        width,
		pollInterval: poll,
		sem:          make(chan struct{}, width),
	}
}

// Run polls the queue until the context is cancelled. Cancellation is only
// observed at loop boundaries; already-spawned chains finish on their own and
// are not joined.
func (e *Executor) Run(ctx context.Context) error {
	log.Printf("pipeline: started width=%d poll=%s", e.width, e.pollInterval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("pipeline: stopping, %d chains still in flight", e.active())
			return ctx.Err()
		default:
		}

		e.prune()

		b, ok, err := e.queue.PopNext(ctx)
		if err != nil {
			log.Printf("pipeline: pop failed: %v", err)
			e.sleep(ctx)
			continue
		}
		if !ok {
			e.sleep(ctx)
			continue
		}

		done := make(chan struct{})
		e.tasks = append(e.tasks, done)
		// Chains outlive loop cancellation; give them a context that is not
		// cancelled with the loop.
		chainCtx := context.WithoutCancel(ctx)
		go func(b models.Bounty) {
			defer close(done)
			e.sem <- struct{}{}
			defer func() { <-e.sem }()
			telemetry.InFlightGauge.Inc()
			defer telemetry.InFlightGauge.Dec()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("pipeline: chain panicked for %s: %v", b.Fingerprint(), r)
				}
			}()
			e.processOne(chainCtx, b)
		}(b)
	}
}

func (e *Executor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(e.pollInterval):
	}
}

// prune drops finished chains from the tracking list.
func (e *Executor) prune() {
	kept := e.tasks[:0]
	for _, done := range e.tasks {
		select {
		case <-done:
		default:
			kept = append(kept, done)
		}
	}
	e.tasks = kept
}

func (e *Executor) active() int {
	n := 0
	for _, done := range e.tasks {
		select {
		case <-done:
		default:
			n++
		}
	}
	return n
}

// processOne runs a single bounty through the chain, halting at the first
// stage that fails or leaves the bounty outside its expected post-condition.
// Failures are isolated to this item.
func (e *Executor) processOne(ctx context.Context, b models.Bounty) {
	fp := b.Fingerprint()
	machine := lifecycle.NewMachine(&b, e.hooks)
	log.Printf("pipeline: processing [%s] %.45q", b.Source, b.Title)
	defer e.archiveHistory(ctx, fp, machine)

	for _, stage := range e.stages {
		before := b.Status
		ok, err := stage.Process(ctx, &b, machine)

		if b.Status != before {
			if uerr := e.queue.UpdateStatus(ctx, fp, b.Status); uerr != nil {
				log.Printf("pipeline: persist status %s for %s: %v", b.Status, fp, uerr)
			}
		}

		if err != nil {
			var te *lifecycle.TransitionError
			if errors.As(err, &te) {
				telemetry.InvalidTransitions.Inc()
				log.Printf("pipeline: %s stage attempted invalid transition for %s: %v", stage.Name(), fp, err)
			} else {
				log.Printf("pipeline: %s stage failed for %s: %v", stage.Name(), fp, err)
			}
			telemetry.StageFailure.WithLabelValues(stage.Name()).Inc()
			return
		}
		if !ok || b.Status != stage.Expect() {
			telemetry.StageFailure.WithLabelValues(stage.Name()).Inc()
			log.Printf("pipeline: halted at %s for %s (status %s)", stage.Name(), fp, b.Status)
			return
		}
		telemetry.StageSuccess.WithLabelValues(stage.Name()).Inc()
	}
	log.Printf("pipeline: chain completed for %s (status %s)", fp, b.Status)
}

// archiveHistory flushes the chain's transition records to the archiver.
// Archive failures never affect the chain outcome.
func (e *Executor) archiveHistory(ctx context.Context, fp string, m *lifecycle.Machine) {
	if e.archive == nil {
		return
	}
	for _, rec := range m.History() {
		if err := e.archive.ArchiveTransition(ctx, fp, rec); err != nil {
			log.Printf("pipeline: archive transition %s->%s for %s: %v", rec.From, rec.To, fp, err)
		}
	}
}
