// Package collect discovers bounties from external feeds. Each collector is a
// thin fetch-and-parse adapter; the orchestrator runs them concurrently and
// hands the flattened batch to the queue manager.
package collect

import (
	"context"
	"log"
	"sync"
	"time"

	"bountyhunter/internal/models"
	"bountyhunter/internal/queue"
	"bountyhunter/internal/telemetry"
)

// Collector is one external feed.
type Collector interface {
	Source() string
	Fetch(ctx context.Context) ([]models.Bounty, error)
}

// RunSummary reports one discovery cycle.
type RunSummary struct {
	Run        int
	Collectors int
	Found      int
	New        int
	Duplicates int
	Elapsed    time.Duration
}

// Orchestrator runs all collectors on a fixed interval and pushes results.
type Orchestrator struct {
	collectors []Collector
	queue      *queue.Manager
	interval   time.Duration
	runCount   int
}

// NewOrchestrator wires collectors to the queue. Interval defaults to 15m.
func NewOrchestrator(collectors []Collector, q *queue.Manager, interval time.Duration) *Orchestrator {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Orchestrator{collectors: collectors, queue: q, interval: interval}
}

// RunOnce executes one discovery cycle: all collectors in parallel, a single
// bulk push. A failing collector contributes nothing and is logged; it never
// aborts the cycle.
func (o *Orchestrator) RunOnce(ctx context.Context) (RunSummary, error) {
	o.runCount++
	start := time.Now()
	log.Printf("discovery: run #%d with %d collectors", o.runCount, len(o.collectors))

	results := make([][]models.Bounty, len(o.collectors))
	var wg sync.WaitGroup
	for i, c := range o.collectors {
		wg.Add(1)
		go func(i int, c Collector) {
			defer wg.Done()
			found, err := c.Fetch(ctx)
			if err != nil {
				log.Printf("discovery: [%s] collector failed: %v", c.Source(), err)
				return
			}
			log.Printf("discovery: [%s] found %d bounties", c.Source(), len(found))
			results[i] = found
		}(i, c)
	}
	wg.Wait()

	var all []models.Bounty
	for _, batch := range results {
		all = append(all, batch...)
	}
	telemetry.DiscoveredCounter.Add(float64(len(all)))

	stats, err := o.queue.PushMany(ctx, all)
	summary := RunSummary{
		Run:        o.runCount,
		Collectors: len(o.collectors),
		Found:      len(all),
		New:        stats.New,
		Duplicates: stats.Duplicates,
		Elapsed:    time.Since(start),
	}
	if err != nil {
		return summary, err
	}

	log.Printf("discovery: run #%d found=%d new=%d duplicates=%d elapsed=%s",
		summary.Run, summary.Found, summary.New, summary.Duplicates, summary.Elapsed.Round(time.Millisecond))
	return summary, nil
}

// Run repeats discovery cycles until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		if _, err := o.RunOnce(ctx); err != nil {
			// Registry unavailability is transient; keep the loop alive.
			log.Printf("discovery: cycle failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
