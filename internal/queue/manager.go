// Package queue composes the membership filter, the durable registry, and the
// priority scheduler into the single intake/egress surface producers and the
// pipeline talk to.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"bountyhunter/internal/bloom"
	"bountyhunter/internal/models"
	"bountyhunter/internal/registry"
	"bountyhunter/internal/sched"
	"bountyhunter/internal/telemetry"
)

// ErrEmptyFingerprint is returned by Push before any state is touched.
var ErrEmptyFingerprint = errors.New("bounty has an empty fingerprint")

// PushStats summarizes a bulk push.
type PushStats struct {
	New        int `json:"new"`
	Duplicates int `json:"duplicates"`
}

// Stats is the operator-facing snapshot of the queue.
type Stats struct {
	TotalReceived int   `json:"total_received"`
	Admitted      int   `json:"admitted"`
	Duplicates    int   `json:"duplicates"`
	HeapSize      int   `json:"heap_size"`
	FilterCount   int   `json:"filter_count"`
	IntakeDepth   int64 `json:"intake_depth"`
}

// Manager owns the intake path. All methods are safe for concurrent use; the
// push sequence itself is made idempotent by the registry's conditional Put.
type Manager struct {
	filter   *bloom.Filter
	registry *registry.Registry
	sched    *sched.Scheduler

	mu            sync.Mutex
	totalReceived int
	admitted      int
	duplicates    int
}

// NewManager wires the three collaborators together.
func NewManager(filter *bloom.Filter, reg *registry.Registry, scheduler *sched.Scheduler) *Manager {
	return &Manager{filter: filter, registry: reg, sched: scheduler}
}

// Restore replays the durable fingerprint set into the membership filter.
// Called once at process start before any Push.
func (m *Manager) Restore(ctx context.Context) error {
	seen, err := m.registry.SeenFingerprints(ctx)
	if err != nil {
		return fmt.Errorf("restore filter: %w", err)
	}
	m.filter.Restore(seen)
	telemetry.FilterCountGauge.Set(float64(m.filter.Count()))
	log.Printf("queue: restored %d fingerprints into the membership filter", len(seen))
	return nil
}

// Push admits a bounty. It returns true when newly admitted, false for a
// duplicate. Registry errors propagate: the caller must treat them as
// retryable rather than silently dropping the item.
func (m *Manager) Push(ctx context.Context, b models.Bounty) (bool, error) {
	fp := b.Fingerprint()
	if b.Source == "" || b.ExternalID == "" {
		return false, ErrEmptyFingerprint
	}

	m.mu.Lock()
	m.totalReceived++
	m.mu.Unlock()

	// A positive filter answer is only a hint: fall through to the
	// authoritative check so false positives never drop real bounties.
	inFilter := m.filter.ProbablyContains(fp)

	exists, err := m.registry.Exists(ctx, fp)
	if err != nil {
		return false, err
	}
	if exists {
		if !inFilter {
			// Self-heal a filter miss, e.g. after an incomplete replay.
			m.filter.Add(fp)
			telemetry.FilterCountGauge.Set(float64(m.filter.Count()))
		}
		m.markDuplicate()
		return false, nil
	}

	if b.Status == "" {
		b.Status = models.StatusNew
	}
	created, err := m.registry.Put(ctx, fp, b, models.StatusNew)
	if err != nil {
		return false, err
	}
	if !created {
		// A concurrent push won the conditional write.
		m.filter.Add(fp)
		m.markDuplicate()
		return false, nil
	}

	if err := m.registry.AppendIntake(ctx, models.IntakeEvent{
		Fingerprint: fp,
		Source:      b.Source,
		Title:       b.Title,
		RewardUSD:   b.Reward(),
		Category:    string(b.Category),
	}); err != nil {
		return false, err
	}
	if err := m.registry.RegisterFingerprint(ctx, fp); err != nil {
		return false, err
	}
	m.filter.Add(fp)
	m.sched.Insert(b)

	m.mu.Lock()
	m.admitted++
	m.mu.Unlock()
	telemetry.AdmittedCounter.Inc()
	telemetry.FilterCountGauge.Set(float64(m.filter.Count()))
	telemetry.HeapSizeGauge.Set(float64(m.sched.Len()))

	log.Printf("queue: admitted [%s] %.60q $%g", b.Source, b.Title, b.Reward())
	return true, nil
}

func (m *Manager) markDuplicate() {
	m.mu.Lock()
	m.duplicates++
	m.mu.Unlock()
	telemetry.DuplicateCounter.Inc()
}

// PushMany pushes a batch and reports how many were new vs duplicates.
// A per-item registry failure counts the item as neither and is logged.
func (m *Manager) PushMany(ctx context.Context, bounties []models.Bounty) (PushStats, error) {
	var stats PushStats
	for _, b := range bounties {
		added, err := m.Push(ctx, b)
		if err != nil {
			if errors.Is(err, ErrEmptyFingerprint) {
				log.Printf("queue: rejected bounty with empty fingerprint from %q", b.Source)
				continue
			}
			return stats, err
		}
		if added {
			stats.New++
		} else {
			stats.Duplicates++
		}
	}
	return stats, nil
}

// PopNext returns the highest-priority live bounty, skipping and discarding
// scheduler entries whose persisted status is already past the intake boundary
// (claimed, submitted, or paid). On a live candidate the persisted status is
// set to analysed to mark pipeline entry; the returned copy keeps its pre-pop
// status so the analysis stage's transition stays valid. ok=false means the
// working set is drained.
func (m *Manager) PopNext(ctx context.Context) (models.Bounty, bool, error) {
	for {
		b, ok := m.sched.PopMax()
		if !ok {
			telemetry.HeapSizeGauge.Set(0)
			return models.Bounty{}, false, nil
		}
		fp := b.Fingerprint()

		status, err := m.registry.GetStatus(ctx, fp)
		if errors.Is(err, registry.ErrNotFound) {
			// Record expired from the registry while queued.
			continue
		}
		if err != nil {
			return models.Bounty{}, false, err
		}
		switch status {
		case models.StatusClaimed, models.StatusSubmitted, models.StatusPaid:
			continue
		}

		if err := m.registry.SetStatus(ctx, fp, models.StatusAnalysed); err != nil {
			return models.Bounty{}, false, err
		}
		telemetry.HeapSizeGauge.Set(float64(m.sched.Len()))
		return b, true, nil
	}
}

// UpdateStatus writes a bounty's status through to the registry.
func (m *Manager) UpdateStatus(ctx context.Context, fingerprint string, status models.Status) error {
	return m.registry.SetStatus(ctx, fingerprint, status)
}

// GetItem fetches the stored bounty for a fingerprint.
func (m *Manager) GetItem(ctx context.Context, fingerprint string) (models.Bounty, error) {
	return m.registry.Get(ctx, fingerprint)
}

// QueueSize reports the intake stream length.
func (m *Manager) QueueSize(ctx context.Context) (int64, error) {
	return m.registry.QueueSize(ctx)
}

// HeapSize reports the scheduler's in-memory working-set size.
func (m *Manager) HeapSize() int {
	return m.sched.Len()
}

// Stats snapshots intake counters for operators.
func (m *Manager) Stats(ctx context.Context) Stats {
	m.mu.Lock()
	s := Stats{
		TotalReceived: m.totalReceived,
		Admitted:      m.admitted,
		Duplicates:    m.duplicates,
	}
	m.mu.Unlock()
	s.HeapSize = m.sched.Len()
	s.FilterCount = m.filter.Count()
	if depth, err := m.registry.QueueSize(ctx); err == nil {
		s.IntakeDepth = depth
		telemetry.QueueDepthGauge.Set(float64(depth))
	}
	return s
}
