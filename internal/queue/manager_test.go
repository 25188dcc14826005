package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"bountyhunter/internal/bloom"
	"bountyhunter/internal/models"
	"bountyhunter/internal/registry"
	"bountyhunter/internal/sched"
)

func newTestManager(t *testing.T) (*Manager, *registry.Registry) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	reg := registry.NewWithClient(client, time.Hour)
	return NewManager(bloom.New(100_000, 7), reg, sched.New()), reg
}

func bounty(id string, reward float64) models.Bounty {
	return models.Bounty{
		Source:       "github",
		ExternalID:   id,
		Title:        "bounty " + id,
		RewardUSD:    &reward,
		Status:       models.StatusNew,
		DiscoveredAt: time.Now().UTC(),
	}
}

func TestDedupIdempotence(t *testing.T) {
	m, reg := newTestManager(t)
	ctx := context.Background()
	b := bounty("1", 100)

	added, err := m.Push(ctx, b)
	if err != nil || !added {
		t.Fatalf("first push: added=%v err=%v", added, err)
	}
	added, err = m.Push(ctx, b)
	if err != nil {
		t.Fatalf("second push: %v", err)
	}
	if added {
		t.Fatal("second push must report duplicate")
	}

	exists, err := reg.Exists(ctx, b.Fingerprint())
	if err != nil || !exists {
		t.Fatalf("registry record missing: exists=%v err=%v", exists, err)
	}
	if m.HeapSize() != 1 {
		t.Fatalf("heap size = %d, want exactly 1 entry", m.HeapSize())
	}
}

func TestEmptyFingerprintRejectedBeforeState(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Push(context.Background(), models.Bounty{Title: "no identity"})
	if err != ErrEmptyFingerprint {
		t.Fatalf("err = %v, want ErrEmptyFingerprint", err)
	}
	if m.HeapSize() != 0 {
		t.Fatal("nothing may be scheduled for a rejected push")
	}
}

func TestPriorityPopOrder(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	for i, reward := range []float64{10, 500, 50} {
		if _, err := m.Push(ctx, bounty(string(rune('a'+i)), reward)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	want := []float64{500, 50, 10}
	for i, expected := range want {
		b, ok, err := m.PopNext(ctx)
		if err != nil || !ok {
			t.Fatalf("pop %d: ok=%v err=%v", i, ok, err)
		}
		if b.Reward() != expected {
			t.Fatalf("pop %d: reward = %v, want %v", i, b.Reward(), expected)
		}
	}
	if _, ok, _ := m.PopNext(ctx); ok {
		t.Fatal("queue should be drained")
	}
}

func TestNoStaleDelivery(t *testing.T) {
	m, reg := newTestManager(t)
	ctx := context.Background()

	claimed := bounty("claimed", 900)
	live := bounty("live", 10)
	if _, err := m.Push(ctx, claimed); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := m.Push(ctx, live); err != nil {
		t.Fatalf("push: %v", err)
	}

	// Advance the high-priority item past the intake boundary behind the
	// scheduler's back.
	if err := reg.SetStatus(ctx, claimed.Fingerprint(), models.StatusClaimed); err != nil {
		t.Fatalf("set status: %v", err)
	}

	b, ok, err := m.PopNext(ctx)
	if err != nil || !ok {
		t.Fatalf("pop: ok=%v err=%v", ok, err)
	}
	if b.Fingerprint() != live.Fingerprint() {
		t.Fatalf("popped %s, want the live entry", b.ExternalID)
	}
}

func TestPopMarksPipelineEntry(t *testing.T) {
	m, reg := newTestManager(t)
	ctx := context.Background()
	b := bounty("1", 50)
	_, _ = m.Push(ctx, b)

	popped, ok, err := m.PopNext(ctx)
	if err != nil || !ok {
		t.Fatalf("pop: ok=%v err=%v", ok, err)
	}
	if popped.Status != models.StatusNew {
		t.Fatalf("returned copy status = %s, want new", popped.Status)
	}
	status, err := reg.GetStatus(ctx, b.Fingerprint())
	if err != nil || status != models.StatusAnalysed {
		t.Fatalf("persisted status = %q err=%v, want analysed", status, err)
	}
}

func TestFilterSelfHeal(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	reg := registry.NewWithClient(client, time.Hour)
	ctx := context.Background()

	b := bounty("1", 100)
	first := NewManager(bloom.New(100_000, 7), reg, sched.New())
	if _, err := first.Push(ctx, b); err != nil {
		t.Fatalf("push: %v", err)
	}

	// Fresh manager with an empty filter against the same registry, as after
	// a restart without replay.
	second := NewManager(bloom.New(100_000, 7), reg, sched.New())
	added, err := second.Push(ctx, b)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if added {
		t.Fatal("authoritative check must catch the duplicate")
	}
	if !secondFilterContains(second, b.Fingerprint()) {
		t.Fatal("filter miss should be healed on duplicate detection")
	}
}

func secondFilterContains(m *Manager, fp string) bool {
	return m.filter.ProbablyContains(fp)
}

func TestRestoreReplaysSeenSet(t *testing.T) {
	m, reg := newTestManager(t)
	ctx := context.Background()
	b := bounty("1", 100)
	_, _ = m.Push(ctx, b)

	fresh := NewManager(bloom.New(100_000, 7), reg, sched.New())
	if err := fresh.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !secondFilterContains(fresh, b.Fingerprint()) {
		t.Fatal("restored filter must contain the registered fingerprint")
	}
}

func TestPushManyCounts(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	batch := []models.Bounty{bounty("1", 10), bounty("2", 20), bounty("1", 10)}
	stats, err := m.PushMany(ctx, batch)
	if err != nil {
		t.Fatalf("push many: %v", err)
	}
	if stats.New != 2 || stats.Duplicates != 1 {
		t.Fatalf("stats = %+v, want 2 new / 1 duplicate", stats)
	}
}

func TestPushFailsWhenRegistryUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	reg := registry.NewWithClient(client, time.Hour)
	m := NewManager(bloom.New(100_000, 7), reg, sched.New())

	mr.Close()

	if _, err := m.Push(context.Background(), bounty("1", 10)); err == nil {
		t.Fatal("push must propagate registry unavailability")
	}
}
