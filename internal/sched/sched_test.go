package sched

import (
	"testing"
	"time"

	"bountyhunter/internal/models"
)

func bountyWithReward(id string, reward float64) models.Bounty {
	return models.Bounty{Source: "test", ExternalID: id, RewardUSD: &reward}
}

func TestPopOrderByReward(t *testing.T) {
	s := New()
	for _, reward := range []float64{10, 500, 50} {
		s.Insert(bountyWithReward("id", reward))
	}

	want := []float64{500, 50, 10}
	for i, expected := range want {
		b, ok := s.PopMax()
		if !ok {
			t.Fatalf("pop %d: empty", i)
		}
		if b.Reward() != expected {
			t.Fatalf("pop %d: reward = %v, want %v", i, b.Reward(), expected)
		}
	}
	if _, ok := s.PopMax(); ok {
		t.Fatal("scheduler should be empty")
	}
}

func TestUrgencyBonusBeatsHigherReward(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithNow(func() time.Time { return now }))

	deadline := now.Add(10 * time.Hour)
	urgent := bountyWithReward("urgent", 100)
	urgent.Deadline = &deadline
	richer := bountyWithReward("richer", 150)

	s.Insert(richer)
	s.Insert(urgent)

	first, _ := s.PopMax()
	if first.ExternalID != "urgent" {
		t.Fatalf("first pop = %s, want urgent (key 200 beats 150)", first.ExternalID)
	}
	second, _ := s.PopMax()
	if second.ExternalID != "richer" {
		t.Fatalf("second pop = %s, want richer", second.ExternalID)
	}
}

func TestPastDeadlineGetsNoBonus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithNow(func() time.Time { return now }))

	passed := now.Add(-time.Hour)
	stale := bountyWithReward("stale", 100)
	stale.Deadline = &passed
	plain := bountyWithReward("plain", 120)

	s.Insert(stale)
	s.Insert(plain)

	first, _ := s.PopMax()
	if first.ExternalID != "plain" {
		t.Fatalf("first pop = %s, want plain", first.ExternalID)
	}
}

func TestMissingRewardScoresZero(t *testing.T) {
	s := New()
	s.Insert(models.Bounty{Source: "test", ExternalID: "norew"})
	s.Insert(bountyWithReward("small", 1))

	first, _ := s.PopMax()
	if first.ExternalID != "small" {
		t.Fatalf("first pop = %s, want small", first.ExternalID)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}
