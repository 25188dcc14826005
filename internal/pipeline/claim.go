package pipeline

import (
	"context"
	"fmt"
	"log"

	"bountyhunter/internal/lifecycle"
	"bountyhunter/internal/models"
)

// ClaimStage attempts to claim an analysed bounty on its platform.
type ClaimStage struct {
	platforms *Platforms
	retry     RetryPolicy
}

// NewClaimStage builds the stage over the platform registry.
func NewClaimStage(platforms *Platforms, retry RetryPolicy) *ClaimStage {
	return &ClaimStage{platforms: platforms, retry: retry}
}

func (s *ClaimStage) Name() string          { return "claim" }
func (s *ClaimStage) Expect() models.Status { return models.StatusClaimed }

func (s *ClaimStage) Process(ctx context.Context, b *models.Bounty, m *lifecycle.Machine) (bool, error) {
	log.Printf("claim: attempting [%s] %.45q", b.Source, b.Title)

	claimer := s.platforms.ClaimerFor(b.Source)
	var claimed bool
	err := s.retry.Do(ctx, func() error {
		var cerr error
		claimed, cerr = claimer.Claim(ctx, *b)
		return cerr
	})
	if err != nil {
		return false, fmt.Errorf("claim on %s: %w", b.Source, err)
	}

	if !claimed {
		if terr := m.Transition(models.StatusRejected, "claim refused: already taken or closed"); terr != nil {
			return false, terr
		}
		return false, nil
	}
	if terr := m.Transition(models.StatusClaimed, "claimed on "+b.Source); terr != nil {
		return false, terr
	}
	return true, nil
}
