package pipeline

import (
	"context"
	"fmt"
	"log"

	"bountyhunter/internal/lifecycle"
	"bountyhunter/internal/models"
)

// WorkProvider hands back the generated work product for a claimed bounty.
// The content generator itself is an external collaborator.
type WorkProvider interface {
	Work(ctx context.Context, b models.Bounty) (string, error)
}

// ArtifactStore persists the work product before submission and returns a
// location the submitter can reference.
type ArtifactStore interface {
	Store(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// SubmitStage uploads the work product and submits it to the platform.
type SubmitStage struct {
	platforms *Platforms
	work      WorkProvider
	artifacts ArtifactStore
	retry     RetryPolicy
}

// NewSubmitStage wires the submit collaborators. artifacts may be nil, in
// which case submission references no stored artifact.
func NewSubmitStage(platforms *Platforms, work WorkProvider, artifacts ArtifactStore, retry RetryPolicy) *SubmitStage {
	return &SubmitStage{platforms: platforms, work: work, artifacts: artifacts, retry: retry}
}

func (s *SubmitStage) Name() string          { return "submit" }
func (s *SubmitStage) Expect() models.Status { return models.StatusSubmitted }

func (s *SubmitStage) Process(ctx context.Context, b *models.Bounty, m *lifecycle.Machine) (bool, error) {
	fp := b.Fingerprint()
	log.Printf("submit: preparing work for %s", fp)

	output, err := s.work.Work(ctx, *b)
	if err != nil {
		return false, fmt.Errorf("fetch work product for %s: %w", fp, err)
	}
	if output == "" {
		if terr := m.Transition(models.StatusRejected, "no work product available"); terr != nil {
			return false, terr
		}
		return false, nil
	}

	artifactURL := ""
	if s.artifacts != nil {
		key := fmt.Sprintf("work/%s.md", fp)
		artifactURL, err = s.artifacts.Store(ctx, key, []byte(output), "text/markdown")
		if err != nil {
			return false, fmt.Errorf("store artifact for %s: %w", fp, err)
		}
	}

	submitter := s.platforms.SubmitterFor(b.Source)
	var submitted bool
	err = s.retry.Do(ctx, func() error {
		var serr error
		submitted, serr = submitter.Submit(ctx, *b, artifactURL)
		return serr
	})
	if err != nil {
		return false, fmt.Errorf("submit to %s: %w", b.Source, err)
	}

	if !submitted {
		if terr := m.Transition(models.StatusRejected, "submission refused"); terr != nil {
			return false, terr
		}
		return false, nil
	}
	if terr := m.Transition(models.StatusSubmitted, "work submitted"); terr != nil {
		return false, terr
	}
	return true, nil
}
