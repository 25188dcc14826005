package pipeline

import (
	"context"
	"log"

	"bountyhunter/internal/models"
)

// Claimer attempts to claim a bounty on its platform. A false return without
// error means the platform refused (already taken, closed).
type Claimer interface {
	Claim(ctx context.Context, b models.Bounty) (bool, error)
}

// Submitter delivers completed work to the platform.
type Submitter interface {
	Submit(ctx context.Context, b models.Bounty, artifactURL string) (bool, error)
}

// Platforms dispatches claim/submit calls to the variant registered for a
// bounty's source, falling back to a generic implementation.
type Platforms struct {
	claimers   map[string]Claimer
	submitters map[string]Submitter
	fallbackC  Claimer
	fallbackS  Submitter
}

// NewPlatforms builds a registry with generic fallbacks.
func NewPlatforms() *Platforms {
	return &Platforms{
		claimers:   make(map[string]Claimer),
		submitters: make(map[string]Submitter),
		fallbackC:  GenericClaimer{},
		fallbackS:  GenericSubmitter{},
	}
}

// RegisterClaimer binds a claimer to a source identifier.
func (p *Platforms) RegisterClaimer(source string, c Claimer) {
	if source == "" || c == nil {
		return
	}
	p.claimers[source] = c
}

// RegisterSubmitter binds a submitter to a source identifier.
func (p *Platforms) RegisterSubmitter(source string, s Submitter) {
	if source == "" || s == nil {
		return
	}
	p.submitters[source] = s
}

// ClaimerFor returns the claimer for a source.
func (p *Platforms) ClaimerFor(source string) Claimer {
	if c, ok := p.claimers[source]; ok {
		return c
	}
	return p.fallbackC
}

// SubmitterFor returns the submitter for a source.
func (p *Platforms) SubmitterFor(source string) Submitter {
	if s, ok := p.submitters[source]; ok {
		return s
	}
	return p.fallbackS
}

// GenericClaimer records the claim for manual follow-up and reports success.
// Platform-specific claimers replace this per source.
type GenericClaimer struct{}

func (GenericClaimer) Claim(_ context.Context, b models.Bounty) (bool, error) {
	log.Printf("claim: generic claim recorded for %s (%s)", b.Fingerprint(), b.URL)
	return true, nil
}

// GenericSubmitter logs the submission target and reports success.
type GenericSubmitter struct{}

func (GenericSubmitter) Submit(_ context.Context, b models.Bounty, artifactURL string) (bool, error) {
	log.Printf("submit: generic submission for %s -> %s (artifact %s)", b.Fingerprint(), b.URL, artifactURL)
	return true, nil
}
