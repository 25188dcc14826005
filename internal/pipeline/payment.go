package pipeline

import (
	"context"
	"fmt"
	"log"

	"bountyhunter/internal/lifecycle"
	"bountyhunter/internal/models"
)

// PaymentChecker reports whether the bounty's payout has landed, polling an
// external ledger or platform API.
type PaymentChecker interface {
	Confirmed(ctx context.Context, b models.Bounty) (bool, error)
}

// RevenueRecorder books confirmed payouts, e.g. into the Postgres ledger.
type RevenueRecorder interface {
	RecordRevenue(ctx context.Context, b models.Bounty) error
}

// PaymentStage closes the chain: confirmed payment moves the bounty to paid;
// an unconfirmed payment leaves it submitted for a later pass.
type PaymentStage struct {
	checker PaymentChecker
	ledger  RevenueRecorder
	retry   RetryPolicy
}

// NewPaymentStage wires the payment collaborators. ledger may be nil.
func NewPaymentStage(checker PaymentChecker, ledger RevenueRecorder, retry RetryPolicy) *PaymentStage {
	return &PaymentStage{checker: checker, ledger: ledger, retry: retry}
}

func (s *PaymentStage) Name() string          { return "payment" }
func (s *PaymentStage) Expect() models.Status { return models.StatusPaid }

func (s *PaymentStage) Process(ctx context.Context, b *models.Bounty, m *lifecycle.Machine) (bool, error) {
	fp := b.Fingerprint()

	var paid bool
	err := s.retry.Do(ctx, func() error {
		var perr error
		paid, perr = s.checker.Confirmed(ctx, *b)
		return perr
	})
	if err != nil {
		return false, fmt.Errorf("check payment for %s: %w", fp, err)
	}

	if !paid {
		// No transition: the bounty stays submitted and is re-checked on a
		// later pass.
		log.Printf("payment: pending for %s", fp)
		return false, nil
	}

	if terr := m.Transition(models.StatusPaid, fmt.Sprintf("payment confirmed: $%g", b.Reward())); terr != nil {
		return false, terr
	}
	log.Printf("payment: confirmed $%g for %s", b.Reward(), fp)

	if s.ledger != nil {
		if err := s.ledger.RecordRevenue(ctx, *b); err != nil {
			log.Printf("payment: recording revenue for %s failed: %v", fp, err)
		}
	}
	return true, nil
}
