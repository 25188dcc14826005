// Package lifecycle guards bounty status transitions against the fixed
// lifecycle table and records history for every accepted transition.
package lifecycle

import (
	"fmt"
	"log"
	"time"

	"bountyhunter/internal/models"
)

// validTransitions is the full lifecycle table. Absent statuses are terminal.
var validTransitions = map[models.Status][]models.Status{
	models.StatusNew:       {models.StatusAnalysed, models.StatusExpired},
	models.StatusAnalysed:  {models.StatusClaimed, models.StatusRejected, models.StatusExpired},
	models.StatusClaimed:   {models.StatusSubmitted, models.StatusRejected},
	models.StatusSubmitted: {models.StatusPaid, models.StatusRejected},
	models.StatusPaid:      {},
	models.StatusRejected:  {},
	models.StatusExpired:   {},
}

// TransitionError reports an attempted edge absent from the lifecycle table.
type TransitionError struct {
	Fingerprint string
	From        models.Status
	To          models.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for bounty %s", e.From, e.To, e.Fingerprint)
}

// Hook runs when a bounty enters the status it is registered for. Hook
// failures are logged and never roll back the transition.
type Hook func(b *models.Bounty) error

// Hooks maps a status to callbacks invoked in registration order on entry.
// It is owned by whoever constructs the pipeline, not a package singleton.
type Hooks struct {
	byStatus map[models.Status][]Hook
}

// NewHooks builds an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{byStatus: make(map[models.Status][]Hook)}
}

// On registers a callback for entry into a status.
func (h *Hooks) On(status models.Status, hook Hook) {
	if hook == nil {
		return
	}
	h.byStatus[status] = append(h.byStatus[status], hook)
}

// Machine validates and applies transitions for a single bounty.
type Machine struct {
	bounty  *models.Bounty
	hooks   *Hooks
	history []models.TransitionRecord
}

// NewMachine wraps a bounty. Hooks may be nil.
func NewMachine(b *models.Bounty, hooks *Hooks) *Machine {
	return &Machine{bounty: b, hooks: hooks}
}

// State returns the bounty's current status.
func (m *Machine) State() models.Status {
	return m.bounty.Status
}

// CanTransition reports whether the edge exists in the lifecycle table.
func (m *Machine) CanTransition(to models.Status) bool {
	for _, allowed := range validTransitions[m.bounty.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition applies a status change. On an invalid edge it returns a
// *TransitionError and leaves status and history untouched. On success it
// updates the bounty, appends a TransitionRecord, and runs any hooks bound to
// the new status.
func (m *Machine) Transition(to models.Status, reason string) error {
	if !m.CanTransition(to) {
		return &TransitionError{Fingerprint: m.bounty.Fingerprint(), From: m.bounty.Status, To: to}
	}

	from := m.bounty.Status
	m.bounty.Status = to
	m.history = append(m.history, models.TransitionRecord{
		From:   from,
		To:     to,
		At:     time.Now().UTC(),
		Reason: reason,
	})
	log.Printf("lifecycle: [%s] %s -> %s reason=%q", m.bounty.Fingerprint(), from, to, reason)

	if m.hooks != nil {
		for _, hook := range m.hooks.byStatus[to] {
			runHook(hook, m.bounty, to)
		}
	}
	return nil
}

// runHook isolates one callback: errors and panics are logged and never
// propagate to the transition.
func runHook(hook Hook, b *models.Bounty, to models.Status) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("lifecycle: hook on %s panicked for %s: %v", to, b.Fingerprint(), r)
		}
	}()
	if err := hook(b); err != nil {
		log.Printf("lifecycle: hook on %s failed for %s: %v", to, b.Fingerprint(), err)
	}
}

// History returns the accepted transitions in order.
func (m *Machine) History() []models.TransitionRecord {
	return m.history
}

// IsTerminal reports whether the current status has no outgoing edges.
func (m *Machine) IsTerminal() bool {
	return len(validTransitions[m.bounty.Status]) == 0
}
