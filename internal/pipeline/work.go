package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bountyhunter/internal/models"
)

// DraftWorkProvider renders a markdown submission draft from the bounty
// record. Stands in until a real content generator is plugged behind the
// WorkProvider interface.
type DraftWorkProvider struct {
	// Author is stamped into the draft footer.
	Author string
	now    func() time.Time
}

// NewDraftWorkProvider builds the provider. author may be empty.
func NewDraftWorkProvider(author string) *DraftWorkProvider {
	return &DraftWorkProvider{Author: author, now: time.Now}
}

// Work renders the draft.
func (p *DraftWorkProvider) Work(_ context.Context, b models.Bounty) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Submission: %s\n\n", b.Title)
	fmt.Fprintf(&sb, "- Source: %s\n- Reference: %s\n- Reward: $%g\n", b.Source, b.URL, b.Reward())
	if b.Deadline != nil {
		fmt.Fprintf(&sb, "- Deadline: %s\n", b.Deadline.UTC().Format(time.RFC3339))
	}
	sb.WriteString("\n## Approach\n\n")
	if b.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", b.Description)
	}
	fmt.Fprintf(&sb, "_Drafted %s", p.now().UTC().Format(time.RFC3339))
	if p.Author != "" {
		fmt.Fprintf(&sb, " by %s", p.Author)
	}
	sb.WriteString("_\n")
	return sb.String(), nil
}
