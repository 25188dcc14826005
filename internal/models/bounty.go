package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Status enumerates lifecycle states persisted in the registry.
type Status string

const (
	StatusNew       Status = "new"
	StatusAnalysed  Status = "analysed"
	StatusClaimed   Status = "claimed"
	StatusSubmitted Status = "submitted"
	StatusPaid      Status = "paid"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
)

// Category classifies the kind of work a bounty asks for.
type Category string

const (
	CategoryCode        Category = "code"
	CategoryWriting     Category = "writing"
	CategoryDesign      Category = "design"
	CategoryResearch    Category = "research"
	CategoryTranslation Category = "translation"
	CategoryCommunity   Category = "community"
	CategoryOther       Category = "other"
)

// Bounty represents one discovered paid task. The fingerprint is the sole
// dedup and storage key and never changes after creation.
type Bounty struct {
	Source      string   `json:"source"`
	ExternalID  string   `json:"external_id"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`

	RewardUSD    *float64 `json:"reward_usd,omitempty"`
	RewardToken  string   `json:"reward_token,omitempty"`
	RewardAmount *float64 `json:"reward_amount,omitempty"`

	Status       Status     `json:"status"`
	PostedAt     *time.Time `json:"posted_at,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	DiscoveredAt time.Time  `json:"discovered_at"`

	PosterHandle string `json:"poster_handle,omitempty"`
	ContactURL   string `json:"contact_url,omitempty"`

	PriorityScore   float64 `json:"priority_score"`
	SkillMatchScore float64 `json:"skill_match_score"`
	ROIScore        float64 `json:"roi_score"`

	Tags []string `json:"tags,omitempty"`
}

// Fingerprint derives the stable dedup key: the first 16 hex characters of
// sha256("source:external_id").
func (b Bounty) Fingerprint() string {
	sum := sha256.Sum256([]byte(b.Source + ":" + b.ExternalID))
	return hex.EncodeToString(sum[:])[:16]
}

// Reward returns the USD reward, or 0 when unknown.
func (b Bounty) Reward() float64 {
	if b.RewardUSD == nil {
		return 0
	}
	return *b.RewardUSD
}

// TransitionRecord is an immutable history entry appended on every accepted
// lifecycle transition.
type TransitionRecord struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// IntakeEvent is the summary appended to the intake log when a bounty is
// admitted to the queue.
type IntakeEvent struct {
	Fingerprint string  `json:"fingerprint"`
	Source      string  `json:"source"`
	Title       string  `json:"title"`
	RewardUSD   float64 `json:"reward_usd"`
	Category    string  `json:"category"`
}
