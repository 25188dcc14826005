package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"bountyhunter/internal/lifecycle"
	"bountyhunter/internal/models"
)

// defaultSkills rates how well the agent handles each category.
var defaultSkills = map[models.Category]float64{
	models.CategoryCode:        0.9,
	models.CategoryWriting:     0.85,
	models.CategoryResearch:    0.8,
	models.CategoryTranslation: 0.7,
	models.CategoryDesign:      0.4,
	models.CategoryCommunity:   0.6,
	models.CategoryOther:       0.5,
}

// AnalysisConfig tunes the acceptance thresholds of the analysis stage.
type AnalysisConfig struct {
	MinScore     float64
	MinRewardUSD float64
	Skills       map[models.Category]float64
	Now          func() time.Time
}

// AnalysisStage scores a bounty and decides whether it is worth claiming.
// Scoring: ROI (reward normalized at $500), skill match per category, and an
// urgency bonus for near deadlines.
type AnalysisStage struct {
	cfg AnalysisConfig
}

// NewAnalysisStage applies defaults for unset thresholds.
func NewAnalysisStage(cfg AnalysisConfig) *AnalysisStage {
	if cfg.MinScore == 0 {
		cfg.MinScore = 0.4
	}
	if cfg.MinRewardUSD == 0 {
		cfg.MinRewardUSD = 10
	}
	if cfg.Skills == nil {
		cfg.Skills = defaultSkills
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AnalysisStage{cfg: cfg}
}

func (s *AnalysisStage) Name() string          { return "analysis" }
func (s *AnalysisStage) Expect() models.Status { return models.StatusAnalysed }

func (s *AnalysisStage) Process(_ context.Context, b *models.Bounty, m *lifecycle.Machine) (bool, error) {
	// The item arrives with its pre-pop status. Enter the analysed state up
	// front so every verdict below leaves from a state with the right edges:
	// rejection and expiry are only reachable from analysed.
	if m.State() == models.StatusNew {
		if err := m.Transition(models.StatusAnalysed, "analysis started"); err != nil {
			return false, err
		}
	}

	reward := b.Reward()
	if reward < s.cfg.MinRewardUSD {
		if err := m.Transition(models.StatusRejected, fmt.Sprintf("reward too low: $%g", reward)); err != nil {
			return false, err
		}
		return false, nil
	}

	roi := reward / 500.0
	if roi > 1 {
		roi = 1
	}

	skill, ok := s.cfg.Skills[b.Category]
	if !ok {
		skill = 0.5
	}

	urgency := 0.0
	if b.Deadline != nil {
		hours := b.Deadline.Sub(s.cfg.Now()).Hours()
		switch {
		case hours < 0:
			if err := m.Transition(models.StatusExpired, "deadline passed"); err != nil {
				return false, err
			}
			return false, nil
		case hours < 24:
			urgency = 0.2
		case hours < 72:
			urgency = 0.1
		}
	}

	score := roi*0.5 + skill*0.4 + urgency
	if score > 1 {
		score = 1
	}
	b.PriorityScore = score
	b.ROIScore = roi
	b.SkillMatchScore = skill

	log.Printf("analysis: score=%.2f (roi=%.2f skill=%.2f urgency=%.2f) %.40q", score, roi, skill, urgency, b.Title)

	if score < s.cfg.MinScore {
		if err := m.Transition(models.StatusRejected, fmt.Sprintf("score too low: %.2f", score)); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
