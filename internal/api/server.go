// Package api exposes the producer-facing HTTP surface: bounty intake,
// lookups, and operator stats.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bountyhunter/internal/models"
	"bountyhunter/internal/queue"
	"bountyhunter/internal/ratelimit"
	"bountyhunter/internal/registry"
	"bountyhunter/internal/telemetry"
)

// Server wires HTTP handlers for bounty intake.
type Server struct {
	queue   *queue.Manager
	limiter *ratelimit.SourceLimiter
}

// New constructs the API server. limiter may be nil to disable throttling.
func New(q *queue.Manager, limiter *ratelimit.SourceLimiter) *Server {
	return &Server{queue: q, limiter: limiter}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/bounties", s.handlePush)
	r.Post("/bounties/batch", s.handlePushBatch)
	r.Get("/bounties/{fingerprint}", s.handleGet)
	r.Get("/stats", s.handleStats)
	return r
}

type pushRequest struct {
	Source       string     `json:"source"`
	ExternalID   string     `json:"external_id"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	RewardUSD    *float64   `json:"reward_usd"`
	RewardToken  string     `json:"reward_token"`
	RewardAmount *float64   `json:"reward_amount"`
	PostedAt     *time.Time `json:"posted_at"`
	Deadline     *time.Time `json:"deadline"`
	PosterHandle string     `json:"poster_handle"`
	ContactURL   string     `json:"contact_url"`
	Tags         []string   `json:"tags"`
}

func (p pushRequest) toBounty() models.Bounty {
	return models.Bounty{
		Source:       p.Source,
		ExternalID:   p.ExternalID,
		URL:          p.URL,
		Title:        p.Title,
		Description:  p.Description,
		Category:     models.Category(p.Category),
		RewardUSD:    p.RewardUSD,
		RewardToken:  p.RewardToken,
		RewardAmount: p.RewardAmount,
		PostedAt:     p.PostedAt,
		Deadline:     p.Deadline,
		PosterHandle: p.PosterHandle,
		ContactURL:   p.ContactURL,
		Tags:         p.Tags,
		DiscoveredAt: time.Now().UTC(),
	}
}

type pushResponse struct {
	Fingerprint string `json:"fingerprint"`
	Admitted    bool   `json:"admitted"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Source == "" || req.ExternalID == "" {
		http.Error(w, "source and external_id are required", http.StatusBadRequest)
		return
	}
	if !s.allowSource(w, r, req.Source) {
		return
	}

	b := req.toBounty()
	telemetry.DiscoveredCounter.Inc()
	admitted, err := s.queue.Push(r.Context(), b)
	if err != nil {
		http.Error(w, "push failed", http.StatusInternalServerError)
		return
	}
	code := http.StatusAccepted
	if !admitted {
		code = http.StatusOK
	}
	writeJSON(w, code, pushResponse{Fingerprint: b.Fingerprint(), Admitted: admitted})
}

type batchRequest struct {
	Source   string        `json:"source"`
	Bounties []pushRequest `json:"bounties"`
}

func (s *Server) handlePushBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Bounties) == 0 {
		http.Error(w, "bounties is required", http.StatusBadRequest)
		return
	}
	source := req.Source
	if source == "" {
		source = req.Bounties[0].Source
	}
	if !s.allowSource(w, r, source) {
		return
	}

	items := make([]models.Bounty, 0, len(req.Bounties))
	for _, p := range req.Bounties {
		items = append(items, p.toBounty())
		telemetry.DiscoveredCounter.Inc()
	}
	stats, err := s.queue.PushMany(r.Context(), items)
	if err != nil {
		http.Error(w, "batch push failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, stats)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fingerprint")
	b, err := s.queue.GetItem(r.Context(), fp)
	if errors.Is(err, registry.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Stats(r.Context()))
}

// allowSource applies the per-source token bucket. Writes the error response
// and returns false when the request must not proceed.
func (s *Server) allowSource(w http.ResponseWriter, r *http.Request, source string) bool {
	if s.limiter == nil {
		return true
	}
	allowed, _, err := s.limiter.Allow(r.Context(), source)
	if err != nil {
		http.Error(w, "rate limit error", http.StatusInternalServerError)
		return false
	}
	if !allowed {
		telemetry.RateLimitRejects.Inc()
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
