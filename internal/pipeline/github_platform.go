package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"bountyhunter/internal/models"
)

// GitHubPlatform claims and submits by commenting on the bounty issue. Claim
// posts an intent comment; submit posts the work with a link to the stored
// artifact.
type GitHubPlatform struct {
	http    *http.Client
	token   string
	baseURL string
}

// NewGitHubPlatform builds the platform client. baseURL is overridable for
// tests; empty means the public API.
func NewGitHubPlatform(token, baseURL string) *GitHubPlatform {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubPlatform{
		http:    &http.Client{Timeout: 30 * time.Second},
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Claim posts an intent-to-work comment on the issue.
func (g *GitHubPlatform) Claim(ctx context.Context, b models.Bounty) (bool, error) {
	owner, repo, issue, ok := splitIssueURL(b.URL)
	if !ok {
		log.Printf("claim: %s has no parseable issue url %q", b.Fingerprint(), b.URL)
		return false, nil
	}
	body := "I'd like to work on this."
	return g.comment(ctx, owner, repo, issue, body)
}

// Submit posts the work product as an issue comment.
func (g *GitHubPlatform) Submit(ctx context.Context, b models.Bounty, artifactURL string) (bool, error) {
	owner, repo, issue, ok := splitIssueURL(b.URL)
	if !ok {
		log.Printf("submit: %s has no parseable issue url %q", b.Fingerprint(), b.URL)
		return false, nil
	}
	body := "## Bounty submission\n\nWork completed for this issue."
	if artifactURL != "" {
		body += "\n\nArtifact: " + artifactURL
	}
	return g.comment(ctx, owner, repo, issue, body)
}

// comment POSTs to the issue comments endpoint. 429 and 5xx surface as the
// retry sentinels so the stage's RetryPolicy backs off.
func (g *GitHubPlatform) comment(ctx context.Context, owner, repo, issue, body string) (bool, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/issues/%s/comments", g.baseURL, owner, repo, issue)
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return false, fmt.Errorf("marshal comment: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build comment request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("post comment: %w", ErrRetryable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		return true, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return false, fmt.Errorf("github comment %s/%s#%s: %w", owner, repo, issue, ErrRateLimited)
	case resp.StatusCode >= 500:
		return false, fmt.Errorf("github comment %s/%s#%s status %d: %w", owner, repo, issue, resp.StatusCode, ErrRetryable)
	default:
		// 4xx: the issue is locked, gone, or the token lacks access. Refuse
		// rather than retry.
		log.Printf("github: comment on %s/%s#%s refused with %d", owner, repo, issue, resp.StatusCode)
		return false, nil
	}
}

// splitIssueURL extracts owner, repo, and issue number from a canonical
// github.com issue URL.
func splitIssueURL(rawURL string) (owner, repo, issue string, ok bool) {
	parts := strings.Split(strings.TrimRight(rawURL, "/"), "/")
	if len(parts) < 7 {
		return "", "", "", false
	}
	if parts[len(parts)-2] != "issues" {
		return "", "", "", false
	}
	return parts[len(parts)-4], parts[len(parts)-3], parts[len(parts)-1], true
}
