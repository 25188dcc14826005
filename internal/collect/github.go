package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"bountyhunter/internal/models"
)

// rewardPattern pulls "$500" or "$1,250" out of issue titles and labels.
var rewardPattern = regexp.MustCompile(`\$\s?([0-9][0-9,]*(?:\.[0-9]+)?)`)

// GitHubCollector finds bounty-labelled issues across configured orgs.
type GitHubCollector struct {
	client    *Client
	token     string
	orgs      []string
	label     string
	maxPerOrg int
	baseURL   string
}

// GitHubOptions configures the collector.
type GitHubOptions struct {
	Token     string
	Orgs      []string
	Label     string
	MaxPerOrg int
	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string
}

// NewGitHubCollector applies defaults for unset options.
func NewGitHubCollector(client *Client, opts GitHubOptions) *GitHubCollector {
	label := opts.Label
	if label == "" {
		label = "bounty"
	}
	maxPerOrg := opts.MaxPerOrg
	if maxPerOrg <= 0 {
		maxPerOrg = 15
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubCollector{
		client:    client,
		token:     opts.Token,
		orgs:      opts.Orgs,
		label:     label,
		maxPerOrg: maxPerOrg,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

func (c *GitHubCollector) Source() string { return "github" }

type githubIssue struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	User    struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	RepositoryURL string    `json:"repository_url"`
	CreatedAt     time.Time `json:"created_at"`
}

type githubSearchResult struct {
	Items []githubIssue `json:"items"`
}

// Fetch queries the issue search API once per org.
func (c *GitHubCollector) Fetch(ctx context.Context) ([]models.Bounty, error) {
	headers := map[string]string{}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	var out []models.Bounty
	for _, org := range c.orgs {
		url := fmt.Sprintf("%s/search/issues?q=org:%s+label:%s+state:open&per_page=%d",
			c.baseURL, org, c.label, c.maxPerOrg)
		body, err := c.client.Get(ctx, url, headers)
		if err != nil {
			return out, fmt.Errorf("github search for org %s: %w", org, err)
		}
		var result githubSearchResult
		if err := json.Unmarshal(body, &result); err != nil {
			return out, fmt.Errorf("decode github search for org %s: %w", org, err)
		}
		for _, issue := range result.Items {
			out = append(out, c.toBounty(org, issue))
		}
	}
	return out, nil
}

func (c *GitHubCollector) toBounty(org string, issue githubIssue) models.Bounty {
	b := models.Bounty{
		Source:       "github",
		ExternalID:   fmt.Sprintf("%s#%d", repoFromURL(issue.RepositoryURL, org), issue.Number),
		URL:          issue.HTMLURL,
		Title:        issue.Title,
		Description:  truncate(issue.Body, 500),
		Category:     models.CategoryCode,
		Status:       models.StatusNew,
		PosterHandle: issue.User.Login,
		ContactURL:   issue.HTMLURL,
		DiscoveredAt: time.Now().UTC(),
	}
	if !issue.CreatedAt.IsZero() {
		posted := issue.CreatedAt
		b.PostedAt = &posted
	}
	if reward, ok := parseReward(issue.Title); ok {
		b.RewardUSD = &reward
	}
	for _, l := range issue.Labels {
		b.Tags = append(b.Tags, l.Name)
	}
	return b
}

func repoFromURL(repositoryURL, fallback string) string {
	idx := strings.Index(repositoryURL, "/repos/")
	if idx < 0 {
		return fallback
	}
	return repositoryURL[idx+len("/repos/"):]
}

func parseReward(text string) (float64, bool) {
	match := rewardPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	raw := strings.ReplaceAll(match[1], ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// truncate cuts to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
