package collect

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"bountyhunter/internal/models"
)

// BoardCollector scrapes a generic HTML bounty board: one listing element per
// bounty with title, link, and reward text.
type BoardCollector struct {
	client *Client
	source string
	url    string

	itemSelector   string
	titleSelector  string
	linkSelector   string
	rewardSelector string
	maxResults     int
}

// BoardOptions configures the board collector. Selectors default to the
// common listing layout.
type BoardOptions struct {
	Source         string
	URL            string
	ItemSelector   string
	TitleSelector  string
	LinkSelector   string
	RewardSelector string
	MaxResults     int
}

// NewBoardCollector applies selector defaults.
func NewBoardCollector(client *Client, opts BoardOptions) *BoardCollector {
	item := opts.ItemSelector
	if item == "" {
		item = ".bounty-item"
	}
	title := opts.TitleSelector
	if title == "" {
		title = ".bounty-title"
	}
	link := opts.LinkSelector
	if link == "" {
		link = "a"
	}
	reward := opts.RewardSelector
	if reward == "" {
		reward = ".bounty-reward"
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}
	source := opts.Source
	if source == "" {
		source = "board"
	}
	return &BoardCollector{
		client:         client,
		source:         source,
		url:            opts.URL,
		itemSelector:   item,
		titleSelector:  title,
		linkSelector:   link,
		rewardSelector: reward,
		maxResults:     maxResults,
	}
}

func (c *BoardCollector) Source() string { return c.source }

// Fetch downloads the board page and extracts listings.
func (c *BoardCollector) Fetch(ctx context.Context) ([]models.Bounty, error) {
	body, err := c.client.Get(ctx, c.url, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, fmt.Errorf("fetch board %s: %w", c.source, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse board %s: %w", c.source, err)
	}

	var out []models.Bounty
	doc.Find(c.itemSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Find(c.titleSelector).First().Text())
		if title == "" {
			return true
		}
		link, _ := sel.Find(c.linkSelector).First().Attr("href")
		id, ok := sel.Attr("data-id")
		if !ok || id == "" {
			id = link
		}
		if id == "" {
			return true
		}

		b := models.Bounty{
			Source:       c.source,
			ExternalID:   id,
			URL:          link,
			Title:        title,
			Category:     models.CategoryOther,
			Status:       models.StatusNew,
			ContactURL:   link,
			DiscoveredAt: time.Now().UTC(),
		}
		rewardText := sel.Find(c.rewardSelector).First().Text()
		if reward, ok := parseReward(rewardText); ok {
			b.RewardUSD = &reward
		}
		out = append(out, b)
		return len(out) < c.maxResults
	})
	return out, nil
}
