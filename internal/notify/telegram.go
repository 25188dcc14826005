// Package notify pushes lifecycle events to a Telegram chat. Wired into the
// pipeline as status-entry hooks; delivery failures are logged by the
// lifecycle machinery and never block a transition.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bountyhunter/internal/models"
)

// Telegram sends plain-text messages through the bot API.
type Telegram struct {
	http    *http.Client
	baseURL string
	token   string
	chatID  string
}

// NewTelegram builds the notifier. baseURL is overridable for tests; empty
// means the public API.
func NewTelegram(token, chatID, baseURL string) *Telegram {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Telegram{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		chatID:  chatID,
	}
}

// Send posts one message to the configured chat.
func (t *Telegram) Send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	form := url.Values{
		"chat_id": {t.chatID},
		"text":    {text},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram responded %d", resp.StatusCode)
	}
	return nil
}

// ClaimedHook announces a successful claim.
func (t *Telegram) ClaimedHook(b *models.Bounty) error {
	return t.Send(context.Background(), fmt.Sprintf("Claimed [%s] %s ($%g)\n%s", b.Source, b.Title, b.Reward(), b.URL))
}

// PaidHook announces a confirmed payout.
func (t *Telegram) PaidHook(b *models.Bounty) error {
	return t.Send(context.Background(), fmt.Sprintf("PAID $%g for [%s] %s", b.Reward(), b.Source, b.Title))
}
