package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"bountyhunter/internal/models"
)

func TestSendPostsToBotEndpoint(t *testing.T) {
	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseForm()
		gotChat = r.FormValue("chat_id")
		gotText = r.FormValue("text")
	}))
	defer srv.Close()

	n := NewTelegram("token123", "chat456", srv.URL)
	if err := n.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/bottoken123/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotChat != "chat456" || gotText != "hello" {
		t.Fatalf("chat=%q text=%q", gotChat, gotText)
	}
}

func TestSendReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewTelegram("bad", "chat", srv.URL)
	if err := n.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestPaidHookFormatsMessage(t *testing.T) {
	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotText = r.FormValue("text")
	}))
	defer srv.Close()

	reward := 250.0
	b := &models.Bounty{Source: "github", Title: "Fix bug", RewardUSD: &reward}
	n := NewTelegram("t", "c", srv.URL)
	if err := n.PaidHook(b); err != nil {
		t.Fatalf("hook: %v", err)
	}
	if gotText != "PAID $250 for [github] Fix bug" {
		t.Fatalf("text = %q", gotText)
	}
}
