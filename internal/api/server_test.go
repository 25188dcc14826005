package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"bountyhunter/internal/bloom"
	"bountyhunter/internal/queue"
	"bountyhunter/internal/ratelimit"
	"bountyhunter/internal/registry"
	"bountyhunter/internal/sched"
)

func newTestServer(t *testing.T, limiter *ratelimit.SourceLimiter) (*httptest.Server, *queue.Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := registry.NewWithClient(client, time.Hour)
	mgr := queue.NewManager(bloom.New(1<<16, 5), reg, sched.New())
	srv := httptest.NewServer(New(mgr, limiter).Router())
	t.Cleanup(srv.Close)
	return srv, mgr
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestPushThenDuplicate(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	reward := 120.0
	req := pushRequest{Source: "github", ExternalID: "42", Title: "Fix parser", RewardUSD: &reward}

	resp := postJSON(t, srv.URL+"/bounties", req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first push status = %d", resp.StatusCode)
	}
	var first pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&first); err != nil {
		t.Fatal(err)
	}
	if !first.Admitted || first.Fingerprint == "" {
		t.Fatalf("first push response = %+v", first)
	}

	resp2 := postJSON(t, srv.URL+"/bounties", req)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("duplicate push status = %d", resp2.StatusCode)
	}
	var second pushResponse
	if err := json.NewDecoder(resp2.Body).Decode(&second); err != nil {
		t.Fatal(err)
	}
	if second.Admitted {
		t.Fatal("duplicate should not be admitted")
	}
	if second.Fingerprint != first.Fingerprint {
		t.Fatalf("fingerprints differ: %q vs %q", first.Fingerprint, second.Fingerprint)
	}
}

func TestPushRejectsMissingIdentity(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp := postJSON(t, srv.URL+"/bounties", pushRequest{Source: "github"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestBatchPushCountsNewAndDuplicates(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	reward := 50.0
	batch := batchRequest{Bounties: []pushRequest{
		{Source: "board", ExternalID: "a", Title: "A", RewardUSD: &reward},
		{Source: "board", ExternalID: "b", Title: "B", RewardUSD: &reward},
		{Source: "board", ExternalID: "a", Title: "A again", RewardUSD: &reward},
	}}

	resp := postJSON(t, srv.URL+"/bounties/batch", batch)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var stats queue.PushStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.New != 2 || stats.Duplicates != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestGetBounty(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	reward := 75.0
	resp := postJSON(t, srv.URL+"/bounties", pushRequest{Source: "github", ExternalID: "9", Title: "Add docs", RewardUSD: &reward})
	var pr pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	got, err := http.Get(srv.URL + "/bounties/" + pr.Fingerprint)
	if err != nil {
		t.Fatal(err)
	}
	defer got.Body.Close()
	if got.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", got.StatusCode)
	}

	missing, err := http.Get(srv.URL + "/bounties/deadbeefdeadbeef")
	if err != nil {
		t.Fatal(err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status = %d", missing.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	reward := 30.0
	postJSON(t, srv.URL+"/bounties", pushRequest{Source: "github", ExternalID: "1", RewardUSD: &reward}).Body.Close()
	postJSON(t, srv.URL+"/bounties", pushRequest{Source: "github", ExternalID: "1", RewardUSD: &reward}).Body.Close()

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats queue.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Admitted != 1 || stats.Duplicates != 1 || stats.HeapSize != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPushRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := registry.NewWithClient(client, time.Hour)
	mgr := queue.NewManager(bloom.New(1<<16, 5), reg, sched.New())
	limiter := ratelimit.NewSourceLimiter(client, 2, 0, time.Minute)
	srv := httptest.NewServer(New(mgr, limiter).Router())
	t.Cleanup(srv.Close)

	reward := 10.0
	var last int
	for i := 0; i < 3; i++ {
		resp := postJSON(t, srv.URL+"/bounties", pushRequest{
			Source: "noisy", ExternalID: fmt.Sprintf("id-%d", i), RewardUSD: &reward,
		})
		last = resp.StatusCode
		resp.Body.Close()
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third push status = %d, want 429", last)
	}
}
